package fs

import (
	"encoding/binary"

	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/kconfig"
)

// FileHeader is the on-disk index block for one file, or one link in a
// multi-header chain once a file outgrows a single header's direct
// sectors (spec §4.4 and §9; grounded in original_source/filesys/
// raw_file_header.hh and file_system.cc's FileHeader usage).
//
// Each header occupies exactly one sector. Its NumDirect data-sector
// pointers are stored as 16-bit indices rather than the original's
// 32-bit ints, so that NumDirect=30 fits the 128-byte sector pinned by
// spec §8 scenario S2 alongside the three 32-bit bookkeeping fields
// (12 + 30*2 = 72 <= 128).
type FileHeader struct {
	NumBytes    int
	NumSectors  int
	DataSectors []common.Sector
	Next        common.Sector
}

func newFileHeader(numDirect int) *FileHeader {
	return &FileHeader{DataSectors: make([]common.Sector, numDirect), Next: common.NoSector}
}

func divRoundUp(n, d int) int {
	return (n + d - 1) / d
}

// Allocate claims sectors to hold numBytes, starting with this header's
// own direct list. If numBytes needs more sectors than NumDirect holds,
// needsMore reports true and the caller must chain a continuation
// header for the remainder — (numBytes - h.NumSectors*SectorSize) bytes
// — and link it via h.Next (spec §9: multi-header growth).
func (h *FileHeader) Allocate(free *Bitmap, numBytes int, cfg kconfig.Config) (needsMore bool, err common.Err_t) {
	needed := divRoundUp(numBytes, cfg.SectorSize)
	local := needed
	if local > len(h.DataSectors) {
		local = len(h.DataSectors)
	}
	if free.NumClear() < local {
		return false, common.ENOSPC
	}
	for i := 0; i < local; i++ {
		h.DataSectors[i] = free.Find()
	}
	h.NumSectors = local
	h.NumBytes = numBytes
	if needed > local {
		return true, common.OK
	}
	h.Next = common.NoSector
	return false, common.OK
}

// Deallocate returns this header's own data sectors to free. It does not
// touch h.Next's chain — callers walk the chain themselves (see fs.go's
// deallocateChain) since doing so requires a disk read per link.
func (h *FileHeader) Deallocate(free *Bitmap) {
	for i := 0; i < h.NumSectors; i++ {
		free.Clear(h.DataSectors[i])
	}
	h.NumSectors = 0
}

// FetchFrom loads the header stored at sector.
func (h *FileHeader) FetchFrom(disk Disk, sector common.Sector, cfg kconfig.Config) common.Err_t {
	buf := make([]byte, cfg.SectorSize)
	if err := disk.ReadSector(sector, buf); err != common.OK {
		return err
	}
	h.decode(buf, cfg)
	return common.OK
}

// WriteBack persists the header to sector.
func (h *FileHeader) WriteBack(disk Disk, sector common.Sector, cfg kconfig.Config) common.Err_t {
	return disk.WriteSector(sector, h.encode(cfg))
}

func (h *FileHeader) encode(cfg kconfig.Config) []byte {
	buf := make([]byte, cfg.SectorSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.NumBytes))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.NumSectors))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(int32(h.Next)))
	off := 12
	for i := range h.DataSectors {
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(h.DataSectors[i]))
		off += 2
	}
	return buf
}

func (h *FileHeader) decode(buf []byte, cfg kconfig.Config) {
	h.NumBytes = int(binary.LittleEndian.Uint32(buf[0:4]))
	h.NumSectors = int(binary.LittleEndian.Uint32(buf[4:8]))
	h.Next = common.Sector(int32(binary.LittleEndian.Uint32(buf[8:12])))
	if len(h.DataSectors) != cfg.NumDirect {
		h.DataSectors = make([]common.Sector, cfg.NumDirect)
	}
	off := 12
	for i := range h.DataSectors {
		h.DataSectors[i] = common.Sector(binary.LittleEndian.Uint16(buf[off : off+2]))
		off += 2
	}
}
