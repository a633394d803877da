package fs

import (
	"sync"

	"github.com/pablos123/paldos/internal/common"
)

// memDisk is an in-memory Disk used only by this package's tests; the
// real sector-addressed device lives in internal/disk and talks to an
// actual file on disk (spec §6).
type memDisk struct {
	mu         sync.Mutex
	sectorSize int
	sectors    [][]byte
}

func newMemDisk(sectorSize, numSectors int) *memDisk {
	d := &memDisk{sectorSize: sectorSize, sectors: make([][]byte, numSectors)}
	for i := range d.sectors {
		d.sectors[i] = make([]byte, sectorSize)
	}
	return d
}

func (d *memDisk) ReadSector(n common.Sector, buf []byte) common.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(n) < 0 || int(n) >= len(d.sectors) {
		return common.EFAULT
	}
	copy(buf, d.sectors[n])
	return common.OK
}

func (d *memDisk) WriteSector(n common.Sector, buf []byte) common.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(n) < 0 || int(n) >= len(d.sectors) {
		return common.EFAULT
	}
	copy(d.sectors[n], buf)
	return common.OK
}

func (d *memDisk) SectorSize() int { return d.sectorSize }
func (d *memDisk) NumSectors() int { return len(d.sectors) }
