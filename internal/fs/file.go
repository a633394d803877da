package fs

import (
	"sync"

	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/threads"
)

const (
	lockWrite = iota
	lockRemove
	lockClose
	numEntryLocks
)

// OpenFileEntry is the shared, sector-keyed state every File handle
// pointing at the same on-disk file sees: the reference count, the
// remove-pending flag, and the per-file locks (spec §4.4; grounded in
// original_source/filesys/open_file.cc, whose OpenFile lazily allocates
// its writeLock/removeLock/closeLock the first time two threads open the
// same file concurrently).
type OpenFileEntry struct {
	mu           sync.Mutex
	sched        *threads.Scheduler
	count        int
	removing     bool
	removerSpace common.SpaceId
	locks        [numEntryLocks]*threads.Lock
}

func (e *OpenFileEntry) lockFor(kind int) *threads.Lock {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locks[kind] == nil {
		e.locks[kind] = threads.NewLock(e.sched)
	}
	return e.locks[kind]
}

// File is one open handle onto a file's header chain, rooted at sector
// in the owning FileSystem. Multiple handles may share the same sector
// (and therefore the same OpenFileEntry); each keeps its own seek
// position.
type File struct {
	fs      *FileSystem
	sector  common.Sector
	hdr     *FileHeader
	entry   *OpenFileEntry
	seekPos int
}

// Length returns the file's current logical length in bytes.
func (f *File) Length() int {
	return f.hdr.NumBytes
}

// GetSector returns the sector number of this file's root header, the
// identity directory entries and the open-file table key on.
func (f *File) GetSector() common.Sector {
	return f.sector
}

// Seek repositions this handle's read/write cursor.
func (f *File) Seek(pos int) {
	f.seekPos = pos
}

// Read reads into p starting at the handle's current position, advancing
// it by the number of bytes read.
func (f *File) Read(p []byte) (int, common.Err_t) {
	n, err := f.ReadAt(p, f.seekPos)
	if err == common.OK {
		f.seekPos += n
	}
	return n, err
}

// ReadAt reads into p starting at the absolute byte offset pos, without
// touching the handle's seek cursor, stopping at end of file.
func (f *File) ReadAt(p []byte, pos int) (int, common.Err_t) {
	cfg := f.fs.cfg
	disk := f.fs.disk
	length := f.hdr.NumBytes
	if pos >= length {
		return 0, common.OK
	}
	if pos+len(p) > length {
		p = p[:length-pos]
	}

	node := f.hdr
	nodeStart := 0
	read := 0
	for len(p) > 0 {
		nodeBytes := node.NumSectors * cfg.SectorSize
		if pos >= nodeStart+nodeBytes {
			if node.Next == common.NoSector {
				break
			}
			next := newFileHeader(cfg.NumDirect)
			if err := next.FetchFrom(disk, node.Next, cfg); err != common.OK {
				return read, err
			}
			nodeStart += nodeBytes
			node = next
			continue
		}
		localOff := pos - nodeStart
		sector := node.DataSectors[localOff/cfg.SectorSize]
		sectorOff := localOff % cfg.SectorSize

		buf := make([]byte, cfg.SectorSize)
		if err := disk.ReadSector(sector, buf); err != common.OK {
			return read, err
		}
		n := copy(p, buf[sectorOff:])
		read += n
		pos += n
		p = p[n:]
	}
	return read, common.OK
}

// Write writes p starting at the handle's current position, growing the
// file (and its header chain) as needed, and advances the cursor by the
// number of bytes written (spec §4.4, §9 scenario S2/S3).
func (f *File) Write(self *threads.Thread, p []byte) (int, common.Err_t) {
	wl := f.entry.lockFor(lockWrite)
	wl.Acquire(self)
	defer wl.Release(self)

	// Another writer holding this same lock may have grown the file
	// since we last looked; refresh before deciding whether to grow.
	if err := f.hdr.FetchFrom(f.fs.disk, f.sector, f.fs.cfg); err != common.OK {
		return 0, err
	}

	pos := f.seekPos
	newLength := pos + len(p)
	if newLength > f.hdr.NumBytes {
		if err := f.growTo(self, newLength); err != common.OK {
			return 0, err
		}
	}

	n, err := f.writeAt(p, pos)
	if err == common.OK {
		f.seekPos = pos + n
	}
	return n, err
}

// WriteAt writes p at the absolute byte offset pos without moving the
// handle's seek cursor, growing the file if pos+len(p) exceeds its
// current length (spec §4.4 "ReadAt/WriteAt operate on absolute offsets
// ... without moving the cursor"). Used by internal/vm through a
// SwapHandle to write evicted pages back to a process's swap file.
func (f *File) WriteAt(self *threads.Thread, p []byte, pos int) (int, common.Err_t) {
	wl := f.entry.lockFor(lockWrite)
	wl.Acquire(self)
	defer wl.Release(self)

	if err := f.hdr.FetchFrom(f.fs.disk, f.sector, f.fs.cfg); err != common.OK {
		return 0, err
	}
	if newLength := pos + len(p); newLength > f.hdr.NumBytes {
		if err := f.growTo(self, newLength); err != common.OK {
			return 0, err
		}
	}
	return f.writeAt(p, pos)
}

// Overwrite replaces the file's entire content with data, growing it if
// necessary. Used internally by the file system to persist the bitmap
// and directory files, which are never accessed through the syscall
// Read/Write path.
func (f *File) Overwrite(self *threads.Thread, data []byte) common.Err_t {
	wl := f.entry.lockFor(lockWrite)
	wl.Acquire(self)
	defer wl.Release(self)

	if len(data) > f.hdr.NumBytes {
		if err := f.growTo(self, len(data)); err != common.OK {
			return err
		}
	} else {
		f.hdr.NumBytes = len(data)
		if err := f.hdr.WriteBack(f.fs.disk, f.sector, f.fs.cfg); err != common.OK {
			return err
		}
	}
	_, err := f.writeAt(data, 0)
	return err
}

// writeAt walks the header chain writing p at absolute offset pos,
// read-modifying sectors that are only partially overwritten.
func (f *File) writeAt(p []byte, pos int) (int, common.Err_t) {
	cfg := f.fs.cfg
	disk := f.fs.disk

	node := f.hdr
	nodeStart := 0
	written := 0
	for len(p) > 0 {
		nodeBytes := node.NumSectors * cfg.SectorSize
		if pos >= nodeStart+nodeBytes {
			if node.Next == common.NoSector {
				return written, common.EINVAL
			}
			next := newFileHeader(cfg.NumDirect)
			if err := next.FetchFrom(disk, node.Next, cfg); err != common.OK {
				return written, err
			}
			nodeStart += nodeBytes
			node = next
			continue
		}
		localOff := pos - nodeStart
		sector := node.DataSectors[localOff/cfg.SectorSize]
		sectorOff := localOff % cfg.SectorSize

		buf := make([]byte, cfg.SectorSize)
		if sectorOff != 0 || len(p) < cfg.SectorSize {
			if err := disk.ReadSector(sector, buf); err != common.OK {
				return written, err
			}
		}
		n := copy(buf[sectorOff:], p)
		if err := disk.WriteSector(sector, buf); err != common.OK {
			return written, err
		}
		written += n
		pos += n
		p = p[n:]
	}
	return written, common.OK
}

// growTo extends the header chain rooted at f.hdr so it can address
// newLength bytes, allocating new continuation headers as needed. Every
// intermediate header touched here is written back to disk and then
// dropped — in the original C++, these were heap objects explicitly
// deleted once fully allocated, keeping only the newest tail header
// alive for the rest of the call (spec §9). Go's garbage collector makes
// that deletion implicit: once this function returns, only f.hdr (the
// root, at f.sector) remains reachable from the handle, exactly
// preserving the "intermediate headers are flushed, not retained"
// invariant without an explicit free.
//
// Any sector allocated here is reserved against f.fs.freeMap under
// freeLock for the whole call, the same critical section Create/
// CreateDir/Remove already use, and the updated bitmap is persisted to
// disk before returning (spec.md:99: Write "allocat[es] additional
// blocks as needed and persists both bitmap and header"). On any
// allocation failure mid-stream, every sector reserved but not yet
// committed into a written-back header is released back to the map
// before returning, so the in-memory bitmap never drifts from what is
// still actually on disk.
func (f *File) growTo(self *threads.Thread, newLength int) common.Err_t {
	cfg := f.fs.cfg
	disk := f.fs.disk
	free := f.fs.freeMap

	tail, tailSector, totalSectors, err := f.chainTail()
	if err != common.OK {
		return err
	}

	extra := divRoundUp(newLength, cfg.SectorSize) - totalSectors
	if extra > 0 {
		f.fs.freeLock.Acquire(self)
		defer f.fs.freeLock.Release(self)

		room := len(tail.DataSectors) - tail.NumSectors
		take := extra
		if take > room {
			take = room
		}
		if free.NumClear() < take {
			return common.ENOSPC
		}
		for i := 0; i < take; i++ {
			tail.DataSectors[tail.NumSectors] = free.Find()
			tail.NumSectors++
		}
		extra -= take

		// roomTaken counts the sectors just appended to tail.DataSectors
		// above that have not yet been written back to disk. Once tail's
		// own WriteBack below succeeds, those sectors are committed and
		// roomTaken is reset to zero; until then, a failure rolls them
		// back out of tail and out of the bitmap.
		roomTaken := take
		releaseRoom := func() {
			for i := 0; i < roomTaken; i++ {
				n := tail.NumSectors - 1
				free.Clear(tail.DataSectors[n])
				tail.NumSectors = n
			}
		}

		for extra > 0 {
			newSector := free.Find()
			if newSector == common.NoSector {
				releaseRoom()
				return common.ENOSPC
			}
			node := newFileHeader(cfg.NumDirect)
			take := extra
			if take > cfg.NumDirect {
				take = cfg.NumDirect
			}
			if free.NumClear() < take {
				free.Clear(newSector)
				releaseRoom()
				return common.ENOSPC
			}
			reserved := make([]common.Sector, take)
			for i := 0; i < take; i++ {
				reserved[i] = free.Find()
				node.DataSectors[i] = reserved[i]
			}
			node.NumSectors = take
			node.Next = common.NoSector
			if err := node.WriteBack(disk, newSector, cfg); err != common.OK {
				for _, s := range reserved {
					free.Clear(s)
				}
				free.Clear(newSector)
				releaseRoom()
				return err
			}

			tail.Next = newSector
			if err := tail.WriteBack(disk, tailSector, cfg); err != common.OK {
				for _, s := range reserved {
					free.Clear(s)
				}
				free.Clear(newSector)
				releaseRoom()
				return err
			}
			roomTaken = 0

			tail, tailSector = node, newSector
			extra -= take
		}

		if err := f.fs.persistFreeMapLocked(self); err != common.OK {
			return err
		}
	}

	if tailSector != f.sector {
		if err := tail.WriteBack(disk, tailSector, cfg); err != common.OK {
			return err
		}
	}
	f.hdr.NumBytes = newLength
	return f.hdr.WriteBack(disk, f.sector, cfg)
}

// chainTail walks the header chain rooted at f.hdr, returning the last
// node, its sector, and the total sectors already allocated across the
// whole chain.
func (f *File) chainTail() (*FileHeader, common.Sector, int, common.Err_t) {
	cfg := f.fs.cfg
	disk := f.fs.disk

	node := f.hdr
	sector := f.sector
	total := node.NumSectors
	for node.Next != common.NoSector {
		next := newFileHeader(cfg.NumDirect)
		if err := next.FetchFrom(disk, node.Next, cfg); err != common.OK {
			return nil, common.NoSector, 0, err
		}
		sector = node.Next
		node = next
		total += node.NumSectors
	}
	return node, sector, total, common.OK
}

// Close releases this handle's reference. When the reference count
// drops to zero and a Remove is pending on this file, it wakes the
// remover via its registered channel (spec §4.4 scenario S4).
func (f *File) Close(self *threads.Thread) {
	f.entry.mu.Lock()
	f.entry.count--
	count := f.entry.count
	removing := f.entry.removing
	removerSpace := f.entry.removerSpace
	f.entry.mu.Unlock()

	if count == 0 && removing {
		f.fs.removers.channelFor(removerSpace).Send(self, 0)
	}
}
