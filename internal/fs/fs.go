package fs

import (
	"sync"

	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/kconfig"
	"github.com/pablos123/paldos/internal/threads"
)

// FileSystem is the kernel's single file-system instance: the free-sector
// bitmap and root directory, each themselves an ordinary file rooted at a
// fixed sector, plus the sector-keyed open-file table and remove
// protocol layered over them (spec §4.4; grounded in original_source/
// filesys/file_system.cc's FileSystem class).
type FileSystem struct {
	disk  Disk
	cfg   kconfig.Config
	sched *threads.Scheduler

	dirLock  *threads.Lock
	freeLock *threads.Lock
	freeMap  *Bitmap

	entriesMu sync.Mutex
	entries   map[common.Sector]*OpenFileEntry

	removers *removerRegistry
}

// MkFS brings up the file system. When format is true, it lays down a
// fresh bitmap and empty root directory (spec §6: the -f CLI flag);
// otherwise it loads the existing bitmap from disk. boot is the kernel
// thread performing this one-time bootstrap, used purely for the locks
// taken along the way.
func MkFS(disk Disk, cfg kconfig.Config, sched *threads.Scheduler, boot *threads.Thread, format bool) (*FileSystem, common.Err_t) {
	fsys := &FileSystem{
		disk:     disk,
		cfg:      cfg,
		sched:    sched,
		dirLock:  threads.NewLock(sched),
		freeLock: threads.NewLock(sched),
		entries:  map[common.Sector]*OpenFileEntry{},
		removers: newRemoverRegistry(sched),
	}

	if !format {
		free := NewBitmap(cfg.NumSectors)
		f, err := fsys.openAt(common.BitmapSector)
		if err != common.OK {
			return nil, err
		}
		buf := make([]byte, f.Length())
		if _, err := f.ReadAt(buf, 0); err != common.OK {
			f.Close(boot)
			return nil, err
		}
		f.Close(boot)
		free.Decode(buf)
		fsys.freeMap = free
		return fsys, common.OK
	}

	free := NewBitmap(cfg.NumSectors)
	free.Mark(common.BitmapSector)
	free.Mark(common.RootDirSector)
	fsys.freeMap = free

	bitmapHdr := newFileHeader(cfg.NumDirect)
	bitmapBytes := free.Encode()
	if needsMore, err := bitmapHdr.Allocate(free, len(bitmapBytes), cfg); err != common.OK || needsMore {
		return nil, common.ENOSPC
	}
	if err := bitmapHdr.WriteBack(disk, common.BitmapSector, cfg); err != common.OK {
		return nil, err
	}

	dir := newDirectory(initialDirEntries)
	dirBytes := dir.encode(cfg)
	dirHdr := newFileHeader(cfg.NumDirect)
	if needsMore, err := dirHdr.Allocate(free, len(dirBytes), cfg); err != common.OK || needsMore {
		return nil, common.ENOSPC
	}
	if err := dirHdr.WriteBack(disk, common.RootDirSector, cfg); err != common.OK {
		return nil, err
	}

	if err := writeHeaderContent(disk, bitmapHdr, bitmapBytes, cfg); err != common.OK {
		return nil, err
	}
	if err := writeHeaderContent(disk, dirHdr, dirBytes, cfg); err != common.OK {
		return nil, err
	}

	// Re-encode and persist once more now that every sector consumed by
	// the bitmap/directory headers themselves has been marked used — the
	// bitmapBytes snapshot above was taken before that bookkeeping.
	fsys.freeLock.Acquire(boot)
	err := fsys.persistFreeMapLocked(boot)
	fsys.freeLock.Release(boot)
	if err != common.OK {
		return nil, err
	}

	return fsys, common.OK
}

// writeHeaderContent writes data into a single, just-allocated,
// not-yet-chained header's direct sectors. Used only during MkFS
// formatting, where the bitmap and root directory are guaranteed small
// enough to fit one header.
func writeHeaderContent(disk Disk, hdr *FileHeader, data []byte, cfg kconfig.Config) common.Err_t {
	for i := 0; i < hdr.NumSectors; i++ {
		buf := make([]byte, cfg.SectorSize)
		start := i * cfg.SectorSize
		if start < len(data) {
			copy(buf, data[start:])
		}
		if err := disk.WriteSector(hdr.DataSectors[i], buf); err != common.OK {
			return err
		}
	}
	return common.OK
}

func (fsys *FileSystem) entryFor(sector common.Sector) *OpenFileEntry {
	fsys.entriesMu.Lock()
	defer fsys.entriesMu.Unlock()
	e, ok := fsys.entries[sector]
	if !ok {
		e = &OpenFileEntry{sched: fsys.sched}
		fsys.entries[sector] = e
	}
	return e
}

func (fsys *FileSystem) openAt(sector common.Sector) (*File, common.Err_t) {
	entry := fsys.entryFor(sector)
	entry.mu.Lock()
	if entry.removing {
		entry.mu.Unlock()
		return nil, common.ENOENT
	}
	entry.count++
	entry.mu.Unlock()

	hdr := newFileHeader(fsys.cfg.NumDirect)
	if err := hdr.FetchFrom(fsys.disk, sector, fsys.cfg); err != common.OK {
		return nil, err
	}
	return &File{fs: fsys, sector: sector, hdr: hdr, entry: entry}, common.OK
}

func (fsys *FileSystem) loadDirectoryLocked(self *threads.Thread) (*Directory, common.Err_t) {
	f, err := fsys.openAt(common.RootDirSector)
	if err != common.OK {
		return nil, err
	}
	buf := make([]byte, f.Length())
	_, err = f.ReadAt(buf, 0)
	f.Close(self)
	if err != common.OK {
		return nil, err
	}
	return decodeDirectory(buf), common.OK
}

func (fsys *FileSystem) persistDirectoryLocked(self *threads.Thread, dir *Directory) common.Err_t {
	f, err := fsys.openAt(common.RootDirSector)
	if err != common.OK {
		return err
	}
	err = f.Overwrite(self, dir.encode(fsys.cfg))
	f.Close(self)
	return err
}

func (fsys *FileSystem) persistFreeMapLocked(self *threads.Thread) common.Err_t {
	f, err := fsys.openAt(common.BitmapSector)
	if err != common.OK {
		return err
	}
	err = f.Overwrite(self, fsys.freeMap.Encode())
	f.Close(self)
	return err
}

// allocateChain allocates a header chain able to hold numBytes, writing
// every link to disk and returning only the root sector (spec §9). No
// header object in the chain is kept in memory past this call except
// transiently while building it.
func (fsys *FileSystem) allocateChain(numBytes int) (common.Sector, common.Err_t) {
	sector := fsys.freeMap.Find()
	if sector == common.NoSector {
		return common.NoSector, common.ENOSPC
	}
	hdr := newFileHeader(fsys.cfg.NumDirect)
	needsMore, err := hdr.Allocate(fsys.freeMap, numBytes, fsys.cfg)
	if err != common.OK {
		fsys.freeMap.Clear(sector)
		return common.NoSector, err
	}
	if needsMore {
		remain := numBytes - hdr.NumSectors*fsys.cfg.SectorSize
		next, cerr := fsys.allocateChain(remain)
		if cerr != common.OK {
			hdr.Deallocate(fsys.freeMap)
			fsys.freeMap.Clear(sector)
			return common.NoSector, cerr
		}
		hdr.Next = next
	}
	if err := hdr.WriteBack(fsys.disk, sector, fsys.cfg); err != common.OK {
		return common.NoSector, err
	}
	return sector, common.OK
}

// deallocateChain walks hdr's chain, freeing every data sector and every
// header sector after the root (the root's own sector is freed by the
// caller, which already knows it).
func (fsys *FileSystem) deallocateChain(hdr *FileHeader) {
	for {
		hdr.Deallocate(fsys.freeMap)
		if hdr.Next == common.NoSector {
			return
		}
		next := newFileHeader(fsys.cfg.NumDirect)
		if err := next.FetchFrom(fsys.disk, hdr.Next, fsys.cfg); err != common.OK {
			return
		}
		fsys.freeMap.Clear(hdr.Next)
		hdr = next
	}
}

// Create makes a new zero-or-more-byte file named name in the root
// directory (spec §4.4).
func (fsys *FileSystem) Create(self *threads.Thread, name string, initialSize int) common.Err_t {
	fsys.dirLock.Acquire(self)
	defer fsys.dirLock.Release(self)

	dir, err := fsys.loadDirectoryLocked(self)
	if err != common.OK {
		return err
	}
	if _, found := dir.find(name); found {
		return common.EEXIST
	}

	fsys.freeLock.Acquire(self)
	sector, err := fsys.allocateChain(initialSize)
	if err == common.OK {
		err = fsys.persistFreeMapLocked(self)
	}
	fsys.freeLock.Release(self)
	if err != common.OK {
		return err
	}

	dir.add(name, sector, false)
	return fsys.persistDirectoryLocked(self, dir)
}

// CreateDir makes a new empty subdirectory named name in the root
// directory (spec §4.4 supplement, grounded in file_system.cc's
// CreateDir). Subdirectories are plain files whose content decodes as a
// Directory; paldos does not implement ChangeDir's full path-walking, so
// every subdirectory's own contents are reachable only via Open+decode,
// not traversed automatically by Create/Open.
func (fsys *FileSystem) CreateDir(self *threads.Thread, name string) common.Err_t {
	fsys.dirLock.Acquire(self)
	defer fsys.dirLock.Release(self)

	dir, err := fsys.loadDirectoryLocked(self)
	if err != common.OK {
		return err
	}
	if _, found := dir.find(name); found {
		return common.EEXIST
	}

	blank := newDirectory(initialDirEntries).encode(fsys.cfg)

	fsys.freeLock.Acquire(self)
	sector, err := fsys.allocateChain(len(blank))
	if err == common.OK {
		err = fsys.persistFreeMapLocked(self)
	}
	fsys.freeLock.Release(self)
	if err != common.OK {
		return err
	}

	f, err := fsys.openAt(sector)
	if err != common.OK {
		return err
	}
	if err := f.Overwrite(self, blank); err != common.OK {
		f.Close(self)
		return err
	}
	f.Close(self)

	dir.add(name, sector, true)
	return fsys.persistDirectoryLocked(self, dir)
}

// Open returns a handle to the file named name, or ENOENT if it does not
// exist or is in the process of being removed.
func (fsys *FileSystem) Open(self *threads.Thread, name string) (*File, common.Err_t) {
	fsys.dirLock.Acquire(self)
	dir, err := fsys.loadDirectoryLocked(self)
	fsys.dirLock.Release(self)
	if err != common.OK {
		return nil, err
	}
	sector, found := dir.find(name)
	if !found {
		return nil, common.ENOENT
	}
	return fsys.openAt(sector)
}

// Remove deletes the file named name from the directory immediately, but
// only reclaims its sectors once every open handle has closed (spec §4.4
// scenario S4: remove-while-open). If no handle is currently open, the
// reclaim happens synchronously.
func (fsys *FileSystem) Remove(self *threads.Thread, name string) common.Err_t {
	fsys.dirLock.Acquire(self)
	dir, err := fsys.loadDirectoryLocked(self)
	if err != common.OK {
		fsys.dirLock.Release(self)
		return err
	}
	sector, found := dir.find(name)
	if !found {
		fsys.dirLock.Release(self)
		return common.ENOENT
	}

	entry := fsys.entryFor(sector)
	entry.mu.Lock()
	if entry.removing {
		entry.mu.Unlock()
		fsys.dirLock.Release(self)
		return common.EBUSY
	}
	stillOpen := entry.count > 0
	if stillOpen {
		entry.removing = true
		entry.removerSpace = self.SpaceId()
	}
	entry.mu.Unlock()

	dir.remove(name)
	if err := fsys.persistDirectoryLocked(self, dir); err != common.OK {
		fsys.dirLock.Release(self)
		return err
	}
	fsys.dirLock.Release(self)

	if stillOpen {
		fsys.removers.channelFor(self.SpaceId()).Receive(self)
	}

	hdr := newFileHeader(fsys.cfg.NumDirect)
	if err := hdr.FetchFrom(fsys.disk, sector, fsys.cfg); err != common.OK {
		return err
	}

	fsys.freeLock.Acquire(self)
	fsys.deallocateChain(hdr)
	fsys.freeMap.Clear(sector)
	err = fsys.persistFreeMapLocked(self)
	fsys.freeLock.Release(self)

	fsys.entriesMu.Lock()
	delete(fsys.entries, sector)
	fsys.entriesMu.Unlock()

	return err
}

// List returns the names of every live entry in the root directory.
func (fsys *FileSystem) List(self *threads.Thread) ([]string, common.Err_t) {
	fsys.dirLock.Acquire(self)
	defer fsys.dirLock.Release(self)
	dir, err := fsys.loadDirectoryLocked(self)
	if err != common.OK {
		return nil, err
	}
	return dir.list(), common.OK
}
