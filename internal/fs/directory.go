package fs

import (
	"encoding/binary"

	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/kconfig"
)

// initialDirEntries is the slot count a freshly created directory file
// starts with, matching NachOS's NumDirEntries build constant.
const initialDirEntries = 10

const dirNameMaxLen = 32
const dirEntrySize = 1 + 1 + 4 + dirNameMaxLen

type dirEntry struct {
	InUse  bool
	IsDir  bool
	Sector common.Sector
	Name   string
}

// Directory is the decoded form of a directory file's contents: a flat
// table of name -> sector entries (spec §4.4; grounded in
// original_source/filesys/directory.cc).
type Directory struct {
	entries []dirEntry
}

func newDirectory(size int) *Directory {
	return &Directory{entries: make([]dirEntry, size)}
}

func (d *Directory) find(name string) (common.Sector, bool) {
	for _, e := range d.entries {
		if e.InUse && e.Name == name {
			return e.Sector, true
		}
	}
	return common.NoSector, false
}

func (d *Directory) findEntry(name string) (*dirEntry, bool) {
	for i := range d.entries {
		if d.entries[i].InUse && d.entries[i].Name == name {
			return &d.entries[i], true
		}
	}
	return nil, false
}

// add inserts name -> sector into the first free slot, growing the table
// by exactly one entry when every slot is in use (spec §9 resolution:
// directories grow one entry at a time and never shrink or compact —
// grounded in directory.cc's Add, which reallocates raw.tableSize+1).
func (d *Directory) add(name string, sector common.Sector, isDir bool) {
	for i := range d.entries {
		if !d.entries[i].InUse {
			d.entries[i] = dirEntry{InUse: true, IsDir: isDir, Sector: sector, Name: name}
			return
		}
	}
	d.entries = append(d.entries, dirEntry{InUse: true, IsDir: isDir, Sector: sector, Name: name})
}

// remove flips the slot's InUse flag. It does not compact the table —
// the slot is a permanent hole until reused by a later add (spec §9).
func (d *Directory) remove(name string) bool {
	e, found := d.findEntry(name)
	if !found {
		return false
	}
	e.InUse = false
	return true
}

func (d *Directory) list() []string {
	var names []string
	for _, e := range d.entries {
		if e.InUse {
			names = append(names, e.Name)
		}
	}
	return names
}

func (d *Directory) encode(cfg kconfig.Config) []byte {
	buf := make([]byte, 4+len(d.entries)*dirEntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(d.entries)))
	off := 4
	for _, e := range d.entries {
		if e.InUse {
			buf[off] = 1
		}
		if e.IsDir {
			buf[off+1] = 1
		}
		binary.LittleEndian.PutUint32(buf[off+2:off+6], uint32(int32(e.Sector)))
		name := []byte(e.Name)
		if len(name) > dirNameMaxLen {
			name = name[:dirNameMaxLen]
		}
		copy(buf[off+6:off+6+dirNameMaxLen], name)
		off += dirEntrySize
	}
	return buf
}

func decodeDirectory(buf []byte) *Directory {
	if len(buf) < 4 {
		return newDirectory(0)
	}
	n := int(binary.LittleEndian.Uint32(buf[0:4]))
	d := newDirectory(n)
	off := 4
	for i := 0; i < n; i++ {
		if off+dirEntrySize > len(buf) {
			break
		}
		sector := common.Sector(int32(binary.LittleEndian.Uint32(buf[off+2 : off+6])))
		name := buf[off+6 : off+6+dirNameMaxLen]
		d.entries[i] = dirEntry{
			InUse:  buf[off] == 1,
			IsDir:  buf[off+1] == 1,
			Sector: sector,
			Name:   string(name[:zeroIndex(name)]),
		}
		off += dirEntrySize
	}
	return d
}

func zeroIndex(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return len(b)
}
