// Package fs implements spec.md §4.4: the free-sector bitmap, multi-header
// file chains, the hierarchical directory, and the open-file protocol,
// layered on a raw sector-addressed disk.
//
// Grounded directly in original_source/filesys/{file_system,open_file,
// directory}.cc and raw_file_header.hh — this is the most literal
// translation in the repository, since the spec's file system is NachOS's.
// The teacher contributes the wrapping idiom: a single top-level MkFS
// entry point called from main, matching biscuit's `rf := fs.MkFS()`.
package fs

import "github.com/pablos123/paldos/internal/common"

// Disk is the sector-addressed block device internal/disk.SynchDisk
// satisfies (spec §6 "Disk device"). Declared here rather than imported,
// so internal/fs stays independent of the external-collaborator layer
// (spec §2: layering).
type Disk interface {
	ReadSector(n common.Sector, buf []byte) common.Err_t
	WriteSector(n common.Sector, buf []byte) common.Err_t
	SectorSize() int
	NumSectors() int
}
