package fs

import "github.com/pablos123/paldos/internal/common"

// Bitmap is the free-sector map (spec §4.4), persisted as the ordinary
// file rooted at common.BitmapSector. Grounded in original_source/
// filesys/file_system.cc's freeMapFile/freeMap pair — NachOS's own
// BitMap class was not in the retrieval pack, so the packed encoding
// below is a direct byte-level design rather than a literal port.
type Bitmap struct {
	bits []bool
}

// NewBitmap returns an all-clear bitmap sized for numSectors.
func NewBitmap(numSectors int) *Bitmap {
	return &Bitmap{bits: make([]bool, numSectors)}
}

// Mark claims sector unconditionally, used during MkFS to reserve the
// fixed bitmap/root-directory sectors.
func (b *Bitmap) Mark(sector common.Sector) {
	b.bits[sector] = true
}

// Clear frees sector.
func (b *Bitmap) Clear(sector common.Sector) {
	b.bits[sector] = false
}

// Test reports whether sector is in use.
func (b *Bitmap) Test(sector common.Sector) bool {
	return b.bits[sector]
}

// Find claims and returns the lowest-numbered clear sector, or NoSector
// if the disk is full.
func (b *Bitmap) Find() common.Sector {
	for i, used := range b.bits {
		if !used {
			b.bits[i] = true
			return common.Sector(i)
		}
	}
	return common.NoSector
}

// NumClear reports how many sectors remain free.
func (b *Bitmap) NumClear() int {
	n := 0
	for _, used := range b.bits {
		if !used {
			n++
		}
	}
	return n
}

// Encode packs the bitmap 8 bits to a byte for on-disk storage.
func (b *Bitmap) Encode() []byte {
	out := make([]byte, (len(b.bits)+7)/8)
	for i, used := range b.bits {
		if used {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// Decode restores bitmap state from Encode's packed form, leaving any
// bit beyond buf's capacity clear.
func (b *Bitmap) Decode(buf []byte) {
	for i := range b.bits {
		byteIdx, bit := i/8, uint(i%8)
		b.bits[i] = byteIdx < len(buf) && buf[byteIdx]&(1<<bit) != 0
	}
}
