// Package loader implements spec.md §6's executable format reader: a
// fixed NOFF-style header (magic, code segment, initialized-data
// segment, uninitialized-data size) read directly from a host file
// named by the kernel's -x flag, grounded in original_source/machine/
// noff.h via _INDEX.md.
package loader

import (
	"encoding/binary"
	"os"

	"github.com/pablos123/paldos/internal/common"
)

// noffMagic identifies a paldos user-program binary.
const noffMagic = 0x456789AB

const headerSize = 4 + 3*12

type segment struct {
	virtualAddr int32
	inFileAddr  int32
	size        int32
}

// Executable is a parsed, open user-program binary. It satisfies
// internal/vm's ExecFile port so an AddrSpace can demand-load directly
// from it.
type Executable struct {
	file                       *os.File
	code, initData, uninitData segment
}

// Open reads and validates path's header.
func Open(path string) (*Executable, common.Err_t) {
	f, err := os.Open(path)
	if err != nil {
		return nil, common.ENOENT
	}
	buf := make([]byte, headerSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		f.Close()
		return nil, common.EFAULT
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != noffMagic {
		f.Close()
		return nil, common.EINVAL
	}
	return &Executable{
		file:       f,
		code:       decodeSegment(buf[4:16]),
		initData:   decodeSegment(buf[16:28]),
		uninitData: decodeSegment(buf[28:40]),
	}, common.OK
}

func decodeSegment(b []byte) segment {
	return segment{
		virtualAddr: int32(binary.LittleEndian.Uint32(b[0:4])),
		inFileAddr:  int32(binary.LittleEndian.Uint32(b[4:8])),
		size:        int32(binary.LittleEndian.Uint32(b[8:12])),
	}
}

// Close releases the backing host file.
func (e *Executable) Close() error { return e.file.Close() }

// GetSize returns the program's total footprint: code + initialized +
// uninitialized data, in bytes.
func (e *Executable) GetSize() int {
	return int(e.code.size + e.initData.size + e.uninitData.size)
}

func (e *Executable) CodeSize() int       { return int(e.code.size) }
func (e *Executable) CodeAddr() int       { return int(e.code.virtualAddr) }
func (e *Executable) InitDataSize() int   { return int(e.initData.size) }
func (e *Executable) InitDataAddr() int   { return int(e.initData.virtualAddr) }
func (e *Executable) UninitDataSize() int { return int(e.uninitData.size) }

// ReadCodeBlock reads len(buf) bytes of the code segment starting at
// offset (relative to the segment's own start), zero-filling any part of
// buf past the segment's end.
func (e *Executable) ReadCodeBlock(buf []byte, offset int) (int, common.Err_t) {
	return e.readSegment(e.code, buf, offset)
}

// ReadDataBlock is ReadCodeBlock for the initialized-data segment.
func (e *Executable) ReadDataBlock(buf []byte, offset int) (int, common.Err_t) {
	return e.readSegment(e.initData, buf, offset)
}

func (e *Executable) readSegment(seg segment, buf []byte, offset int) (int, common.Err_t) {
	for i := range buf {
		buf[i] = 0
	}
	if offset < 0 || offset >= int(seg.size) {
		return 0, common.OK
	}
	n := len(buf)
	if offset+n > int(seg.size) {
		n = int(seg.size) - offset
	}
	read, err := e.file.ReadAt(buf[:n], int64(seg.inFileAddr)+int64(offset))
	if err != nil && read == 0 {
		return 0, common.EFAULT
	}
	return read, common.OK
}
