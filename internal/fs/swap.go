package fs

import (
	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/threads"
)

// SwapHandle adapts a File to internal/vm's SwapFile port, whose Close
// takes no *threads.Thread. A swap file is privately owned by exactly
// one address space and never shared across threads (spec §3), so its
// lifetime can be tied to the single thread that opened it rather than
// needing a self on every call.
type SwapHandle struct {
	f    *File
	self *threads.Thread
}

// NewSwapHandle wraps f, an already-open swap file, for use as a
// vm.SwapFile.
func NewSwapHandle(f *File, self *threads.Thread) *SwapHandle {
	return &SwapHandle{f: f, self: self}
}

func (s *SwapHandle) ReadAt(buf []byte, offset int) (int, common.Err_t) {
	return s.f.ReadAt(buf, offset)
}

func (s *SwapHandle) WriteAt(buf []byte, offset int) (int, common.Err_t) {
	return s.f.WriteAt(s.self, buf, offset)
}

func (s *SwapHandle) Close() {
	s.f.Close(s.self)
}
