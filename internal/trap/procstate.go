package trap

import (
	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/fs"
	"github.com/pablos123/paldos/internal/threads"
)

// stdin/stdout are the two fixed descriptors every process starts with,
// backed by the console rather than a file-system entry (spec §4.5
// supplement, console_syscalls.go).
const (
	fdStdin  = 0
	fdStdout = 1
	firstFD  = 2
)

// procState is a thread's per-process table of open files (spec.md §3
// "Thread... a per-process table of open files"), stored opaquely on
// the threads.Thread via SetOpenFiles/OpenFiles since internal/threads
// must not import internal/fs (spec §2 layering).
type procState struct {
	files map[int]*fs.File
	nextFD int
}

func newProcState() *procState {
	return &procState{files: map[int]*fs.File{}, nextFD: firstFD}
}

// procStateFor type-asserts self's open-file table, lazily creating one
// on first use (the bootstrap thread never had Exec run for it).
func procStateFor(self *threads.Thread) *procState {
	if ps, ok := self.OpenFiles().(*procState); ok {
		return ps
	}
	ps := newProcState()
	self.SetOpenFiles(ps)
	return ps
}

func (ps *procState) add(f *fs.File) int {
	fd := ps.nextFD
	ps.nextFD++
	ps.files[fd] = f
	return fd
}

func (ps *procState) get(fd int) (*fs.File, common.Err_t) {
	f, ok := ps.files[fd]
	if !ok {
		return nil, common.EINVAL
	}
	return f, common.OK
}

func (ps *procState) remove(fd int) (*fs.File, common.Err_t) {
	f, err := ps.get(fd)
	if err != common.OK {
		return nil, err
	}
	delete(ps.files, fd)
	return f, common.OK
}
