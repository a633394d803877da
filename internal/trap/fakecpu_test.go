package trap

import "github.com/pablos123/paldos/internal/machine"

// fakeCPU is a minimal machine.CPU test double: flat byte-addressed
// memory with no MMU translation (every address maps directly), used to
// exercise args.go's copy-in/copy-out helpers and syscalls.go's
// dispatch without internal/machine/sim's simulator in the loop.
type fakeCPU struct {
	regs [machine.NumRegisters]uint32
	mem  []byte
}

func newFakeCPU(memSize int) *fakeCPU {
	return &fakeCPU{mem: make([]byte, memSize)}
}

func (c *fakeCPU) ReadRegister(n int) uint32     { return c.regs[n] }
func (c *fakeCPU) WriteRegister(n int, v uint32) { c.regs[n] = v }

func (c *fakeCPU) ReadMem(addr uint32, size int) (uint32, bool) {
	if int(addr)+size > len(c.mem) {
		return 0, false
	}
	var v uint32
	for i := 0; i < size; i++ {
		v = v<<8 | uint32(c.mem[int(addr)+i])
	}
	return v, true
}

func (c *fakeCPU) WriteMem(addr uint32, size int, value uint32) bool {
	if int(addr)+size > len(c.mem) {
		return false
	}
	for i := size - 1; i >= 0; i-- {
		c.mem[int(addr)+i] = byte(value)
		value >>= 8
	}
	return true
}

func (c *fakeCPU) Run()  {}
func (c *fakeCPU) Stop() {}
func (c *fakeCPU) Idle() {}

func (c *fakeCPU) SetHandler(kind machine.ExceptionKind, h machine.Handler) {}
