package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/machine"
)

const testPageSize = 16

// fixedTranslator misses every vpn until resolved is true, then maps every
// vpn to frame 0, modeling a single on-demand page fault.
type fixedTranslator struct {
	resolved bool
	readOnly bool
	used     []int
	dirty    []int
}

func (f *fixedTranslator) Translate(vpn int) (common.Frame, bool, bool) {
	if !f.resolved {
		return common.NoFrame, false, false
	}
	return common.Frame(0), true, f.readOnly
}

func (f *fixedTranslator) MarkUsed(vpn int)  { f.used = append(f.used, vpn) }
func (f *fixedTranslator) MarkDirty(vpn int) { f.dirty = append(f.dirty, vpn) }

func TestReadMemFaultsThenRetries(t *testing.T) {
	tr := &fixedTranslator{}
	s := New(NewPhysMem(2, testPageSize), tr)

	faulted := false
	s.SetHandler(machine.PageFaultException, func(cpu machine.CPU) {
		faulted = true
		tr.resolved = true
	})

	v, ok := s.ReadMem(0, 4)
	require.True(t, ok)
	assert.True(t, faulted)
	assert.Equal(t, uint32(0), v)
	assert.Contains(t, tr.used, 0)
}

func TestWriteMemRejectsReadOnlyPage(t *testing.T) {
	tr := &fixedTranslator{resolved: true, readOnly: true}
	s := New(NewPhysMem(1, testPageSize), tr)

	var gotReadOnly bool
	s.SetHandler(machine.ReadOnlyException, func(cpu machine.CPU) { gotReadOnly = true })

	ok := s.WriteMem(0, 4, 42)
	assert.False(t, ok)
	assert.True(t, gotReadOnly)
	assert.Empty(t, tr.dirty)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	tr := &fixedTranslator{resolved: true}
	s := New(NewPhysMem(1, testPageSize), tr)

	require.True(t, s.WriteMem(4, 4, 0xdeadbeef))
	v, ok := s.ReadMem(4, 4)
	require.True(t, ok)
	assert.Equal(t, uint32(0xdeadbeef), v)
	assert.Contains(t, tr.dirty, 0)
}

func TestPhysMemSharedAcrossTwoSimulators(t *testing.T) {
	mem := NewPhysMem(2, testPageSize)
	tr1 := &fixedTranslator{resolved: true}
	tr2 := &fixedTranslator{resolved: true}
	s1 := New(mem, tr1)
	s2 := New(mem, tr2)

	require.True(t, s1.WriteMem(0, 1, 0x7f))
	assert.Equal(t, byte(0x7f), mem.FrameBytes(common.Frame(0))[0])

	v, ok := s2.ReadMem(0, 1)
	require.True(t, ok)
	assert.Equal(t, uint32(0x7f), v)
}

func TestRunHaltsOnHaltInstruction(t *testing.T) {
	tr := &fixedTranslator{resolved: true}
	s := New(NewPhysMem(1, testPageSize), tr)

	halt := uint32(opHalt) << 24
	require.True(t, s.WriteMem(0, 4, halt))
	s.WriteRegister(machine.RegPC, 0)

	s.Run()
	assert.False(t, s.running)
}

func TestRunDispatchesSyscall(t *testing.T) {
	tr := &fixedTranslator{resolved: true}
	s := New(NewPhysMem(1, testPageSize), tr)

	syscall := uint32(opSyscall) << 24
	require.True(t, s.WriteMem(0, 4, syscall))
	s.WriteRegister(machine.RegPC, 0)
	s.WriteRegister(machine.RegNextPC, 4)

	called := false
	s.SetHandler(machine.SyscallException, func(cpu machine.CPU) {
		called = true
		machine.AdvancePC(cpu)
		cpu.(*Simulator).Stop()
	})

	s.Run()
	assert.True(t, called)
	assert.Equal(t, uint32(4), s.ReadRegister(machine.RegPC))
}
