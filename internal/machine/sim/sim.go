// Package sim is internal/machine's one in-process CPU implementation: a
// flat array of physical memory plus a minimal instruction interpreter,
// sufficient to demand-load and fault on the executables internal/loader
// parses (SPEC_FULL.md §6). Grounded in
// other_examples/0a0fadc6_SchawnnDev-awesomeVM__internal-mips-cop0.go for
// exception-cause naming and
// other_examples/0bd36084_smoynes-elsie__internal-cpu-mem.go for the
// shape of a small teaching-CPU memory controller.
package sim

import (
	"encoding/binary"
	"runtime"

	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/klog"
	"github.com/pablos123/paldos/internal/machine"
)

// Opcodes for the tiny instruction set this interpreter executes. This
// is not real MIPS encoding: spec §1 places the instruction set itself
// out of scope for the core, so the simulator only needs to be able to
// exercise loads, stores, and syscalls against the MMU.
const (
	opNop = iota
	opSyscall
	opLoadWord
	opStoreWord
	opHalt
)

// PhysMem is the flat array of physical memory every address space's
// frames are carved from, shared by every Simulator the way real
// physical RAM is shared by every CPU core. One PhysMem is constructed
// at kernel boot (sized numFrames*pageSize) and handed to internal/vm's
// Faulter as its Memory port and to every per-thread Simulator as its
// backing store.
type PhysMem struct {
	bytes    []byte
	pageSize int
}

// NewPhysMem allocates numFrames frames of pageSize bytes each, all
// zeroed.
func NewPhysMem(numFrames, pageSize int) *PhysMem {
	return &PhysMem{bytes: make([]byte, numFrames*pageSize), pageSize: pageSize}
}

// FrameBytes satisfies internal/vm's Memory port.
func (m *PhysMem) FrameBytes(f common.Frame) []byte {
	lo := int(f) * m.pageSize
	return m.bytes[lo : lo+m.pageSize]
}

// Simulator is one thread's virtual CPU: its own register file and TLB
// (spec §5: "the TLB is owned by the running thread"), translating
// through a machine.Translator into shared physical memory. Every
// Simulator in a kernel shares the same PhysMem, mirroring how every
// core of a real multiprocessor shares one physical address space
// (spec.md's own non-goal of multi-core execution means only one
// Simulator runs at a time in practice, but nothing here assumes that).
type Simulator struct {
	regs       [machine.NumRegisters]uint32
	mem        *PhysMem
	translator machine.Translator
	handlers   [8]machine.Handler
	running    bool
}

// New constructs a CPU sharing mem's physical memory, translating
// addresses through t.
func New(mem *PhysMem, t machine.Translator) *Simulator {
	return &Simulator{mem: mem, translator: t}
}

func (s *Simulator) ReadRegister(n int) uint32 { return s.regs[n] }
func (s *Simulator) WriteRegister(n int, v uint32) { s.regs[n] = v }

// SetHandler registers the callback for kind.
func (s *Simulator) SetHandler(kind machine.ExceptionKind, h machine.Handler) {
	s.handlers[kind] = h
}

func (s *Simulator) raise(kind machine.ExceptionKind) {
	if h := s.handlers[kind]; h != nil {
		h(s)
		return
	}
	klog.Fatal("machine", "unhandled exception "+kind.String()+" with no registered handler")
}

// ReadMem translates addr and reads size bytes (1, 2, or 4), retrying
// the translation once after giving the page-fault handler a chance to
// install a mapping.
func (s *Simulator) ReadMem(addr uint32, size int) (uint32, bool) {
	frame, off, _, ok := s.translate(addr)
	if !ok {
		return 0, false
	}
	s.translator.MarkUsed(int(addr) / s.mem.pageSize)
	return decode(s.mem.bytes[int(frame)*s.mem.pageSize+off:], size), true
}

// WriteMem is ReadMem's write counterpart, marking the backing page
// dirty on success.
func (s *Simulator) WriteMem(addr uint32, size int, value uint32) bool {
	frame, off, readOnly, ok := s.translate(addr)
	if !ok {
		return false
	}
	if readOnly {
		s.raise(machine.ReadOnlyException)
		return false
	}
	encode(s.mem.bytes[int(frame)*s.mem.pageSize+off:], size, value)
	s.translator.MarkDirty(int(addr) / s.mem.pageSize)
	return true
}

// translate resolves addr to a physical frame and in-frame offset,
// giving the page-fault handler one chance to install a mapping on a
// TLB miss before giving up.
func (s *Simulator) translate(addr uint32) (common.Frame, int, bool, bool) {
	vpn := int(addr) / s.mem.pageSize
	off := int(addr) % s.mem.pageSize
	frame, ok, readOnly := s.translator.Translate(vpn)
	if !ok {
		s.regs[machine.RegBadVAddr] = addr
		s.raise(machine.PageFaultException)
		frame, ok, readOnly = s.translator.Translate(vpn)
	}
	if !ok {
		return common.NoFrame, 0, false, false
	}
	return frame, off, readOnly, true
}

func decode(b []byte, size int) uint32 {
	switch size {
	case 1:
		return uint32(b[0])
	case 2:
		return uint32(binary.BigEndian.Uint16(b))
	default:
		return binary.BigEndian.Uint32(b)
	}
}

func encode(b []byte, size int, v uint32) {
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.BigEndian.PutUint16(b, uint16(v))
	default:
		binary.BigEndian.PutUint32(b, v)
	}
}

// Stop halts Run's fetch/execute loop; called by a syscall handler
// servicing Halt (spec §4.5 "Halt" syscall).
func (s *Simulator) Stop() { s.running = false }

// Run executes instructions at PC until Stop is called or a fatal
// exception leaves PC untranslatable.
func (s *Simulator) Run() {
	s.running = true
	for s.running {
		word, ok := s.ReadMem(s.regs[machine.RegPC], 4)
		if !ok {
			return
		}
		s.step(word)
	}
}

// step decodes and executes one instruction word. The encoding this
// interpreter uses (not real MIPS, per spec §1's out-of-scope ISA) packs
// the opcode in the top byte; opLoadWord/opStoreWord pack a register (the
// load's destination or the store's source) in the next byte and a 16-bit offset from RegSP in the low
// 16 bits.
func (s *Simulator) step(word uint32) {
	op := word >> 24
	switch op {
	case opNop:
		machine.AdvancePC(s)
	case opSyscall:
		s.raise(machine.SyscallException)
	case opHalt:
		s.Stop()
	case opLoadWord:
		reg := (word >> 16) & 0xFF
		offset := int16(word & 0xFFFF)
		addr := uint32(int32(s.regs[machine.RegSP]) + int32(offset))
		if v, ok := s.ReadMem(addr, 4); ok {
			s.regs[reg] = v
		} else {
			s.raise(machine.AddressErrorException)
		}
		machine.AdvancePC(s)
	case opStoreWord:
		reg := (word >> 16) & 0xFF
		offset := int16(word & 0xFFFF)
		addr := uint32(int32(s.regs[machine.RegSP]) + int32(offset))
		if !s.WriteMem(addr, 4, s.regs[reg]) {
			s.raise(machine.AddressErrorException)
		}
		machine.AdvancePC(s)
	default:
		s.raise(machine.IllegalInstrException)
		machine.AdvancePC(s)
	}
}

// Idle stands in for the host CPU's idle loop; honored as a cooperative
// yield rather than a true busy-wait (SPEC_FULL.md §2).
func (s *Simulator) Idle() {
	runtime.Gosched()
}
