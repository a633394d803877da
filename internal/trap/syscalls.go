// Package trap is the topmost layer spec.md §2 describes: it is the
// only package that imports internal/machine, internal/vm, internal/fs,
// and internal/threads together, translating the CPU's SyscallException
// into calls against the scheduler, address-space, and file-system
// layers beneath it (spec §4.5 "Trap dispatch").
package trap

import (
	"strconv"
	"sync"

	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/console"
	"github.com/pablos123/paldos/internal/fs"
	"github.com/pablos123/paldos/internal/kconfig"
	"github.com/pablos123/paldos/internal/klog"
	"github.com/pablos123/paldos/internal/loader"
	"github.com/pablos123/paldos/internal/machine"
	"github.com/pablos123/paldos/internal/machine/sim"
	"github.com/pablos123/paldos/internal/threads"
	"github.com/pablos123/paldos/internal/vm"
)

// Syscall IDs, matching the operation names spec §4.5 lists.
const (
	SysHalt = iota
	SysExit
	SysExec
	SysJoin
	SysCreate
	SysRemove
	SysOpen
	SysClose
	SysRead
	SysWrite
	SysLsDir
	SysCd
)

// Dispatcher bundles the kernel-wide singletons a syscall handler needs:
// the scheduler, file system, process table, frame table, and replacement
// policy all live below trap (spec §2), and a Dispatcher is the one place
// that is allowed to reach into all of them at once.
type Dispatcher struct {
	Sched     *threads.Scheduler
	Fsys      *fs.FileSystem
	Processes *vm.ProcessTable
	Frames    *vm.FrameTable
	Replacer  *vm.Replacer
	Cfg       kconfig.Config
	Faulter   *vm.Faulter
	Console   *console.SynchConsole
	Mem       *sim.PhysMem

	childrenMu sync.Mutex
	children   map[common.SpaceId]*threads.Thread // spec §4.5 Join: resolves Exec's returned SpaceId back to the forked Thread.
}

// Install wires the handlers above onto cpu for a single thread's
// simulator; called once per Simulator constructed. tr is the same Translator cpu was constructed
// with, captured here so the page-fault handler can refill it directly.
func (d *Dispatcher) Install(cpu machine.CPU, self *threads.Thread, tr *tlbTranslator) {
	cpu.SetHandler(machine.SyscallException, func(cpu machine.CPU) { d.onSyscall(cpu, self) })
	cpu.SetHandler(machine.PageFaultException, func(cpu machine.CPU) { d.onPageFault(cpu, self, tr) })
	fatal := func(kind machine.ExceptionKind) machine.Handler {
		return func(cpu machine.CPU) {
			// spec §7: only an out-of-range page fault and a syscall
			// argument error are recoverable; every other exception
			// kind is a fatal program error.
			klog.Fatal("trap", "fatal exception "+kind.String()+" in thread "+self.Name())
		}
	}
	cpu.SetHandler(machine.ReadOnlyException, fatal(machine.ReadOnlyException))
	cpu.SetHandler(machine.BusErrorException, fatal(machine.BusErrorException))
	cpu.SetHandler(machine.AddressErrorException, fatal(machine.AddressErrorException))
	cpu.SetHandler(machine.OverflowException, fatal(machine.OverflowException))
	cpu.SetHandler(machine.IllegalInstrException, fatal(machine.IllegalInstrException))
}

// onSyscall reads the syscall id from register 2 and arguments from
// registers 4-7, dispatches, writes the result into register 2, then
// advances the program counter (spec §4.5).
func (d *Dispatcher) onSyscall(cpu machine.CPU, self *threads.Thread) {
	id := cpu.ReadRegister(machine.RegSyscallID)
	a0 := cpu.ReadRegister(machine.RegArg0)
	a1 := cpu.ReadRegister(machine.RegArg1)
	a2 := cpu.ReadRegister(machine.RegArg2)
	a3 := cpu.ReadRegister(machine.RegArg3)

	var result uint32
	switch id {
	case SysHalt:
		cpu.Stop()
	case SysExit:
		d.sysExit(self, int(int32(a0)))
		return // Finish calls runtime.Goexit; never reached, kept for clarity.
	case SysExec:
		result = d.sysExec(cpu, self, a0, a1)
	case SysJoin:
		result = uint32(int32(d.sysJoin(self, int(a0))))
	case SysCreate:
		result = uint32(int32(d.sysCreate(cpu, self, a0, int(a1))))
	case SysRemove:
		result = uint32(int32(d.sysRemove(cpu, self, a0)))
	case SysOpen:
		result = uint32(int32(d.sysOpen(cpu, self, a0)))
	case SysClose:
		result = uint32(int32(d.sysClose(self, int(a0))))
	case SysRead:
		result = uint32(int32(d.sysRead(cpu, self, int(a0), a1, int(a2))))
	case SysWrite:
		result = uint32(int32(d.sysWrite(cpu, self, int(a0), a1, int(a2))))
	case SysLsDir:
		result = uint32(int32(d.sysLsDir(cpu, self, a0, int(a1))))
	case SysCd:
		result = uint32(int32(d.sysCd(cpu, self, a0)))
	default:
		result = uint32(int32(common.EINVAL))
	}
	_ = a3

	cpu.WriteRegister(machine.RegSyscallID, result)
	machine.AdvancePC(cpu)
}

func (d *Dispatcher) sysExit(self *threads.Thread, status int) {
	if as, ok := self.AddrSpace().(*vm.AddrSpace); ok {
		as.Destroy(d.Frames, d.Mem)
		d.Processes.Unregister(as.SpaceId())
	}
	self.Finish(status)
}

// sysExec implements spec §4.5's Exec: load the executable named at user
// address a0, construct a fresh address space backed by a dedicated swap
// file (spec §3 "owned swap file"), fork a thread to run it, and return
// the new thread's SpaceId as the child's process handle. argvAddr (a1)
// may be zero for no arguments.
func (d *Dispatcher) sysExec(cpu machine.CPU, self *threads.Thread, pathAddr, argvAddr uint32) uint32 {
	path, err := CopyInString(cpu, pathAddr, maxPathLen)
	if err != common.OK {
		return uint32(int32(err))
	}
	var args []string
	if argvAddr != 0 {
		args, err = SaveArgs(cpu, argvAddr)
		if err != common.OK {
			return uint32(int32(err))
		}
	}

	spaceID, _, eerr := d.execProgram(self, path, args, self.Priority())
	if eerr != common.OK {
		return uint32(int32(eerr))
	}
	return uint32(spaceID)
}

// ExecProgram runs path as a fresh kernel-scheduled thread, the same way
// sysExec does for a user-issued Exec syscall, but takes its path and
// arguments directly rather than through user memory — the entry point
// cmd/paldos uses to run the program named by -x, which has no user
// address space of its own to read them from.
func (d *Dispatcher) ExecProgram(self *threads.Thread, path string, args []string, priority int) (common.SpaceId, *threads.Thread, common.Err_t) {
	return d.execProgram(self, path, args, priority)
}

func (d *Dispatcher) execProgram(self *threads.Thread, path string, args []string, priority int) (common.SpaceId, *threads.Thread, common.Err_t) {
	exec, oerr := loader.Open(path)
	if oerr != common.OK {
		return 0, nil, oerr
	}

	spaceID := d.Processes.NewSpaceId()

	var swap vm.SwapFile
	if d.Cfg.SwapOn {
		swapName := swapFileName(spaceID)
		if serr := d.Fsys.Create(self, swapName, 0); serr != common.OK && serr != common.EEXIST {
			exec.Close()
			return 0, nil, serr
		}
		sf, serr := d.Fsys.Open(self, swapName)
		if serr != common.OK {
			exec.Close()
			return 0, nil, serr
		}
		swap = fs.NewSwapHandle(sf, self)
	}

	as := vm.NewAddrSpace(d.Cfg, spaceID, exec, swap)
	d.Processes.Register(as)

	child := d.Sched.Fork(path, priority, true, func(t *threads.Thread) {
		t.SetSpaceId(spaceID)
		t.SetAddrSpace(as)

		tlb := vm.NewTLB(tlbSize)
		tr := newTLBTranslator(tlb)
		cpu := sim.New(d.Mem, tr)
		d.Install(cpu, t, tr)

		if len(args) > 0 {
			if _, werr := WriteArgs(cpu, args, uint32(d.Cfg.PageSize*as.NumPages())); werr != common.OK {
				t.Finish(int(werr))
				return
			}
		}

		cpu.Run()
		d.sysExit(t, 0)
	})

	d.childrenMu.Lock()
	if d.children == nil {
		d.children = make(map[common.SpaceId]*threads.Thread)
	}
	d.children[spaceID] = child
	d.childrenMu.Unlock()

	return spaceID, child, common.OK
}

// sysJoin implements spec §4.5's Join: spaceID is the handle Exec
// returned, resolved back to the forked Thread so the scheduler's own
// Join (blocking until the target calls Finish) can be reused directly.
func (d *Dispatcher) sysJoin(self *threads.Thread, spaceID int) int {
	d.childrenMu.Lock()
	child, ok := d.children[common.SpaceId(spaceID)]
	d.childrenMu.Unlock()
	if !ok {
		return int(common.EINVAL)
	}
	return d.Sched.Join(self, child)
}

func swapFileName(id common.SpaceId) string {
	return "swap." + strconv.Itoa(int(id))
}

const tlbSize = 4
