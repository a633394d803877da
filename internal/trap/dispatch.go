package trap

import (
	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/machine"
	"github.com/pablos123/paldos/internal/threads"
	"github.com/pablos123/paldos/internal/vm"
)

// onPageFault implements spec §4.3 steps 3-4: resolve the faulting
// address against self's AddrSpace via the shared Faulter, refill tr's
// TLB with the resulting PTE, bump self's per-thread fault counter (which
// also drives the TLB's round-robin victim selection), and let the
// simulator's own retry loop re-attempt the access. Any error HandleFault
// returns (EFAULT for an address outside the space, or a swap or
// executable read error) ends self with that error code as its exit
// status; the kernel keeps running.
func (d *Dispatcher) onPageFault(cpu machine.CPU, self *threads.Thread, tr *tlbTranslator) {
	as, ok := self.AddrSpace().(*vm.AddrSpace)
	if !ok {
		panic("trap: page fault with no address space installed on thread " + self.Name())
	}
	badAddr := int(cpu.ReadRegister(machine.RegBadVAddr))

	pte, err := d.Faulter.HandleFault(as, badAddr, d.Sched.Tick())
	if err != common.OK {
		self.Finish(int(err))
		return
	}

	count := self.IncFaultCount()
	tr.tlb.Refill(as, pte, count)
}
