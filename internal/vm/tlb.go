package vm

import "github.com/pablos123/paldos/internal/common"

// TLBEntry mirrors a PTE but lives in the small fixed-size translation
// cache consulted by internal/machine's MMU (spec §6 glossary "TLB").
type TLBEntry struct {
	VirtualPage int
	Frame       common.Frame
	Valid       bool
	ReadOnly    bool
	Used        bool
	Dirty       bool
}

// TLB is a small fixed-size software-managed cache, owned by the running
// thread (spec §5: "the TLB is owned by the running thread").
type TLB struct {
	entries []TLBEntry
}

// NewTLB constructs a TLB with size entries, all initially invalid.
func NewTLB(size int) *TLB {
	return &TLB{entries: make([]TLBEntry, size)}
}

// Size reports the number of TLB slots.
func (t *TLB) Size() int { return len(t.entries) }

// Probe looks up vpn, returning its entry and whether it was found.
func (t *TLB) Probe(vpn int) (TLBEntry, bool) {
	for _, e := range t.entries {
		if e.Valid && e.VirtualPage == vpn {
			return e, true
		}
	}
	return TLBEntry{}, false
}

// Refill implements spec §4.3 step 3: choose a victim TLB slot via
// round-robin on faultCount, flush any valid occupant's dirty/used bits
// back to its owning page table via flushBack, then install pte.
//
// faultCount is the per-thread counter from Thread.IncFaultCount; the
// caller increments it once per fault (spec §4.3 step 4) and passes the
// post-increment value here so round-robin advances exactly once per
// fault.
func (t *TLB) Refill(as *AddrSpace, pte PTE, faultCount uint64) {
	slot := int(faultCount) % len(t.entries)
	victim := t.entries[slot]
	if victim.Valid {
		t.flushBack(as, victim)
	}
	t.entries[slot] = TLBEntry{
		VirtualPage: pte.VirtualPage,
		Frame:       pte.Frame,
		Valid:       true,
		ReadOnly:    pte.ReadOnly,
		Used:        pte.Used,
		Dirty:       pte.Dirty,
	}
}

// flushBack writes a TLB entry's accumulated Used/Dirty bits back to the
// owning page-table entry, used both by Refill's eviction and by
// SaveState at context switch (spec §4.3 "Context switch").
func (t *TLB) flushBack(as *AddrSpace, e TLBEntry) {
	as.mu.Lock()
	defer as.mu.Unlock()
	if !as.pt.InRange(e.VirtualPage) {
		return
	}
	pte := as.pt[e.VirtualPage]
	if pte.Frame != e.Frame {
		// The page was evicted out from under this stale TLB entry;
		// nothing to flush back (spec §9's dangling-reference case).
		return
	}
	pte.Used = pte.Used || e.Used
	pte.Dirty = pte.Dirty || e.Dirty
	as.pt[e.VirtualPage] = pte
}

// SaveState implements spec §4.3: flush every valid TLB entry's bits back
// into as's page table, then invalidate the whole TLB. Nothing in the
// kernel calls it: each thread's simulator owns its own TLB, and a context
// switch leaves that TLB's entries and bits in place.
func (t *TLB) SaveState(as *AddrSpace) {
	for i, e := range t.entries {
		if e.Valid {
			t.flushBack(as, e)
			t.entries[i] = TLBEntry{}
		}
	}
}

// RestoreState invalidates the TLB for the incoming address space. The
// distilled spec's "no-TLB build" (installing a full page table directly
// into the MMU) is not modeled here since internal/machine/sim always
// consults the TLB plus a fault-through-to-PageTable path.
func (t *TLB) RestoreState() {
	for i := range t.entries {
		t.entries[i] = TLBEntry{}
	}
}

// MarkUsed records that the TLB entry backing vpn was referenced, called
// by internal/machine/sim on every successful load translation (stores
// call MarkDirty instead).
func (t *TLB) MarkUsed(vpn int) {
	for i := range t.entries {
		if t.entries[i].Valid && t.entries[i].VirtualPage == vpn {
			t.entries[i].Used = true
			return
		}
	}
}

// MarkDirty records that the TLB entry backing vpn was written, called by
// internal/machine/sim on every successful store translation.
func (t *TLB) MarkDirty(vpn int) {
	for i := range t.entries {
		if t.entries[i].Valid && t.entries[i].VirtualPage == vpn {
			t.entries[i].Dirty = true
			return
		}
	}
}
