// Package vm implements spec.md §4.3: per-process page tables, the global
// frame bitmap and core map, demand loading, swap-backed eviction, and
// software TLB refill.
//
// Grounded in the teacher's vm.Vm_t (an address space guarded by a single
// mutex that also tracks "a page fault is in flight", via
// Lock_pmap/Unlock_pmap/Lockassert_pmap) and in original_source/machine's
// page-table-entry field layout.
package vm

import "github.com/pablos123/paldos/internal/common"

// PTE is one page-table entry (spec §3 "Address space"): a virtual page
// number, the physical frame backing it (or common.NoFrame), and the four
// status flags the page-fault handler and TLB refill consult.
type PTE struct {
	VirtualPage int
	Frame       common.Frame
	Valid       bool
	ReadOnly    bool
	Used        bool
	Dirty       bool
}

// PageTable is a per-address-space array of PTE indexed by virtual page.
type PageTable []PTE

// NewPageTable allocates numPages entries, each not-resident, with
// VirtualPage set to its own index (spec §4.3 construction step 3).
func NewPageTable(numPages int) PageTable {
	pt := make(PageTable, numPages)
	for i := range pt {
		pt[i] = PTE{VirtualPage: i, Frame: common.NoFrame}
	}
	return pt
}

// Resident reports whether vpn currently has a frame assigned.
func (pt PageTable) Resident(vpn int) bool {
	return vpn >= 0 && vpn < len(pt) && pt[vpn].Frame != common.NoFrame && pt[vpn].Valid
}

// InRange reports whether vpn names a page table entry at all; a fault
// outside this range is fatal per spec §4.3 ("a page fault on a virtual
// page outside the program's address space is fatal").
func (pt PageTable) InRange(vpn int) bool {
	return vpn >= 0 && vpn < len(pt)
}
