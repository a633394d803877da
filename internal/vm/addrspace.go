package vm

import (
	"sync"

	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/kconfig"
	"github.com/pablos123/paldos/internal/klog"
)

// ExecFile is the subset of internal/loader's executable reader that vm
// needs for demand loading (spec §6 "Executable format"). Declared here,
// not imported from internal/loader, so internal/vm stays independent of
// the trap/loader layers above it (spec §2: "each layer depends only on
// those below it").
type ExecFile interface {
	CodeSize() int
	CodeAddr() int
	InitDataSize() int
	InitDataAddr() int
	UninitDataSize() int
	ReadCodeBlock(buf []byte, offset int) (int, common.Err_t)
	ReadDataBlock(buf []byte, offset int) (int, common.Err_t)
}

// SwapFile is the subset of internal/fs's open-file handle that vm needs
// to page dirty frames out and back in (spec §3 "owned swap file").
type SwapFile interface {
	ReadAt(buf []byte, offset int) (int, common.Err_t)
	WriteAt(buf []byte, offset int) (int, common.Err_t)
	Close()
}

// Memory is the physical-memory backing store vm reads/writes frame
// contents through; internal/machine/sim owns the actual byte array and
// satisfies this interface.
type Memory interface {
	FrameBytes(f common.Frame) []byte
}

// AddrSpace is one process's virtual memory map (spec §3 "Address space").
// Guarded by mu the way the teacher's Vm_t guards Vmregion/Pmap: one lock
// for the page table plus a flag recording whether a fault is already in
// flight, so recursive fault handling panics loudly instead of deadlocking.
type AddrSpace struct {
	mu sync.Mutex

	space common.SpaceId
	cfg   kconfig.Config

	pt PageTable

	exec    ExecFile
	swap    SwapFile
	codeLo  int
	codeHi  int
	dataLo  int
	dataHi  int

	faultInFlight bool
	faults        uint64 // per-address-space fault count, supplement: -d m stat
}

// NewAddrSpace implements spec §4.3 "Construction": reads the segment
// sizes from exec (internal/loader.Open has already checked the magic
// number), computes the page count from the segment sizes plus
// USER_STACK, and allocates a not-resident page table for every page.
// Pages are always loaded on demand by Faulter.HandleFault: with
// cfg.DemandLoad false, no frame is claimed or filled here, and no caller
// populates the entries eagerly either.
func NewAddrSpace(cfg kconfig.Config, space common.SpaceId, exec ExecFile, swap SwapFile) *AddrSpace {
	codeSize := exec.CodeSize()
	dataSize := exec.InitDataSize()
	uninitSize := exec.UninitDataSize()
	total := codeSize + dataSize + uninitSize + cfg.UserStack*cfg.PageSize

	numPages := (total + cfg.PageSize - 1) / cfg.PageSize

	as := &AddrSpace{
		space:  space,
		cfg:    cfg,
		pt:     NewPageTable(numPages),
		exec:   exec,
		swap:   swap,
		codeLo: exec.CodeAddr(),
		codeHi: exec.CodeAddr() + codeSize,
		dataLo: exec.InitDataAddr(),
		dataHi: exec.InitDataAddr() + dataSize,
	}
	klog.Debugf(klog.Mem, "vm", "space %d: %d pages (code %d data %d uninit %d stack %d)",
		space, numPages, codeSize, dataSize, uninitSize, cfg.UserStack*cfg.PageSize)
	return as
}

// SpaceId returns the owning process identifier.
func (as *AddrSpace) SpaceId() common.SpaceId { return as.space }

// NumPages reports the page table's length.
func (as *AddrSpace) NumPages() int { return len(as.pt) }

// lockPmap acquires the address-space lock and marks a fault in flight,
// mirroring the teacher's Lock_pmap/Unlock_pmap pair.
func (as *AddrSpace) lockPmap() {
	as.mu.Lock()
	if as.faultInFlight {
		panic("vm: recursive page fault on the same address space")
	}
	as.faultInFlight = true
}

func (as *AddrSpace) unlockPmap() {
	as.faultInFlight = false
	as.mu.Unlock()
}

// PTEFor returns a copy of the page-table entry for vpn and whether vpn is
// in range at all.
func (as *AddrSpace) PTEFor(vpn int) (PTE, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	if !as.pt.InRange(vpn) {
		return PTE{}, false
	}
	return as.pt[vpn], true
}

// setPTE installs pte at its own VirtualPage index. Callers must hold mu.
func (as *AddrSpace) setPTE(pte PTE) {
	as.pt[pte.VirtualPage] = pte
}

// Stats returns the address space's lifetime page-fault count (supplement
// to spec §4.3, grounded in original_source's Machine::PageFault
// statistics counter). The `-d m` debug flag logs each fault as it is
// resolved; nothing in the kernel prints this count.
func (as *AddrSpace) Stats() uint64 {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.faults
}

// Destroy implements spec §4.3 "Destruction": clears every resident frame
// from the bitmap, zeros its backing memory, and drops the owned
// executable and swap file handles.
func (as *AddrSpace) Destroy(frames *FrameTable, mem Memory) {
	as.mu.Lock()
	defer as.mu.Unlock()
	for i, pte := range as.pt {
		if pte.Valid && pte.Frame != common.NoFrame {
			zero(mem.FrameBytes(pte.Frame))
			frames.Free(pte.Frame)
			as.pt[i] = PTE{VirtualPage: i, Frame: common.NoFrame}
		}
	}
	if as.swap != nil {
		as.swap.Close()
		as.swap = nil
	}
	as.exec = nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
