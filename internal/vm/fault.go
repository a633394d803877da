package vm

import (
	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/klog"
)

// Faulter bundles the shared kernel state a page-fault handler needs:
// the global frame table, the replacement policy, the running-process
// table (for evicting a victim frame owned by some other AddrSpace), and
// the backing physical memory. One Faulter is shared by every address
// space (spec §5: "the frame bitmap and core map are shared").
type Faulter struct {
	Frames    *FrameTable
	Replacer  *Replacer
	Processes *ProcessTable
	Mem       Memory
}

// HandleFault implements spec §4.3's page-fault handler for a fault at
// badAddr in address space as. tick is the scheduler's current tick,
// stamped into the core map for LRU. Returns common.OK on success, EFAULT
// for an out-of-range fault, or the error of a failed swap or executable
// read. Running out of frames with swap disabled is not returned as an
// error: it aborts the kernel through klog.Fatal.
func (f *Faulter) HandleFault(as *AddrSpace, badAddr int, tick uint64) (PTE, common.Err_t) {
	vpn := badAddr / as.cfg.PageSize

	as.lockPmap()
	defer as.unlockPmap()

	if !as.pt.InRange(vpn) {
		klog.Errorf("vm", "space %d: fault on vpn %d outside %d-page address space", as.space, vpn, len(as.pt))
		return PTE{}, common.EFAULT
	}

	pte := as.pt[vpn]
	if pte.Valid && pte.Frame != common.NoFrame {
		// Already resident: nothing to do, the caller's TLB was merely
		// stale. Refresh callers install this PTE into the TLB directly.
		f.Frames.Touch(pte.Frame, tick)
		return pte, common.OK
	}

	frame := f.Frames.Alloc(as.space, vpn, tick)
	if frame == common.NoFrame {
		if as.swap == nil {
			klog.Fatal("vm", "out of physical frames and swap is disabled")
		}
		if _, err := f.evacuatePage(as, tick); err != common.OK {
			return PTE{}, err
		}
		frame = f.Frames.Alloc(as.space, vpn, tick)
		if frame == common.NoFrame {
			klog.Fatal("vm", "frame freed by eviction vanished before rebind")
		}
	}
	f.Replacer.NoteBound(frame)

	pte.Frame = frame
	pte.Valid = true

	if err := f.populate(as, &pte, frame); err != common.OK {
		return PTE{}, err
	}

	as.setPTE(pte)
	as.faults++
	klog.Debugf(klog.Mem, "vm", "space %d: fault on vpn %d resolved to frame %d", as.space, vpn, frame)
	return pte, common.OK
}

// evacuatePage implements spec §4.3 step 2b: pick a victim via the
// configured policy; if it belongs to a live address space, flush its
// page-table entry and, if dirty, write the frame back to that space's
// swap file; then return the now-free frame.
func (f *Faulter) evacuatePage(as *AddrSpace, tick uint64) (common.Frame, common.Err_t) {
	victim := f.Replacer.Victim()
	entry, inUse := f.Frames.Owner(victim)
	if !inUse {
		return victim, common.OK
	}

	owner, alive := f.Processes.Lookup(entry.Space)
	if alive {
		// HandleFault already holds as.mu; lock the owner only when the
		// victim belongs to a different address space.
		if owner != as {
			owner.mu.Lock()
			defer owner.mu.Unlock()
		}
		vpte, ok := func() (PTE, bool) {
			if entry.VPN < 0 || entry.VPN >= len(owner.pt) {
				return PTE{}, false
			}
			return owner.pt[entry.VPN], true
		}()
		if ok && vpte.Frame == victim {
			if vpte.Dirty {
				buf := f.Mem.FrameBytes(victim)
				if owner.swap != nil {
					if _, err := owner.swap.WriteAt(buf, vpte.VirtualPage*owner.cfg.PageSize); err != common.OK {
						return common.NoFrame, err
					}
				}
			}
			vpte.Valid = false
			vpte.Frame = common.NoFrame
			owner.pt[entry.VPN] = vpte
		}
	}
	// A dangling core-map entry (process already exited) is nothing to
	// write back, per spec §9.

	f.Frames.Free(victim)
	klog.Debugf(klog.Mem, "vm", "evicted frame %d (was space %d vpn %d)", victim, entry.Space, entry.VPN)
	return victim, common.OK
}

// populate fills frame's contents for pte per spec §4.3 step 2d: replay
// from swap if this page was dirtied and evicted earlier, else load the
// code/data segments from the executable (zero-filling the remainder;
// stack pages are fully zeroed).
func (f *Faulter) populate(as *AddrSpace, pte *PTE, frame common.Frame) common.Err_t {
	buf := f.Mem.FrameBytes(frame)
	zero(buf)

	if pte.Dirty && as.swap != nil {
		if _, err := as.swap.ReadAt(buf, pte.VirtualPage*as.cfg.PageSize); err != common.OK {
			return err
		}
		return common.OK
	}

	pageStart := pte.VirtualPage * as.cfg.PageSize
	pageEnd := pageStart + as.cfg.PageSize

	if lo, hi := max(pageStart, as.codeLo), min(pageEnd, as.codeHi); lo < hi {
		n, err := as.exec.ReadCodeBlock(buf[lo-pageStart:hi-pageStart], lo-as.codeLo)
		if err != common.OK {
			return err
		}
		_ = n
	}
	if lo, hi := max(pageStart, as.dataLo), min(pageEnd, as.dataHi); lo < hi {
		n, err := as.exec.ReadDataBlock(buf[lo-pageStart:hi-pageStart], lo-as.dataLo)
		if err != common.OK {
			return err
		}
		_ = n
	}
	// Bytes outside both ranges (uninitialized data and the user stack)
	// stay zeroed from the zero(buf) call above.
	return common.OK
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
