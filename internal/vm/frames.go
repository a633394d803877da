package vm

import (
	"sync"

	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/klog"
)

// CoreMapEntry names the current owner of a physical frame (spec §3 "Frame
// bitmap & core map"). LastUse is a Scheduler.Tick() stamp, consulted only
// by the LRU replacement policy.
type CoreMapEntry struct {
	InUse   bool
	Space   common.SpaceId
	VPN     int
	LastUse uint64
}

// FrameTable owns the global physical-frame bitmap and its parallel core
// map (spec §3, invariant: "the core map is defined exactly on frames
// marked in use in the bitmap"). Mutated only while the owning AddrSpace
// holds its pmap lock (spec §5: "mutated only under interrupts-off in the
// page-fault handler; single-core assumption makes this sufficient" — here
// a mutex stands in for interrupts-off, per spec §9's "either is correct"
// note).
type FrameTable struct {
	mu    sync.Mutex
	inUse []bool
	core  []CoreMapEntry
}

// NewFrameTable allocates a table for numFrames physical frames, all free.
func NewFrameTable(numFrames int) *FrameTable {
	return &FrameTable{
		inUse: make([]bool, numFrames),
		core:  make([]CoreMapEntry, numFrames),
	}
}

// NumFrames reports the total frame count.
func (ft *FrameTable) NumFrames() int {
	return len(ft.inUse)
}

// Alloc finds and claims the first free frame, or common.NoFrame if none
// remain (spec §4.3 step 2a: "try to allocate a frame from the bitmap").
func (ft *FrameTable) Alloc(owner common.SpaceId, vpn int, tick uint64) common.Frame {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for i, used := range ft.inUse {
		if !used {
			ft.inUse[i] = true
			ft.core[i] = CoreMapEntry{InUse: true, Space: owner, VPN: vpn, LastUse: tick}
			klog.Debugf(klog.Mem, "vm", "frame %d allocated to space %d vpn %d", i, owner, vpn)
			return common.Frame(i)
		}
	}
	return common.NoFrame
}

// Free clears frame f's bitmap bit and core-map entry, and zeros its
// record of ownership. Does not zero the frame's backing bytes; callers
// that need that (AddrSpace destruction, spec §4.3) do it separately since
// FrameTable has no view of physical memory contents.
func (ft *FrameTable) Free(f common.Frame) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if f < 0 || int(f) >= len(ft.inUse) {
		return
	}
	ft.inUse[f] = false
	ft.core[f] = CoreMapEntry{}
}

// Owner returns frame f's core-map entry and whether it is currently in
// use.
func (ft *FrameTable) Owner(f common.Frame) (CoreMapEntry, bool) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if f < 0 || int(f) >= len(ft.inUse) {
		return CoreMapEntry{}, false
	}
	return ft.core[f], ft.inUse[f]
}

// Touch updates frame f's last-use stamp, called on every TLB refill that
// reuses a resident frame (feeds the LRU replacement policy).
func (ft *FrameTable) Touch(f common.Frame, tick uint64) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if f >= 0 && int(f) < len(ft.inUse) && ft.inUse[f] {
		ft.core[f].LastUse = tick
	}
}

// InUseFrames returns the indices of every frame currently allocated, for
// the RANDOM and FIFO replacement policies and for tests asserting
// bitmap/core-map coherence (spec §8 property 1).
func (ft *FrameTable) InUseFrames() []common.Frame {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	var out []common.Frame
	for i, used := range ft.inUse {
		if used {
			out = append(out, common.Frame(i))
		}
	}
	return out
}
