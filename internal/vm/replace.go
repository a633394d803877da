package vm

import (
	"math/rand"

	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/kconfig"
)

// Replacer picks a victim frame to evict when the frame bitmap is full
// (spec §4.3 "Page-replacement policies"). One Replacer is built at boot
// and shared by every address space and every thread's simulator, since
// frame allocation is itself a global resource (spec §5).
type Replacer struct {
	policy kconfig.ReplacePolicy
	frames *FrameTable
	rng    *rand.Rand

	// fifoOrder records allocation order for ReplaceFIFO: frame indices are
	// appended as they are bound and popped from the front on eviction.
	fifoOrder []common.Frame
}

// NewReplacer constructs a Replacer for the given policy and frame table.
// seed comes from the CLI's `-rs` flag (spec §6) so RANDOM runs are
// reproducible.
func NewReplacer(policy kconfig.ReplacePolicy, frames *FrameTable, seed int64) *Replacer {
	return &Replacer{
		policy: policy,
		frames: frames,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// NoteBound records that frame f was just bound to a page, for FIFO
// ordering. Faulter.HandleFault calls this every time it binds a frame, whether
// freshly allocated or reclaimed from eviction.
func (r *Replacer) NoteBound(f common.Frame) {
	if r.policy == kconfig.ReplaceFIFO {
		r.fifoOrder = append(r.fifoOrder, f)
	}
}

// Victim selects a frame to evict from the currently in-use set. Panics if
// no frames are in use; callers only reach this when Alloc has already
// failed.
func (r *Replacer) Victim() common.Frame {
	inUse := r.frames.InUseFrames()
	if len(inUse) == 0 {
		panic("vm: Victim called with no frames in use")
	}

	switch r.policy {
	case kconfig.ReplaceFIFO:
		return r.victimFIFO(inUse)
	case kconfig.ReplaceLRU:
		return r.victimLRU(inUse)
	case kconfig.ReplaceRandom:
		return inUse[r.rng.Intn(len(inUse))]
	default:
		return inUse[0]
	}
}

// victimFIFO pops the oldest still-in-use frame from the allocation-order
// record, skipping any stale entries for frames already freed.
func (r *Replacer) victimFIFO(inUse []common.Frame) common.Frame {
	inUseSet := make(map[common.Frame]bool, len(inUse))
	for _, f := range inUse {
		inUseSet[f] = true
	}
	for len(r.fifoOrder) > 0 {
		f := r.fifoOrder[0]
		r.fifoOrder = r.fifoOrder[1:]
		if inUseSet[f] {
			return f
		}
	}
	// fifoOrder exhausted without a match (shouldn't happen if NoteBound is
	// called consistently); fall back to the lowest-numbered in-use frame.
	return inUse[0]
}

// victimLRU picks the frame whose core-map LastUse is minimum (spec §4.3:
// "LRU picks the frame whose core-map last_use is minimum").
func (r *Replacer) victimLRU(inUse []common.Frame) common.Frame {
	best := inUse[0]
	bestEntry, _ := r.frames.Owner(best)
	for _, f := range inUse[1:] {
		e, _ := r.frames.Owner(f)
		if e.LastUse < bestEntry.LastUse {
			best = f
			bestEntry = e
		}
	}
	return best
}

// ResetCounters rebases every in-use frame's LastUse to 0, 1, 2, ...
// while preserving their relative order. Nothing in the kernel calls it:
// LastUse holds 64-bit scheduler ticks, and no code checks them for
// overflow.
func (r *Replacer) ResetCounters() {
	inUse := r.frames.InUseFrames()
	type stamped struct {
		frame common.Frame
		last  uint64
	}
	stamps := make([]stamped, 0, len(inUse))
	for _, f := range inUse {
		e, _ := r.frames.Owner(f)
		stamps = append(stamps, stamped{f, e.LastUse})
	}
	for i := 0; i < len(stamps); i++ {
		for j := i + 1; j < len(stamps); j++ {
			if stamps[j].last < stamps[i].last {
				stamps[i], stamps[j] = stamps[j], stamps[i]
			}
		}
	}
	for i, s := range stamps {
		r.frames.Touch(s.frame, uint64(i))
	}
}
