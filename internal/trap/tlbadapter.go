package trap

import (
	"github.com/pablos123/paldos/internal/common"
	"github.com/pablos123/paldos/internal/vm"
)

// tlbTranslator adapts a per-thread *vm.TLB to internal/machine's
// Translator port, the same way fs.SwapHandle adapts a *fs.File to
// internal/vm's SwapFile port: the lower layer (machine) declares the
// interface it needs, and the layer that knows both sides (trap) writes
// the bridge (spec §2 layering).
type tlbTranslator struct {
	tlb *vm.TLB
}

func newTLBTranslator(tlb *vm.TLB) *tlbTranslator {
	return &tlbTranslator{tlb: tlb}
}

// Translate reports a TLB hit only; a miss is resolved by dispatch.go's
// PageFaultException handler, which refills the TLB and lets the
// simulator retry (spec §4.3 steps 3-4).
func (a *tlbTranslator) Translate(vpn int) (common.Frame, bool, bool) {
	e, ok := a.tlb.Probe(vpn)
	if !ok || !e.Valid {
		return common.NoFrame, false, false
	}
	return e.Frame, true, e.ReadOnly
}

func (a *tlbTranslator) MarkUsed(vpn int)  { a.tlb.MarkUsed(vpn) }
func (a *tlbTranslator) MarkDirty(vpn int) { a.tlb.MarkDirty(vpn) }
