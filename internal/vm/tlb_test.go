package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pablos123/paldos/internal/kconfig"
)

func TestTLBRefillRoundRobinFlushesBack(t *testing.T) {
	cfg := testCfg(4, kconfig.ReplaceFIFO)
	tlb := NewTLB(2)
	as := NewAddrSpace(cfg, 1, &fakeExec{codeSize: cfg.PageSize * 3}, nil)
	as.setPTE(PTE{VirtualPage: 0, Frame: 0, Valid: true})
	as.setPTE(PTE{VirtualPage: 1, Frame: 1, Valid: true})

	tlb.Refill(as, PTE{VirtualPage: 0, Frame: 0}, 0)
	tlb.Refill(as, PTE{VirtualPage: 1, Frame: 1}, 1)

	tlb.MarkUsed(0)
	tlb.MarkDirty(0)

	// faultCount=2 maps back to slot 0 (2 % 2 == 0), evicting vpn 0 and
	// flushing its used/dirty bits back to the page table first.
	tlb.Refill(as, PTE{VirtualPage: 2, Frame: 2}, 2)

	pte, ok := as.PTEFor(0)
	require.True(t, ok)
	assert.True(t, pte.Used)
	assert.True(t, pte.Dirty)

	e, found := tlb.Probe(2)
	require.True(t, found)
	assert.Equal(t, 2, e.VirtualPage)
}

func TestTLBSaveStateInvalidatesAndFlushes(t *testing.T) {
	cfg := testCfg(4, kconfig.ReplaceFIFO)
	tlb := NewTLB(2)
	as := NewAddrSpace(cfg, 1, &fakeExec{codeSize: cfg.PageSize * 2}, nil)
	as.setPTE(PTE{VirtualPage: 0, Frame: 0, Valid: true})

	tlb.Refill(as, PTE{VirtualPage: 0, Frame: 0}, 0)
	tlb.MarkDirty(0)
	tlb.SaveState(as)

	_, found := tlb.Probe(0)
	assert.False(t, found, "SaveState must invalidate every entry")

	pte, _ := as.PTEFor(0)
	assert.True(t, pte.Dirty)
}
