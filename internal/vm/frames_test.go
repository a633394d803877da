package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pablos123/paldos/internal/common"
)

func TestFrameTableAllocFreeRoundTrip(t *testing.T) {
	ft := NewFrameTable(2)

	f1 := ft.Alloc(1, 0, 1)
	f2 := ft.Alloc(1, 1, 2)
	assert.NotEqual(t, common.NoFrame, f1)
	assert.NotEqual(t, common.NoFrame, f2)
	assert.NotEqual(t, f1, f2)

	assert.Equal(t, common.NoFrame, ft.Alloc(1, 2, 3), "bitmap is full")

	ft.Free(f1)
	f3 := ft.Alloc(2, 5, 4)
	assert.Equal(t, f1, f3, "freed frame should be reused")
}

func TestFrameTableOwnerCoherence(t *testing.T) {
	ft := NewFrameTable(1)
	f := ft.Alloc(3, 7, 42)

	entry, inUse := ft.Owner(f)
	assert.True(t, inUse)
	assert.Equal(t, common.SpaceId(3), entry.Space)
	assert.Equal(t, 7, entry.VPN)
	assert.Equal(t, uint64(42), entry.LastUse)

	ft.Free(f)
	_, inUse = ft.Owner(f)
	assert.False(t, inUse)
}

func TestInUseFramesReflectsBitmap(t *testing.T) {
	ft := NewFrameTable(3)
	ft.Alloc(1, 0, 1)
	ft.Alloc(1, 1, 1)
	assert.Len(t, ft.InUseFrames(), 2)
}
