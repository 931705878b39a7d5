package conet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFdSlotTableAllocatesOnFirstTouch(t *testing.T) {
	tbl := NewFdSlotTable(0, 0)
	require.Nil(t, tbl.Lookup(5))

	s := tbl.Slot(5)
	require.NotNil(t, s)
	require.Equal(t, 5, s.Fd())
	require.Same(t, s, tbl.Slot(5), "Slot must return the same instance on repeat touch")
}

func TestFdSlotTableGrowsInIncrements(t *testing.T) {
	tbl := NewFdSlotTable(0, 0)
	tbl.Slot(10001)
	require.Equal(t, slotGrowthIncrement*2, tbl.Len())

	tbl2 := NewFdSlotTable(0, 0)
	tbl2.Slot(0)
	require.Equal(t, slotGrowthIncrement, tbl2.Len())
}

func TestFdSlotTablePreservesEntriesAcrossGrowth(t *testing.T) {
	tbl := NewFdSlotTable(5, 0)
	s := tbl.Slot(3)
	s.registeredMask = EventRead

	tbl.Slot(20000) // forces growth well past the original capacity
	require.Same(t, s, tbl.Lookup(3))
	require.Equal(t, EventRead, tbl.Lookup(3).registeredMask)
}

func TestFdSlotTableNegativeFdPanics(t *testing.T) {
	tbl := NewFdSlotTable(0, 0)
	require.Panics(t, func() { tbl.Slot(-1) })
}

func TestFdSlotTableHonorsCustomGrowth(t *testing.T) {
	tbl := NewFdSlotTable(0, 128)
	tbl.Slot(200)
	require.Equal(t, 256, tbl.Len())
}
