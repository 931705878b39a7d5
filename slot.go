package conet

import (
	"fmt"
	"sync"
)

// slotGrowthIncrement is the dense table's growth step (spec §4.1): grow
// in increments of this size rather than doubling, since fd numbers are
// bounded by RLIMIT_NOFILE and doubling would overshoot it badly once the
// table is already large.
const slotGrowthIncrement = 10000

// FdSlot is the reactor's bookkeeping for a single fd: the kernel mask
// currently registered for it, and the single WaitRecord (if any)
// currently waiting on it. Slots are allocated lazily by FdSlotTable and
// live until the table itself is torn down.
type FdSlot struct {
	fd              int
	registeredMask  Events
	waiter          *WaitRecord
	slotIndexInWait int
}

// Fd returns the file descriptor this slot was allocated for.
func (s *FdSlot) Fd() int { return s.fd }

// FdSlotTable is the thread-owned dense fd -> *FdSlot map described in
// spec §4.1: an array indexed directly by fd, grown on demand, chosen over
// a hash map because fds are small non-negative integers bounded by
// RLIMIT_NOFILE and O(1) indexed lookup beats hashing at this scale.
//
// Spec §5 models the reactor's state as thread-local, mutated only by its
// owning thread. The Go translation has no such thread affinity — Poll is
// meant to be called concurrently by many goroutines sharing one Reactor
// (see cmd/conetctl/bench.go) — so mu serializes the growth/allocate path
// against concurrent Slot calls and against the Reactor's own loop
// goroutine reading slots via Lookup.
type FdSlotTable struct {
	mu     sync.Mutex
	slots  []*FdSlot
	growth int
}

// NewFdSlotTable creates a table pre-sized for initialCapacity entries
// (typically seeded from RLIMIT_NOFILE by the owning Reactor's Config),
// growing by growth entries at a time (see WithSlotTableGrowth). growth<=0
// falls back to slotGrowthIncrement.
func NewFdSlotTable(initialCapacity, growth int) *FdSlotTable {
	if initialCapacity < 0 {
		initialCapacity = 0
	}
	if growth <= 0 {
		growth = slotGrowthIncrement
	}
	return &FdSlotTable{slots: make([]*FdSlot, initialCapacity), growth: growth}
}

// Slot returns the slot for fd, allocating it (and growing the backing
// array if necessary) on first touch. Panics on a negative fd: spec §4.1
// calls this a fatal programmer error, the Go analogue of LOG(FATAL);abort().
func (t *FdSlotTable) Slot(fd int) *FdSlot {
	if fd < 0 {
		panic(fmt.Sprintf("conet: negative fd %d passed to FdSlotTable.Slot", fd))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.grow(fd)
	s := t.slots[fd]
	if s == nil {
		s = &FdSlot{fd: fd}
		t.slots[fd] = s
	}
	return s
}

// grow extends the backing array, if needed, so index fd is addressable.
// New size is the smallest old_size + k*growth exceeding fd. Callers must
// hold mu.
func (t *FdSlotTable) grow(fd int) {
	if fd < len(t.slots) {
		return
	}
	newSize := len(t.slots)
	if newSize == 0 {
		newSize = t.growth
	}
	for newSize <= fd {
		newSize += t.growth
	}
	grown := make([]*FdSlot, newSize)
	copy(grown, t.slots)
	t.slots = grown
}

// Lookup returns the slot for fd without allocating one, or nil if fd has
// never been touched or is out of the table's current range.
func (t *FdSlotTable) Lookup(fd int) *FdSlot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.slots) {
		return nil
	}
	return t.slots[fd]
}

// Len reports the current capacity of the dense array (diagnostic only).
func (t *FdSlotTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}
