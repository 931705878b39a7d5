package conet

import (
	"container/list"

	"github.com/EFLql/conet/internal/corosched"
	"github.com/EFLql/conet/internal/timerwheel"
)

// WaitRecord describes one outstanding Poll call: the caller's pollfd
// vector, the parked waiter that Poll will resume, an optional deadline
// timer, and the intrusive dispatch-list linkage a Reactor.Tick uses to
// resume each WaitRecord at most once per tick (spec §4.2, §9's "intrusive
// dispatch list"). It is owned by the goroutine that called Poll and torn
// down before Poll returns; nothing outlives one Poll call.
//
// The spec's WaitRecord.retcode field has no analogue here: the outcome
// (ready/timeout/error) is carried entirely by the corosched.RetCode value
// threaded through waiter.Park/Resume, which is already synchronized by
// the Park/Resume handoff — a second retcode field set from both the
// timer-wheel goroutine and the reactor's loop goroutine would just be an
// unsynchronized, unread duplicate of that value.
type WaitRecord struct {
	fds      []PollFD
	numReady int

	waiter *corosched.Waiter
	timer  *timerwheel.Handle

	queued bool
	elem   *list.Element
}

// newWaitRecord constructs a WaitRecord over the caller-owned fds slice.
// Revents is zeroed up front per spec §4.3 step 1.
func newWaitRecord(fds []PollFD) *WaitRecord {
	for i := range fds {
		fds[i].Revents = 0
	}
	return &WaitRecord{
		fds:    fds,
		waiter: corosched.NewWaiter(),
	}
}

// recordHit ORs hits into fds[idx].Revents and bumps numReady the first
// time that index transitions from zero to non-zero revents, per spec
// §4.2 step 2b's "increment num_ready if this is the first hit for that
// index".
func (w *WaitRecord) recordHit(idx int, hits Events) {
	before := w.fds[idx].Revents
	w.fds[idx].Revents |= hits
	if before == 0 && w.fds[idx].Revents != 0 {
		w.numReady++
	}
}
