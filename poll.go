package conet

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/EFLql/conet/internal/corosched"
)

// ErrPoll is returned by Poll when the reactor observes an internal
// failure while the caller was parked. The spec reserves this path for
// extensions; the core design routes every kernel wait failure through
// "zero events" instead (see Tick).
var ErrPoll = errors.New("conet: poll error")

// Poll is co_poll: it suspends the calling goroutine until at least one of
// fds is ready or timeout elapses, mutating fds[i].Revents in place and
// returning the count of ready entries (0 on timeout, -1 on error), per
// spec §4.3 and §6's public contract table.
//
// timeout < 0 waits indefinitely; timeout == 0 still parks once (callers
// wanting a non-blocking check should not route through Poll at all — see
// spec §4.3's note that 0 is handled by the caller, not co_poll).
//
// Preconditions enforced as fatal (panic) programmer errors, matching the
// C++ original's LOG(FATAL); abort(): every fds[i].Fd must be >= 0, and no
// other Poll call may currently be waiting on the same fd.
func (r *Reactor) Poll(fds []PollFD, timeout time.Duration) (int, error) {
	w := newWaitRecord(fds)

	if timeout >= 0 {
		w.timer = r.wheel.Set(timeout, func() {
			w.waiter.Resume(corosched.Timeout)
		})
	}

	touched := make([]*FdSlot, len(fds))
	if err := r.attach(fds, w, touched); err != nil {
		r.detach(fds, touched, w)
		if w.timer != nil {
			r.wheel.Cancel(w.timer)
		}
		return -1, errors.Wrap(err, "conet: poll setup failed")
	}

	r.addWaiting(1)
	code := w.waiter.Park()
	r.addWaiting(-1)

	r.detach(fds, touched, w)
	if w.timer != nil {
		r.wheel.Cancel(w.timer)
	}

	r.mu.Lock()
	if w.queued {
		r.dispatch.Remove(w.elem)
		w.queued = false
		w.elem = nil
	}
	r.mu.Unlock()

	switch code {
	case corosched.Ready:
		return w.numReady, nil
	case corosched.Timeout:
		return 0, nil
	default:
		return -1, ErrPoll
	}
}

// attach cross-links w into every fds[i]'s slot and registers kernel
// interest, per spec §4.3 step 3. On the first syscall failure it stops
// and returns the error; the caller is responsible for unwinding via
// detach over whatever prefix of touched was filled in.
//
// The single-waiter invariant's check-then-act (read slot.waiter, then set
// it) must be atomic with respect to every other concurrent Poll call, or
// two goroutines racing to attach the same fd could both observe a nil
// waiter and both "win" — so the whole loop runs under r.mu rather than
// locking per fd, matching handleEvent/drainDispatch's lock discipline
// over the same slot/dispatch state.
func (r *Reactor) attach(fds []PollFD, w *WaitRecord, touched []*FdSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range fds {
		fd := fds[i].Fd
		if fd < 0 {
			panic(fmt.Sprintf("conet: negative fd %d passed to Poll", fd))
		}
		slot := r.slots.Slot(fd)
		if slot.waiter != nil {
			panic(fmt.Sprintf("conet: fd %d already has a pending waiter", fd))
		}
		slot.waiter = w
		slot.slotIndexInWait = i
		touched[i] = slot

		if err := r.registerInterest(fd, pollEventMask(fds[i].Events), slot); err != nil {
			return err
		}
	}
	return nil
}

// detach clears every cross-link attach installed, in the manner of spec
// §4.3 step 6 ("for each i, clear slots[fds[i].fd].waiter") — used both on
// normal return and on the attach-failure unwind path. Runs under r.mu for
// the same reason attach does.
func (r *Reactor) detach(fds []PollFD, touched []*FdSlot, w *WaitRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, slot := range touched {
		if slot == nil {
			continue
		}
		if slot.waiter == w {
			slot.waiter = nil
		}
		_ = fds[i]
	}
}

func (r *Reactor) addWaiting(delta int64) {
	atomic.AddInt64(&r.waitingCount, delta)
}
