// Package conet implements the I/O readiness core of a user-space
// cooperative concurrency runtime: a per-thread readiness reactor
// multiplexing many parked goroutines' poll vectors onto one kernel
// readiness set, modeled on the conet C++ runtime's co_poll/epoll_ctx_t
// (see original_source/core/src/network.cpp) and built in the shape of
// gaio's epoll/kqueue-backed watcher.
package conet

import (
	"container/list"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/EFLql/conet/internal/corosched"
	"github.com/EFLql/conet/internal/timerwheel"
)

// readyEvent is one kernel-reported readiness notification, already
// translated into the reactor's canonical Events vocabulary by the
// platform poller.
type readyEvent struct {
	slot *FdSlot
	mask Events
}

// kernelPoller is the narrow contract a platform-specific readiness
// facility (epoll, kqueue) must satisfy. All masks crossing this boundary
// are in the reactor's canonical Events vocabulary; translation to the
// native bit layout happens inside the implementation.
type kernelPoller interface {
	add(fd int, mask Events, slot *FdSlot) error
	modify(fd int, old, mask Events, slot *FdSlot) error
	delete(fd int) error
	wait(timeout time.Duration, buf []readyEvent) (int, error)
	close() error
}

// Reactor owns one kernel readiness set, one FdSlotTable, and the
// dispatch machinery described in spec §4.2. Spec §5 models this state as
// thread-local, mutated only by its single owning thread; callers here
// have no such affinity (Poll is meant to be called concurrently by many
// goroutines sharing one Reactor — see TestPollManyFdsEachResumedOnce and
// cmd/conetctl/bench.go), so mu plays the role that single owning thread
// plays in the original: every mutation of a per-fd slot's waiter/
// registeredMask and every mutation of the dispatch list happens with mu
// held, funneling concurrent Poll calls and the reactor's own loop
// goroutine through one serialization point (the same effect gaio gets
// from routing all descs/fdDesc mutation through its single loop
// goroutine via pendingMutex/chPendingNotify).
type Reactor struct {
	cfg   Config
	slots *FdSlotTable
	kp    kernelPoller
	wheel *timerwheel.Wheel

	eventBuf []readyEvent

	waitingCount int64 // atomic, spec's diagnostic waiting_count

	mu       sync.Mutex
	dispatch list.List // of *WaitRecord, guarded by mu

	closeOnce sync.Once
	closed    chan struct{}
	loopDone  chan struct{}
}

// NewReactor creates a Reactor and starts its background tick loop, the
// Go analogue of spec §4.5's "register one scheduler task whose body is
// tick(-1)" — here a dedicated goroutine plays the role of that task,
// grounded on gaio's `go w.pfd.Wait(...)` / `go w.loop()` pair.
func NewReactor(opts ...Option) (*Reactor, error) {
	cfg := newConfig(opts...)

	kp, err := newKernelPoller(cfg.EventBufferSize)
	if err != nil {
		return nil, err
	}

	wheel := timerwheel.New()
	go wheel.RunForever()

	r := &Reactor{
		cfg:      cfg,
		slots:    NewFdSlotTable(cfg.SlotTableInitCap, cfg.SlotTableGrowth),
		kp:       kp,
		wheel:    wheel,
		eventBuf: make([]readyEvent, cfg.EventBufferSize),
		closed:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	r.dispatch.Init()

	go r.loop()
	return r, nil
}

// loop is the reactor's scheduler task: tick(-1) forever until Close.
func (r *Reactor) loop() {
	defer close(r.loopDone)
	for {
		select {
		case <-r.closed:
			return
		default:
		}
		if _, err := r.Tick(-1); err != nil {
			// Kernel wait failures are logged by Tick itself and reported
			// as zero events, so the only error seen here is ErrClosed.
			if err == ErrClosed {
				return
			}
		}
	}
}

// Close tears down the reactor: stops the loop goroutine, the timer
// wheel, and the kernel readiness handle. Any WaitRecords still parked
// are left parked — spec §4.4 treats closing fds out from under a waiter
// as a programmer error, not something the reactor reconciles for them.
func (r *Reactor) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		// The loop may be blocked in an indefinite kernel wait: register a
		// readable pipe so that wait returns and the loop observes closed.
		var wake *FdSlot
		wakeR, wakeW, perr := os.Pipe()
		if perr == nil {
			wake = &FdSlot{fd: int(wakeR.Fd())}
			if r.kp.add(wake.fd, EventRead, wake) == nil {
				_, _ = wakeW.Write([]byte{0})
			}
		}
		<-r.loopDone
		if perr == nil {
			wakeR.Close()
			wakeW.Close()
		}
		runtime.KeepAlive(wake)
		r.wheel.Close()
		err = r.kp.close()
	})
	return err
}

// PendingWaiters returns the number of WaitRecords currently parked
// (spec §6's `pending_waiters` diagnostic).
func (r *Reactor) PendingWaiters() int {
	return int(atomic.LoadInt64(&r.waitingCount))
}

// registerInterest ensures the kernel will notify this Reactor when fd has
// any bit in mask ready, merging with whatever is already registered for
// the slot (spec §4.2). Following original_source's init() (which only
// issues EPOLL_CTL_MOD when the union actually differs from what is
// already registered), a no-op union is not re-submitted to the kernel.
// Callers must hold r.mu: it mutates slot.registeredMask.
func (r *Reactor) registerInterest(fd int, mask Events, slot *FdSlot) error {
	if slot.registeredMask == 0 {
		if err := r.kp.add(fd, mask, slot); err != nil {
			return wrapSyscall("register_add", fd, mask, err)
		}
		slot.registeredMask = mask
		return nil
	}
	union := slot.registeredMask | mask
	if union == slot.registeredMask {
		return nil
	}
	if err := r.kp.modify(fd, slot.registeredMask, union, slot); err != nil {
		return wrapSyscall("register_mod", fd, union, err)
	}
	slot.registeredMask = union
	return nil
}

// deregister drops maskToDrop from fd's registered interest (spec §4.2):
// modifies to the remaining mask if nonzero, deletes the kernel
// registration entirely otherwise. Callers must hold r.mu: it mutates
// slot.registeredMask.
func (r *Reactor) deregister(fd int, slot *FdSlot, maskToDrop Events) error {
	newMask := slot.registeredMask &^ maskToDrop
	if newMask == slot.registeredMask {
		return nil
	}
	if newMask != 0 {
		if err := r.kp.modify(fd, slot.registeredMask, newMask, slot); err != nil {
			return wrapSyscall("deregister_mod", fd, newMask, err)
		}
	} else {
		if err := r.kp.delete(fd); err != nil {
			return wrapSyscall("deregister_del", fd, 0, err)
		}
	}
	slot.registeredMask = newMask
	return nil
}

// NotifyClose is the close notifier of spec §4.4: the syscall hook layer
// must call this before invoking the real close(2), so a stale kernel
// registration doesn't outlive the fd and get attributed to whatever the
// kernel recycles that fd number for next. It does not touch slot.waiter:
// closing an fd with a pending waiter is a programmer error per spec, and
// that waiter is left to time out or wedge, exactly as specified.
func (r *Reactor) NotifyClose(fd int) {
	slot := r.slots.Lookup(fd)
	if slot == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if slot.registeredMask == 0 {
		return
	}
	mask := slot.registeredMask
	slot.registeredMask = 0
	if err := r.kp.delete(fd); err != nil {
		logKernelError("on_close_del", fd, mask, err)
	}
}

// Tick drains one kernel wait and dispatches, per spec §4.2. timeout < 0
// blocks indefinitely; timeout == 0 polls without blocking. Returns the
// number of coroutines resumed.
func (r *Reactor) Tick(timeout time.Duration) (int, error) {
	select {
	case <-r.closed:
		return 0, ErrClosed
	default:
	}

	n, err := r.kp.wait(timeout, r.eventBuf)
	if err != nil {
		logKernelError("kernel_wait", -1, 0, err)
		return 0, nil
	}

	for i := 0; i < n; i++ {
		r.handleEvent(r.eventBuf[i].slot, r.eventBuf[i].mask)
	}

	return r.drainDispatch(), nil
}

// handleEvent implements spec §4.2 step 2 for one reported (slot, mask)
// pair. Takes r.mu for its whole body: it reads/writes slot.waiter-
// reachable state that Poll's attach/detach mutate from arbitrary
// goroutines.
func (r *Reactor) handleEvent(slot *FdSlot, kernelMask Events) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := slot.waiter
	if w == nil {
		// Stale event for an fd whose wait already ended.
		if err := r.deregister(slot.fd, slot, kernelMask); err != nil {
			logKernelError("stale_clear", slot.fd, kernelMask, err)
		}
		return
	}

	idx := slot.slotIndexInWait
	wanted := pollEventMask(w.fds[idx].Events)
	hits := wanted & kernelMask
	if hits == 0 {
		// Kernel woke us for a bit no current waiter wants: residue from
		// a prior waiter's mask.
		if err := r.deregister(slot.fd, slot, kernelMask); err != nil {
			logKernelError("residue_clear", slot.fd, kernelMask, err)
		}
		return
	}

	w.recordHit(idx, hits)
	if w.timer != nil {
		r.wheel.Cancel(w.timer)
	}
	r.enqueueDispatch(w)
}

// pollEventMask masks out anything not in the canonical vocabulary the
// spec defines bit-exact translations for.
func pollEventMask(e Events) Events { return e & eventMaskAll }

// enqueueDispatch adds w to the per-tick dispatch list exactly once,
// matching spec §9's "move, not add — re-queuing is idempotent" intrusive
// list semantics via an explicit queued flag instead of relying on
// move-within-list behavior container/list doesn't expose across lists.
// Callers must hold r.mu: it mutates r.dispatch, the same list Poll's
// cleanup path removes from.
func (r *Reactor) enqueueDispatch(w *WaitRecord) {
	if w.queued {
		return
	}
	w.queued = true
	w.elem = r.dispatch.PushBack(w)
}

// drainDispatch walks the per-tick dispatch list and resumes each
// WaitRecord's waiter exactly once, per spec §4.2 step 3. Takes r.mu: see
// enqueueDispatch.
func (r *Reactor) drainDispatch() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	resumed := 0
	for e := r.dispatch.Front(); e != nil; {
		next := e.Next()
		w := e.Value.(*WaitRecord)
		r.dispatch.Remove(e)
		w.queued = false
		w.elem = nil

		if w.waiter.Resume(corosched.Ready) {
			resumed++
		}
		e = next
	}
	return resumed
}
