//go:build linux || darwin || freebsd || dragonfly
// +build linux darwin freebsd dragonfly

package conet

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

type pollOutcome struct {
	n   int
	err error
}

func pollAsync(r *Reactor, fds []PollFD, timeout time.Duration) <-chan pollOutcome {
	done := make(chan pollOutcome, 1)
	go func() {
		n, err := r.Poll(fds, timeout)
		done <- pollOutcome{n, err}
	}()
	return done
}

func newTestReactor(t *testing.T) *Reactor {
	t.Helper()
	r, err := NewReactor(WithEventBufferSize(64))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, r.Close()) })
	return r
}

func pipePair(t *testing.T) (rFile, wFile *os.File) {
	t.Helper()
	rFile, wFile, err := os.Pipe()
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(int(rFile.Fd()), true))
	require.NoError(t, unix.SetNonblock(int(wFile.Fd()), true))
	t.Cleanup(func() {
		rFile.Close()
		wFile.Close()
	})
	return rFile, wFile
}

// Scenario 1 (spec §8): simple read.
func TestPollSimpleRead(t *testing.T) {
	r := newTestReactor(t)
	rf, wf := pipePair(t)

	fds := []PollFD{{Fd: int(rf.Fd()), Events: EventRead}}
	result := pollAsync(r, fds, -1)

	time.Sleep(20 * time.Millisecond)
	_, err := wf.Write([]byte{1})
	require.NoError(t, err)

	select {
	case res := <-result:
		require.NoError(t, res.err)
		require.Equal(t, 1, res.n)
		require.Equal(t, EventRead, fds[0].Revents)
	case <-time.After(2 * time.Second):
		t.Fatal("Poll never returned")
	}
}

// Scenario 2 (spec §8): timeout.
func TestPollTimeout(t *testing.T) {
	r := newTestReactor(t)
	rf, _ := pipePair(t)

	fds := []PollFD{{Fd: int(rf.Fd()), Events: EventRead}}
	start := time.Now()
	n, err := r.Poll(fds, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, Events(0), fds[0].Revents)
	require.GreaterOrEqual(t, elapsed, 45*time.Millisecond)
}

// Scenario 3 (spec §8): two fds, one fires.
func TestPollTwoFdsOneFires(t *testing.T) {
	r := newTestReactor(t)
	aR, _ := pipePair(t)
	bR, bW := pipePair(t)

	fds := []PollFD{
		{Fd: int(aR.Fd()), Events: EventRead},
		{Fd: int(bR.Fd()), Events: EventRead},
	}

	done := make(chan int, 1)
	go func() {
		n, err := r.Poll(fds, -1)
		require.NoError(t, err)
		done <- n
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := bW.Write([]byte{1})
	require.NoError(t, err)

	select {
	case n := <-done:
		require.Equal(t, 1, n)
		require.Equal(t, Events(0), fds[0].Revents)
		require.Equal(t, EventRead, fds[1].Revents)
	case <-time.After(2 * time.Second):
		t.Fatal("Poll never returned")
	}
}

// Scenario 4 (spec §8): mask union across time — two waiters across two
// non-overlapping Poll calls on the same fd, second registering a
// different event than the first.
func TestPollMaskUnionAcrossTime(t *testing.T) {
	r := newTestReactor(t)
	sp, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(sp[0])
		unix.Close(sp[1])
	})
	fd := sp[0]

	fdsA := []PollFD{{Fd: fd, Events: EventRead}}
	resA := <-pollAsync(r, fdsA, 50*time.Millisecond)
	require.NoError(t, resA.err)
	require.Equal(t, 0, resA.n) // times out, nobody wrote

	fdsB := []PollFD{{Fd: fd, Events: EventWrite}}
	done := pollAsync(r, fdsB, -1)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.Equal(t, 1, res.n)
		require.Equal(t, EventWrite, fdsB[0].Revents)
	case <-time.After(2 * time.Second):
		t.Fatal("second Poll never returned (socket should be immediately writable)")
	}

	slot := r.slots.Lookup(fd)
	require.Nil(t, slot.waiter, "no waiter should remain cross-linked after both calls return")
}

// Scenario 5 (spec §8): close during wait — NotifyClose followed by the
// real close must not crash the reactor; the waiter times out.
func TestPollCloseDuringWait(t *testing.T) {
	r := newTestReactor(t)
	rf, _ := pipePair(t)
	fd := int(rf.Fd())

	fds := []PollFD{{Fd: fd, Events: EventRead}}
	done := pollAsync(r, fds, 100*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	r.NotifyClose(fd)
	require.NoError(t, rf.Close())

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.Equal(t, 0, res.n) // times out: no reader resumed it otherwise
	case <-time.After(2 * time.Second):
		t.Fatal("Poll wedged after close")
	}
}

// Scenario 6 (spec §8), scaled down from 10,000 to keep test runtime
// reasonable: many coroutines each wait on a distinct pipe; a writer fans
// out one byte to each; every waiter must return ready exactly once with
// NumReady == 1.
func TestPollManyFdsEachResumedOnce(t *testing.T) {
	const n = 256
	r := newTestReactor(t)

	readers := make([]*os.File, n)
	writers := make([]*os.File, n)
	for i := 0; i < n; i++ {
		readers[i], writers[i] = pipePair(t)
	}

	results := make([]int, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			fds := []PollFD{{Fd: int(readers[i].Fd()), Events: EventRead}}
			nReady, err := r.Poll(fds, 5*time.Second)
			require.NoError(t, err)
			results[i] = nReady
		}()
	}

	time.Sleep(30 * time.Millisecond)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			_, err := writers[i].Write([]byte{1})
			return err
		})
	}
	require.NoError(t, g.Wait())

	wg.Wait()
	for i, got := range results {
		require.Equal(t, 1, got, "fd %d should have resumed with exactly one ready entry", i)
	}
}

// Open question pinned (spec §9): Poll with nfds == 0 is a pure sleep —
// no fds to wait on, so only the timer (if any) can wake it.
func TestPollZeroFdsIsASleep(t *testing.T) {
	r := newTestReactor(t)

	start := time.Now()
	n, err := r.Poll(nil, 30*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.GreaterOrEqual(t, elapsed, 25*time.Millisecond)
}

func TestPollDoubleWaitOnSameFdPanics(t *testing.T) {
	r := newTestReactor(t)
	rf, _ := pipePair(t)
	fd := int(rf.Fd())

	slot := r.slots.Slot(fd)
	slot.waiter = &WaitRecord{}

	require.Panics(t, func() {
		_, _ = r.Poll([]PollFD{{Fd: fd, Events: EventRead}}, -1)
	})
}

func TestPollNegativeFdPanics(t *testing.T) {
	r := newTestReactor(t)
	require.Panics(t, func() {
		_, _ = r.Poll([]PollFD{{Fd: -1, Events: EventRead}}, -1)
	})
}

func TestPendingWaitersDiagnostic(t *testing.T) {
	r := newTestReactor(t)
	rf, wf := pipePair(t)

	require.Equal(t, 0, r.PendingWaiters())

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		fds := []PollFD{{Fd: int(rf.Fd()), Events: EventRead}}
		_, _ = r.Poll(fds, -1)
		close(done)
	}()

	<-started
	require.Eventually(t, func() bool { return r.PendingWaiters() == 1 }, time.Second, time.Millisecond)

	_, err := wf.Write([]byte{1})
	require.NoError(t, err)
	<-done
	require.Eventually(t, func() bool { return r.PendingWaiters() == 0 }, time.Second, time.Millisecond)
}
