package corosched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaiterParkResume(t *testing.T) {
	w := NewWaiter()
	done := make(chan RetCode, 1)
	go func() {
		done <- w.Park()
	}()

	// give the goroutine a chance to reach Park before resuming.
	time.Sleep(10 * time.Millisecond)
	require.True(t, w.Resume(Ready))

	select {
	case code := <-done:
		require.Equal(t, Ready, code)
	case <-time.After(time.Second):
		t.Fatal("Park never returned")
	}
}

func TestWaiterRedundantResumeIsNoop(t *testing.T) {
	w := NewWaiter()
	require.True(t, w.Resume(Ready))
	require.False(t, w.Resume(Timeout))
	require.Equal(t, Ready, w.Park())
	require.True(t, w.Resumed())
}

func TestWaiterConcurrentResumeRace(t *testing.T) {
	w := NewWaiter()
	results := make(chan bool, 2)
	go func() { results <- w.Resume(Ready) }()
	go func() { results <- w.Resume(Timeout) }()

	first, second := <-results, <-results
	require.True(t, first != second, "exactly one Resume call should win")
	require.Contains(t, []RetCode{Ready, Timeout}, w.Park())
}
