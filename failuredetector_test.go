package h2disp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTickerFailureDetectorDeclaresDeadAfterMaxMissed(t *testing.T) {
	d := &TickerFailureDetector{Interval: 5 * time.Millisecond, MaxMissed: 2}

	probes := 0
	dead := make(chan struct{})
	d.Start("test", func() *PingWaiter {
		probes++
		return satisfiedPing(ErrOutstandingPing) // always "missed"
	}, func() {
		close(dead)
	})
	defer d.Stop()

	select {
	case <-dead:
	case <-time.After(time.Second):
		t.Fatal("detector never declared the connection dead")
	}
	require.GreaterOrEqual(t, probes, 2)
}

func TestTickerFailureDetectorResetsOnHealthyProbe(t *testing.T) {
	d := &TickerFailureDetector{Interval: 5 * time.Millisecond, MaxMissed: 2}

	calls := 0
	dead := false
	done := make(chan struct{})
	d.Start("test", func() *PingWaiter {
		calls++
		if calls <= 3 {
			return satisfiedPing(nil) // healthy, resets the miss counter
		}
		return satisfiedPing(ErrOutstandingPing)
	}, func() {
		dead = true
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("detector never declared the connection dead")
	}
	d.Stop()
	require.True(t, dead)
	require.Greater(t, calls, 3, "healthy probes must have postponed the dead verdict")
}

func TestTickerFailureDetectorStopIsIdempotentAndSynchronous(t *testing.T) {
	d := &TickerFailureDetector{Interval: time.Millisecond, MaxMissed: 1000}
	d.Start("test", func() *PingWaiter { return satisfiedPing(nil) }, func() {})
	d.Stop()
	d.Stop() // must not panic or block
}

func TestNullDetectorNeverFires(t *testing.T) {
	var called bool
	NullDetector{}.Start("test", func() *PingWaiter { return satisfiedPing(nil) }, func() { called = true })
	NullDetector{}.Stop()
	require.False(t, called)
}
