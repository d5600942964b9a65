package h2disp

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPingNoExecutorDegradesToSatisfied(t *testing.T) {
	w := &fakeWriter{}
	coord := NewPingCoordinator(w)

	waiter := coord.Ping(nil)

	select {
	case <-waiter.Done():
	default:
		t.Fatal("waiter must already be done with a nil executor")
	}
	require.NoError(t, waiter.Wait())
	w.mu.Lock()
	pings := w.pings
	w.mu.Unlock()
	require.Equal(t, 0, pings)
}

func TestPingResolvesOnAck(t *testing.T) {
	w := &fakeWriter{}
	coord := NewPingCoordinator(w)

	waiter := coord.Ping(fakeExecutor{})
	waitForCondition(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.pings == 1
	})

	coord.HandlePingAck()

	select {
	case <-waiter.Done():
	case <-time.After(time.Second):
		t.Fatal("ack did not resolve the waiter in time")
	}
	require.NoError(t, waiter.Wait())
}

func TestPingRejectsConcurrentOutstanding(t *testing.T) {
	w := &fakeWriter{}
	coord := NewPingCoordinator(w)

	first := coord.Ping(fakeExecutor{})
	waitForCondition(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.pings == 1
	})

	second := coord.Ping(fakeExecutor{})
	require.ErrorIs(t, second.Wait(), ErrOutstandingPing)

	coord.HandlePingAck()
	require.NoError(t, first.Wait())
}

func TestPingSendFailureClearsSlot(t *testing.T) {
	sendErr := errors.New("send failed")
	w := &fakeWriter{pingErr: sendErr}
	coord := NewPingCoordinator(w)

	first := coord.Ping(fakeExecutor{})
	require.ErrorIs(t, first.Wait(), sendErr)

	// The failed send must have released the slot for the next attempt.
	w.mu.Lock()
	w.pingErr = nil
	w.mu.Unlock()
	second := coord.Ping(fakeExecutor{})
	waitForCondition(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.pings == 2
	})
	coord.HandlePingAck()
	require.NoError(t, second.Wait())
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
