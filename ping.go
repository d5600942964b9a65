package h2disp

import "sync/atomic"

// PingWaiter is the completion handle returned by Ping. It is the
// idiomatic-Go shape of the spec's "completion": the caller gets it back
// immediately and decides for itself whether to block on Wait or just
// fire-and-forget.
type PingWaiter struct {
	done chan struct{}
	err  error
}

func newPingWaiter() *PingWaiter {
	return &PingWaiter{done: make(chan struct{})}
}

func (w *PingWaiter) complete(err error) {
	w.err = err
	close(w.done)
}

// Done returns a channel closed once the PING is resolved (ACKed,
// failed to send, or found another PING already outstanding).
func (w *PingWaiter) Done() <-chan struct{} { return w.done }

// Wait blocks until the PING resolves and returns its error, if any.
func (w *PingWaiter) Wait() error {
	<-w.done
	return w.err
}

// satisfiedPing returns an already-complete waiter, used for the
// no-executor degradation and other cases where the result is known
// synchronously.
func satisfiedPing(err error) *PingWaiter {
	w := newPingWaiter()
	w.complete(err)
	return w
}

// PingCoordinator enforces "at most one outstanding PING" over a Writer.
// It has no mutex: the slot is a single atomic pointer and every
// transition is a compare-and-swap.
type PingCoordinator struct {
	writer Writer
	slot   atomic.Pointer[PingWaiter]
}

// NewPingCoordinator returns a coordinator that sends PINGs through w.
func NewPingCoordinator(w Writer) *PingCoordinator {
	return &PingCoordinator{writer: w}
}

// Ping requests a liveness probe. If exec is nil (the transport exposes
// no off-loop executor) it returns an immediately-satisfied waiter: with
// no independent thread of execution, issuing a PING from the caller's
// own goroutine risks deadlocking the very loop that would read the ACK,
// so the coordinator self-neuters and reports "alive" — a conservative
// degradation a failure detector built on top of it should be aware of.
func (p *PingCoordinator) Ping(exec Executor) *PingWaiter {
	if exec == nil {
		return satisfiedPing(nil)
	}

	w := newPingWaiter()
	exec.Go(func() {
		if !p.slot.CompareAndSwap(nil, w) {
			w.complete(ErrOutstandingPing)
			return
		}

		if err := p.writer.SendPing(); err != nil {
			// Clear the slot we just claimed so a later PING isn't
			// permanently blocked behind a send that never went out.
			p.slot.CompareAndSwap(w, nil)
			w.complete(err)
		}
	})
	return w
}

// HandlePingAck satisfies whatever waiter is outstanding, if any. Called
// by the demux loop on an inbound PING carrying the ACK flag.
func (p *PingCoordinator) HandlePingAck() {
	w := p.slot.Swap(nil)
	if w != nil {
		w.complete(nil)
	}
}
