package h2disp

import "sync"

// OutcomeKind tags the sum type a stream handler's terminal signal carries.
type OutcomeKind int8

const (
	// OutcomeOK means the stream completed cleanly.
	OutcomeOK OutcomeKind = iota
	// OutcomeRemoteReset means the peer sent RST_STREAM for this stream.
	OutcomeRemoteReset
	// OutcomeLocalReset means the local side decided to cancel the stream.
	OutcomeLocalReset
	// OutcomeOther means the handler failed for any other reason.
	OutcomeOther
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "OK"
	case OutcomeRemoteReset:
		return "RemoteReset"
	case OutcomeLocalReset:
		return "LocalReset"
	case OutcomeOther:
		return "Other"
	default:
		return "Unknown"
	}
}

// Outcome is the value a StreamHandler reports exactly once through
// OnReset when the stream ends.
type Outcome struct {
	Kind  OutcomeKind
	Cause error
}

// TerminalSignal is a write-once outcome broadcaster: the natural
// building block for a StreamHandler's OnReset/Fire pair. A handler
// embeds one, calls Fire exactly once when it decides the stream is
// done, and exposes OnReset as its subscription point. OnReset fans out
// to every subscriber, not just the last one registered — the
// dispatcher always subscribes its lifecycle observer at registration
// time (RegisterStream), and an embedder is free to subscribe its own
// completion handler on top of that without silently replacing it.
// Subscribing after Fire has already run delivers the stored outcome
// immediately, so the dispatcher's registration ordering (subscribe
// right after insert) never races a handler that finishes before
// OnReset is even called.
type TerminalSignal struct {
	mu      sync.Mutex
	fired   bool
	outcome Outcome
	subs    []func(Outcome)
}

// Fire reports the terminal outcome. Only the first call has any effect;
// later calls are ignored, matching the single-shot contract.
func (s *TerminalSignal) Fire(o Outcome) {
	s.mu.Lock()
	if s.fired {
		s.mu.Unlock()
		return
	}
	s.fired = true
	s.outcome = o
	subs := s.subs
	s.mu.Unlock()

	for _, sub := range subs {
		sub(o)
	}
}

// OnReset adds fn to the set of subscribers. If the outcome already
// fired, fn runs synchronously before OnReset returns instead of being
// added to the list.
func (s *TerminalSignal) OnReset(fn func(Outcome)) {
	s.mu.Lock()
	if s.fired {
		o := s.outcome
		s.mu.Unlock()
		fn(o)
		return
	}
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}
