package h2disp

import (
	"errors"

	"golang.org/x/net/http2"
)

// ErrCoder lets a LocalReset cause carry its own RST_STREAM error code
// instead of defaulting to CANCEL.
type ErrCoder interface {
	HTTP2ErrCode() http2.ErrCode
}

// onStreamTerminal is the Stream Lifecycle Observer: the callback every
// registered handler's terminal signal resolves to. It is called at most
// once per stream, since the signal it subscribes to is single-shot.
//
// openEntry is the exact *streamEntry installed at registration time.
// Using it (rather than re-reading the table) is what makes the CAS
// guards correct: if the shutdown coordinator already removed or
// replaced this entry, every CAS/CompareAndDelete below simply fails and
// this call becomes a no-op, so a stream the connection is tearing down
// never gets a second RST_STREAM racing the GOAWAY.
func (d *Dispatcher) onStreamTerminal(id uint32, openEntry *streamEntry, o Outcome) {
	switch o.Kind {
	case OutcomeOK, OutcomeRemoteReset:
		// Peer already knows the stream is gone (it reset it) or it
		// ended cleanly either way; no outbound RST.
		d.table.remove(id, openEntry)

	case OutcomeLocalReset:
		terminal := &streamEntry{kind: entryLocalReset}
		if d.table.casReplace(id, openEntry, terminal) {
			if !d.closed.Load() {
				_ = d.writer.Reset(id, resetCodeFor(o.Cause))
			}
			d.table.remove(id, terminal)
		}

	case OutcomeOther:
		terminal := &streamEntry{kind: entryFailed, cause: o.Cause}
		if d.table.casReplace(id, openEntry, terminal) {
			if !d.closed.Load() {
				_ = d.writer.Reset(id, http2.ErrCodeInternal)
			}
			d.table.remove(id, terminal)
		}
	}
}

// resetCodeFor maps a LocalReset cause to the RST_STREAM error code to
// emit, defaulting unmapped causes to CANCEL per spec.
func resetCodeFor(cause error) http2.ErrCode {
	var coder ErrCoder
	if errors.As(cause, &coder) {
		return coder.HTTP2ErrCode()
	}
	return http2.ErrCodeCancel
}
