package h2disp

import "golang.org/x/net/http2"

// resetStreams is the Shutdown Coordinator's single-shot entry point. It
// flips ConnectionClosed and, only if it was the one to flip it, resets
// every stream that was Open at that instant and interrupts the demux
// loop's pending read. Returns whether this call won the race.
//
// Entries are removed directly here rather than left for the handler's
// own terminal signal to remove later: that is what makes the CAS guard
// in onStreamTerminal effective. By the time a reset handler's signal
// eventually fires, its entry is already gone, so the observer's CAS
// fails and no redundant RST_STREAM is emitted — satisfying "no reset
// storm on teardown".
func (d *Dispatcher) resetStreams(cause error) bool {
	if !d.closed.CompareAndSwap(false, true) {
		return false
	}

	d.shutdownCause.Store(&cause)

	d.table.rangeOpen(func(id uint32, e *streamEntry) {
		if d.table.remove(id, e) {
			e.handler.Reset(cause, false)
		}
	})

	_ = d.transport.Close()

	return true
}

// GoAway is the Shutdown Coordinator's go_away operation: reset every
// open stream with CANCEL, then send GOAWAY with the caller's code. If
// shutdown was already underway, this is a no-op that returns nil (a
// "satisfied completion" in spec terms).
func (d *Dispatcher) GoAway(code http2.ErrCode, debugData []byte) error {
	if !d.resetStreams(ErrCancelled) {
		return nil
	}
	return d.writer.GoAway(d.lastStreamID.Load(), code, debugData)
}
