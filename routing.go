package h2disp

import "golang.org/x/net/http2"

// route implements the demux loop's per-frame dispatch table (spec
// §4.4). It is only ever called from the single goroutine running Run,
// so reads of d.closed here observe at-least the state as of the most
// recent iteration — any staler view just means an RST/GoAway attempt
// below turns into a harmless no-op guarded by the writer/closed checks.
func (d *Dispatcher) route(fr http2.Frame) error {
	switch v := fr.(type) {
	case *http2.GoAwayFrame:
		d.resetStreams(ErrCancelled)
		return nil

	case *http2.SettingsFrame:
		// Applying settings is the embedding subclass's concern; the
		// dispatcher only needs to keep the loop alive.
		return nil

	case *http2.PingFrame:
		if v.IsAck() {
			d.ping.HandlePingAck()
		}
		return nil

	case *http2.WindowUpdateFrame:
		if v.StreamID == 0 {
			// Connection-level flow control is, like SETTINGS, left to
			// the embedding subclass; stream-level updates are routed to
			// their stream below.
			return nil
		}
	}

	hdr := fr.Header()
	if hdr.StreamID == 0 {
		err := &ProtocolError{Reason: "frame on stream 0"}
		_ = d.GoAway(http2.ErrCodeProtocol, nil)
		return &IllegalArgumentError{Err: err}
	}

	if !isStreamFrame(fr) {
		err := &ProtocolError{Reason: "unexpected frame kind: " + hdr.Type.String()}
		_ = d.GoAway(http2.ErrCodeProtocol, nil)
		return &IllegalArgumentError{Err: err}
	}

	return d.routeStreamFrame(hdr.StreamID, fr)
}

func (d *Dispatcher) routeStreamFrame(id uint32, fr http2.Frame) error {
	if entry, ok := d.table.load(id); ok {
		if entry.kind == entryOpen {
			entry.handler.Recv(fr)
		}
		// LocalReset/Failed: straggler frame for a stream we've already
		// disposed of; discard silently.
		return nil
	}

	if id <= d.table.HighWater() {
		if !d.closed.Load() {
			_ = d.writer.Reset(id, http2.ErrCodeStreamClosed)
		}
		return nil
	}

	if d.admitter == nil {
		if !d.closed.Load() {
			_ = d.writer.Reset(id, http2.ErrCodeRefusedStream)
		}
		return nil
	}

	return d.admitter.DemuxNewStream(fr)
}

// isStreamFrame reports whether fr is one of the frame kinds the demux
// loop is willing to route to a per-stream handler.
func isStreamFrame(fr http2.Frame) bool {
	switch fr.(type) {
	case *http2.DataFrame,
		*http2.HeadersFrame,
		*http2.PriorityFrame,
		*http2.RSTStreamFrame,
		*http2.PushPromiseFrame,
		*http2.ContinuationFrame,
		*http2.WindowUpdateFrame,
		*http2.MetaHeadersFrame:
		return true
	default:
		return false
	}
}
