package h2disp

import "golang.org/x/net/http2"

// Executor offloads work from the demux loop's goroutine. The PING path
// needs one: issuing a PING synchronously from inside the read loop would
// mean the loop couldn't read the ACK that completes it. A Transport that
// exposes no Executor degrades PING to an immediately-satisfied no-op,
// per spec.
type Executor interface {
	Go(func())
}

// Transport is the single reader/writer collaborator a Dispatcher drives.
// At most one goroutine ever calls ReadFrame concurrently: the demux loop
// itself.
type Transport interface {
	// ReadFrame blocks for the next frame. Implementations should wrap
	// unparsable input in ErrMalformedFrame rather than returning a raw
	// decode error, so the demux loop can tell "garbage on the wire"
	// apart from "peer violated the protocol".
	ReadFrame() (http2.Frame, error)

	// Executor returns the off-loop scheduler, or nil if none is
	// available.
	Executor() Executor

	// CloseSignal fires exactly once, when the transport dies for any
	// reason (including a local Close call).
	CloseSignal() <-chan struct{}

	// Close tears down the transport, unblocking any pending ReadFrame.
	Close() error
}

// Writer is the fire-and-forget outbound-frame collaborator. Callers may
// ignore the returned error (the frame was queued for send) or wait on it
// (the frame was flushed); both are legitimate depending on context, as
// in the spec's "completions the core may or may not wait on".
type Writer interface {
	SendPing() error
	Reset(streamID uint32, code http2.ErrCode) error
	GoAway(lastStreamID uint32, code http2.ErrCode, debugData []byte) error
	WriteSettings(settings ...http2.Setting) error

	// WriteHeaders and WriteData let a StreamHandler emit its own
	// response/request framing; shaped directly after
	// (*http2.Framer).WriteHeaders/WriteData rather than a generic
	// Frame value, since the codec has no "replay this inbound-shaped
	// frame outbound" operation.
	WriteHeaders(p http2.HeadersFrameParam) error
	WriteData(streamID uint32, endStream bool, data []byte) error
	WriteWindowUpdate(streamID uint32, increment uint32) error
}

// StreamHandler is the per-stream collaborator the dispatcher never
// constructs, only drives. Frame↔message translation, header assembly
// and flow control all live behind this interface.
type StreamHandler interface {
	// Recv delivers one inbound frame for this stream, in transport
	// read order.
	Recv(fr http2.Frame)

	// Reset tells the handler the stream is over. local=false means the
	// dispatcher is tearing the whole connection down and the handler
	// must not emit its own RST_STREAM for this call.
	Reset(cause error, local bool)

	// OnReset subscribes to the handler's single-shot terminal signal.
	// Implementations typically delegate to an embedded TerminalSignal.
	OnReset(fn func(Outcome))
}

// NewStreamAdmitter is supplied by the client/server subclass embedding
// the dispatcher; it decides whether a never-seen stream id may be
// admitted and, if so, registers it.
type NewStreamAdmitter interface {
	DemuxNewStream(fr http2.Frame) error
}
