package h2disp

import (
	"errors"
	"fmt"
)

// ErrOutstandingPing is returned by Ping when a PING is already in flight.
// It is a soft error: it never touches connection state.
var ErrOutstandingPing = errors.New("h2disp: ping already outstanding")

// ErrConnectionClosed is returned by operations attempted after the
// dispatcher has begun shutdown.
var ErrConnectionClosed = errors.New("h2disp: connection closed")

// ErrMalformedFrame is the sentinel a Transport should wrap read errors in
// when the underlying bytes could not be parsed as an HTTP/2 frame at all
// (garbage on the wire, not a protocol violation by a well-formed peer).
// The demux loop treats it as a clean, silent termination: log and stop,
// no GOAWAY.
var ErrMalformedFrame = errors.New("h2disp: malformed frame observed")

// DuplicateStreamError is returned by RegisterStream when the id is
// already occupied in the stream table.
type DuplicateStreamError struct {
	ID uint32
}

func (e *DuplicateStreamError) Error() string {
	return fmt.Sprintf("h2disp: stream %d already registered", e.ID)
}

// ProtocolError describes a peer action disallowed by RFC 7540 that the
// demux loop detected on its own (as opposed to one reported by the frame
// codec itself).
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "h2disp: protocol error: " + e.Reason
}

// IllegalArgumentError is the terminal cause Run returns after emitting a
// protocol-error GOAWAY, matching the "IllegalArgument" termination named
// in the dispatcher's routing table for stream-0 violations and unknown
// frame kinds.
type IllegalArgumentError struct {
	Err error
}

func (e *IllegalArgumentError) Error() string { return e.Err.Error() }
func (e *IllegalArgumentError) Unwrap() error { return e.Err }

// InterruptedError wraps the cause a pending read was cancelled with when
// the shutdown coordinator tore the connection down out from under the
// demux loop.
type InterruptedError struct {
	Cause error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("h2disp: interrupted: %s", e.Cause)
}
func (e *InterruptedError) Unwrap() error { return e.Cause }
