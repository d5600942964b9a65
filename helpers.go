package h2disp

import (
	"errors"
	"fmt"
	"io"
)

// ErrCancelled is the cause used for wholesale connection teardown: peer
// GOAWAY, local go_away, and transport-close all reset open streams with
// this cause, which translates to CANCEL on the wire.
var ErrCancelled = errors.New("h2disp: connection cancelled")

func cancelCause(err error) error {
	if err == nil {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %s", ErrCancelled, err)
}

func isMalformedFrame(err error) bool {
	return errors.Is(err, ErrMalformedFrame)
}

func isCleanPeerClose(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
