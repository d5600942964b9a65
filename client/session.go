// Package client is the stream-admission side of h2disp for outgoing
// HTTP/2 requests: it dials, opens a stream per request, and never
// accepts unsolicited stream ids from the server (no PUSH_PROMISE
// support), grounded on the teacher's Client/Dialer pair in
// client.go/conn.go but built on top of h2disp.Dispatcher instead of a
// hand-rolled channel pump.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/domsolutions/h2disp"
	"github.com/domsolutions/h2disp/internal/logging"
	"github.com/domsolutions/h2disp/transport"
	"github.com/valyala/fasthttp"
	"golang.org/x/net/http2"
)

// Options configures a Session, mirroring the teacher's Dialer plus
// ConnOpts.
type Options struct {
	Addr      string
	TLSConfig *tls.Config
	Logger    logging.Logger

	h2disp.Config
}

// Session is one HTTP/2 connection to a server, dispatching requests
// onto it. Safe for concurrent Do calls.
type Session struct {
	conn       *transport.Conn
	dispatcher *h2disp.Dispatcher
	logger     logging.Logger

	// nextID holds the stream id the *next* call to Do will use; client
	// stream ids are odd, starting at 1 per RFC 7540 §5.1.1.
	nextID atomic.Uint32
}

// Dial opens a new Session.
func Dial(ctx context.Context, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard
	}

	dialer := transport.Dialer{Addr: opts.Addr, TLSConfig: opts.TLSConfig, Logger: logger}
	conn, err := dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", opts.Addr, err)
	}

	cfg := opts.Config
	cfg.Logger = logger

	s := &Session{conn: conn, logger: logger}
	s.nextID.Store(1)

	s.dispatcher = h2disp.New(conn, conn, rejectingAdmitter{conn: conn, logger: logger}, cfg)

	go func() {
		if err := s.dispatcher.Run(); err != nil {
			logger.Warn("client session ended", "addr", opts.Addr, "err", err)
		}
	}()

	return s, nil
}

// nextStreamID returns the next odd stream id to use and advances the
// counter for the following call.
func (s *Session) nextStreamID() uint32 {
	return s.nextID.Add(2) - 2
}

// Do sends req and blocks until resp is fully populated or ctx is
// cancelled. The underlying stream is reset with CANCEL if ctx expires
// first.
func (s *Session) Do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	id := s.nextStreamID()

	strm := newStream(id, resp)
	if err := s.dispatcher.RegisterStream(id, strm); err != nil {
		return err
	}

	done := make(chan struct{})
	var outcome h2disp.Outcome
	strm.OnReset(func(o h2disp.Outcome) {
		outcome = o
		close(done)
	})

	hasBody := len(req.Body()) > 0
	if err := s.conn.EncodeAndWriteHeaders(id, !hasBody, requestHeaderFields(req)); err != nil {
		return fmt.Errorf("client: writing headers: %w", err)
	}
	if hasBody {
		if err := s.conn.WriteData(id, true, req.Body()); err != nil {
			return fmt.Errorf("client: writing body: %w", err)
		}
	}

	select {
	case <-done:
	case <-ctx.Done():
		strm.Reset(ctx.Err(), true)
		return ctx.Err()
	}

	if outcome.Kind != h2disp.OutcomeOK {
		if outcome.Cause != nil {
			return outcome.Cause
		}
		return fmt.Errorf("client: stream %d ended without a response", id)
	}
	return nil
}

// Ping issues a liveness probe and waits up to timeout for the reply.
func (s *Session) Ping(timeout time.Duration) error {
	w := s.dispatcher.Ping()
	select {
	case <-w.Done():
		return w.Wait()
	case <-time.After(timeout):
		return fmt.Errorf("client: ping timed out after %s", timeout)
	}
}

// Close gracefully tears the session down.
func (s *Session) Close() error {
	return s.dispatcher.GoAway(0, nil)
}

// rejectingAdmitter refuses every server-initiated stream id with
// REFUSED_STREAM rather than killing the connection outright: this
// package opens streams, it never accepts them (no PUSH_PROMISE
// support), but one unsolicited id from a misbehaving server shouldn't
// be fatal to an otherwise-healthy session.
type rejectingAdmitter struct {
	conn   *transport.Conn
	logger logging.Logger
}

func (a rejectingAdmitter) DemuxNewStream(fr http2.Frame) error {
	a.logger.Warn("refusing unsolicited stream from server", "streamID", fr.Header().StreamID)
	return a.conn.Reset(fr.Header().StreamID, http2.ErrCodeRefusedStream)
}
