// Package server is the stream-admission side of h2disp for accepting
// HTTP/2 connections: it completes the server handshake, admits
// client-initiated streams, runs a configured fasthttp.RequestHandler
// per request, and enforces idle-connection and per-stream lifetime
// limits, grounded on the teacher's serverConn in server.go.
package server

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/domsolutions/h2disp"
	"github.com/domsolutions/h2disp/internal/logging"
	"github.com/domsolutions/h2disp/transport"
	"github.com/valyala/fasthttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// Options configures a Conn, mirroring the teacher's Server fields
// (ReadTimeout, Handler) plus the limits serverConn enforced inline.
type Options struct {
	Handler fasthttp.RequestHandler

	// MaxConcurrentStreams rejects new streams past this count with
	// REFUSED_STREAM rather than admitting them. Zero means unlimited.
	MaxConcurrentStreams uint32

	// MaxIdleTime tears the connection down with a GOAWAY once it sits
	// with zero open streams for this long. Zero disables the timer,
	// grounded on the teacher's closeIdleConn/maxIdleTimer.
	MaxIdleTime time.Duration

	// MaxStreamLifetime resets any single stream still open this long
	// after admission, grounded on the teacher's maxRequestTime.
	MaxStreamLifetime time.Duration

	Logger logging.Logger

	h2disp.Config
}

// Conn is one accepted HTTP/2 connection.
type Conn struct {
	transport  *transport.Conn
	dispatcher *h2disp.Dispatcher
	opts       Options
	logger     logging.Logger

	openStreams atomic.Int32
	idleTimer   *time.Timer
}

// errStreamLifetimeExceeded is the cause given to a stream reset by the
// MaxStreamLifetime timer; it carries no ErrCoder, so the dispatcher's
// observer maps it to the default CANCEL per observer.go.
var errStreamLifetimeExceeded = fmt.Errorf("server: stream exceeded its maximum lifetime")

// NewConn completes the server-side HTTP/2 preface over nc and returns
// a Conn ready for Serve. nc must already be past any TLS/ALPN
// negotiation the caller wants.
func NewConn(nc net.Conn, opts Options) (*Conn, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard
	}

	t := transport.New(nc, logger, hpack.NewDecoder(4096, nil))
	if err := transport.Handshake(t, true, nil); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("server: handshake: %w", err)
	}

	c := &Conn{transport: t, opts: opts, logger: logger}

	cfg := opts.Config
	cfg.Logger = logger
	c.dispatcher = h2disp.New(t, t, c, cfg)

	if opts.MaxIdleTime > 0 {
		c.idleTimer = time.AfterFunc(opts.MaxIdleTime, c.closeIdleConn)
	}

	return c, nil
}

// ActiveStreams reports the number of streams currently open on this
// connection, delegating to the dispatcher's stream table.
func (c *Conn) ActiveStreams() int { return c.dispatcher.ActiveStreams() }

// HighWater reports the largest stream id this connection has retired.
func (c *Conn) HighWater() uint32 { return c.dispatcher.HighWater() }

// Serve runs the connection's demux loop until it ends.
func (c *Conn) Serve() error {
	err := c.dispatcher.Run()
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	return err
}

// closeIdleConn fires once MaxIdleTime elapses with no open streams.
// DemuxNewStream stops the timer on every admission and the last open
// stream's completion rearms it; the openStreams check here also skips
// the GOAWAY if a stream was admitted while the timer was firing.
func (c *Conn) closeIdleConn() {
	if c.openStreams.Load() > 0 {
		return
	}
	c.logger.Info("closing idle connection", "maxIdleTime", c.opts.MaxIdleTime)
	_ = c.dispatcher.GoAway(http2.ErrCodeNo, []byte("idle timeout"))
}

// DemuxNewStream implements h2disp.NewStreamAdmitter. It only admits
// streams opened by a MetaHeadersFrame on an odd (client-initiated)
// stream id, matching RFC 7540 §5.1.1; anything else is a protocol
// violation fatal to the connection.
func (c *Conn) DemuxNewStream(fr http2.Frame) error {
	hdr := fr.Header()

	mh, ok := fr.(*http2.MetaHeadersFrame)
	if !ok {
		_ = c.dispatcher.GoAway(http2.ErrCodeProtocol, []byte("stream opened without HEADERS"))
		return fmt.Errorf("server: stream %d opened with a %s frame", hdr.StreamID, hdr.Type)
	}
	if hdr.StreamID%2 == 0 {
		_ = c.dispatcher.GoAway(http2.ErrCodeProtocol, []byte("even stream id from client"))
		return fmt.Errorf("server: even stream id %d from client", hdr.StreamID)
	}

	if c.opts.MaxConcurrentStreams > 0 && uint32(c.openStreams.Load()) >= c.opts.MaxConcurrentStreams {
		return c.transport.Reset(hdr.StreamID, http2.ErrCodeRefusedStream)
	}

	strm := newStream(hdr.StreamID, c)
	if err := c.dispatcher.RegisterStream(hdr.StreamID, strm); err != nil {
		return err
	}

	c.openStreams.Add(1)
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}

	var lifetime *time.Timer
	if c.opts.MaxStreamLifetime > 0 {
		lifetime = time.AfterFunc(c.opts.MaxStreamLifetime, func() {
			strm.Reset(errStreamLifetimeExceeded, true)
		})
	}

	strm.OnReset(func(h2disp.Outcome) {
		if lifetime != nil {
			lifetime.Stop()
		}
		if c.openStreams.Add(-1) == 0 && c.idleTimer != nil {
			c.idleTimer.Reset(c.opts.MaxIdleTime)
		}
	})

	strm.Recv(mh)
	return nil
}

// writeResponse serializes resp back to the peer as one HEADERS frame
// followed, if there is a body, by one DATA frame.
func (c *Conn) writeResponse(id uint32, resp *fasthttp.Response) error {
	body := resp.Body()
	if err := c.transport.EncodeAndWriteHeaders(id, len(body) == 0, responseHeaderFields(resp)); err != nil {
		return fmt.Errorf("server: writing response headers: %w", err)
	}
	if len(body) > 0 {
		if err := c.transport.WriteData(id, true, body); err != nil {
			return fmt.Errorf("server: writing response body: %w", err)
		}
	}
	return nil
}

var _ h2disp.NewStreamAdmitter = (*Conn)(nil)
