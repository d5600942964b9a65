// Package transport adapts a net.Conn speaking the HTTP/2 wire format
// into the h2disp.Transport and h2disp.Writer collaborators, using
// golang.org/x/net/http2's Framer as the codec. It is the concrete
// counterpart of the teacher's Conn/serverConn net.Conn plumbing,
// generalized to sit behind the dispatcher's interfaces instead of
// owning stream bookkeeping itself.
package transport

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/domsolutions/h2disp"
	"github.com/domsolutions/h2disp/internal/logging"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// goExecutor runs work on its own goroutine, mirroring the teacher's
// pattern of independent writeLoop/readLoop goroutines around one
// net.Conn.
type goExecutor struct{}

func (goExecutor) Go(fn func()) { go fn() }

// Conn is the net.Conn-backed Transport and Writer. Exactly one
// goroutine may call ReadFrame; the Writer methods serialize onto the
// connection internally and may be called from any number of stream
// handler goroutines concurrently.
type Conn struct {
	nc     net.Conn
	framer *http2.Framer
	logger logging.Logger

	writeMu sync.Mutex
	encBuf  bytes.Buffer
	henc    *hpack.Encoder

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps nc. The caller is responsible for having already completed
// TLS/ALPN negotiation or h2c upgrade; New only takes over framing. dec
// is the connection's HPACK decoder; passing one installs it as the
// Framer's ReadMetaHeaders so CONTINUATION reassembly and header
// decoding happen inside the codec, per spec's "raw framing codec is an
// external collaborator" — the dispatcher and its stream handlers only
// ever see a fully-formed *http2.MetaHeadersFrame. Pass nil to receive
// raw HeadersFrame/ContinuationFrame pairs instead.
func New(nc net.Conn, logger logging.Logger, dec *hpack.Decoder) *Conn {
	if logger == nil {
		logger = logging.Discard
	}
	c := &Conn{
		nc:     nc,
		framer: http2.NewFramer(nc, nc),
		logger: logger,
		closed: make(chan struct{}),
	}
	if dec != nil {
		c.framer.ReadMetaHeaders = dec
	}
	c.henc = hpack.NewEncoder(&c.encBuf)
	return c
}

// EncodeAndWriteHeaders HPACK-encodes fields and writes the resulting
// HEADERS frame in one atomic step under the connection's write lock.
// HPACK's dynamic table is sequential connection state, so encoding a
// stream's header block must never interleave with another stream's —
// this is the one write path stream handlers should use instead of
// assembling http2.HeadersFrameParam.BlockFragment themselves.
func (c *Conn) EncodeAndWriteHeaders(streamID uint32, endStream bool, fields []hpack.HeaderField) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.encBuf.Reset()
	for _, f := range fields {
		if err := c.henc.WriteField(f); err != nil {
			return err
		}
	}
	return c.framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: c.encBuf.Bytes(),
		EndHeaders:    true,
		EndStream:     endStream,
	})
}

// ReadFrame implements h2disp.Transport.
func (c *Conn) ReadFrame() (http2.Frame, error) {
	fr, err := c.framer.ReadFrame()
	if err != nil {
		return nil, wrapReadErr(err)
	}
	return fr, nil
}

// wrapReadErr folds the Framer's http2.ConnectionError and
// http2.StreamError values into h2disp.ErrMalformedFrame; every other
// error (net.ErrClosed, io.EOF, I/O failures, http2.ErrFrameTooLarge)
// is returned unchanged. The Framer already enforces RFC 7540
// well-formedness (padding, CONTINUATION sequencing, frame size) before
// handing a Frame value up; anything it rejects outright is, from the
// dispatcher's point of view, indistinguishable from garbage on the
// wire rather than a well-formed-but-illegal frame it must itself
// detect and answer with GOAWAY.
func wrapReadErr(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return err
	}
	var ce http2.ConnectionError
	var se http2.StreamError
	if errors.As(err, &ce) || errors.As(err, &se) {
		return fmt.Errorf("%w: %s", h2disp.ErrMalformedFrame, err)
	}
	return err
}

// Executor implements h2disp.Transport.
func (c *Conn) Executor() h2disp.Executor { return goExecutor{} }

// CloseSignal implements h2disp.Transport.
func (c *Conn) CloseSignal() <-chan struct{} { return c.closed }

// Close implements h2disp.Transport. Idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.nc.Close()
		close(c.closed)
	})
	return err
}

// SendPing implements h2disp.Writer.
func (c *Conn) SendPing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.framer.WritePing(false, [8]byte{})
}

// Reset implements h2disp.Writer.
func (c *Conn) Reset(streamID uint32, code http2.ErrCode) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.framer.WriteRSTStream(streamID, code)
}

// GoAway implements h2disp.Writer.
func (c *Conn) GoAway(lastStreamID uint32, code http2.ErrCode, debugData []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.framer.WriteGoAway(lastStreamID, code, debugData)
}

// WriteSettings implements h2disp.Writer.
func (c *Conn) WriteSettings(settings ...http2.Setting) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.framer.WriteSettings(settings...)
}

// WriteHeaders implements h2disp.Writer for callers that already hold
// an encoded header block. Most stream handlers should prefer
// EncodeAndWriteHeaders instead.
func (c *Conn) WriteHeaders(p http2.HeadersFrameParam) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.framer.WriteHeaders(p)
}

// WriteData implements h2disp.Writer.
func (c *Conn) WriteData(streamID uint32, endStream bool, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.framer.WriteData(streamID, endStream, data)
}

// WriteWindowUpdate implements h2disp.Writer.
func (c *Conn) WriteWindowUpdate(streamID uint32, increment uint32) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.framer.WriteWindowUpdate(streamID, increment)
}

var _ h2disp.Transport = (*Conn)(nil)
var _ h2disp.Writer = (*Conn)(nil)
