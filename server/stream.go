package server

import (
	"strconv"
	"strings"

	"github.com/domsolutions/h2disp"
	"github.com/valyala/fasthttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// stream is the server-side h2disp.StreamHandler for one inbound
// request: it assembles a fasthttp.RequestCtx from HEADERS/DATA frames,
// invokes the configured handler once the request is complete, and
// serializes the fasthttp.Response back out. Grounded on the teacher's
// Stream/serverConn.handleFrame, minus all RST_STREAM/GOAWAY emission
// and table bookkeeping, which the dispatcher now owns.
type stream struct {
	h2disp.TerminalSignal

	id      uint32
	conn    *Conn
	ctx     *fasthttp.RequestCtx
	started bool
}

func newStream(id uint32, conn *Conn) *stream {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Reset()
	ctx.Response.Reset()
	return &stream{id: id, conn: conn, ctx: ctx}
}

// Recv implements h2disp.StreamHandler.
func (s *stream) Recv(fr http2.Frame) {
	switch v := fr.(type) {
	case *http2.MetaHeadersFrame:
		if err := s.applyHeaders(v); err != nil {
			s.Fire(h2disp.Outcome{Kind: h2disp.OutcomeLocalReset, Cause: protocolResetError{http2.ErrCodeProtocol}})
			return
		}
		if v.StreamEnded() {
			s.serve()
		}

	case *http2.DataFrame:
		s.ctx.Request.AppendBody(v.Data())
		if v.StreamEnded() {
			s.serve()
		}

	case *http2.RSTStreamFrame:
		s.Fire(h2disp.Outcome{Kind: h2disp.OutcomeRemoteReset})

	case *http2.WindowUpdateFrame:
		// Conn.writeResponse writes the whole response body as one DATA
		// frame without consulting any flow-control window, so there is
		// no blocked write to unblock.
	}
}

func (s *stream) applyHeaders(v *http2.MetaHeadersFrame) error {
	req := &s.ctx.Request
	for _, f := range v.Fields {
		switch f.Name {
		case ":method":
			req.Header.SetMethod(f.Value)
		case ":path":
			req.Header.SetRequestURI(f.Value)
		case ":authority":
			req.Header.SetHost(f.Value)
		case ":scheme":
			// fasthttp has no first-class scheme slot on the request
			// line; callers that care can read it back off the header.
			req.Header.Set("X-Forwarded-Proto", f.Value)
		default:
			if len(f.Name) > 0 && f.Name[0] == ':' {
				return protocolResetError{http2.ErrCodeProtocol}
			}
			req.Header.Add(f.Name, f.Value)
		}
	}
	return nil
}

// serve dispatches the completed request to the configured handler and
// writes the response back out. Called at most once per stream.
func (s *stream) serve() {
	if s.started {
		return
	}
	s.started = true

	s.ctx.Request.Header.SetProtocol("HTTP/2.0")
	s.conn.opts.Handler(s.ctx)

	if err := s.conn.writeResponse(s.id, &s.ctx.Response); err != nil {
		s.Fire(h2disp.Outcome{Kind: h2disp.OutcomeOther, Cause: err})
		return
	}
	s.Fire(h2disp.Outcome{Kind: h2disp.OutcomeOK})
}

// Reset implements h2disp.StreamHandler.
func (s *stream) Reset(cause error, local bool) {
	s.Fire(h2disp.Outcome{Kind: h2disp.OutcomeLocalReset, Cause: cause})
}

// OnReset implements h2disp.StreamHandler.
func (s *stream) OnReset(fn func(h2disp.Outcome)) {
	s.TerminalSignal.OnReset(fn)
}

// protocolResetError lets the dispatcher's observer map a cause
// straight back to an RST_STREAM code via h2disp.ErrCoder.
type protocolResetError struct{ code http2.ErrCode }

func (e protocolResetError) Error() string               { return "server: protocol error on stream" }
func (e protocolResetError) HTTP2ErrCode() http2.ErrCode { return e.code }

// responseHeaderFields turns a fasthttp.Response into the HEADERS field
// sequence, mirroring the teacher's fasthttpResponseHeaders.
func responseHeaderFields(resp *fasthttp.Response) []hpack.HeaderField {
	fields := make([]hpack.HeaderField, 0, 4+resp.Header.Len())
	fields = append(fields, hpack.HeaderField{Name: ":status", Value: strconv.Itoa(resp.StatusCode())})

	resp.Header.Del("Connection")
	resp.Header.Del("Transfer-Encoding")
	resp.Header.VisitAll(func(key, value []byte) {
		fields = append(fields, hpack.HeaderField{Name: strings.ToLower(string(key)), Value: string(value)})
	})
	return fields
}

