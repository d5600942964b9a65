package client

import (
	"errors"
	"strconv"
	"strings"

	"github.com/domsolutions/h2disp"
	"github.com/valyala/fasthttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// stream is the client-side h2disp.StreamHandler for one outgoing
// request: it turns inbound HEADERS/DATA/RST_STREAM frames into a
// fasthttp.Response and reports completion exactly once through its
// embedded TerminalSignal, the same shape as the teacher's ClientStream
// but driven by the dispatcher instead of owning its own channel pump.
type stream struct {
	h2disp.TerminalSignal

	id   uint32
	resp *fasthttp.Response

	headersSeen bool
}

func newStream(id uint32, resp *fasthttp.Response) *stream {
	return &stream{id: id, resp: resp}
}

// Recv implements h2disp.StreamHandler.
func (s *stream) Recv(fr http2.Frame) {
	switch v := fr.(type) {
	case *http2.MetaHeadersFrame:
		s.applyHeaders(v)
		if v.StreamEnded() {
			s.Fire(h2disp.Outcome{Kind: h2disp.OutcomeOK})
		}

	case *http2.HeadersFrame:
		// Only reached when the transport was built without a
		// MetaHeaders decoder; treated as a malformed exchange since
		// this package never builds one that way.
		s.Fire(h2disp.Outcome{Kind: h2disp.OutcomeOther, Cause: errUnexpectedRawHeaders})

	case *http2.DataFrame:
		s.resp.AppendBody(v.Data())
		if v.StreamEnded() {
			s.Fire(h2disp.Outcome{Kind: h2disp.OutcomeOK})
		}

	case *http2.RSTStreamFrame:
		s.Fire(h2disp.Outcome{Kind: h2disp.OutcomeRemoteReset, Cause: http2StreamCode(v.ErrCode)})

	case *http2.WindowUpdateFrame:
		// Flow-control accounting for outbound DATA; the request body
		// for this module's supported requests is small enough that a
		// single DATA frame always fits the default initial window, so
		// there is nothing to unblock here yet.
	}
}

func (s *stream) applyHeaders(v *http2.MetaHeadersFrame) {
	s.headersSeen = true
	for _, f := range v.Fields {
		if f.Name == ":status" {
			if code, err := strconv.Atoi(f.Value); err == nil {
				s.resp.SetStatusCode(code)
			}
			continue
		}
		if len(f.Name) > 0 && f.Name[0] == ':' {
			continue
		}
		s.resp.Header.Add(f.Name, f.Value)
	}
}

// Reset implements h2disp.StreamHandler. local=false calls (connection
// teardown) still need to unblock a caller waiting in Do, so this fires
// unconditionally.
func (s *stream) Reset(cause error, local bool) {
	s.Fire(h2disp.Outcome{Kind: h2disp.OutcomeLocalReset, Cause: cause})
}

// OnReset implements h2disp.StreamHandler by delegating to the embedded
// TerminalSignal.
func (s *stream) OnReset(fn func(h2disp.Outcome)) {
	s.TerminalSignal.OnReset(fn)
}

var errUnexpectedRawHeaders = errors.New("client: transport was not configured with a MetaHeaders decoder")

type http2StreamCode http2.ErrCode

func (c http2StreamCode) Error() string { return "stream reset by peer: " + http2.ErrCode(c).String() }

// requestHeaderFields turns a fasthttp.Request into the pseudo-header +
// regular header sequence RFC 7540 §8.1.2.3 requires (pseudo-headers
// first), grounded on the teacher's fasthttpResponseHeaders but mirrored
// for the request side.
func requestHeaderFields(req *fasthttp.Request) []hpack.HeaderField {
	fields := make([]hpack.HeaderField, 0, 8+req.Header.Len())

	fields = append(fields,
		hpack.HeaderField{Name: ":method", Value: string(req.Header.Method())},
		hpack.HeaderField{Name: ":scheme", Value: "https"},
		hpack.HeaderField{Name: ":authority", Value: string(req.Header.Host())},
		hpack.HeaderField{Name: ":path", Value: string(req.URI().RequestURI())},
	)

	req.Header.VisitAll(func(key, value []byte) {
		k := string(key)
		switch k {
		case "Host", "Connection", "Transfer-Encoding":
			return
		}
		fields = append(fields, hpack.HeaderField{Name: strings.ToLower(k), Value: string(value)})
	})

	return fields
}
