package h2disp

import (
	"io"
	"sync"

	"golang.org/x/net/http2"
)

// fakeExecutor runs each piece of work on its own goroutine, which is
// enough to exercise the PING path's off-loop requirement without
// pulling in a real transport.
type fakeExecutor struct{}

func (fakeExecutor) Go(fn func()) { go fn() }

// fakeWriter records every outbound frame a test cares about under a
// mutex; the dispatcher itself never calls it concurrently from more
// than one path, but tests do poke at both the connection and stream
// goroutines.
type fakeWriter struct {
	mu sync.Mutex

	pingErr error
	pings   int

	resets    []resetCall
	goAways   []goAwayCall
	settings  [][]http2.Setting
	writeErrs map[uint32]error
}

type resetCall struct {
	streamID uint32
	code     http2.ErrCode
}

type goAwayCall struct {
	lastStreamID uint32
	code         http2.ErrCode
}

func (w *fakeWriter) SendPing() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pings++
	return w.pingErr
}

func (w *fakeWriter) Reset(streamID uint32, code http2.ErrCode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resets = append(w.resets, resetCall{streamID, code})
	return nil
}

func (w *fakeWriter) GoAway(lastStreamID uint32, code http2.ErrCode, _ []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.goAways = append(w.goAways, goAwayCall{lastStreamID, code})
	return nil
}

func (w *fakeWriter) WriteSettings(settings ...http2.Setting) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.settings = append(w.settings, settings)
	return nil
}

func (w *fakeWriter) WriteHeaders(http2.HeadersFrameParam) error { return nil }
func (w *fakeWriter) WriteData(uint32, bool, []byte) error       { return nil }
func (w *fakeWriter) WriteWindowUpdate(uint32, uint32) error     { return nil }

func (w *fakeWriter) resetCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.resets)
}

func (w *fakeWriter) goAwayCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.goAways)
}

func (w *fakeWriter) lastReset() (resetCall, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.resets) == 0 {
		return resetCall{}, false
	}
	return w.resets[len(w.resets)-1], true
}

// fakeTransport feeds a prepared queue of frames to ReadFrame and blocks
// forever once it's exhausted, unless Close is called first.
type fakeTransport struct {
	mu      sync.Mutex
	frames  []http2.Frame
	closed  chan struct{}
	once    sync.Once
	exec    Executor
	onClose func()
}

func newFakeTransport(frames ...http2.Frame) *fakeTransport {
	return &fakeTransport{frames: frames, closed: make(chan struct{}), exec: fakeExecutor{}}
}

func (t *fakeTransport) ReadFrame() (http2.Frame, error) {
	t.mu.Lock()
	if len(t.frames) > 0 {
		fr := t.frames[0]
		t.frames = t.frames[1:]
		t.mu.Unlock()
		return fr, nil
	}
	t.mu.Unlock()

	<-t.closed
	return nil, io.EOF
}

func (t *fakeTransport) Executor() Executor            { return t.exec }
func (t *fakeTransport) CloseSignal() <-chan struct{} { return t.closed }

func (t *fakeTransport) Close() error {
	t.once.Do(func() {
		close(t.closed)
		if t.onClose != nil {
			t.onClose()
		}
	})
	return nil
}

// fakeHandler is a minimal StreamHandler: it embeds TerminalSignal and
// records every Recv/Reset call so tests can assert on them.
type fakeHandler struct {
	TerminalSignal

	mu        sync.Mutex
	received  []http2.Frame
	resetArgs []fakeResetArg
}

type fakeResetArg struct {
	cause error
	local bool
}

func (h *fakeHandler) Recv(fr http2.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.received = append(h.received, fr)
}

func (h *fakeHandler) Reset(cause error, local bool) {
	h.mu.Lock()
	h.resetArgs = append(h.resetArgs, fakeResetArg{cause, local})
	h.mu.Unlock()
}

func (h *fakeHandler) recvCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.received)
}

func (h *fakeHandler) resetCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.resetArgs)
}

// codedErr is a cause that carries its own RST_STREAM error code, for
// exercising ErrCoder.
type codedErr struct{ code http2.ErrCode }

func (e codedErr) Error() string               { return "coded error" }
func (e codedErr) HTTP2ErrCode() http2.ErrCode { return e.code }

// fakeAdmitter records DemuxNewStream calls and returns a preset error.
type fakeAdmitter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (a *fakeAdmitter) DemuxNewStream(http2.Frame) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.err
}

func (a *fakeAdmitter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func dataFrame(streamID uint32) *http2.DataFrame {
	return &http2.DataFrame{FrameHeader: http2.FrameHeader{Type: http2.FrameData, StreamID: streamID}}
}

func rstStreamFrame(streamID uint32, code http2.ErrCode) *http2.RSTStreamFrame {
	return &http2.RSTStreamFrame{
		FrameHeader: http2.FrameHeader{Type: http2.FrameRSTStream, StreamID: streamID},
		ErrCode:     code,
	}
}

func pingFrame(ack bool) *http2.PingFrame {
	var flags http2.Flags
	if ack {
		flags = http2.FlagPingAck
	}
	return &http2.PingFrame{FrameHeader: http2.FrameHeader{Type: http2.FramePing, Flags: flags}}
}

func goAwayFrame(lastStreamID uint32, code http2.ErrCode) *http2.GoAwayFrame {
	return &http2.GoAwayFrame{
		FrameHeader:  http2.FrameHeader{Type: http2.FrameGoAway},
		LastStreamID: lastStreamID,
		ErrCode:      code,
	}
}

func settingsFrame() *http2.SettingsFrame {
	return &http2.SettingsFrame{FrameHeader: http2.FrameHeader{Type: http2.FrameSettings}}
}

func unknownFrame(streamID uint32) *http2.UnknownFrame {
	return &http2.UnknownFrame{FrameHeader: http2.FrameHeader{Type: 0xff, StreamID: streamID}}
}

func newTestDispatcher(transport Transport, writer Writer, admitter NewStreamAdmitter) *Dispatcher {
	return New(transport, writer, admitter, Config{FailureDetector: NullDetector{}})
}
