// Package h2disp is an HTTP/2 connection dispatcher base: the shared
// machinery that sits on one end of a single HTTP/2 transport and
// multiplexes many concurrent logical streams over it. It demultiplexes
// inbound frames to per-stream handlers, tracks stream lifecycle,
// answers with RST_STREAM/GOAWAY as needed, runs a PING-based liveness
// probe, and coordinates shutdown. Construction of stream handlers, the
// raw frame codec, and the policy for admitting brand-new stream ids are
// all external collaborators — see Transport, Writer, StreamHandler and
// NewStreamAdmitter.
package h2disp

import (
	"sync"
	"sync/atomic"

	"github.com/domsolutions/h2disp/internal/logging"
	"golang.org/x/net/http2"
)

// Dispatcher is the connection-level multiplexer. It is safe for
// concurrent use by its collaborators; there is no dispatcher-wide lock.
type Dispatcher struct {
	transport Transport
	writer    Writer
	admitter  NewStreamAdmitter
	cfg       Config
	logger    logging.Logger

	table *StreamTable
	ping  *PingCoordinator
	fd    *failureDetectorAdapter

	closed        atomic.Bool
	lastStreamID  atomic.Uint32
	shutdownCause atomic.Pointer[error]

	done    chan struct{}
	doneErr error
	once    sync.Once
}

// New builds a Dispatcher. transport and writer are required; admitter
// may be nil if the embedding code never expects unsolicited new stream
// ids (rare, but not this package's business to forbid).
func New(transport Transport, writer Writer, admitter NewStreamAdmitter, cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()

	d := &Dispatcher{
		transport: transport,
		writer:    writer,
		admitter:  admitter,
		cfg:       cfg,
		logger:    cfg.Logger,
		table:     &StreamTable{},
		done:      make(chan struct{}),
	}
	d.ping = NewPingCoordinator(writer)
	d.fd = newFailureDetectorAdapter(cfg.FailureDetector, d)
	return d
}

// RegisterStream installs handler at id, entering it into the Open
// state, and subscribes the dispatcher's lifecycle observer to its
// terminal signal. Fails with *DuplicateStreamError if id is already
// occupied; the existing handler is left untouched.
func (d *Dispatcher) RegisterStream(id uint32, handler StreamHandler) error {
	if d.closed.Load() {
		return ErrConnectionClosed
	}

	entry, err := d.table.insert(id, handler)
	if err != nil {
		return err
	}

	d.bumpLastStreamID(id)

	handler.OnReset(func(o Outcome) {
		d.onStreamTerminal(id, entry, o)
	})

	// Shutdown may have flipped and already swept the table between our
	// closed check above and the insert landing. Catch that straggler
	// rather than leaving it registered forever with no reset delivered.
	if d.closed.Load() {
		if d.table.remove(id, entry) {
			handler.Reset(ErrCancelled, false)
		}
	}
	return nil
}

func (d *Dispatcher) bumpLastStreamID(id uint32) {
	for {
		cur := d.lastStreamID.Load()
		if id <= cur {
			return
		}
		if d.lastStreamID.CompareAndSwap(cur, id) {
			return
		}
	}
}

// ActiveStreams reports the current table size.
func (d *Dispatcher) ActiveStreams() int { return d.table.Len() }

// HighWater reports the largest stream id known to have been retired.
func (d *Dispatcher) HighWater() uint32 { return d.table.HighWater() }

// Ping requests a liveness probe, delegating the no-executor
// degradation to the Transport's Executor.
func (d *Dispatcher) Ping() *PingWaiter {
	return d.ping.Ping(d.transport.Executor())
}

// WriteSettings forwards to the Writer collaborator; applying received
// settings is left to the subclass, per spec.
func (d *Dispatcher) WriteSettings(settings ...http2.Setting) error {
	return d.writer.WriteSettings(settings...)
}

// OnTransportClose is the hook the embedding code invokes when the
// transport itself dies for reasons outside the demux loop's read path
// (e.g. a TCP RST observed by something else). Idempotent.
func (d *Dispatcher) OnTransportClose(err error) {
	d.resetStreams(cancelCause(err))
}

// Done returns a channel closed once Run has returned, the Go analogue
// of the spec's `demuxing` completion.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

// Err returns Run's terminal error once Done is closed.
func (d *Dispatcher) Err() error { return d.doneErr }

// Run is the demultiplexer loop: it owns the transport's read side and
// must be invoked by exactly one goroutine. It returns when the
// connection ends, successfully or not.
func (d *Dispatcher) Run() error {
	d.fd.start()
	defer d.fd.stop()

	err := d.runLoop()

	d.once.Do(func() {
		d.doneErr = err
		close(d.done)
	})
	return err
}

func (d *Dispatcher) runLoop() error {
	for {
		fr, err := d.transport.ReadFrame()
		if err != nil {
			return d.handleReadError(err)
		}

		if err := d.route(fr); err != nil {
			return err
		}
	}
}

func (d *Dispatcher) handleReadError(err error) error {
	if d.closed.Load() {
		// We initiated shutdown; this read error is just the pending
		// read unblocking from the transport.Close() in resetStreams.
		// Surface the reason shutdown started rather than that raw
		// unblocking error, so Done()/Err() carries the real cause.
		cause := ErrCancelled
		if p := d.shutdownCause.Load(); p != nil {
			cause = *p
		}
		return &InterruptedError{Cause: cause}
	}

	if isMalformedFrame(err) {
		d.logger.Warn("non-HTTP/2 frame observed, closing silently", "err", err)
		return nil
	}

	if isCleanPeerClose(err) && d.table.Len() == 0 {
		return nil
	}

	d.logger.Error("transport read failed", "err", err)
	_ = d.GoAway(http2.ErrCodeInternal, nil)
	return err
}
