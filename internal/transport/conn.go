package transport

import (
	"bytes"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/gnet/v2"

	"github.com/albertbausili/surge/internal/buffer"
	"github.com/albertbausili/surge/internal/h1"
	"github.com/albertbausili/surge/pkg/exchange"
)

// httpConn adapts one gnet connection to the handler's connection port. Wire
// framing state (parser, inbound window, current decoder and encoder) is only
// touched on the event loop; cross-thread flow-control arrives through
// atomics plus a wake-up.
type httpConn struct {
	t   *Transport
	c   gnet.Conn
	ctx *exchange.Context

	parser  *h1.Parser
	inbound bytes.Buffer
	writer  *batchWriter

	request    *exchange.Request
	response   *exchange.Response
	decoder    buffer.ContentDecoder
	encoder    buffer.ContentEncoder
	untilClose *h1.UntilCloseDecoder

	inputSuspended  atomic.Bool
	outputRequested atomic.Bool
	open            atomic.Bool

	tmu     sync.Mutex
	timer   *time.Timer
	timeout time.Duration
}

func newHTTPConn(t *Transport, c gnet.Conn) *httpConn {
	hc := &httpConn{
		t:      t,
		c:      c,
		ctx:    exchange.NewContext(),
		parser: h1.NewParser(),
		writer: newBatchWriter(c),
	}
	hc.open.Store(true)
	return hc
}

// pump runs one round of the connection on the event loop.
func (hc *httpConn) pump() gnet.Action {
	hc.touch()

	// Drain socket bytes into the inbound window unless the handler has
	// suspended input; unread bytes stay in the kernel and gnet buffers,
	// which is what throttles the peer.
	if !hc.inputSuspended.Load() {
		if data, err := hc.c.Next(-1); err == nil && len(data) > 0 {
			hc.inbound.Write(data)
		}
	}

	hc.driveOutput()

	if err := hc.processInbound(); err != nil {
		hc.t.handler.Exception(hc, err)
		return gnet.None
	}
	return gnet.None
}

// driveOutput services a pending output request: drain the shared output
// buffer through the current encoder, or probe for the next request when no
// body is being encoded.
func (hc *httpConn) driveOutput() {
	if !hc.outputRequested.Load() {
		return
	}
	if enc := hc.encoder; enc != nil {
		hc.t.handler.OutputReady(hc, enc)
		if enc.Completed() {
			hc.encoder = nil
			hc.outputRequested.Store(false)
		}
		hc.writer.Flush()
		return
	}
	hc.outputRequested.Store(false)
	hc.t.handler.RequestReady(hc)
	hc.writer.Flush()
}

// processInbound decodes response heads and pumps body bytes into the
// handler until the window runs dry or input is suspended.
func (hc *httpConn) processInbound() error {
	for {
		if hc.decoder != nil {
			if hc.inputSuspended.Load() || hc.inbound.Len() == 0 {
				return nil
			}
			dec := hc.decoder
			hc.t.handler.InputReady(hc, dec)
			if !dec.Completed() {
				return nil
			}
			hc.decoder = nil
			hc.untilClose = nil
			continue
		}

		if hc.inbound.Len() == 0 || hc.inputSuspended.Load() {
			return nil
		}

		resp := &exchange.Response{}
		hc.parser.Reset(hc.inbound.Bytes())
		consumed, err := hc.parser.ParseResponse(resp)
		if err != nil {
			return &exchange.ProtocolError{Err: err}
		}
		if consumed == 0 {
			return nil
		}
		hc.inbound.Next(consumed)
		hc.response = resp

		if resp.Status < 200 {
			// Interim head; the final head follows on the same connection.
			hc.t.handler.ResponseReceived(hc)
			hc.writer.Flush()
			continue
		}

		method := ""
		if hc.request != nil {
			method = hc.request.Method
		}
		framing, length := h1.ResponseFraming(method, resp)
		switch framing {
		case h1.FramingNone:
			hc.decoder = nil
		case h1.FramingLength:
			resp.Entity = exchange.NewReaderEntity(nil, length)
			hc.decoder = h1.NewLengthDecoder(&hc.inbound, length)
		case h1.FramingChunked:
			resp.Entity = exchange.NewReaderEntity(nil, -1)
			hc.decoder = h1.NewChunkedDecoder(&hc.inbound)
		case h1.FramingUntilClose:
			resp.Entity = exchange.NewReaderEntity(nil, -1)
			d := h1.NewUntilCloseDecoder(&hc.inbound)
			hc.decoder = d
			hc.untilClose = d
		}

		hc.t.handler.ResponseReceived(hc)
		hc.writer.Flush()
	}
}

// Context returns the connection's execution context.
func (hc *httpConn) Context() *exchange.Context { return hc.ctx }

// Response returns the response whose head was just decoded.
func (hc *httpConn) Response() *exchange.Response { return hc.response }

// SubmitRequest encodes the request head, queues it for sending, and
// installs the body encoder implied by the request framing.
func (hc *httpConn) SubmitRequest(req *exchange.Request) error {
	bb := h1.AcquireHeadBuffer()
	h1.AppendRequestHead(bb, req)
	_, err := hc.writer.Write(bb.B)
	h1.ReleaseHeadBuffer(bb)
	if err != nil {
		return err
	}

	hc.request = req
	framing, length := h1.RequestFraming(req)
	switch framing {
	case h1.FramingLength:
		hc.encoder = h1.NewLengthEncoder(hc.writer, length)
	case h1.FramingChunked:
		hc.encoder = h1.NewChunkedEncoder(hc.writer)
	default:
		hc.encoder = nil
	}

	hc.writer.Flush()
	return nil
}

// RequestInput resumes reading from the socket.
func (hc *httpConn) RequestInput() {
	hc.inputSuspended.Store(false)
	hc.wake()
}

// SuspendInput stops feeding the decoder until space frees up.
func (hc *httpConn) SuspendInput() {
	hc.inputSuspended.Store(true)
}

// RequestOutput schedules an output round on the event loop.
func (hc *httpConn) RequestOutput() {
	hc.outputRequested.Store(true)
	hc.wake()
}

// SuspendOutput cancels a pending output request.
func (hc *httpConn) SuspendOutput() {
	hc.outputRequested.Store(false)
}

// ResetInput abandons decoding of the current response body.
func (hc *httpConn) ResetInput() {
	hc.decoder = nil
	hc.untilClose = nil
}

// ResetOutput abandons encoding of the current request body.
func (hc *httpConn) ResetOutput() {
	hc.encoder = nil
}

// SetSocketTimeout replaces the idle timeout and re-arms the timer.
func (hc *httpConn) SetSocketTimeout(d time.Duration) {
	hc.tmu.Lock()
	hc.timeout = d
	if hc.timer != nil && d > 0 {
		hc.timer.Reset(d)
	}
	hc.tmu.Unlock()
}

// SocketTimeout returns the current idle timeout.
func (hc *httpConn) SocketTimeout() time.Duration {
	hc.tmu.Lock()
	defer hc.tmu.Unlock()
	return hc.timeout
}

// RemoteAddr returns the peer address.
func (hc *httpConn) RemoteAddr() net.Addr { return hc.c.RemoteAddr() }

// IsOpen reports whether the connection is usable.
func (hc *httpConn) IsOpen() bool { return hc.open.Load() }

// Close shuts the connection down gracefully.
func (hc *httpConn) Close() error {
	hc.open.Store(false)
	return hc.c.Close()
}

// Shutdown closes the socket. It makes the same call as Close; this
// transport has no separate hard close.
func (hc *httpConn) Shutdown() error {
	hc.open.Store(false)
	return hc.c.Close()
}

// startTimer arms the idle timer; firing delivers a timeout event by calling
// the handler's Timeout on the timer's own goroutine, not on the event loop.
func (hc *httpConn) startTimer(d time.Duration) {
	hc.tmu.Lock()
	hc.timeout = d
	if d > 0 {
		hc.timer = time.AfterFunc(d, func() {
			if hc.open.Load() {
				hc.t.handler.Timeout(hc)
			}
		})
	}
	hc.tmu.Unlock()
}

// touch re-arms the idle timer after activity.
func (hc *httpConn) touch() {
	hc.tmu.Lock()
	if hc.timer != nil && hc.timeout > 0 {
		hc.timer.Reset(hc.timeout)
	}
	hc.tmu.Unlock()
}

// markClosed stops the timer and flags the connection as gone.
func (hc *httpConn) markClosed() {
	hc.open.Store(false)
	hc.tmu.Lock()
	if hc.timer != nil {
		hc.timer.Stop()
		hc.timer = nil
	}
	hc.tmu.Unlock()
}

// wake schedules a traffic round on the event loop. Safe from any thread.
func (hc *httpConn) wake() {
	if hc.open.Load() {
		_ = hc.c.Wake(nil)
	}
}

// batchWriter queues outbound byte slices and sends them with a single
// vectorized async write per flush, preserving order across flushes while a
// previous batch is in flight.
type batchWriter struct {
	conn     gnet.Conn
	mu       sync.Mutex
	pending  [][]byte
	queued   [][]byte
	inflight bool
}

func newBatchWriter(c gnet.Conn) *batchWriter {
	return &batchWriter{conn: c}
}

// Write copies p into the pending batch; the async send happens at the next
// Flush.
func (w *batchWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	data := make([]byte, len(p))
	copy(data, p)
	w.mu.Lock()
	w.pending = append(w.pending, data)
	w.mu.Unlock()
	return len(p), nil
}

// Flush sends the pending batch with one vectorized write. If a batch is
// already in flight the data is queued behind it.
func (w *batchWriter) Flush() {
	w.mu.Lock()
	if w.inflight {
		w.queued = append(w.queued, w.pending...)
		w.pending = nil
		w.mu.Unlock()
		return
	}
	batch := w.pending
	w.pending = nil
	if len(batch) == 0 {
		w.mu.Unlock()
		return
	}
	w.inflight = true
	w.mu.Unlock()

	_ = w.conn.AsyncWritev(batch, w.onSent)
}

func (w *batchWriter) onSent(_ gnet.Conn, err error) error {
	w.mu.Lock()
	next := w.queued
	w.queued = nil
	if err != nil || len(next) == 0 {
		w.inflight = false
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()
	return w.conn.AsyncWritev(next, w.onSent)
}
