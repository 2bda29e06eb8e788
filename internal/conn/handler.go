package conn

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/albertbausili/surge/internal/buffer"
	"github.com/albertbausili/surge/pkg/exchange"
)

// Handler reacts to connection readiness events from the I/O loop and
// coordinates worker tasks through the per-connection state monitor. It
// allocates content buffers of fixed size up front and throttles socket I/O
// so they can never overflow, keeping the memory footprint of a connection
// constant regardless of body sizes.
//
// Event entry points are invoked by the transport and must not block on
// user code; entity production and response handling are delegated to the
// dispatcher's worker threads. The gnet transport delivers every entry point
// from its event loop except Timeout, which it calls from its idle timer's
// goroutine.
type Handler struct {
	processor   exchange.Processor
	execHandler exchange.ExecutionHandler
	reuse       exchange.ReuseStrategy
	dispatcher  exchange.Dispatcher
	listener    exchange.EventListener

	bufsize         int
	waitForContinue time.Duration
	logger          *log.Logger
}

// HandlerConfig carries the handler's collaborators and tuning knobs.
type HandlerConfig struct {
	Processor       exchange.Processor
	ExecHandler     exchange.ExecutionHandler
	ReuseStrategy   exchange.ReuseStrategy
	Dispatcher      exchange.Dispatcher
	Listener        exchange.EventListener
	BufferSize      int
	WaitForContinue time.Duration
	Logger          *log.Logger
}

// NewHandler validates the configuration and builds a handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.ExecHandler == nil {
		return nil, fmt.Errorf("execution handler may not be nil")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher may not be nil")
	}
	if cfg.BufferSize < 0 {
		return nil, fmt.Errorf("buffer size may not be negative: %d", cfg.BufferSize)
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 20480
	}
	if cfg.WaitForContinue <= 0 {
		cfg.WaitForContinue = 3 * time.Second
	}
	if cfg.Processor == nil {
		cfg.Processor = exchange.ProcessorChain(nil)
	}
	if cfg.ReuseStrategy == nil {
		cfg.ReuseStrategy = exchange.DefaultReuseStrategy{}
	}
	if cfg.Listener == nil {
		cfg.Listener = exchange.ListenerChain(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Handler{
		processor:       cfg.Processor,
		execHandler:     cfg.ExecHandler,
		reuse:           cfg.ReuseStrategy,
		dispatcher:      cfg.Dispatcher,
		listener:        cfg.Listener,
		bufsize:         cfg.BufferSize,
		waitForContinue: cfg.WaitForContinue,
		logger:          cfg.Logger,
	}, nil
}

// Connected populates the execution context, allocates the connection state,
// and immediately probes for the first request.
func (h *Handler) Connected(c Conn, attachment any) {
	ctx := c.Context()

	// Default target host synthesized from the remote socket address; the
	// execution handler may overwrite it during context initialization.
	if host, ok := exchange.HostFromAddr(c.RemoteAddr()); ok {
		ctx.Set(exchange.AttrTargetHost, host)
	}
	ctx.Set(exchange.AttrConnection, c)
	h.execHandler.InitializeContext(ctx, attachment)

	st := NewState(h.bufsize, c)
	ctx.Set(stateKey, st)

	h.listener.ConnectionOpen(ctx)

	h.RequestReady(c)
}

// Closed notifies the listener that the connection is gone.
func (h *Handler) Closed(c Conn) {
	h.listener.ConnectionClosed(c.Context())
}

// RequestReady asks the execution handler for the next request and submits
// it. A nil request leaves the connection idle; the execution handler wakes
// it later by requesting output on the connection.
func (h *Handler) RequestReady(c Conn) {
	ctx := c.Context()
	st := StateOf(c)

	err := func() error {
		st.Lock()
		defer st.Unlock()

		if st.outputPhase != OutputReady {
			return nil
		}

		request := h.execHandler.SubmitRequest(ctx)
		if request == nil {
			return nil
		}

		ctx.Set(exchange.AttrRequest, request)
		if err := h.processor.ProcessRequest(request, ctx); err != nil {
			return &exchange.ProtocolError{Err: err}
		}
		st.request = request
		if err := c.SubmitRequest(request); err != nil {
			return err
		}
		st.outputPhase = OutputRequestSent

		c.RequestInput()

		if request.Entity != nil {
			if request.ExpectContinue() {
				st.savedTimeout = c.SocketTimeout()
				c.SetSocketTimeout(h.waitForContinue)
				st.outputPhase = OutputExpectContinue
			} else {
				h.sendRequestBody(c, st, request)
			}
		}

		st.Broadcast()
		return nil
	}()
	if err != nil {
		h.fatal(c, err)
	}
}

// OutputReady drains the output buffer into the encoder. While waiting for a
// 100 Continue the body is held back and socket output stays suspended.
func (h *Handler) OutputReady(c Conn, encoder buffer.ContentEncoder) {
	st := StateOf(c)

	err := func() error {
		st.Lock()
		defer st.Unlock()

		if st.outputPhase == OutputExpectContinue {
			c.SuspendOutput()
			return nil
		}
		if _, err := st.outbuf.Produce(encoder); err != nil {
			return err
		}
		if encoder.Completed() {
			st.outputPhase = OutputRequestBodyDone
		} else {
			st.outputPhase = OutputRequestBodyStream
		}

		st.Broadcast()
		return nil
	}()
	if err != nil {
		h.fatal(c, err)
	}
}

// ResponseReceived handles a decoded response head: interim 100 responses
// resume a held-back body, final responses install the buffer-backed entity
// and dispatch the response-handling worker task.
func (h *Handler) ResponseReceived(c Conn) {
	ctx := c.Context()
	st := StateOf(c)

	err := func() error {
		st.Lock()
		defer st.Unlock()

		response := c.Response()
		request := st.request

		if response.Status < 200 {
			// 1xx interim response
			if response.Status == 100 && st.outputPhase == OutputExpectContinue {
				st.outputPhase = OutputRequestSent
				h.continueRequest(c, st)
				st.Broadcast()
			}
			return nil
		}

		st.response = response
		st.inputPhase = InputResponseReceived

		if st.outputPhase == OutputExpectContinue {
			// The server rejected the expectation; the body will not be sent.
			c.SetSocketTimeout(st.savedTimeout)
			c.ResetOutput()
		}

		if !canResponseHaveBody(request, response) {
			c.ResetInput()
			response.Entity = nil
			st.inputPhase = InputResponseDone

			if !h.reuse.KeepAlive(response, ctx) {
				if err := c.Close(); err != nil {
					return err
				}
			}
		}

		if response.Entity != nil {
			response.Entity = exchange.NewStreamEntity(st.inbuf, response.Entity)
		} else if st.inputPhase != InputResponseDone {
			// Body-capable response with nothing on the wire (zero length).
			st.inputPhase = InputResponseDone
			if !h.reuse.KeepAlive(response, ctx) {
				if err := c.Close(); err != nil {
					return err
				}
			}
		}

		ctx.Set(exchange.AttrResponse, response)
		if err := h.processor.ProcessResponse(response, ctx); err != nil {
			return &exchange.ProtocolError{Err: err}
		}

		h.handleResponse(c, st, response)

		st.Broadcast()
		return nil
	}()
	if err != nil {
		h.fatal(c, err)
	}
}

// InputReady consumes decoded body bytes into the input buffer and advances
// the input phase. When the decoder completes, the reuse strategy decides
// whether the connection survives the exchange.
func (h *Handler) InputReady(c Conn, decoder buffer.ContentDecoder) {
	ctx := c.Context()
	st := StateOf(c)

	err := func() error {
		st.Lock()
		defer st.Unlock()

		response := st.response

		if _, err := st.inbuf.Consume(decoder); err != nil {
			return err
		}
		if decoder.Completed() {
			st.inputPhase = InputResponseDone

			if !h.reuse.KeepAlive(response, ctx) {
				if err := c.Close(); err != nil {
					return err
				}
			}
		} else {
			st.inputPhase = InputResponseBodyStream
		}

		st.Broadcast()
		return nil
	}()
	if err != nil {
		h.fatal(c, err)
	}
}

// Timeout expires the socket deadline. During a 100-continue wait this is
// the signal to send the body anyway; in every case the connection is then
// closed and the listener notified.
func (h *Handler) Timeout(c Conn) {
	st := StateOf(c)

	if st != nil {
		err := func() error {
			st.Lock()
			defer st.Unlock()

			if st.outputPhase == OutputExpectContinue {
				st.outputPhase = OutputRequestSent
				h.continueRequest(c, st)
				st.Broadcast()
			}
			return nil
		}()
		if err != nil {
			h.fatal(c, err)
			return
		}
	}

	h.closeConnection(c, nil)
	h.listener.ConnectionTimeout(c.Context())
}

// Exception reports a failure detected by the transport while decoding or
// encoding on this connection.
func (h *Handler) Exception(c Conn, err error) {
	h.fatal(c, err)
}

// ShutdownConnection hard-closes the socket and tears down the connection
// state, unblocking every worker with an interrupted-I/O failure. Callable
// from either regime.
func (h *Handler) ShutdownConnection(c Conn, cause error) {
	if cause != nil {
		h.logger.Printf("shutting down connection: %v", cause)
	}
	if err := c.Shutdown(); err != nil {
		h.logger.Printf("error closing socket: %v", err)
	}
	if st := StateOf(c); st != nil {
		st.Shutdown()
	}
}

// continueRequest restores the socket timeout saved before the expectation
// wait and dispatches the body-writing task. Caller holds the monitor.
func (h *Handler) continueRequest(c Conn, st *State) {
	c.SetSocketTimeout(st.savedTimeout)
	h.sendRequestBody(c, st, st.request)
}

// sendRequestBody dispatches the worker task that streams the request entity
// into the shared output buffer and closes it. Caller holds the monitor.
func (h *Handler) sendRequestBody(c Conn, st *State, request *exchange.Request) {
	entity := request.Entity
	if entity == nil {
		return
	}
	ctx := c.Context()
	h.execute(c, func() {
		err := entity.WriteTo(st.outbuf)
		if err == nil {
			err = st.outbuf.Close()
		}
		if err != nil {
			h.ShutdownConnection(c, err)
			h.listener.FatalIOError(err, ctx)
		}
	})
}

// handleResponse dispatches the worker task that runs the user response
// handler and, once the I/O thread signals completion, resets the exchange
// and asks the connection for the next request. Caller holds the monitor.
func (h *Handler) handleResponse(c Conn, st *State, response *exchange.Response) {
	ctx := c.Context()
	h.execute(c, func() {
		if err := h.execHandler.HandleResponse(response, ctx); err != nil {
			h.ShutdownConnection(c, err)
			h.listener.FatalIOError(err, ctx)
			return
		}

		st.Lock()
		for {
			phase := st.inputPhase
			if phase == InputResponseDone {
				break
			}
			if phase == InputShutdown {
				st.Unlock()
				err := fmt.Errorf("response wait: %w", buffer.ErrShutdown)
				h.ShutdownConnection(c, err)
				h.listener.FatalIOError(err, ctx)
				return
			}
			st.Wait()
		}

		st.resetInput()
		st.resetOutput()
		st.Broadcast()
		open := c.IsOpen()
		st.Unlock()

		if open {
			c.RequestOutput()
		}
	})
}

// execute hands a task to the dispatcher; a dispatcher refusal is an I/O
// failure for this connection.
func (h *Handler) execute(c Conn, task func()) {
	if err := h.dispatcher.Execute(task); err != nil {
		h.ShutdownConnection(c, err)
		h.listener.FatalIOError(err, c.Context())
	}
}

// fatal routes an event-handler error: protocol violations close the
// connection gracefully, everything else is a hard shutdown.
func (h *Handler) fatal(c Conn, err error) {
	ctx := c.Context()
	var perr *exchange.ProtocolError
	if errors.As(err, &perr) {
		h.closeConnection(c, err)
		h.listener.FatalProtocolError(err, ctx)
		return
	}
	h.ShutdownConnection(c, err)
	h.listener.FatalIOError(err, ctx)
}

// closeConnection closes the connection gracefully.
func (h *Handler) closeConnection(c Conn, cause error) {
	if cause != nil {
		h.logger.Printf("closing connection: %v", cause)
	}
	if err := c.Close(); err != nil {
		h.logger.Printf("error closing connection: %v", err)
	}
}

// canResponseHaveBody applies the HTTP/1.x rules for a client: HEAD
// responses, 1xx, 204 and 304 never carry a body.
func canResponseHaveBody(request *exchange.Request, response *exchange.Response) bool {
	if request != nil && request.Method == "HEAD" {
		return false
	}
	status := response.Status
	if status < 200 || status == 204 || status == 304 {
		return false
	}
	return true
}
