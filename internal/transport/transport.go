// Package transport binds the connection handler to a gnet client event
// loop. The loop never blocks: readiness events are translated into the
// handler's entry points, and worker-side flow control arrives as wake-ups.
package transport

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/panjf2000/gnet/v2"

	"github.com/albertbausili/surge/internal/conn"
)

// Config holds transport tuning knobs.
type Config struct {
	Multicore     bool
	NumEventLoop  int
	SocketTimeout time.Duration
	Logger        *log.Logger
}

// Transport runs a gnet client engine and adapts its events to the
// connection handler.
type Transport struct {
	gnet.BuiltinEventEngine

	handler *conn.Handler
	cli     *gnet.Client
	logger  *log.Logger
	config  Config

	connections sync.Map // gnet.Conn -> *httpConn
}

// NewTransport creates a transport dispatching events to handler.
func NewTransport(handler *conn.Handler, config Config) (*Transport, error) {
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	if config.SocketTimeout <= 0 {
		config.SocketTimeout = 30 * time.Second
	}
	t := &Transport{
		handler: handler,
		logger:  config.Logger,
		config:  config,
	}
	options := []gnet.Option{
		gnet.WithMulticore(config.Multicore),
	}
	if config.NumEventLoop > 0 {
		options = append(options, gnet.WithNumEventLoop(config.NumEventLoop))
	}
	cli, err := gnet.NewClient(t, options...)
	if err != nil {
		return nil, err
	}
	t.cli = cli
	return t, nil
}

// Start launches the event loops.
func (t *Transport) Start() error {
	return t.cli.Start()
}

// Stop closes all live connections and stops the engine.
func (t *Transport) Stop(_ context.Context) error {
	t.connections.Range(func(key, _ any) bool {
		if c, ok := key.(gnet.Conn); ok {
			_ = c.Close()
		}
		return true
	})
	return t.cli.Stop()
}

// Dial opens a connection to addr. The attachment is handed to the execution
// handler during context initialization.
func (t *Transport) Dial(addr string, attachment any) error {
	_, err := t.cli.DialContext("tcp", addr, &dialAttachment{value: attachment})
	return err
}

// dialAttachment carries the caller's attachment until OnOpen installs the
// per-connection adapter as the gnet context.
type dialAttachment struct {
	value any
}

// OnOpen wires up the per-connection adapter and fires the connected event.
func (t *Transport) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	var attachment any
	if att, ok := c.Context().(*dialAttachment); ok {
		attachment = att.value
	}

	hc := newHTTPConn(t, c)
	c.SetContext(hc)
	t.connections.Store(c, hc)

	hc.startTimer(t.config.SocketTimeout)
	t.handler.Connected(hc, attachment)
	return nil, gnet.None
}

// OnClose tears the adapter down and fires the closed event.
func (t *Transport) OnClose(c gnet.Conn, err error) gnet.Action {
	hc, ok := c.Context().(*httpConn)
	if !ok {
		return gnet.None
	}
	t.connections.Delete(c)
	peerClosed := hc.IsOpen()
	hc.markClosed()

	if err != nil {
		t.logger.Printf("connection to %s closed: %v", c.RemoteAddr(), err)
	}

	// A close-delimited body ends here; deliver the final decode before the
	// closed notification.
	if hc.untilClose != nil {
		hc.untilClose.MarkEOF()
		t.handler.InputReady(hc, hc.untilClose)
		hc.untilClose = nil
		hc.decoder = nil
	}

	// A body still being decoded or encoded means the exchange died with the
	// connection; tear the state down so blocked workers unwind. Only an
	// unsolicited close counts as a fatal I/O failure.
	if hc.decoder != nil || hc.encoder != nil {
		if peerClosed {
			t.handler.Exception(hc, fmt.Errorf("connection closed during message exchange"))
		} else {
			t.handler.ShutdownConnection(hc, nil)
		}
	}

	t.handler.Closed(hc)
	return gnet.None
}

// OnTraffic pumps the connection: inbound bytes, pending output requests,
// and response decoding. Wake-ups land here as zero-byte traffic events.
func (t *Transport) OnTraffic(c gnet.Conn) gnet.Action {
	hc, ok := c.Context().(*httpConn)
	if !ok {
		return gnet.Close
	}
	return hc.pump()
}
