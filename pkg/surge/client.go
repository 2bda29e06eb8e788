package surge

import (
	"context"
	"fmt"

	"github.com/albertbausili/surge/internal/conn"
	"github.com/albertbausili/surge/internal/transport"
	"github.com/albertbausili/surge/pkg/exchange"
)

// Client is an event-driven HTTP/1.x client engine. One I/O loop set drives
// all connections; blocking work runs on the worker pool.
type Client struct {
	config      Config
	execHandler exchange.ExecutionHandler
	processors  []exchange.Processor
	reuse       exchange.ReuseStrategy
	listeners   []exchange.EventListener
	dispatcher  exchange.Dispatcher

	pool      *PoolDispatcher
	transport *transport.Transport
}

// New creates a client engine for the given execution handler.
func New(config Config, execHandler exchange.ExecutionHandler) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if execHandler == nil {
		return nil, fmt.Errorf("execution handler not set")
	}
	return &Client{
		config:      config,
		execHandler: execHandler,
	}, nil
}

// Processors appends message processors to the default chain and returns the
// client for chaining.
func (c *Client) Processors(p ...exchange.Processor) *Client {
	c.processors = append(c.processors, p...)
	return c
}

// ReuseStrategy replaces the connection reuse policy.
func (c *Client) ReuseStrategy(s exchange.ReuseStrategy) *Client {
	c.reuse = s
	return c
}

// Listeners appends connection event listeners.
func (c *Client) Listeners(l ...exchange.EventListener) *Client {
	c.listeners = append(c.listeners, l...)
	return c
}

// Dispatcher replaces the worker dispatcher; by default an internal pool of
// Config.Workers goroutines is used.
func (c *Client) Dispatcher(d exchange.Dispatcher) *Client {
	c.dispatcher = d
	return c
}

// Start builds the connection handler and launches the event loops.
func (c *Client) Start() error {
	dispatcher := c.dispatcher
	if dispatcher == nil {
		pool, err := NewPoolDispatcher(c.config.Workers)
		if err != nil {
			return err
		}
		c.pool = pool
		dispatcher = pool
	}

	chain := exchange.ProcessorChain{
		exchange.RequestTargetHost{},
		exchange.RequestContentFraming{},
		exchange.RequestConnControl{},
		exchange.RequestUserAgent{Agent: c.config.UserAgent},
	}
	chain = append(chain, c.processors...)

	handler, err := conn.NewHandler(conn.HandlerConfig{
		Processor:       chain,
		ExecHandler:     c.execHandler,
		ReuseStrategy:   c.reuse,
		Dispatcher:      dispatcher,
		Listener:        exchange.ListenerChain(c.listeners),
		BufferSize:      c.config.ContentBufferSize,
		WaitForContinue: c.config.WaitForContinue,
		Logger:          c.config.Logger,
	})
	if err != nil {
		return err
	}

	c.transport, err = transport.NewTransport(handler, transport.Config{
		Multicore:     c.config.Multicore,
		NumEventLoop:  c.config.NumEventLoop,
		SocketTimeout: c.config.SocketTimeout,
		Logger:        c.config.Logger,
	})
	if err != nil {
		return err
	}
	return c.transport.Start()
}

// Dial opens a connection to addr and hands the attachment to the execution
// handler when the connection context is initialized.
func (c *Client) Dial(addr string, attachment any) error {
	if c.transport == nil {
		return fmt.Errorf("client not started")
	}
	return c.transport.Dial(addr, attachment)
}

// Stop closes all connections and releases the worker pool.
func (c *Client) Stop(ctx context.Context) error {
	var err error
	if c.transport != nil {
		err = c.transport.Stop(ctx)
	}
	if c.pool != nil {
		c.pool.Release()
	}
	return err
}
