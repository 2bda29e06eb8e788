package conn

import (
	"net"
	"time"

	"github.com/albertbausili/surge/pkg/exchange"
)

// Conn is the non-blocking connection port the handler drives. The transport
// implements it; the method set includes the flow-control capability
// (buffer.IOControl) handed to the shared buffers.
type Conn interface {
	// Context returns the connection's execution context.
	Context() *exchange.Context
	// Response returns the response whose head the transport just decoded.
	Response() *exchange.Response
	// SubmitRequest encodes and queues the request head.
	SubmitRequest(req *exchange.Request) error

	RequestInput()
	SuspendInput()
	RequestOutput()
	SuspendOutput()

	// ResetInput abandons decoding of the current response body.
	ResetInput()
	// ResetOutput abandons encoding of the current request body.
	ResetOutput()

	SetSocketTimeout(d time.Duration)
	SocketTimeout() time.Duration

	RemoteAddr() net.Addr
	IsOpen() bool
	// Close shuts the connection down gracefully.
	Close() error
	// Shutdown closes the socket immediately.
	Shutdown() error
}

// StateOf returns the connection state stashed in the context, or nil before
// Connected has run.
func StateOf(c Conn) *State {
	st, _ := c.Context().Get(stateKey).(*State)
	return st
}
