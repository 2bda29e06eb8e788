package conn

import (
	"sync"
	"time"

	"github.com/albertbausili/surge/internal/buffer"
	"github.com/albertbausili/surge/pkg/exchange"
)

// stateKey is the private context attribute holding the connection state.
const stateKey = "surge.conn-state"

// State holds everything the handler tracks for one live connection: the two
// shared buffers, the in-flight request and response, both phase variables,
// and the socket timeout saved across a 100-continue wait. All fields are
// guarded by the state's monitor; every mutation broadcasts to waiters.
type State struct {
	mu   sync.Mutex
	cond *sync.Cond

	inbuf  *buffer.SharedInput
	outbuf *buffer.SharedOutput

	inputPhase  InputPhase
	outputPhase OutputPhase

	request  *exchange.Request
	response *exchange.Response

	savedTimeout time.Duration
}

// NewState allocates the connection state with bounded buffers of the given
// size, wired to the connection's flow-control capability.
func NewState(bufsize int, ioctl buffer.IOControl) *State {
	s := &State{
		inbuf:  buffer.NewSharedInput(bufsize, ioctl),
		outbuf: buffer.NewSharedOutput(bufsize, ioctl),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Lock acquires the connection monitor.
func (s *State) Lock() { s.mu.Lock() }

// Unlock releases the connection monitor.
func (s *State) Unlock() { s.mu.Unlock() }

// Wait blocks on the monitor until the next broadcast. Caller must hold the
// monitor.
func (s *State) Wait() { s.cond.Wait() }

// Broadcast wakes all monitor waiters. Caller must hold the monitor.
func (s *State) Broadcast() { s.cond.Broadcast() }

// Inbuffer returns the shared input buffer.
func (s *State) Inbuffer() *buffer.SharedInput { return s.inbuf }

// Outbuffer returns the shared output buffer.
func (s *State) Outbuffer() *buffer.SharedOutput { return s.outbuf }

// InputPhase returns the current input phase. Caller must hold the monitor.
func (s *State) InputPhase() InputPhase { return s.inputPhase }

// OutputPhase returns the current output phase. Caller must hold the monitor.
func (s *State) OutputPhase() OutputPhase { return s.outputPhase }

// Shutdown moves both phases to their terminal state and shuts down both
// buffers, unblocking every producer and consumer with an interrupted-I/O
// failure. Safe to call from any thread.
func (s *State) Shutdown() {
	s.mu.Lock()
	s.inbuf.Shutdown()
	s.outbuf.Shutdown()
	s.inputPhase = InputShutdown
	s.outputPhase = OutputShutdown
	s.cond.Broadcast()
	s.mu.Unlock()
}

// resetInput clears the response side for the next exchange. Caller must
// hold the monitor.
func (s *State) resetInput() {
	s.inbuf.Reset()
	s.response = nil
	s.inputPhase = InputReady
}

// resetOutput clears the request side for the next exchange. Caller must
// hold the monitor.
func (s *State) resetOutput() {
	s.outbuf.Reset()
	s.request = nil
	s.outputPhase = OutputReady
}
