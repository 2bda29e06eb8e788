// Package surge provides an event-driven HTTP/1.x client engine with bounded
// per-connection memory. A single non-blocking I/O loop drives each
// connection's state machine while a worker pool produces request bodies and
// consumes response bodies with ordinary blocking stream semantics.
package surge

import (
	"fmt"
	"io"
	"log"
	"time"
)

// Config holds the engine configuration.
type Config struct {
	ContentBufferSize int           // Bounded buffer size per direction, in bytes
	WaitForContinue   time.Duration // Timeout while waiting for a 100 Continue
	SocketTimeout     time.Duration // Idle timeout on live connections
	Workers           int           // Worker pool size (0 for unbounded)
	Multicore         bool          // Enable multiple event loops
	NumEventLoop      int           // Number of event loops (0 for auto-detect)
	UserAgent         string        // User-Agent header added to requests
	Logger            *log.Logger   // Logger for engine events
}

// newSilentLogger creates a silent logger that discards all output
func newSilentLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ContentBufferSize: 20480,
		WaitForContinue:   3 * time.Second,
		SocketTimeout:     30 * time.Second,
		Workers:           0,
		Multicore:         true,
		NumEventLoop:      0, // Auto-detect
		UserAgent:         "surge/1.0",
		Logger:            newSilentLogger(),
	}
}

// Validate checks and normalizes the configuration values.
func (c *Config) Validate() error {
	if c.ContentBufferSize < 0 {
		return fmt.Errorf("content buffer size may not be negative: %d", c.ContentBufferSize)
	}
	if c.ContentBufferSize == 0 {
		c.ContentBufferSize = 20480
	}
	if c.WaitForContinue <= 0 {
		c.WaitForContinue = 3 * time.Second
	}
	if c.SocketTimeout <= 0 {
		c.SocketTimeout = 30 * time.Second
	}
	if c.Workers < 0 {
		return fmt.Errorf("worker count may not be negative: %d", c.Workers)
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return nil
}
