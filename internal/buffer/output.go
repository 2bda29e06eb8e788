package buffer

import "sync"

// SharedOutput is the bounded request-body buffer. A worker fills it as a
// blocking byte sink; the I/O loop drains it into a content encoder. The
// buffer requests socket output whenever it holds bytes and suspends output
// when it runs dry before the body is complete.
type SharedOutput struct {
	mu    sync.Mutex
	cond  *sync.Cond
	ring  ring
	ioctl IOControl

	endOfStream bool
	closed      bool
}

// NewSharedOutput creates a shared output buffer of the given capacity.
func NewSharedOutput(size int, ioctl IOControl) *SharedOutput {
	b := &SharedOutput{ring: newRing(size), ioctl: ioctl}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Write appends bytes as a blocking sink for a worker, blocking while the
// buffer is full. Returns ErrShutdown if the buffer is shut down while
// blocked.
func (b *SharedOutput) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for total < len(p) {
		for b.ring.free() == 0 && !b.closed {
			b.cond.Wait()
		}
		if b.closed {
			return total, ErrShutdown
		}
		if b.endOfStream {
			return total, ErrShutdown
		}
		n := b.ring.write(p[total:])
		total += n
		b.ioctl.RequestOutput()
		b.cond.Broadcast()
	}
	return total, nil
}

// Close marks end of stream. The I/O thread finalizes the encoder once the
// remaining bytes have drained.
func (b *SharedOutput) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrShutdown
	}
	b.endOfStream = true
	b.ioctl.RequestOutput()
	b.cond.Broadcast()
	return nil
}

// Produce drains buffered bytes into the encoder. Called only by the I/O
// thread; never blocks. When the buffer runs dry it either completes the
// encoder (end of stream) or suspends socket output.
func (b *SharedOutput) Produce(enc ContentEncoder) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrShutdown
	}
	total := 0
	var chunk [4096]byte
	for b.ring.count > 0 {
		n := b.ring.read(chunk[:])
		wn, err := enc.Write(chunk[:n])
		total += wn
		b.cond.Broadcast()
		if err != nil {
			return total, err
		}
	}
	if b.ring.count == 0 {
		if b.endOfStream {
			if !enc.Completed() {
				if err := enc.Complete(); err != nil {
					return total, err
				}
			}
		} else {
			b.ioctl.SuspendOutput()
		}
	}
	return total, nil
}

// Len returns the number of buffered bytes.
func (b *SharedOutput) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ring.count
}

// Reset discards residual bytes and clears the end-of-stream marker.
func (b *SharedOutput) Reset() {
	b.mu.Lock()
	b.ring.reset()
	b.endOfStream = false
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Shutdown unblocks all waiters with ErrShutdown. Irreversible.
func (b *SharedOutput) Shutdown() {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
}
