package surge

import (
	"github.com/panjf2000/ants/v2"

	"github.com/albertbausili/surge/pkg/exchange"
)

// PoolDispatcher runs worker tasks on a goroutine pool. Tasks block on the
// shared buffers, so the pool must be large enough to hold the request-body
// and response-handler tasks of every concurrently active connection.
type PoolDispatcher struct {
	pool *ants.Pool
}

// NewPoolDispatcher creates a dispatcher backed by a pool of the given size;
// size 0 leaves the pool unbounded.
func NewPoolDispatcher(size int) (*PoolDispatcher, error) {
	if size <= 0 {
		size = ants.DefaultAntsPoolSize
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	return &PoolDispatcher{pool: pool}, nil
}

// Execute submits a task to the pool.
func (d *PoolDispatcher) Execute(task func()) error {
	return d.pool.Submit(task)
}

// Release closes the pool. It does not wait for running tasks to finish.
func (d *PoolDispatcher) Release() {
	d.pool.Release()
}

var _ exchange.Dispatcher = (*PoolDispatcher)(nil)
