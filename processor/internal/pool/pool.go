// Package pool provides the fixed-width keyed worker pool the store
// consumer dispatches into. Work items with the same key always run on the
// same worker in submission order, which preserves per-device ordering even
// though different devices' events interleave freely.
package pool

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
)

// ErrStopped is returned by Submit after Stop has been called.
var ErrStopped = errors.New("worker pool stopped")

// DefaultWidth is the pool width used when none is configured.
const DefaultWidth = 25

// KeyedPool runs tasks on a fixed set of workers, routing each task to a
// worker by hashing its key. Each worker drains its own bounded queue, so a
// slow device backs up only the devices sharing its worker.
type KeyedPool struct {
	queues []chan func()
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// New starts a pool of the given width. Each worker gets its own queue of
// queueDepth pending tasks.
func New(width, queueDepth int) *KeyedPool {
	if width <= 0 {
		width = DefaultWidth
	}
	if queueDepth <= 0 {
		queueDepth = 100
	}

	p := &KeyedPool{queues: make([]chan func(), width)}
	for i := range p.queues {
		p.queues[i] = make(chan func(), queueDepth)
		p.wg.Add(1)
		go p.worker(p.queues[i])
	}
	return p
}

func (p *KeyedPool) worker(queue <-chan func()) {
	defer p.wg.Done()
	for task := range queue {
		task()
	}
}

// Width returns the number of workers.
func (p *KeyedPool) Width() int { return len(p.queues) }

// Submit routes the task to the worker owning key. When that worker's queue
// is full, Submit blocks rather than dropping the task or spilling it onto
// another worker, so ordering holds under backpressure.
func (p *KeyedPool) Submit(ctx context.Context, key string, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	h := fnv.New32a()
	h.Write([]byte(key))
	queue := p.queues[h.Sum32()%uint32(len(p.queues))]

	select {
	case queue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop rejects further submissions and blocks until every queued task has
// run. Submitted work is joined, never abandoned.
func (p *KeyedPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	p.wg.Wait()
}
