package player

import "sync"

// coalescer runs fn in the background on the most recently submitted value.
// Submit never blocks; values submitted while fn is running replace each
// other, so the last submission is always the last one handled.
type coalescer[T any] struct {
	fn func(T)

	mu      sync.Mutex
	pending T
	has     bool
	running bool
	wg      sync.WaitGroup
}

func newCoalescer[T any](fn func(T)) *coalescer[T] {
	return &coalescer[T]{fn: fn}
}

// Submit queues v, replacing any value not yet picked up
func (c *coalescer[T]) Submit(v T) {
	c.mu.Lock()
	c.pending = v
	c.has = true
	if !c.running {
		c.running = true
		c.wg.Add(1)
		go c.run()
	}
	c.mu.Unlock()
}

func (c *coalescer[T]) run() {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		if !c.has {
			c.running = false
			c.mu.Unlock()
			return
		}
		v := c.pending
		var zero T
		c.pending = zero
		c.has = false
		c.mu.Unlock()

		c.fn(v)
	}
}

// Wait blocks until every submitted value has been handled
func (c *coalescer[T]) Wait() {
	c.wg.Wait()
}
