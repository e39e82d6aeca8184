package pe

import "sync"

// cell computes a value at most once and keeps it. Failed computations are
// not cached, so a later call retries; callers never observe a partial value.
type cell[T any] struct {
	mu   sync.Mutex
	done bool
	val  T
}

func (c *cell[T]) get(compute func() (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return c.val, nil
	}
	v, err := compute()
	if err != nil {
		var zero T
		return zero, err
	}
	c.val = v
	c.done = true
	return v, nil
}
