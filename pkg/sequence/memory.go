package sequence

import (
	"context"
	"sync/atomic"
)

// MemoryCounter is a process-local counter for tests and single-process
// development runs. Values are lost on restart.
type MemoryCounter struct {
	value atomic.Int64
}

// NewMemoryCounter creates a counter whose first Next returns start+1
func NewMemoryCounter(start int64) *MemoryCounter {
	c := &MemoryCounter{}
	c.value.Store(start)
	return c
}

// Next increments and returns the counter
func (c *MemoryCounter) Next(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.value.Add(1), nil
}
