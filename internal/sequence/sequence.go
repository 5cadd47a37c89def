// Package sequence provides the process-wide ordering counter handed to
// every mutating operation.
package sequence

import (
	"encoding/binary"
	"fmt"
	"sync"

	"CredTree/internal/storage"
)

// counterKey holds the last issued value as a big-endian uint64.
var counterKey = []byte("m:sequence")

// Counter is a persisted, strictly increasing counter.
// A value is durable before it is returned, so values are never reused
// across restarts even if the operation that drew them failed.
type Counter struct {
	db *storage.Storage

	mu      sync.Mutex
	current uint64
}

// New loads the counter from db.
func New(db *storage.Storage) (*Counter, error) {
	c := &Counter{db: db}

	data, err := db.Get(counterKey)
	if err != nil {
		return nil, fmt.Errorf("load sequence:\n%w", err)
	}

	if len(data) == 8 {
		c.current = binary.BigEndian.Uint64(data)
	}

	return c, nil
}

// Next reserves and returns the next value.
func (c *Counter) Next() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.current + 1

	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, next)

	b := c.db.NewBatch()
	defer b.Close()

	b.Set(counterKey, data)
	if err := b.Commit(); err != nil {
		return 0, fmt.Errorf("persist sequence:\n%w", err)
	}

	c.current = next

	return next, nil
}

// Current returns the last issued value, zero if none.
func (c *Counter) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current
}
