package storage

import (
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

const (
	// defaultSyncInterval is the default interval between WAL syncs.
	defaultSyncInterval = 100 * time.Millisecond

	// defaultCacheSize is the default Pebble block cache size.
	defaultCacheSize = 32 << 20
)

// KeyValue represents a key-value pair for batch operations.
type KeyValue struct {
	Key   []byte // Key is the key to store
	Value []byte // Value is the value to store
}

// Storage provides a key-value store backed by Pebble.
// Single writes are non-blocking (NoSync) and a background goroutine
// periodically syncs the WAL to disk. Batches commit with Sync so a
// ledger mutation is durable once Commit returns.
type Storage struct {
	db       *pebble.DB    // db is the underlying Pebble database
	stopSync chan struct{} // stopSync signals the sync goroutine to stop
	wg       sync.WaitGroup
	closed   bool
}

// New creates a new Storage instance at the given path.
// It starts a background goroutine that syncs the WAL periodically.
func New(path string) (*Storage, error) {
	return open(path, &pebble.Options{
		Cache:                       pebble.NewCache(defaultCacheSize),
		MemTableSize:                16 << 20, // 16 MB memtable
		MemTableStopWritesThreshold: 2,
	})
}

// NewInMemory creates a Storage backed by an in-memory filesystem.
// Nothing survives Close.
func NewInMemory() (*Storage, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()})
}

// open opens the database and starts the sync loop.
func open(path string, opts *pebble.Options) (*Storage, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}

	s := &Storage{
		db:       db,
		stopSync: make(chan struct{}),
	}

	s.startSyncLoop()

	return s, nil
}

// Get retrieves the value for the given key.
// Returns nil if the key does not exist.
func (s *Storage) Get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// Copy the value since it's invalid after closer.Close()
	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}

// Has reports whether the key exists.
func (s *Storage) Has(key []byte) (bool, error) {
	value, err := s.Get(key)
	if err != nil {
		return false, err
	}
	return value != nil, nil
}

// Set stores a key-value pair.
// The write is buffered and synced periodically by the background goroutine.
func (s *Storage) Set(key, value []byte) error {
	return s.db.Set(key, value, pebble.NoSync)
}

// Delete removes a key from the store.
// The write is buffered and synced periodically by the background goroutine.
func (s *Storage) Delete(key []byte) error {
	return s.db.Delete(key, pebble.NoSync)
}

// SetBatch atomically stores multiple key-value pairs.
// Either all pairs are written or none.
func (s *Storage) SetBatch(pairs []KeyValue) error {
	b := s.NewBatch()
	defer b.Close()

	for _, kv := range pairs {
		b.Set(kv.Key, kv.Value)
	}

	return b.Commit()
}

// Batch collects sets and deletes that are applied atomically on Commit.
type Batch struct {
	batch *pebble.Batch
	err   error // err is the first error returned by the underlying batch
	ops   int
}

// NewBatch starts an empty atomic batch.
func (s *Storage) NewBatch() *Batch {
	return &Batch{batch: s.db.NewBatch()}
}

// Set queues a key-value write.
func (b *Batch) Set(key, value []byte) {
	if b.err != nil {
		return
	}
	b.err = b.batch.Set(key, value, nil)
	b.ops++
}

// Delete queues a key removal.
func (b *Batch) Delete(key []byte) {
	if b.err != nil {
		return
	}
	b.err = b.batch.Delete(key, nil)
	b.ops++
}

// Len returns the number of queued operations.
func (b *Batch) Len() int {
	return b.ops
}

// Commit applies every queued operation or none of them.
func (b *Batch) Commit() error {
	if b.err != nil {
		return b.err
	}
	return b.batch.Commit(pebble.Sync)
}

// Close releases the batch. Safe to call after Commit.
func (b *Batch) Close() error {
	return b.batch.Close()
}

// Iterate calls fn for each key-value pair in the database.
// If fn returns an error, iteration stops and the error is returned.
// Keys are visited in lexicographic order.
func (s *Storage) Iterate(fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// IteratePrefix calls fn for each key-value pair with the given prefix.
// Uses Pebble's iterator bounds for efficient prefix scanning.
func (s *Storage) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// prefixUpperBound computes the exclusive upper bound for a prefix scan.
// Increments the last byte; returns nil if prefix is all 0xFF (full range).
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}

	return nil // all 0xFF → unbounded
}

// Close stops the sync goroutine and closes the database.
// It performs a final sync before closing to ensure durability.
func (s *Storage) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	close(s.stopSync)
	s.wg.Wait()

	// Final sync before closing
	if err := s.sync(); err != nil {
		return err
	}

	return s.db.Close()
}

// startSyncLoop starts the background goroutine that periodically syncs the WAL.
func (s *Storage) startSyncLoop() {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(defaultSyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = s.sync()
			case <-s.stopSync:
				return
			}
		}
	}()
}

// sync forces a WAL sync to disk.
func (s *Storage) sync() error {
	return s.db.LogData(nil, pebble.Sync)
}
