package storage

import (
	"bytes"
	"path/filepath"
	"testing"
)

// newTestStorage creates a temporary on-disk storage closed at test end.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	t.Cleanup(func() { s.Close() })

	return s
}

func TestSetAndGet(t *testing.T) {
	s := newTestStorage(t)

	key := []byte("test-key")
	value := []byte("test-value")

	if err := s.Set(key, value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !bytes.Equal(got, value) {
		t.Errorf("Get returned %q, want %q", got, value)
	}
}

func TestGetNonExistent(t *testing.T) {
	s := newTestStorage(t)

	got, err := s.Get([]byte("non-existent"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got != nil {
		t.Errorf("Get returned %q, want nil", got)
	}

	ok, err := s.Has([]byte("non-existent"))
	if err != nil || ok {
		t.Errorf("Has = %v, %v; want false, nil", ok, err)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStorage(t)

	key := []byte("to-delete")

	if err := s.Set(key, []byte("value")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := s.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got != nil {
		t.Errorf("Get after Delete returned %q, want nil", got)
	}
}

func TestSetBatch(t *testing.T) {
	s := newTestStorage(t)

	pairs := []KeyValue{
		{Key: []byte("batch-1"), Value: []byte("value-1")},
		{Key: []byte("batch-2"), Value: []byte("value-2")},
		{Key: []byte("batch-3"), Value: []byte("value-3")},
	}

	if err := s.SetBatch(pairs); err != nil {
		t.Fatalf("SetBatch failed: %v", err)
	}

	for _, kv := range pairs {
		got, err := s.Get(kv.Key)
		if err != nil {
			t.Fatalf("Get failed for %q: %v", kv.Key, err)
		}

		if !bytes.Equal(got, kv.Value) {
			t.Errorf("Get(%q) = %q, want %q", kv.Key, got, kv.Value)
		}
	}
}

// TestBatch_MixedOps verifies sets and deletes in one batch land together.
func TestBatch_MixedOps(t *testing.T) {
	s := newTestStorage(t)

	if err := s.Set([]byte("old"), []byte("x")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	b := s.NewBatch()
	b.Set([]byte("new"), []byte("y"))
	b.Delete([]byte("old"))

	if b.Len() != 2 {
		t.Errorf("Len = %d, want 2", b.Len())
	}

	// Nothing is visible before commit
	if got, _ := s.Get([]byte("new")); got != nil {
		t.Errorf("uncommitted write visible: %q", got)
	}

	if err := b.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	b.Close()

	if got, _ := s.Get([]byte("old")); got != nil {
		t.Errorf("deleted key still present: %q", got)
	}

	if got, _ := s.Get([]byte("new")); !bytes.Equal(got, []byte("y")) {
		t.Errorf("Get(new) = %q, want y", got)
	}
}

// TestBatch_Discarded verifies a closed, uncommitted batch writes nothing.
func TestBatch_Discarded(t *testing.T) {
	s := newTestStorage(t)

	b := s.NewBatch()
	b.Set([]byte("ghost"), []byte("x"))
	b.Close()

	if got, _ := s.Get([]byte("ghost")); got != nil {
		t.Errorf("discarded batch wrote %q", got)
	}
}

func TestIteratePrefix(t *testing.T) {
	s := newTestStorage(t)

	_ = s.Set([]byte("p:a"), []byte("1"))
	_ = s.Set([]byte("p:b"), []byte("2"))
	_ = s.Set([]byte("q:a"), []byte("3"))

	var keys []string
	err := s.IteratePrefix([]byte("p:"), func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("IteratePrefix failed: %v", err)
	}

	if len(keys) != 2 || keys[0] != "p:a" || keys[1] != "p:b" {
		t.Errorf("keys = %v, want [p:a p:b]", keys)
	}
}

func TestPrefixUpperBound(t *testing.T) {
	tests := []struct {
		prefix []byte
		want   []byte
	}{
		{[]byte{0x01}, []byte{0x02}},
		{[]byte{0x01, 0xFF}, []byte{0x02}},
		{[]byte{0xFF, 0xFF}, nil},
	}

	for _, tt := range tests {
		got := prefixUpperBound(tt.prefix)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("prefixUpperBound(%x) = %x, want %x", tt.prefix, got, tt.want)
		}
	}
}

func TestInMemory(t *testing.T) {
	s, err := NewInMemory()
	if err != nil {
		t.Fatalf("NewInMemory failed: %v", err)
	}
	defer s.Close()

	if err := s.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if got, _ := s.Get([]byte("k")); !bytes.Equal(got, []byte("v")) {
		t.Errorf("Get = %q, want v", got)
	}
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	s, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	b := s.NewBatch()
	b.Set([]byte("durable"), []byte("yes"))
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	b.Close()
	s.Close()

	s, err = New(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	if got, _ := s.Get([]byte("durable")); !bytes.Equal(got, []byte("yes")) {
		t.Errorf("Get after reopen = %q, want yes", got)
	}
}
