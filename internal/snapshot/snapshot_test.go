package snapshot

import (
	"errors"
	"path/filepath"
	"testing"

	"CredTree/internal/directory"
	"CredTree/internal/ledger"
	"CredTree/internal/storage"
	"CredTree/internal/types"
)

func ident(b byte) types.Identity {
	var id types.Identity
	for i := range id {
		id[i] = b
	}
	return id
}

func dig(b byte) types.Digest {
	var d types.Digest
	for i := range d {
		d[i] = b
	}
	return d
}

func newStore(t *testing.T) *storage.Storage {
	t.Helper()

	db, err := storage.NewInMemory()
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

// populate hosts one registrar with a certified credential.
func populate(t *testing.T, db *storage.Storage) {
	t.Helper()

	dir, err := directory.New(db)
	if err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}

	entry, err := dir.Create(directory.Descriptor{
		ID:          ident(0xE1),
		Kind:        directory.KindLeaf,
		Authorities: []types.Identity{ident(0xA1)},
		Quorum:      1,
	})
	if err != nil {
		t.Fatalf("create entity: %v", err)
	}

	if err := entry.Ledger.RegisterCredential(ledger.Call{Caller: ident(0xA1), Sequence: 1}, ident(0x51), dig(1)); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := entry.Ledger.ConfirmCredential(ledger.Call{Caller: ident(0x51), Sequence: 2}, dig(1)); err != nil {
		t.Fatalf("confirm: %v", err)
	}
}

func TestCreateRestore(t *testing.T) {
	src := newStore(t)
	populate(t, src)

	data, info, err := Create(src, 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if info.Pairs == 0 || info.Sequence != 2 || info.Version != version {
		t.Fatalf("unexpected info: %+v", info)
	}

	dst := newStore(t)

	restored, err := Restore(dst, data)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if restored.Checksum != info.Checksum || restored.Pairs != info.Pairs {
		t.Errorf("expected %+v, got %+v", info, restored)
	}

	dir, err := directory.New(dst)
	if err != nil {
		t.Fatalf("reload directory: %v", err)
	}

	entry, err := dir.Get(ident(0xE1))
	if err != nil {
		t.Fatalf("restored entity missing: %v", err)
	}

	if !entry.Ledger.Certified(dig(1)) {
		t.Error("restored credential is not certified")
	}
}

// TestCreate_Deterministic verifies equal stores produce equal snapshots.
func TestCreate_Deterministic(t *testing.T) {
	a, b := newStore(t), newStore(t)

	for _, db := range []*storage.Storage{a, b} {
		db.Set([]byte("k2"), []byte("v2"))
		db.Set([]byte("k1"), []byte("v1"))
	}

	_, ia, err := Create(a, 5)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, ib, err := Create(b, 5)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if ia.Checksum != ib.Checksum {
		t.Error("checksums differ for identical stores")
	}

	_, ic, _ := Create(b, 6)
	if ic.Checksum == ib.Checksum {
		t.Error("sequence is not covered by the checksum")
	}
}

func TestRestore_NotEmpty(t *testing.T) {
	src := newStore(t)
	src.Set([]byte("k"), []byte("v"))

	data, _, err := Create(src, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := Restore(src, data); !errors.Is(err, ErrNotEmpty) {
		t.Fatalf("expected ErrNotEmpty, got %v", err)
	}
}

func TestRestore_Tampered(t *testing.T) {
	pairs := []pair{{key: []byte("k"), value: []byte("v")}}
	sum := checksum(version, 1, pairs)

	pairs[0].value = []byte("forged")

	data, err := compress(build(1, pairs, sum))
	if err != nil {
		t.Fatalf("compress: %v", err)
	}

	dst := newStore(t)
	if _, err := Restore(dst, data); !errors.Is(err, ErrChecksum) {
		t.Fatalf("expected ErrChecksum, got %v", err)
	}

	if v, _ := dst.Get([]byte("k")); v != nil {
		t.Error("tampered snapshot must not be written")
	}
}

func TestInspect_Malformed(t *testing.T) {
	if _, err := Inspect([]byte("not zstd")); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}

	garbage, _ := compress([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	if _, err := Inspect(garbage); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestFileRoundTrip(t *testing.T) {
	src := newStore(t)
	populate(t, src)

	path := filepath.Join(t.TempDir(), "state.snap")

	info, err := WriteFile(src, 2, path)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	dst := newStore(t)

	restored, err := RestoreFile(dst, path)
	if err != nil {
		t.Fatalf("RestoreFile: %v", err)
	}

	if restored.Checksum != info.Checksum {
		t.Error("checksum changed through the file")
	}
}
