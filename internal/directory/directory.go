// Package directory keeps the set of authority entities hosted by a node:
// their persisted descriptors and the live ledger or composite instances.
package directory

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"sync"

	"CredTree/internal/authority"
	"CredTree/internal/composite"
	"CredTree/internal/ledger"
	"CredTree/internal/logger"
	"CredTree/internal/storage"
	"CredTree/internal/types"
)

var (
	// ErrUnknownEntity is returned for identities with no descriptor.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrEntityExists is returned when creating an entity twice.
	ErrEntityExists = errors.New("entity already exists")

	// ErrNotComposite is returned when a composite operation targets a leaf.
	ErrNotComposite = errors.New("entity is not a composite authority")
)

// Kind distinguishes the two entity variants.
type Kind uint8

const (
	// KindLeaf is a plain proof ledger.
	KindLeaf Kind = iota + 1

	// KindComposite is a ledger owning child authorities.
	KindComposite
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindComposite:
		return "composite"
	default:
		return "unknown"
	}
}

// ParseKind maps a kind name back to its value.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "leaf", "":
		return KindLeaf, nil
	case "composite":
		return KindComposite, nil
	default:
		return 0, fmt.Errorf("unknown entity kind %q", s)
	}
}

// Descriptor is the persisted definition of an entity.
type Descriptor struct {
	ID          types.Identity
	Kind        Kind
	Authorities []types.Identity
	Quorum      int
	Config      ledger.Config
	Parent      types.Identity // Parent is set for spawned children
}

// Entry is a hosted entity. Composite is nil for leaves.
type Entry struct {
	Descriptor Descriptor
	Ledger     *ledger.Ledger
	Composite  *composite.Composite
}

// Prover returns the entry as a composite child capability.
func (e *Entry) Prover() composite.Prover {
	if e.Composite != nil {
		return e.Composite
	}
	return e.Ledger
}

// Directory maps entity identities to live instances.
type Directory struct {
	db        *storage.Storage
	emitter   ledger.Emitter
	cacheSize int

	mu      sync.RWMutex
	entries map[types.Identity]*Entry
}

// Option configures a Directory.
type Option func(*Directory)

// WithEmitter sets the event sink shared by every hosted ledger.
func WithEmitter(e ledger.Emitter) Option {
	return func(d *Directory) { d.emitter = e }
}

// WithCacheSize sets the per-ledger proof cache size.
func WithCacheSize(n int) Option {
	return func(d *Directory) { d.cacheSize = n }
}

// New opens the directory and instantiates every persisted entity.
func New(db *storage.Storage, opts ...Option) (*Directory, error) {
	d := &Directory{
		db:      db,
		entries: make(map[types.Identity]*Entry),
	}

	for _, opt := range opts {
		opt(d)
	}

	var descs []Descriptor

	err := db.IteratePrefix(prefixEntity, func(_, value []byte) error {
		desc, err := decodeDescriptor(value)
		if err != nil {
			return err
		}
		descs = append(descs, desc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load entities:\n%w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, desc := range descs {
		entry, err := d.instantiate(desc)
		if err != nil {
			return nil, fmt.Errorf("load entity %s:\n%w", desc.ID.Short(), err)
		}
		d.entries[desc.ID] = entry
	}

	logger.Debug("directory loaded", "entities", len(descs))

	return d, nil
}

// Create persists a new entity and starts hosting it.
func (d *Directory) Create(desc Descriptor) (*Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.entries[desc.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityExists, desc.ID.Short())
	}

	entry, err := d.instantiate(desc)
	if err != nil {
		return nil, err
	}

	b := d.db.NewBatch()
	defer b.Close()

	b.Set(entityKey(desc.ID), encodeDescriptor(desc))
	if err := b.Commit(); err != nil {
		return nil, fmt.Errorf("persist entity:\n%w", err)
	}

	d.entries[desc.ID] = entry

	return entry, nil
}

// Spawn creates desc as a child of parent. The descriptor and the parent's
// child entry are committed in one batch, so a rejected attach leaves no
// entity behind. The directory lock is held while the parent takes its own;
// composites never call back into the directory under theirs.
func (d *Directory) Spawn(desc Descriptor, parent *composite.Composite, call ledger.Call) (*Entry, error) {
	if parent == nil {
		return nil, fmt.Errorf("%w: spawn needs a parent", ledger.ErrInvalidConfiguration)
	}
	desc.Parent = parent.ID()

	if err := parent.Authorities().Authorize(call.Caller); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.entries[desc.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityExists, desc.ID.Short())
	}

	entry, err := d.instantiate(desc)
	if err != nil {
		return nil, err
	}

	err = parent.AttachChild(call, desc.ID, func(b *storage.Batch) {
		b.Set(entityKey(desc.ID), encodeDescriptor(desc))
	})
	if err != nil {
		return nil, fmt.Errorf("attach spawned child:\n%w", err)
	}

	d.entries[desc.ID] = entry

	return entry, nil
}

// instantiate builds the live instance of a descriptor. Caller must hold mu.
func (d *Directory) instantiate(desc Descriptor) (*Entry, error) {
	set, err := authority.New(desc.Authorities, desc.Quorum)
	if err != nil {
		return nil, err
	}

	opts := []ledger.Option{ledger.WithConfig(desc.Config)}
	if d.cacheSize > 0 {
		opts = append(opts, ledger.WithCacheSize(d.cacheSize))
	}
	if d.emitter != nil {
		opts = append(opts, ledger.WithEmitter(d.emitter))
	}

	l, err := ledger.New(desc.ID, set, d.db, opts...)
	if err != nil {
		return nil, err
	}

	entry := &Entry{Descriptor: desc, Ledger: l}

	switch desc.Kind {
	case KindLeaf:
	case KindComposite:
		c, err := composite.New(l, d.db, d)
		if err != nil {
			return nil, err
		}
		entry.Composite = c
	default:
		return nil, fmt.Errorf("%w: kind %d", ledger.ErrInvalidConfiguration, desc.Kind)
	}

	return entry, nil
}

// Get returns the entry for id.
func (d *Directory) Get(id types.Identity) (*Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, id.Short())
	}

	return entry, nil
}

// Composite returns the composite for id.
func (d *Directory) Composite(id types.Identity) (*composite.Composite, error) {
	entry, err := d.Get(id)
	if err != nil {
		return nil, err
	}

	if entry.Composite == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotComposite, id.Short())
	}

	return entry.Composite, nil
}

// Resolve implements composite.Resolver.
func (d *Directory) Resolve(id types.Identity) (composite.Prover, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.entries[id]
	if !ok {
		return nil, false
	}

	return entry.Prover(), true
}

// List returns every descriptor ordered by identity.
func (d *Directory) List() []Descriptor {
	d.mu.RLock()
	out := make([]Descriptor, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, e.Descriptor)
	}
	d.mu.RUnlock()

	slices.SortFunc(out, func(a, b Descriptor) int {
		return bytes.Compare(a.ID[:], b.ID[:])
	})

	return out
}

// Len returns the number of hosted entities.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.entries)
}
