// Package composite implements authorities that own child authorities and
// verify aggregate proofs folded over them.
package composite

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sync"

	"CredTree/internal/ledger"
	"CredTree/internal/storage"
	"CredTree/internal/types"
)

var (
	// ErrInsufficientChildren is returned when verification names no child.
	ErrInsufficientChildren = errors.New("at least one child is required")

	// ErrUnregisteredChild is returned for identities that are not children.
	ErrUnregisteredChild = errors.New("identity is not a registered child")

	// ErrNotAnAuthority is returned when an identity does not resolve to a prover.
	ErrNotAnAuthority = errors.New("identity is not an authority")

	// ErrChildExists is returned when adding a child twice.
	ErrChildExists = errors.New("child already registered")

	// ErrCyclicChild is returned when a child would contain its parent.
	ErrCyclicChild = errors.New("child would create a cycle")

	// ErrRootMismatch is returned when a root credential does not fold to the claimed root.
	ErrRootMismatch = errors.New("root credential does not match the child proofs")

	// ErrSemesterExists is returned when registering a semester twice.
	ErrSemesterExists = errors.New("semester already registered")

	// ErrNoSuchSemester is returned for semesters that were never registered.
	ErrNoSuchSemester = errors.New("no such semester")
)

// prefixChild keys the ordered child list: c:<entity><index> -> child identity.
var prefixChild = []byte("c:")

// Prover is what a composite requires from each child.
// Both *ledger.Ledger and *Composite satisfy it.
type Prover interface {
	ID() types.Identity
	GetProof(subject types.Identity) (types.Digest, error)
	Certified(digest types.Digest) bool
	VerifyIssuedCredentials(subject types.Identity) (bool, error)
}

// Resolver looks up provers by entity identity.
type Resolver interface {
	Resolve(id types.Identity) (Prover, bool)
}

// Composite is a ledger that also owns an add-only list of child authorities.
type Composite struct {
	*ledger.Ledger

	db       *storage.Storage
	resolver Resolver

	mu       sync.RWMutex
	children []types.Identity
	index    map[types.Identity]int
}

// New wraps l as a composite and loads its persisted children.
func New(l *ledger.Ledger, db *storage.Storage, resolver Resolver) (*Composite, error) {
	if l == nil || resolver == nil {
		return nil, fmt.Errorf("%w: composite needs a ledger and a resolver", ledger.ErrInvalidConfiguration)
	}

	c := &Composite{
		Ledger:   l,
		db:       db,
		resolver: resolver,
		index:    make(map[types.Identity]int),
	}

	if err := c.load(); err != nil {
		return nil, err
	}

	return c, nil
}

// load reads the child list in index order.
func (c *Composite) load() error {
	id := c.ID()
	prefix := append(slices.Clone(prefixChild), id[:]...)

	return c.db.IteratePrefix(prefix, func(_, value []byte) error {
		child, ok := types.IdentityFromBytes(value)
		if !ok {
			return fmt.Errorf("malformed child entry for %s", id.Short())
		}

		c.index[child] = len(c.children)
		c.children = append(c.children, child)

		return nil
	})
}

// childKey builds c:<entity><index>.
func (c *Composite) childKey(n int) []byte {
	id := c.ID()

	key := make([]byte, 0, len(prefixChild)+types.Size+4)
	key = append(key, prefixChild...)
	key = append(key, id[:]...)
	key = binary.BigEndian.AppendUint32(key, uint32(n))

	return key
}

// AddChild registers a child authority. The child must already resolve to a
// Prover; the capability is checked here, not at verification time.
func (c *Composite) AddChild(call ledger.Call, child types.Identity) error {
	if err := c.checkChild(call, child); err != nil {
		return err
	}

	p, ok := c.resolver.Resolve(child)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAnAuthority, child.Short())
	}

	if sub, ok := p.(*Composite); ok && sub.reaches(c.ID(), c.resolver) {
		return fmt.Errorf("%w: %s", ErrCyclicChild, child.Short())
	}

	return c.attach(call, child, nil)
}

// AttachChild registers a child that is being created alongside, so it does
// not resolve yet. persist queues the child's own records into the batch that
// records the registration: both land or neither does.
func (c *Composite) AttachChild(call ledger.Call, child types.Identity, persist func(*storage.Batch)) error {
	if err := c.checkChild(call, child); err != nil {
		return err
	}

	return c.attach(call, child, persist)
}

// checkChild applies the checks shared by every way of adding a child.
func (c *Composite) checkChild(call ledger.Call, child types.Identity) error {
	if err := c.Authorities().Authorize(call.Caller); err != nil {
		return err
	}

	if child.IsZero() {
		return fmt.Errorf("%w: zero child", ledger.ErrInvalidIdentity)
	}

	if child == c.ID() {
		return fmt.Errorf("%w: %s", ErrCyclicChild, child.Short())
	}

	return nil
}

// attach appends child to the list in one synced batch.
func (c *Composite) attach(call ledger.Call, child types.Identity, persist func(*storage.Batch)) error {
	c.mu.Lock()

	if _, exists := c.index[child]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrChildExists, child.Short())
	}

	n := len(c.children)

	b := c.db.NewBatch()
	b.Set(c.childKey(n), child[:])
	if persist != nil {
		persist(b)
	}

	err := b.Commit()
	b.Close()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("persist child:\n%w", err)
	}

	c.index[child] = n
	c.children = append(c.children, child)

	c.mu.Unlock()

	ev := c.Event(ledger.ChildAdded, call)
	ev.Child = child
	c.Emitter().Emit(ev)

	return nil
}

// reaches reports whether target is c or one of its descendants.
func (c *Composite) reaches(target types.Identity, r Resolver) bool {
	if c.ID() == target {
		return true
	}

	for _, id := range c.Children() {
		if id == target {
			return true
		}

		p, ok := r.Resolve(id)
		if !ok {
			continue
		}

		if sub, ok := p.(*Composite); ok && sub.reaches(target, r) {
			return true
		}
	}

	return false
}

// IsChild reports whether id is a registered child.
func (c *Composite) IsChild(id types.Identity) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.index[id]
	return ok
}

// Children returns the child identities in registration order.
func (c *Composite) Children() []types.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.children)
}
