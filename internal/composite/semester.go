package composite

import (
	"fmt"
	"slices"

	"CredTree/internal/ledger"
	"CredTree/internal/types"
)

// prefixSemester keys semester groupings: s:<entity><semester> -> joined child identities.
var prefixSemester = []byte("s:")

// semesterKey builds s:<entity><semester>.
func (c *Composite) semesterKey(semester types.Digest) []byte {
	id := c.ID()

	key := make([]byte, 0, len(prefixSemester)+2*types.Size)
	key = append(key, prefixSemester...)
	key = append(key, id[:]...)
	key = append(key, semester[:]...)

	return key
}

// RegisterSemester groups registered children under a semester identifier.
// A semester is written once; its course list never changes afterwards.
func (c *Composite) RegisterSemester(call ledger.Call, semester types.Digest, courses []types.Identity) error {
	if err := c.Authorities().Authorize(call.Caller); err != nil {
		return err
	}

	if semester.IsZero() {
		return fmt.Errorf("%w: null semester", ledger.ErrInvalidDigest)
	}

	if len(courses) == 0 {
		return ErrInsufficientChildren
	}

	for i, id := range courses {
		if id.IsZero() {
			return fmt.Errorf("%w: zero course", ledger.ErrInvalidIdentity)
		}
		if !c.IsChild(id) {
			return fmt.Errorf("%w: %s", ErrUnregisteredChild, id.Short())
		}
		if slices.Contains(courses[:i], id) {
			return fmt.Errorf("%w: %s listed twice", ErrChildExists, id.Short())
		}
	}

	c.mu.Lock()

	key := c.semesterKey(semester)

	exists, err := c.db.Has(key)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("read semester:\n%w", err)
	}
	if exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSemesterExists, semester.Short())
	}

	b := c.db.NewBatch()
	b.Set(key, types.JoinIdentities(courses))
	err = b.Commit()
	b.Close()

	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("persist semester:\n%w", err)
	}

	ev := c.Event(ledger.SemesterRegistered, call)
	ev.Digest = semester
	c.Emitter().Emit(ev)

	return nil
}

// Semester returns the courses registered under semester, in registration order.
func (c *Composite) Semester(semester types.Digest) ([]types.Identity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := c.db.Get(c.semesterKey(semester))
	if err != nil {
		return nil, fmt.Errorf("read semester:\n%w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchSemester, semester.Short())
	}

	return types.SplitIdentities(data), nil
}

// SemesterExists reports whether semester was registered.
func (c *Composite) SemesterExists(semester types.Digest) bool {
	_, err := c.Semester(semester)
	return err == nil
}
