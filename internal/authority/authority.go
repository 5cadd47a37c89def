// Package authority holds the fixed set of identities allowed to sign
// credentials on behalf of an entity, together with its quorum.
package authority

import (
	"errors"
	"fmt"

	"CredTree/internal/types"
)

var (
	// ErrInvalidConfiguration is returned when the set or quorum is malformed.
	ErrInvalidConfiguration = errors.New("invalid authority configuration")

	// ErrUnauthorized is returned when a caller is not part of the set.
	ErrUnauthorized = errors.New("caller is not an authority")
)

// Set is an immutable ordered set of authorized identities with a quorum.
// It is safe for concurrent access since it never changes after New.
type Set struct {
	members []types.Identity       // members in insertion order
	index   map[types.Identity]int // index maps identity to position in members
	quorum  int                    // quorum is the number of signatures required
}

// New creates an authority set.
// Fails with ErrInvalidConfiguration if ids is empty, quorum is out of
// (0, len(ids)], or an identity is zero or repeated.
func New(ids []types.Identity, quorum int) (*Set, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: empty authority list", ErrInvalidConfiguration)
	}

	if quorum <= 0 || quorum > len(ids) {
		return nil, fmt.Errorf("%w: quorum %d out of range 1..%d", ErrInvalidConfiguration, quorum, len(ids))
	}

	s := &Set{
		members: make([]types.Identity, 0, len(ids)),
		index:   make(map[types.Identity]int, len(ids)),
		quorum:  quorum,
	}

	for _, id := range ids {
		if id.IsZero() {
			return nil, fmt.Errorf("%w: zero identity", ErrInvalidConfiguration)
		}

		if _, dup := s.index[id]; dup {
			return nil, fmt.Errorf("%w: duplicate identity %s", ErrInvalidConfiguration, id.Short())
		}

		s.index[id] = len(s.members)
		s.members = append(s.members, id)
	}

	return s, nil
}

// IsAuthorized returns true if id is in the set.
func (s *Set) IsAuthorized(id types.Identity) bool {
	_, ok := s.index[id]
	return ok
}

// Authorize returns ErrUnauthorized if id is not in the set.
func (s *Set) Authorize(id types.Identity) error {
	if !s.IsAuthorized(id) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, id.Short())
	}
	return nil
}

// QuorumSize returns the configured quorum.
func (s *Set) QuorumSize() int {
	return s.quorum
}

// Len returns the number of authorities.
func (s *Set) Len() int {
	return len(s.members)
}

// Authorities returns a copy of the identities in insertion order.
func (s *Set) Authorities() []types.Identity {
	out := make([]types.Identity, len(s.members))
	copy(out, s.members)
	return out
}

// Index returns the position of id in the set, or -1 if not found.
func (s *Set) Index(id types.Identity) int {
	if i, ok := s.index[id]; ok {
		return i
	}
	return -1
}
