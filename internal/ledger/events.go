package ledger

import (
	"sync"

	"CredTree/internal/types"
)

// EventKind identifies a domain event.
type EventKind uint8

const (
	// CredentialIssued is emitted for every accepted signature.
	CredentialIssued EventKind = iota + 1

	// CredentialSigned is emitted when the quorum completes and when the subject confirms.
	CredentialSigned

	// CredentialRevoked is emitted when a credential is revoked.
	CredentialRevoked

	// ProofAggregated is emitted when an aggregate proof is first stored.
	ProofAggregated

	// StudentEnrolled is emitted when a student joins the roster.
	StudentEnrolled

	// StudentUnenrolled is emitted when a student leaves the roster.
	StudentUnenrolled

	// ChildAdded is emitted when a composite registers a child authority.
	ChildAdded

	// SemesterRegistered is emitted when a composite groups children under a semester.
	SemesterRegistered
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case CredentialIssued:
		return "credential_issued"
	case CredentialSigned:
		return "credential_signed"
	case CredentialRevoked:
		return "credential_revoked"
	case ProofAggregated:
		return "proof_aggregated"
	case StudentEnrolled:
		return "student_enrolled"
	case StudentUnenrolled:
		return "student_unenrolled"
	case ChildAdded:
		return "child_added"
	case SemesterRegistered:
		return "semester_registered"
	default:
		return "unknown"
	}
}

// Event is an observability record. The ledger never reads events back.
type Event struct {
	Kind     EventKind      // Kind is the event type
	Entity   types.Identity // Entity is the ledger that produced the event
	Digest   types.Digest   // Digest is the credential or aggregate involved
	Subject  types.Identity // Subject is the credential subject or student
	Actor    types.Identity // Actor is the caller that triggered the event
	Reason   types.Digest   // Reason is set for revocations
	Child    types.Identity // Child is set for ChildAdded
	Sequence uint64         // Sequence is the host counter of the operation
}

// Emitter receives domain events after the state change committed.
type Emitter interface {
	Emit(ev Event)
}

// nopEmitter discards events.
type nopEmitter struct{}

func (nopEmitter) Emit(Event) {}

// Recorder is an Emitter that keeps every event in memory.
// It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends an event.
func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)

	return out
}

// Count returns the number of recorded events of the given kind.
func (r *Recorder) Count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}

	return n
}

// Fanout forwards events to several emitters in order.
type Fanout []Emitter

// Emit forwards ev to every emitter.
func (f Fanout) Emit(ev Event) {
	for _, e := range f {
		e.Emit(ev)
	}
}
