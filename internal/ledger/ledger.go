// Package ledger implements the per-authority credential proof ledger:
// quorum signing, subject confirmation, revocation, optional per-subject
// sequencing and the aggregate proof cache.
package ledger

import (
	"fmt"
	"slices"
	"sync"

	"CredTree/internal/authority"
	"CredTree/internal/storage"
	"CredTree/internal/types"
)

// Call carries what the host supplies with every mutating operation.
type Call struct {
	Caller   types.Identity // Caller is the authenticated identity issuing the operation
	Sequence uint64         // Sequence is the host's ordering counter for this operation
}

// CredentialProof is the signing progress of one digest.
type CredentialProof struct {
	Digest           types.Digest     // Digest identifies the credential
	Subject          types.Identity   // Subject is the identity the credential is about
	Signers          []types.Identity // Signers are the authorities that acknowledged it, in order
	SubjectConfirmed bool             // SubjectConfirmed is set once the subject accepted it
	InsertedSequence uint64           // InsertedSequence is the counter value at creation
	PreviousDigest   types.Digest     // PreviousDigest links to the subject's prior credential (sequenced only)
	Witnesses        []types.Identity // Witnesses are the children whose proofs back a root credential
	EvidenceRoot     types.Digest     // EvidenceRoot is the fold a root credential was checked against
}

// Evidence ties a credential to the child aggregates it was issued over.
type Evidence struct {
	Witnesses []types.Identity // Witnesses are the children, in fold order
	Root      types.Digest     // Root is the fold of the witnesses' aggregates
}

// HasSigner reports whether id already signed the proof.
func (p *CredentialProof) HasSigner(id types.Identity) bool {
	return slices.Contains(p.Signers, id)
}

// clone returns a deep copy.
func (p *CredentialProof) clone() *CredentialProof {
	c := *p
	c.Signers = slices.Clone(p.Signers)
	c.Witnesses = slices.Clone(p.Witnesses)
	return &c
}

// RevocationRecord is the permanent trace of a revoked credential.
type RevocationRecord struct {
	Digest          types.Digest   // Digest is the revoked credential
	Issuer          types.Identity // Issuer is the authority that revoked it
	Subject         types.Identity // Subject is the credential's former subject
	Reason          types.Digest   // Reason is an opaque reason digest
	RevokedSequence uint64         // RevokedSequence is the counter value at revocation
}

// subjectIndex tracks sequencing state for one subject.
type subjectIndex struct {
	lastConfirmed types.Digest // lastConfirmed is the most recent confirmed digest
	outstanding   types.Digest // outstanding is the unconfirmed digest (sequenced only)
	nonce         uint64       // nonce counts credentials ever registered for the subject
}

// Config holds the optional behaviors of a ledger.
type Config struct {
	Sequenced   bool   // Sequenced enforces one outstanding credential per subject
	Roster      bool   // Roster restricts subjects to enrolled students
	PeriodStart uint64 // PeriodStart is the first sequence accepting registrations
	PeriodEnd   uint64 // PeriodEnd is the first sequence after the period; zero disables it
	CacheSize   int    // CacheSize bounds the decoded proof cache
}

// Option configures a Ledger.
type Option func(*options)

// options collects construction parameters.
type options struct {
	cfg     Config
	emitter Emitter
}

// WithSequencing enables the one-outstanding-credential-per-subject chain.
func WithSequencing() Option {
	return func(o *options) { o.cfg.Sequenced = true }
}

// WithRoster restricts registration to enrolled subjects.
func WithRoster() Option {
	return func(o *options) { o.cfg.Roster = true }
}

// WithPeriod bounds registration to sequences in [start, end).
func WithPeriod(start, end uint64) Option {
	return func(o *options) {
		o.cfg.PeriodStart = start
		o.cfg.PeriodEnd = end
	}
}

// WithConfig applies a full Config, as loaded from storage.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithCacheSize sets the decoded proof cache size.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cfg.CacheSize = n }
}

// WithEmitter sets the sink for domain events.
func WithEmitter(e Emitter) Option {
	return func(o *options) { o.emitter = e }
}

// Ledger is one authority's proof ledger.
// Mutations are serialized by mu; queries share the read lock so they never
// observe a partially applied change.
type Ledger struct {
	id          types.Identity
	authorities *authority.Set
	cfg         Config
	emitter     Emitter

	mu    sync.RWMutex
	store *store
}

// New creates a ledger for entity id backed by db.
func New(id types.Identity, set *authority.Set, db *storage.Storage, opts ...Option) (*Ledger, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("%w: zero entity id", ErrInvalidConfiguration)
	}

	if set == nil {
		return nil, fmt.Errorf("%w: missing authority set", ErrInvalidConfiguration)
	}

	o := options{emitter: nopEmitter{}}
	for _, opt := range opts {
		opt(&o)
	}

	if o.cfg.PeriodEnd != 0 && o.cfg.PeriodEnd <= o.cfg.PeriodStart {
		return nil, fmt.Errorf("%w: period end %d not after start %d", ErrInvalidConfiguration, o.cfg.PeriodEnd, o.cfg.PeriodStart)
	}

	st, err := newStore(db, id, o.cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	return &Ledger{
		id:          id,
		authorities: set,
		cfg:         o.cfg,
		emitter:     o.emitter,
		store:       st,
	}, nil
}

// ID returns the entity identity of the ledger.
func (l *Ledger) ID() types.Identity {
	return l.id
}

// Config returns the ledger's options.
func (l *Ledger) Config() Config {
	return l.cfg
}

// Authorities returns the ledger's authority set.
func (l *Ledger) Authorities() *authority.Set {
	return l.authorities
}

// IsAuthorized returns true if id may sign on this ledger.
func (l *Ledger) IsAuthorized(id types.Identity) bool {
	return l.authorities.IsAuthorized(id)
}

// QuorumSize returns the number of signatures required before confirmation.
func (l *Ledger) QuorumSize() int {
	return l.authorities.QuorumSize()
}

// SetEmitter replaces the event sink. Must be called before the ledger is shared.
func (l *Ledger) SetEmitter(e Emitter) {
	if e == nil {
		e = nopEmitter{}
	}
	l.emitter = e
}

// Emitter returns the current event sink.
func (l *Ledger) Emitter() Emitter {
	return l.emitter
}

// Event builds an event stamped with this ledger's id, for wrappers that
// publish through the same sink.
func (l *Ledger) Event(kind EventKind, call Call) Event {
	return l.event(kind, call)
}

// emit forwards events to the sink. Called without holding mu.
func (l *Ledger) emit(events []Event) {
	for _, ev := range events {
		l.emitter.Emit(ev)
	}
}

// event builds an event stamped with this ledger's id.
func (l *Ledger) event(kind EventKind, call Call) Event {
	return Event{Kind: kind, Entity: l.id, Actor: call.Caller, Sequence: call.Sequence}
}

// commit applies a batch and closes it.
func (l *Ledger) commit(b *storage.Batch) error {
	defer b.Close()

	if err := b.Commit(); err != nil {
		return fmt.Errorf("commit ledger batch:\n%w", err)
	}

	return nil
}
