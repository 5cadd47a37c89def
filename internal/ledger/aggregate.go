package ledger

import (
	"fmt"

	"github.com/zeebo/blake3"

	"CredTree/internal/types"
)

// Aggregate hashes the concatenation of digests with BLAKE3.
// A single digest is hashed too, so Aggregate([]Digest{d}) != d.
func Aggregate(digests []types.Digest) types.Digest {
	h := blake3.New()
	for _, d := range digests {
		h.Write(d[:])
	}

	var out types.Digest
	copy(out[:], h.Sum(nil))

	return out
}

// AggregateCredentials folds the subject's certified digests into one proof.
// A nil list aggregates every live digest of the subject in insertion order.
// Once stored, the aggregate is returned as-is without re-validating digests.
func (l *Ledger) AggregateCredentials(call Call, subject types.Identity, digests []types.Digest) (types.Digest, error) {
	return l.AggregateFolded(call, subject, nil, digests)
}

// AggregateFolded aggregates prefix ++ digests. The prefix is trusted
// material supplied by a composite (its children's aggregates); only the
// ledger's own digests are checked for certification.
func (l *Ledger) AggregateFolded(call Call, subject types.Identity, prefix, digests []types.Digest) (types.Digest, error) {
	l.mu.Lock()
	agg, events, err := l.aggregateLocked(call, subject, prefix, digests)
	l.mu.Unlock()

	if err != nil {
		return types.Digest{}, err
	}

	l.emit(events)

	return agg, nil
}

// aggregateLocked computes and stores the aggregate. Caller must hold mu.
func (l *Ledger) aggregateLocked(call Call, subject types.Identity, prefix, digests []types.Digest) (types.Digest, []Event, error) {
	cached, found, err := l.store.aggregate(subject)
	if err != nil {
		return types.Digest{}, nil, err
	}
	if found {
		return cached, nil, nil
	}

	if l.cfg.PeriodEnd != 0 && !l.Ended(call.Sequence) {
		return types.Digest{}, nil, fmt.Errorf("%w: ends at %d", ErrPeriodOpen, l.cfg.PeriodEnd)
	}

	if digests == nil {
		digests, err = l.store.issued(subject)
		if err != nil {
			return types.Digest{}, nil, err
		}
	}

	if len(prefix)+len(digests) == 0 {
		return types.Digest{}, nil, ErrNoCredential
	}

	for _, d := range digests {
		proof, found, err := l.store.proof(d)
		if err != nil {
			return types.Digest{}, nil, err
		}
		if found && proof.Subject != subject {
			return types.Digest{}, nil, fmt.Errorf("%w: %s", ErrDigestSubjectMismatch, d.Short())
		}
		if !found || !proof.SubjectConfirmed {
			return types.Digest{}, nil, fmt.Errorf("%w: %s", ErrUnsignedCredentials, d.Short())
		}
	}

	list := make([]types.Digest, 0, len(prefix)+len(digests))
	list = append(list, prefix...)
	list = append(list, digests...)

	agg := Aggregate(list)

	batch := l.store.db.NewBatch()
	l.store.putAggregate(batch, subject, agg)

	if err := l.commit(batch); err != nil {
		return types.Digest{}, nil, err
	}

	ev := l.event(ProofAggregated, call)
	ev.Digest = agg
	ev.Subject = subject

	return agg, []Event{ev}, nil
}

// GetProof returns the subject's aggregate proof.
func (l *Ledger) GetProof(subject types.Identity) (types.Digest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	agg, found, err := l.store.aggregate(subject)
	if err != nil {
		return types.Digest{}, err
	}

	if !found {
		return types.Digest{}, fmt.Errorf("%w: %s", ErrNoAggregate, subject.Short())
	}

	return agg, nil
}

// VerifyCredential reports whether claimed equals the subject's aggregate.
// A missing aggregate is an error, not a mismatch.
func (l *Ledger) VerifyCredential(subject types.Identity, claimed types.Digest) (bool, error) {
	agg, err := l.GetProof(subject)
	if err != nil {
		return false, err
	}

	return agg == claimed, nil
}

// OwnDigests returns the subject's certified digests in insertion order.
func (l *Ledger) OwnDigests(subject types.Identity) ([]types.Digest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.ownDigestsLocked(subject)
}

func (l *Ledger) ownDigestsLocked(subject types.Identity) ([]types.Digest, error) {
	digests, err := l.store.issued(subject)
	if err != nil {
		return nil, err
	}

	out := digests[:0]
	for _, d := range digests {
		if l.certifiedLocked(d) {
			out = append(out, d)
		}
	}

	return out, nil
}
