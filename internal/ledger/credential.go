package ledger

import (
	"fmt"
	"slices"

	"CredTree/internal/types"
)

// RegisterCredential records the caller's signature on digest for subject.
// The first signature creates the proof; the signature that completes the
// quorum additionally emits CredentialSigned.
func (l *Ledger) RegisterCredential(call Call, subject types.Identity, digest types.Digest) error {
	l.mu.Lock()
	events, err := l.registerLocked(call, subject, digest, Evidence{})
	l.mu.Unlock()

	if err != nil {
		return err
	}

	l.emit(events)

	return nil
}

// RegisterChecked registers digest only if check accepts the subject's
// certified digests as they stand before the registration. check runs under
// the ledger's write lock.
func (l *Ledger) RegisterChecked(call Call, subject types.Identity, digest types.Digest, check func(own []types.Digest) error) error {
	return l.RegisterWithEvidence(call, subject, digest, Evidence{}, check)
}

// RegisterWithEvidence is RegisterChecked for credentials backed by other
// authorities. ev is recorded with the proof when the first signature
// creates it; later co-signatures keep the original evidence.
func (l *Ledger) RegisterWithEvidence(call Call, subject types.Identity, digest types.Digest, ev Evidence, check func(own []types.Digest) error) error {
	l.mu.Lock()

	own, err := l.ownDigestsLocked(subject)
	if err == nil && check != nil {
		err = check(own)
	}

	var events []Event
	if err == nil {
		events, err = l.registerLocked(call, subject, digest, ev)
	}

	l.mu.Unlock()

	if err != nil {
		return err
	}

	l.emit(events)

	return nil
}

// registerLocked validates and applies a signature. Caller must hold mu.
func (l *Ledger) registerLocked(call Call, subject types.Identity, digest types.Digest, evidence Evidence) ([]Event, error) {
	if err := l.authorities.Authorize(call.Caller); err != nil {
		return nil, err
	}

	if subject == call.Caller {
		return nil, ErrSelfAttestation
	}

	if subject.IsZero() {
		return nil, fmt.Errorf("%w: zero subject", ErrInvalidIdentity)
	}

	if digest.IsZero() {
		return nil, fmt.Errorf("%w: null digest", ErrInvalidDigest)
	}

	if !l.Running(call.Sequence) {
		return nil, fmt.Errorf("%w: sequence %d outside [%d, %d)", ErrPeriodClosed, call.Sequence, l.cfg.PeriodStart, l.cfg.PeriodEnd)
	}

	if err := l.checkRosterLocked(subject); err != nil {
		return nil, err
	}

	if _, revoked, err := l.store.revocation(digest); err != nil {
		return nil, err
	} else if revoked {
		return nil, fmt.Errorf("%w: %s", ErrCredentialRevoked, digest.Short())
	}

	proof, found, err := l.store.proof(digest)
	if err != nil {
		return nil, err
	}

	if found && proof.Subject != subject {
		return nil, fmt.Errorf("%w: %s", ErrDigestSubjectMismatch, digest.Short())
	}

	if found && proof.HasSigner(call.Caller) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadySigned, digest.Short())
	}

	batch := l.store.db.NewBatch()

	if !found {
		idx, err := l.store.index(subject)
		if err != nil {
			batch.Close()
			return nil, err
		}

		if l.cfg.Sequenced && !idx.outstanding.IsZero() {
			batch.Close()
			return nil, fmt.Errorf("%w: %s pending", ErrPreviousNotConfirmed, idx.outstanding.Short())
		}

		proof = &CredentialProof{
			Digest:           digest,
			Subject:          subject,
			InsertedSequence: call.Sequence,
			Witnesses:        slices.Clone(evidence.Witnesses),
			EvidenceRoot:     evidence.Root,
		}

		if l.cfg.Sequenced {
			proof.PreviousDigest = idx.lastConfirmed
			idx.outstanding = digest
		}

		idx.nonce++

		l.store.putIndex(batch, subject, idx)
		l.store.addIssued(batch, proof)
	}

	proof.Signers = append(proof.Signers, call.Caller)
	l.store.putProof(batch, proof)

	if err := l.commit(batch); err != nil {
		return nil, err
	}

	l.store.cacheProof(proof)

	ev := l.event(CredentialIssued, call)
	ev.Digest = digest
	ev.Subject = subject
	events := []Event{ev}

	if len(proof.Signers) == l.authorities.QuorumSize() {
		signed := ev
		signed.Kind = CredentialSigned
		events = append(events, signed)
	}

	return events, nil
}

// ConfirmCredential marks a quorum-signed credential as accepted by its subject.
func (l *Ledger) ConfirmCredential(call Call, digest types.Digest) error {
	l.mu.Lock()
	events, err := l.confirmLocked(call, digest)
	l.mu.Unlock()

	if err != nil {
		return err
	}

	l.emit(events)

	return nil
}

// confirmLocked validates and applies a subject confirmation. Caller must hold mu.
func (l *Ledger) confirmLocked(call Call, digest types.Digest) ([]Event, error) {
	proof, found, err := l.store.proof(digest)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchCredential, digest.Short())
	}

	if call.Caller != proof.Subject {
		return nil, ErrSubjectMismatch
	}

	if len(proof.Signers) < l.authorities.QuorumSize() {
		return nil, fmt.Errorf("%w: %d of %d signatures", ErrQuorumNotReached, len(proof.Signers), l.authorities.QuorumSize())
	}

	if proof.SubjectConfirmed {
		return nil, ErrAlreadyConfirmed
	}

	idx, err := l.store.index(proof.Subject)
	if err != nil {
		return nil, err
	}

	proof.SubjectConfirmed = true
	idx.lastConfirmed = digest
	if idx.outstanding == digest {
		idx.outstanding = types.NullDigest
	}

	batch := l.store.db.NewBatch()
	l.store.putProof(batch, proof)
	l.store.putIndex(batch, proof.Subject, idx)

	if err := l.commit(batch); err != nil {
		return nil, err
	}

	l.store.cacheProof(proof)

	ev := l.event(CredentialSigned, call)
	ev.Digest = digest
	ev.Subject = proof.Subject

	return []Event{ev}, nil
}

// RevokeCredential deletes the proof of digest and records why.
func (l *Ledger) RevokeCredential(call Call, digest, reason types.Digest) error {
	l.mu.Lock()
	events, err := l.revokeLocked(call, digest, reason)
	l.mu.Unlock()

	if err != nil {
		return err
	}

	l.emit(events)

	return nil
}

// revokeLocked validates and applies a revocation. Caller must hold mu.
func (l *Ledger) revokeLocked(call Call, digest, reason types.Digest) ([]Event, error) {
	if err := l.authorities.Authorize(call.Caller); err != nil {
		return nil, err
	}

	proof, found, err := l.store.proof(digest)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchCredential, digest.Short())
	}

	idx, err := l.store.index(proof.Subject)
	if err != nil {
		return nil, err
	}

	// Keep the sequencing index pointing at live credentials only.
	if idx.outstanding == digest {
		idx.outstanding = types.NullDigest
	}
	if idx.lastConfirmed == digest {
		idx.lastConfirmed, err = l.lastLiveConfirmedLocked(proof.Subject, digest)
		if err != nil {
			return nil, err
		}
	}

	rec := &RevocationRecord{
		Digest:          digest,
		Issuer:          call.Caller,
		Subject:         proof.Subject,
		Reason:          reason,
		RevokedSequence: call.Sequence,
	}

	batch := l.store.db.NewBatch()
	l.store.deleteProof(batch, digest)
	l.store.removeIssued(batch, proof)
	l.store.putRevocation(batch, rec)
	l.store.putIndex(batch, proof.Subject, idx)

	if err := l.commit(batch); err != nil {
		return nil, err
	}

	l.store.evictProof(digest)

	ev := l.event(CredentialRevoked, call)
	ev.Digest = digest
	ev.Subject = proof.Subject
	ev.Reason = reason

	return []Event{ev}, nil
}

// lastLiveConfirmedLocked returns the newest confirmed digest of subject
// other than skip, or the null digest. Caller must hold mu.
func (l *Ledger) lastLiveConfirmedLocked(subject types.Identity, skip types.Digest) (types.Digest, error) {
	digests, err := l.store.issued(subject)
	if err != nil {
		return types.Digest{}, err
	}

	for i := len(digests) - 1; i >= 0; i-- {
		if digests[i] != skip && l.certifiedLocked(digests[i]) {
			return digests[i], nil
		}
	}

	return types.NullDigest, nil
}

// Certified returns true if digest reached quorum and its subject confirmed it.
func (l *Ledger) Certified(digest types.Digest) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.certifiedLocked(digest)
}

// certifiedLocked is Certified for callers holding mu.
func (l *Ledger) certifiedLocked(digest types.Digest) bool {
	proof, found, err := l.store.proof(digest)
	if err != nil || !found {
		return false
	}
	return proof.SubjectConfirmed
}

// CheckCredentials returns true if every digest is certified.
func (l *Ledger) CheckCredentials(digests []types.Digest) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, d := range digests {
		if !l.certifiedLocked(d) {
			return false
		}
	}

	return true
}

// Proof returns a copy of the credential proof of digest.
func (l *Ledger) Proof(digest types.Digest) (*CredentialProof, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	proof, found, err := l.store.proof(digest)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchCredential, digest.Short())
	}

	return proof, nil
}

// Evidence returns the witnesses and evidence root recorded with digest.
// Both are empty for credentials registered without evidence.
func (l *Ledger) Evidence(digest types.Digest) (Evidence, error) {
	proof, err := l.Proof(digest)
	if err != nil {
		return Evidence{}, err
	}

	return Evidence{Witnesses: proof.Witnesses, Root: proof.EvidenceRoot}, nil
}

// IsSigned reports whether id signed digest.
func (l *Ledger) IsSigned(digest types.Digest, id types.Identity) bool {
	proof, err := l.Proof(digest)
	if err != nil {
		return false
	}
	return proof.HasSigner(id)
}

// IsQuorumSigned reports whether digest gathered a quorum of signatures.
func (l *Ledger) IsQuorumSigned(digest types.Digest) bool {
	proof, err := l.Proof(digest)
	if err != nil {
		return false
	}
	return len(proof.Signers) >= l.authorities.QuorumSize()
}

// Digests returns the subject's live (non-revoked) digests in insertion order.
func (l *Ledger) Digests(subject types.Identity) ([]types.Digest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.store.issued(subject)
}

// Nonce returns how many credentials were ever registered for subject.
func (l *Ledger) Nonce(subject types.Identity) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, err := l.store.index(subject)
	if err != nil {
		return 0, err
	}

	return idx.nonce, nil
}

// LastConfirmed returns the subject's most recent confirmed digest, or the null digest.
func (l *Ledger) LastConfirmed(subject types.Identity) (types.Digest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, err := l.store.index(subject)
	if err != nil {
		return types.Digest{}, err
	}

	return idx.lastConfirmed, nil
}

// Revocation returns the revocation record of digest.
func (l *Ledger) Revocation(digest types.Digest) (*RevocationRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, found, err := l.store.revocation(digest)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, fmt.Errorf("%w: %s not revoked", ErrNoSuchCredential, digest.Short())
	}

	return rec, nil
}

// IsRevoked reports whether digest was revoked.
func (l *Ledger) IsRevoked(digest types.Digest) bool {
	_, err := l.Revocation(digest)
	return err == nil
}

// Revoked returns the subject's revoked digests in revocation order.
func (l *Ledger) Revoked(subject types.Identity) ([]types.Digest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.store.revoked(subject)
}

// VerifyIssuedCredentials returns true if every live credential of subject is certified.
// Fails with ErrNoCredential if the subject has none.
func (l *Ledger) VerifyIssuedCredentials(subject types.Identity) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	digests, err := l.store.issued(subject)
	if err != nil {
		return false, err
	}

	if len(digests) == 0 {
		return false, ErrNoCredential
	}

	for _, d := range digests {
		if !l.certifiedLocked(d) {
			return false, nil
		}
	}

	return true, nil
}
