package ledger

import (
	"errors"
	"testing"

	"CredTree/internal/authority"
	"CredTree/internal/storage"
	"CredTree/internal/types"
)

var (
	entityID = ident(0xE0)
	authA    = ident(0xA1)
	authB    = ident(0xB1)
	authC    = ident(0xC1)
	student  = ident(0x51)
	other    = ident(0x52)
)

// ident builds a recognizable identity filled with b.
func ident(b byte) types.Identity {
	var id types.Identity
	for i := range id {
		id[i] = b
	}
	return id
}

// dig builds a recognizable digest filled with b.
func dig(b byte) types.Digest {
	var d types.Digest
	for i := range d {
		d[i] = b
	}
	return d
}

// harness bundles a ledger with its event recorder and a sequence counter.
type harness struct {
	l   *Ledger
	rec *Recorder
	db  *storage.Storage
	seq uint64
}

// call returns a Call for caller with the next sequence value.
func (h *harness) call(caller types.Identity) Call {
	h.seq++
	return Call{Caller: caller, Sequence: h.seq}
}

// newHarness creates a ledger over an in-memory store.
func newHarness(t *testing.T, ids []types.Identity, quorum int, opts ...Option) *harness {
	t.Helper()

	db, err := storage.NewInMemory()
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return newHarnessOn(t, db, ids, quorum, opts...)
}

// newHarnessOn creates a ledger over an existing store.
func newHarnessOn(t *testing.T, db *storage.Storage, ids []types.Identity, quorum int, opts ...Option) *harness {
	t.Helper()

	set, err := authority.New(ids, quorum)
	if err != nil {
		t.Fatalf("failed to create authority set: %v", err)
	}

	rec := &Recorder{}
	opts = append(opts, WithEmitter(rec))

	l, err := New(entityID, set, db, opts...)
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}

	return &harness{l: l, rec: rec, db: db}
}

// certify registers d for subject by every authority and confirms it.
func (h *harness) certify(t *testing.T, subject types.Identity, d types.Digest) {
	t.Helper()

	for _, a := range h.l.Authorities().Authorities()[:h.l.QuorumSize()] {
		if err := h.l.RegisterCredential(h.call(a), subject, d); err != nil {
			t.Fatalf("register %s by %s: %v", d.Short(), a.Short(), err)
		}
	}

	if err := h.l.ConfirmCredential(h.call(subject), d); err != nil {
		t.Fatalf("confirm %s: %v", d.Short(), err)
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	db, err := storage.NewInMemory()
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer db.Close()

	set, _ := authority.New([]types.Identity{authA}, 1)

	if _, err := New(types.Identity{}, set, db); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("zero entity: expected ErrInvalidConfiguration, got %v", err)
	}

	if _, err := New(entityID, nil, db); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("nil set: expected ErrInvalidConfiguration, got %v", err)
	}

	if _, err := New(entityID, set, db, WithPeriod(10, 10)); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("empty period: expected ErrInvalidConfiguration, got %v", err)
	}
}

// TestQuorumScenario verifies the two-authority quorum flow end to end.
func TestQuorumScenario(t *testing.T) {
	h := newHarness(t, []types.Identity{authA, authB}, 2)
	d1 := dig(1)

	if err := h.l.RegisterCredential(h.call(authA), student, d1); err != nil {
		t.Fatalf("register by A: %v", err)
	}

	if err := h.l.ConfirmCredential(h.call(student), d1); !errors.Is(err, ErrQuorumNotReached) {
		t.Fatalf("expected ErrQuorumNotReached, got %v", err)
	}

	if err := h.l.RegisterCredential(h.call(authB), student, d1); err != nil {
		t.Fatalf("register by B: %v", err)
	}

	if h.l.Certified(d1) {
		t.Fatal("credential certified before subject confirmation")
	}

	if err := h.l.ConfirmCredential(h.call(student), d1); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if !h.l.Certified(d1) {
		t.Fatal("expected credential to be certified")
	}

	if err := h.l.ConfirmCredential(h.call(student), d1); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatalf("expected ErrAlreadyConfirmed, got %v", err)
	}
}

func TestRegister_Errors(t *testing.T) {
	h := newHarness(t, []types.Identity{authA, authB}, 2)

	if err := h.l.RegisterCredential(h.call(other), student, dig(1)); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	if err := h.l.RegisterCredential(h.call(authA), authA, dig(1)); !errors.Is(err, ErrSelfAttestation) {
		t.Errorf("expected ErrSelfAttestation, got %v", err)
	}

	if err := h.l.RegisterCredential(h.call(authA), types.Identity{}, dig(1)); !errors.Is(err, ErrInvalidIdentity) {
		t.Errorf("expected ErrInvalidIdentity, got %v", err)
	}

	if err := h.l.RegisterCredential(h.call(authA), student, dig(1)); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := h.l.RegisterCredential(h.call(authB), other, dig(1)); !errors.Is(err, ErrDigestSubjectMismatch) {
		t.Errorf("expected ErrDigestSubjectMismatch, got %v", err)
	}

	if err := h.l.RegisterCredential(h.call(authA), student, dig(1)); !errors.Is(err, ErrAlreadySigned) {
		t.Errorf("expected ErrAlreadySigned, got %v", err)
	}

	proof, err := h.l.Proof(dig(1))
	if err != nil {
		t.Fatalf("Proof: %v", err)
	}

	if len(proof.Signers) != 1 || proof.Signers[0] != authA {
		t.Errorf("failed registrations must not change signers, got %v", proof.Signers)
	}
}

func TestConfirm_Errors(t *testing.T) {
	h := newHarness(t, []types.Identity{authA}, 1)

	if err := h.l.ConfirmCredential(h.call(student), dig(9)); !errors.Is(err, ErrNoSuchCredential) {
		t.Errorf("expected ErrNoSuchCredential, got %v", err)
	}

	if err := h.l.RegisterCredential(h.call(authA), student, dig(1)); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := h.l.ConfirmCredential(h.call(other), dig(1)); !errors.Is(err, ErrSubjectMismatch) {
		t.Errorf("expected ErrSubjectMismatch, got %v", err)
	}
}

// TestRegister_ProofFields verifies the stored record after signing.
func TestRegister_ProofFields(t *testing.T) {
	h := newHarness(t, []types.Identity{authA, authB, authC}, 2)
	d := dig(7)

	first := h.call(authA)
	if err := h.l.RegisterCredential(first, student, d); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := h.l.RegisterCredential(h.call(authC), student, d); err != nil {
		t.Fatalf("register: %v", err)
	}

	proof, err := h.l.Proof(d)
	if err != nil {
		t.Fatalf("Proof: %v", err)
	}

	if proof.Subject != student {
		t.Errorf("expected subject %s, got %s", student.Short(), proof.Subject.Short())
	}
	if proof.InsertedSequence != first.Sequence {
		t.Errorf("expected inserted sequence %d, got %d", first.Sequence, proof.InsertedSequence)
	}
	if len(proof.Signers) != 2 || proof.Signers[0] != authA || proof.Signers[1] != authC {
		t.Errorf("unexpected signers %v", proof.Signers)
	}
	if !h.l.IsSigned(d, authC) || h.l.IsSigned(d, authB) {
		t.Error("IsSigned disagrees with signers")
	}
	if !h.l.IsQuorumSigned(d) {
		t.Error("expected quorum signed")
	}

	// Returned proofs are copies.
	proof.Signers[0] = other
	again, _ := h.l.Proof(d)
	if again.Signers[0] != authA {
		t.Error("Proof returned shared state")
	}
}

// TestRegister_ExtraSignatureAfterQuorum verifies late authorities may still sign.
func TestRegister_ExtraSignatureAfterQuorum(t *testing.T) {
	h := newHarness(t, []types.Identity{authA, authB, authC}, 2)
	h.certify(t, student, dig(1))

	if err := h.l.RegisterCredential(h.call(authC), student, dig(1)); err != nil {
		t.Fatalf("late signature: %v", err)
	}

	if !h.l.Certified(dig(1)) {
		t.Error("late signature must keep the credential certified")
	}
}

func TestEvents(t *testing.T) {
	h := newHarness(t, []types.Identity{authA, authB}, 2)
	d := dig(3)

	a := h.call(authA)
	if err := h.l.RegisterCredential(a, student, d); err != nil {
		t.Fatalf("register: %v", err)
	}

	if h.rec.Count(CredentialIssued) != 1 || h.rec.Count(CredentialSigned) != 0 {
		t.Fatalf("unexpected events after first signature: %+v", h.rec.Events())
	}

	ev := h.rec.Events()[0]
	if ev.Digest != d || ev.Subject != student || ev.Actor != authA || ev.Sequence != a.Sequence || ev.Entity != entityID {
		t.Errorf("unexpected issued event %+v", ev)
	}

	if err := h.l.RegisterCredential(h.call(authB), student, d); err != nil {
		t.Fatalf("register: %v", err)
	}

	if h.rec.Count(CredentialIssued) != 2 || h.rec.Count(CredentialSigned) != 1 {
		t.Fatalf("expected quorum completion event, got %+v", h.rec.Events())
	}

	if err := h.l.ConfirmCredential(h.call(student), d); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if h.rec.Count(CredentialSigned) != 2 {
		t.Errorf("expected confirmation event, got %d signed events", h.rec.Count(CredentialSigned))
	}

	// Failed operations emit nothing.
	before := len(h.rec.Events())
	_ = h.l.ConfirmCredential(h.call(student), d)
	if len(h.rec.Events()) != before {
		t.Error("failed confirmation emitted an event")
	}
}

func TestCheckCredentials(t *testing.T) {
	h := newHarness(t, []types.Identity{authA}, 1)
	h.certify(t, student, dig(1))
	h.certify(t, student, dig(2))

	if err := h.l.RegisterCredential(h.call(authA), student, dig(3)); err != nil {
		t.Fatalf("register: %v", err)
	}

	if !h.l.CheckCredentials([]types.Digest{dig(1), dig(2)}) {
		t.Error("expected certified list to pass")
	}

	if h.l.CheckCredentials([]types.Digest{dig(1), dig(3)}) {
		t.Error("unconfirmed digest must fail the check")
	}

	if h.l.CheckCredentials([]types.Digest{dig(1), dig(4)}) {
		t.Error("unknown digest must fail the check")
	}

	if !h.l.CheckCredentials(nil) {
		t.Error("empty list is vacuously certified")
	}
}

func TestRevoke(t *testing.T) {
	h := newHarness(t, []types.Identity{authA, authB}, 2)
	d := dig(1)
	reason := dig(0xEE)
	h.certify(t, student, d)

	if err := h.l.RevokeCredential(h.call(other), d, reason); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	c := h.call(authB)
	if err := h.l.RevokeCredential(c, d, reason); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	if h.l.Certified(d) {
		t.Error("revoked credential still certified")
	}

	if _, err := h.l.Proof(d); !errors.Is(err, ErrNoSuchCredential) {
		t.Errorf("expected proof to be deleted, got %v", err)
	}

	if err := h.l.RevokeCredential(h.call(authA), d, reason); !errors.Is(err, ErrNoSuchCredential) {
		t.Errorf("second revoke: expected ErrNoSuchCredential, got %v", err)
	}

	if err := h.l.RegisterCredential(h.call(authA), student, d); !errors.Is(err, ErrCredentialRevoked) {
		t.Errorf("re-register: expected ErrCredentialRevoked, got %v", err)
	}

	rec, err := h.l.Revocation(d)
	if err != nil {
		t.Fatalf("Revocation: %v", err)
	}

	if rec.Issuer != authB || rec.Reason != reason || rec.Subject != student || rec.RevokedSequence != c.Sequence {
		t.Errorf("unexpected revocation record %+v", rec)
	}

	if !h.l.IsRevoked(d) || h.l.IsRevoked(dig(2)) {
		t.Error("IsRevoked disagrees with records")
	}

	revoked, _ := h.l.Revoked(student)
	if len(revoked) != 1 || revoked[0] != d {
		t.Errorf("expected revoked list [%s], got %v", d.Short(), revoked)
	}

	digests, _ := h.l.Digests(student)
	if len(digests) != 0 {
		t.Errorf("revoked digest still listed: %v", digests)
	}

	if h.rec.Count(CredentialRevoked) != 1 {
		t.Errorf("expected one revocation event, got %d", h.rec.Count(CredentialRevoked))
	}
}

func TestRevoke_PartiallySigned(t *testing.T) {
	h := newHarness(t, []types.Identity{authA, authB}, 2)

	if err := h.l.RegisterCredential(h.call(authA), student, dig(1)); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := h.l.RevokeCredential(h.call(authA), dig(1), dig(0)); err != nil {
		t.Fatalf("revoke partially signed: %v", err)
	}

	if err := h.l.RevokeCredential(h.call(authA), dig(2), dig(0)); !errors.Is(err, ErrNoSuchCredential) {
		t.Errorf("revoke absent: expected ErrNoSuchCredential, got %v", err)
	}
}

func TestSubjectQueries(t *testing.T) {
	h := newHarness(t, []types.Identity{authA}, 1)

	for _, b := range []byte{5, 3, 9} {
		if err := h.l.RegisterCredential(h.call(authA), student, dig(b)); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	if err := h.l.RegisterCredential(h.call(authA), other, dig(4)); err != nil {
		t.Fatalf("register: %v", err)
	}

	digests, err := h.l.Digests(student)
	if err != nil {
		t.Fatalf("Digests: %v", err)
	}

	want := []types.Digest{dig(5), dig(3), dig(9)}
	if len(digests) != len(want) {
		t.Fatalf("expected %d digests, got %d", len(want), len(digests))
	}
	for i := range want {
		if digests[i] != want[i] {
			t.Errorf("digest %d: expected %s, got %s", i, want[i].Short(), digests[i].Short())
		}
	}

	nonce, _ := h.l.Nonce(student)
	if nonce != 3 {
		t.Errorf("expected nonce 3, got %d", nonce)
	}

	if err := h.l.RevokeCredential(h.call(authA), dig(3), dig(0)); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	nonce, _ = h.l.Nonce(student)
	if nonce != 3 {
		t.Errorf("revocation must not lower the nonce, got %d", nonce)
	}
}

func TestVerifyIssuedCredentials(t *testing.T) {
	h := newHarness(t, []types.Identity{authA}, 1)

	if _, err := h.l.VerifyIssuedCredentials(student); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}

	h.certify(t, student, dig(1))

	ok, err := h.l.VerifyIssuedCredentials(student)
	if err != nil || !ok {
		t.Fatalf("expected all certified, got %v %v", ok, err)
	}

	if err := h.l.RegisterCredential(h.call(authA), student, dig(2)); err != nil {
		t.Fatalf("register: %v", err)
	}

	ok, err = h.l.VerifyIssuedCredentials(student)
	if err != nil || ok {
		t.Errorf("expected pending credential to fail verification, got %v %v", ok, err)
	}
}

// TestPersistence verifies a second ledger on the same store sees the state.
func TestPersistence(t *testing.T) {
	h := newHarness(t, []types.Identity{authA}, 1, WithSequencing())
	h.certify(t, student, dig(1))

	if _, err := h.l.AggregateCredentials(h.call(authA), student, nil); err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	reopened := newHarnessOn(t, h.db, []types.Identity{authA}, 1, WithSequencing())

	if !reopened.l.Certified(dig(1)) {
		t.Error("certification lost across instances")
	}

	last, _ := reopened.l.LastConfirmed(student)
	if last != dig(1) {
		t.Errorf("expected last confirmed %s, got %s", dig(1).Short(), last.Short())
	}

	if _, err := reopened.l.GetProof(student); err != nil {
		t.Errorf("aggregate lost across instances: %v", err)
	}
}
