package ledger

import (
	"errors"
	"testing"

	"CredTree/internal/types"
)

// TestSequenced_Chain verifies one outstanding credential per subject.
func TestSequenced_Chain(t *testing.T) {
	h := newHarness(t, []types.Identity{authA, authB}, 2, WithSequencing())

	if err := h.l.RegisterCredential(h.call(authA), student, dig(1)); err != nil {
		t.Fatalf("register d1: %v", err)
	}

	if err := h.l.RegisterCredential(h.call(authA), student, dig(2)); !errors.Is(err, ErrPreviousNotConfirmed) {
		t.Fatalf("expected ErrPreviousNotConfirmed, got %v", err)
	}

	// The outstanding digest itself may still gather signatures.
	if err := h.l.RegisterCredential(h.call(authB), student, dig(1)); err != nil {
		t.Fatalf("second signature on d1: %v", err)
	}

	// Other subjects are independent.
	if err := h.l.RegisterCredential(h.call(authA), other, dig(9)); err != nil {
		t.Fatalf("register for other subject: %v", err)
	}

	if err := h.l.ConfirmCredential(h.call(student), dig(1)); err != nil {
		t.Fatalf("confirm d1: %v", err)
	}

	if err := h.l.RegisterCredential(h.call(authA), student, dig(2)); err != nil {
		t.Fatalf("register d2 after confirmation: %v", err)
	}

	p1, _ := h.l.Proof(dig(1))
	if !p1.PreviousDigest.IsZero() {
		t.Errorf("first credential must link to the null digest, got %s", p1.PreviousDigest.Short())
	}

	p2, _ := h.l.Proof(dig(2))
	if p2.PreviousDigest != dig(1) {
		t.Errorf("expected d2 to link to d1, got %s", p2.PreviousDigest.Short())
	}
}

// TestSequenced_QuorumPending verifies the chain blocks until the subject confirms,
// not merely until quorum.
func TestSequenced_QuorumPending(t *testing.T) {
	h := newHarness(t, []types.Identity{authA}, 1, WithSequencing())

	if err := h.l.RegisterCredential(h.call(authA), student, dig(1)); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := h.l.RegisterCredential(h.call(authA), student, dig(2)); !errors.Is(err, ErrPreviousNotConfirmed) {
		t.Fatalf("expected ErrPreviousNotConfirmed, got %v", err)
	}
}

func TestSequenced_RevokeOutstanding(t *testing.T) {
	h := newHarness(t, []types.Identity{authA}, 1, WithSequencing())
	h.certify(t, student, dig(1))

	if err := h.l.RegisterCredential(h.call(authA), student, dig(2)); err != nil {
		t.Fatalf("register d2: %v", err)
	}

	if err := h.l.RevokeCredential(h.call(authA), dig(2), dig(0)); err != nil {
		t.Fatalf("revoke d2: %v", err)
	}

	if err := h.l.RegisterCredential(h.call(authA), student, dig(3)); err != nil {
		t.Fatalf("revoking the outstanding credential must unblock the chain: %v", err)
	}

	p3, _ := h.l.Proof(dig(3))
	if p3.PreviousDigest != dig(1) {
		t.Errorf("expected d3 to link to d1, got %s", p3.PreviousDigest.Short())
	}
}

func TestSequenced_RevokeLastConfirmed(t *testing.T) {
	h := newHarness(t, []types.Identity{authA}, 1, WithSequencing())
	h.certify(t, student, dig(1))
	h.certify(t, student, dig(2))

	if err := h.l.RevokeCredential(h.call(authA), dig(2), dig(0)); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	last, _ := h.l.LastConfirmed(student)
	if last != dig(1) {
		t.Errorf("expected last confirmed to roll back to d1, got %s", last.Short())
	}

	if err := h.l.RegisterCredential(h.call(authA), student, dig(3)); err != nil {
		t.Fatalf("register: %v", err)
	}

	p3, _ := h.l.Proof(dig(3))
	if p3.PreviousDigest != dig(1) {
		t.Errorf("expected d3 to link to d1, got %s", p3.PreviousDigest.Short())
	}
}

// TestSequenced_RevokeChainBack verifies the chain never links to a revoked
// credential when older confirmed credentials were revoked first.
func TestSequenced_RevokeChainBack(t *testing.T) {
	h := newHarness(t, []types.Identity{authA}, 1, WithSequencing())
	h.certify(t, student, dig(1))
	h.certify(t, student, dig(2))

	for _, b := range []byte{1, 2} {
		if err := h.l.RevokeCredential(h.call(authA), dig(b), dig(0)); err != nil {
			t.Fatalf("revoke d%d: %v", b, err)
		}
	}

	last, _ := h.l.LastConfirmed(student)
	if !last.IsZero() {
		t.Errorf("expected no live confirmed credential, got %s", last.Short())
	}

	if err := h.l.RegisterCredential(h.call(authA), student, dig(3)); err != nil {
		t.Fatalf("register d3: %v", err)
	}

	p3, _ := h.l.Proof(dig(3))
	if !p3.PreviousDigest.IsZero() {
		t.Errorf("d3 links to revoked %s", p3.PreviousDigest.Short())
	}
}

// TestSequenced_RevokeSkipsRevokedAncestor verifies the rollback skips past
// revoked ancestors to the newest live confirmed credential.
func TestSequenced_RevokeSkipsRevokedAncestor(t *testing.T) {
	h := newHarness(t, []types.Identity{authA}, 1, WithSequencing())
	for _, b := range []byte{1, 2, 3} {
		h.certify(t, student, dig(b))
	}

	for _, b := range []byte{2, 3} {
		if err := h.l.RevokeCredential(h.call(authA), dig(b), dig(0)); err != nil {
			t.Fatalf("revoke d%d: %v", b, err)
		}
	}

	if err := h.l.RegisterCredential(h.call(authA), student, dig(4)); err != nil {
		t.Fatalf("register d4: %v", err)
	}

	p4, _ := h.l.Proof(dig(4))
	if p4.PreviousDigest != dig(1) {
		t.Errorf("expected d4 to link to d1, got %s", p4.PreviousDigest.Short())
	}
	if !h.l.Certified(p4.PreviousDigest) {
		t.Error("previous digest must be certified")
	}
}

// TestSequenced_NullDigestRejected verifies the null digest cannot be
// registered, so it can never hide an outstanding credential.
func TestSequenced_NullDigestRejected(t *testing.T) {
	h := newHarness(t, []types.Identity{authA}, 1, WithSequencing())

	if err := h.l.RegisterCredential(h.call(authA), student, types.NullDigest); !errors.Is(err, ErrInvalidDigest) {
		t.Fatalf("expected ErrInvalidDigest, got %v", err)
	}

	if err := h.l.RegisterCredential(h.call(authA), student, dig(2)); err != nil {
		t.Fatalf("register d2: %v", err)
	}

	if err := h.l.RegisterCredential(h.call(authA), student, dig(3)); !errors.Is(err, ErrPreviousNotConfirmed) {
		t.Errorf("expected ErrPreviousNotConfirmed, got %v", err)
	}

	if n, _ := h.l.Nonce(student); n != 1 {
		t.Errorf("rejected registration must not count, nonce %d", n)
	}
}

// TestUnsequenced_AllowsParallel verifies the plain ledger has no chain.
func TestUnsequenced_AllowsParallel(t *testing.T) {
	h := newHarness(t, []types.Identity{authA}, 1)

	for _, b := range []byte{1, 2, 3} {
		if err := h.l.RegisterCredential(h.call(authA), student, dig(b)); err != nil {
			t.Fatalf("register %d: %v", b, err)
		}
	}

	p, _ := h.l.Proof(dig(2))
	if !p.PreviousDigest.IsZero() {
		t.Error("unsequenced ledgers must not link credentials")
	}
}
