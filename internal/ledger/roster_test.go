package ledger

import (
	"errors"
	"testing"

	"CredTree/internal/types"
)

func TestRoster(t *testing.T) {
	h := newHarness(t, []types.Identity{authA}, 1, WithRoster())

	if err := h.l.RegisterCredential(h.call(authA), student, dig(1)); !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("expected ErrNotEnrolled, got %v", err)
	}

	if err := h.l.Enroll(h.call(student), student); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("self enrolment: expected ErrUnauthorized, got %v", err)
	}

	if err := h.l.Enroll(h.call(authA), authA); !errors.Is(err, ErrSelfAttestation) {
		t.Errorf("enrolling an authority: expected ErrSelfAttestation, got %v", err)
	}

	if err := h.l.Enroll(h.call(authA), types.Identity{}); !errors.Is(err, ErrInvalidIdentity) {
		t.Errorf("zero student: expected ErrInvalidIdentity, got %v", err)
	}

	if err := h.l.Enroll(h.call(authA), student); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	if err := h.l.Enroll(h.call(authA), student); !errors.Is(err, ErrAlreadyEnrolled) {
		t.Errorf("expected ErrAlreadyEnrolled, got %v", err)
	}

	if !h.l.IsEnrolled(student) || h.l.IsEnrolled(other) {
		t.Error("IsEnrolled disagrees with roster")
	}

	if err := h.l.RegisterCredential(h.call(authA), student, dig(1)); err != nil {
		t.Fatalf("register enrolled student: %v", err)
	}

	if err := h.l.Renounce(h.call(student)); err != nil {
		t.Fatalf("renounce: %v", err)
	}

	if err := h.l.Renounce(h.call(student)); !errors.Is(err, ErrNotEnrolled) {
		t.Errorf("second renounce: expected ErrNotEnrolled, got %v", err)
	}

	if err := h.l.RegisterCredential(h.call(authA), student, dig(2)); !errors.Is(err, ErrNotEnrolled) {
		t.Errorf("expected ErrNotEnrolled after renounce, got %v", err)
	}

	if h.rec.Count(StudentEnrolled) != 1 || h.rec.Count(StudentUnenrolled) != 1 {
		t.Errorf("unexpected roster events %+v", h.rec.Events())
	}
}

func TestRoster_Unenroll(t *testing.T) {
	h := newHarness(t, []types.Identity{authA}, 1, WithRoster())

	if err := h.l.Unenroll(h.call(authA), student); !errors.Is(err, ErrNotEnrolled) {
		t.Errorf("expected ErrNotEnrolled, got %v", err)
	}

	if err := h.l.Enroll(h.call(authA), student); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	if err := h.l.Unenroll(h.call(other), student); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	if err := h.l.Unenroll(h.call(authA), student); err != nil {
		t.Fatalf("unenroll: %v", err)
	}

	if h.l.IsEnrolled(student) {
		t.Error("student still enrolled")
	}
}

func TestRoster_Disabled(t *testing.T) {
	h := newHarness(t, []types.Identity{authA}, 1)

	if err := h.l.Enroll(h.call(authA), student); !errors.Is(err, ErrNoRoster) {
		t.Errorf("expected ErrNoRoster, got %v", err)
	}

	if err := h.l.Renounce(h.call(student)); !errors.Is(err, ErrNoRoster) {
		t.Errorf("expected ErrNoRoster, got %v", err)
	}

	if !h.l.IsEnrolled(student) {
		t.Error("ledgers without roster accept every subject")
	}
}

func TestPeriod(t *testing.T) {
	h := newHarness(t, []types.Identity{authA}, 1, WithPeriod(3, 6))

	// Sequence 1 is before the period.
	if err := h.l.RegisterCredential(h.call(authA), student, dig(1)); !errors.Is(err, ErrPeriodClosed) {
		t.Fatalf("expected ErrPeriodClosed, got %v", err)
	}

	h.seq = 2
	// Sequences 3 and 4.
	h.certify(t, student, dig(1))

	if _, err := h.l.AggregateCredentials(h.call(authA), student, nil); !errors.Is(err, ErrPeriodOpen) {
		t.Fatalf("expected ErrPeriodOpen at sequence 5, got %v", err)
	}

	// Sequence 6 is the end.
	if err := h.l.RegisterCredential(h.call(authA), student, dig(2)); !errors.Is(err, ErrPeriodClosed) {
		t.Fatalf("expected ErrPeriodClosed at end, got %v", err)
	}

	if _, err := h.l.AggregateCredentials(h.call(authA), student, nil); err != nil {
		t.Fatalf("aggregate after period: %v", err)
	}

	cases := []struct {
		seq                     uint64
		started, running, ended bool
	}{
		{2, false, false, false},
		{3, true, true, false},
		{5, true, true, false},
		{6, true, false, true},
	}

	for _, tc := range cases {
		if h.l.Started(tc.seq) != tc.started || h.l.Running(tc.seq) != tc.running || h.l.Ended(tc.seq) != tc.ended {
			t.Errorf("seq %d: unexpected period state", tc.seq)
		}
	}
}

func TestPeriod_Disabled(t *testing.T) {
	h := newHarness(t, []types.Identity{authA}, 1)

	if !h.l.Running(0) || h.l.Ended(1 << 40) {
		t.Error("ledgers without period always run")
	}
}

func TestStudents(t *testing.T) {
	h := newHarness(t, []types.Identity{authA}, 1, WithRoster())

	if list, err := h.l.Students(); err != nil || len(list) != 0 {
		t.Fatalf("expected an empty roster, got %v (%v)", list, err)
	}

	for _, id := range []types.Identity{other, student} {
		if err := h.l.Enroll(h.call(authA), id); err != nil {
			t.Fatalf("enroll: %v", err)
		}
	}

	list, err := h.l.Students()
	if err != nil {
		t.Fatalf("Students: %v", err)
	}
	if len(list) != 2 || list[0] != student || list[1] != other {
		t.Errorf("expected roster ordered by identity, got %v", list)
	}

	if err := h.l.Unenroll(h.call(authA), student); err != nil {
		t.Fatalf("unenroll: %v", err)
	}
	if list, _ := h.l.Students(); len(list) != 1 || list[0] != other {
		t.Errorf("expected [other] after unenroll, got %v", list)
	}

	plain := newHarness(t, []types.Identity{authA}, 1)
	if _, err := plain.l.Students(); !errors.Is(err, ErrNoRoster) {
		t.Errorf("expected ErrNoRoster, got %v", err)
	}
}
