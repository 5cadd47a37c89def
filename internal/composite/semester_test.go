package composite

import (
	"errors"
	"testing"

	"CredTree/internal/ledger"
	"CredTree/internal/types"
)

func TestRegisterSemester(t *testing.T) {
	tr := newTree(t)
	spring := dig(0x5A)

	for _, id := range []types.Identity{course1, course2} {
		if err := tr.faculty.AddChild(tr.call(dean), id); err != nil {
			t.Fatalf("AddChild: %v", err)
		}
	}

	tests := []struct {
		name     string
		caller   types.Identity
		semester types.Digest
		courses  []types.Identity
		want     error
	}{
		{"not an authority", prof1, spring, []types.Identity{course1}, ledger.ErrUnauthorized},
		{"null semester", dean, types.NullDigest, []types.Identity{course1}, ledger.ErrInvalidDigest},
		{"no courses", dean, spring, nil, ErrInsufficientChildren},
		{"zero course", dean, spring, []types.Identity{{}}, ledger.ErrInvalidIdentity},
		{"not a child", dean, spring, []types.Identity{ident(0x77)}, ErrUnregisteredChild},
		{"listed twice", dean, spring, []types.Identity{course1, course1}, ErrChildExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tr.faculty.RegisterSemester(tr.call(tt.caller), tt.semester, tt.courses); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if tr.faculty.SemesterExists(spring) {
		t.Fatal("rejected registrations must not create the semester")
	}

	if err := tr.faculty.RegisterSemester(tr.call(dean), spring, []types.Identity{course2, course1}); err != nil {
		t.Fatalf("RegisterSemester: %v", err)
	}

	if err := tr.faculty.RegisterSemester(tr.call(dean), spring, []types.Identity{course1}); !errors.Is(err, ErrSemesterExists) {
		t.Errorf("expected ErrSemesterExists, got %v", err)
	}

	if _, err := tr.faculty.Semester(dig(0x5B)); !errors.Is(err, ErrNoSuchSemester) {
		t.Errorf("expected ErrNoSuchSemester, got %v", err)
	}

	reopened := tr.newFaculty(t)

	courses, err := reopened.Semester(spring)
	if err != nil {
		t.Fatalf("Semester: %v", err)
	}
	if len(courses) != 2 || courses[0] != course2 || courses[1] != course1 {
		t.Errorf("expected courses in registration order, got %v", courses)
	}

	if tr.rec.Count(ledger.SemesterRegistered) != 1 {
		t.Errorf("expected one SemesterRegistered event, got %d", tr.rec.Count(ledger.SemesterRegistered))
	}
}

// TestRegisterRootCredential_Evidence verifies a root credential records the
// named children and the fold of their aggregates.
func TestRegisterRootCredential_Evidence(t *testing.T) {
	tr, p1, p2 := aggregated(t)
	diploma := dig(0xD0)

	root := ledger.Aggregate([]types.Digest{p2, p1, diploma})
	if err := tr.faculty.RegisterRootCredential(tr.call(dean), student, diploma, root, []types.Identity{course2, course1}); err != nil {
		t.Fatalf("register root: %v", err)
	}

	ev, err := tr.faculty.Evidence(diploma)
	if err != nil {
		t.Fatalf("Evidence: %v", err)
	}
	if len(ev.Witnesses) != 2 || ev.Witnesses[0] != course2 || ev.Witnesses[1] != course1 {
		t.Errorf("expected witnesses in claim order, got %v", ev.Witnesses)
	}
	if ev.Root != ledger.Aggregate([]types.Digest{p2, p1}) {
		t.Error("evidence root must fold the witnesses' aggregates in order")
	}
}

// TestVerifyTree_Witnesses verifies own credentials are checked against the
// aggregates of the children they were issued over.
func TestVerifyTree_Witnesses(t *testing.T) {
	tests := []struct {
		name  string
		ev    func(p1, p2 types.Digest) ledger.Evidence
		valid bool
	}{
		{"matching", func(p1, p2 types.Digest) ledger.Evidence {
			return ledger.Evidence{Witnesses: []types.Identity{course1, course2}, Root: ledger.Aggregate([]types.Digest{p1, p2})}
		}, true},
		{"wrong root", func(p1, p2 types.Digest) ledger.Evidence {
			return ledger.Evidence{Witnesses: []types.Identity{course1, course2}, Root: ledger.Aggregate([]types.Digest{p2, p1})}
		}, false},
		{"unknown witness", func(p1, _ types.Digest) ledger.Evidence {
			return ledger.Evidence{Witnesses: []types.Identity{ident(0x77)}, Root: ledger.Aggregate([]types.Digest{p1})}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, p1, p2 := aggregated(t)
			diploma := dig(0xD0)

			if err := tr.faculty.RegisterWithEvidence(tr.call(dean), student, diploma, tt.ev(p1, p2), nil); err != nil {
				t.Fatalf("register: %v", err)
			}
			if err := tr.faculty.ConfirmCredential(tr.call(student), diploma); err != nil {
				t.Fatalf("confirm: %v", err)
			}
			if _, err := tr.faculty.AggregateCredentials(tr.call(dean), student, nil); err != nil {
				t.Fatalf("aggregate: %v", err)
			}

			ok, err := tr.faculty.VerifyTree(student)
			if err != nil {
				t.Fatalf("VerifyTree: %v", err)
			}
			if ok != tt.valid {
				t.Errorf("expected %v, got %v", tt.valid, ok)
			}
		})
	}
}
