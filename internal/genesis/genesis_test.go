package genesis

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"CredTree/internal/directory"
	"CredTree/internal/sequence"
	"CredTree/internal/storage"
	"CredTree/internal/types"
)

func ident(b byte) types.Identity {
	var id types.Identity
	for i := range id {
		id[i] = b
	}
	return id
}

var (
	faculty = ident(0xF0)
	course  = ident(0xC1)
	dean    = ident(0xD1)
	prof    = ident(0xA1)
	student = ident(0x51)
	node    = ident(0xAA)
)

// sample is a faculty with one rostered course taught by the node.
var sample = fmt.Sprintf(`{
  "entities": [
    {"id": "%s", "kind": "composite", "authorities": ["%s"], "quorum": 1, "children": ["%s"]},
    {"id": "%s", "authorities": ["%s", "self"], "quorum": 1, "roster": true, "students": ["%s"]}
  ]
}`, faculty, dean, course, course, prof, student)

func newEnv(t *testing.T) (*directory.Directory, *sequence.Counter) {
	t.Helper()

	db, err := storage.NewInMemory()
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	dir, err := directory.New(db)
	if err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}

	seq, err := sequence.New(db)
	if err != nil {
		t.Fatalf("failed to create counter: %v", err)
	}

	return dir, seq
}

func TestApply(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	dir, seq := newEnv(t)

	applied, err := Apply(cfg, dir, seq, node)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !applied {
		t.Fatal("expected genesis to be applied")
	}

	c, err := dir.Composite(faculty)
	if err != nil {
		t.Fatalf("faculty: %v", err)
	}
	if !c.IsChild(course) {
		t.Error("course is not attached to the faculty")
	}

	entry, err := dir.Get(course)
	if err != nil {
		t.Fatalf("course: %v", err)
	}

	if entry.Descriptor.Parent != faculty {
		t.Errorf("expected parent %s, got %s", faculty.Short(), entry.Descriptor.Parent.Short())
	}
	if !entry.Ledger.IsAuthorized(node) {
		t.Error("self keyword did not resolve to the node identity")
	}
	if !entry.Ledger.IsEnrolled(student) || entry.Ledger.IsEnrolled(ident(0x52)) {
		t.Error("roster not seeded")
	}

	if seq.Current() != 2 {
		t.Errorf("expected 2 sequence values, got %d", seq.Current())
	}
}

func TestApply_SkipsPopulatedStore(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	dir, seq := newEnv(t)

	if _, err := Apply(cfg, dir, seq, node); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	applied, err := Apply(cfg, dir, seq, node)
	if err != nil || applied {
		t.Fatalf("expected no-op on populated store, got applied=%v err=%v", applied, err)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"empty", `{"entities": []}`, "no entities"},
		{"unknown field", `{"entities": [], "extra": 1}`, "unknown field"},
		{"bad json", `{`, "parse genesis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.json))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestApply_Invalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"undeclared child", fmt.Sprintf(`{"entities": [{"id": "%s", "kind": "composite", "authorities": ["%s"], "quorum": 1, "children": ["%s"]}]}`, faculty, dean, course)},
		{"leaf with children", fmt.Sprintf(`{"entities": [{"id": "%s", "authorities": ["%s"], "quorum": 1, "children": ["%s"]}, {"id": "%s", "authorities": ["%s"], "quorum": 1}]}`, faculty, dean, course, course, prof)},
		{"students without roster", fmt.Sprintf(`{"entities": [{"id": "%s", "authorities": ["%s"], "quorum": 1, "students": ["%s"]}]}`, course, prof, student)},
		{"duplicate", fmt.Sprintf(`{"entities": [{"id": "%s", "authorities": ["%s"], "quorum": 1}, {"id": "%s", "authorities": ["%s"], "quorum": 1}]}`, course, prof, course, prof)},
		{"bad kind", fmt.Sprintf(`{"entities": [{"id": "%s", "kind": "tree", "authorities": ["%s"], "quorum": 1}]}`, course, prof)},
		{"self without node", fmt.Sprintf(`{"entities": [{"id": "%s", "authorities": ["self"], "quorum": 1}]}`, course)},
		{"bad quorum", fmt.Sprintf(`{"entities": [{"id": "%s", "authorities": ["%s"], "quorum": 3}]}`, course, prof)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.json))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}

			dir, seq := newEnv(t)

			self := node
			if tt.name == "self without node" {
				self = types.Identity{}
			}

			if _, err := Apply(cfg, dir, seq, self); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Entities) != 2 || cfg.Entities[1].Students[0] != student.String() {
		t.Errorf("unexpected config: %+v", cfg)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
