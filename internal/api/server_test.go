package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"CredTree/internal/command"
	"CredTree/internal/directory"
	"CredTree/internal/engine"
	"CredTree/internal/ledger"
	"CredTree/internal/metrics"
	"CredTree/internal/sequence"
	"CredTree/internal/storage"
	"CredTree/internal/types"
)

var (
	faculty = ident(0xF0)
	course  = ident(0xC1)
	dean    = ident(0xD1)
	prof    = ident(0xA1)
	student = ident(0x51)
)

func ident(b byte) types.Identity {
	var id types.Identity
	for i := range id {
		id[i] = b
	}
	return id
}

func dig(b byte) types.Digest {
	var d types.Digest
	for i := range d {
		d[i] = b
	}
	return d
}

// fixedConns is a ConnCounter with a constant value.
type fixedConns int

func (f fixedConns) Connections() int { return int(f) }

// newTestServer builds a faculty with one course holding two certified
// credentials, one revoked credential and aggregates on both levels.
func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()

	db, err := storage.NewInMemory()
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := metrics.New()

	dir, err := directory.New(db, directory.WithEmitter(m))
	if err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}

	seq, err := sequence.New(db)
	if err != nil {
		t.Fatalf("failed to create counter: %v", err)
	}

	e := engine.New(dir, seq, m)

	run := func(caller types.Identity, cmd *command.Command) {
		t.Helper()
		if err := e.Execute(context.Background(), caller, cmd).Err(); err != nil {
			t.Fatalf("%s: %v", cmd.Op, err)
		}
	}

	run(dean, &command.Command{Op: command.OpCreate, Identity: faculty, Kind: uint8(directory.KindComposite), Authorities: []types.Identity{dean}, Quorum: 1})
	run(dean, &command.Command{Op: command.OpSpawn, Target: faculty, Identity: course, Authorities: []types.Identity{prof}, Quorum: 1})

	for _, d := range []types.Digest{dig(1), dig(2)} {
		run(prof, &command.Command{Op: command.OpRegister, Target: course, Subject: student, Digest: d})
		run(student, &command.Command{Op: command.OpConfirm, Target: course, Digest: d})
	}

	run(prof, &command.Command{Op: command.OpRegister, Target: course, Subject: student, Digest: dig(3)})
	run(prof, &command.Command{Op: command.OpRevoke, Target: course, Digest: dig(3), Reason: dig(0xEE)})

	run(prof, &command.Command{Op: command.OpAggregate, Target: course, Subject: student})
	run(dean, &command.Command{Op: command.OpAggregate, Target: faculty, Subject: student})

	return New(":0", e, Config{Metrics: m.Handler(), Connections: fixedConns(3), Node: ident(0xAA)}), e
}

// get performs a GET and decodes the JSON body into out.
func get(t *testing.T, s *Server, path string, wantStatus int, out any) {
	t.Helper()

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", path, nil))

	if w.Code != wantStatus {
		t.Fatalf("GET %s: expected status %d, got %d (%s)", path, wantStatus, w.Code, w.Body.String())
	}

	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	var resp map[string]string
	get(t, s, "/health", http.StatusOK, &resp)

	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, e := newTestServer(t)

	var resp struct {
		Sequence    uint64 `json:"sequence"`
		Entities    int    `json:"entities"`
		Connections int    `json:"connections"`
		Node        string `json:"node"`
	}
	get(t, s, "/status", http.StatusOK, &resp)

	if resp.Sequence != e.Sequence() || resp.Sequence == 0 {
		t.Errorf("expected sequence %d, got %d", e.Sequence(), resp.Sequence)
	}
	if resp.Entities != 2 || resp.Connections != 3 || resp.Node != ident(0xAA).String() {
		t.Errorf("unexpected status: %+v", resp)
	}
}

func TestEntitiesEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	var list []entityView
	get(t, s, "/entities", http.StatusOK, &list)

	if len(list) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(list))
	}

	var one entityView
	get(t, s, "/entities/"+faculty.String(), http.StatusOK, &one)

	if one.Kind != "composite" || one.Quorum != 1 {
		t.Errorf("unexpected faculty view: %+v", one)
	}
	if len(one.Children) != 1 || one.Children[0] != course.String() {
		t.Errorf("expected child %s, got %v", course, one.Children)
	}

	get(t, s, "/entities/"+course.String(), http.StatusOK, &one)

	if one.Kind != "leaf" || one.Parent != faculty.String() {
		t.Errorf("unexpected course view: %+v", one)
	}
}

func TestEntityEndpoint_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	get(t, s, "/entities/nothex", http.StatusBadRequest, nil)
	get(t, s, "/entities/"+ident(0x77).String(), http.StatusNotFound, nil)
}

func TestCredentialEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	var view credentialView
	get(t, s, "/entities/"+course.String()+"/credentials/"+dig(1).String(), http.StatusOK, &view)

	if view.Subject != student.String() || !view.Confirmed || !view.Certified {
		t.Errorf("unexpected credential view: %+v", view)
	}
	if len(view.Signers) != 1 || view.Signers[0] != prof.String() {
		t.Errorf("expected signer %s, got %v", prof, view.Signers)
	}

	get(t, s, "/entities/"+course.String()+"/credentials/"+dig(9).String(), http.StatusNotFound, nil)
}

func TestCredentialEndpoint_Revoked(t *testing.T) {
	s, _ := newTestServer(t)

	var view credentialView
	get(t, s, "/entities/"+course.String()+"/credentials/"+dig(3).String(), http.StatusGone, &view)

	if !view.Revoked || view.Issuer != prof.String() || view.Reason != dig(0xEE).String() {
		t.Errorf("unexpected revocation view: %+v", view)
	}
}

func TestSubjectEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	var view subjectView
	get(t, s, "/entities/"+course.String()+"/subjects/"+student.String(), http.StatusOK, &view)

	if len(view.Digests) != 2 || view.Digests[0] != dig(1).String() {
		t.Errorf("expected digests d1,d2, got %v", view.Digests)
	}
	if len(view.Revoked) != 1 || view.Nonce != 3 || !view.Enrolled {
		t.Errorf("unexpected subject view: %+v", view)
	}
}

// TestProofEndpoint verifies the CID wraps the aggregate as a BLAKE3 multihash.
func TestProofEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	var view proofView
	get(t, s, "/entities/"+course.String()+"/subjects/"+student.String()+"/proof", http.StatusOK, &view)

	want := ledger.Aggregate([]types.Digest{dig(1), dig(2)})
	if view.Aggregate != want.String() {
		t.Fatalf("expected aggregate %s, got %s", want, view.Aggregate)
	}

	c, err := cid.Decode(view.CID)
	if err != nil {
		t.Fatalf("decode cid: %v", err)
	}

	if c.Version() != 1 || c.Type() != cid.Raw {
		t.Errorf("expected CIDv1 raw, got v%d codec %x", c.Version(), c.Type())
	}

	decoded, err := multihash.Decode(c.Hash())
	if err != nil {
		t.Fatalf("decode multihash: %v", err)
	}

	if decoded.Code != multihash.BLAKE3 || !bytes.Equal(decoded.Digest, want[:]) {
		t.Errorf("multihash does not carry the aggregate")
	}

	get(t, s, "/entities/"+course.String()+"/subjects/"+ident(0x52).String()+"/proof", http.StatusNotFound, nil)
}

func TestVerifyEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	courseAgg := ledger.Aggregate([]types.Digest{dig(1), dig(2)})

	tests := []struct {
		name   string
		target types.Identity
		body   verifyRequest
		status int
		valid  bool
	}{
		{
			name:   "leaf match",
			target: course,
			body:   verifyRequest{Subject: student.String(), Digests: []string{courseAgg.String()}},
			status: http.StatusOK,
			valid:  true,
		},
		{
			name:   "leaf mismatch",
			target: course,
			body:   verifyRequest{Subject: student.String(), Digests: []string{dig(1).String()}},
			status: http.StatusOK,
		},
		{
			name:   "composite match",
			target: faculty,
			body:   verifyRequest{Subject: student.String(), Digests: []string{courseAgg.String()}, Children: []string{course.String()}},
			status: http.StatusOK,
			valid:  true,
		},
		{
			name:   "composite without children",
			target: faculty,
			body:   verifyRequest{Subject: student.String(), Digests: []string{courseAgg.String()}},
			status: http.StatusBadRequest,
		},
		{
			name:   "bad subject",
			target: course,
			body:   verifyRequest{Subject: "xyz"},
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.body)

			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/entities/"+tt.target.String()+"/verify", bytes.NewReader(body)))

			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d (%s)", tt.status, w.Code, w.Body.String())
			}

			if tt.status != http.StatusOK {
				return
			}

			var resp map[string]bool
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}

			if resp["valid"] != tt.valid {
				t.Errorf("expected valid=%v, got %v", tt.valid, resp["valid"])
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	if !bytes.Contains(w.Body.Bytes(), []byte("credtree_")) {
		t.Error("expected credtree metrics in output")
	}
}

func TestMutationsNotRouted(t *testing.T) {
	s, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/entities/"+course.String()+"/credentials/"+dig(1).String(), nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestSemesterAndStudentsEndpoints(t *testing.T) {
	s, e := newTestServer(t)
	ctx := context.Background()

	spring := dig(0x5A)
	if err := e.Execute(ctx, dean, &command.Command{Op: command.OpRegisterSemester, Target: faculty, Digest: spring, Children: []types.Identity{course}}).Err(); err != nil {
		t.Fatalf("register semester: %v", err)
	}

	var courses []string
	get(t, s, "/entities/"+faculty.String()+"/semesters/"+spring.String(), http.StatusOK, &courses)
	if len(courses) != 1 || courses[0] != course.String() {
		t.Errorf("expected [course], got %v", courses)
	}

	get(t, s, "/entities/"+faculty.String()+"/semesters/"+dig(0x5B).String(), http.StatusNotFound, nil)
	get(t, s, "/entities/"+course.String()+"/semesters/"+spring.String(), http.StatusBadRequest, nil)
	get(t, s, "/entities/"+course.String()+"/students", http.StatusNotFound, nil)
}

// TestCredentialEndpoint_Evidence verifies a root credential shows the
// children it was issued over.
func TestCredentialEndpoint_Evidence(t *testing.T) {
	s, e := newTestServer(t)
	ctx := context.Background()

	leaf := e.Execute(ctx, student, &command.Command{Op: command.OpGetProof, Target: course, Subject: student})
	if err := leaf.Err(); err != nil {
		t.Fatalf("get proof: %v", err)
	}

	diploma := dig(0xD0)
	root := ledger.Aggregate([]types.Digest{leaf.Digest, diploma})
	cmd := &command.Command{Op: command.OpRegisterRoot, Target: faculty, Subject: student, Digest: diploma, Root: root, Children: []types.Identity{course}}
	if err := e.Execute(ctx, dean, cmd).Err(); err != nil {
		t.Fatalf("register root: %v", err)
	}

	var view credentialView
	get(t, s, "/entities/"+faculty.String()+"/credentials/"+diploma.String(), http.StatusOK, &view)

	if len(view.Witnesses) != 1 || view.Witnesses[0] != course.String() {
		t.Errorf("expected witness %s, got %v", course, view.Witnesses)
	}
	if view.Evidence != ledger.Aggregate([]types.Digest{leaf.Digest}).String() {
		t.Errorf("unexpected evidence root %s", view.Evidence)
	}
}
