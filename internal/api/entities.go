package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"CredTree/internal/command"
	"CredTree/internal/composite"
	"CredTree/internal/directory"
	"CredTree/internal/ledger"
	"CredTree/internal/types"
)

// entityView is the JSON form of an entity descriptor.
type entityView struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Authorities []string `json:"authorities"`
	Quorum      int      `json:"quorum"`
	Sequenced   bool     `json:"sequenced"`
	Roster      bool     `json:"roster"`
	PeriodStart uint64   `json:"periodStart,omitempty"`
	PeriodEnd   uint64   `json:"periodEnd,omitempty"`
	Parent      string   `json:"parent,omitempty"`
	Children    []string `json:"children,omitempty"`
}

// credentialView is the JSON form of a credential proof or its revocation.
type credentialView struct {
	Digest    string   `json:"digest"`
	Subject   string   `json:"subject"`
	Signers   []string `json:"signers,omitempty"`
	Confirmed bool     `json:"confirmed"`
	Certified bool     `json:"certified"`
	Sequence  uint64   `json:"sequence"`
	Previous  string   `json:"previous,omitempty"`
	Witnesses []string `json:"witnesses,omitempty"`
	Evidence  string   `json:"evidenceRoot,omitempty"`
	Revoked   bool     `json:"revoked,omitempty"`
	Issuer    string   `json:"issuer,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

// subjectView lists what an entity recorded for one subject.
type subjectView struct {
	Subject       string   `json:"subject"`
	Digests       []string `json:"digests"`
	Revoked       []string `json:"revoked"`
	Nonce         uint64   `json:"nonce"`
	LastConfirmed string   `json:"lastConfirmed,omitempty"`
	Enrolled      bool     `json:"enrolled"`
}

// proofView is an aggregate proof with its content identifier.
type proofView struct {
	Subject   string `json:"subject"`
	Aggregate string `json:"aggregate"`
	CID       string `json:"cid"`
}

// verifyRequest is the body of POST /entities/{id}/verify.
type verifyRequest struct {
	Subject  string   `json:"subject"`
	Digests  []string `json:"digests"`
	Children []string `json:"children"`
}

// handleEntities handles GET /entities requests.
func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	dir := s.backend.Directory()
	descs := dir.List()

	out := make([]entityView, 0, len(descs))
	for _, d := range descs {
		out = append(out, describe(dir, d))
	}

	writeJSON(w, http.StatusOK, out)
}

// handleEntity handles GET /entities/{id} requests.
func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.entry(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, describe(s.backend.Directory(), entry.Descriptor))
}

// handleCredential handles GET /entities/{id}/credentials/{digest} requests.
// Revoked credentials answer 410 with their revocation record.
func (s *Server) handleCredential(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.entry(w, r)
	if !ok {
		return
	}

	digest, err := types.ParseDigest(r.PathValue("digest"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	l := entry.Ledger

	if rec, err := l.Revocation(digest); err == nil {
		writeJSON(w, http.StatusGone, credentialView{
			Digest:   rec.Digest.String(),
			Subject:  rec.Subject.String(),
			Sequence: rec.RevokedSequence,
			Revoked:  true,
			Issuer:   rec.Issuer.String(),
			Reason:   rec.Reason.String(),
		})
		return
	}

	p, err := l.Proof(digest)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	view := credentialView{
		Digest:    p.Digest.String(),
		Subject:   p.Subject.String(),
		Signers:   hexIdentities(p.Signers),
		Confirmed: p.SubjectConfirmed,
		Certified: l.Certified(digest),
		Sequence:  p.InsertedSequence,
	}
	if !p.PreviousDigest.IsZero() {
		view.Previous = p.PreviousDigest.String()
	}
	if len(p.Witnesses) > 0 {
		view.Witnesses = hexIdentities(p.Witnesses)
		view.Evidence = p.EvidenceRoot.String()
	}

	writeJSON(w, http.StatusOK, view)
}

// handleStudents handles GET /entities/{id}/students requests.
func (s *Server) handleStudents(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.entry(w, r)
	if !ok {
		return
	}

	students, err := entry.Ledger.Students()
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, hexIdentities(students))
}

// handleSemester handles GET /entities/{id}/semesters/{semester} requests.
func (s *Server) handleSemester(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.entry(w, r)
	if !ok {
		return
	}

	if entry.Composite == nil {
		writeError(w, http.StatusBadRequest, directory.ErrNotComposite.Error())
		return
	}

	semester, err := types.ParseDigest(r.PathValue("semester"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	courses, err := entry.Composite.Semester(semester)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, hexIdentities(courses))
}

// handleSubject handles GET /entities/{id}/subjects/{subject} requests.
func (s *Server) handleSubject(w http.ResponseWriter, r *http.Request) {
	entry, subject, ok := s.entrySubject(w, r)
	if !ok {
		return
	}

	l := entry.Ledger

	digests, err := l.Digests(subject)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	revoked, err := l.Revoked(subject)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	nonce, err := l.Nonce(subject)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	last, err := l.LastConfirmed(subject)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	view := subjectView{
		Subject:  subject.String(),
		Digests:  hexDigests(digests),
		Revoked:  hexDigests(revoked),
		Nonce:    nonce,
		Enrolled: l.IsEnrolled(subject),
	}
	if !last.IsZero() {
		view.LastConfirmed = last.String()
	}

	writeJSON(w, http.StatusOK, view)
}

// handleProof handles GET /entities/{id}/subjects/{subject}/proof requests.
func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	entry, subject, ok := s.entrySubject(w, r)
	if !ok {
		return
	}

	agg, err := entry.Ledger.GetProof(subject)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	id, err := ProofCID(agg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, proofView{
		Subject:   subject.String(),
		Aggregate: agg.String(),
		CID:       id.String(),
	})
}

// handleVerify handles POST /entities/{id}/verify requests.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	target, err := types.ParseIdentity(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var req verifyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}

	subject, err := types.ParseIdentity(req.Subject)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	claimed := make([]types.Digest, 0, len(req.Digests))
	for _, h := range req.Digests {
		d, err := types.ParseDigest(h)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		claimed = append(claimed, d)
	}

	var children []types.Identity
	for _, h := range req.Children {
		id, err := types.ParseIdentity(h)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		children = append(children, id)
	}

	valid, err := s.backend.Verify(target, subject, claimed, children)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

// entry resolves the {id} path segment.
func (s *Server) entry(w http.ResponseWriter, r *http.Request) (*directory.Entry, bool) {
	id, err := types.ParseIdentity(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	entry, err := s.backend.Directory().Get(id)
	if err != nil {
		writeLedgerError(w, err)
		return nil, false
	}

	return entry, true
}

// entrySubject resolves the {id} and {subject} path segments.
func (s *Server) entrySubject(w http.ResponseWriter, r *http.Request) (*directory.Entry, types.Identity, bool) {
	entry, ok := s.entry(w, r)
	if !ok {
		return nil, types.Identity{}, false
	}

	subject, err := types.ParseIdentity(r.PathValue("subject"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, types.Identity{}, false
	}

	return entry, subject, true
}

// ProofCID wraps an aggregate proof as a CIDv1 over a BLAKE3 multihash.
func ProofCID(agg types.Digest) (cid.Cid, error) {
	mh, err := multihash.Encode(agg[:], multihash.BLAKE3)
	if err != nil {
		return cid.Undef, fmt.Errorf("encode multihash:\n%w", err)
	}

	return cid.NewCidV1(cid.Raw, mh), nil
}

// describe builds the view of d, listing children for composites.
func describe(dir *directory.Directory, d directory.Descriptor) entityView {
	v := entityView{
		ID:          d.ID.String(),
		Kind:        d.Kind.String(),
		Authorities: hexIdentities(d.Authorities),
		Quorum:      d.Quorum,
		Sequenced:   d.Config.Sequenced,
		Roster:      d.Config.Roster,
		PeriodStart: d.Config.PeriodStart,
		PeriodEnd:   d.Config.PeriodEnd,
	}

	if !d.Parent.IsZero() {
		v.Parent = d.Parent.String()
	}

	if c, err := dir.Composite(d.ID); err == nil {
		v.Children = hexIdentities(c.Children())
	}

	return v
}

// writeLedgerError maps domain errors to HTTP statuses.
func writeLedgerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, directory.ErrUnknownEntity),
		errors.Is(err, ledger.ErrNoSuchCredential),
		errors.Is(err, ledger.ErrNoAggregate),
		errors.Is(err, ledger.ErrNoCredential),
		errors.Is(err, ledger.ErrNoRoster),
		errors.Is(err, composite.ErrNoSuchSemester):
		status = http.StatusNotFound

	case errors.Is(err, ledger.ErrInvalidIdentity),
		errors.Is(err, ledger.ErrInvalidDigest),
		errors.Is(err, composite.ErrInsufficientChildren),
		errors.Is(err, composite.ErrUnregisteredChild),
		errors.Is(err, composite.ErrNotAnAuthority),
		errors.Is(err, ledger.ErrInvalidConfiguration),
		errors.Is(err, command.ErrInvalidCommand):
		status = http.StatusBadRequest
	}

	writeError(w, status, err.Error())
}

func hexIdentities(ids []types.Identity) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func hexDigests(ds []types.Digest) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}
