package client

import (
	"context"

	"CredTree/internal/command"
	"CredTree/internal/directory"
	"CredTree/internal/ledger"
	"CredTree/internal/types"
)

// EntitySpec describes an entity to create or spawn.
type EntitySpec struct {
	ID          types.Identity
	Kind        directory.Kind
	Authorities []types.Identity
	Quorum      int
	Config      ledger.Config
}

func (s EntitySpec) command(op command.Op, target types.Identity) *command.Command {
	return &command.Command{
		Op:          op,
		Target:      target,
		Identity:    s.ID,
		Kind:        uint8(s.Kind),
		Authorities: s.Authorities,
		Quorum:      s.Quorum,
		Sequenced:   s.Config.Sequenced,
		Roster:      s.Config.Roster,
		PeriodStart: s.Config.PeriodStart,
		PeriodEnd:   s.Config.PeriodEnd,
	}
}

// Create hosts a new top-level entity. Returns the sequence value drawn.
func (c *Client) Create(ctx context.Context, spec EntitySpec) (uint64, error) {
	return c.mutate(ctx, spec.command(command.OpCreate, types.Identity{}))
}

// Spawn creates spec as a child of parent.
func (c *Client) Spawn(ctx context.Context, parent types.Identity, spec EntitySpec) (uint64, error) {
	return c.mutate(ctx, spec.command(command.OpSpawn, parent))
}

// Register acknowledges digest for subject on target.
func (c *Client) Register(ctx context.Context, target, subject types.Identity, digest types.Digest) (uint64, error) {
	return c.mutate(ctx, &command.Command{Op: command.OpRegister, Target: target, Subject: subject, Digest: digest})
}

// Confirm accepts digest as its subject.
func (c *Client) Confirm(ctx context.Context, target types.Identity, digest types.Digest) (uint64, error) {
	return c.mutate(ctx, &command.Command{Op: command.OpConfirm, Target: target, Digest: digest})
}

// Revoke withdraws digest with an opaque reason.
func (c *Client) Revoke(ctx context.Context, target types.Identity, digest, reason types.Digest) (uint64, error) {
	return c.mutate(ctx, &command.Command{Op: command.OpRevoke, Target: target, Digest: digest, Reason: reason})
}

// Aggregate stores the subject's aggregate proof. A nil list uses the default.
func (c *Client) Aggregate(ctx context.Context, target, subject types.Identity, digests []types.Digest) (types.Digest, error) {
	resp, err := c.Do(ctx, &command.Command{Op: command.OpAggregate, Target: target, Subject: subject, Digests: digests})
	if err != nil {
		return types.Digest{}, err
	}
	return resp.Digest, nil
}

// GetProof returns the stored aggregate proof.
func (c *Client) GetProof(ctx context.Context, target, subject types.Identity) (types.Digest, error) {
	resp, err := c.Do(ctx, &command.Command{Op: command.OpGetProof, Target: target, Subject: subject})
	if err != nil {
		return types.Digest{}, err
	}
	return resp.Digest, nil
}

// Verify checks claimed against target. Leaves take one digest and no
// children; composites fold the proofs of the listed children.
func (c *Client) Verify(ctx context.Context, target, subject types.Identity, claimed []types.Digest, children []types.Identity) (bool, error) {
	return c.flag(ctx, &command.Command{Op: command.OpVerify, Target: target, Subject: subject, Digests: claimed, Children: children})
}

// CheckCredentials reports whether every digest is certified.
func (c *Client) CheckCredentials(ctx context.Context, target types.Identity, digests []types.Digest) (bool, error) {
	return c.flag(ctx, &command.Command{Op: command.OpCheckCredentials, Target: target, Digests: digests})
}

// IsAuthorized reports whether id belongs to target's authority set.
func (c *Client) IsAuthorized(ctx context.Context, target, id types.Identity) (bool, error) {
	return c.flag(ctx, &command.Command{Op: command.OpIsAuthorized, Target: target, Identity: id})
}

// QuorumSize returns target's quorum.
func (c *Client) QuorumSize(ctx context.Context, target types.Identity) (int, error) {
	resp, err := c.Do(ctx, &command.Command{Op: command.OpQuorumSize, Target: target})
	if err != nil {
		return 0, err
	}
	return int(resp.Number), nil
}

// Certified reports whether digest reached quorum and was confirmed.
func (c *Client) Certified(ctx context.Context, target types.Identity, digest types.Digest) (bool, error) {
	return c.flag(ctx, &command.Command{Op: command.OpCertified, Target: target, Digest: digest})
}

// Digests lists the credentials registered for subject.
func (c *Client) Digests(ctx context.Context, target, subject types.Identity) ([]types.Digest, error) {
	resp, err := c.Do(ctx, &command.Command{Op: command.OpDigests, Target: target, Subject: subject})
	if err != nil {
		return nil, err
	}
	return resp.Digests, nil
}

// Proof returns the credential proof of digest.
func (c *Client) Proof(ctx context.Context, target types.Identity, digest types.Digest) (*ledger.CredentialProof, error) {
	resp, err := c.Do(ctx, &command.Command{Op: command.OpProof, Target: target, Digest: digest})
	if err != nil {
		return nil, err
	}

	p := &ledger.CredentialProof{
		Digest:           digest,
		SubjectConfirmed: resp.Flag,
		InsertedSequence: resp.Number,
		PreviousDigest:   resp.Digest,
	}
	if len(resp.Identities) > 0 {
		p.Subject = resp.Identities[0]
		p.Signers = resp.Identities[1:]
	}

	return p, nil
}

// Nonce returns how many credentials were ever registered for subject.
func (c *Client) Nonce(ctx context.Context, target, subject types.Identity) (uint64, error) {
	resp, err := c.Do(ctx, &command.Command{Op: command.OpNonce, Target: target, Subject: subject})
	if err != nil {
		return 0, err
	}
	return resp.Number, nil
}

// Revocation returns the revocation record of digest.
func (c *Client) Revocation(ctx context.Context, target types.Identity, digest types.Digest) (*ledger.RevocationRecord, error) {
	resp, err := c.Do(ctx, &command.Command{Op: command.OpRevocation, Target: target, Digest: digest})
	if err != nil {
		return nil, err
	}

	r := &ledger.RevocationRecord{Digest: digest, Reason: resp.Digest, RevokedSequence: resp.Number}
	if len(resp.Identities) == 2 {
		r.Issuer, r.Subject = resp.Identities[0], resp.Identities[1]
	}

	return r, nil
}

// VerifyIssued reports whether every credential registered for subject is certified.
func (c *Client) VerifyIssued(ctx context.Context, target, subject types.Identity) (bool, error) {
	return c.flag(ctx, &command.Command{Op: command.OpVerifyIssued, Target: target, Subject: subject})
}

// Enroll adds student to target's roster.
func (c *Client) Enroll(ctx context.Context, target, student types.Identity) (uint64, error) {
	return c.mutate(ctx, &command.Command{Op: command.OpEnroll, Target: target, Identity: student})
}

// Unenroll removes student from target's roster.
func (c *Client) Unenroll(ctx context.Context, target, student types.Identity) (uint64, error) {
	return c.mutate(ctx, &command.Command{Op: command.OpUnenroll, Target: target, Identity: student})
}

// Renounce removes the caller from target's roster.
func (c *Client) Renounce(ctx context.Context, target types.Identity) (uint64, error) {
	return c.mutate(ctx, &command.Command{Op: command.OpRenounce, Target: target})
}

// IsEnrolled reports whether id may receive credentials from target.
func (c *Client) IsEnrolled(ctx context.Context, target, id types.Identity) (bool, error) {
	return c.flag(ctx, &command.Command{Op: command.OpIsEnrolled, Target: target, Identity: id})
}

// AddChild registers child under the composite target.
func (c *Client) AddChild(ctx context.Context, target, child types.Identity) (uint64, error) {
	return c.mutate(ctx, &command.Command{Op: command.OpAddChild, Target: target, Identity: child})
}

// IsChild reports whether id is a child of target.
func (c *Client) IsChild(ctx context.Context, target, id types.Identity) (bool, error) {
	return c.flag(ctx, &command.Command{Op: command.OpIsChild, Target: target, Identity: id})
}

// Children lists target's children in registration order.
func (c *Client) Children(ctx context.Context, target types.Identity) ([]types.Identity, error) {
	resp, err := c.Do(ctx, &command.Command{Op: command.OpChildren, Target: target})
	if err != nil {
		return nil, err
	}
	return resp.Identities, nil
}

// VerifyTree checks every stored aggregate below target for subject.
func (c *Client) VerifyTree(ctx context.Context, target, subject types.Identity) (bool, error) {
	return c.flag(ctx, &command.Command{Op: command.OpVerifyTree, Target: target, Subject: subject})
}

// RegisterRoot registers digest on a composite after checking root against
// the children's proofs.
func (c *Client) RegisterRoot(ctx context.Context, target, subject types.Identity, digest, root types.Digest, children []types.Identity) (uint64, error) {
	return c.mutate(ctx, &command.Command{
		Op:       command.OpRegisterRoot,
		Target:   target,
		Subject:  subject,
		Digest:   digest,
		Root:     root,
		Children: children,
	})
}

// Evidence returns the witnesses and evidence root recorded with digest.
func (c *Client) Evidence(ctx context.Context, target types.Identity, digest types.Digest) (ledger.Evidence, error) {
	resp, err := c.Do(ctx, &command.Command{Op: command.OpEvidence, Target: target, Digest: digest})
	if err != nil {
		return ledger.Evidence{}, err
	}
	return ledger.Evidence{Witnesses: resp.Identities, Root: resp.Digest}, nil
}

// Students lists the roster of target.
func (c *Client) Students(ctx context.Context, target types.Identity) ([]types.Identity, error) {
	resp, err := c.Do(ctx, &command.Command{Op: command.OpStudents, Target: target})
	if err != nil {
		return nil, err
	}
	return resp.Identities, nil
}

// RegisterSemester groups children of the composite target under semester.
func (c *Client) RegisterSemester(ctx context.Context, target types.Identity, semester types.Digest, courses []types.Identity) (uint64, error) {
	return c.mutate(ctx, &command.Command{
		Op:       command.OpRegisterSemester,
		Target:   target,
		Digest:   semester,
		Children: courses,
	})
}

// Semester lists the courses target registered under semester.
func (c *Client) Semester(ctx context.Context, target types.Identity, semester types.Digest) ([]types.Identity, error) {
	resp, err := c.Do(ctx, &command.Command{Op: command.OpSemester, Target: target, Digest: semester})
	if err != nil {
		return nil, err
	}
	return resp.Identities, nil
}

func (c *Client) mutate(ctx context.Context, cmd *command.Command) (uint64, error) {
	resp, err := c.Do(ctx, cmd)
	if err != nil {
		return 0, err
	}
	return resp.Sequence, nil
}

func (c *Client) flag(ctx context.Context, cmd *command.Command) (bool, error) {
	resp, err := c.Do(ctx, cmd)
	if err != nil {
		return false, err
	}
	return resp.Flag, nil
}
