// Package command defines the operations a node executes and their
// flatbuffers wire encoding.
package command

import (
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	"CredTree/internal/types"
)

// ErrInvalidCommand is returned for malformed or unknown commands.
var ErrInvalidCommand = errors.New("invalid command")

// Op identifies an operation.
type Op uint8

const (
	OpRegister Op = iota + 1
	OpConfirm
	OpRevoke
	OpAggregate
	OpGetProof
	OpVerify
	OpAddChild
	OpIsChild
	OpChildren
	OpCheckCredentials
	OpIsAuthorized
	OpQuorumSize
	OpCertified
	OpDigests
	OpProof
	OpNonce
	OpRevocation
	OpVerifyIssued
	OpVerifyTree
	OpEnroll
	OpUnenroll
	OpRenounce
	OpIsEnrolled
	OpRegisterRoot
	OpCreate
	OpSpawn
	OpEvidence
	OpStudents
	OpRegisterSemester
	OpSemester
)

var opNames = map[Op]string{
	OpRegister:         "register",
	OpConfirm:          "confirm",
	OpRevoke:           "revoke",
	OpAggregate:        "aggregate",
	OpGetProof:         "get_proof",
	OpVerify:           "verify",
	OpAddChild:         "add_child",
	OpIsChild:          "is_child",
	OpChildren:         "children",
	OpCheckCredentials: "check_credentials",
	OpIsAuthorized:     "is_authorized",
	OpQuorumSize:       "quorum_size",
	OpCertified:        "certified",
	OpDigests:          "digests",
	OpProof:            "proof",
	OpNonce:            "nonce",
	OpRevocation:       "revocation",
	OpVerifyIssued:     "verify_issued",
	OpVerifyTree:       "verify_tree",
	OpEnroll:           "enroll",
	OpUnenroll:         "unenroll",
	OpRenounce:         "renounce",
	OpIsEnrolled:       "is_enrolled",
	OpRegisterRoot:     "register_root",
	OpCreate:           "create",
	OpSpawn:            "spawn",
	OpEvidence:         "evidence",
	OpStudents:         "students",
	OpRegisterSemester: "register_semester",
	OpSemester:         "semester",
}

// String returns the operation name.
func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Mutating reports whether the operation changes state and so draws a sequence value.
func (o Op) Mutating() bool {
	switch o {
	case OpRegister, OpConfirm, OpRevoke, OpAggregate, OpAddChild,
		OpEnroll, OpUnenroll, OpRenounce, OpRegisterRoot, OpCreate, OpSpawn,
		OpRegisterSemester:
		return true
	default:
		return false
	}
}

// Command is one request. Fields not used by Op are ignored.
type Command struct {
	Op          Op
	Target      types.Identity   // Target is the entity the command runs against
	Subject     types.Identity   // Subject is the credential subject or student
	Digest      types.Digest     // Digest is the credential, or the claimed proof for leaf verification
	Reason      types.Digest     // Reason is the revocation reason
	Digests     []types.Digest   // Digests is an aggregation list or a composite claim; empty means default
	Children    []types.Identity // Children names the children of a composite claim
	Root        types.Digest     // Root is the expected fold for register_root
	Identity    types.Identity   // Identity is the new entity, child or queried identity
	Authorities []types.Identity // Authorities configures create/spawn
	Quorum      int
	Kind        uint8
	Sequenced   bool
	Roster      bool
	PeriodStart uint64
	PeriodEnd   uint64
}

// Encode serializes the command.
func Encode(c *Command) []byte {
	builder := flatbuffers.NewBuilder(256 + (len(c.Digests)+len(c.Children)+len(c.Authorities))*types.Size)

	vec := func(b []byte) flatbuffers.UOffsetT {
		if len(b) == 0 {
			return 0
		}
		return builder.CreateByteVector(b)
	}

	target := vec(nonZeroID(c.Target))
	subject := vec(nonZeroID(c.Subject))
	digest := vec(nonZeroDigest(c.Digest))
	reason := vec(nonZeroDigest(c.Reason))
	digests := vec(types.JoinDigests(c.Digests))
	children := vec(types.JoinIdentities(c.Children))
	root := vec(nonZeroDigest(c.Root))
	authorities := vec(types.JoinIdentities(c.Authorities))
	entity := vec(nonZeroID(c.Identity))

	types.CommandStart(builder)
	types.CommandAddOp(builder, byte(c.Op))
	addVec(builder, types.CommandAddTarget, target)
	addVec(builder, types.CommandAddSubject, subject)
	addVec(builder, types.CommandAddDigest, digest)
	addVec(builder, types.CommandAddReason, reason)
	addVec(builder, types.CommandAddDigests, digests)
	addVec(builder, types.CommandAddChildren, children)
	addVec(builder, types.CommandAddRoot, root)
	addVec(builder, types.CommandAddAuthorities, authorities)
	addVec(builder, types.CommandAddEntity, entity)
	types.CommandAddQuorum(builder, uint32(c.Quorum))
	types.CommandAddKind(builder, c.Kind)
	types.CommandAddSequenced(builder, c.Sequenced)
	types.CommandAddRoster(builder, c.Roster)
	types.CommandAddPeriodStart(builder, c.PeriodStart)
	types.CommandAddPeriodEnd(builder, c.PeriodEnd)
	builder.Finish(types.CommandEnd(builder))

	return builder.FinishedBytes()
}

// Decode parses a command. Fixed-size fields of the wrong length are rejected.
func Decode(data []byte) (c *Command, err error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidCommand, len(data))
	}

	// Malformed offsets make the flatbuffers accessors panic.
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, fmt.Errorf("%w: %v", ErrInvalidCommand, r)
		}
	}()

	fb := types.GetRootAsCommand(data, 0)

	c = &Command{
		Op:          Op(fb.Op()),
		Quorum:      int(fb.Quorum()),
		Kind:        fb.Kind(),
		Sequenced:   fb.Sequenced(),
		Roster:      fb.Roster(),
		PeriodStart: fb.PeriodStart(),
		PeriodEnd:   fb.PeriodEnd(),
	}

	if _, ok := opNames[c.Op]; !ok {
		return nil, fmt.Errorf("%w: unknown op %d", ErrInvalidCommand, c.Op)
	}

	fields := []struct {
		name string
		src  []byte
		dst  []byte
	}{
		{"target", fb.TargetBytes(), c.Target[:]},
		{"subject", fb.SubjectBytes(), c.Subject[:]},
		{"digest", fb.DigestBytes(), c.Digest[:]},
		{"reason", fb.ReasonBytes(), c.Reason[:]},
		{"root", fb.RootBytes(), c.Root[:]},
		{"entity", fb.EntityBytes(), c.Identity[:]},
	}

	for _, f := range fields {
		if len(f.src) == 0 {
			continue
		}
		if len(f.src) != types.Size {
			return nil, fmt.Errorf("%w: %s has %d bytes", ErrInvalidCommand, f.name, len(f.src))
		}
		copy(f.dst, f.src)
	}

	lists := []struct {
		name string
		src  []byte
	}{
		{"digests", fb.DigestsBytes()},
		{"children", fb.ChildrenBytes()},
		{"authorities", fb.AuthoritiesBytes()},
	}

	for _, l := range lists {
		if len(l.src)%types.Size != 0 {
			return nil, fmt.Errorf("%w: %s length %d", ErrInvalidCommand, l.name, len(l.src))
		}
	}

	c.Digests = types.SplitDigests(fb.DigestsBytes())
	c.Children = types.SplitIdentities(fb.ChildrenBytes())
	c.Authorities = types.SplitIdentities(fb.AuthoritiesBytes())

	return c, nil
}

// addVec adds an optional vector field.
func addVec(b *flatbuffers.Builder, add func(*flatbuffers.Builder, flatbuffers.UOffsetT), off flatbuffers.UOffsetT) {
	if off != 0 {
		add(b, off)
	}
}

func nonZeroID(id types.Identity) []byte {
	if id.IsZero() {
		return nil
	}
	return id[:]
}

func nonZeroDigest(d types.Digest) []byte {
	if d.IsZero() {
		return nil
	}
	return d[:]
}
