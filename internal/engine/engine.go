// Package engine is the host of the credential ledgers: it authenticates
// nothing itself but receives the caller from the transport, draws a
// sequence value for each mutation and dispatches commands to entities.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CredTree/internal/command"
	"CredTree/internal/directory"
	"CredTree/internal/ledger"
	"CredTree/internal/logger"
	"CredTree/internal/metrics"
	"CredTree/internal/sequence"
	"CredTree/internal/types"
)

// Engine executes commands against the hosted entities.
type Engine struct {
	dir     *directory.Directory
	seq     *sequence.Counter
	metrics *metrics.Metrics

	// createMu serializes entity creation so spawn checks and creates atomically.
	createMu sync.Mutex
}

// New creates an engine. m may be nil.
func New(dir *directory.Directory, seq *sequence.Counter, m *metrics.Metrics) *Engine {
	e := &Engine{dir: dir, seq: seq, metrics: m}

	if m != nil {
		m.SetEntities(dir.Len())
		m.SetSequence(seq.Current())
	}

	return e
}

// Directory returns the hosted entities.
func (e *Engine) Directory() *directory.Directory {
	return e.dir
}

// Sequence returns the last issued sequence value.
func (e *Engine) Sequence() uint64 {
	return e.seq.Current()
}

// Execute runs cmd on behalf of caller. Failures are reported in the
// response code, never as a Go error.
func (e *Engine) Execute(ctx context.Context, caller types.Identity, cmd *command.Command) *command.Response {
	start := time.Now()

	resp, err := e.execute(ctx, caller, cmd)
	if err != nil {
		resp = &command.Response{Code: command.CodeOf(err), Message: err.Error()}
	}

	if e.metrics != nil {
		e.metrics.ObserveCommand(cmd.Op.String(), resp.Code.String(), time.Since(start))
	}

	if resp.Code == command.CodeInternal {
		logger.Error("command failed", "op", cmd.Op, "target", cmd.Target.Short(), "error", err)
	}

	return resp
}

// execute draws a sequence value for mutations and dispatches.
func (e *Engine) execute(ctx context.Context, caller types.Identity, cmd *command.Command) (*command.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if caller.IsZero() {
		return nil, fmt.Errorf("%w: anonymous caller", ledger.ErrInvalidIdentity)
	}

	var call ledger.Call
	call.Caller = caller

	if cmd.Op.Mutating() {
		seq, err := e.seq.Next()
		if err != nil {
			return nil, err
		}
		call.Sequence = seq

		if e.metrics != nil {
			e.metrics.SetSequence(seq)
		}
	}

	var (
		resp *command.Response
		err  error
	)

	switch cmd.Op {
	case command.OpCreate:
		resp, err = e.create(call, cmd)
	case command.OpSpawn:
		resp, err = e.spawn(call, cmd)
	default:
		resp, err = e.dispatch(call, cmd)
	}

	if err != nil {
		return nil, err
	}

	resp.Sequence = call.Sequence

	if cmd.Op.Mutating() {
		logger.Debug("command applied",
			"op", cmd.Op,
			"target", cmd.Target.Short(),
			"caller", caller.Short(),
			"seq", call.Sequence,
		)
	}

	return resp, nil
}

// dispatch runs an entity-level command.
func (e *Engine) dispatch(call ledger.Call, cmd *command.Command) (*command.Response, error) {
	entry, err := e.dir.Get(cmd.Target)
	if err != nil {
		return nil, err
	}

	l := entry.Ledger
	resp := &command.Response{}

	switch cmd.Op {
	case command.OpRegister:
		err = l.RegisterCredential(call, cmd.Subject, cmd.Digest)

	case command.OpConfirm:
		err = l.ConfirmCredential(call, cmd.Digest)

	case command.OpRevoke:
		err = l.RevokeCredential(call, cmd.Digest, cmd.Reason)

	case command.OpAggregate:
		resp.Digest, err = e.aggregate(entry, call, cmd)

	case command.OpGetProof:
		resp.Digest, err = l.GetProof(cmd.Subject)

	case command.OpVerify:
		resp.Flag, err = e.verify(entry, cmd)

	case command.OpCheckCredentials:
		resp.Flag = l.CheckCredentials(cmd.Digests)

	case command.OpIsAuthorized:
		resp.Flag = l.IsAuthorized(cmd.Identity)

	case command.OpQuorumSize:
		resp.Number = uint64(l.QuorumSize())

	case command.OpCertified:
		resp.Flag = l.Certified(cmd.Digest)

	case command.OpDigests:
		resp.Digests, err = l.Digests(cmd.Subject)

	case command.OpProof:
		err = fillProof(resp, l, cmd.Digest)

	case command.OpNonce:
		resp.Number, err = l.Nonce(cmd.Subject)

	case command.OpRevocation:
		err = fillRevocation(resp, l, cmd.Digest)

	case command.OpVerifyIssued:
		resp.Flag, err = l.VerifyIssuedCredentials(cmd.Subject)

	case command.OpEnroll:
		err = l.Enroll(call, cmd.Identity)

	case command.OpUnenroll:
		err = l.Unenroll(call, cmd.Identity)

	case command.OpRenounce:
		err = l.Renounce(call)

	case command.OpIsEnrolled:
		resp.Flag = l.IsEnrolled(cmd.Identity)

	case command.OpStudents:
		resp.Identities, err = l.Students()

	case command.OpEvidence:
		var ev ledger.Evidence
		ev, err = l.Evidence(cmd.Digest)
		resp.Identities, resp.Digest = ev.Witnesses, ev.Root

	case command.OpAddChild, command.OpIsChild, command.OpChildren, command.OpVerifyTree, command.OpRegisterRoot,
		command.OpRegisterSemester, command.OpSemester:
		err = e.dispatchComposite(entry, call, cmd, resp)

	default:
		err = fmt.Errorf("%w: op %s", command.ErrInvalidCommand, cmd.Op)
	}

	if err != nil {
		return nil, err
	}

	return resp, nil
}

// dispatchComposite runs operations only composites support.
func (e *Engine) dispatchComposite(entry *directory.Entry, call ledger.Call, cmd *command.Command, resp *command.Response) error {
	c := entry.Composite
	if c == nil {
		return fmt.Errorf("%w: %s", directory.ErrNotComposite, cmd.Target.Short())
	}

	var err error

	switch cmd.Op {
	case command.OpAddChild:
		err = c.AddChild(call, cmd.Identity)
	case command.OpIsChild:
		resp.Flag = c.IsChild(cmd.Identity)
	case command.OpChildren:
		resp.Identities = c.Children()
	case command.OpVerifyTree:
		resp.Flag, err = c.VerifyTree(cmd.Subject)
	case command.OpRegisterRoot:
		err = c.RegisterRootCredential(call, cmd.Subject, cmd.Digest, cmd.Root, cmd.Children)
	case command.OpRegisterSemester:
		err = c.RegisterSemester(call, cmd.Digest, cmd.Children)
	case command.OpSemester:
		resp.Identities, err = c.Semester(cmd.Digest)
	}

	return err
}

// aggregate dispatches aggregation by entity variant.
func (e *Engine) aggregate(entry *directory.Entry, call ledger.Call, cmd *command.Command) (types.Digest, error) {
	switch entry.Descriptor.Kind {
	case directory.KindComposite:
		return entry.Composite.AggregateCredentials(call, cmd.Subject, cmd.Digests)
	default:
		return entry.Ledger.AggregateCredentials(call, cmd.Subject, cmd.Digests)
	}
}

// verify dispatches verification by entity variant. Leaves compare one
// claimed digest with the stored aggregate; composites fold their children.
func (e *Engine) verify(entry *directory.Entry, cmd *command.Command) (bool, error) {
	switch entry.Descriptor.Kind {
	case directory.KindComposite:
		return entry.Composite.VerifyCredential(cmd.Subject, cmd.Digests, cmd.Children)

	default:
		if len(cmd.Children) > 0 {
			return false, fmt.Errorf("%w: leaf verification takes no children", command.ErrInvalidCommand)
		}

		claimed := cmd.Digest
		if claimed.IsZero() && len(cmd.Digests) == 1 {
			claimed = cmd.Digests[0]
		}

		return entry.Ledger.VerifyCredential(cmd.Subject, claimed)
	}
}

// fillProof copies a credential proof into a response:
// Identities = subject followed by signers, Flag = confirmed,
// Number = inserted sequence, Digest = previous digest.
func fillProof(resp *command.Response, l *ledger.Ledger, digest types.Digest) error {
	p, err := l.Proof(digest)
	if err != nil {
		return err
	}

	resp.Identities = append([]types.Identity{p.Subject}, p.Signers...)
	resp.Flag = p.SubjectConfirmed
	resp.Number = p.InsertedSequence
	resp.Digest = p.PreviousDigest

	return nil
}

// fillRevocation copies a revocation record into a response:
// Identities = issuer, subject; Digest = reason; Number = revoked sequence.
func fillRevocation(resp *command.Response, l *ledger.Ledger, digest types.Digest) error {
	r, err := l.Revocation(digest)
	if err != nil {
		return err
	}

	resp.Identities = []types.Identity{r.Issuer, r.Subject}
	resp.Digest = r.Reason
	resp.Number = r.RevokedSequence

	return nil
}

// Handle decodes a wire command from caller, executes it and encodes the
// response. It satisfies network.Handler.
func (e *Engine) Handle(ctx context.Context, caller types.Identity, request []byte) []byte {
	cmd, err := command.Decode(request)
	if err != nil {
		logger.Debug("undecodable command", "caller", caller.Short(), "error", err)
		return command.EncodeResponse(&command.Response{Code: command.CodeOf(err), Message: err.Error()})
	}

	return command.EncodeResponse(e.Execute(ctx, caller, cmd))
}

// Verify checks a claim against target outside the command path. Reads take
// no sequence value and need no caller.
func (e *Engine) Verify(target, subject types.Identity, claimed []types.Digest, children []types.Identity) (bool, error) {
	entry, err := e.dir.Get(target)
	if err != nil {
		return false, err
	}

	return e.verify(entry, &command.Command{Subject: subject, Digests: claimed, Children: children})
}
