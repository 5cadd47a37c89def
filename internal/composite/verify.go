package composite

import (
	"errors"
	"fmt"

	"CredTree/internal/ledger"
	"CredTree/internal/types"
)

// childProofs validates the named children and returns their aggregates for subject.
func (c *Composite) childProofs(subject types.Identity, children []types.Identity) ([]types.Digest, error) {
	if len(children) == 0 {
		return nil, ErrInsufficientChildren
	}

	for _, id := range children {
		if id.IsZero() {
			return nil, fmt.Errorf("%w: zero child", ledger.ErrInvalidIdentity)
		}
	}

	proofs := make([]types.Digest, 0, len(children))

	for _, id := range children {
		if !c.IsChild(id) {
			return nil, fmt.Errorf("%w: %s", ErrUnregisteredChild, id.Short())
		}

		p, ok := c.resolver.Resolve(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotAnAuthority, id.Short())
		}

		proof, err := p.GetProof(subject)
		if err != nil {
			return nil, fmt.Errorf("child %s:\n%w", id.Short(), err)
		}

		proofs = append(proofs, proof)
	}

	return proofs, nil
}

// expected folds child proofs with the composite's own certified digests.
func (c *Composite) expected(subject types.Identity, proofs []types.Digest, extra ...types.Digest) (types.Digest, error) {
	own, err := c.OwnDigests(subject)
	if err != nil {
		return types.Digest{}, err
	}

	list := make([]types.Digest, 0, len(proofs)+len(own)+len(extra))
	list = append(list, proofs...)
	list = append(list, own...)
	list = append(list, extra...)

	return ledger.Aggregate(list), nil
}

// VerifyCredential recomputes the subject's aggregate over the named
// children and the composite's own digests, and compares it with the hash
// of claimed. A mismatch is false with a nil error. Never mutates state.
func (c *Composite) VerifyCredential(subject types.Identity, claimed []types.Digest, children []types.Identity) (bool, error) {
	proofs, err := c.childProofs(subject, children)
	if err != nil {
		return false, err
	}

	want, err := c.expected(subject, proofs)
	if err != nil {
		return false, err
	}

	return want == ledger.Aggregate(claimed), nil
}

// AggregateCredentials stores the composite's aggregate for subject.
// With a nil list it folds the aggregates of every child holding one, in
// child order, followed by the composite's own certified digests, which
// is what VerifyCredential recomputes over all children.
func (c *Composite) AggregateCredentials(call ledger.Call, subject types.Identity, digests []types.Digest) (types.Digest, error) {
	if digests != nil {
		return c.Ledger.AggregateCredentials(call, subject, digests)
	}

	proofs, err := c.availableProofs(subject)
	if err != nil {
		return types.Digest{}, err
	}

	own, err := c.OwnDigests(subject)
	if err != nil {
		return types.Digest{}, err
	}

	return c.AggregateFolded(call, subject, proofs, own)
}

// availableProofs returns the aggregates of children that have one.
func (c *Composite) availableProofs(subject types.Identity) ([]types.Digest, error) {
	var proofs []types.Digest

	for _, id := range c.Children() {
		p, ok := c.resolver.Resolve(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotAnAuthority, id.Short())
		}

		proof, err := p.GetProof(subject)
		if errors.Is(err, ledger.ErrNoAggregate) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("child %s:\n%w", id.Short(), err)
		}

		proofs = append(proofs, proof)
	}

	return proofs, nil
}

// RegisterRootCredential signs digest for subject only if folding the
// named children's proofs, the composite's own certified digests and digest
// yields root.
func (c *Composite) RegisterRootCredential(call ledger.Call, subject types.Identity, digest, root types.Digest, children []types.Identity) error {
	proofs, err := c.childProofs(subject, children)
	if err != nil {
		return err
	}

	ev := ledger.Evidence{Witnesses: children, Root: ledger.Aggregate(proofs)}

	return c.RegisterWithEvidence(call, subject, digest, ev, func(own []types.Digest) error {
		list := make([]types.Digest, 0, len(proofs)+len(own)+1)
		list = append(list, proofs...)
		list = append(list, own...)
		list = append(list, digest)

		if ledger.Aggregate(list) != root {
			return ErrRootMismatch
		}

		return nil
	})
}

// VerifyTree walks the tree in pre-order. Each child holding an aggregate
// must verify (composites recursively, leaves by having only certified
// credentials), every own credential issued over witnesses must still match
// their aggregates, and the composite's stored aggregate must equal the fold
// of the child aggregates and its own digests.
func (c *Composite) VerifyTree(subject types.Identity) (bool, error) {
	stored, err := c.GetProof(subject)
	if err != nil {
		return false, err
	}

	var proofs []types.Digest
	current := make(map[types.Identity]types.Digest)

	for _, id := range c.Children() {
		p, ok := c.resolver.Resolve(id)
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrNotAnAuthority, id.Short())
		}

		proof, err := p.GetProof(subject)
		if errors.Is(err, ledger.ErrNoAggregate) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("child %s:\n%w", id.Short(), err)
		}

		var valid bool
		switch child := p.(type) {
		case *Composite:
			valid, err = child.VerifyTree(subject)
		default:
			valid, err = child.VerifyIssuedCredentials(subject)
		}
		if err != nil {
			return false, fmt.Errorf("child %s:\n%w", id.Short(), err)
		}
		if !valid {
			return false, nil
		}

		proofs = append(proofs, proof)
		current[id] = proof
	}

	backed, err := c.witnessesHold(subject, current)
	if err != nil || !backed {
		return false, err
	}

	want, err := c.expected(subject, proofs)
	if err != nil {
		return false, err
	}

	return want == stored, nil
}

// witnessesHold checks every own certified credential that carries evidence
// against the current child aggregates.
func (c *Composite) witnessesHold(subject types.Identity, current map[types.Identity]types.Digest) (bool, error) {
	own, err := c.OwnDigests(subject)
	if err != nil {
		return false, err
	}

	for _, d := range own {
		ev, err := c.Evidence(d)
		if err != nil {
			return false, err
		}
		if len(ev.Witnesses) == 0 {
			continue
		}

		proofs := make([]types.Digest, 0, len(ev.Witnesses))
		for _, w := range ev.Witnesses {
			proof, ok := current[w]
			if !ok {
				return false, nil
			}
			proofs = append(proofs, proof)
		}

		if ledger.Aggregate(proofs) != ev.Root {
			return false, nil
		}
	}

	return true, nil
}
