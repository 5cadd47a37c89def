package engine

import (
	"fmt"
	"slices"

	"CredTree/internal/command"
	"CredTree/internal/directory"
	"CredTree/internal/ledger"
	"CredTree/internal/logger"
)

// descriptor builds the descriptor of the entity cmd creates.
func descriptor(cmd *command.Command) (directory.Descriptor, error) {
	if cmd.Identity.IsZero() {
		return directory.Descriptor{}, fmt.Errorf("%w: zero entity id", ledger.ErrInvalidIdentity)
	}

	kind := directory.Kind(cmd.Kind)
	if kind == 0 {
		kind = directory.KindLeaf
	}

	return directory.Descriptor{
		ID:          cmd.Identity,
		Kind:        kind,
		Authorities: cmd.Authorities,
		Quorum:      cmd.Quorum,
		Config: ledger.Config{
			Sequenced:   cmd.Sequenced,
			Roster:      cmd.Roster,
			PeriodStart: cmd.PeriodStart,
			PeriodEnd:   cmd.PeriodEnd,
		},
	}, nil
}

// create hosts a new top-level entity. The caller must be one of its authorities.
func (e *Engine) create(call ledger.Call, cmd *command.Command) (*command.Response, error) {
	desc, err := descriptor(cmd)
	if err != nil {
		return nil, err
	}

	if !slices.Contains(desc.Authorities, call.Caller) {
		return nil, fmt.Errorf("%w: creator must be an authority of the new entity", ledger.ErrUnauthorized)
	}

	e.createMu.Lock()
	defer e.createMu.Unlock()

	if _, err := e.dir.Create(desc); err != nil {
		return nil, err
	}

	e.entityCreated(desc)

	return &command.Response{}, nil
}

// spawn creates a child entity and registers it with the target composite
// in one step. The caller must be an authority of the target.
func (e *Engine) spawn(call ledger.Call, cmd *command.Command) (*command.Response, error) {
	desc, err := descriptor(cmd)
	if err != nil {
		return nil, err
	}

	parent, err := e.dir.Composite(cmd.Target)
	if err != nil {
		return nil, err
	}

	e.createMu.Lock()
	defer e.createMu.Unlock()

	if _, err := e.dir.Spawn(desc, parent, call); err != nil {
		return nil, err
	}

	e.entityCreated(desc)

	return &command.Response{}, nil
}

// entityCreated logs and counts a new entity.
func (e *Engine) entityCreated(desc directory.Descriptor) {
	logger.Info("entity created",
		"id", desc.ID.Short(),
		"kind", desc.Kind,
		"authorities", len(desc.Authorities),
		"quorum", desc.Quorum,
	)

	if e.metrics != nil {
		e.metrics.SetEntities(e.dir.Len())
	}
}
