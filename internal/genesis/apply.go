package genesis

import (
	"fmt"

	"CredTree/internal/directory"
	"CredTree/internal/ledger"
	"CredTree/internal/logger"
	"CredTree/internal/sequence"
	"CredTree/internal/types"
)

// Apply creates the configured entities in dir, then attaches children and
// enrolls students on behalf of each entity's first authority. Every
// attachment and enrollment draws a sequence value from seq. It does nothing
// and returns false when dir already hosts entities.
func Apply(cfg *Config, dir *directory.Directory, seq *sequence.Counter, self types.Identity) (bool, error) {
	if dir.Len() > 0 {
		return false, nil
	}

	plans, err := cfg.resolve(self)
	if err != nil {
		return false, err
	}

	for _, p := range plans {
		if _, err := dir.Create(p.desc); err != nil {
			return false, fmt.Errorf("create %s:\n%w", p.desc.ID.Short(), err)
		}
	}

	for _, p := range plans {
		call := ledger.Call{Caller: p.desc.Authorities[0]}

		if len(p.children) > 0 {
			c, err := dir.Composite(p.desc.ID)
			if err != nil {
				return false, err
			}

			for _, child := range p.children {
				if call.Sequence, err = seq.Next(); err != nil {
					return false, err
				}

				if err := c.AddChild(call, child); err != nil {
					return false, fmt.Errorf("attach %s to %s:\n%w", child.Short(), p.desc.ID.Short(), err)
				}
			}
		}

		if len(p.students) > 0 {
			entry, err := dir.Get(p.desc.ID)
			if err != nil {
				return false, err
			}

			for _, s := range p.students {
				if call.Sequence, err = seq.Next(); err != nil {
					return false, err
				}

				if err := entry.Ledger.Enroll(call, s); err != nil {
					return false, fmt.Errorf("enroll %s on %s:\n%w", s.Short(), p.desc.ID.Short(), err)
				}
			}
		}
	}

	logger.Info("genesis applied", "entities", len(plans), "sequence", seq.Current())

	return true, nil
}
