// Package genesis seeds an empty store with the entities described in a
// JSON file: their authority sets, options, composite children and rosters.
package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"CredTree/internal/directory"
	"CredTree/internal/ledger"
	"CredTree/internal/types"
)

// selfKeyword stands for the node's own identity in authority lists.
const selfKeyword = "self"

// Config is the parsed genesis file.
type Config struct {
	Entities []Entity `json:"entities"`
}

// Entity describes one entity to create.
type Entity struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Authorities []string `json:"authorities"`
	Quorum      int      `json:"quorum"`
	Sequenced   bool     `json:"sequenced"`
	Roster      bool     `json:"roster"`
	PeriodStart uint64   `json:"periodStart"`
	PeriodEnd   uint64   `json:"periodEnd"`
	Children    []string `json:"children"`
	Students    []string `json:"students"`
}

// Load reads and parses a genesis file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis:\n%w", err)
	}

	return Parse(data)
}

// Parse decodes genesis JSON. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse genesis:\n%w", err)
	}

	if len(cfg.Entities) == 0 {
		return nil, fmt.Errorf("genesis declares no entities")
	}

	return &cfg, nil
}

// plan is a validated entity ready for creation.
type plan struct {
	desc     directory.Descriptor
	children []types.Identity
	students []types.Identity
}

// resolve validates the config and computes descriptors, including parents.
func (c *Config) resolve(self types.Identity) ([]plan, error) {
	plans := make([]plan, 0, len(c.Entities))
	index := make(map[types.Identity]int, len(c.Entities))

	for i, e := range c.Entities {
		p, err := e.plan(self)
		if err != nil {
			return nil, fmt.Errorf("entity %d:\n%w", i, err)
		}

		if _, dup := index[p.desc.ID]; dup {
			return nil, fmt.Errorf("entity %d: duplicate id %s", i, p.desc.ID.Short())
		}

		index[p.desc.ID] = i
		plans = append(plans, p)
	}

	for i := range plans {
		for _, child := range plans[i].children {
			j, ok := index[child]
			if !ok {
				return nil, fmt.Errorf("entity %s: child %s is not declared", plans[i].desc.ID.Short(), child.Short())
			}

			if !plans[j].desc.Parent.IsZero() {
				return nil, fmt.Errorf("entity %s has two parents", child.Short())
			}

			plans[j].desc.Parent = plans[i].desc.ID
		}
	}

	return plans, nil
}

// plan parses one entity.
func (e Entity) plan(self types.Identity) (plan, error) {
	id, err := types.ParseIdentity(e.ID)
	if err != nil {
		return plan{}, err
	}

	kind := directory.KindLeaf
	if e.Kind != "" {
		if kind, err = directory.ParseKind(e.Kind); err != nil {
			return plan{}, err
		}
	}

	auths := make([]types.Identity, 0, len(e.Authorities))
	for _, s := range e.Authorities {
		if s == selfKeyword {
			if self.IsZero() {
				return plan{}, fmt.Errorf("%q used without a node identity", selfKeyword)
			}
			auths = append(auths, self)
			continue
		}

		a, err := types.ParseIdentity(s)
		if err != nil {
			return plan{}, fmt.Errorf("authority:\n%w", err)
		}
		auths = append(auths, a)
	}

	children, err := parseIdentities(e.Children)
	if err != nil {
		return plan{}, fmt.Errorf("children:\n%w", err)
	}

	if len(children) > 0 && kind != directory.KindComposite {
		return plan{}, fmt.Errorf("%w: leaf %s declares children", directory.ErrNotComposite, id.Short())
	}

	students, err := parseIdentities(e.Students)
	if err != nil {
		return plan{}, fmt.Errorf("students:\n%w", err)
	}

	if len(students) > 0 && !e.Roster {
		return plan{}, fmt.Errorf("%w: %s lists students without a roster", ledger.ErrNoRoster, id.Short())
	}

	return plan{
		desc: directory.Descriptor{
			ID:          id,
			Kind:        kind,
			Authorities: auths,
			Quorum:      e.Quorum,
			Config: ledger.Config{
				Sequenced:   e.Sequenced,
				Roster:      e.Roster,
				PeriodStart: e.PeriodStart,
				PeriodEnd:   e.PeriodEnd,
			},
		},
		children: children,
		students: students,
	}, nil
}

func parseIdentities(in []string) ([]types.Identity, error) {
	out := make([]types.Identity, 0, len(in))
	for _, s := range in {
		id, err := types.ParseIdentity(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
