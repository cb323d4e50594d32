package action

import (
	"fmt"
	"sort"

	"github.com/gogins/csound-ac/internal/config"
)

// Catalog holds actions indexed by canonical ID, plus an index from every
// normalized alias to the owning ID.
// A Catalog is built once and then only read.
type Catalog struct {
	actions map[string]*Action
	names   map[string]string
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		actions: make(map[string]*Action),
		names:   make(map[string]string),
	}
}

// Add registers an action. The ID and every alias must be unique across the catalog.
func (c *Catalog) Add(a Action) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if _, exists := c.names[a.ID]; exists {
		return fmt.Errorf("action %q already registered", a.ID)
	}

	aliases := make([]string, 0, len(a.Aliases))
	for _, alias := range a.Aliases {
		n := Normalize(alias)
		if n == "" || n == a.ID {
			continue
		}
		if owner, exists := c.names[n]; exists {
			return fmt.Errorf("action %q: alias %q already used by %q", a.ID, alias, owner)
		}
		aliases = append(aliases, n)
	}
	a.Aliases = aliases

	stored := a
	c.actions[a.ID] = &stored
	c.names[a.ID] = a.ID
	for _, n := range aliases {
		c.names[n] = a.ID
	}
	return nil
}

// Remove deletes an action and its aliases. Missing IDs are ignored.
func (c *Catalog) Remove(id string) {
	a, ok := c.actions[id]
	if !ok {
		return
	}
	delete(c.actions, id)
	delete(c.names, id)
	for _, n := range a.Aliases {
		if c.names[n] == id {
			delete(c.names, n)
		}
	}
}

// Resolve looks up an action by any of its spellings.
func (c *Catalog) Resolve(name string) (*Action, bool) {
	id, ok := c.names[Normalize(name)]
	if !ok {
		return nil, false
	}
	a, ok := c.actions[id]
	return a, ok
}

// Get returns an action by canonical ID.
func (c *Catalog) Get(id string) (*Action, bool) {
	a, ok := c.actions[id]
	return a, ok
}

// All returns every action sorted by ID.
func (c *Catalog) All() []*Action {
	out := make([]*Action, 0, len(c.actions))
	for _, a := range c.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered actions.
func (c *Catalog) Len() int {
	return len(c.actions)
}

// Load builds the built-in catalog and applies configured overrides.
// An override with the ID of a built-in replaces it, inheriting the built-in's
// aliases and description unless it sets its own; disabled entries remove it.
func Load(overrides map[string]config.ActionConf) (*Catalog, error) {
	c := Builtin()

	ids := make([]string, 0, len(overrides))
	for id := range overrides {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, rawID := range ids {
		conf := overrides[rawID]
		id := Normalize(rawID)
		prev, replacing := c.Get(id)
		c.Remove(id)
		if conf.Disabled {
			continue
		}

		a := Action{
			ID:          id,
			Subcommand:  conf.Subcommand,
			URL:         conf.URL,
			Aliases:     conf.Aliases,
			Description: conf.Description,
		}
		if replacing {
			if len(a.Aliases) == 0 {
				a.Aliases = append([]string(nil), prev.Aliases...)
			}
			if a.Description == "" {
				a.Description = prev.Description
			}
		}
		switch {
		case conf.Subcommand != "" && conf.URL != "":
			return nil, fmt.Errorf("actions.%s: subcommand and url are mutually exclusive", rawID)
		case conf.URL != "":
			a.Kind = KindURL
		case conf.Subcommand != "":
			a.Kind = KindShell
		default:
			return nil, fmt.Errorf("actions.%s: one of subcommand or url is required", rawID)
		}

		if err := c.Add(a); err != nil {
			return nil, fmt.Errorf("actions.%s: %w", rawID, err)
		}
	}
	return c, nil
}
