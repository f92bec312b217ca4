package workflow

import (
	"fmt"
	"sort"
)

// StateInfo is one row of the states lookup table
type StateInfo struct {
	ID       State
	Name     string
	Terminal bool
}

// Catalog is the loaded states lookup table. States can be added to the
// table without recompiling, but every state the transition table refers to
// must be present.
type Catalog struct {
	states map[State]StateInfo
}

// NewCatalog builds a catalog from lookup rows and checks it covers all known states
func NewCatalog(rows []StateInfo) (*Catalog, error) {
	c := &Catalog{states: make(map[State]StateInfo, len(rows))}
	for _, row := range rows {
		c.states[row.ID] = row
	}

	var missing []State
	for _, s := range KnownStates() {
		if _, ok := c.states[s]; !ok {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: states table is missing %v", ErrUnknownState, missing)
	}
	return c, nil
}

// DefaultCatalog returns a catalog built from the compiled-in descriptions
func DefaultCatalog() *Catalog {
	rows := make([]StateInfo, 0, len(stateNames))
	for _, s := range KnownStates() {
		rows = append(rows, StateInfo{ID: s, Name: s.String(), Terminal: s.IsTerminal()})
	}
	c, _ := NewCatalog(rows)
	return c
}

// Contains reports whether the state exists in the lookup table
func (c *Catalog) Contains(s State) bool {
	_, ok := c.states[s]
	return ok
}

// Describe returns the human description for a state
func (c *Catalog) Describe(s State) string {
	if info, ok := c.states[s]; ok && info.Name != "" {
		return info.Name
	}
	return s.String()
}

// States returns the catalog rows ordered by identifier
func (c *Catalog) States() []StateInfo {
	rows := make([]StateInfo, 0, len(c.states))
	for _, info := range c.states {
		rows = append(rows, info)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}

func sortStates(states []State) {
	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })
}
