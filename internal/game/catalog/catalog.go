// Package catalog defines the set of game kinds the server coordinates.
// Kinds are loaded from YAML content files, with a built-in fallback set.
package catalog

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownKind is returned when a game kind is not in the catalog.
var ErrUnknownKind = errors.New("unknown game kind")

// Kind describes a playable game kind. The server never interprets game
// rules; a Kind only carries the metadata the coordinator needs.
type Kind struct {
	// ID is the wire identifier (e.g. "chess", "checkers", "rps").
	ID string
	// Name is the human-readable display name.
	Name string
	// TurnBased controls whether sessions of this kind carry a turn marker.
	// Non-turn-based kinds resolve rounds via simultaneous choices.
	TurnBased bool
}

// Validate checks the kind's invariants.
//
// Postcondition: Returns nil if the kind is well-formed.
func (k Kind) Validate() error {
	if k.ID == "" {
		return errors.New("kind id must not be empty")
	}
	if k.Name == "" {
		return fmt.Errorf("kind %q: name must not be empty", k.ID)
	}
	return nil
}

// Catalog is an immutable lookup table of game kinds. Built once at
// startup; safe for concurrent reads.
type Catalog struct {
	kinds map[string]Kind
}

// New builds a Catalog from the given kinds.
//
// Precondition: each kind must pass Validate; IDs must be unique.
// Postcondition: Returns a Catalog containing every kind, or a non-nil error.
func New(kinds []Kind) (*Catalog, error) {
	m := make(map[string]Kind, len(kinds))
	for _, k := range kinds {
		if err := k.Validate(); err != nil {
			return nil, err
		}
		if _, dup := m[k.ID]; dup {
			return nil, fmt.Errorf("duplicate kind id %q", k.ID)
		}
		m[k.ID] = k
	}
	return &Catalog{kinds: m}, nil
}

// Default returns the built-in catalog used when no content directory
// is configured.
func Default() *Catalog {
	c, err := New([]Kind{
		{ID: "chess", Name: "Chess", TurnBased: true},
		{ID: "checkers", Name: "Checkers", TurnBased: true},
		{ID: "rps", Name: "Rock Paper Scissors", TurnBased: false},
	})
	if err != nil {
		panic(err) // built-in definitions are statically valid
	}
	return c
}

// Get returns the kind with the given id.
//
// Postcondition: Returns the Kind, or ErrUnknownKind if absent.
func (c *Catalog) Get(id string) (Kind, error) {
	k, ok := c.kinds[id]
	if !ok {
		return Kind{}, fmt.Errorf("%w: %q", ErrUnknownKind, id)
	}
	return k, nil
}

// Has reports whether the catalog contains the given kind id.
func (c *Catalog) Has(id string) bool {
	_, ok := c.kinds[id]
	return ok
}

// IDs returns all kind ids in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.kinds))
	for id := range c.kinds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of kinds in the catalog.
func (c *Catalog) Len() int {
	return len(c.kinds)
}
