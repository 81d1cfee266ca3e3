// Package variant holds the in-memory variant store: for every turn of a
// conversation and each role within it, the ordered list of generated
// texts and the index of the one currently shown in the transcript.
//
// Each variant carries both the internal (raw) and the visible
// (display-safe) text, so the two views always grow and move together.
package variant

import (
	"fmt"
	"strings"
)

// Role selects the sub-message of a turn.
type Role int

const (
	RoleUser      Role = 0
	RoleAssistant Role = 1
)

// Valid reports whether r addresses one of the two slots of an entry.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ParseRole accepts "user"/"assistant" (also "bot") or the numeric form.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "0":
		return RoleUser, nil
	case "assistant", "bot", "1":
		return RoleAssistant, nil
	default:
		return 0, fmt.Errorf("unknown role %q (valid: user, assistant)", s)
	}
}

// Pair is one variant in both textual views.
type Pair struct {
	Internal string
	Visible  string
}

// Complete reports whether both views carry text. Incomplete pairs come
// from partially written cache files and are never mirrored.
func (p Pair) Complete() bool {
	return p.Internal != "" && p.Visible != ""
}

// Slot is one role's worth of variants for one turn.
// Selected is meaningless while Variants is empty.
type Slot struct {
	Variants []Pair
	Selected int
}

// Entry is a turn's pair of slots, indexed by Role.
type Entry [2]Slot

// Position is what the renderer needs to draw navigation affordances.
type Position struct {
	Selected int
	Total    int
}

// TurnPositions holds the positions of both roles of one turn.
type TurnPositions [2]Position

// Store is a sparse, growable sequence of entries. A nil entry is a turn
// that has not been materialized yet.
type Store struct {
	entries []*Entry
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Len is the current length of the sequence, absent entries included.
func (s *Store) Len() int {
	return len(s.entries)
}

// EnsureLength grows the sequence with absent entries so that index turn
// exists. It never shrinks.
func (s *Store) EnsureLength(turn int) {
	if turn < len(s.entries) || turn < 0 {
		return
	}
	grown := make([]*Entry, turn+1)
	copy(grown, s.entries)
	s.entries = grown
}

// EnsureEntry materializes an empty entry at turn if it is absent.
// EnsureLength must have been applied first.
func (s *Store) EnsureEntry(turn int) {
	if turn < 0 || turn >= len(s.entries) {
		return
	}
	if s.entries[turn] == nil {
		s.entries[turn] = &Entry{}
	}
}

// Present reports whether turn has a materialized entry.
func (s *Store) Present(turn int) bool {
	return s.slot(turn, RoleUser) != nil
}

// AppendVariant adds a new variant to (turn, role) and selects it.
// It returns false when the entry has not been materialized.
func (s *Store) AppendVariant(turn int, role Role, internal, visible string) bool {
	slot := s.slot(turn, role)
	if slot == nil {
		return false
	}
	slot.Variants = append(slot.Variants, Pair{Internal: internal, Visible: visible})
	slot.Selected = len(slot.Variants) - 1
	return true
}

// PositionsOf returns the selected index and variant count of (turn, role).
// Anything not navigable yields the zero Position.
func (s *Store) PositionsOf(turn int, role Role) Position {
	slot := s.slot(turn, role)
	if slot == nil || len(slot.Variants) == 0 {
		return Position{}
	}
	return Position{Selected: slot.Selected, Total: len(slot.Variants)}
}

// Positions returns PositionsOf for both roles of the first n turns.
func (s *Store) Positions(n int) []TurnPositions {
	if n < 0 {
		n = 0
	}
	out := make([]TurnPositions, n)
	for i := range out {
		out[i] = TurnPositions{s.PositionsOf(i, RoleUser), s.PositionsOf(i, RoleAssistant)}
	}
	return out
}

// Select moves the selection of (turn, role) to index and returns the
// variant found there.
func (s *Store) Select(turn int, role Role, index int) (Pair, bool) {
	slot := s.slot(turn, role)
	if slot == nil || index < 0 || index >= len(slot.Variants) {
		return Pair{}, false
	}
	slot.Selected = index
	return slot.Variants[index], true
}

// Variant returns the variant at index without changing the selection.
func (s *Store) Variant(turn int, role Role, index int) (Pair, bool) {
	slot := s.slot(turn, role)
	if slot == nil || index < 0 || index >= len(slot.Variants) {
		return Pair{}, false
	}
	return slot.Variants[index], true
}

// Variants returns a copy of every variant recorded for (turn, role).
func (s *Store) Variants(turn int, role Role) []Pair {
	slot := s.slot(turn, role)
	if slot == nil {
		return nil
	}
	return append([]Pair(nil), slot.Variants...)
}

// Stats counts materialized turns and recorded variants.
func (s *Store) Stats() (turns, variants int) {
	for _, e := range s.entries {
		if e == nil {
			continue
		}
		turns++
		variants += len(e[RoleUser].Variants) + len(e[RoleAssistant].Variants)
	}
	return turns, variants
}

// Clone returns a deep copy.
func (s *Store) Clone() *Store {
	c := &Store{entries: make([]*Entry, len(s.entries))}
	for i, e := range s.entries {
		if e == nil {
			continue
		}
		ce := &Entry{}
		for r := range e {
			ce[r] = Slot{
				Variants: append([]Pair(nil), e[r].Variants...),
				Selected: e[r].Selected,
			}
		}
		c.entries[i] = ce
	}
	return c
}

// Equal compares variant lists and selections. Selection of an empty
// slot is ignored.
func (s *Store) Equal(o *Store) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.entries) != len(o.entries) {
		return false
	}
	for i := range s.entries {
		a, b := s.entries[i], o.entries[i]
		if (a == nil) != (b == nil) {
			return false
		}
		if a == nil {
			continue
		}
		for r := range a {
			if len(a[r].Variants) != len(b[r].Variants) {
				return false
			}
			if len(a[r].Variants) > 0 && a[r].Selected != b[r].Selected {
				return false
			}
			for j := range a[r].Variants {
				if a[r].Variants[j] != b[r].Variants[j] {
					return false
				}
			}
		}
	}
	return true
}

func (s *Store) slot(turn int, role Role) *Slot {
	if !role.Valid() || turn < 0 || turn >= len(s.entries) {
		return nil
	}
	e := s.entries[turn]
	if e == nil {
		return nil
	}
	return &e[role]
}
