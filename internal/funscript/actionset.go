package funscript

import (
	"iter"
	"slices"
	"sort"
)

// ActionSet keeps actions sorted ascending by timestamp with no two actions
// sharing a timestamp. It is not safe for concurrent use.
type ActionSet struct {
	actions  []Action
	revision uint64
}

// NewActionSet builds a set from actions in any order. Later duplicates
// replace earlier ones.
func NewActionSet(actions ...Action) *ActionSet {
	s := &ActionSet{actions: make([]Action, 0, len(actions))}
	for _, a := range actions {
		s.Upsert(a)
	}
	return s
}

// Len returns the number of actions.
func (s *ActionSet) Len() int {
	return len(s.actions)
}

// Empty reports whether the set holds no actions.
func (s *ActionSet) Empty() bool {
	return len(s.actions) == 0
}

// At returns the action at index i. It panics if i is out of range.
func (s *ActionSet) At(i int) Action {
	return s.actions[i]
}

// Front returns the first action. It panics on an empty set.
func (s *ActionSet) Front() Action {
	return s.actions[0]
}

// Back returns the last action. It panics on an empty set.
func (s *ActionSet) Back() Action {
	return s.actions[len(s.actions)-1]
}

// Revision changes on every mutation. Cached segment indices computed against
// an older revision must be discarded.
func (s *ActionSet) Revision() uint64 {
	return s.revision
}

// LowerBound returns the index of the first action with AtS >= atS.
func (s *ActionSet) LowerBound(atS float64) int {
	return sort.Search(len(s.actions), func(i int) bool {
		return s.actions[i].AtS >= atS
	})
}

// UpperBound returns the index of the first action with AtS > atS.
func (s *ActionSet) UpperBound(atS float64) int {
	return sort.Search(len(s.actions), func(i int) bool {
		return s.actions[i].AtS > atS
	})
}

// Find returns the index of the action at exactly atS.
func (s *ActionSet) Find(atS float64) (int, bool) {
	i := s.LowerBound(atS)
	if i < len(s.actions) && s.actions[i].AtS == atS {
		return i, true
	}
	return i, false
}

// Upsert inserts a, or overwrites the action already stored at a.AtS.
// It reports whether a new element was inserted.
func (s *ActionSet) Upsert(a Action) bool {
	s.revision++
	i, found := s.Find(a.AtS)
	if found {
		s.actions[i] = a
		return false
	}
	s.actions = slices.Insert(s.actions, i, a)
	return true
}

// Remove deletes the action sharing a's timestamp. Missing actions are ignored.
func (s *ActionSet) Remove(a Action) bool {
	return s.RemoveAt(a.AtS)
}

// RemoveAt deletes the action at atS if present.
func (s *ActionSet) RemoveAt(atS float64) bool {
	i, found := s.Find(atS)
	if !found {
		return false
	}
	s.actions = slices.Delete(s.actions, i, i+1)
	s.revision++
	return true
}

// Clear removes every action.
func (s *ActionSet) Clear() {
	s.actions = s.actions[:0]
	s.revision++
}

// Range returns the actions with from <= AtS < to. The result aliases the set
// and is only valid until the next mutation.
func (s *ActionSet) Range(from, to float64) []Action {
	if to <= from {
		return nil
	}
	lo := s.LowerBound(from)
	hi := s.LowerBound(to)
	return s.actions[lo:hi:hi]
}

// Actions returns a copy of all actions in order.
func (s *ActionSet) Actions() []Action {
	return slices.Clone(s.actions)
}

// All iterates index/action pairs in timestamp order.
func (s *ActionSet) All() iter.Seq2[int, Action] {
	return func(yield func(int, Action) bool) {
		for i, a := range s.actions {
			if !yield(i, a) {
				return
			}
		}
	}
}
