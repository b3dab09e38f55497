// Package registry owns loaded action sets and hands out weak,
// generation-checked handles to them. A handle outlives the set it names
// without dangling: once the set is released, lookups report it as expired.
package registry

import (
	"fmt"

	"github.com/OpenFunscripter/playback/internal/funscript"
)

// Handle is a weak reference to a registered ActionSet. The zero Handle never
// resolves.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h was never issued.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

func (h Handle) String() string {
	if h.IsZero() {
		return "handle(none)"
	}
	return fmt.Sprintf("handle(%d@%d)", h.index, h.gen)
}

// Resolver maps handles to live action sets.
type Resolver interface {
	Resolve(h Handle) (*funscript.ActionSet, bool)
}

type slot struct {
	set  *funscript.ActionSet
	name string
	gen  uint32 // odd while occupied
}

// Registry is an arena of action sets. It is not safe for concurrent use;
// the host serializes access together with the playback loop.
type Registry struct {
	slots []slot
	free  []uint32
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Register stores set under name and returns a handle to it.
func (r *Registry) Register(name string, set *funscript.ActionSet) Handle {
	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{})
	}

	s := &r.slots[idx]
	s.gen++
	s.set = set
	s.name = name
	return Handle{index: idx, gen: s.gen}
}

// Resolve returns the set named by h, or false if it has been released.
func (r *Registry) Resolve(h Handle) (*funscript.ActionSet, bool) {
	if !r.Alive(h) {
		return nil, false
	}
	return r.slots[h.index].set, true
}

// Alive reports whether h still names a registered set.
func (r *Registry) Alive(h Handle) bool {
	if h.IsZero() || int(h.index) >= len(r.slots) {
		return false
	}
	s := r.slots[h.index]
	return s.gen == h.gen && s.gen%2 == 1
}

// Name returns the name the set was registered under.
func (r *Registry) Name(h Handle) (string, bool) {
	if !r.Alive(h) {
		return "", false
	}
	return r.slots[h.index].name, true
}

// Release drops the set named by h. Every outstanding copy of h expires.
// Releasing an expired handle is a no-op.
func (r *Registry) Release(h Handle) bool {
	if !r.Alive(h) {
		return false
	}
	s := &r.slots[h.index]
	s.gen++
	s.set = nil
	s.name = ""
	r.free = append(r.free, h.index)
	return true
}

// Len returns the number of live sets.
func (r *Registry) Len() int {
	return len(r.slots) - len(r.free)
}
