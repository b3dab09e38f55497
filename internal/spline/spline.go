// Package spline samples a continuous position signal from an action set.
//
// A Sampler keeps a single cached segment index. Playback usually moves
// forward in small steps, so most queries land in the cached segment or the
// one after it and never touch the binary search.
package spline

import (
	"github.com/OpenFunscripter/playback/internal/funscript"
)

// DefaultMaxIterations bounds the Bezier time solve.
const DefaultMaxIterations = 32

// Option configures a Sampler.
type Option func(*Sampler)

// WithMaxIterations sets the iteration cap of the Bezier time solve.
// Values below 1 keep the default.
func WithMaxIterations(n int) Option {
	return func(s *Sampler) {
		if n > 0 {
			s.maxIter = n
		}
	}
}

// Sampler maps query times to normalized positions. It is not safe for
// concurrent use; give every consumer its own Sampler.
type Sampler struct {
	cacheIdx int
	maxIter  int

	// cache key
	set      *funscript.ActionSet
	revision uint64
}

// New creates a Sampler.
func New(opts ...Option) *Sampler {
	s := &Sampler{maxIter: DefaultMaxIterations}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invalidate drops the cached segment.
func (s *Sampler) Invalidate() {
	s.cacheIdx = 0
}

// CachedIndex returns the segment index used by the last interpolated sample.
func (s *Sampler) CachedIndex() int {
	return s.cacheIdx
}

// Sample returns the position in [0,1] at time atS (seconds). Times outside
// the action range return the first or last value.
func (s *Sampler) Sample(actions *funscript.ActionSet, atS float64) float64 {
	if actions != s.set || actions.Revision() != s.revision {
		s.set = actions
		s.revision = actions.Revision()
		s.cacheIdx = 0
	}

	n := actions.Len()
	switch {
	case n == 0:
		return 0
	case n == 1:
		return actions.Front().Value()
	case s.cacheIdx < 0 || s.cacheIdx+1 >= n:
		s.cacheIdx = 0
	}

	// cache hit
	if actions.At(s.cacheIdx).AtS <= atS && actions.At(s.cacheIdx+1).AtS >= atS {
		return s.interpolate(actions, s.cacheIdx, atS)
	}

	// next segment, the common case during forward playback
	if s.cacheIdx+2 < n && actions.At(s.cacheIdx+1).AtS <= atS && actions.At(s.cacheIdx+2).AtS >= atS {
		s.cacheIdx++
		return s.interpolate(actions, s.cacheIdx, atS)
	}

	it := actions.UpperBound(atS)
	switch it {
	case n:
		return actions.Back().Value()
	case 0:
		return actions.Front().Value()
	}
	s.cacheIdx = it - 1
	return s.interpolate(actions, s.cacheIdx, atS)
}

// SampleAtIndex interpolates inside segment [index, index+1] without touching
// any cache. Out of range indices or times return the last action's value.
func (s *Sampler) SampleAtIndex(actions *funscript.ActionSet, index int, atS float64) float64 {
	return sampleAtIndex(actions, index, atS, s.maxIter)
}

// SampleAtIndex is the stateless form of Sampler.SampleAtIndex using the
// default iteration cap.
func SampleAtIndex(actions *funscript.ActionSet, index int, atS float64) float64 {
	return sampleAtIndex(actions, index, atS, DefaultMaxIterations)
}

func sampleAtIndex(actions *funscript.ActionSet, index int, atS float64, maxIter int) float64 {
	n := actions.Len()
	if n == 0 {
		return 0
	}
	if index >= 0 && index+1 < n {
		a0, a1 := actions.At(index), actions.At(index+1)
		if a0.AtS <= atS && a1.AtS >= atS {
			return interpolatePair(a0, a1, atS, maxIter)
		}
	}
	return actions.Back().Value()
}

// SampleLinear interpolates straight lines between actions, ignoring every
// handle. It is the raw view of the script.
func SampleLinear(actions *funscript.ActionSet, atS float64) float64 {
	n := actions.Len()
	if n == 0 {
		return 0
	}
	it := actions.UpperBound(atS)
	switch it {
	case n:
		return actions.Back().Value()
	case 0:
		return actions.Front().Value()
	}
	a0, a1 := actions.At(it-1), actions.At(it)
	tx := (atS - a0.AtS) / (a1.AtS - a0.AtS)
	return a0.Value() + (a1.Value()-a0.Value())*tx
}

func (s *Sampler) interpolate(actions *funscript.ActionSet, i int, atS float64) float64 {
	last := actions.Len() - 1
	i0 := min(max(i, 0), last)
	i1 := min(max(i+1, 0), last)
	return interpolatePair(actions.At(i0), actions.At(i1), atS, s.maxIter)
}
