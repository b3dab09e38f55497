// Package geo traces scripts as polylines in (seconds, value) space so that
// their shape can be measured with simplefeatures.
package geo

import (
	"errors"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/OpenFunscripter/playback/internal/funscript"
	"github.com/OpenFunscripter/playback/internal/spline"
)

// ErrTooFewActions is returned when a script has no segment to trace.
var ErrTooFewActions = errors.New("at least 2 actions are required")

// Sampler evaluates a script at a time in seconds.
type Sampler interface {
	Sample(actions *funscript.ActionSet, atS float64) float64
}

// RawLine is the polyline through the actions themselves.
func RawLine(actions *funscript.ActionSet) (geom.LineString, error) {
	if actions.Len() < 2 {
		return geom.LineString{}, ErrTooFewActions
	}
	flat := make([]float64, 0, actions.Len()*2)
	for _, a := range actions.All() {
		flat = append(flat, a.AtS, a.Value())
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY)), nil
}

// Trace samples the curve every stepS seconds from the first to the last
// action. Every action timestamp is included as a vertex so curved and
// linear segments keep their corners.
func Trace(actions *funscript.ActionSet, s Sampler, stepS float64) (geom.LineString, error) {
	if actions.Len() < 2 {
		return geom.LineString{}, ErrTooFewActions
	}
	if s == nil {
		s = spline.New()
	}
	if stepS <= 0 || math.IsNaN(stepS) {
		stepS = 0.01
	}

	front, back := actions.Front().AtS, actions.Back().AtS
	flat := make([]float64, 0, int((back-front)/stepS)*2+actions.Len()*2+2)
	next := 1
	for x := front; x < back; x += stepS {
		for next < actions.Len() && actions.At(next).AtS <= x {
			a := actions.At(next)
			if a.AtS < x {
				flat = append(flat, a.AtS, s.Sample(actions, a.AtS))
			}
			next++
		}
		flat = append(flat, x, s.Sample(actions, x))
	}
	for ; next < actions.Len(); next++ {
		a := actions.At(next)
		flat = append(flat, a.AtS, s.Sample(actions, a.AtS))
	}

	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY)), nil
}

// Stats summarizes a traced line.
type Stats struct {
	Points   int
	Length   float64 // euclidean length in (seconds, value) space
	Travel   float64 // total value change, i.e. stroke distance in full ranges
	Duration float64 // seconds
}

// Measure computes the Stats of ls.
func Measure(ls geom.LineString) Stats {
	seq := ls.Coordinates()
	st := Stats{
		Points: seq.Length(),
		Length: ls.Length(),
	}
	if st.Points == 0 {
		return st
	}
	for i := 1; i < seq.Length(); i++ {
		st.Travel += math.Abs(seq.GetXY(i).Y - seq.GetXY(i-1).Y)
	}
	st.Duration = seq.GetXY(seq.Length()-1).X - seq.GetXY(0).X
	return st
}
