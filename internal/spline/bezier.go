package spline

import (
	"math"

	"github.com/OpenFunscripter/playback/internal/funscript"
)

const (
	// float32Epsilon matches the precision actions are stored at.
	float32Epsilon = 1.1920929e-07
	tolerance      = 10 * float32Epsilon

	maxTangent = 0.999
	maxWeight  = 0.999
)

// segment carries one interpolation interval in local coordinates.
type segment struct {
	x0, y0, m0, w0 float64
	x1, y1, m1, w1 float64
}

// isLinear reports whether neither facing handle of the pair is active.
func isLinear(a0, a1 funscript.Action) bool {
	return !a0.TangentMode.HasOut() && !a1.TangentMode.HasIn()
}

func newSegment(a0, a1 funscript.Action) segment {
	s := segment{
		x0: a0.AtS, y0: a0.Value(),
		x1: a1.AtS, y1: a1.Value(),
		w0: funscript.DefaultWeight,
		w1: funscript.DefaultWeight,
	}
	if a0.TangentMode.HasOut() {
		s.m0 = a0.OutTangent
	}
	if a1.TangentMode.HasIn() {
		s.m1 = a1.InTangent
	}
	if a0.WeightMode.HasOut() {
		s.w0 = a0.OutWeight
	}
	if a1.WeightMode.HasIn() {
		s.w1 = a1.InWeight
	}
	return s
}

// interpolatePair evaluates the curve between a0 and a1 at time x.
func interpolatePair(a0, a1 funscript.Action, x float64, maxIter int) float64 {
	y0, y1 := a0.Value(), a1.Value()
	dx := a1.AtS - a0.AtS
	if dx <= 0 {
		return y0
	}

	tx := (x - a0.AtS) / dx
	switch {
	case tx <= 0:
		return y0
	case tx >= 1:
		return y1
	}

	if isLinear(a0, a1) {
		return y0 + (y1-y0)*tx
	}
	return newSegment(a0, a1).bezier(tx, maxIter)
}

// tangentSlope maps a stored tangent in [-1,1] to a finite slope; ±1 is a
// near-vertical handle.
func tangentSlope(m float64) float64 {
	return math.Tan(math.Pi / 2 * clamp(m, -maxTangent, maxTangent))
}

// bezier evaluates the weighted cubic at normalized time tx in (0,1).
func (s segment) bezier(tx float64, maxIter int) float64 {
	dx := s.x1 - s.x0
	dy := s.y1 - s.y0

	m0 := tangentSlope(s.m0)
	m1 := tangentSlope(s.m1)
	w0 := clamp(s.w0, 0, maxWeight)
	w1 := clamp(s.w1, 0, maxWeight)

	t := tx
	if !isDefaultWeight(w0) || !isDefaultWeight(w1) {
		if solved, ok := solveTime(tx, w0, 1-w1, maxIter); ok {
			t = solved
		}
	}

	ts := 1 - t
	t2 := t * t
	return s.y0 + 3*ts*ts*t*w0*m0*dx + 3*ts*t2*(dy-w1*m1*dx) + t2*t*dy
}

func isDefaultWeight(w float64) bool {
	return math.Abs(w-funscript.DefaultWeight) <= tolerance
}

// solveTime finds the curve parameter t in [0,1] whose horizontal component
//
//	B(t) = 3(1-t)²t·w0 + 3(1-t)t²·w1s + t³
//
// equals tx, using third order Householder steps from t=0.5. It reports false
// when the iteration does not converge within maxIter steps.
func solveTime(tx, w0, w1s float64, maxIter int) (float64, bool) {
	t := 0.5
	for i := 0; i < maxIter; i++ {
		ts := 1 - t
		t2 := t * t
		ts2 := ts * ts

		fg := 3*ts2*t*w0 + 3*ts*t2*w1s + t2*t - tx
		if math.Abs(fg) < tolerance {
			return t, true
		}

		fpg := 3*ts2*w0 + 6*ts*t*(w1s-w0) + 3*t2*(1-w1s)
		fppg := 6*ts*(w1s-2*w0) + 6*t*(1-2*w1s+w0)
		fpppg := 18*w0 - 18*w1s + 6

		fg2 := fg * fg
		fpg2 := fpg * fpg
		den := 6*fpg2*fpg - 6*fg*fpg*fppg + fg2*fpppg
		if den == 0 {
			return 0, false
		}
		step := (6*fg*fpg2 - 3*fg2*fppg) / den
		if math.IsNaN(step) || math.IsInf(step, 0) {
			return 0, false
		}
		t = clamp(t-step, 0, 1)
	}
	return 0, false
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
