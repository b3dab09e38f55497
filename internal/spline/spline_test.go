package spline

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenFunscripter/playback/internal/funscript"
)

func linearSet() *funscript.ActionSet {
	return funscript.NewActionSet(
		funscript.NewAction(0, 0),
		funscript.NewAction(1, 100),
	)
}

func handleAction(atS float64, pos int16, tangent, weight float64) funscript.Action {
	a := funscript.NewAction(atS, pos)
	a.InTangent, a.OutTangent = tangent, tangent
	a.InWeight, a.OutWeight = weight, weight
	a.TangentMode = funscript.Both
	a.WeightMode = funscript.Both
	return a
}

// mixedSet alternates linear and curved segments with varied weights.
func mixedSet() *funscript.ActionSet {
	s := funscript.NewActionSet()
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 40; i++ {
		a := funscript.NewAction(float64(i)*0.35+r.Float64()*0.1, int16(r.Intn(101)))
		switch i % 4 {
		case 1:
			a = handleAction(a.AtS, a.Pos, 0.3, funscript.DefaultWeight)
		case 2:
			a = handleAction(a.AtS, a.Pos, -0.2, 0.25)
			a.WeightMode = funscript.Out
		case 3:
			a.OutTangent = 0.1
			a.TangentMode = funscript.Out
		}
		s.Upsert(a)
	}
	return s
}

func TestSample_EmptyAndSingle(t *testing.T) {
	s := New()

	assert.Equal(t, 0.0, s.Sample(funscript.NewActionSet(), 3))

	one := funscript.NewActionSet(funscript.NewAction(2, 42))
	assert.InDelta(t, 0.42, s.Sample(one, 0), 1e-12)
	assert.InDelta(t, 0.42, s.Sample(one, 2), 1e-12)
	assert.InDelta(t, 0.42, s.Sample(one, 9), 1e-12)
}

func TestSample_LinearMidpoint(t *testing.T) {
	s := New()
	assert.InDelta(t, 0.50, s.Sample(linearSet(), 0.5), 1e-12)
}

func TestSample_DefaultWeightBezierMidpoint(t *testing.T) {
	set := funscript.NewActionSet(
		handleAction(0, 0, 0, funscript.DefaultWeight),
		handleAction(1, 100, 0, funscript.DefaultWeight),
	)
	s := New()
	assert.InDelta(t, 0.50, s.Sample(set, 0.5), 1e-9)
}

func TestSample_SymmetricWeightsMidpoint(t *testing.T) {
	set := funscript.NewActionSet(
		handleAction(0, 0, 0, 0.25),
		handleAction(1, 100, 0, 0.25),
	)
	s := New()
	assert.InDelta(t, 0.50, s.Sample(set, 0.5), 1e-6)
}

func TestSample_ExactAtActionTimestamps(t *testing.T) {
	set := mixedSet()
	s := New()
	for i, a := range set.All() {
		assert.Equal(t, a.Value(), s.Sample(set, a.AtS), "action %d", i)
	}
}

func TestSample_ClampsOutsideRange(t *testing.T) {
	set := funscript.NewActionSet(
		funscript.NewAction(1, 20),
		funscript.NewAction(2, 80),
		funscript.NewAction(3, 60),
	)
	s := New()

	assert.Equal(t, 0.2, s.Sample(set, 0))
	assert.Equal(t, 0.2, s.Sample(set, -100))
	assert.Equal(t, 0.6, s.Sample(set, 3.5))
	assert.Equal(t, 0.6, s.Sample(set, 1000))
}

func TestSample_LinearSegmentIsExact(t *testing.T) {
	set := funscript.NewActionSet(
		funscript.NewAction(0.25, 13),
		funscript.NewAction(1.75, 87),
	)
	x0, y0 := 0.25, 0.13
	x1, y1 := 1.75, 0.87

	s := New()
	for x := x0; x <= x1; x += 0.01 {
		want := y0 + (y1-y0)*(x-x0)/(x1-x0)
		assert.InDelta(t, want, s.Sample(set, x), 1e-12, "x=%v", x)
	}
}

func TestSample_CachePathsAgree(t *testing.T) {
	set := mixedSet()
	end := set.Back().AtS + 0.5

	var queries []float64
	for x := -0.5; x < end; x += 0.013 {
		queries = append(queries, x)
	}

	sequential := New()
	want := make([]float64, len(queries))
	for i, q := range queries {
		want[i] = sequential.Sample(set, q)
	}

	random := New()
	order := rand.New(rand.NewSource(42)).Perm(len(queries))
	for _, i := range order {
		assert.Equal(t, want[i], random.Sample(set, queries[i]), "query %v", queries[i])
	}

	for i, q := range queries {
		assert.Equal(t, want[i], New().Sample(set, q), "cold query %v", q)
	}
}

func TestSample_AdvancesCacheDuringForwardPlayback(t *testing.T) {
	set := funscript.NewActionSet(
		funscript.NewAction(0, 0),
		funscript.NewAction(1, 100),
		funscript.NewAction(2, 0),
		funscript.NewAction(3, 100),
	)
	s := New()

	s.Sample(set, 0.5)
	assert.Equal(t, 0, s.CachedIndex())
	s.Sample(set, 1.5)
	assert.Equal(t, 1, s.CachedIndex(), "near hit")
	s.Sample(set, 2.5)
	assert.Equal(t, 2, s.CachedIndex(), "near hit")
	s.Sample(set, 0.2)
	assert.Equal(t, 0, s.CachedIndex(), "miss recomputes")

	s.Invalidate()
	assert.Equal(t, 0, s.CachedIndex())
}

func TestSample_MutationInvalidatesCache(t *testing.T) {
	set := funscript.NewActionSet(
		funscript.NewAction(0, 0),
		funscript.NewAction(1, 100),
		funscript.NewAction(2, 0),
		funscript.NewAction(3, 100),
	)
	s := New()
	s.Sample(set, 2.5)
	require.Equal(t, 2, s.CachedIndex())

	set.RemoveAt(3)
	set.RemoveAt(2)

	assert.Equal(t, 1.0, s.Sample(set, 2.5))
	assert.InDelta(t, 0.5, s.Sample(set, 0.5), 1e-12)
}

func TestSample_SwitchingSetsResetsCache(t *testing.T) {
	long := mixedSet()
	short := linearSet()
	s := New()

	s.Sample(long, long.Back().AtS-0.01)
	assert.InDelta(t, 0.25, s.Sample(short, 0.25), 1e-12)
}

func TestSampleAtIndex(t *testing.T) {
	set := funscript.NewActionSet(
		funscript.NewAction(0, 0),
		funscript.NewAction(1, 100),
		funscript.NewAction(2, 40),
	)

	assert.InDelta(t, 0.5, SampleAtIndex(set, 0, 0.5), 1e-12)
	assert.InDelta(t, 0.7, SampleAtIndex(set, 1, 1.5), 1e-12)

	assert.Equal(t, 0.4, SampleAtIndex(set, 0, 1.5), "time outside segment")
	assert.Equal(t, 0.4, SampleAtIndex(set, 2, 2), "last index has no segment")
	assert.Equal(t, 0.4, SampleAtIndex(set, -1, 0.5))
	assert.Equal(t, 0.0, SampleAtIndex(funscript.NewActionSet(), 0, 0))

	s := New()
	assert.InDelta(t, 0.5, s.SampleAtIndex(set, 0, 0.5), 1e-12)
	assert.Equal(t, 0, s.CachedIndex(), "index variant leaves the cache alone")
}

func TestSampleLinear_IgnoresHandles(t *testing.T) {
	set := funscript.NewActionSet(
		handleAction(0, 0, 0.8, 0.1),
		handleAction(1, 100, 0.8, 0.1),
	)
	assert.InDelta(t, 0.3, SampleLinear(set, 0.3), 1e-12)
	assert.Equal(t, 0.0, SampleLinear(set, -1))
	assert.Equal(t, 1.0, SampleLinear(set, 2))
	assert.Equal(t, 0.0, SampleLinear(funscript.NewActionSet(), 1))
}

func bx(t, w0, w1s float64) float64 {
	ts := 1 - t
	return 3*ts*ts*t*w0 + 3*ts*t*t*w1s + t*t*t
}

func TestSolveTime_Converges(t *testing.T) {
	weights := [][2]float64{{0.2, 0.4}, {0.25, 0.25}, {0.5, 0.3}}
	for _, w := range weights {
		w0, w1s := w[0], 1-w[1]
		for tx := 0.05; tx < 1; tx += 0.1 {
			got, ok := solveTime(tx, w0, w1s, DefaultMaxIterations)
			require.True(t, ok, "w=%v tx=%v", w, tx)
			assert.InDelta(t, tx, bx(got, w0, w1s), 1e-5, "w=%v tx=%v", w, tx)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		}
	}
}

func TestSolveTime_IterationCap(t *testing.T) {
	_, ok := solveTime(0.2, 0.2, 0.6, 1)
	assert.False(t, ok)
}

func TestSample_NonConvergenceFallsBackToUnweighted(t *testing.T) {
	a0 := handleAction(0, 0, 0.2, 0.2)
	a1 := handleAction(1, 100, 0.1, 0.4)
	set := funscript.NewActionSet(a0, a1)

	s := New(WithMaxIterations(1))
	got := s.Sample(set, 0.2)

	// y(t) with t = tx
	tt, ts := 0.2, 0.8
	m0, m1 := tangentSlope(0.2), tangentSlope(0.1)
	want := 3*ts*ts*tt*0.2*m0 + 3*ts*tt*tt*(1-0.4*m1) + tt*tt*tt
	assert.InDelta(t, want, got, 1e-12)
	assert.False(t, math.IsNaN(got))
}

func TestTangentSlope(t *testing.T) {
	assert.Equal(t, 0.0, tangentSlope(0))
	assert.False(t, math.IsInf(tangentSlope(1), 0))
	assert.Equal(t, tangentSlope(1), tangentSlope(5), "clamped")
	assert.Less(t, tangentSlope(-1), 0.0)
}

func TestWithMaxIterations_IgnoresNonPositive(t *testing.T) {
	s := New(WithMaxIterations(0))
	assert.Equal(t, DefaultMaxIterations, s.maxIter)
	s = New(WithMaxIterations(5))
	assert.Equal(t, 5, s.maxIter)
}
