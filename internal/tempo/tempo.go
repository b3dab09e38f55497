// Package tempo lays a beat grid over playback time and snaps positions to
// it.
package tempo

import (
	"fmt"
	"math"
	"time"
)

// Multiple is a snap resolution expressed relative to a quarter note.
type Multiple struct {
	Name   string
	Factor float64 // beat length in quarter notes
}

// Multiples lists the snap resolutions, whole notes first.
var Multiples = []Multiple{
	{"1/1", 4},
	{"1/2", 2},
	{"1/4", 1},
	{"1/8", 1.0 / 2},
	{"1/12", 1.0 / 3},
	{"1/16", 1.0 / 4},
	{"1/24", 1.0 / 6},
	{"1/32", 1.0 / 8},
	{"1/48", 1.0 / 12},
	{"1/64", 1.0 / 16},
}

// gridEpsilonMs is how close to a grid line a position counts as on it.
const gridEpsilonMs = 1e-3

// Grid is a tempo grid: a beat every BeatMs starting at OffsetSeconds.
type Grid struct {
	BPM           int
	OffsetSeconds float64
	MultipleIdx   int
}

// New creates a grid. bpm is clamped to at least 1 and idx to the
// Multiples table.
func New(bpm int, offsetSeconds float64, idx int) Grid {
	return Grid{
		BPM:           max(1, bpm),
		OffsetSeconds: offsetSeconds,
		MultipleIdx:   min(max(idx, 0), len(Multiples)-1),
	}
}

// Multiple returns the snap resolution of the grid.
func (g Grid) Multiple() Multiple {
	return Multiples[min(max(g.MultipleIdx, 0), len(Multiples)-1)]
}

// BeatMs is the distance between grid lines in milliseconds.
func (g Grid) BeatMs() float64 {
	return 60_000 / float64(max(1, g.BPM)) * g.Multiple().Factor
}

// Interval is BeatMs as a duration.
func (g Grid) Interval() time.Duration {
	return time.Duration(g.BeatMs() * float64(time.Millisecond))
}

func (g Grid) offsetMs() float64 {
	return g.OffsetSeconds * 1000
}

// BeatIndex returns the index of the last grid line at or before atMs.
func (g Grid) BeatIndex(atMs float64) int {
	return int(math.Floor((atMs - g.offsetMs() + gridEpsilonMs) / g.BeatMs()))
}

// BeatAt returns the position of grid line idx.
func (g Grid) BeatAt(idx int) float64 {
	return float64(idx)*g.BeatMs() + g.offsetMs()
}

// Next returns the first grid line strictly after nowMs.
func (g Grid) Next(nowMs float64) float64 {
	return g.BeatAt(g.BeatIndex(nowMs) + 1)
}

// Previous returns the last grid line strictly before nowMs.
func (g Grid) Previous(nowMs float64) float64 {
	idx := g.BeatIndex(nowMs)
	if math.Abs(g.BeatAt(idx)-nowMs) <= gridEpsilonMs {
		idx--
	}
	return g.BeatAt(idx)
}

// Snap returns the grid line nearest to atMs.
func (g Grid) Snap(atMs float64) float64 {
	return g.BeatAt(int(math.Round((atMs - g.offsetMs()) / g.BeatMs())))
}

// BeatsPerMeasure is the number of grid lines per 4/4 measure.
func (g Grid) BeatsPerMeasure() int {
	return max(1, int(math.Round(4/g.Multiple().Factor)))
}

// IsWholeMeasure reports whether grid line idx starts a measure.
func (g Grid) IsWholeMeasure(idx int) bool {
	n := g.BeatsPerMeasure()
	return ((idx%n)+n)%n == 0
}

// Beat is one grid line inside a window.
type Beat struct {
	Index        int
	AtMs         float64
	WholeMeasure bool
	Measure      int // measure number, valid when WholeMeasure
}

// VisibleBeats lists the grid lines in [fromMs, fromMs+windowMs].
func (g Grid) VisibleBeats(fromMs, windowMs float64) []Beat {
	if windowMs <= 0 {
		return nil
	}
	first := g.BeatIndex(fromMs)
	if g.BeatAt(first) < fromMs-gridEpsilonMs {
		first++
	}
	last := g.BeatIndex(fromMs + windowMs)

	beats := make([]Beat, 0, max(0, last-first+1))
	n := g.BeatsPerMeasure()
	for idx := first; idx <= last; idx++ {
		b := Beat{Index: idx, AtMs: g.BeatAt(idx), WholeMeasure: g.IsWholeMeasure(idx)}
		if b.WholeMeasure {
			b.Measure = idx / n
		}
		beats = append(beats, b)
	}
	return beats
}

func (g Grid) String() string {
	return fmt.Sprintf("%d bpm %s offset %.3fs (%.0fms)", g.BPM, g.Multiple().Name, g.OffsetSeconds, g.BeatMs())
}
