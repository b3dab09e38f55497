package geo

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/OpenFunscripter/playback/internal/funscript"
)

// ReadPolyline decodes a curve written as JSON [seconds, value] pairs, e.g.
// [[0,0.1],[0.5,0.9]]. Time must not run backwards and at least two points
// are required.
func ReadPolyline(r io.Reader) (geom.LineString, error) {
	var pairs [][]float64
	if err := json.NewDecoder(r).Decode(&pairs); err != nil {
		return geom.LineString{}, fmt.Errorf("decoding curve: %w", err)
	}
	if len(pairs) < 2 {
		return geom.LineString{}, fmt.Errorf("%w: curve has %d points", ErrTooFewActions, len(pairs))
	}

	flat := make([]float64, 0, 2*len(pairs))
	prevS := math.Inf(-1)
	for i, pair := range pairs {
		if len(pair) != 2 {
			return geom.LineString{}, fmt.Errorf("point %d: want [seconds, value], got %v", i, pair)
		}
		atS, v := pair[0], pair[1]
		if atS < prevS {
			return geom.LineString{}, fmt.Errorf("point %d: time %.3fs before %.3fs", i, atS, prevS)
		}
		prevS = atS
		flat = append(flat, atS, v)
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY)), nil
}

// ActionsFromLine converts every vertex of ls into a linear action. Values
// are clamped to [0, 1] and rounded to whole positions. Negative times are
// skipped and vertices sharing a timestamp keep the last one.
func ActionsFromLine(ls geom.LineString) *funscript.ActionSet {
	seq := ls.Coordinates()
	set := funscript.NewActionSet()
	for i := 0; i < seq.Length(); i++ {
		xy := seq.GetXY(i)
		if xy.X < 0 {
			continue
		}
		v := min(max(xy.Y, 0), 1)
		set.Upsert(funscript.NewAction(xy.X, int16(math.Round(v*100))))
	}
	return set
}
