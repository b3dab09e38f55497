// Package funscript holds the action model: timestamped position control
// points with per-side Bezier handles, and the ordered set that stores them.
package funscript

import "fmt"

// DefaultWeight is the horizontal handle length used when a weight handle is
// not active.
const DefaultWeight = 1.0 / 3.0

// HandleMode selects which side of an action a handle parameter applies to.
type HandleMode uint8

const (
	None HandleMode = iota
	In
	Out
	Both
)

// HasIn reports whether the in-side handle is active.
func (m HandleMode) HasIn() bool {
	switch m {
	case In, Both:
		return true
	case None, Out:
		return false
	default:
		return false
	}
}

// HasOut reports whether the out-side handle is active.
func (m HandleMode) HasOut() bool {
	switch m {
	case Out, Both:
		return true
	case None, In:
		return false
	default:
		return false
	}
}

// Valid reports whether m is one of the four known modes.
func (m HandleMode) Valid() bool {
	return m <= Both
}

func (m HandleMode) String() string {
	switch m {
	case None:
		return "none"
	case In:
		return "in"
	case Out:
		return "out"
	case Both:
		return "both"
	default:
		return fmt.Sprintf("HandleMode(%d)", uint8(m))
	}
}

// Action is a single control point. Ordering is by AtS only; equality also
// considers Pos.
type Action struct {
	AtS        float64 // seconds
	Pos        int16   // 0-100
	InTangent  float64
	OutTangent float64
	InWeight   float64
	OutWeight  float64

	TangentMode HandleMode
	WeightMode  HandleMode
}

// NewAction returns an action with default handles.
func NewAction(atS float64, pos int16) Action {
	return Action{
		AtS:       atS,
		Pos:       pos,
		InWeight:  DefaultWeight,
		OutWeight: DefaultWeight,
	}
}

// AtMs returns the timestamp in milliseconds.
func (a Action) AtMs() float64 {
	return a.AtS * 1000
}

// Value returns the position normalized to [0,1].
func (a Action) Value() float64 {
	return float64(a.Pos) / 100
}

// Equal compares timestamp and position.
func (a Action) Equal(b Action) bool {
	return a.AtS == b.AtS && a.Pos == b.Pos
}

// Less orders actions by timestamp.
func (a Action) Less(b Action) bool {
	return a.AtS < b.AtS
}

func (a Action) String() string {
	return fmt.Sprintf("(%.3fs,%d)", a.AtS, a.Pos)
}
