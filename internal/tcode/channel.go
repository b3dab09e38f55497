// Package tcode tracks, per output channel, which two actions bracket the
// current playback time. Encoders read the bracket from the channel's output
// slot and turn it into device commands.
package tcode

import (
	"fmt"
	"strings"

	"github.com/OpenFunscripter/playback/internal/funscript"
)

// Channel identifies a logical output axis.
type Channel int

const (
	L0 Channel = iota // stroke
	L1                // surge
	L2                // sway
	R0                // twist
	R1                // roll
	R2                // pitch
	V0                // vibrate
	V1
	V2

	ChannelCount
)

var channelNames = [ChannelCount]string{"L0", "L1", "L2", "R0", "R1", "R2", "V0", "V1", "V2"}

func (c Channel) String() string {
	if c.Valid() {
		return channelNames[c]
	}
	return fmt.Sprintf("Channel(%d)", int(c))
}

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	return c >= 0 && c < ChannelCount
}

// ParseChannel parses a channel id such as "L0" (case-insensitive).
func ParseChannel(s string) (Channel, error) {
	for i, name := range channelNames {
		if strings.EqualFold(s, name) {
			return Channel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown channel: %q", s)
}

// Channels lists every channel in tick order.
func Channels() []Channel {
	out := make([]Channel, ChannelCount)
	for i := range out {
		out[i] = Channel(i)
	}
	return out
}

// Output is one physical output slot. Start and Next bracket playback time;
// Start == Next means no further motion.
type Output struct {
	ID    string
	Start funscript.Action
	Next  funscript.Action
	Valid bool
}

// Outputs is the output slot array, indexed by Channel. It is owned by the
// encoder side; producers only write into it.
type Outputs struct {
	Slots [ChannelCount]Output
}

// NewOutputs creates an empty slot array with channel ids set.
func NewOutputs() *Outputs {
	o := &Outputs{}
	for i := range o.Slots {
		o.Slots[i].ID = channelNames[i]
	}
	return o
}

// Get returns a copy of the slot for ch.
func (o *Outputs) Get(ch Channel) Output {
	if !ch.Valid() {
		return Output{}
	}
	return o.Slots[ch]
}

// Reset invalidates every slot.
func (o *Outputs) Reset() {
	for i := range o.Slots {
		o.Slots[i].Valid = false
		o.Slots[i].Start = funscript.Action{}
		o.Slots[i].Next = funscript.Action{}
	}
}

// StrokeEvent reports a newly committed bracket.
type StrokeEvent struct {
	Channel Channel
	Start   funscript.Action
	Next    funscript.Action
	AtMs    int64 // playback time of the tick that committed the bracket
}

// DurationMs is the time between the bracketing actions.
func (e StrokeEvent) DurationMs() float64 {
	return e.Next.AtMs() - e.Start.AtMs()
}

// Speed is the position change per second, 0 for a resting bracket.
func (e StrokeEvent) Speed() float64 {
	d := e.Next.AtS - e.Start.AtS
	if d <= 0 {
		return 0
	}
	return float64(e.Next.Pos-e.Start.Pos) / d
}

// Final reports whether the bracket marks the end of the script.
func (e StrokeEvent) Final() bool {
	return e.Start.AtS == e.Next.AtS
}

// StrokeObserver receives committed brackets. OnStroke runs on the playback
// loop and must not block.
type StrokeObserver interface {
	OnStroke(StrokeEvent)
}

// StrokeObserverFunc adapts a function to StrokeObserver.
type StrokeObserverFunc func(StrokeEvent)

// OnStroke calls f.
func (f StrokeObserverFunc) OnStroke(e StrokeEvent) {
	f(e)
}
