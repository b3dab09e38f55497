package tcode

import (
	"github.com/OpenFunscripter/playback/internal/funscript"
	"github.com/OpenFunscripter/playback/internal/registry"
)

// ResyncThresholdMs is the time jump between ticks that is treated as a seek.
const ResyncThresholdMs = 100

// noSlot marks a producer without an output slot.
const noSlot = -1

// TickResult describes what a single tick did.
type TickResult struct {
	Resynced  bool
	Committed bool
}

// ChannelProducer follows playback time through one action set and keeps the
// bracketing pair of its output slot current.
type ChannelProducer struct {
	channel Channel
	script  registry.Handle
	slot    int

	currentIndex int
	lastTimeMs   int64
	resyncMs     int64

	// bracket state
	committed bool
	next      funscript.Action
	revision  uint64
	synced    bool
}

func newChannelProducer(ch Channel) ChannelProducer {
	return ChannelProducer{
		channel:  ch,
		slot:     noSlot,
		resyncMs: ResyncThresholdMs,
	}
}

// Channel returns the logical channel of the producer.
func (p *ChannelProducer) Channel() Channel {
	return p.channel
}

// Script returns the bound handle. The zero handle means unbound.
func (p *ChannelProducer) Script() registry.Handle {
	return p.script
}

// CurrentIndex returns the index of the bracket start action.
func (p *ChannelProducer) CurrentIndex() int {
	return p.currentIndex
}

// Bind points the producer at a new action set and resets its bracket.
func (p *ChannelProducer) Bind(h registry.Handle) {
	p.script = h
	p.reset()
}

// Unbind clears the script binding.
func (p *ChannelProducer) Unbind() {
	p.Bind(registry.Handle{})
}

func (p *ChannelProducer) reset() {
	p.currentIndex = 0
	p.committed = false
	p.synced = false
	p.next = funscript.Action{}
}

// Tick advances the bracket to nowMs. It is a no-op without a script or an
// output slot. A released script invalidates the slot.
func (p *ChannelProducer) Tick(res registry.Resolver, out *Outputs, nowMs int64) TickResult {
	var result TickResult
	if p.slot == noSlot || out == nil || p.script.IsZero() {
		return result
	}
	actions, ok := res.Resolve(p.script)
	if !ok {
		out.Slots[p.slot].Valid = false
		p.committed = false
		return result
	}

	if actions.Revision() != p.revision {
		p.revision = actions.Revision()
		p.reset()
	}

	slot := &out.Slots[p.slot]
	n := actions.Len()
	if n == 0 {
		slot.Valid = false
		p.committed = false
		p.lastTimeMs = nowMs
		return result
	}

	candidate := p.currentIndex
	if !p.synced || abs(nowMs-p.lastTimeMs) > p.resyncMs {
		candidate = resyncIndex(actions, nowMs)
		p.synced = true
		result.Resynced = true
	} else if p.committed && float64(nowMs) > p.next.AtMs() {
		candidate++
	}

	if (candidate != p.currentIndex || !p.committed) && candidate < n {
		p.currentIndex = candidate
		slot.Start = actions.At(candidate)
		if candidate+1 < n {
			slot.Next = actions.At(candidate + 1)
		} else {
			slot.Next = slot.Start
		}
		slot.Valid = true
		p.next = slot.Next
		p.committed = true
		result.Committed = true
	}

	p.lastTimeMs = nowMs
	return result
}

// resyncIndex scans from the start for the first action at or after nowMs and
// returns the index before it. Past the end it returns the last index.
func resyncIndex(actions *funscript.ActionSet, nowMs int64) int {
	now := float64(nowMs)
	for i, a := range actions.All() {
		if a.AtMs() >= now {
			return max(0, i-1)
		}
	}
	return actions.Len() - 1
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
