package tcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenFunscripter/playback/internal/funscript"
	"github.com/OpenFunscripter/playback/internal/registry"
)

func msAction(ms int64, pos int16) funscript.Action {
	return funscript.NewAction(float64(ms)/1000, pos)
}

func strokeScript() *funscript.ActionSet {
	return funscript.NewActionSet(
		msAction(0, 0),
		msAction(1000, 100),
		msAction(2000, 0),
	)
}

type recorder struct {
	events []StrokeEvent
}

func (r *recorder) OnStroke(e StrokeEvent) {
	r.events = append(r.events, e)
}

func setup(t *testing.T, set *funscript.ActionSet, opts ...Option) (*Producers, *Outputs, *registry.Registry, registry.Handle) {
	t.Helper()
	reg := registry.New()
	h := reg.Register("stroke", set)
	p, err := NewProducers(reg, opts...)
	require.NoError(t, err)
	out := NewOutputs()
	p.Hookup(out, map[Channel]registry.Handle{L0: h})
	return p, out, reg, h
}

func assertBracket(t *testing.T, p *Producers, ch Channel, startMs int64, startPos int16, nextMs int64, nextPos int16) {
	t.Helper()
	start, next, ok := p.Bracket(ch)
	require.True(t, ok, "bracket of %s", ch)
	assert.Equal(t, float64(startMs), start.AtMs())
	assert.Equal(t, startPos, start.Pos)
	assert.Equal(t, float64(nextMs), next.AtMs())
	assert.Equal(t, nextPos, next.Pos)
}

func TestTick_ColdStartMidScript(t *testing.T) {
	p, _, _, _ := setup(t, strokeScript())

	p.Tick(1500)

	assertBracket(t, p, L0, 1000, 100, 2000, 0)
	assert.Equal(t, 1, p.Producer(L0).CurrentIndex())
}

func TestTick_ColdStartAtZero(t *testing.T) {
	p, _, _, _ := setup(t, strokeScript())

	p.Tick(0)

	assertBracket(t, p, L0, 0, 0, 1000, 100)
}

func TestTick_ContinuousPlaybackAdvancesOneAtATime(t *testing.T) {
	rec := &recorder{}
	p, _, _, _ := setup(t, strokeScript(), WithObserver(rec))

	for now := int64(0); now <= 2500; now += 16 {
		p.Tick(now)
	}

	require.Len(t, rec.events, 3)
	assert.Equal(t, int16(0), rec.events[0].Start.Pos)
	assert.Equal(t, int16(100), rec.events[0].Next.Pos)
	assert.Equal(t, int16(100), rec.events[1].Start.Pos)
	assert.Equal(t, int16(0), rec.events[1].Next.Pos)
	assert.True(t, rec.events[2].Final(), "last action brackets itself")
	assert.Equal(t, 2, p.Producer(L0).CurrentIndex())

	for _, e := range rec.events {
		assert.Equal(t, L0, e.Channel)
	}
	assert.Greater(t, rec.events[1].AtMs, int64(1000))
}

func TestTick_AdvanceRequiresPassingNext(t *testing.T) {
	p, _, _, _ := setup(t, strokeScript())

	p.Tick(990)
	assertBracket(t, p, L0, 0, 0, 1000, 100)
	p.Tick(1000)
	assertBracket(t, p, L0, 0, 0, 1000, 100)
	p.Tick(1001)
	assertBracket(t, p, L0, 1000, 100, 2000, 0)
}

func TestTick_SeekResyncs(t *testing.T) {
	set := funscript.NewActionSet()
	for i := int64(0); i < 20; i++ {
		set.Upsert(msAction(i*500, int16(i%2)*100))
	}
	p, _, _, _ := setup(t, set)

	p.Tick(100)
	require.Equal(t, 0, p.Producer(L0).CurrentIndex())

	p.Tick(7250)
	assert.Equal(t, 14, p.Producer(L0).CurrentIndex())
	assertBracket(t, p, L0, 7000, 0, 7500, 100)

	p.Tick(1200)
	assert.Equal(t, 2, p.Producer(L0).CurrentIndex(), "backward seek")
}

func TestTick_JumpWithinThresholdDoesNotResync(t *testing.T) {
	set := funscript.NewActionSet(
		msAction(0, 0),
		msAction(50, 100),
		msAction(100, 0),
		msAction(150, 100),
	)
	p, _, _, _ := setup(t, set)

	p.Tick(10)
	p.Tick(110)
	assert.Equal(t, 1, p.Producer(L0).CurrentIndex(), "advances by a single action")
}

func TestTick_ResyncPastEndUsesLastAction(t *testing.T) {
	p, _, _, _ := setup(t, strokeScript())

	p.Tick(9000)

	assertBracket(t, p, L0, 2000, 0, 2000, 0)
}

func TestTick_CustomResyncThreshold(t *testing.T) {
	set := funscript.NewActionSet()
	for i := int64(0); i < 10; i++ {
		set.Upsert(msAction(i*100, 50))
	}
	p, _, _, _ := setup(t, set, WithResyncThreshold(1000))

	p.Tick(0)
	p.Tick(550)
	assert.Equal(t, 1, p.Producer(L0).CurrentIndex(), "below custom threshold")
}

func TestTick_ExpiredHandleInvalidatesSlot(t *testing.T) {
	p, out, reg, h := setup(t, strokeScript())

	p.Tick(500)
	before := out.Get(L0)
	require.True(t, before.Valid)
	index := p.Producer(L0).CurrentIndex()

	reg.Release(h)
	p.Tick(1500)
	assert.False(t, out.Get(L0).Valid)
	assert.Equal(t, index, p.Producer(L0).CurrentIndex(), "bracket does not move")
	_, _, ok := p.Bracket(L0)
	assert.False(t, ok)
}

func TestTick_UnboundChannelsUntouched(t *testing.T) {
	p, out, _, _ := setup(t, strokeScript())

	p.Tick(1500)

	for _, ch := range Channels() {
		if ch == L0 {
			continue
		}
		assert.False(t, out.Get(ch).Valid, ch.String())
		_, _, ok := p.Bracket(ch)
		assert.False(t, ok)
	}
}

func TestTick_EmptySetInvalidatesSlot(t *testing.T) {
	set := strokeScript()
	p, out, _, _ := setup(t, set)

	p.Tick(500)
	require.True(t, out.Get(L0).Valid)

	set.Clear()
	p.Tick(516)
	assert.False(t, out.Get(L0).Valid)
}

func TestTick_RevisionChangeResets(t *testing.T) {
	set := strokeScript()
	p, _, _, _ := setup(t, set)

	p.Tick(1500)
	require.Equal(t, 1, p.Producer(L0).CurrentIndex())

	set.Upsert(msAction(1200, 40))
	p.Tick(1516)
	assertBracket(t, p, L0, 1200, 40, 2000, 0)
}

func TestHookup_ClearsUnsuppliedChannels(t *testing.T) {
	reg := registry.New()
	a := reg.Register("a", strokeScript())
	b := reg.Register("b", strokeScript())

	p, err := NewProducers(reg)
	require.NoError(t, err)
	out := NewOutputs()

	p.Hookup(out, map[Channel]registry.Handle{L0: a, R1: b})
	assert.Equal(t, a, p.Producer(L0).Script())
	assert.Equal(t, b, p.Producer(R1).Script())

	p.Hookup(out, map[Channel]registry.Handle{V0: b})
	assert.True(t, p.Producer(L0).Script().IsZero())
	assert.True(t, p.Producer(R1).Script().IsZero())
	assert.Equal(t, b, p.Producer(V0).Script())
}

func TestClearChannels(t *testing.T) {
	rec := &recorder{}
	p, out, _, _ := setup(t, strokeScript(), WithObserver(rec))

	p.ClearChannels()
	p.Tick(500)

	assert.Empty(t, rec.events)
	assert.False(t, out.Get(L0).Valid)
	assert.Nil(t, p.Outputs())
	for _, ch := range Channels() {
		assert.True(t, p.Producer(ch).Script().IsZero())
	}
}

func TestTick_ChannelsTickInOrder(t *testing.T) {
	reg := registry.New()
	h := reg.Register("s", strokeScript())
	rec := &recorder{}
	p, err := NewProducers(reg, WithObserver(StrokeObserverFunc(rec.OnStroke)))
	require.NoError(t, err)

	p.Hookup(NewOutputs(), map[Channel]registry.Handle{V2: h, L0: h, R0: h})
	p.Tick(500)

	require.Len(t, rec.events, 3)
	assert.Equal(t, []Channel{L0, R0, V2}, []Channel{rec.events[0].Channel, rec.events[1].Channel, rec.events[2].Channel})
}

func TestBind_SingleChannel(t *testing.T) {
	p, _, reg, _ := setup(t, strokeScript())
	other := reg.Register("other", funscript.NewActionSet(msAction(0, 10), msAction(400, 90)))

	p.Tick(1500)
	p.Bind(L0, other)
	p.Tick(1516)
	assertBracket(t, p, L0, 400, 90, 400, 90)

	p.Bind(Channel(42), other)
}
