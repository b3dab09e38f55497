package tcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannel(t *testing.T) {
	for _, ch := range Channels() {
		got, err := ParseChannel(ch.String())
		require.NoError(t, err)
		assert.Equal(t, ch, got)
	}

	got, err := ParseChannel("r2")
	require.NoError(t, err)
	assert.Equal(t, R2, got)

	_, err = ParseChannel("A0")
	assert.Error(t, err)
}

func TestChannelString(t *testing.T) {
	assert.Equal(t, "L0", L0.String())
	assert.Equal(t, "V2", V2.String())
	assert.Equal(t, "Channel(9)", ChannelCount.String())
	assert.False(t, Channel(-1).Valid())
}

func TestOutputs(t *testing.T) {
	out := NewOutputs()
	assert.Equal(t, "R1", out.Get(R1).ID)
	assert.Equal(t, Output{}, out.Get(Channel(99)))

	out.Slots[L0].Valid = true
	out.Slots[L0].Start = msAction(100, 50)
	out.Reset()
	assert.False(t, out.Get(L0).Valid)
	assert.Equal(t, "L0", out.Get(L0).ID)
}

func TestStrokeEvent(t *testing.T) {
	e := StrokeEvent{Start: msAction(1000, 20), Next: msAction(1500, 70)}
	assert.Equal(t, 500.0, e.DurationMs())
	assert.InDelta(t, 100.0, e.Speed(), 1e-9)
	assert.False(t, e.Final())

	rest := StrokeEvent{Start: msAction(2000, 0), Next: msAction(2000, 0)}
	assert.Equal(t, 0.0, rest.Speed())
	assert.True(t, rest.Final())
}
