package feed

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticStepShape(t *testing.T) {
	g := NewSynthetic(DefaultSyntheticConfig(), time.Unix(0, 0))

	frames := g.NextStep()
	// Two robots, three frames each.
	require.Len(t, frames, 6)

	// The main robot (robot 1) emits last so its target frame closes the
	// tick.
	last := frames[len(frames)-1]
	assert.Equal(t, FrameTarget, last.Type)
	assert.Equal(t, 1, last.Robot)

	for _, f := range frames {
		assert.GreaterOrEqual(t, f.Robot, 1)
		assert.LessOrEqual(t, f.Robot, 2)
	}
}

func TestSyntheticFramesParse(t *testing.T) {
	g := NewSynthetic(DefaultSyntheticConfig(), time.Unix(0, 0))

	for _, f := range g.NextStep() {
		data, err := f.Encode()
		require.NoError(t, err)
		_, err = ParseFrame(data)
		require.NoError(t, err)
	}
}

func TestSyntheticTargetMovesOnCircle(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	g := NewSynthetic(cfg, time.Unix(0, 0))

	for s := 0; s < 100; s += 10 {
		x, y, _ := g.targetAt(s)
		r := math.Hypot(x-cfg.CentreX, y-cfg.CentreY)
		assert.InDelta(t, cfg.TargetRadius, r, 1e-9, "step %d off the circle", s)
	}
}

func TestSyntheticTimestampsAdvance(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	g := NewSynthetic(cfg, time.Unix(10, 0))

	first := g.NextStep()
	second := g.NextStep()

	gap := second[0].UnixNanos - first[0].UnixNanos
	assert.Equal(t, cfg.Interval.Nanoseconds(), gap)
}

func TestSyntheticSightingsRespectRange(t *testing.T) {
	g := NewSynthetic(DefaultSyntheticConfig(), time.Unix(0, 0))

	for _, f := range g.NextStep() {
		if f.Type != FrameLandmarks {
			continue
		}
		for _, s := range f.Landmarks {
			if !s.Found {
				continue
			}
			assert.LessOrEqual(t, math.Hypot(s.X, s.Y), 4.5,
				"robot %d claims to see landmark %d far beyond sensor range", f.Robot, s.ID)
		}
	}
}
