package desktop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remotelab/remote-client/internal/wire"
)

func TestApplyCorruptionClampsLevel(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	s.LoadDefaults()

	s.ApplyCorruption(wire.CorruptionData{NewLevel: 1.7})
	assert.Equal(t, 1.0, s.CorruptionLevel())

	s.ApplyCorruption(wire.CorruptionData{NewLevel: -0.2})
	assert.Equal(t, 0.0, s.CorruptionLevel())
}

func TestPixelCorruptionDegradesBackground(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	s.LoadDefaults()

	s.ApplyCorruption(wire.CorruptionData{
		NewLevel: 0.5,
		Effects:  []wire.CorruptionEffect{{Type: EffectPixelCorruption, Intensity: 0.4}},
	})

	bg := s.Desktop().Background
	require.NotNil(t, bg)
	require.NotNil(t, bg.Corruption)
	assert.Equal(t, 20.0, bg.Corruption.DeadPixels)
	assert.InDelta(t, 0.12, bg.Corruption.ColorShift, 1e-9)
}

func TestWidgetGlitchHitsOnlyWeather(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	s.LoadDefaults()

	s.ApplyCorruption(wire.CorruptionData{
		NewLevel: 0.3,
		Effects:  []wire.CorruptionEffect{{Type: EffectWidgetGlitch, Intensity: 0.6}},
	})

	for _, w := range s.Desktop().Widgets {
		if w.Type == "weather" {
			require.NotNil(t, w.Corruption)
			assert.True(t, w.Corruption.DisplayError)
			assert.Equal(t, "ERROR_404_WEATHER", w.Corruption.DataCorruption)
		} else {
			assert.Nil(t, w.Corruption, "widget %s must stay intact", w.ID)
		}
	}
}

func TestColorShiftInstallsCorruptedPalette(t *testing.T) {
	t.Parallel()

	s := newTestStore(t) // RandFloat pinned to 0 selects the first palette
	s.LoadDefaults()

	s.ApplyCorruption(wire.CorruptionData{
		NewLevel: 0.6,
		Effects:  []wire.CorruptionEffect{{Type: EffectColorShift, Intensity: 0.8}},
	})

	palette := s.Theme().CorruptedPalette
	require.NotNil(t, palette)
	assert.Equal(t, "sick_yellow", palette.Name)
	assert.Equal(t, corruptedPalettes["sick_yellow"], palette.Colors)
	assert.Equal(t, 0.8, palette.Intensity)
}

func TestBackgroundDecayKeepsExistingPixelDamage(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	s.LoadDefaults()

	s.ApplyCorruption(wire.CorruptionData{
		NewLevel: 0.7,
		Effects: []wire.CorruptionEffect{
			{Type: EffectPixelCorruption, Intensity: 0.4},
			{Type: EffectBackgroundDecay, Intensity: 0.5},
		},
	})

	bg := s.Desktop().Background
	require.NotNil(t, bg.Corruption)
	assert.Equal(t, 20.0, bg.Corruption.DeadPixels)
	assert.Equal(t, 50.0, bg.Corruption.Decay)
}

func TestCorruptionHistoryIsBounded(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	s.LoadDefaults()

	for i := 0; i < maxHistory+10; i++ {
		s.ApplyCorruption(wire.CorruptionData{
			NewLevel: 0.5,
			Effects:  []wire.CorruptionEffect{{Type: EffectPixelCorruption, Intensity: 0.1}},
		})
	}

	assert.Len(t, s.CorruptionHistory(), maxHistory)
	assert.LessOrEqual(t, s.CorruptionState().Effects, maxEffects)
}

func TestCorruptionPhaseNames(t *testing.T) {
	t.Parallel()

	cases := []struct {
		level float64
		phase string
	}{
		{0.0, "minimal"},
		{0.2, "minimal"},
		{0.35, "noticeable"},
		{0.55, "concerning"},
		{0.75, "severe"},
		{0.95, "catastrophic"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.phase, corruptionPhase(tc.level), "level %v", tc.level)
	}
}

func TestSimulateCorruptionStepsTowardsOne(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	s.LoadDefaults()

	var states []CorruptionState
	s.CorruptionChanges().Subscribe(func(st CorruptionState) { states = append(states, st) })

	s.SimulateCorruption()
	assert.InDelta(t, 0.1, s.CorruptionLevel(), 1e-9)
	require.Len(t, states, 1)
	assert.Equal(t, "minimal", states[0].Phase)

	for i := 0; i < 15; i++ {
		s.SimulateCorruption()
	}
	assert.Equal(t, 1.0, s.CorruptionLevel(), "simulated corruption saturates at 1")
}
