package desktop

import (
	"log/slog"
	"math/rand/v2"

	"github.com/remotelab/remote-client/internal/wire"
)

// Corruption effect types understood by the store.
const (
	EffectPixelCorruption = "pixel_corruption"
	EffectWidgetGlitch    = "widget_glitch"
	EffectColorShift      = "color_shift"
	EffectBackgroundDecay = "background_decay"
)

// corruptedPalettes are the colour themes a color_shift effect can swap
// in, keyed by mood.
var corruptedPalettes = map[string][]string{
	"sick_yellow":   {"#D4AF37", "#DAA520", "#B8860B", "#FFD700"},
	"toxic_green":   {"#ADFF2F", "#9ACD32", "#32CD32", "#00FF00"},
	"corrupted_red": {"#DC143C", "#B22222", "#8B0000", "#FF6347"},
}

// paletteNames is the stable selection order for corrupted palettes.
var paletteNames = []string{"sick_yellow", "toxic_green", "corrupted_red"}

func defaultRandFloat() float64 { return rand.Float64() }

// ApplyCorruption sets the backend's authoritative corruption level,
// clamped to [0,1], applies the visual effects in order, and records them
// in the bounded history.
func (s *Store) ApplyCorruption(data wire.CorruptionData) {
	level := clamp01(data.NewLevel)

	s.mu.Lock()
	s.corruptionLevel = level
	s.effects = appendBounded(s.effects, data.Effects, maxEffects)
	s.history = appendBounded(s.history, []CorruptionRecord{{
		Timestamp: s.now(),
		Level:     level,
		Effects:   data.Effects,
	}}, maxHistory)

	for _, effect := range data.Effects {
		s.applyEffectLocked(effect)
	}
	state := s.corruptionStateLocked()
	s.mu.Unlock()

	slog.Info("Corruption applied", "level", level, "effects", len(data.Effects))
	s.corruptionBus.Publish(state)
}

func (s *Store) applyEffectLocked(effect wire.CorruptionEffect) {
	switch effect.Type {
	case EffectPixelCorruption:
		s.applyPixelCorruptionLocked(effect)
	case EffectWidgetGlitch:
		s.applyWidgetGlitchLocked(effect)
	case EffectColorShift:
		s.applyColorShiftLocked(effect)
	case EffectBackgroundDecay:
		s.applyBackgroundDecayLocked(effect)
	default:
		slog.Debug("Unhandled corruption effect", "type", effect.Type)
	}
}

// applyPixelCorruptionLocked degrades the wallpaper: dead pixels scale at
// 50x intensity, colour shift at 0.3x.
func (s *Store) applyPixelCorruptionLocked(effect wire.CorruptionEffect) {
	if s.desktop.Background == nil {
		return
	}
	bg := *s.desktop.Background
	bg.Corruption = &wire.BackgroundCorruption{
		DeadPixels: effect.Intensity * 50,
		ColorShift: effect.Intensity * 0.3,
	}
	s.desktop.Background = &bg
}

// applyWidgetGlitchLocked marks the weather widget as erroring.
func (s *Store) applyWidgetGlitchLocked(wire.CorruptionEffect) {
	for i := range s.desktop.Widgets {
		if s.desktop.Widgets[i].Type == "weather" {
			s.desktop.Widgets[i].Corruption = &wire.WidgetCorruption{
				DisplayError:   true,
				DataCorruption: "ERROR_404_WEATHER",
			}
		}
	}
}

// applyColorShiftLocked swaps the theme's palette for a corrupted one.
func (s *Store) applyColorShiftLocked(effect wire.CorruptionEffect) {
	name := paletteNames[int(s.randFloat()*float64(len(paletteNames)))%len(paletteNames)]
	s.theme.CorruptedPalette = &wire.CorruptedPalette{
		Name:      name,
		Colors:    corruptedPalettes[name],
		Intensity: effect.Intensity,
	}
}

// applyBackgroundDecayLocked decays the wallpaper proportionally to the
// effect intensity, on top of any pixel corruption already present.
func (s *Store) applyBackgroundDecayLocked(effect wire.CorruptionEffect) {
	if s.desktop.Background == nil {
		return
	}
	bg := *s.desktop.Background
	if bg.Corruption == nil {
		bg.Corruption = &wire.BackgroundCorruption{}
	} else {
		c := *bg.Corruption
		bg.Corruption = &c
	}
	bg.Corruption.Decay = effect.Intensity * 100
	s.desktop.Background = &bg
}

// SimulateCorruption nudges the corruption level up by 0.1 with one
// random visual effect. Debug aid; the backend never sees it.
func (s *Store) SimulateCorruption() {
	s.mu.Lock()
	level := s.corruptionLevel
	kinds := []string{EffectPixelCorruption, EffectWidgetGlitch, EffectColorShift}
	effect := wire.CorruptionEffect{
		Type:      kinds[int(s.randFloat()*float64(len(kinds)))%len(kinds)],
		Intensity: s.randFloat()*0.5 + 0.2,
		Timestamp: s.now(),
	}
	s.mu.Unlock()

	s.ApplyCorruption(wire.CorruptionData{
		NewLevel: clamp01(level + 0.1),
		Effects:  []wire.CorruptionEffect{effect},
	})
}

// CorruptionLevel returns the current level in [0,1].
func (s *Store) CorruptionLevel() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.corruptionLevel
}

// CorruptionState returns the level with its named severity phase.
func (s *Store) CorruptionState() CorruptionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.corruptionStateLocked()
}

func (s *Store) corruptionStateLocked() CorruptionState {
	return CorruptionState{
		Level:   s.corruptionLevel,
		Phase:   corruptionPhase(s.corruptionLevel),
		Effects: len(s.effects),
	}
}

// CorruptionHistory returns a copy of the bounded corruption history.
func (s *Store) CorruptionHistory() []CorruptionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CorruptionRecord, len(s.history))
	copy(out, s.history)
	return out
}

func corruptionPhase(level float64) string {
	switch {
	case level <= 0.2:
		return "minimal"
	case level <= 0.4:
		return "noticeable"
	case level <= 0.6:
		return "concerning"
	case level <= 0.8:
		return "severe"
	default:
		return "catastrophic"
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// appendBounded appends items and drops the oldest entries beyond max.
func appendBounded[T any](dst, items []T, max int) []T {
	dst = append(dst, items...)
	if len(dst) > max {
		dst = dst[len(dst)-max:]
	}
	return dst
}
