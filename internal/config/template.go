package config

import (
	"fmt"
	"strings"
	"time"
)

// TemplateConfig holds the tunables a chain's template feeds the fabricator.
// List-valued settings are comma separated strings consumed verbatim.
type TemplateConfig struct {
	CraftAheadSeconds float64 `yaml:"craft_ahead_seconds" validate:"gt=0"`
	DubAheadSeconds   float64 `yaml:"dub_ahead_seconds" validate:"gte=0"`
	OutputChannels    int     `yaml:"output_channels" validate:"gte=1,lte=8"`
	OutputFrameRate   int     `yaml:"output_frame_rate" validate:"gte=8000"`

	DeltaArcEnabled                  *bool  `yaml:"delta_arc_enabled,omitempty"`
	DeltaArcBeatLayersIncoming       int    `yaml:"delta_arc_beat_layers_incoming" validate:"gte=0"`
	DeltaArcBeatLayersToPrioritize   string `yaml:"delta_arc_beat_layers_to_prioritize"`
	DeltaArcDetailLayersIncoming     int    `yaml:"delta_arc_detail_layers_incoming" validate:"gte=0"`
	DeltaArcDetailLayersToPrioritize string `yaml:"delta_arc_detail_layers_to_prioritize"`

	DetailLayerOrder      string             `yaml:"detail_layer_order"`
	ChoiceMuteProbability map[string]float64 `yaml:"choice_mute_probability,omitempty"`

	IntensityAutoCrescendoEnabled *bool   `yaml:"intensity_auto_crescendo_enabled,omitempty"`
	IntensityAutoCrescendoMinimum float64 `yaml:"intensity_auto_crescendo_minimum" validate:"gte=0,lte=1"`
	IntensityAutoCrescendoMaximum float64 `yaml:"intensity_auto_crescendo_maximum" validate:"gte=0,lte=1"`

	MainProgramLengthMaxDelta int `yaml:"main_program_length_max_delta" validate:"gte=1"`

	InstrumentTypesForAudioLengthFinalization string `yaml:"instrument_types_for_audio_length_finalization"`
	ExcludeClaimedInstruments                 bool   `yaml:"exclude_claimed_instruments,omitempty"`

	// Seed fixes the chain RNG; zero derives one when the chain starts.
	Seed int64 `yaml:"seed,omitempty"`
}

// DefaultTemplateConfig returns the built-in template tunables.
func DefaultTemplateConfig() TemplateConfig {
	t := TemplateConfig{}
	t.applyDefaults()
	t.normalize()
	return t
}

func (t *TemplateConfig) applyDefaults() {
	if t.CraftAheadSeconds == 0 {
		t.CraftAheadSeconds = 20
	}
	if t.DubAheadSeconds == 0 {
		t.DubAheadSeconds = 10
	}
	if t.OutputChannels == 0 {
		t.OutputChannels = 2
	}
	if t.OutputFrameRate == 0 {
		t.OutputFrameRate = 48000
	}
	if t.DeltaArcEnabled == nil {
		t.DeltaArcEnabled = boolPtr(true)
	}
	if t.DeltaArcBeatLayersIncoming == 0 {
		t.DeltaArcBeatLayersIncoming = 1
	}
	if t.DeltaArcBeatLayersToPrioritize == "" {
		t.DeltaArcBeatLayersToPrioritize = "kick"
	}
	if t.DeltaArcDetailLayersIncoming == 0 {
		t.DeltaArcDetailLayersIncoming = 1
	}
	if t.DetailLayerOrder == "" {
		t.DetailLayerOrder = "Bass,Stripe,Pad,Sticky,Stab"
	}
	if t.IntensityAutoCrescendoEnabled == nil {
		t.IntensityAutoCrescendoEnabled = boolPtr(true)
	}
	if t.IntensityAutoCrescendoMinimum == 0 {
		t.IntensityAutoCrescendoMinimum = 0.2
	}
	if t.IntensityAutoCrescendoMaximum == 0 {
		t.IntensityAutoCrescendoMaximum = 0.8
	}
	if t.MainProgramLengthMaxDelta == 0 {
		t.MainProgramLengthMaxDelta = 280
	}
	if t.InstrumentTypesForAudioLengthFinalization == "" {
		t.InstrumentTypesForAudioLengthFinalization = "Drum"
	}
}

func (t *TemplateConfig) normalize() {
	t.DeltaArcBeatLayersToPrioritize = strings.TrimSpace(t.DeltaArcBeatLayersToPrioritize)
	t.DeltaArcDetailLayersToPrioritize = strings.TrimSpace(t.DeltaArcDetailLayersToPrioritize)
	t.DetailLayerOrder = strings.TrimSpace(t.DetailLayerOrder)
}

func (t TemplateConfig) validate() error {
	if err := validate.Struct(t); err != nil {
		return err
	}
	if t.IntensityAutoCrescendoMinimum > t.IntensityAutoCrescendoMaximum {
		return fmt.Errorf("intensity_auto_crescendo_minimum must not exceed the maximum")
	}
	for typ, p := range t.ChoiceMuteProbability {
		if p < 0 || p > 1 {
			return fmt.Errorf("choice_mute_probability[%s] must be within 0..1", typ)
		}
	}
	return nil
}

// CraftAhead is how far past the cursor segments are crafted.
func (t TemplateConfig) CraftAhead() time.Duration {
	return time.Duration(t.CraftAheadSeconds * float64(time.Second))
}

// DubAhead is how far past the cursor crafted segments are handed to dub.
func (t TemplateConfig) DubAhead() time.Duration {
	return time.Duration(t.DubAheadSeconds * float64(time.Second))
}

// DeltaArc reports whether layers fade in along the main program.
func (t TemplateConfig) DeltaArc() bool {
	return t.DeltaArcEnabled == nil || *t.DeltaArcEnabled
}

// AutoCrescendo reports whether segment intensity rises with delta.
func (t TemplateConfig) AutoCrescendo() bool {
	return t.IntensityAutoCrescendoEnabled == nil || *t.IntensityAutoCrescendoEnabled
}

// BeatLayersToPrioritize splits the beat priority list.
func (t TemplateConfig) BeatLayersToPrioritize() []string {
	return SplitList(t.DeltaArcBeatLayersToPrioritize)
}

// DetailLayersToPrioritize splits the detail priority list.
func (t TemplateConfig) DetailLayersToPrioritize() []string {
	return SplitList(t.DeltaArcDetailLayersToPrioritize)
}

// DetailLayers splits the detail layer order.
func (t TemplateConfig) DetailLayers() []string {
	return SplitList(t.DetailLayerOrder)
}

// AudioLengthFinalizationTypes splits the one-shot cutoff type list.
func (t TemplateConfig) AudioLengthFinalizationTypes() []string {
	return SplitList(t.InstrumentTypesForAudioLengthFinalization)
}

// MuteProbability returns the mute chance of an instrument type, matched case-insensitively.
func (t TemplateConfig) MuteProbability(instrumentType string) float64 {
	for k, v := range t.ChoiceMuteProbability {
		if strings.EqualFold(k, instrumentType) {
			return v
		}
	}
	return 0
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func boolPtr(v bool) *bool { return &v }
