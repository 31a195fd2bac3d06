// Package dub receives crafted segments. Rendering audio is not done here:
// JSONWriter publishes each segment's playback plan for an external mixer.
package dub

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kingrea/chainforge/internal/chain"
)

// Dubber consumes a Crafted segment. The returned output is attached to the
// segment when it becomes Dubbed.
type Dubber interface {
	Dub(ctx context.Context, c chain.Chain, seg chain.Segment) (chain.DubOutput, error)
}

// Nop accepts every segment and writes nothing.
type Nop struct{}

func (Nop) Dub(ctx context.Context, _ chain.Chain, _ chain.Segment) (chain.DubOutput, error) {
	if err := ctx.Err(); err != nil {
		return chain.DubOutput{}, err
	}
	return chain.DubOutput{DubbedAt: time.Now().UTC()}, nil
}

// Plan is the document JSONWriter writes for one segment.
type Plan struct {
	ChainID            string  `json:"chainId"`
	Segment            int     `json:"segment"`
	Type               string  `json:"type"`
	BeginAtChainMicros int64   `json:"beginAtChainMicros"`
	DurationMicros     int64   `json:"durationMicros"`
	Tempo              float64 `json:"tempo"`
	Key                string  `json:"key,omitempty"`
	Intensity          float64 `json:"intensity"`
	Channels           int     `json:"channels"`
	FrameRate          int     `json:"frameRate"`
	Cues               []Cue   `json:"cues"`
}

// Cue is one audible pick.
type Cue struct {
	AudioID            string  `json:"audioId"`
	Event              string  `json:"event,omitempty"`
	Tones              string  `json:"tones,omitempty"`
	StartAtChainMicros int64   `json:"startAtChainMicros"`
	LengthMicros       int64   `json:"lengthMicros"`
	Amplitude          float64 `json:"amplitude"`
}

// JSONWriter writes plans to <Dir>/<chain>/<segment>.json.
type JSONWriter struct {
	Dir       string
	Channels  int
	FrameRate int
	Clock     func() time.Time
}

// NewJSONWriter returns a writer rooted at dir with a stereo 48kHz shape.
func NewJSONWriter(dir string) *JSONWriter {
	return &JSONWriter{Dir: dir, Channels: 2, FrameRate: 48000, Clock: time.Now}
}

// PlanFor builds the plan of a segment. Picks of muted choices are left out.
func (w *JSONWriter) PlanFor(seg chain.Segment) Plan {
	muted := map[string]bool{}
	for _, c := range seg.Choices {
		if c.Mute {
			muted[c.ID] = true
		}
	}
	arrangementChoice := map[string]string{}
	for _, a := range seg.Arrangements {
		arrangementChoice[a.ID] = a.ChoiceID
	}
	plan := Plan{
		ChainID:            seg.ChainID,
		Segment:            seg.ID,
		Type:               string(seg.Type),
		BeginAtChainMicros: seg.BeginAtChainMicros,
		DurationMicros:     seg.DurationMicros,
		Tempo:              seg.Tempo,
		Key:                seg.Key,
		Intensity:          seg.Intensity,
		Channels:           w.Channels,
		FrameRate:          w.FrameRate,
		Cues:               []Cue{},
	}
	for _, p := range seg.Picks {
		if muted[arrangementChoice[p.ArrangementID]] {
			continue
		}
		plan.Cues = append(plan.Cues, Cue{
			AudioID:            p.AudioID,
			Event:              p.Event,
			Tones:              p.Tones,
			StartAtChainMicros: p.StartAtChainMicros,
			LengthMicros:       p.LengthMicros,
			Amplitude:          p.Amplitude,
		})
	}
	return plan
}

// Path is where a segment's plan lands.
func (w *JSONWriter) Path(chainID string, segmentID int) string {
	return filepath.Join(w.Dir, chainID, strconv.Itoa(segmentID)+".json")
}

// Dub writes the plan through a temp file so readers never see a partial
// document.
func (w *JSONWriter) Dub(ctx context.Context, c chain.Chain, seg chain.Segment) (chain.DubOutput, error) {
	if err := ctx.Err(); err != nil {
		return chain.DubOutput{}, err
	}
	data, err := json.MarshalIndent(w.PlanFor(seg), "", "  ")
	if err != nil {
		return chain.DubOutput{}, fmt.Errorf("dub: encode segment %d: %w", seg.ID, err)
	}
	path := w.Path(c.ID, seg.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return chain.DubOutput{}, fmt.Errorf("dub: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".plan-*.json")
	if err != nil {
		return chain.DubOutput{}, fmt.Errorf("dub: create temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return chain.DubOutput{}, fmt.Errorf("dub: write plan: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return chain.DubOutput{}, fmt.Errorf("dub: close plan: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return chain.DubOutput{}, fmt.Errorf("dub: publish plan: %w", err)
	}
	clock := w.Clock
	if clock == nil {
		clock = time.Now
	}
	return chain.DubOutput{Path: path, DubbedAt: clock().UTC()}, nil
}
