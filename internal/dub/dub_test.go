package dub

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kingrea/chainforge/internal/chain"
)

func sampleSegment() chain.Segment {
	return chain.Segment{
		ChainID: "c1", ID: 3, Type: chain.SegmentContinue, State: chain.SegmentDubbing,
		BeginAtChainMicros: 12_000_000, DurationMicros: 4_000_000, Tempo: 120, Key: "C minor",
		Choices: []chain.SegmentChoice{
			{ID: "loud", ProgramType: "Beat"},
			{ID: "quiet", ProgramType: "Beat", Mute: true},
		},
		Arrangements: []chain.Arrangement{
			{ID: "a1", ChoiceID: "loud"},
			{ID: "a2", ChoiceID: "quiet"},
		},
		Picks: []chain.Pick{
			{ID: "p1", ArrangementID: "a1", AudioID: "kick", StartAtChainMicros: 12_000_000, LengthMicros: 250_000, Amplitude: 1},
			{ID: "p2", ArrangementID: "a2", AudioID: "snare", StartAtChainMicros: 12_500_000, LengthMicros: 250_000, Amplitude: 1},
		},
	}
}

func TestJSONWriterWritesPlan(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONWriter(dir)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	w.Clock = func() time.Time { return fixed }

	out, err := w.Dub(context.Background(), chain.Chain{ID: "c1"}, sampleSegment())
	if err != nil {
		t.Fatalf("dub: %v", err)
	}
	if out.Path != filepath.Join(dir, "c1", "3.json") || !out.DubbedAt.Equal(fixed) {
		t.Fatalf("output = %+v", out)
	}
	data, err := os.ReadFile(out.Path)
	if err != nil {
		t.Fatalf("read plan: %v", err)
	}
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if len(plan.Cues) != 1 || plan.Cues[0].AudioID != "kick" {
		t.Fatalf("cues = %+v, want only the unmuted kick", plan.Cues)
	}
	if plan.Channels != 2 || plan.FrameRate != 48000 || plan.Segment != 3 {
		t.Fatalf("plan header = %+v", plan)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "c1"))
	if len(entries) != 1 {
		t.Fatalf("leftover files: %v", entries)
	}
}

func TestDubHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewJSONWriter(t.TempDir()).Dub(ctx, chain.Chain{ID: "c1"}, sampleSegment()); err == nil {
		t.Fatalf("expected cancellation error")
	}
	if _, err := (Nop{}).Dub(ctx, chain.Chain{}, chain.Segment{}); err == nil {
		t.Fatalf("expected cancellation error from Nop")
	}
}
