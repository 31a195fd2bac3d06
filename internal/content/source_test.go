package content

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func loadDemo(t *testing.T, key string) *SourceMaterial {
	t.Helper()
	p := NewFileProvider(filepath.Join("testdata", "library.yaml"))
	sm, err := p.SourceMaterial(context.Background(), key)
	if err != nil {
		t.Fatalf("load %s: %v", key, err)
	}
	return sm
}

func TestFileProviderBindsTemplate(t *testing.T) {
	all := loadDemo(t, "demo")
	if got := len(all.Programs()); got != 5 {
		t.Fatalf("expected 5 programs for demo, got %d", got)
	}
	drums := loadDemo(t, "drums-only")
	if got := len(drums.Programs()); got != 3 {
		t.Fatalf("expected 3 programs for drums-only, got %d", got)
	}
	if got := len(drums.Instruments()); got != 1 {
		t.Fatalf("expected 1 instrument for drums-only, got %d", got)
	}
	if _, ok := drums.Program("detail-pads"); ok {
		t.Fatalf("unbound program should not resolve")
	}
}

func TestLookupsAreTotal(t *testing.T) {
	sm := loadDemo(t, "demo")
	if _, ok := sm.Program("nope"); ok {
		t.Fatalf("expected missing program")
	}
	if got := sm.Voices("nope"); len(got) != 0 {
		t.Fatalf("expected no voices, got %d", len(got))
	}
	if got := sm.Audios("nope"); len(got) != 0 {
		t.Fatalf("expected no audio, got %d", len(got))
	}
	if sm.HasMoreOffsets("nope", 0, 1) {
		t.Fatalf("expected no offsets for unknown program")
	}
	if _, ok := sm.NextOffset("nope", 0); ok {
		t.Fatalf("expected no next offset")
	}
}

func TestOffsetsAndAggregates(t *testing.T) {
	sm := loadDemo(t, "demo")
	offsets := sm.AvailableOffsets("main-groove")
	if len(offsets) != 4 || offsets[3] != 3 {
		t.Fatalf("unexpected offsets %v", offsets)
	}
	if !sm.HasMoreOffsets("main-groove", 2, 1) || sm.HasMoreOffsets("main-groove", 3, 1) {
		t.Fatalf("HasMoreOffsets mismatch")
	}
	if !sm.HasMoreOffsets("main-groove", 1, 2) || sm.HasMoreOffsets("main-groove", 2, 2) {
		t.Fatalf("HasMoreOffsets n=2 mismatch")
	}
	if next, _ := sm.NextOffset("main-groove", 3); next != 0 {
		t.Fatalf("expected wrap to 0, got %d", next)
	}
	names := sm.TrackNames("beat-four-drums")
	if strings.Join(names, ",") != "KICK,SNARE,HIHAT" {
		t.Fatalf("unexpected track names %v", names)
	}
	events := sm.Events("beat-four-basic")
	for i := 1; i < len(events); i++ {
		if events[i].Position < events[i-1].Position {
			t.Fatalf("events not ordered by position")
		}
	}
	types := sm.VoicingTypes("main-groove")
	if len(types) != 2 || types[0] != InstrumentBass || types[1] != InstrumentPad {
		t.Fatalf("unexpected voicing types %v", types)
	}
	if got := sm.Instruments(InstrumentDrum); len(got) != 1 || got[0].ID != "kit-808" {
		t.Fatalf("unexpected drum instruments %+v", got)
	}
	if got := sm.Programs(ProgramDetail); len(got) != 2 {
		t.Fatalf("expected 2 detail programs, got %d", len(got))
	}
}

func TestLibraryValidationReportsReferences(t *testing.T) {
	doc := `
programs:
  - id: p1
    type: Main
    voices:
      - { id: v1, type: Kazoo, name: K }
    sequences:
      - id: s1
        total: 2
        patterns:
          - id: pat1
            voice: v9
    bindings:
      - { id: b1, sequence: s9, offset: 0 }
templates:
  - { id: t1, key: demo, programs: [p2] }
`
	_, err := ParseLibrary([]byte(doc))
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"Kazoo", "unknown voice", "unknown sequence", "unknown program"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in error, got %v", want, msg)
		}
	}
}

func TestLibraryValidationStructTags(t *testing.T) {
	doc := `
programs:
  - id: p1
    type: Bogus
`
	if _, err := ParseLibrary([]byte(doc)); err == nil {
		t.Fatalf("expected struct validation error for program type")
	}
}

func TestStaticProvider(t *testing.T) {
	sm := NewSourceMaterial("x", Content{})
	p := StaticProvider{"x": sm}
	got, err := p.SourceMaterial(context.Background(), "x")
	if err != nil || got != sm {
		t.Fatalf("expected static snapshot, got %v %v", got, err)
	}
	if _, err := p.SourceMaterial(context.Background(), "y"); err == nil {
		t.Fatalf("expected unknown template error")
	}
}
