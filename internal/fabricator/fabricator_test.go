package fabricator

import (
	"errors"
	"strings"
	"testing"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/config"
	"github.com/kingrea/chainforge/internal/content"
	"github.com/kingrea/chainforge/internal/content/contenttest"
	"github.com/kingrea/chainforge/internal/logging"
)

func planned(id int, begin int64) chain.Segment {
	return chain.Segment{ChainID: "c1", ID: id, State: chain.SegmentPlanned, Type: chain.SegmentPending, BeginAtChainMicros: begin}
}

func newFab(t *testing.T, src *content.SourceMaterial, prior *chain.Segment, seg chain.Segment) *Fabricator {
	t.Helper()
	f, err := New(Params{
		Source:   src,
		Chain:    chain.Chain{ID: "c1"},
		Template: config.DefaultTemplateConfig(),
		Prior:    prior,
		Segment:  seg,
		Seed:     7,
		Logger:   logging.Discard(),
	})
	if err != nil {
		t.Fatalf("new fabricator: %v", err)
	}
	return f
}

func priorSegment(id int, mainBinding, macroBinding string, delta int) *chain.Segment {
	s := chain.Segment{
		ChainID: "c1", ID: id, State: chain.SegmentCrafted, Type: chain.SegmentInitial,
		BeginAtChainMicros: int64(id) * 4_000_000, DurationMicros: 4_000_000, Total: 2, Delta: delta, Tempo: 120,
		Choices: []chain.SegmentChoice{
			{ID: "macro", ProgramType: content.ProgramMacro, ProgramID: "macro", ProgramSequenceBindingID: macroBinding, DeltaIn: chain.DeltaUnlimited, DeltaOut: chain.DeltaUnlimited},
			{ID: "main", ProgramType: content.ProgramMain, ProgramID: "main", ProgramSequenceBindingID: mainBinding, DeltaIn: chain.DeltaUnlimited, DeltaOut: chain.DeltaUnlimited},
		},
	}
	return &s
}

func TestTimingConversions(t *testing.T) {
	timing, err := NewTiming(120, 4, 10_000_000)
	if err != nil {
		t.Fatalf("timing: %v", err)
	}
	if timing.MicrosPerBeat() != 500_000 {
		t.Fatalf("micros per beat = %v", timing.MicrosPerBeat())
	}
	if timing.BarsToMicros(2) != 4_000_000 {
		t.Fatalf("2 bars = %d", timing.BarsToMicros(2))
	}
	if timing.ChainMicros(1.5) != 10_750_000 {
		t.Fatalf("chain micros = %d", timing.ChainMicros(1.5))
	}
	if got := timing.FormatPosition(2_750_000); got != "2.2.5" {
		t.Fatalf("format position = %q", got)
	}
	if got := FormatChainSeconds(10_750_000); got != "10.750s" || ChainSeconds(10_750_000) != 10.75 {
		t.Fatalf("chain seconds = %q", got)
	}
	if _, err := NewTiming(0, 4, 0); !IsFabricationError(err) {
		t.Fatalf("expected fabrication error for zero tempo, got %v", err)
	}
}

func TestComputeType(t *testing.T) {
	src := contenttest.Demo().Source()
	cases := []struct {
		name  string
		prior *chain.Segment
		want  chain.SegmentType
	}{
		{"no prior", nil, chain.SegmentInitial},
		{"more main offsets", priorSegment(0, "main-verse@0", "macro-a@0", 0), chain.SegmentContinue},
		{"main exhausted", priorSegment(0, "main-verse@3", "macro-a@0", 6), chain.SegmentNextMacro},
		{"max delta reached", priorSegment(0, "main-verse@0", "macro-a@0", 280), chain.SegmentNextMacro},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seg := planned(1, 4_000_000)
			if tc.prior == nil {
				seg = planned(0, 0)
			}
			f := newFab(t, src, tc.prior, seg)
			if f.Type() != tc.want {
				t.Fatalf("type = %s, want %s", f.Type(), tc.want)
			}
			if f.Segment().State != chain.SegmentCrafting {
				t.Fatalf("expected crafting state, got %s", f.Segment().State)
			}
		})
	}
}

func TestComputeTypeNextMain(t *testing.T) {
	b := contenttest.Demo()
	b.Sequence("macro", "macro-c", 0, 0.8).Bind("macro", "macro-c", 2)
	src := b.Source()
	f := newFab(t, src, priorSegment(0, "main-verse@3", "macro-a@0", 6), planned(1, 4_000_000))
	if f.Type() != chain.SegmentNextMain {
		t.Fatalf("type = %s, want NextMain", f.Type())
	}
}

func TestComputeTypeFaultsOnVanishedBinding(t *testing.T) {
	src := contenttest.Demo().Source()
	_, err := New(Params{
		Source: src, Chain: chain.Chain{ID: "c1"}, Template: config.DefaultTemplateConfig(),
		Prior: priorSegment(0, "gone@0", "macro-a@0", 0), Segment: planned(1, 4_000_000), Logger: logging.Discard(),
	})
	if !IsFabricationError(err) {
		t.Fatalf("expected fabrication error, got %v", err)
	}
}

func TestNewRejectsInconsistentInput(t *testing.T) {
	src := contenttest.Demo().Source()
	crafting := planned(0, 0)
	crafting.State = chain.SegmentCrafting
	bad := []Params{
		{Segment: planned(0, 0)},
		{Source: src, Segment: crafting},
		{Source: src, Segment: planned(2, 4_000_000), Prior: priorSegment(0, "main-verse@0", "macro-a@0", 0)},
		{Source: src, Segment: planned(1, 5_000_000), Prior: priorSegment(0, "main-verse@0", "macro-a@0", 0)},
	}
	for i, p := range bad {
		p.Logger = logging.Discard()
		if _, err := New(p); !IsFabricationError(err) {
			t.Fatalf("case %d: expected fabrication error, got %v", i, err)
		}
	}
}

func TestOverridesForceNextMacro(t *testing.T) {
	src := contenttest.Demo().Source()
	f, err := New(Params{
		Source: src, Chain: chain.Chain{ID: "c1"}, Template: config.DefaultTemplateConfig(),
		Prior: priorSegment(0, "main-verse@0", "macro-a@0", 0), Segment: planned(1, 4_000_000),
		Overrides: Overrides{Memes: []string{"dawn"}}, Logger: logging.Discard(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if f.Type() != chain.SegmentNextMacro {
		t.Fatalf("type = %s, want NextMacro", f.Type())
	}
	if memes := f.ContextMemes(); len(memes) != 1 || memes[0] != "dawn" {
		t.Fatalf("expected override memes, got %v", memes)
	}
}

func TestPutRejectsDuplicateVoiceAndCollectsMemes(t *testing.T) {
	src := contenttest.Demo().Source()
	f := newFab(t, src, nil, planned(0, 0))
	main := chain.SegmentChoice{ProgramType: content.ProgramMain, ProgramID: "main", ProgramSequenceBindingID: "main-verse@0", DeltaIn: chain.DeltaUnlimited, DeltaOut: chain.DeltaUnlimited}
	if _, err := f.Put(main, false); err != nil {
		t.Fatalf("put main: %v", err)
	}
	if _, err := f.Put(main, false); !IsFabricationError(err) {
		t.Fatalf("expected duplicate main to fail, got %v", err)
	}
	kick := chain.SegmentChoice{ProgramType: content.ProgramBeat, ProgramID: "beat", ProgramVoiceID: "beat-kick", InstrumentID: "kit"}
	if _, err := f.Put(kick, true); err != nil {
		t.Fatalf("put kick: %v", err)
	}
	snare := kick
	snare.ProgramVoiceID = "beat-snare"
	if _, err := f.Put(snare, true); err != nil {
		t.Fatalf("put snare on another voice: %v", err)
	}
	if _, err := f.Put(kick, true); !IsFabricationError(err) {
		t.Fatalf("expected duplicate kick to fail")
	}
	if memes := f.Segment().Memes; len(memes) != 1 || memes[0] != "NIGHT" {
		t.Fatalf("expected deduplicated memes [NIGHT], got %v", memes)
	}
	if _, err := f.Put(chain.SegmentChoice{ProgramID: "nope"}, false); !IsFabricationError(err) {
		t.Fatalf("expected unresolved program to fail")
	}
	if claimed := f.ClaimedInstruments(content.ProgramBeat); len(claimed) != 1 {
		t.Fatalf("expected kit claimed once, got %v", claimed)
	}
}

func TestChoiceIfContinuedMatchesVoiceByName(t *testing.T) {
	b := contenttest.Demo()
	b.Program("beat2", content.ProgramBeat, 120, "").
		Voice("beat2", "beat2-kick", content.InstrumentDrum, "kick", "KICK")
	src := b.Source()
	prior := priorSegment(0, "main-verse@0", "macro-a@0", 0)
	prior.Choices = append(prior.Choices, chain.SegmentChoice{
		ID: "kick", ProgramType: content.ProgramBeat, ProgramID: "beat", ProgramVoiceID: "beat-kick", InstrumentID: "kit", DeltaIn: 4, DeltaOut: chain.DeltaUnlimited,
	})
	f := newFab(t, src, prior, planned(1, 4_000_000))
	voice, _ := src.Voice("beat2-kick")
	got, ok, err := f.ChoiceIfContinued(content.ProgramBeat, voice)
	if err != nil || !ok {
		t.Fatalf("expected continued choice, ok=%v err=%v", ok, err)
	}
	if got.InstrumentID != "kit" || got.DeltaIn != 4 {
		t.Fatalf("unexpected continued choice %+v", got)
	}
	hat, _ := src.Voice("beat-hat")
	if _, ok, _ := f.ChoiceIfContinued(content.ProgramBeat, hat); ok {
		t.Fatalf("hat has no prior choice")
	}
	if got := f.ChoicesIfContinued(content.ProgramDetail); len(got) != 0 {
		t.Fatalf("expected no detail choices")
	}
}

func TestChoicesIfContinuedEmptyAcrossBoundaries(t *testing.T) {
	src := contenttest.Demo().Source()
	prior := priorSegment(0, "main-verse@3", "macro-a@0", 6)
	f := newFab(t, src, prior, planned(1, 4_000_000))
	if got := f.ChoicesIfContinued(content.ProgramMain); len(got) != 0 {
		t.Fatalf("NextMacro segment must not continue choices, got %v", got)
	}
	if _, ok := f.PreviousChoice(content.ProgramMain); !ok {
		t.Fatalf("previous choice should still be visible")
	}
}

func TestReportMissingFoldsRepeats(t *testing.T) {
	f := newFab(t, contenttest.Demo().Source(), nil, planned(0, 0))
	f.ReportMissing(EntityProgram, "Beat-type program")
	f.ReportMissing(EntityProgram, "Beat-type program")
	f.ReportMissing(EntityInstrument, "voice Kick")
	if got := f.Missing(); len(got) != 2 || got[0].String() != "Program: Beat-type program" {
		t.Fatalf("unexpected missing reports %v", got)
	}
}

func TestErrorWrapping(t *testing.T) {
	base := errors.New("boom")
	err := error(&Error{Err: base})
	if !errors.Is(err, base) {
		t.Fatalf("expected unwrap to base error")
	}
	if !strings.HasPrefix(err.Error(), "fabrication: ") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if IsFabricationError(base) {
		t.Fatalf("plain error is not a fabrication error")
	}
}

func TestFinishRequiresDuration(t *testing.T) {
	f := newFab(t, contenttest.Demo().Source(), nil, planned(0, 0))
	if _, err := f.Finish(); !IsFabricationError(err) {
		t.Fatalf("expected error finishing a segment without duration")
	}
}

func TestSegmentTimingMatchesMainContext(t *testing.T) {
	f := newFab(t, contenttest.Demo().Source(), nil, planned(0, 6_000_000))
	if err := f.SetMainContext(MainContext{Tempo: 90, BarBeats: 3, Key: "A", Total: 2, Intensity: 0.5}); err != nil {
		t.Fatalf("set main context: %v", err)
	}
	want, err := f.Timing()
	if err != nil {
		t.Fatalf("timing: %v", err)
	}
	got, err := SegmentTiming(f.Snapshot())
	if err != nil {
		t.Fatalf("segment timing: %v", err)
	}
	if got != want || got.BarBeats != 3 {
		t.Fatalf("segment timing = %+v, want %+v", got, want)
	}
	if pos := got.FormatPosition(got.BarsToMicros(1)); pos != "2.1" {
		t.Fatalf("second bar starts at %q", pos)
	}
	if _, err := SegmentTiming(chain.Segment{}); !IsFabricationError(err) {
		t.Fatalf("expected fabrication error for an uncrafted segment, got %v", err)
	}
}
