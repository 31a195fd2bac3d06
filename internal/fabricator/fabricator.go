package fabricator

import (
	"log/slog"
	"math/rand"
	"sort"
	"strings"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/config"
	"github.com/kingrea/chainforge/internal/content"
)

// Overrides steer the next segment away from its natural course.
type Overrides struct {
	MacroProgramID string   `json:"macroProgramId,omitempty"`
	Memes          []string `json:"memes,omitempty"`
}

// Empty reports whether no override is set.
func (o Overrides) Empty() bool {
	return o.MacroProgramID == "" && len(o.Memes) == 0
}

// Params are everything one segment attempt depends on.
type Params struct {
	Source   *content.SourceMaterial
	Chain    chain.Chain
	Template config.TemplateConfig
	// Prior is the immediately preceding segment when it was Crafted (or
	// later). Leave nil after a Failed predecessor or at offset 0.
	Prior *chain.Segment
	// Segment is the Planned segment to craft.
	Segment   chain.Segment
	Seed      int64
	Overrides Overrides
	Logger    *slog.Logger
}

// ChoiceHandle refers to a choice registered with Put.
type ChoiceHandle struct {
	id         string
	percussion bool
}

// ID returns the choice id.
func (h ChoiceHandle) ID() string { return h.id }

// Fabricator is the owned builder for one pending segment.
type Fabricator struct {
	source    *content.SourceMaterial
	chain     chain.Chain
	template  config.TemplateConfig
	prior     *chain.Segment
	segment   chain.Segment
	overrides Overrides
	rng       *rand.Rand
	ids       *idSource
	logger    *slog.Logger
	barBeats  int

	choiceKeys  map[string]string
	percussion  map[string]bool
	arrangement map[string]string
	missing     []Missing
	missingSeen map[string]bool
}

// New validates p and computes the pending segment's type.
func New(p Params) (*Fabricator, error) {
	if p.Source == nil {
		return nil, Errorf("source material is required")
	}
	if p.Segment.State != chain.SegmentPlanned {
		return nil, Errorf("segment %d is %s, expected %s", p.Segment.ID, p.Segment.State, chain.SegmentPlanned)
	}
	if p.Prior != nil {
		if !p.Prior.Readable() {
			return nil, Errorf("prior segment %d is %s, expected a crafted segment", p.Prior.ID, p.Prior.State)
		}
		if p.Prior.ID != p.Segment.ID-1 {
			return nil, Errorf("prior segment %d does not precede segment %d", p.Prior.ID, p.Segment.ID)
		}
		if p.Prior.EndAtChainMicros() != p.Segment.BeginAtChainMicros {
			return nil, Errorf("segment %d begins at %d, prior ends at %d", p.Segment.ID, p.Segment.BeginAtChainMicros, p.Prior.EndAtChainMicros())
		}
		prior := p.Prior.Clone()
		p.Prior = &prior
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fabricator{
		source:      p.Source,
		chain:       p.Chain,
		template:    p.Template,
		prior:       p.Prior,
		segment:     p.Segment.Clone(),
		overrides:   p.Overrides,
		rng:         rand.New(rand.NewSource(p.Seed)),
		ids:         newIDSource(p.Chain.ID, p.Segment.ID, p.Segment.Attempt),
		logger:      logger.With("chain", p.Chain.ID, "segment", p.Segment.ID),
		barBeats:    content.DefaultBarBeats,
		choiceKeys:  map[string]string{},
		percussion:  map[string]bool{},
		arrangement: map[string]string{},
		missingSeen: map[string]bool{},
	}
	f.segment.ChainID = p.Chain.ID
	f.segment.Choices = nil
	f.segment.Arrangements = nil
	f.segment.Picks = nil
	f.segment.Missing = nil
	typ, err := f.computeType()
	if err != nil {
		return nil, err
	}
	f.segment.Type = typ
	if err := f.segment.Transition(chain.SegmentCrafting); err != nil {
		return nil, &Error{Err: err}
	}
	return f, nil
}

// computeType decides how the pending segment relates to the prior one.
func (f *Fabricator) computeType() (chain.SegmentType, error) {
	if f.segment.ID == 0 || f.prior == nil {
		return chain.SegmentInitial, nil
	}
	if !f.overrides.Empty() {
		return chain.SegmentNextMacro, nil
	}
	mainChoice, ok := f.prior.ChoiceOf(content.ProgramMain)
	if !ok {
		return chain.SegmentNextMacro, nil
	}
	mainBinding, ok := f.source.Binding(mainChoice.ProgramSequenceBindingID)
	if !ok {
		return "", Errorf("prior main binding %q no longer resolves", mainChoice.ProgramSequenceBindingID)
	}
	if f.source.HasMoreOffsets(mainChoice.ProgramID, mainBinding.Offset, 1) &&
		f.template.MainProgramLengthMaxDelta > f.prior.Delta {
		return chain.SegmentContinue, nil
	}
	if macroChoice, ok := f.prior.ChoiceOf(content.ProgramMacro); ok {
		macroBinding, ok := f.source.Binding(macroChoice.ProgramSequenceBindingID)
		if !ok {
			return "", Errorf("prior macro binding %q no longer resolves", macroChoice.ProgramSequenceBindingID)
		}
		if f.source.HasMoreOffsets(macroChoice.ProgramID, macroBinding.Offset, 2) {
			return chain.SegmentNextMain, nil
		}
	}
	return chain.SegmentNextMacro, nil
}

// Chain returns the chain being fabricated.
func (f *Fabricator) Chain() chain.Chain { return f.chain }

// Source returns the template's content index.
func (f *Fabricator) Source() *content.SourceMaterial { return f.source }

// Template returns the template tunables.
func (f *Fabricator) Template() config.TemplateConfig { return f.template }

// Rand is the attempt's only randomness source.
func (f *Fabricator) Rand() *rand.Rand { return f.rng }

// Logger is scoped to the chain and segment.
func (f *Fabricator) Logger() *slog.Logger { return f.logger }

// Overrides returns the overrides this segment consumes.
func (f *Fabricator) Overrides() Overrides { return f.overrides }

// Type is the computed segment type.
func (f *Fabricator) Type() chain.SegmentType { return f.segment.Type }

// Segment returns a read-only copy of the pending segment.
func (f *Fabricator) Segment() chain.Segment { return f.segment.Clone() }

// Prior returns the prior crafted segment, if any.
func (f *Fabricator) Prior() (chain.Segment, bool) {
	if f.prior == nil {
		return chain.Segment{}, false
	}
	return f.prior.Clone(), true
}

// PreviousChoice returns the prior segment's first choice of a type,
// regardless of how the segments relate.
func (f *Fabricator) PreviousChoice(t content.ProgramType) (chain.SegmentChoice, bool) {
	if f.prior == nil {
		return chain.SegmentChoice{}, false
	}
	return f.prior.ChoiceOf(t)
}

// ChoicesIfContinued returns the prior segment's choices of a type when the
// pending segment continues it, and nothing otherwise.
func (f *Fabricator) ChoicesIfContinued(t content.ProgramType) []chain.SegmentChoice {
	if f.prior == nil || f.segment.Type != chain.SegmentContinue {
		return nil
	}
	return f.prior.ChoicesOf(t)
}

// ChoiceIfContinued narrows ChoicesIfContinued to one voice, matched by type
// and case-insensitive name so a voice keeps its instrument even when the
// program was re-chosen. A prior choice whose voice no longer resolves is a
// fault.
func (f *Fabricator) ChoiceIfContinued(t content.ProgramType, voice content.ProgramVoice) (chain.SegmentChoice, bool, error) {
	for _, c := range f.ChoicesIfContinued(t) {
		if c.ProgramVoiceID == "" {
			continue
		}
		if c.ProgramVoiceID == voice.ID {
			return c, true, nil
		}
		prev, ok := f.source.Voice(c.ProgramVoiceID)
		if !ok {
			return chain.SegmentChoice{}, false, Errorf("prior choice %s references voice %q which no longer resolves", c.ID, c.ProgramVoiceID)
		}
		if prev.Type == voice.Type && strings.EqualFold(prev.Name, voice.Name) {
			return c, true, nil
		}
	}
	return chain.SegmentChoice{}, false, nil
}

// Choices returns the choices registered so far.
func (f *Fabricator) Choices() []chain.SegmentChoice {
	return append([]chain.SegmentChoice(nil), f.segment.Choices...)
}

// ClaimedInstruments returns the instruments already chosen in this segment
// for a program type.
func (f *Fabricator) ClaimedInstruments(t content.ProgramType) map[string]struct{} {
	out := map[string]struct{}{}
	for _, c := range f.segment.Choices {
		if c.ProgramType == t && c.InstrumentID != "" {
			out[c.InstrumentID] = struct{}{}
		}
	}
	return out
}

// TotalBeats is the segment length in beats.
func (f *Fabricator) TotalBeats() float64 {
	return float64(f.segment.Total * f.barBeats)
}

// Timing returns the conversion for the segment's current tempo.
func (f *Fabricator) Timing() (Timing, error) {
	return NewTiming(f.segment.Tempo, f.barBeats, f.segment.BeginAtChainMicros)
}

// MainContext is what the main stage derives for the segment.
type MainContext struct {
	Tempo     float64
	BarBeats  int
	Key       string
	Total     int
	Delta     int
	Intensity float64
}

// SetMainContext records tempo, key, length, delta and intensity and derives
// the duration from them.
func (f *Fabricator) SetMainContext(m MainContext) error {
	if m.Total <= 0 {
		return Errorf("main sequence total must be positive, got %d", m.Total)
	}
	timing, err := NewTiming(m.Tempo, m.BarBeats, f.segment.BeginAtChainMicros)
	if err != nil {
		return err
	}
	f.barBeats = timing.BarBeats
	f.segment.Tempo = m.Tempo
	f.segment.BarBeats = timing.BarBeats
	f.segment.Key = m.Key
	f.segment.Total = m.Total
	f.segment.Delta = m.Delta
	f.segment.Intensity = m.Intensity
	f.segment.DurationMicros = timing.BarsToMicros(float64(m.Total))
	return nil
}

// AddChord copies a chord and its voicings into the segment.
func (f *Fabricator) AddChord(ch content.ProgramSequenceChord, voicings []content.ProgramSequenceChordVoicing) {
	sc := chain.SegmentChord{ID: f.ids.next("chord"), Name: ch.Name, Position: ch.Position}
	f.segment.Chords = append(f.segment.Chords, sc)
	for _, v := range voicings {
		f.segment.Voicings = append(f.segment.Voicings, chain.SegmentChordVoicing{
			ID: f.ids.next("voicing"), ChordID: sc.ID, Type: v.Type, Notes: v.Notes,
		})
	}
}

// ChordAt returns the chord sounding at a beat position.
func (f *Fabricator) ChordAt(position float64) (chain.SegmentChord, bool) {
	var found chain.SegmentChord
	ok := false
	for _, ch := range f.segment.Chords {
		if ch.Position <= position {
			found, ok = ch, true
		}
	}
	return found, ok
}

// VoicingNotes returns the voicing notes of a chord for an instrument type.
func (f *Fabricator) VoicingNotes(chordID string, t content.InstrumentType) (string, bool) {
	for _, v := range f.segment.Voicings {
		if v.ChordID == chordID && v.Type == t {
			return v.Notes, true
		}
	}
	return "", false
}

// ContextMemes are the memes selection scores against: overrides when set,
// otherwise the memes gathered by earlier choices in this segment.
func (f *Fabricator) ContextMemes() []string {
	if len(f.overrides.Memes) > 0 {
		return append([]string(nil), f.overrides.Memes...)
	}
	return append([]string(nil), f.segment.Memes...)
}

// Put registers a choice. At most one choice may exist per program type and
// voice. Memes of the choice's program, binding and instrument join the
// segment memes.
func (f *Fabricator) Put(c chain.SegmentChoice, asPercussion bool) (ChoiceHandle, error) {
	if f.segment.State != chain.SegmentCrafting {
		return ChoiceHandle{}, Errorf("put on segment in state %s", f.segment.State)
	}
	program, ok := f.source.Program(c.ProgramID)
	if !ok {
		return ChoiceHandle{}, Errorf("choice references program %q which does not resolve", c.ProgramID)
	}
	if c.ProgramType == "" {
		c.ProgramType = program.Type
	}
	key := choiceKey(c)
	if existing, dup := f.choiceKeys[key]; dup {
		return ChoiceHandle{}, Errorf("duplicate %s choice for voice %q (existing %s)", c.ProgramType, c.ProgramVoiceID, existing)
	}
	if c.ID == "" {
		c.ID = f.ids.next("choice")
	}
	f.choiceKeys[key] = c.ID
	f.percussion[c.ID] = asPercussion
	f.segment.Choices = append(f.segment.Choices, c)

	f.addMemes(program.Memes)
	if b, ok := f.source.Binding(c.ProgramSequenceBindingID); ok {
		f.addMemes(b.Memes)
	}
	if inst, ok := f.source.Instrument(c.InstrumentID); ok {
		f.addMemes(inst.Memes)
	}
	return ChoiceHandle{id: c.ID, percussion: asPercussion}, nil
}

func choiceKey(c chain.SegmentChoice) string {
	if c.ProgramVoiceID == "" {
		return string(c.ProgramType)
	}
	return string(c.ProgramType) + "/" + c.ProgramVoiceID
}

func (f *Fabricator) addMemes(memes []string) {
	for _, m := range memes {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		dup := false
		for _, have := range f.segment.Memes {
			if have == m {
				dup = true
				break
			}
		}
		if !dup {
			f.segment.Memes = append(f.segment.Memes, m)
		}
	}
}

func (f *Fabricator) choice(h ChoiceHandle) (chain.SegmentChoice, bool) {
	for _, c := range f.segment.Choices {
		if c.ID == h.id {
			return c, true
		}
	}
	return chain.SegmentChoice{}, false
}

// ReportMissing records a content gap. Repeats of the same gap are folded.
func (f *Fabricator) ReportMissing(entity EntityType, context string) {
	m := Missing{Entity: entity, Context: context}
	if f.missingSeen[m.String()] {
		return
	}
	f.missingSeen[m.String()] = true
	f.missing = append(f.missing, m)
	f.logger.Info("missing content", "entity", string(entity), "context", context)
}

// Missing returns the content gaps reported so far.
func (f *Fabricator) Missing() []Missing {
	return append([]Missing(nil), f.missing...)
}

// Snapshot returns a deep copy of the pending segment.
func (f *Fabricator) Snapshot() chain.Segment {
	return f.segment.Clone()
}

// Finish finalizes one-shot lengths, marks the segment Crafted and returns
// the frozen snapshot. The fabricator cannot be used afterwards.
func (f *Fabricator) Finish() (chain.Segment, error) {
	if f.segment.DurationMicros <= 0 {
		return chain.Segment{}, Errorf("segment %d has no duration", f.segment.ID)
	}
	f.finalizeOneShotLengths()
	for _, m := range f.missing {
		f.segment.Missing = append(f.segment.Missing, m.String())
	}
	sort.SliceStable(f.segment.Picks, func(i, j int) bool {
		return f.segment.Picks[i].StartAtSegmentMicros < f.segment.Picks[j].StartAtSegmentMicros
	})
	if err := f.segment.Transition(chain.SegmentCrafted); err != nil {
		return chain.Segment{}, &Error{Err: err}
	}
	return f.segment.Clone(), nil
}
