package chain

import (
	"time"

	"github.com/kingrea/chainforge/internal/content"
)

// DeltaUnlimited marks a choice that is active for the whole main program.
const DeltaUnlimited = -1

// Type distinguishes throwaway preview chains from production ones.
type Type string

const (
	TypePreview    Type = "Preview"
	TypeProduction Type = "Production"
)

// State is the lifecycle of a chain.
type State string

const (
	StateDraft     State = "Draft"
	StateReady     State = "Ready"
	StateFabricate State = "Fabricate"
	StateComplete  State = "Complete"
	StateFailed    State = "Failed"
)

// Chain is one production run.
type Chain struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        Type      `json:"type"`
	State       State     `json:"state"`
	TemplateKey string    `json:"templateKey"`
	Seed        int64     `json:"seed"`
	CreatedAt   time.Time `json:"createdAt"`
	StartedAt   time.Time `json:"startedAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SegmentType says how a segment relates to its predecessor.
type SegmentType string

const (
	SegmentPending   SegmentType = "Pending"
	SegmentInitial   SegmentType = "Initial"
	SegmentContinue  SegmentType = "Continue"
	SegmentNextMain  SegmentType = "NextMain"
	SegmentNextMacro SegmentType = "NextMacro"
)

// SegmentState is the lifecycle of one segment.
type SegmentState string

const (
	SegmentPlanned  SegmentState = "Planned"
	SegmentCrafting SegmentState = "Crafting"
	SegmentCrafted  SegmentState = "Crafted"
	SegmentDubbing  SegmentState = "Dubbing"
	SegmentDubbed   SegmentState = "Dubbed"
	SegmentFailed   SegmentState = "Failed"
)

// Segment is one slice of chain time. ID is the offset within the chain.
// Total counts bars, Delta counts bars since the current main program began.
type Segment struct {
	ChainID            string                `json:"chainId"`
	ID                 int                   `json:"id"`
	Type               SegmentType           `json:"type"`
	State              SegmentState          `json:"state"`
	BeginAtChainMicros int64                 `json:"beginAtChainMicros"`
	DurationMicros     int64                 `json:"durationMicros"`
	Total              int                   `json:"total"`
	Delta              int                   `json:"delta"`
	Intensity          float64               `json:"intensity"`
	Tempo              float64               `json:"tempo"`
	BarBeats           int                   `json:"barBeats,omitempty"`
	Key                string                `json:"key"`
	Memes              []string              `json:"memes,omitempty"`
	Chords             []SegmentChord        `json:"chords,omitempty"`
	Voicings           []SegmentChordVoicing `json:"voicings,omitempty"`
	Choices            []SegmentChoice       `json:"choices,omitempty"`
	Arrangements       []Arrangement         `json:"arrangements,omitempty"`
	Picks              []Pick                `json:"picks,omitempty"`
	Missing            []string              `json:"missing,omitempty"`
	Attempt            int                   `json:"attempt"`
	Error              string                `json:"error,omitempty"`
	Output             *DubOutput            `json:"output,omitempty"`
	CreatedAt          time.Time             `json:"createdAt"`
	UpdatedAt          time.Time             `json:"updatedAt"`
}

// SegmentChord is a chord copied from the main sequence. Position counts beats.
type SegmentChord struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Position float64 `json:"position"`
}

// SegmentChordVoicing lists the notes an instrument type plays for a chord.
type SegmentChordVoicing struct {
	ID      string                 `json:"id"`
	ChordID string                 `json:"chordId"`
	Type    content.InstrumentType `json:"type"`
	Notes   string                 `json:"notes"`
}

// SegmentChoice is one decision for one voice of one program type.
type SegmentChoice struct {
	ID                       string                 `json:"id"`
	ProgramType              content.ProgramType    `json:"programType"`
	ProgramID                string                 `json:"programId"`
	ProgramSequenceID        string                 `json:"programSequenceId,omitempty"`
	ProgramSequenceBindingID string                 `json:"programSequenceBindingId,omitempty"`
	ProgramVoiceID           string                 `json:"programVoiceId,omitempty"`
	InstrumentID             string                 `json:"instrumentId,omitempty"`
	InstrumentType           content.InstrumentType `json:"instrumentType,omitempty"`
	InstrumentMode           content.InstrumentMode `json:"instrumentMode,omitempty"`
	Mute                     bool                   `json:"mute,omitempty"`
	DeltaIn                  int                    `json:"deltaIn"`
	DeltaOut                 int                    `json:"deltaOut"`
}

// Arrangement ties a choice to the pattern its picks were expanded from.
type Arrangement struct {
	ID        string `json:"id"`
	ChoiceID  string `json:"choiceId"`
	PatternID string `json:"patternId,omitempty"`
}

// Pick is one scheduled sound.
type Pick struct {
	ID                   string  `json:"id"`
	ArrangementID        string  `json:"arrangementId"`
	AudioID              string  `json:"audioId"`
	Event                string  `json:"event"`
	Tones                string  `json:"tones,omitempty"`
	StartAtSegmentMicros int64   `json:"startAtSegmentMicros"`
	StartAtChainMicros   int64   `json:"startAtChainMicros"`
	LengthMicros         int64   `json:"lengthMicros"`
	Amplitude            float64 `json:"amplitude"`
}

// DubOutput is the only data allowed to change after a segment is Crafted.
type DubOutput struct {
	Path     string    `json:"path,omitempty"`
	DubbedAt time.Time `json:"dubbedAt"`
}

// EndAtChainMicros is where the next segment begins.
func (s Segment) EndAtChainMicros() int64 {
	return s.BeginAtChainMicros + s.DurationMicros
}

// ChoicesOf returns the choices of one program type.
func (s Segment) ChoicesOf(t content.ProgramType) []SegmentChoice {
	var out []SegmentChoice
	for _, c := range s.Choices {
		if c.ProgramType == t {
			out = append(out, c)
		}
	}
	return out
}

// ChoiceOf returns the first choice of a program type, typically Macro or Main.
func (s Segment) ChoiceOf(t content.ProgramType) (SegmentChoice, bool) {
	for _, c := range s.Choices {
		if c.ProgramType == t {
			return c, true
		}
	}
	return SegmentChoice{}, false
}

// PicksOf returns the picks arranged for one choice.
func (s Segment) PicksOf(choiceID string) []Pick {
	arr := map[string]bool{}
	for _, a := range s.Arrangements {
		if a.ChoiceID == choiceID {
			arr[a.ID] = true
		}
	}
	var out []Pick
	for _, p := range s.Picks {
		if arr[p.ArrangementID] {
			out = append(out, p)
		}
	}
	return out
}

// Readable reports whether continuity, dub and UI readers may observe the segment.
func (s Segment) Readable() bool {
	switch s.State {
	case SegmentCrafted, SegmentDubbing, SegmentDubbed:
		return true
	}
	return false
}

// Clone returns a deep copy.
func (s Segment) Clone() Segment {
	out := s
	out.Memes = append([]string(nil), s.Memes...)
	out.Chords = append([]SegmentChord(nil), s.Chords...)
	out.Voicings = append([]SegmentChordVoicing(nil), s.Voicings...)
	out.Choices = append([]SegmentChoice(nil), s.Choices...)
	out.Arrangements = append([]Arrangement(nil), s.Arrangements...)
	out.Picks = append([]Pick(nil), s.Picks...)
	out.Missing = append([]string(nil), s.Missing...)
	if s.Output != nil {
		o := *s.Output
		out.Output = &o
	}
	return out
}

// IsAudible reports whether a choice plays at the given segment delta.
func IsAudible(c SegmentChoice, delta int) bool {
	return (c.DeltaIn == DeltaUnlimited || delta >= c.DeltaIn) &&
		(c.DeltaOut == DeltaUnlimited || delta <= c.DeltaOut)
}

// InBounds is IsAudible for a fractional position inside a segment.
func InBounds(floor, ceiling int, value float64) bool {
	return (floor == DeltaUnlimited || value >= float64(floor)) &&
		(ceiling == DeltaUnlimited || value <= float64(ceiling))
}
