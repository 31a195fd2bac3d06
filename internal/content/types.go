package content

import "strings"

// ProgramType says which craft stage a program feeds.
type ProgramType string

const (
	ProgramMacro  ProgramType = "Macro"
	ProgramMain   ProgramType = "Main"
	ProgramBeat   ProgramType = "Beat"
	ProgramDetail ProgramType = "Detail"
)

// ProgramTypes lists every program type in craft order.
var ProgramTypes = []ProgramType{ProgramMacro, ProgramMain, ProgramBeat, ProgramDetail}

// State marks whether library content is released for fresh selection.
type State string

const (
	StatePublished State = "Published"
	StateDraft     State = "Draft"
)

// InstrumentType classifies instruments and the program voices they can play.
type InstrumentType string

const (
	InstrumentBackground InstrumentType = "Background"
	InstrumentBass       InstrumentType = "Bass"
	InstrumentDrum       InstrumentType = "Drum"
	InstrumentHook       InstrumentType = "Hook"
	InstrumentPad        InstrumentType = "Pad"
	InstrumentPercussion InstrumentType = "Percussion"
	InstrumentStab       InstrumentType = "Stab"
	InstrumentSticky     InstrumentType = "Sticky"
	InstrumentStripe     InstrumentType = "Stripe"
	InstrumentTransition InstrumentType = "Transition"
)

// InstrumentTypes lists every known instrument type.
var InstrumentTypes = []InstrumentType{
	InstrumentBackground, InstrumentBass, InstrumentDrum, InstrumentHook, InstrumentPad,
	InstrumentPercussion, InstrumentStab, InstrumentSticky, InstrumentStripe, InstrumentTransition,
}

// ParseInstrumentType matches case-insensitively. ok is false for unknown names.
func ParseInstrumentType(s string) (InstrumentType, bool) {
	s = strings.TrimSpace(s)
	for _, t := range InstrumentTypes {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	return "", false
}

// InstrumentMode decides how an instrument's audio is arranged.
type InstrumentMode string

const (
	ModeEvent InstrumentMode = "Event"
	ModeChord InstrumentMode = "Chord"
	ModeLoop  InstrumentMode = "Loop"
)

// ProgramConfig carries per-program tunables.
type ProgramConfig struct {
	BarBeats                int  `yaml:"bar_beats,omitempty" json:"barBeats,omitempty"`
	DoPatternRestartOnChord bool `yaml:"do_pattern_restart_on_chord,omitempty" json:"doPatternRestartOnChord,omitempty"`
}

// DefaultBarBeats applies when a program does not declare a meter.
const DefaultBarBeats = 4

// Beats returns the program's beats per bar.
func (c ProgramConfig) Beats() int {
	if c.BarBeats <= 0 {
		return DefaultBarBeats
	}
	return c.BarBeats
}

// Program is a unit of musical content of one ProgramType.
type Program struct {
	ID     string
	Type   ProgramType
	State  State
	Name   string
	Key    string
	Tempo  float64
	Config ProgramConfig
	Memes  []string
}

// ProgramSequence is a run of bars inside a program. Total counts bars.
type ProgramSequence struct {
	ID        string
	ProgramID string
	Name      string
	Key       string
	Total     int
	Intensity float64
}

// ProgramSequenceBinding places a sequence at an offset of its program's
// timeline. Several bindings may share an offset.
type ProgramSequenceBinding struct {
	ID         string
	ProgramID  string
	SequenceID string
	Offset     int
	Memes      []string
}

// ProgramSequenceChord sits at a beat position of its sequence.
type ProgramSequenceChord struct {
	ID         string
	ProgramID  string
	SequenceID string
	Name       string
	Position   float64
}

// ProgramSequenceChordVoicing lists the notes one instrument type plays for a chord.
type ProgramSequenceChordVoicing struct {
	ID        string
	ProgramID string
	ChordID   string
	Type      InstrumentType
	Notes     string
}

// ProgramVoice is a named part of a program.
type ProgramVoice struct {
	ID        string
	ProgramID string
	Type      InstrumentType
	Name      string
	Order     float64
}

// ProgramVoiceTrack is a named lane of a voice. For drums the track name is
// the audio event name (KICK, SNARE...).
type ProgramVoiceTrack struct {
	ID        string
	ProgramID string
	VoiceID   string
	Name      string
	Order     float64
}

// ProgramSequencePattern is a voice's material for a sequence. Total counts
// bars; zero means the pattern spans the whole segment.
type ProgramSequencePattern struct {
	ID         string
	ProgramID  string
	SequenceID string
	VoiceID    string
	Name       string
	Total      int
}

// ProgramSequencePatternEvent is one note in a pattern. Position and Duration
// count beats from the start of the pattern.
type ProgramSequencePatternEvent struct {
	ID        string
	ProgramID string
	PatternID string
	TrackID   string
	Position  float64
	Duration  float64
	Velocity  float64
	Tones     string
}

// InstrumentConfig carries per-instrument tunables.
type InstrumentConfig struct {
	IsTonal                bool `yaml:"is_tonal,omitempty" json:"isTonal,omitempty"`
	IsOneShot              bool `yaml:"is_one_shot,omitempty" json:"isOneShot,omitempty"`
	IsOneShotCutoffEnabled bool `yaml:"is_one_shot_cutoff_enabled,omitempty" json:"isOneShotCutoffEnabled,omitempty"`
}

// Instrument is a playable sound set.
type Instrument struct {
	ID     string
	Type   InstrumentType
	Mode   InstrumentMode
	State  State
	Name   string
	Volume float64
	Config InstrumentConfig
	Memes  []string
}

// InstrumentAudio is one sample of an instrument. Event names the drum hit it
// answers to; Tones holds notes for tonal audio or a chord name for chord
// instruments.
type InstrumentAudio struct {
	ID               string
	InstrumentID     string
	Name             string
	Event            string
	Tones            string
	Intensity        float64
	Volume           float64
	Tempo            float64
	TotalBeats       float64
	TransientSeconds float64
	Waveform         string
}

// Template binds a set of programs and instruments to a chain.
type Template struct {
	ID          string
	Key         string
	Name        string
	Programs    []string
	Instruments []string
}

// Content is the flat set of entities a SourceMaterial indexes.
type Content struct {
	Templates        []Template
	Programs         []Program
	Sequences        []ProgramSequence
	Bindings         []ProgramSequenceBinding
	Chords           []ProgramSequenceChord
	Voicings         []ProgramSequenceChordVoicing
	Voices           []ProgramVoice
	Tracks           []ProgramVoiceTrack
	Patterns         []ProgramSequencePattern
	Events           []ProgramSequencePatternEvent
	Instruments      []Instrument
	InstrumentAudios []InstrumentAudio
}
