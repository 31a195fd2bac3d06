// Package contenttest builds SourceMaterial fixtures in code.
package contenttest

import (
	"fmt"
	"strings"

	"github.com/kingrea/chainforge/internal/content"
)

// Builder accumulates library entities. Methods panic on references to
// unknown parents; fixtures are expected to be correct.
type Builder struct {
	c content.Content
}

// Event is a pattern event addressed by track name.
type Event struct {
	Track    string
	Position float64
	Duration float64
	Velocity float64
	Tones    string
}

// New returns an empty builder.
func New() *Builder { return &Builder{} }

// Program adds a published program.
func (b *Builder) Program(id string, t content.ProgramType, tempo float64, key string, memes ...string) *Builder {
	return b.ProgramWith(content.Program{ID: id, Type: t, State: content.StatePublished, Name: id, Key: key, Tempo: tempo, Memes: memes})
}

// ProgramWith adds a fully specified program.
func (b *Builder) ProgramWith(p content.Program) *Builder {
	if p.State == "" {
		p.State = content.StatePublished
	}
	b.c.Programs = append(b.c.Programs, p)
	return b
}

// Sequence adds a sequence to a program.
func (b *Builder) Sequence(programID, id string, total int, intensity float64) *Builder {
	b.c.Sequences = append(b.c.Sequences, content.ProgramSequence{
		ID: id, ProgramID: programID, Name: id, Total: total, Intensity: intensity,
	})
	return b
}

// Bind places a sequence at each offset. Binding ids are "<sequence>@<offset>".
func (b *Builder) Bind(programID, sequenceID string, offsets ...int) *Builder {
	for _, o := range offsets {
		b.c.Bindings = append(b.c.Bindings, content.ProgramSequenceBinding{
			ID: fmt.Sprintf("%s@%d", sequenceID, o), ProgramID: programID, SequenceID: sequenceID, Offset: o,
		})
	}
	return b
}

// Chord adds a chord with per-type voicings.
func (b *Builder) Chord(programID, sequenceID, id, name string, position float64, voicings map[content.InstrumentType]string) *Builder {
	b.c.Chords = append(b.c.Chords, content.ProgramSequenceChord{
		ID: id, ProgramID: programID, SequenceID: sequenceID, Name: name, Position: position,
	})
	for t, notes := range voicings {
		b.c.Voicings = append(b.c.Voicings, content.ProgramSequenceChordVoicing{
			ID: id + "-" + string(t), ProgramID: programID, ChordID: id, Type: t, Notes: notes,
		})
	}
	return b
}

// Voice adds a voice and its tracks. Track ids are "<voice>-<lowercased name>".
func (b *Builder) Voice(programID, id string, t content.InstrumentType, name string, tracks ...string) *Builder {
	b.c.Voices = append(b.c.Voices, content.ProgramVoice{
		ID: id, ProgramID: programID, Type: t, Name: name, Order: float64(len(b.c.Voices)),
	})
	for i, tr := range tracks {
		b.c.Tracks = append(b.c.Tracks, content.ProgramVoiceTrack{
			ID: trackID(id, tr), ProgramID: programID, VoiceID: id, Name: tr, Order: float64(i),
		})
	}
	return b
}

// Pattern adds a pattern with events.
func (b *Builder) Pattern(programID, sequenceID, voiceID, id string, total int, events ...Event) *Builder {
	b.c.Patterns = append(b.c.Patterns, content.ProgramSequencePattern{
		ID: id, ProgramID: programID, SequenceID: sequenceID, VoiceID: voiceID, Name: id, Total: total,
	})
	for i, e := range events {
		b.c.Events = append(b.c.Events, content.ProgramSequencePatternEvent{
			ID: fmt.Sprintf("%s-e%d", id, i), ProgramID: programID, PatternID: id, TrackID: trackID(voiceID, e.Track),
			Position: e.Position, Duration: e.Duration, Velocity: e.Velocity, Tones: e.Tones,
		})
	}
	return b
}

// Instrument adds a published instrument.
func (b *Builder) Instrument(id string, t content.InstrumentType, mode content.InstrumentMode, cfg content.InstrumentConfig, memes ...string) *Builder {
	if mode == "" {
		mode = content.ModeEvent
	}
	b.c.Instruments = append(b.c.Instruments, content.Instrument{
		ID: id, Type: t, Mode: mode, State: content.StatePublished, Name: id, Volume: 1, Config: cfg, Memes: memes,
	})
	return b
}

// Audio adds an instrument audio.
func (b *Builder) Audio(instrumentID, id, event, tones string, intensity float64) *Builder {
	b.c.InstrumentAudios = append(b.c.InstrumentAudios, content.InstrumentAudio{
		ID: id, InstrumentID: instrumentID, Name: id, Event: event, Tones: tones, Intensity: intensity, Volume: 1,
	})
	return b
}

// Content returns the accumulated entities.
func (b *Builder) Content() content.Content { return b.c }

// Source indexes the accumulated entities.
func (b *Builder) Source() *content.SourceMaterial {
	return content.NewSourceMaterial("test", b.c)
}

func trackID(voiceID, name string) string {
	return voiceID + "-" + strings.ToLower(name)
}
