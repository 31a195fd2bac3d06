package content

import (
	"sort"
	"strings"
)

// SourceMaterial is a read-only index over one template's bound content.
// Every lookup is total: missing content yields a zero value with ok=false or
// an empty slice, never an error. It is safe for concurrent readers.
type SourceMaterial struct {
	templateKey string

	programs    map[string]Program
	sequences   map[string]ProgramSequence
	bindings    map[string]ProgramSequenceBinding
	chords      map[string]ProgramSequenceChord
	voices      map[string]ProgramVoice
	tracks      map[string]ProgramVoiceTrack
	patterns    map[string]ProgramSequencePattern
	instruments map[string]Instrument
	audios      map[string]InstrumentAudio

	programOrder    []string
	instrumentOrder []string

	sequencesByProgram    map[string][]ProgramSequence
	bindingsByProgram     map[string][]ProgramSequenceBinding
	chordsBySequence      map[string][]ProgramSequenceChord
	voicingsByChord       map[string][]ProgramSequenceChordVoicing
	voicesByProgram       map[string][]ProgramVoice
	tracksByVoice         map[string][]ProgramVoiceTrack
	patternsBySequence    map[string][]ProgramSequencePattern
	eventsByPattern       map[string][]ProgramSequencePatternEvent
	audiosByInstrument    map[string][]InstrumentAudio
	offsetsByProgram      map[string][]int
	voicingTypesByProgram map[string][]InstrumentType
}

// NewSourceMaterial indexes c. Entities referencing content outside c are
// kept but unreachable through aggregate queries.
func NewSourceMaterial(templateKey string, c Content) *SourceMaterial {
	sm := &SourceMaterial{
		templateKey:           templateKey,
		programs:              map[string]Program{},
		sequences:             map[string]ProgramSequence{},
		bindings:              map[string]ProgramSequenceBinding{},
		chords:                map[string]ProgramSequenceChord{},
		voices:                map[string]ProgramVoice{},
		tracks:                map[string]ProgramVoiceTrack{},
		patterns:              map[string]ProgramSequencePattern{},
		instruments:           map[string]Instrument{},
		audios:                map[string]InstrumentAudio{},
		sequencesByProgram:    map[string][]ProgramSequence{},
		bindingsByProgram:     map[string][]ProgramSequenceBinding{},
		chordsBySequence:      map[string][]ProgramSequenceChord{},
		voicingsByChord:       map[string][]ProgramSequenceChordVoicing{},
		voicesByProgram:       map[string][]ProgramVoice{},
		tracksByVoice:         map[string][]ProgramVoiceTrack{},
		patternsBySequence:    map[string][]ProgramSequencePattern{},
		eventsByPattern:       map[string][]ProgramSequencePatternEvent{},
		audiosByInstrument:    map[string][]InstrumentAudio{},
		offsetsByProgram:      map[string][]int{},
		voicingTypesByProgram: map[string][]InstrumentType{},
	}
	for _, p := range c.Programs {
		sm.programs[p.ID] = p
		sm.programOrder = append(sm.programOrder, p.ID)
	}
	sort.Strings(sm.programOrder)
	for _, s := range c.Sequences {
		sm.sequences[s.ID] = s
		sm.sequencesByProgram[s.ProgramID] = append(sm.sequencesByProgram[s.ProgramID], s)
	}
	for _, b := range c.Bindings {
		sm.bindings[b.ID] = b
		sm.bindingsByProgram[b.ProgramID] = append(sm.bindingsByProgram[b.ProgramID], b)
	}
	for _, ch := range c.Chords {
		sm.chords[ch.ID] = ch
		sm.chordsBySequence[ch.SequenceID] = append(sm.chordsBySequence[ch.SequenceID], ch)
	}
	for _, v := range c.Voicings {
		sm.voicingsByChord[v.ChordID] = append(sm.voicingsByChord[v.ChordID], v)
	}
	for _, v := range c.Voices {
		sm.voices[v.ID] = v
		sm.voicesByProgram[v.ProgramID] = append(sm.voicesByProgram[v.ProgramID], v)
	}
	for _, t := range c.Tracks {
		sm.tracks[t.ID] = t
		sm.tracksByVoice[t.VoiceID] = append(sm.tracksByVoice[t.VoiceID], t)
	}
	for _, p := range c.Patterns {
		sm.patterns[p.ID] = p
		sm.patternsBySequence[p.SequenceID] = append(sm.patternsBySequence[p.SequenceID], p)
	}
	for _, e := range c.Events {
		sm.eventsByPattern[e.PatternID] = append(sm.eventsByPattern[e.PatternID], e)
	}
	for _, i := range c.Instruments {
		sm.instruments[i.ID] = i
		sm.instrumentOrder = append(sm.instrumentOrder, i.ID)
	}
	sort.Strings(sm.instrumentOrder)
	for _, a := range c.InstrumentAudios {
		sm.audios[a.ID] = a
		sm.audiosByInstrument[a.InstrumentID] = append(sm.audiosByInstrument[a.InstrumentID], a)
	}
	sm.sortIndexes()
	sm.buildDerived()
	return sm
}

func (sm *SourceMaterial) sortIndexes() {
	for _, list := range sm.sequencesByProgram {
		sort.SliceStable(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	for _, list := range sm.bindingsByProgram {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Offset != list[j].Offset {
				return list[i].Offset < list[j].Offset
			}
			return list[i].ID < list[j].ID
		})
	}
	for _, list := range sm.chordsBySequence {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Position != list[j].Position {
				return list[i].Position < list[j].Position
			}
			return list[i].ID < list[j].ID
		})
	}
	for _, list := range sm.voicingsByChord {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Type < list[j].Type })
	}
	for _, list := range sm.voicesByProgram {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Order != list[j].Order {
				return list[i].Order < list[j].Order
			}
			return list[i].Name < list[j].Name
		})
	}
	for _, list := range sm.tracksByVoice {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Order != list[j].Order {
				return list[i].Order < list[j].Order
			}
			return list[i].Name < list[j].Name
		})
	}
	for _, list := range sm.patternsBySequence {
		sort.SliceStable(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	for _, list := range sm.eventsByPattern {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Position != list[j].Position {
				return list[i].Position < list[j].Position
			}
			return list[i].ID < list[j].ID
		})
	}
	for _, list := range sm.audiosByInstrument {
		sort.SliceStable(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
}

func (sm *SourceMaterial) buildDerived() {
	for programID, list := range sm.bindingsByProgram {
		var offsets []int
		for _, b := range list {
			if len(offsets) == 0 || offsets[len(offsets)-1] != b.Offset {
				offsets = append(offsets, b.Offset)
			}
		}
		sm.offsetsByProgram[programID] = offsets
	}
	for programID, seqs := range sm.sequencesByProgram {
		seen := map[InstrumentType]bool{}
		var types []InstrumentType
		for _, s := range seqs {
			for _, ch := range sm.chordsBySequence[s.ID] {
				for _, v := range sm.voicingsByChord[ch.ID] {
					if !seen[v.Type] {
						seen[v.Type] = true
						types = append(types, v.Type)
					}
				}
			}
		}
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
		sm.voicingTypesByProgram[programID] = types
	}
}

// TemplateKey names the template this material was bound from.
func (sm *SourceMaterial) TemplateKey() string { return sm.templateKey }

// Program looks up a program by id.
func (sm *SourceMaterial) Program(id string) (Program, bool) {
	p, ok := sm.programs[id]
	return p, ok
}

// Programs returns programs of the given types (all types when none given), ordered by id.
func (sm *SourceMaterial) Programs(types ...ProgramType) []Program {
	var out []Program
	for _, id := range sm.programOrder {
		p := sm.programs[id]
		if len(types) == 0 || containsType(types, p.Type) {
			out = append(out, p)
		}
	}
	return out
}

// Sequence looks up a sequence by id.
func (sm *SourceMaterial) Sequence(id string) (ProgramSequence, bool) {
	s, ok := sm.sequences[id]
	return s, ok
}

// Sequences returns the sequences of a program.
func (sm *SourceMaterial) Sequences(programID string) []ProgramSequence {
	return sm.sequencesByProgram[programID]
}

// Binding looks up a sequence binding by id.
func (sm *SourceMaterial) Binding(id string) (ProgramSequenceBinding, bool) {
	b, ok := sm.bindings[id]
	return b, ok
}

// Bindings returns a program's sequence bindings ordered by offset.
func (sm *SourceMaterial) Bindings(programID string) []ProgramSequenceBinding {
	return sm.bindingsByProgram[programID]
}

// BindingsAtOffset returns the bindings of a program placed at offset.
func (sm *SourceMaterial) BindingsAtOffset(programID string, offset int) []ProgramSequenceBinding {
	var out []ProgramSequenceBinding
	for _, b := range sm.bindingsByProgram[programID] {
		if b.Offset == offset {
			out = append(out, b)
		}
	}
	return out
}

// AvailableOffsets returns the sorted distinct binding offsets of a program.
func (sm *SourceMaterial) AvailableOffsets(programID string) []int {
	return sm.offsetsByProgram[programID]
}

// NextOffset returns the offset after current, wrapping to the first one.
// ok is false when the program has no bindings.
func (sm *SourceMaterial) NextOffset(programID string, current int) (int, bool) {
	offsets := sm.offsetsByProgram[programID]
	if len(offsets) == 0 {
		return 0, false
	}
	for _, o := range offsets {
		if o > current {
			return o, true
		}
	}
	return offsets[0], true
}

// HasMoreOffsets reports whether at least n offsets follow current.
func (sm *SourceMaterial) HasMoreOffsets(programID string, current, n int) bool {
	offsets := sm.offsetsByProgram[programID]
	idx := sort.SearchInts(offsets, current)
	if idx >= len(offsets) || offsets[idx] != current {
		return false
	}
	return idx < len(offsets)-n
}

// Chords returns the chords of a sequence ordered by position.
func (sm *SourceMaterial) Chords(sequenceID string) []ProgramSequenceChord {
	return sm.chordsBySequence[sequenceID]
}

// Voicings returns the voicings of a chord.
func (sm *SourceMaterial) Voicings(chordID string) []ProgramSequenceChordVoicing {
	return sm.voicingsByChord[chordID]
}

// VoicingTypes returns the distinct instrument types voiced by any chord of a program.
func (sm *SourceMaterial) VoicingTypes(programID string) []InstrumentType {
	return sm.voicingTypesByProgram[programID]
}

// Voice looks up a program voice by id.
func (sm *SourceMaterial) Voice(id string) (ProgramVoice, bool) {
	v, ok := sm.voices[id]
	return v, ok
}

// Voices returns the voices of a program ordered by declared order then name.
func (sm *SourceMaterial) Voices(programID string) []ProgramVoice {
	return sm.voicesByProgram[programID]
}

// VoicesOfType returns the voices of a program with the given instrument type.
func (sm *SourceMaterial) VoicesOfType(programID string, t InstrumentType) []ProgramVoice {
	var out []ProgramVoice
	for _, v := range sm.voicesByProgram[programID] {
		if v.Type == t {
			out = append(out, v)
		}
	}
	return out
}

// Track looks up a voice track by id.
func (sm *SourceMaterial) Track(id string) (ProgramVoiceTrack, bool) {
	t, ok := sm.tracks[id]
	return t, ok
}

// Tracks returns the tracks of a voice.
func (sm *SourceMaterial) Tracks(voiceID string) []ProgramVoiceTrack {
	return sm.tracksByVoice[voiceID]
}

// TrackNames returns the distinct upper-cased track names of a voice.
func (sm *SourceMaterial) TrackNames(voiceID string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range sm.tracksByVoice[voiceID] {
		name := strings.ToUpper(strings.TrimSpace(t.Name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Pattern looks up a pattern by id.
func (sm *SourceMaterial) Pattern(id string) (ProgramSequencePattern, bool) {
	p, ok := sm.patterns[id]
	return p, ok
}

// Patterns returns the patterns of a sequence for one voice.
func (sm *SourceMaterial) Patterns(sequenceID, voiceID string) []ProgramSequencePattern {
	var out []ProgramSequencePattern
	for _, p := range sm.patternsBySequence[sequenceID] {
		if p.VoiceID == voiceID {
			out = append(out, p)
		}
	}
	return out
}

// Events returns the events of a pattern ordered by position.
func (sm *SourceMaterial) Events(patternID string) []ProgramSequencePatternEvent {
	return sm.eventsByPattern[patternID]
}

// Instrument looks up an instrument by id.
func (sm *SourceMaterial) Instrument(id string) (Instrument, bool) {
	i, ok := sm.instruments[id]
	return i, ok
}

// Instruments returns instruments of the given types (all when none given), ordered by id.
func (sm *SourceMaterial) Instruments(types ...InstrumentType) []Instrument {
	var out []Instrument
	for _, id := range sm.instrumentOrder {
		i := sm.instruments[id]
		if len(types) == 0 || containsInstrumentType(types, i.Type) {
			out = append(out, i)
		}
	}
	return out
}

// Audio looks up an instrument audio by id.
func (sm *SourceMaterial) Audio(id string) (InstrumentAudio, bool) {
	a, ok := sm.audios[id]
	return a, ok
}

// Audios returns the audio candidates of an instrument.
func (sm *SourceMaterial) Audios(instrumentID string) []InstrumentAudio {
	return sm.audiosByInstrument[instrumentID]
}

// AudioEventNames returns the distinct upper-cased event names of an instrument's audio.
func (sm *SourceMaterial) AudioEventNames(instrumentID string) []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range sm.audiosByInstrument[instrumentID] {
		name := strings.ToUpper(strings.TrimSpace(a.Event))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func containsType(list []ProgramType, t ProgramType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func containsInstrumentType(list []InstrumentType, t InstrumentType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}
