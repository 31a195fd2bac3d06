package fabricator

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/content"
	"github.com/kingrea/chainforge/internal/music"
)

// Audio match weights. Only their order matters.
const (
	scoreEventMatch = 300
	scoreExactNote  = 300
	scoreSameClass  = 200
	scoreAtonal     = 100
	scoreVelocity   = 100
)

type section struct {
	from, to float64
}

// CraftNoteEventArrangements expands the choice's sequence patterns into
// picks. Patterns tile to fill the segment; with DoPatternRestartOnChord the
// tiling restarts at each chord. Events without matching audio are dropped.
func (f *Fabricator) CraftNoteEventArrangements(h ChoiceHandle, treatAsPercussion bool) error {
	choice, ok := f.choice(h)
	if !ok {
		return Errorf("unknown choice %s", h.id)
	}
	program, ok := f.source.Program(choice.ProgramID)
	if !ok {
		return Errorf("choice %s program %q does not resolve", choice.ID, choice.ProgramID)
	}
	voice, ok := f.source.Voice(choice.ProgramVoiceID)
	if !ok {
		return Errorf("choice %s voice %q does not resolve", choice.ID, choice.ProgramVoiceID)
	}
	instrument, ok := f.source.Instrument(choice.InstrumentID)
	if !ok {
		return Errorf("choice %s instrument %q does not resolve", choice.ID, choice.InstrumentID)
	}
	timing, err := f.Timing()
	if err != nil {
		return err
	}
	atonal := treatAsPercussion || h.percussion || !instrument.Config.IsTonal
	for _, s := range f.sections(program) {
		f.logger.Debug("arranging section", "choice", choice.ID,
			"from", timing.FormatPosition(timing.BeatsToMicros(s.from)),
			"to", timing.FormatPosition(timing.BeatsToMicros(s.to)))
		if err := f.craftSection(timing, choice, program, voice, instrument, atonal, s); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fabricator) sections(program content.Program) []section {
	total := f.TotalBeats()
	if !program.Config.DoPatternRestartOnChord || len(f.segment.Chords) == 0 {
		return []section{{0, total}}
	}
	var out []section
	for i, ch := range f.segment.Chords {
		from := ch.Position
		if i == 0 {
			from = 0
		}
		to := total
		if i+1 < len(f.segment.Chords) {
			to = f.segment.Chords[i+1].Position
		}
		if to > from {
			out = append(out, section{from, to})
		}
	}
	return out
}

func (f *Fabricator) craftSection(timing Timing, choice chain.SegmentChoice, program content.Program, voice content.ProgramVoice, instrument content.Instrument, atonal bool, s section) error {
	patterns := f.source.Patterns(choice.ProgramSequenceID, voice.ID)
	if len(patterns) == 0 {
		f.ReportMissing(EntityPattern, fmt.Sprintf("voice %q of sequence %s", voice.Name, choice.ProgramSequenceID))
		return nil
	}
	programBeats := float64(program.Config.Beats())
	cur := s.from
	for cur < s.to {
		pattern := patterns[f.rng.Intn(len(patterns))]
		length := float64(pattern.Total) * programBeats
		if length <= 0 || length > s.to-cur {
			length = s.to - cur
		}
		arrangementID := f.arrangementFor(choice.ID, pattern.ID)
		for _, e := range f.source.Events(pattern.ID) {
			if e.Position >= length {
				continue
			}
			f.craftEventPicks(timing, choice, instrument, atonal, arrangementID, e, cur+e.Position, cur+length)
		}
		cur += length
	}
	return nil
}

func (f *Fabricator) arrangementFor(choiceID, patternID string) string {
	key := choiceID + "/" + patternID
	if id, ok := f.arrangement[key]; ok {
		return id
	}
	id := f.ids.next("arrangement")
	f.arrangement[key] = id
	f.segment.Arrangements = append(f.segment.Arrangements, chain.Arrangement{ID: id, ChoiceID: choiceID, PatternID: patternID})
	return id
}

// volumeRatio is 1 while the choice is inside its delta window at position.
func (f *Fabricator) volumeRatio(choice chain.SegmentChoice, position float64) float64 {
	if !f.template.DeltaArc() {
		return 1
	}
	bars := float64(f.segment.Delta) + position/float64(f.barBeats)
	if chain.InBounds(choice.DeltaIn, choice.DeltaOut, bars) {
		return 1
	}
	return 0
}

func (f *Fabricator) craftEventPicks(timing Timing, choice chain.SegmentChoice, instrument content.Instrument, atonal bool, arrangementID string, e content.ProgramSequencePatternEvent, position, to float64) {
	if position < 0 || position >= f.TotalBeats() {
		return
	}
	duration := math.Min(e.Duration, to-position)
	ratio := f.volumeRatio(choice, position)
	if ratio <= 0 {
		return
	}
	trackName := ""
	if track, ok := f.source.Track(e.TrackID); ok {
		trackName = strings.ToUpper(strings.TrimSpace(track.Name))
	}
	if atonal {
		audio, ok := f.selectAudio(instrument.ID, trackName, music.Note{Atonal: true}, true, e.Velocity)
		if !ok {
			f.ReportMissing(EntityInstrumentAudio, fmt.Sprintf("event %q of instrument %s", trackName, instrument.ID))
			return
		}
		f.addPick(timing, arrangementID, audio, trackName, music.Atonal, position, duration, e.Velocity*ratio)
		return
	}
	notes := music.ParseNotes(e.Tones)
	if ch, ok := f.ChordAt(position); ok {
		if voicing, ok := f.VoicingNotes(ch.ID, instrument.Type); ok {
			notes = music.Voice(notes, music.ParseNotes(voicing))
		}
	}
	for _, n := range notes {
		audio, ok := f.selectAudio(instrument.ID, trackName, n, false, e.Velocity)
		if !ok {
			f.ReportMissing(EntityInstrumentAudio, fmt.Sprintf("note %s of instrument %s", n, instrument.ID))
			continue
		}
		f.addPick(timing, arrangementID, audio, trackName, n.String(), position, duration, e.Velocity*ratio)
	}
}

// selectAudio finds the instrument audio nearest to an event. Atonal events
// need an audio whose event name equals the track name; tonal events need a
// matching note or an atonal audio. Velocity closeness breaks ties.
func (f *Fabricator) selectAudio(instrumentID, trackName string, note music.Note, atonal bool, velocity float64) (content.InstrumentAudio, bool) {
	var best content.InstrumentAudio
	bestScore := math.Inf(-1)
	for _, a := range f.source.Audios(instrumentID) {
		score := 0.0
		if atonal {
			if !strings.EqualFold(strings.TrimSpace(a.Event), trackName) {
				continue
			}
			score += scoreEventMatch
		} else {
			tones := music.ParseNotes(a.Tones)
			switch {
			case len(tones) == 0 || tones[0].Atonal:
				score += scoreAtonal
			case tones[0].MIDI == note.MIDI:
				score += scoreExactNote
			case tones[0].SameClass(note):
				score += scoreSameClass
			default:
				continue
			}
		}
		score -= math.Abs(a.Intensity-velocity) * scoreVelocity
		if score > bestScore {
			best, bestScore = a, score
		}
	}
	return best, !math.IsInf(bestScore, -1)
}

func (f *Fabricator) addPick(timing Timing, arrangementID string, audio content.InstrumentAudio, event, tones string, position, duration, amplitude float64) {
	start := timing.BeatsToMicros(position)
	f.segment.Picks = append(f.segment.Picks, chain.Pick{
		ID:                   f.ids.next("pick"),
		ArrangementID:        arrangementID,
		AudioID:              audio.ID,
		Event:                event,
		Tones:                tones,
		StartAtSegmentMicros: start,
		StartAtChainMicros:   timing.BeginAtChainMicros + start,
		LengthMicros:         timing.BeatsToMicros(math.Max(duration, 0)),
		Amplitude:            amplitude,
	})
}

// CraftChordParts lays one pick per chord section using the instrument audio
// named after the chord.
func (f *Fabricator) CraftChordParts(h ChoiceHandle) error {
	choice, ok := f.choice(h)
	if !ok {
		return Errorf("unknown choice %s", h.id)
	}
	instrument, ok := f.source.Instrument(choice.InstrumentID)
	if !ok {
		return Errorf("choice %s instrument %q does not resolve", choice.ID, choice.InstrumentID)
	}
	timing, err := f.Timing()
	if err != nil {
		return err
	}
	total := f.TotalBeats()
	arrangementID := f.arrangementFor(choice.ID, "")
	for i, ch := range f.segment.Chords {
		from := ch.Position
		to := total
		if i+1 < len(f.segment.Chords) {
			to = f.segment.Chords[i+1].Position
		}
		if to <= from || from >= total {
			continue
		}
		ratio := f.volumeRatio(choice, from)
		if ratio <= 0 {
			continue
		}
		audio, ok := f.chordAudio(instrument.ID, ch.Name)
		if !ok {
			f.ReportMissing(EntityInstrumentAudio, fmt.Sprintf("chord %q of instrument %s", ch.Name, instrument.ID))
			continue
		}
		f.addPick(timing, arrangementID, audio, ch.Name, ch.Name, from, to-from, ratio)
	}
	return nil
}

func (f *Fabricator) chordAudio(instrumentID, chordName string) (content.InstrumentAudio, bool) {
	for _, a := range f.source.Audios(instrumentID) {
		if music.SameChordName(a.Tones, chordName) {
			return a, true
		}
	}
	return content.InstrumentAudio{}, false
}

// finalizeOneShotLengths cuts unterminated one-shot picks at the next pick
// of the same event, or at the segment end.
func (f *Fabricator) finalizeOneShotLengths() {
	types := f.template.AudioLengthFinalizationTypes()
	cutoff := map[string]bool{}
	for _, c := range f.segment.Choices {
		inst, ok := f.source.Instrument(c.InstrumentID)
		if !ok || !inst.Config.IsOneShot || !inst.Config.IsOneShotCutoffEnabled || !hasFold(types, string(inst.Type)) {
			continue
		}
		for _, a := range f.segment.Arrangements {
			if a.ChoiceID == c.ID {
				cutoff[a.ID] = true
			}
		}
	}
	if len(cutoff) == 0 {
		return
	}
	groups := map[string][]int{}
	for i, p := range f.segment.Picks {
		if cutoff[p.ArrangementID] {
			key := p.ArrangementID + "/" + p.Event
			groups[key] = append(groups[key], i)
		}
	}
	for _, idx := range groups {
		sort.Slice(idx, func(a, b int) bool {
			return f.segment.Picks[idx[a]].StartAtSegmentMicros < f.segment.Picks[idx[b]].StartAtSegmentMicros
		})
		for n, i := range idx {
			p := &f.segment.Picks[i]
			if p.LengthMicros > 0 {
				continue
			}
			end := f.segment.DurationMicros
			if n+1 < len(idx) {
				end = f.segment.Picks[idx[n+1]].StartAtSegmentMicros
			}
			if end > p.StartAtSegmentMicros {
				p.LengthMicros = end - p.StartAtSegmentMicros
			}
		}
	}
}

func hasFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
