package craft

import (
	"fmt"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/content"
	"github.com/kingrea/chainforge/internal/fabricator"
)

// beat chooses the beat program and an instrument for each of its voices.
func (c *crafter) beat() error {
	f := c.f
	src := f.Source()
	continued := f.ChoicesIfContinued(content.ProgramBeat)

	var (
		program content.Program
		ok      bool
	)
	if len(continued) > 0 {
		program, ok = src.Program(continued[0].ProgramID)
		if !ok {
			return fabricator.Errorf("prior beat program %q no longer resolves", continued[0].ProgramID)
		}
	} else {
		program, ok = c.chooseFreshProgram(content.ProgramBeat, content.InstrumentDrum)
		if !ok {
			f.ReportMissing(fabricator.EntityProgram, "Beat-type program")
			return nil
		}
	}

	sequence, ok := c.sequenceFor(program.ID, continued)
	if !ok {
		f.ReportMissing(fabricator.EntityProgramSequence, fmt.Sprintf("sequence of beat program %s", program.ID))
		return nil
	}

	voices := src.Voices(program.ID)
	names := make([]string, 0, len(voices))
	for _, v := range voices {
		names = append(names, v.Name)
	}
	t := f.Template()
	deltas := c.precomputeDeltas(content.ProgramBeat, names, t.BeatLayersToPrioritize(), t.DeltaArcBeatLayersIncoming,
		func(layer string) (chain.SegmentChoice, bool) {
			for _, v := range voices {
				if v.Name == layer {
					prev, ok, _ := f.ChoiceIfContinued(content.ProgramBeat, v)
					return prev, ok
				}
			}
			return chain.SegmentChoice{}, false
		})

	for _, v := range voices {
		if err := c.craftVoice(content.ProgramBeat, program, sequence, v, deltas[v.Name], src.TrackNames(v.ID)); err != nil {
			return err
		}
	}
	return nil
}

// sequenceFor keeps the continued sequence when it still belongs to the
// program and draws one otherwise.
func (c *crafter) sequenceFor(programID string, continued []chain.SegmentChoice) (content.ProgramSequence, bool) {
	src := c.f.Source()
	for _, prev := range continued {
		if prev.ProgramID != programID {
			continue
		}
		if seq, ok := src.Sequence(prev.ProgramSequenceID); ok {
			return seq, true
		}
	}
	seqs := src.Sequences(programID)
	if len(seqs) == 0 {
		return content.ProgramSequence{}, false
	}
	return seqs[c.f.Rand().Intn(len(seqs))], true
}

// craftVoice chooses (or continues) the instrument of one voice, registers
// the choice and arranges its picks.
func (c *crafter) craftVoice(t content.ProgramType, program content.Program, sequence content.ProgramSequence, voice content.ProgramVoice, d deltaRange, requiredEvents []string) error {
	f := c.f
	src := f.Source()
	mute := f.Rand().Float64() < f.Template().MuteProbability(string(voice.Type))

	choice := chain.SegmentChoice{
		ProgramType:       t,
		ProgramID:         program.ID,
		ProgramSequenceID: sequence.ID,
		ProgramVoiceID:    voice.ID,
		InstrumentType:    voice.Type,
		Mute:              mute,
	}
	prev, ok, err := f.ChoiceIfContinued(t, voice)
	if err != nil {
		return err
	}
	if ok {
		if _, found := src.Instrument(prev.InstrumentID); !found {
			return fabricator.Errorf("prior choice %s references instrument %q which no longer resolves", prev.ID, prev.InstrumentID)
		}
		choice.InstrumentID = prev.InstrumentID
		choice.InstrumentMode = prev.InstrumentMode
		choice.DeltaIn = prev.DeltaIn
		choice.DeltaOut = prev.DeltaOut
	} else {
		inst, found := c.chooseFreshInstrument(voice.Type, requiredEvents, c.exclusion(t))
		if !found {
			f.ReportMissing(fabricator.EntityInstrument, fmt.Sprintf("%s-type instrument for voice %s", voice.Type, voice.Name))
			return nil
		}
		choice.InstrumentID = inst.ID
		choice.InstrumentMode = inst.Mode
		choice.DeltaIn = d.in
		choice.DeltaOut = d.out
	}

	percussion := t == content.ProgramBeat
	h, err := f.Put(choice, percussion)
	if err != nil {
		return err
	}
	if choice.InstrumentMode == content.ModeChord {
		return f.CraftChordParts(h)
	}
	return f.CraftNoteEventArrangements(h, percussion)
}
