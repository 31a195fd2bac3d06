package craft

import (
	"math"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/content"
	"github.com/kingrea/chainforge/internal/fabricator"
)

// main chooses the main program and binding, then sets tempo, key, length,
// delta, intensity and chords of the segment.
func (c *crafter) main() error {
	f := c.f
	src := f.Source()
	prev, hasPrev := f.PreviousChoice(content.ProgramMain)

	var (
		program content.Program
		offset  int
	)
	if f.Type() == chain.SegmentContinue && hasPrev {
		p, ok := src.Program(prev.ProgramID)
		if !ok {
			return fabricator.Errorf("prior main program %q no longer resolves", prev.ProgramID)
		}
		b, ok := src.Binding(prev.ProgramSequenceBindingID)
		if !ok {
			return fabricator.Errorf("prior main binding %q no longer resolves", prev.ProgramSequenceBindingID)
		}
		program = p
		offset, _ = src.NextOffset(p.ID, b.Offset)
	} else {
		avoid := ""
		if hasPrev {
			avoid = prev.ProgramID
		}
		p, ok := c.chooseProgram(content.ProgramMain, avoid, func(p content.Program) bool {
			return len(src.AvailableOffsets(p.ID)) > 0
		})
		if !ok {
			f.ReportMissing(fabricator.EntityProgram, "Main-type program")
			return fabricator.Errorf("no Main-type program available")
		}
		program = p
		offset = src.AvailableOffsets(p.ID)[0]
	}

	binding, ok := c.pickBinding(program.ID, offset)
	if !ok {
		return fabricator.Errorf("main program %s has no binding at offset %d", program.ID, offset)
	}
	sequence, ok := src.Sequence(binding.SequenceID)
	if !ok {
		return fabricator.Errorf("main binding %s references sequence %q which does not resolve", binding.ID, binding.SequenceID)
	}
	if sequence.Total <= 0 {
		return fabricator.Errorf("main sequence %s has no length", sequence.ID)
	}
	if _, err := f.Put(chain.SegmentChoice{
		ProgramType:              content.ProgramMain,
		ProgramID:                program.ID,
		ProgramSequenceID:        sequence.ID,
		ProgramSequenceBindingID: binding.ID,
		DeltaIn:                  chain.DeltaUnlimited,
		DeltaOut:                 chain.DeltaUnlimited,
	}, false); err != nil {
		return err
	}

	key := sequence.Key
	if key == "" {
		key = program.Key
	}
	delta := 0
	if prior, ok := f.Prior(); ok && f.Type() == chain.SegmentContinue {
		delta = prior.Delta + prior.Total
	}
	if err := f.SetMainContext(fabricator.MainContext{
		Tempo:     program.Tempo,
		BarBeats:  program.Config.Beats(),
		Key:       key,
		Total:     sequence.Total,
		Delta:     delta,
		Intensity: c.intensity(sequence, delta),
	}); err != nil {
		return err
	}

	totalBeats := f.TotalBeats()
	for _, ch := range src.Chords(sequence.ID) {
		if ch.Position < totalBeats {
			f.AddChord(ch, src.Voicings(ch.ID))
		}
	}
	return nil
}

// intensity averages the macro and main sequence intensities and, with
// auto-crescendo on, scales the result along the main program's delta.
func (c *crafter) intensity(mainSequence content.ProgramSequence, delta int) float64 {
	values := []float64{mainSequence.Intensity}
	for _, ch := range c.f.Choices() {
		if ch.ProgramType != content.ProgramMacro {
			continue
		}
		if seq, ok := c.f.Source().Sequence(ch.ProgramSequenceID); ok {
			values = append(values, seq.Intensity)
		}
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	intensity := sum / float64(len(values))

	t := c.f.Template()
	if t.AutoCrescendo() && t.MainProgramLengthMaxDelta > 0 {
		lo, hi := t.IntensityAutoCrescendoMinimum, t.IntensityAutoCrescendoMaximum
		progress := math.Min(1, float64(delta)/float64(t.MainProgramLengthMaxDelta))
		intensity = lo + (hi-lo)*progress*intensity
	}
	return math.Max(0, math.Min(1, intensity))
}
