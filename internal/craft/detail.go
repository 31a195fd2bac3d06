package craft

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/content"
	"github.com/kingrea/chainforge/internal/fabricator"
)

// detail chooses one detail program per voicing type of the main program,
// in detail layer order, and an instrument for each matching voice.
func (c *crafter) detail() error {
	f := c.f
	src := f.Source()
	mainChoice, ok := chain.Segment{Choices: f.Choices()}.ChoiceOf(content.ProgramMain)
	if !ok {
		return nil
	}
	types := c.detailLayers(src.VoicingTypes(mainChoice.ProgramID))
	if len(types) == 0 {
		return nil
	}
	continued := f.ChoicesIfContinued(content.ProgramDetail)

	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	tc := f.Template()
	deltas := c.precomputeDeltas(content.ProgramDetail, names, tc.DetailLayersToPrioritize(), tc.DeltaArcDetailLayersIncoming,
		func(layer string) (chain.SegmentChoice, bool) {
			for _, prev := range continued {
				if string(prev.InstrumentType) == layer {
					return prev, true
				}
			}
			return chain.SegmentChoice{}, false
		})

	for _, typ := range types {
		program, ok, err := c.detailProgram(typ, continued)
		if err != nil {
			return err
		}
		if !ok {
			f.ReportMissing(fabricator.EntityProgram, fmt.Sprintf("Detail-type with voicing-type %s", typ))
			continue
		}
		sequence, ok := c.sequenceFor(program.ID, continued)
		if !ok {
			f.ReportMissing(fabricator.EntityProgramSequence, fmt.Sprintf("sequence of detail program %s", program.ID))
			continue
		}
		for _, v := range src.VoicesOfType(program.ID, typ) {
			if err := c.craftVoice(content.ProgramDetail, program, sequence, v, deltas[string(typ)], nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// detailProgram continues the prior detail program of a voicing type or
// draws a fresh one.
func (c *crafter) detailProgram(typ content.InstrumentType, continued []chain.SegmentChoice) (content.Program, bool, error) {
	for _, prev := range continued {
		if prev.InstrumentType != typ {
			continue
		}
		p, ok := c.f.Source().Program(prev.ProgramID)
		if !ok {
			return content.Program{}, false, fabricator.Errorf("prior detail program %q no longer resolves", prev.ProgramID)
		}
		return p, true, nil
	}
	p, ok := c.chooseFreshProgram(content.ProgramDetail, typ)
	return p, ok, nil
}

// detailLayers orders voicing types by the configured layer order. Types
// the order does not name follow, alphabetically.
func (c *crafter) detailLayers(types []content.InstrumentType) []content.InstrumentType {
	order := c.f.Template().DetailLayers()
	rank := func(t content.InstrumentType) int {
		for i, name := range order {
			if strings.EqualFold(name, string(t)) {
				return i
			}
		}
		return len(order)
	}
	out := append([]content.InstrumentType(nil), types...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}
