package craft

import (
	"strings"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/content"
)

// eligible reports whether content in state s may be chosen afresh. Draft
// content is only heard on preview chains.
func (c *crafter) eligible(s content.State) bool {
	return s == content.StatePublished || c.f.Chain().Type == chain.TypePreview
}

// chooseProgram draws a program of type t that passes keep. Programs other
// than avoid go in the first phase, weighted by meme affinity; avoid itself
// is the fallback.
func (c *crafter) chooseProgram(t content.ProgramType, avoid string, keep func(content.Program) bool) (content.Program, bool) {
	ctx := c.f.ContextMemes()
	bag := NewBag()
	for _, p := range c.f.Source().Programs(t) {
		if !c.eligible(p.State) || (keep != nil && !keep(p)) {
			continue
		}
		phase := 0
		if p.ID == avoid {
			phase = 1
		}
		bag.Add(phase, p.ID, 1+c.scorer.Score(p.Memes, ctx))
	}
	id, ok := bag.Pick(c.f.Rand())
	if !ok {
		return content.Program{}, false
	}
	c.f.Logger().Debug("program chosen", "type", string(t), "program", id, "candidates", bag.Len())
	return c.f.Source().Program(id)
}

// chooseFreshProgram draws a program of type t having at least one voice of
// the given instrument type.
func (c *crafter) chooseFreshProgram(t content.ProgramType, voiceType content.InstrumentType) (content.Program, bool) {
	src := c.f.Source()
	return c.chooseProgram(t, "", func(p content.Program) bool {
		return len(src.VoicesOfType(p.ID, voiceType)) > 0
	})
}

// chooseFreshInstrument draws an instrument of type t, skipping exclude.
// Instruments with audio for every required event are preferred; those
// covering only some of them are the fallback.
func (c *crafter) chooseFreshInstrument(t content.InstrumentType, requiredEvents []string, exclude map[string]struct{}) (content.Instrument, bool) {
	src := c.f.Source()
	ctx := c.f.ContextMemes()
	bag := NewBag()
	for _, inst := range src.Instruments(t) {
		if _, skip := exclude[inst.ID]; skip {
			continue
		}
		if !c.eligible(inst.State) || len(src.Audios(inst.ID)) == 0 {
			continue
		}
		matched := countMatched(src.AudioEventNames(inst.ID), requiredEvents)
		weight := 1 + c.scorer.Score(inst.Memes, ctx)
		switch {
		case matched == len(requiredEvents):
			bag.Add(0, inst.ID, weight)
		case matched > 0:
			bag.Add(1, inst.ID, weight+matched)
		}
	}
	id, ok := bag.Pick(c.f.Rand())
	if !ok {
		return content.Instrument{}, false
	}
	c.f.Logger().Debug("instrument chosen", "type", string(t), "instrument", id, "candidates", bag.Len())
	return src.Instrument(id)
}

// exclusion is the instrument set fresh choices of type t must avoid.
func (c *crafter) exclusion(t content.ProgramType) map[string]struct{} {
	if !c.f.Template().ExcludeClaimedInstruments {
		return map[string]struct{}{}
	}
	return c.f.ClaimedInstruments(t)
}

func countMatched(have, want []string) int {
	n := 0
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				n++
				break
			}
		}
	}
	return n
}
