package craft

import (
	"math"
	"strings"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/content"
)

// deltaRange is the window of main-program bars a layer is audible in.
type deltaRange struct {
	in, out int
}

var unlimited = deltaRange{in: chain.DeltaUnlimited, out: chain.DeltaUnlimited}

// precomputeDeltas stages the entry of layers over the main program. Layers
// matching a priority term enter first; within each group the order is
// shuffled. Entry bars never decrease along that order. Layers the prior
// segment already carried keep their window on Continue segments.
func (c *crafter) precomputeDeltas(t content.ProgramType, layers, priorities []string, incoming int, prior func(layer string) (chain.SegmentChoice, bool)) map[string]deltaRange {
	out := make(map[string]deltaRange, len(layers))
	if !c.f.Template().DeltaArc() {
		for _, l := range layers {
			out[l] = unlimited
		}
		return out
	}
	rng := c.f.Rand()
	var first, rest []string
	for _, l := range layers {
		if matchesAny(l, priorities) {
			first = append(first, l)
		} else {
			rest = append(rest, l)
		}
	}
	rng.Shuffle(len(first), func(i, j int) { first[i], first[j] = first[j], first[i] })
	rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	ordered := append(first, rest...)

	units := subsectionBars(c.f.Segment().Total)
	delta := roundToNearest(units, rng.Intn(units*4)-units*2*incoming)
	for _, l := range ordered {
		r := unlimited
		if delta > 0 {
			r.in = delta
		}
		out[l] = r
		delta += roundToNearest(units, rng.Intn(units*5))
	}

	if c.f.Type() == chain.SegmentContinue && prior != nil {
		for _, l := range layers {
			if p, ok := prior(l); ok {
				out[l] = deltaRange{in: p.DeltaIn, out: p.DeltaOut}
			}
		}
	}
	c.f.Logger().Debug("layer deltas", "type", string(t), "units", units, "layers", len(layers))
	return out
}

// subsectionBars is the largest power of two not above a quarter of the
// segment, at least one bar.
func subsectionBars(total int) int {
	units := 1
	for units*2 <= total/4 {
		units *= 2
	}
	return units
}

// roundToNearest rounds v to a multiple of n, clamping negatives to zero.
func roundToNearest(n, v int) int {
	if n <= 0 {
		return v
	}
	r := int(math.Round(float64(v)/float64(n))) * n
	if r < 0 {
		return 0
	}
	return r
}

func matchesAny(layer string, terms []string) bool {
	l := strings.ToLower(layer)
	for _, t := range terms {
		if t != "" && strings.Contains(l, strings.ToLower(t)) {
			return true
		}
	}
	return false
}
