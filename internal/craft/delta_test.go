package craft

import (
	"math/rand"
	"testing"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/config"
	"github.com/kingrea/chainforge/internal/content"
	"github.com/kingrea/chainforge/internal/content/contenttest"
	"github.com/kingrea/chainforge/internal/fabricator"
	"github.com/kingrea/chainforge/internal/logging"
)

func newCrafter(t *testing.T, tc config.TemplateConfig, seed int64) *crafter {
	t.Helper()
	f, err := fabricator.New(fabricator.Params{
		Source:   contenttest.Demo().Source(),
		Chain:    chain.Chain{ID: "c1"},
		Template: tc,
		Segment:  planned(0, 0),
		Seed:     seed,
		Logger:   logging.Discard(),
	})
	if err != nil {
		t.Fatalf("fabricator: %v", err)
	}
	return &crafter{f: f, scorer: MemeScorer{}}
}

func TestPrecomputeDeltasPrioritizedLayersEnterFirst(t *testing.T) {
	layers := []string{"Snare", "Hat", "Kick", "Ride", "Clap"}
	for seed := int64(0); seed < 50; seed++ {
		c := newCrafter(t, config.DefaultTemplateConfig(), seed)
		deltas := c.precomputeDeltas(content.ProgramBeat, layers, []string{"kick"}, 1, nil)
		if len(deltas) != len(layers) {
			t.Fatalf("seed %d: %d deltas", seed, len(deltas))
		}
		entry := func(l string) int {
			if deltas[l].in == chain.DeltaUnlimited {
				return 0
			}
			return deltas[l].in
		}
		for _, l := range layers {
			if deltas[l].out != chain.DeltaUnlimited {
				t.Fatalf("seed %d: %s out = %d", seed, l, deltas[l].out)
			}
			if deltas[l].in == 0 {
				t.Fatalf("seed %d: %s in = 0, want unlimited or positive", seed, l)
			}
			if entry(l) < entry("Kick") {
				t.Fatalf("seed %d: %s enters at %d before Kick at %d", seed, l, entry(l), entry("Kick"))
			}
		}
	}
}

func TestPrecomputeDeltasDisabled(t *testing.T) {
	tc := noArc()
	c := newCrafter(t, tc, 1)
	for l, d := range c.precomputeDeltas(content.ProgramBeat, []string{"Kick", "Snare"}, nil, 1, nil) {
		if d != unlimited {
			t.Fatalf("%s = %+v", l, d)
		}
	}
}

func TestSubsectionBars(t *testing.T) {
	cases := map[int]int{0: 1, 2: 1, 4: 1, 8: 2, 15: 2, 16: 4, 32: 8, 33: 8}
	for total, want := range cases {
		if got := subsectionBars(total); got != want {
			t.Fatalf("subsectionBars(%d) = %d, want %d", total, got, want)
		}
	}
}

func TestRoundToNearest(t *testing.T) {
	tests := []struct{ n, v, want int }{
		{4, 5, 4},
		{4, 6, 8},
		{4, -3, 0},
		{1, 3, 3},
		{2, -10, 0},
	}
	for _, tt := range tests {
		if got := roundToNearest(tt.n, tt.v); got != tt.want {
			t.Fatalf("roundToNearest(%d, %d) = %d, want %d", tt.n, tt.v, got, tt.want)
		}
	}
}

func TestBagPrefersLowerPhase(t *testing.T) {
	b := NewBag()
	b.Add(1, "fallback", 100)
	b.Add(0, "first", 1)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		if id, _ := b.Pick(rng); id != "first" {
			t.Fatalf("picked %s", id)
		}
	}
	if b.Len() != 2 {
		t.Fatalf("len = %d", b.Len())
	}
	if _, ok := NewBag().Pick(rng); ok {
		t.Fatalf("empty bag picked")
	}
}

func TestBagWeights(t *testing.T) {
	b := NewBag()
	b.Add(0, "heavy", 9)
	b.Add(0, "light", 1)
	rng := rand.New(rand.NewSource(3))
	heavy := 0
	for i := 0; i < 1000; i++ {
		if id, _ := b.Pick(rng); id == "heavy" {
			heavy++
		}
	}
	if heavy < 800 || heavy > 970 {
		t.Fatalf("heavy picked %d of 1000", heavy)
	}
}

func TestMemeScorer(t *testing.T) {
	got := MemeScorer{}.Score([]string{"Night", "dark", "cold"}, []string{"NIGHT", "COLD", "warm"})
	if got != 2 {
		t.Fatalf("score = %d", got)
	}
	if (MemeScorer{}).Score(nil, []string{"x"}) != 0 {
		t.Fatalf("empty candidate scored")
	}
}

func TestSegmentSeed(t *testing.T) {
	if SegmentSeed(1, 2, 0) != SegmentSeed(1, 2, 0) {
		t.Fatalf("seed not stable")
	}
	if SegmentSeed(1, 2, 0) == SegmentSeed(1, 2, 1) {
		t.Fatalf("retry reuses seed")
	}
	if SegmentSeed(1, 2, 0) < 0 {
		t.Fatalf("negative seed")
	}
}
