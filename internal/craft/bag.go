package craft

import (
	"math/rand"
	"sort"
)

// Bag is a marble bag: candidates go into numbered phases with integer
// weights, and Pick draws from the lowest phase that has any.
type Bag struct {
	phases map[int][]marble
}

type marble struct {
	id     string
	weight int
}

// NewBag returns an empty bag.
func NewBag() *Bag {
	return &Bag{phases: map[int][]marble{}}
}

// Add puts id into phase with weight (minimum 1).
func (b *Bag) Add(phase int, id string, weight int) {
	if weight < 1 {
		weight = 1
	}
	b.phases[phase] = append(b.phases[phase], marble{id: id, weight: weight})
}

// Len counts marbles across phases.
func (b *Bag) Len() int {
	n := 0
	for _, m := range b.phases {
		n += len(m)
	}
	return n
}

// Pick draws a weighted id from the lowest non-empty phase.
func (b *Bag) Pick(rng *rand.Rand) (string, bool) {
	keys := make([]int, 0, len(b.phases))
	for k, m := range b.phases {
		if len(m) > 0 {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "", false
	}
	sort.Ints(keys)
	marbles := b.phases[keys[0]]
	total := 0
	for _, m := range marbles {
		total += m.weight
	}
	n := rng.Intn(total)
	for _, m := range marbles {
		if n < m.weight {
			return m.id, true
		}
		n -= m.weight
	}
	return marbles[len(marbles)-1].id, true
}
