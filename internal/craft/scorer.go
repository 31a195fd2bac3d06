package craft

import "strings"

// Scorer rates a candidate's memes against the segment's meme context.
// Higher is better; scores only weight a random draw.
type Scorer interface {
	Score(candidate, context []string) int
}

// MemeScorer counts case-insensitive meme overlap.
type MemeScorer struct{}

func (MemeScorer) Score(candidate, context []string) int {
	if len(candidate) == 0 || len(context) == 0 {
		return 0
	}
	ctx := make(map[string]bool, len(context))
	for _, m := range context {
		ctx[strings.ToUpper(strings.TrimSpace(m))] = true
	}
	n := 0
	for _, m := range candidate {
		if ctx[strings.ToUpper(strings.TrimSpace(m))] {
			n++
		}
	}
	return n
}
