package music

import "strings"

// Nearest returns the candidate closest in pitch to target. Ties go to the
// lower note. ok is false when there are no pitched candidates.
func Nearest(target Note, candidates []Note) (Note, bool) {
	var best Note
	found := false
	for _, c := range candidates {
		if c.Atonal {
			continue
		}
		if !found {
			best, found = c, true
			continue
		}
		db, dc := target.Distance(best), target.Distance(c)
		if dc < db || (dc == db && c.MIDI < best.MIDI) {
			best = c
		}
	}
	return best, found
}

// Voice maps every source note onto the nearest voicing note. With no pitched
// voicing notes the source notes are returned unchanged.
func Voice(source []Note, voicing []Note) []Note {
	out := make([]Note, 0, len(source))
	for _, n := range source {
		if n.Atonal {
			out = append(out, n)
			continue
		}
		if v, ok := Nearest(n, voicing); ok {
			out = append(out, v)
			continue
		}
		out = append(out, n)
	}
	return out
}

// SameNotes compares two note lists by pitch class, ignoring order and octave.
func SameNotes(a, b []Note) bool {
	if len(a) != len(b) {
		return false
	}
	seen := map[int]int{}
	for _, n := range a {
		seen[n.PitchClass()]++
	}
	for _, n := range b {
		seen[n.PitchClass()]--
	}
	for _, v := range seen {
		if v != 0 {
			return false
		}
	}
	return true
}

// SameChordName compares chord names loosely ("C major" == "c MAJOR ").
func SameChordName(a, b string) bool {
	return strings.EqualFold(strings.Join(strings.Fields(a), " "), strings.Join(strings.Fields(b), " "))
}
