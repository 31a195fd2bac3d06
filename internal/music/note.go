// Package music holds the small amount of pitch arithmetic the fabricator
// needs: parsing note names, comparing them, and voicing a note against a set
// of chord tones.
package music

import (
	"fmt"
	"strconv"
	"strings"
)

// Atonal is the note name used by unpitched events and audio ("X").
const Atonal = "X"

var pitchClasses = map[string]int{
	"C": 0, "C#": 1, "Db": 1, "D": 2, "D#": 3, "Eb": 3, "E": 4, "F": 5,
	"F#": 6, "Gb": 6, "G": 7, "G#": 8, "Ab": 8, "A": 9, "A#": 10, "Bb": 10, "B": 11,
}

var sharpNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Note is a pitched or atonal note. MIDI follows the usual convention where
// C4 is 60 and A4 is 69.
type Note struct {
	MIDI   int
	Atonal bool
}

// ParseNote reads names such as "C4", "F#2", "Bb" (octave 4 implied) or "X".
func ParseNote(name string) (Note, error) {
	s := strings.TrimSpace(name)
	if s == "" || strings.EqualFold(s, Atonal) {
		return Note{Atonal: true}, nil
	}
	split := 1
	if len(s) > 1 && (s[1] == '#' || s[1] == 'b') {
		split = 2
	}
	class := strings.ToUpper(s[:1]) + s[1:split]
	pc, ok := pitchClasses[class]
	if !ok {
		return Note{}, fmt.Errorf("music: unknown note %q", name)
	}
	octave := 4
	if rest := s[split:]; rest != "" {
		o, err := strconv.Atoi(rest)
		if err != nil {
			return Note{}, fmt.Errorf("music: bad octave in %q", name)
		}
		octave = o
	}
	return Note{MIDI: (octave+1)*12 + pc}, nil
}

// ParseNotes splits a comma separated note list, skipping malformed entries.
func ParseNotes(list string) []Note {
	var out []Note
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		n, err := ParseNote(part)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// PitchClass returns 0..11, or -1 for atonal notes.
func (n Note) PitchClass() int {
	if n.Atonal {
		return -1
	}
	return ((n.MIDI % 12) + 12) % 12
}

// Octave returns the scientific octave number.
func (n Note) Octave() int {
	if n.MIDI < 0 {
		return (n.MIDI+1)/12 - 2
	}
	return n.MIDI/12 - 1
}

// String renders the note with sharps, e.g. "C#4".
func (n Note) String() string {
	if n.Atonal {
		return Atonal
	}
	return fmt.Sprintf("%s%d", sharpNames[n.PitchClass()], n.Octave())
}

// Distance is the absolute number of semitones between two pitched notes.
// Atonal notes are infinitely far from pitched ones and equal to each other.
func (n Note) Distance(o Note) int {
	switch {
	case n.Atonal && o.Atonal:
		return 0
	case n.Atonal || o.Atonal:
		return 1 << 30
	}
	d := n.MIDI - o.MIDI
	if d < 0 {
		return -d
	}
	return d
}

// SameClass reports whether both notes share a pitch class, ignoring octave.
func (n Note) SameClass(o Note) bool {
	return n.Atonal == o.Atonal && n.PitchClass() == o.PitchClass()
}
