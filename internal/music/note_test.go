package music

import "testing"

func TestParseNote(t *testing.T) {
	cases := []struct {
		in   string
		midi int
		out  string
	}{
		{"C4", 60, "C4"},
		{"A4", 69, "A4"},
		{"Bb2", 46, "A#2"},
		{"f#", 66, "F#4"},
		{"C-1", 0, "C-1"},
	}
	for _, tc := range cases {
		n, err := ParseNote(tc.in)
		if err != nil {
			t.Fatalf("ParseNote(%q): %v", tc.in, err)
		}
		if n.MIDI != tc.midi {
			t.Fatalf("ParseNote(%q) midi = %d, want %d", tc.in, n.MIDI, tc.midi)
		}
		if n.String() != tc.out {
			t.Fatalf("ParseNote(%q) string = %q, want %q", tc.in, n.String(), tc.out)
		}
	}
}

func TestParseNoteAtonalAndErrors(t *testing.T) {
	n, err := ParseNote("x")
	if err != nil || !n.Atonal {
		t.Fatalf("expected atonal note, got %+v err=%v", n, err)
	}
	if _, err := ParseNote("H2"); err == nil {
		t.Fatalf("expected error for unknown pitch class")
	}
	if _, err := ParseNote("C?"); err == nil {
		t.Fatalf("expected error for bad octave")
	}
	if got := ParseNotes("C4, nope, E4,"); len(got) != 2 {
		t.Fatalf("expected 2 parsed notes, got %d", len(got))
	}
}

func TestVoiceUsesNearestVoicingNote(t *testing.T) {
	voicing := ParseNotes("C4, E4, G4")
	// D4 sits between C4 and E4 and takes the lower one.
	got := Voice(ParseNotes("D4, F4, F#4, X, B4"), voicing)
	want := []string{"C4", "E4", "G4", "X", "G4"}
	for i := range want {
		if got[i].String() != want[i] {
			t.Fatalf("voice[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if same := Voice(ParseNotes("D4"), nil); same[0].String() != "D4" {
		t.Fatalf("expected passthrough without voicing, got %s", same[0])
	}
}

func TestSameNotes(t *testing.T) {
	if !SameNotes(ParseNotes("C4, E4"), ParseNotes("E5, C3")) {
		t.Fatalf("expected pitch-class equality")
	}
	if SameNotes(ParseNotes("C4"), ParseNotes("D4")) {
		t.Fatalf("expected mismatch")
	}
	if !SameChordName("C  major", "c MAJOR") {
		t.Fatalf("expected chord names to match")
	}
}
