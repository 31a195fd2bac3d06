package contenttest

import "github.com/kingrea/chainforge/internal/content"

// Demo builds a small complete library: one macro program with two bindings,
// one main program at 120 BPM whose 2 bar sequence is bound at offsets 0..3,
// a drum beat, a bass detail and a pad chord detail with instruments for all
// of them.
func Demo() *Builder {
	b := New()
	b.Program("macro", content.ProgramMacro, 120, "C minor", "night").
		Sequence("macro", "macro-a", 0, 0.4).
		Sequence("macro", "macro-b", 0, 0.6).
		Bind("macro", "macro-a", 0).
		Bind("macro", "macro-b", 1)

	b.Program("main", content.ProgramMain, 120, "C minor", "night").
		Sequence("main", "main-verse", 2, 0.6).
		Bind("main", "main-verse", 0, 1, 2, 3).
		Chord("main", "main-verse", "chord-cm", "C minor", 0, map[content.InstrumentType]string{
			content.InstrumentBass: "C2",
			content.InstrumentPad:  "C4, Eb4, G4",
		}).
		Chord("main", "main-verse", "chord-gm", "G minor", 4, map[content.InstrumentType]string{
			content.InstrumentBass: "G1",
			content.InstrumentPad:  "D4, G4, Bb4",
		})

	b.Program("beat", content.ProgramBeat, 120, "").
		Sequence("beat", "beat-main", 1, 0.5).
		Voice("beat", "beat-kick", content.InstrumentDrum, "Kick", "KICK").
		Voice("beat", "beat-snare", content.InstrumentDrum, "Snare", "SNARE").
		Voice("beat", "beat-hat", content.InstrumentDrum, "Hat", "HIHAT").
		Pattern("beat", "beat-main", "beat-kick", "beat-kick-basic", 1,
			Event{Track: "KICK", Position: 0, Duration: 0.5, Velocity: 1},
			Event{Track: "KICK", Position: 2, Duration: 0.5, Velocity: 1}).
		Pattern("beat", "beat-main", "beat-snare", "beat-snare-basic", 1,
			Event{Track: "SNARE", Position: 1, Duration: 0.5, Velocity: 0.9},
			Event{Track: "SNARE", Position: 3, Duration: 0.5, Velocity: 0.9}).
		Pattern("beat", "beat-main", "beat-hat", "beat-hat-basic", 1,
			Event{Track: "HIHAT", Position: 0.5, Velocity: 0.6},
			Event{Track: "HIHAT", Position: 1.5, Velocity: 0.6},
			Event{Track: "HIHAT", Position: 2.5, Velocity: 0.6},
			Event{Track: "HIHAT", Position: 3.5, Velocity: 0.6})

	b.Program("bassline", content.ProgramDetail, 120, "").
		Sequence("bassline", "bassline-main", 2, 0.5).
		Voice("bassline", "bassline-bass", content.InstrumentBass, "Bass", "ROOT").
		Pattern("bassline", "bassline-main", "bassline-bass", "bassline-walk", 2,
			Event{Track: "ROOT", Position: 0, Duration: 1, Velocity: 0.8, Tones: "C2"},
			Event{Track: "ROOT", Position: 4, Duration: 1, Velocity: 0.8, Tones: "C2"})

	b.Program("pads", content.ProgramDetail, 120, "").
		Sequence("pads", "pads-main", 2, 0.5).
		Voice("pads", "pads-pad", content.InstrumentPad, "Pad", "CHORD")

	b.Instrument("kit", content.InstrumentDrum, content.ModeEvent,
		content.InstrumentConfig{IsOneShot: true, IsOneShotCutoffEnabled: true}, "night").
		Audio("kit", "kit-kick", "KICK", "X", 0.9).
		Audio("kit", "kit-snare", "SNARE", "X", 0.8).
		Audio("kit", "kit-hat", "HIHAT", "X", 0.5)

	b.Instrument("sub", content.InstrumentBass, content.ModeEvent, content.InstrumentConfig{IsTonal: true}).
		Audio("sub", "sub-c2", "ROOT", "C2", 0.8).
		Audio("sub", "sub-g1", "ROOT", "G1", 0.8)

	b.Instrument("warm", content.InstrumentPad, content.ModeChord, content.InstrumentConfig{IsTonal: true}).
		Audio("warm", "warm-cm", "", "C minor", 0.5).
		Audio("warm", "warm-gm", "", "G minor", 0.5)
	return b
}
