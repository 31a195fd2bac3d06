// Package craft decides the content of one segment.
//
// Craft runs four stages in a fixed order over a single Fabricator:
//
//	Macro   the program governing the long arc of the chain
//	Main    key, tempo, length, intensity and chords of the segment
//	Beat    drum voices and their instruments
//	Detail  harmonic and melodic voices, one program per chord voicing type
//
// Later stages read what earlier ones put. Each stage either continues the
// prior segment's choice (a Continue segment) or selects afresh with a
// weighted marble bag. Content gaps are reported on the fabricator and the
// stage moves on; faults abort the attempt.
//
// Craft is a pure function of its Input: the same source material, prior
// segment, template and seed produce the same segment.
package craft
