package fabricator

import (
	"fmt"
	"math"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/content"
)

// MicrosPerSecond converts seconds to chain micros.
const MicrosPerSecond = 1_000_000

// MicrosPerBeat is the length of one beat at tempo.
func MicrosPerBeat(tempo float64) float64 {
	if tempo <= 0 {
		return 0
	}
	return 60 * MicrosPerSecond / tempo
}

// Timing converts musical positions within one segment to microseconds.
type Timing struct {
	Tempo              float64
	BarBeats           int
	BeginAtChainMicros int64
}

// NewTiming validates tempo and fills the default meter.
func NewTiming(tempo float64, barBeats int, beginAtChainMicros int64) (Timing, error) {
	if tempo <= 0 || math.IsNaN(tempo) || math.IsInf(tempo, 0) {
		return Timing{}, Errorf("invalid tempo %v", tempo)
	}
	if barBeats <= 0 {
		barBeats = content.DefaultBarBeats
	}
	return Timing{Tempo: tempo, BarBeats: barBeats, BeginAtChainMicros: beginAtChainMicros}, nil
}

// MicrosPerBeat is the beat length at this timing's tempo.
func (t Timing) MicrosPerBeat() float64 {
	return MicrosPerBeat(t.Tempo)
}

// BeatsToMicros converts a beat count to whole microseconds.
func (t Timing) BeatsToMicros(beats float64) int64 {
	return int64(math.Round(t.MicrosPerBeat() * beats))
}

// BarsToMicros converts a bar count to whole microseconds.
func (t Timing) BarsToMicros(bars float64) int64 {
	return t.BeatsToMicros(bars * float64(t.BarBeats))
}

// ChainMicros returns the chain time of a beat position in the segment.
func (t Timing) ChainMicros(beats float64) int64 {
	return t.BeginAtChainMicros + t.BeatsToMicros(beats)
}

// SegmentTiming rebuilds the timing a crafted segment was laid out with.
func SegmentTiming(seg chain.Segment) (Timing, error) {
	return NewTiming(seg.Tempo, seg.BarBeats, seg.BeginAtChainMicros)
}

// MicrosToBeats converts segment-relative micros back to beats.
func (t Timing) MicrosToBeats(micros int64) float64 {
	mpb := t.MicrosPerBeat()
	if mpb == 0 {
		return 0
	}
	return float64(micros) / mpb
}

// FormatPosition renders segment-relative micros as bar.beat, both one-based.
func (t Timing) FormatPosition(segmentMicros int64) string {
	beats := t.MicrosToBeats(segmentMicros)
	bar := int(math.Floor(beats / float64(t.BarBeats)))
	beat := beats - float64(bar*t.BarBeats)
	return fmt.Sprintf("%d.%s", bar+1, trimFloat(beat+1))
}

// ChainSeconds converts chain micros to seconds.
func ChainSeconds(micros int64) float64 {
	return float64(micros) / MicrosPerSecond
}

// FormatChainSeconds renders chain micros as seconds with millisecond precision.
func FormatChainSeconds(micros int64) string {
	return fmt.Sprintf("%.3fs", ChainSeconds(micros))
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.3f", v)
	for len(s) > 1 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}
