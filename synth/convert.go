package synth

import (
	"github.com/cwbudde/algo-approx"
	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

// NoteToFrequency converts a MIDI note number, possibly fractional after
// pitch bend, to frequency in Hz.
func NoteToFrequency(note float64) float64 {
	const a4Freq = 440.0
	const a4Note = 69
	exponent := float32((note - a4Note) / 12.0)
	return a4Freq * float64(pow2Approx(exponent))
}

func pow2Approx(x float32) float32 {
	const ln2 = 0.69314718055994530942
	return approx.FastExp(x * ln2)
}

// DBToGain converts decibels to linear amplitude.
func DBToGain(db float64) float64 {
	return dspcore.DBToLinear(db)
}
