package synth

import (
	"math"

	"github.com/cwbudde/algo-synth/graph"
)

// Oscillator is a sine source tuned by note-on and pitch-bend events.
//
// Before the first note-on the phase increment is zero, so the output is
// silent rather than an arbitrary placeholder pitch.
type Oscillator struct {
	sampleRate     float64
	notePitch      float64
	bendSemitones  float64
	phase          float64
	phaseIncrement float64
	tuned          bool
}

// NewOscillator creates an oscillator running at sampleRate.
func NewOscillator(sampleRate float64) *Oscillator {
	return &Oscillator{sampleRate: sampleRate}
}

// Ports implements graph.Processor.
func (o *Oscillator) Ports() graph.Ports {
	return graph.Ports{EventIn: []string{"note"}, StreamOut: []string{"out"}}
}

// HandleEvent implements graph.Processor.
func (o *Oscillator) HandleEvent(_ int, ev graph.Event, _ graph.Emitter) {
	switch ev.Kind {
	case graph.KindNoteOn:
		o.notePitch = float64(ev.Note)
		o.bendSemitones = 0
		o.tuned = true
		o.updateIncrement()
	case graph.KindPitchBend:
		o.bendSemitones = ev.Bend
		o.updateIncrement()
	}
}

func (o *Oscillator) updateIncrement() {
	if !o.tuned {
		return
	}
	o.phaseIncrement = NoteToFrequency(o.notePitch+o.bendSemitones) / o.sampleRate
}

// Process implements graph.Processor.
func (o *Oscillator) Process(_, out []float64) {
	o.phase += o.phaseIncrement
	o.phase -= math.Floor(o.phase)
	out[0] = math.Sin(2 * math.Pi * o.phase)
}

// PhaseIncrement returns the per-tick phase advance in cycles.
func (o *Oscillator) PhaseIncrement() float64 { return o.phaseIncrement }

// Phase returns the current phase in [0,1).
func (o *Oscillator) Phase() float64 { return o.phase }
