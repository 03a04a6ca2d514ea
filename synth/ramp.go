package synth

import (
	"math"

	"github.com/cwbudde/algo-synth/graph"
	"github.com/pkg/errors"
)

// ParameterRamp turns sparse decibel parameter events into a smooth linear
// gain stream whose slope never exceeds the configured slew rate.
type ParameterRamp struct {
	sampleRate float64
	slewRate   float64 // linear gain units per second

	current   float64
	target    float64
	increment float64
	remaining int
}

// NewParameterRamp creates a ramp starting at initialDB.
func NewParameterRamp(sampleRate, slewRate, initialDB float64) (*ParameterRamp, error) {
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return nil, errors.Errorf("ramp: sample rate must be > 0 and finite: %f", sampleRate)
	}
	if !(slewRate > 0) || math.IsInf(slewRate, 0) {
		return nil, errors.Errorf("ramp: slew rate must be > 0 and finite: %f", slewRate)
	}
	v := DBToGain(initialDB)
	return &ParameterRamp{
		sampleRate: sampleRate,
		slewRate:   slewRate,
		current:    v,
		target:     v,
	}, nil
}

// Ports implements graph.Processor.
func (r *ParameterRamp) Ports() graph.Ports {
	return graph.Ports{EventIn: []string{"db"}, StreamOut: []string{"out"}}
}

// HandleEvent implements graph.Processor.
func (r *ParameterRamp) HandleEvent(_ int, ev graph.Event, _ graph.Emitter) {
	if ev.Kind != graph.KindParameter {
		return
	}
	r.SetTargetDB(ev.Value)
}

// SetTargetDB starts a ramp towards db. The ramp length is
// round(sampleRate*|delta|/slewRate) ticks.
func (r *ParameterRamp) SetTargetDB(db float64) {
	r.target = DBToGain(db)
	delta := r.target - r.current
	r.remaining = int(math.Round(r.sampleRate * math.Abs(delta) / r.slewRate))
	if r.remaining == 0 {
		r.current = r.target
		r.increment = 0
		return
	}
	r.increment = delta / float64(r.remaining)
}

// Process implements graph.Processor.
func (r *ParameterRamp) Process(_, out []float64) {
	if r.remaining > 0 {
		r.current += r.increment
		r.remaining--
		if r.remaining == 0 {
			r.current = r.target
		}
	}
	out[0] = r.current
}

// Value returns the current linear gain.
func (r *ParameterRamp) Value() float64 { return r.current }

// Remaining returns the ticks left in the active ramp.
func (r *ParameterRamp) Remaining() int { return r.remaining }
