package ladder

import (
	"github.com/cwbudde/algo-synth/graph"
	"github.com/pkg/errors"
)

// Oversampled steps one ladder several times per host sample.
//
// The ladder runs at factor times the host rate. Each host tick feeds it the
// input linearly interpolated from the previous host sample and keeps the
// last sub-sample, so decimation is by stride with no separate resampler.
//
// This is the same processor as factor ladder instances chained in time at
// the raised rate: all of them would share one state, so a single instance
// stepped factor times per tick holds that state and yields the same output.
type Oversampled struct {
	hostRate float64
	factor   int
	filter   *Filter
	prevIn   float64
}

// NewOversampled constructs an oversampled ladder for a host running at
// sampleRate. The cutoff must lie below the host Nyquist frequency.
func NewOversampled(sampleRate float64, opts ...Option) (*Oversampled, error) {
	if !isFinite(sampleRate) || sampleRate <= 0 {
		return nil, errors.Errorf("ladder: sample rate must be > 0 and finite: %f", sampleRate)
	}
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	if err := validateCutoff(cfg.cutoffHz, sampleRate); err != nil {
		return nil, err
	}
	inner, err := New(sampleRate*float64(cfg.overSampling),
		WithCutoffHz(cfg.cutoffHz),
		WithResonance(cfg.resonance),
	)
	if err != nil {
		return nil, err
	}
	return &Oversampled{hostRate: sampleRate, factor: cfg.overSampling, filter: inner}, nil
}

// Factor returns the number of ladder steps per host sample.
func (o *Oversampled) Factor() int { return o.factor }

// Filter returns the inner ladder.
func (o *Oversampled) Filter() *Filter { return o.filter }

// SetCutoffHz updates cutoff. It must be below the host Nyquist frequency.
func (o *Oversampled) SetCutoffHz(cutoffHz float64) error {
	if err := validateCutoff(cutoffHz, o.hostRate); err != nil {
		return err
	}
	return o.filter.SetCutoffHz(cutoffHz)
}

// SetResonance updates resonance.
func (o *Oversampled) SetResonance(resonance float64) error {
	return o.filter.SetResonance(resonance)
}

// Reset clears ladder and interpolation state.
func (o *Oversampled) Reset() {
	o.filter.Reset()
	o.prevIn = 0
}

// ProcessSample processes one host sample.
func (o *Oversampled) ProcessSample(input float64) float64 {
	if !isFinite(input) {
		input = 0
	}
	if o.factor <= 1 {
		o.prevIn = input
		return o.filter.ProcessSample(input)
	}

	delta := (input - o.prevIn) / float64(o.factor)
	var out float64
	for i := range o.factor {
		out = o.filter.ProcessSample(o.prevIn + delta*float64(i+1))
	}
	o.prevIn = input
	return out
}

// ProcessInPlace processes a mono buffer in place.
func (o *Oversampled) ProcessInPlace(buf []float64) {
	for i := range buf {
		buf[i] = o.ProcessSample(buf[i])
	}
}

// Ports implements graph.Processor.
func (o *Oversampled) Ports() graph.Ports {
	return o.filter.Ports()
}

// HandleEvent implements graph.Processor. Cutoff is clamped against the host
// Nyquist frequency rather than the inner rate.
func (o *Oversampled) HandleEvent(port int, ev graph.Event, _ graph.Emitter) {
	if ev.Kind != graph.KindParameter {
		return
	}
	switch port {
	case CutoffPort:
		_ = o.filter.SetCutoffHz(clampCutoff(ev.Value, o.hostRate))
	case ResonancePort:
		_ = o.filter.SetResonance(ResonanceParam.Clamp(ev.Value))
	}
}

// Process implements graph.Processor.
func (o *Oversampled) Process(in, out []float64) {
	out[0] = o.ProcessSample(in[0])
}
