package ladder

import (
	"math"

	"github.com/cwbudde/algo-synth/graph"
	"github.com/pkg/errors"
)

const (
	defaultCutoffHz     = 1000.0
	defaultResonance    = 1.0
	defaultOversampling = 4

	// maxCutoffRatio keeps the cutoff below Nyquist where tan() diverges.
	maxCutoffRatio = 0.49
)

// CutoffParam declares the host-facing cutoff control.
var CutoffParam = graph.ParamSpec{Name: "cutoff", Min: 20, Max: 20000, Init: defaultCutoffHz, Unit: "Hz", Step: 1}

// ResonanceParam declares the host-facing resonance control.
var ResonanceParam = graph.ParamSpec{Name: "resonance", Min: 0.5, Max: 7.5, Init: defaultResonance, Step: 0.01}

// Option mutates constructor configuration.
type Option func(*config) error

type config struct {
	cutoffHz     float64
	resonance    float64
	overSampling int
}

func defaultConfig() config {
	return config{
		cutoffHz:     defaultCutoffHz,
		resonance:    defaultResonance,
		overSampling: defaultOversampling,
	}
}

func applyOptions(opts []Option) (config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// WithCutoffHz sets cutoff in Hz. Must be finite and > 0; the Nyquist bound
// is checked once the sample rate is known.
func WithCutoffHz(cutoffHz float64) Option {
	return func(cfg *config) error {
		if err := validateFiniteRange(cutoffHz, math.SmallestNonzeroFloat64, math.Inf(1), "cutoff"); err != nil {
			return err
		}
		cfg.cutoffHz = cutoffHz
		return nil
	}
}

// WithResonance sets feedback resonance within ResonanceParam's range.
func WithResonance(resonance float64) Option {
	return func(cfg *config) error {
		if err := validateFiniteRange(resonance, ResonanceParam.Min, ResonanceParam.Max, "resonance"); err != nil {
			return err
		}
		cfg.resonance = resonance
		return nil
	}
}

// WithOversampling sets the sub-step factor used by NewOversampled and
// NewFilterGraph. Allowed values: 1, 2, 4, 8. New ignores it.
func WithOversampling(factor int) Option {
	return func(cfg *config) error {
		if !validOversampling(factor) {
			return errors.Errorf("ladder: oversampling factor must be one of {1,2,4,8}: %d", factor)
		}
		cfg.overSampling = factor
		return nil
	}
}

func validOversampling(factor int) bool {
	return factor == 1 || factor == 2 || factor == 4 || factor == 8
}

func validateFiniteRange(value, min, max float64, name string) error {
	if !isFinite(value) {
		return errors.Errorf("ladder: %s must be finite: %v", name, value)
	}
	if value < min || value > max {
		return errors.Errorf("ladder: %s must be in [%g, %g]: %f", name, min, max, value)
	}
	return nil
}

func validateCutoff(cutoffHz, sampleRate float64) error {
	nyquist := 0.5 * sampleRate
	if err := validateFiniteRange(cutoffHz, math.SmallestNonzeroFloat64, math.Inf(1), "cutoff"); err != nil {
		return err
	}
	if cutoffHz >= nyquist {
		return errors.Errorf("ladder: cutoff must be < Nyquist (%f Hz): %f", nyquist, cutoffHz)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
