package synth

import (
	"math"

	"github.com/cwbudde/algo-synth/graph"
	"github.com/pkg/errors"
)

// VolumeParam declares the master volume control.
var VolumeParam = graph.ParamSpec{Name: "volume", Min: -85, Max: 6, Init: -12, Unit: "dB", Step: 0.1}

// Params holds the engine configuration fixed at construction.
type Params struct {
	SampleRate int
	Voices     int

	EnvelopeLevel  float64
	AttackSeconds  float64
	ReleaseSeconds float64

	VolumeDB       float64
	VolumeSlewRate float64 // linear gain per second

	PitchBendRange float64 // semitones at full bend

	FilterEnabled   bool
	FilterCutoffHz  float64
	FilterResonance float64
	Oversampling    int

	// Impulse response convolved onto the rendered output by render hosts.
	IRWavPath string
	IRWet     float64
}

// NewDefaultParams creates default parameters.
func NewDefaultParams() *Params {
	return &Params{
		SampleRate:      44100,
		Voices:          8,
		EnvelopeLevel:   0.2,
		AttackSeconds:   0.02,
		ReleaseSeconds:  0.1,
		VolumeDB:        VolumeParam.Init,
		VolumeSlewRate:  1.0,
		PitchBendRange:  2.0,
		FilterEnabled:   false,
		FilterCutoffHz:  1000,
		FilterResonance: 1.0,
		Oversampling:    4,
		IRWet:           0.3,
	}
}

// Validate reports the first configuration error.
func (p *Params) Validate() error {
	if p == nil {
		return errors.New("nil params")
	}
	if p.SampleRate <= 0 {
		return errors.Errorf("sample_rate must be > 0: %d", p.SampleRate)
	}
	if p.Voices < 1 {
		return errors.Errorf("voices must be >= 1: %d", p.Voices)
	}
	if !(p.EnvelopeLevel > 0) || p.EnvelopeLevel > 1 {
		return errors.Errorf("envelope_level must be in (0,1]: %f", p.EnvelopeLevel)
	}
	if !(p.AttackSeconds > 0) {
		return errors.Errorf("attack_seconds must be > 0: %f", p.AttackSeconds)
	}
	if !(p.ReleaseSeconds > 0) {
		return errors.Errorf("release_seconds must be > 0: %f", p.ReleaseSeconds)
	}
	if math.IsNaN(p.VolumeDB) || p.VolumeDB < VolumeParam.Min || p.VolumeDB > VolumeParam.Max {
		return errors.Errorf("volume_db must be in [%g,%g]: %f", VolumeParam.Min, VolumeParam.Max, p.VolumeDB)
	}
	if !(p.VolumeSlewRate > 0) {
		return errors.Errorf("volume_slew_rate must be > 0: %f", p.VolumeSlewRate)
	}
	if p.PitchBendRange < 0 || p.PitchBendRange > 48 {
		return errors.Errorf("pitch_bend_range must be in [0,48]: %f", p.PitchBendRange)
	}
	if p.FilterEnabled {
		if !(p.FilterCutoffHz > 0) || p.FilterCutoffHz >= 0.5*float64(p.SampleRate) {
			return errors.Errorf("filter_cutoff_hz must be in (0, nyquist): %f", p.FilterCutoffHz)
		}
		if math.IsNaN(p.FilterResonance) || p.FilterResonance < 0.5 || p.FilterResonance > 7.5 {
			return errors.Errorf("filter_resonance must be in [0.5,7.5]: %f", p.FilterResonance)
		}
		switch p.Oversampling {
		case 1, 2, 4, 8:
		default:
			return errors.Errorf("oversampling must be one of {1,2,4,8}: %d", p.Oversampling)
		}
	}
	if !(p.IRWet >= 0 && p.IRWet <= 1) {
		return errors.Errorf("ir_wet must be in [0,1]: %f", p.IRWet)
	}
	return nil
}
