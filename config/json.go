// Package config loads engine configuration files.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-synth/synth"
	"github.com/pkg/errors"
)

// File is the JSON schema for engine configuration. Absent fields keep their
// defaults.
type File struct {
	SampleRate     *int     `json:"sample_rate"`
	Voices         *int     `json:"voices"`
	EnvelopeLevel  *float64 `json:"envelope_level"`
	AttackSeconds  *float64 `json:"attack_seconds"`
	ReleaseSeconds *float64 `json:"release_seconds"`
	VolumeDB       *float64 `json:"volume_db"`
	VolumeSlewRate *float64 `json:"volume_slew_rate"`
	PitchBendRange *float64 `json:"pitch_bend_range"`
	Filter         *Filter  `json:"filter"`
	IRWavPath      string   `json:"ir_wav_path"`
	IRWet          *float64 `json:"ir_wet"`
}

// Filter is the optional filter section of a configuration file.
type Filter struct {
	Enabled      *bool    `json:"enabled"`
	CutoffHz     *float64 `json:"cutoff_hz"`
	Resonance    *float64 `json:"resonance"`
	Oversampling *int     `json:"oversampling"`
}

// LoadJSON loads a configuration file and applies it on top of default
// params. A relative ir_wav_path is resolved against the file's directory.
func LoadJSON(path string) (*synth.Params, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}

	p := synth.NewDefaultParams()
	if err := ApplyFile(p, &f); err != nil {
		return nil, errors.Wrap(err, path)
	}

	if p.IRWavPath != "" && !filepath.IsAbs(p.IRWavPath) {
		base := filepath.Dir(path)
		p.IRWavPath = filepath.Clean(filepath.Join(base, p.IRWavPath))
	}
	return p, nil
}

// ApplyFile applies a parsed configuration onto dst and validates the result.
func ApplyFile(dst *synth.Params, f *File) error {
	if dst == nil {
		return errors.New("nil destination params")
	}
	if f == nil {
		return dst.Validate()
	}

	setInt(&dst.SampleRate, f.SampleRate)
	setInt(&dst.Voices, f.Voices)
	setFloat(&dst.EnvelopeLevel, f.EnvelopeLevel)
	setFloat(&dst.AttackSeconds, f.AttackSeconds)
	setFloat(&dst.ReleaseSeconds, f.ReleaseSeconds)
	setFloat(&dst.VolumeDB, f.VolumeDB)
	setFloat(&dst.VolumeSlewRate, f.VolumeSlewRate)
	setFloat(&dst.PitchBendRange, f.PitchBendRange)
	setFloat(&dst.IRWet, f.IRWet)
	if f.IRWavPath != "" {
		dst.IRWavPath = strings.TrimSpace(f.IRWavPath)
	}

	if flt := f.Filter; flt != nil {
		if flt.Enabled != nil {
			dst.FilterEnabled = *flt.Enabled
		} else {
			dst.FilterEnabled = true
		}
		setFloat(&dst.FilterCutoffHz, flt.CutoffHz)
		setFloat(&dst.FilterResonance, flt.Resonance)
		setInt(&dst.Oversampling, flt.Oversampling)
	}
	return dst.Validate()
}

// FromParams returns the file form of p with every field set.
func FromParams(p *synth.Params) *File {
	return &File{
		SampleRate:     &p.SampleRate,
		Voices:         &p.Voices,
		EnvelopeLevel:  &p.EnvelopeLevel,
		AttackSeconds:  &p.AttackSeconds,
		ReleaseSeconds: &p.ReleaseSeconds,
		VolumeDB:       &p.VolumeDB,
		VolumeSlewRate: &p.VolumeSlewRate,
		PitchBendRange: &p.PitchBendRange,
		Filter: &Filter{
			Enabled:      &p.FilterEnabled,
			CutoffHz:     &p.FilterCutoffHz,
			Resonance:    &p.FilterResonance,
			Oversampling: &p.Oversampling,
		},
		IRWavPath: p.IRWavPath,
		IRWet:     &p.IRWet,
	}
}

// SaveJSON writes p as an indented configuration file that LoadJSON reads
// back to the same params.
func SaveJSON(path string, p *synth.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(FromParams(p), "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "write config")
	}
	return errors.Wrap(os.WriteFile(path, append(b, '\n'), 0o644), "write config")
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
