// Package wavio moves mono audio between WAV files and the engine: impulse
// responses and reference renders come in at the engine rate, rendered
// output goes out as 16-bit PCM.
package wavio

import (
	"io"
	"math"
	"os"
	"path/filepath"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
	"github.com/pkg/errors"
)

// BitDepth is the PCM depth written by Encode.
const BitDepth = 16

// Audio is a decoded mono signal.
type Audio struct {
	Samples    []float64
	SampleRate int
}

// Decode reads a WAV stream and averages its channels into one.
func Decode(r io.ReadSeeker) (Audio, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Audio{}, errors.New("wavio: not a wav stream")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Audio{}, errors.Wrap(err, "wavio: decode")
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate <= 0 {
		return Audio{}, errors.New("wavio: missing format")
	}

	ch := buf.Format.NumChannels
	mono := make([]float64, len(buf.Data)/ch)
	scale := 1 / float64(ch)
	for i := range mono {
		frame := buf.Data[i*ch : (i+1)*ch]
		var sum float64
		for _, v := range frame {
			sum += float64(v)
		}
		mono[i] = sum * scale
	}
	return Audio{Samples: mono, SampleRate: buf.Format.SampleRate}, nil
}

// ReadFile decodes the WAV file at path.
func ReadFile(path string) (Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return Audio{}, errors.Wrap(err, "wavio")
	}
	defer f.Close()
	a, err := Decode(f)
	return a, errors.Wrap(err, path)
}

// At returns the samples converted to sampleRate.
func (a Audio) At(sampleRate int) ([]float64, error) {
	return Resample(a.Samples, a.SampleRate, sampleRate)
}

// Load reads path and converts it to sampleRate.
func Load(path string, sampleRate int) ([]float64, error) {
	a, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return a.At(sampleRate)
}

// Encode writes samples as 16-bit mono PCM. Samples outside [-1, 1] are
// hard clipped; the number of clipped samples is returned.
func Encode(w io.WriteSeeker, samples []float64, sampleRate int) (int, error) {
	if sampleRate <= 0 {
		return 0, errors.Errorf("wavio: sample rate must be > 0: %d", sampleRate)
	}
	data := make([]float32, len(samples))
	clipped := 0
	for i, v := range samples {
		switch {
		case v > 1:
			v, clipped = 1, clipped+1
		case v < -1:
			v, clipped = -1, clipped+1
		case math.IsNaN(v):
			v, clipped = 0, clipped+1
		}
		data[i] = float32(v)
	}

	enc := wav.NewEncoder(w, sampleRate, BitDepth, 1, 1)
	err := enc.Write(&audio.Float32Buffer{
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: 1},
		Data:           data,
		SourceBitDepth: BitDepth,
	})
	if err != nil {
		return clipped, errors.Wrap(err, "wavio: encode")
	}
	return clipped, errors.Wrap(enc.Close(), "wavio: finalize")
}

// WriteFile encodes samples to path, creating parent directories.
func WriteFile(path string, samples []float64, sampleRate int) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, errors.Wrap(err, "wavio")
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrap(err, "wavio")
	}
	clipped, err := Encode(f, samples, sampleRate)
	if cerr := f.Close(); err == nil {
		err = errors.Wrap(cerr, "wavio")
	}
	return clipped, err
}

// Resample converts in from fromRate to toRate. Equal rates return in.
func Resample(in []float64, fromRate, toRate int) ([]float64, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, errors.Errorf("wavio: sample rates must be > 0: %d -> %d", fromRate, toRate)
	}
	if fromRate == toRate {
		return in, nil
	}
	r, err := dspresample.NewForRates(
		float64(fromRate),
		float64(toRate),
		dspresample.WithQuality(dspresample.QualityBest),
	)
	if err != nil {
		return nil, errors.Wrap(err, "wavio: resampler")
	}
	return r.Process(in), nil
}
