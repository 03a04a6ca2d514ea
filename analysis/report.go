package analysis

import (
	"math"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"
	"github.com/pkg/errors"
)

const maxSpectrumSize = 1 << 16

// Report summarizes one rendered signal.
type Report struct {
	SampleRate int     `json:"sample_rate"`
	Frames     int     `json:"frames"`
	Finite     bool    `json:"finite"`
	Peak       float64 `json:"peak"`
	RMS        float64 `json:"rms"`
	RMSDB      float64 `json:"rms_db"`
	PeakHz     float64 `json:"peak_hz"`
}

// Analyze measures level and dominant frequency of x.
func Analyze(x []float64, sampleRate int) Report {
	r := Report{
		SampleRate: sampleRate,
		Frames:     len(x),
		Finite:     AllFinite(x),
		Peak:       Peak(x),
		RMS:        RMS(x),
	}
	r.RMSDB = linToDB(r.RMS)
	if hz, err := SpectralPeak(x, sampleRate); err == nil {
		r.PeakHz = hz
	}
	return r
}

// RMS returns the root mean square of x.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// Peak returns the largest absolute sample.
func Peak(x []float64) float64 {
	var p float64
	for _, v := range x {
		if a := math.Abs(v); a > p {
			p = a
		}
	}
	return p
}

// AllFinite reports whether x contains no NaN or Inf.
func AllFinite(x []float64) bool {
	for _, v := range x {
		if !isFinite(v) {
			return false
		}
	}
	return true
}

// SpectralPeak estimates the dominant frequency of x in Hz from a
// Hann-windowed FFT of the longest power-of-two prefix, refined by parabolic
// interpolation of the log magnitude around the peak bin.
func SpectralPeak(x []float64, sampleRate int) (float64, error) {
	if sampleRate <= 0 {
		return 0, errors.Errorf("analysis: sample rate must be > 0: %d", sampleRate)
	}
	n := 1
	for n*2 <= len(x) && n*2 <= maxSpectrumSize {
		n *= 2
	}
	if n < 16 {
		return 0, errors.Errorf("analysis: need at least 16 samples, got %d", len(x))
	}

	mag, err := magnitudeSpectrum(x[:n])
	if err != nil {
		return 0, err
	}

	best := 1
	for k := 2; k < len(mag)-1; k++ {
		if mag[k] > mag[best] {
			best = k
		}
	}
	if mag[best] == 0 {
		return 0, errors.New("analysis: signal is silent")
	}

	offset := 0.0
	a := linToDB(mag[best-1])
	b := linToDB(mag[best])
	c := linToDB(mag[best+1])
	if den := a - 2*b + c; den != 0 {
		offset = 0.5 * (a - c) / den
	}
	return (float64(best) + offset) * float64(sampleRate) / float64(n), nil
}

// magnitudeSpectrum returns |X[k]| for k in [0, n/2] of the Hann-windowed
// input. len(x) must be a power of two.
func magnitudeSpectrum(x []float64) ([]float64, error) {
	n := len(x)
	plan, err := algofft.NewPlanReal64(n)
	if err != nil {
		return nil, errors.Wrap(err, "analysis: fft plan")
	}
	buf := make([]float64, n)
	for i, v := range x {
		buf[i] = v * hann(i, n)
	}
	bins := make([]complex128, n/2+1)
	plan.Forward(bins, buf)

	mag := make([]float64, len(bins))
	for k, c := range bins {
		mag[k] = cmplx.Abs(c)
	}
	return mag, nil
}

func hann(i, n int) float64 {
	return 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
}

func linToDB(x float64) float64 {
	if x < 1e-12 {
		x = 1e-12
	}
	return 20.0 * math.Log10(x)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
