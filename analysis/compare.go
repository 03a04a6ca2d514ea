package analysis

import (
	"math"
)

const (
	envelopeFrame = 256
	envelopeHop   = 128
	spectrumSize  = 4096
)

// Metrics compares a candidate render against a reference render.
type Metrics struct {
	SampleRate int `json:"sample_rate"`

	ReferenceFrames int `json:"reference_frames"`
	CandidateFrames int `json:"candidate_frames"`
	AlignedFrames   int `json:"aligned_frames"`
	LagSamples      int `json:"lag_samples"`

	TimeRMSE       float64 `json:"time_rmse"`
	EnvelopeRMSEDB float64 `json:"envelope_rmse_db"`
	SpectralRMSEDB float64 `json:"spectral_rmse_db"`

	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
}

// Compare aligns candidate to reference and returns distance metrics plus a
// combined score in [0,1], where 0 means identical. Both signals are RMS
// normalized first, so a pure gain difference does not count.
func Compare(reference, candidate []float64, sampleRate int) Metrics {
	m := Metrics{
		SampleRate:      sampleRate,
		ReferenceFrames: len(reference),
		CandidateFrames: len(candidate),
		Score:           1,
	}
	ref := normalizeRMS(trimLeadingSilence(reference, 1e-6), 0.1)
	cand := normalizeRMS(trimLeadingSilence(candidate, 1e-6), 0.1)
	if sampleRate <= 0 || len(ref) == 0 || len(cand) == 0 {
		return m
	}

	maxLag := min(sampleRate/2, len(ref)-1, len(cand)-1)
	m.LagSamples = estimateLag(ref, cand, max(maxLag, 1))
	ref, cand = alignByLag(ref, cand, m.LagSamples)

	n := min(len(ref), len(cand), sampleRate*12)
	if n < 2*envelopeFrame {
		return m
	}
	ref, cand = ref[:n], cand[:n]
	m.AlignedFrames = n

	m.TimeRMSE = rmse(ref, cand)

	refEnv := rmsEnvelope(ref)
	candEnv := rmsEnvelope(cand)
	diff := make([]float64, min(len(refEnv), len(candEnv)))
	for i := range diff {
		diff[i] = linToDB(refEnv[i]) - linToDB(candEnv[i])
	}
	m.EnvelopeRMSEDB = RMS(diff)
	m.SpectralRMSEDB = spectralRMSEDB(ref, cand)

	timeNorm := clamp01(m.TimeRMSE / 0.25)
	envNorm := clamp01(m.EnvelopeRMSEDB / 30.0)
	specNorm := clamp01(m.SpectralRMSEDB / 30.0)
	m.Score = clamp01(0.35*timeNorm + 0.30*envNorm + 0.35*specNorm)
	m.Similarity = math.Exp(-4.0 * m.Score)
	return m
}

func trimLeadingSilence(x []float64, threshold float64) []float64 {
	for i, v := range x {
		if math.Abs(v) > threshold {
			return x[i:]
		}
	}
	return nil
}

func normalizeRMS(x []float64, target float64) []float64 {
	out := append([]float64(nil), x...)
	r := RMS(x)
	if r <= 1e-12 {
		return out
	}
	g := target / r
	for i := range out {
		out[i] *= g
	}
	return out
}

// estimateLag returns the shift in [-maxLag, maxLag] maximizing the
// cross-correlation of ref and cand. Positive means ref lags cand.
func estimateLag(ref, cand []float64, maxLag int) int {
	step := 2
	if len(ref) > 200000 || len(cand) > 200000 {
		step = 4
	}
	bestLag := 0
	best := math.Inf(-1)
	for lag := -maxLag; lag <= maxLag; lag++ {
		if s := dotAtLag(ref, cand, lag, step); s > best {
			best = s
			bestLag = lag
		}
	}
	return bestLag
}

func dotAtLag(a, b []float64, lag, step int) float64 {
	ai, bi := max(lag, 0), max(-lag, 0)
	n := min(len(a)-ai, len(b)-bi)
	var sum float64
	for i := 0; i < n; i += step {
		sum += a[ai+i] * b[bi+i]
	}
	return sum
}

func alignByLag(ref, cand []float64, lag int) ([]float64, []float64) {
	if lag >= 0 {
		if lag >= len(ref) {
			return nil, nil
		}
		return ref[lag:], cand
	}
	if -lag >= len(cand) {
		return nil, nil
	}
	return ref, cand[-lag:]
}

func rmse(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(n))
}

func rmsEnvelope(x []float64) []float64 {
	if len(x) < envelopeFrame {
		return nil
	}
	out := make([]float64, 1+(len(x)-envelopeFrame)/envelopeHop)
	for i := range out {
		start := i * envelopeHop
		out[i] = RMS(x[start : start+envelopeFrame])
	}
	return out
}

// spectralRMSEDB compares log magnitude spectra of the leading block of both
// signals, skipping DC.
func spectralRMSEDB(a, b []float64) float64 {
	n := spectrumSize
	for n > len(a) || n > len(b) {
		n /= 2
	}
	if n < 512 {
		return 0
	}
	ma, err := magnitudeSpectrum(a[:n])
	if err != nil {
		return 0
	}
	mb, err := magnitudeSpectrum(b[:n])
	if err != nil {
		return 0
	}
	var sum float64
	bins := n / 2
	for k := 1; k < bins; k++ {
		d := linToDB(ma[k]) - linToDB(mb[k])
		sum += d * d
	}
	return math.Sqrt(sum / float64(bins-1))
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
