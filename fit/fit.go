// Package fit searches envelope and filter settings so that a rendered note
// matches a reference recording, using analysis.Compare as the distance.
package fit

import (
	"log/slog"
	"math"
	"math/rand"
	"strings"

	"github.com/cwbudde/algo-synth/analysis"
	"github.com/cwbudde/algo-synth/graph"
	"github.com/cwbudde/algo-synth/ladder"
	"github.com/cwbudde/algo-synth/synth"
	"github.com/cwbudde/mayfly"
	"github.com/pkg/errors"
)

const blockSize = 128

// Knob is one searched parameter. The optimizer works on [0,1] and Knob maps
// that range onto [Min, Max].
type Knob struct {
	Name string
	Min  float64
	Max  float64
}

// Knobs are the parameters Fit searches, in candidate order.
var Knobs = []Knob{
	{Name: "attack_seconds", Min: 0.001, Max: 0.5},
	{Name: "release_seconds", Min: 0.005, Max: 2.0},
	{Name: "filter_cutoff_hz", Min: 60, Max: 16000},
	{Name: "filter_resonance", Min: 0.5, Max: 7.5},
}

// Variants lists the accepted mayfly variant names.
var Variants = []string{"ma", "desma", "olce", "eobbma", "gsasma", "mpma", "aoblmoa"}

// Config describes one fitting run.
type Config struct {
	Reference []float64
	Base      *synth.Params

	Note         int
	Velocity     float64 // in [0,1]
	ReleaseAfter float64 // seconds; NoteOff is skipped when past the reference end

	Variant    string
	Population int
	MaxEvals   int
	Seed       int64

	Logger *slog.Logger
}

// Result is the best candidate found.
type Result struct {
	Params  *synth.Params      `json:"-"`
	Knobs   map[string]float64 `json:"knobs"`
	Start   analysis.Metrics   `json:"start"`
	Best    analysis.Metrics   `json:"best"`
	Evals   int                `json:"evals"`
	Rounds  int                `json:"rounds"`
	Variant string             `json:"variant"`
}

// FromNormalized maps optimizer positions onto knob values. Missing or out of
// range positions are clamped.
func FromNormalized(pos []float64) []float64 {
	vals := make([]float64, len(Knobs))
	for i, k := range Knobs {
		x := 0.0
		if i < len(pos) {
			x = max(0, min(1, pos[i]))
		}
		vals[i] = k.Min + x*(k.Max-k.Min)
	}
	return vals
}

// Apply returns a copy of base with vals written in. The filter is enabled and
// its cutoff kept below the Nyquist frequency.
func Apply(base *synth.Params, vals []float64) *synth.Params {
	p := *base
	p.AttackSeconds = vals[0]
	p.ReleaseSeconds = vals[1]
	p.FilterEnabled = true
	p.FilterCutoffHz = min(vals[2], 0.45*float64(p.SampleRate))
	p.FilterResonance = vals[3]
	return &p
}

// Render plays one note through the synth and, when enabled, the filter.
func Render(p *synth.Params, note int, velocity, releaseAfter float64, frames int) ([]float64, error) {
	s, err := synth.NewSynth(p)
	if err != nil {
		return nil, err
	}
	s.Schedule(0, graph.NoteOn(0, note, velocity))
	if release := int(releaseAfter * float64(p.SampleRate)); release >= 0 && release < frames {
		s.Schedule(uint64(release), graph.NoteOff(0, note))
	}

	out := make([]float64, frames)
	for start := 0; start < frames; start += blockSize {
		s.Process(out[start:min(start+blockSize, frames)])
	}
	if !p.FilterEnabled {
		return out, nil
	}
	fg, err := ladder.NewFilterGraph(float64(p.SampleRate),
		ladder.WithCutoffHz(p.FilterCutoffHz),
		ladder.WithResonance(p.FilterResonance),
		ladder.WithOversampling(p.Oversampling),
	)
	if err != nil {
		return nil, err
	}
	fg.ProcessInPlace(out)
	return out, nil
}

// Fit runs mayfly rounds until MaxEvals renders have been scored and returns
// the best candidate seen. The base parameters are scored first, so the
// result is never worse than the starting point.
func Fit(cfg Config) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	variant := strings.ToLower(cfg.Variant)
	frames := len(cfg.Reference)
	sr := cfg.Base.SampleRate

	evaluate := func(p *synth.Params) (analysis.Metrics, error) {
		mono, err := Render(p, cfg.Note, cfg.Velocity, cfg.ReleaseAfter, frames)
		if err != nil {
			return analysis.Metrics{}, err
		}
		return analysis.Compare(cfg.Reference, mono, sr), nil
	}

	start, err := evaluate(cfg.Base)
	if err != nil {
		return nil, errors.Wrap(err, "fit: initial evaluation")
	}
	logger.Info("fit start", "score", start.Score, "similarity", start.Similarity)

	res := &Result{Params: cfg.Base, Start: start, Best: start, Evals: 1, Variant: variant}
	for res.Evals < cfg.MaxEvals {
		res.Rounds++
		before := res.Evals
		iters := max(1, (cfg.MaxEvals-res.Evals)/(2*cfg.Population))
		mcfg, err := newMayflyConfig(variant, cfg.Population, len(Knobs), iters)
		if err != nil {
			return nil, err
		}
		mcfg.Rand = rand.New(rand.NewSource(cfg.Seed + int64(res.Rounds)*7919))
		mcfg.ObjectiveFunc = func(pos []float64) float64 {
			if res.Evals >= cfg.MaxEvals {
				return res.Best.Score + 1
			}
			res.Evals++
			p := Apply(cfg.Base, FromNormalized(pos))
			m, err := evaluate(p)
			if err != nil {
				return res.Best.Score + 0.8
			}
			if m.Score < res.Best.Score {
				res.Params, res.Best = p, m
				logger.Info("fit improved", "eval", res.Evals, "score", m.Score, "similarity", m.Similarity)
			}
			return m.Score
		}
		if _, err := runMayfly(mcfg); err != nil {
			return nil, errors.Wrapf(err, "fit: round %d", res.Rounds)
		}
		if res.Evals == before {
			break
		}
	}

	res.Knobs = map[string]float64{
		"attack_seconds":   res.Params.AttackSeconds,
		"release_seconds":  res.Params.ReleaseSeconds,
		"filter_cutoff_hz": res.Params.FilterCutoffHz,
		"filter_resonance": res.Params.FilterResonance,
	}
	logger.Info("fit done", "evals", res.Evals, "rounds", res.Rounds, "score", res.Best.Score)
	return res, nil
}

func (cfg *Config) validate() error {
	if cfg.Base == nil {
		return errors.New("fit: nil base params")
	}
	if err := cfg.Base.Validate(); err != nil {
		return errors.Wrap(err, "fit: base params")
	}
	if len(cfg.Reference) == 0 {
		return errors.New("fit: empty reference")
	}
	if cfg.Note < 0 || cfg.Note > 127 {
		return errors.Errorf("fit: note must be in [0,127]: %d", cfg.Note)
	}
	if !(cfg.Velocity > 0 && cfg.Velocity <= 1) {
		return errors.Errorf("fit: velocity must be in (0,1]: %f", cfg.Velocity)
	}
	if cfg.Population < 2 {
		return errors.Errorf("fit: population must be >= 2: %d", cfg.Population)
	}
	if cfg.MaxEvals < 1 {
		return errors.Errorf("fit: max evals must be >= 1: %d", cfg.MaxEvals)
	}
	return nil
}

func newMayflyConfig(variant string, pop, dims, iters int) (*mayfly.Config, error) {
	var cfg *mayfly.Config
	switch variant {
	case "ma":
		cfg = mayfly.NewDefaultConfig()
	case "desma":
		cfg = mayfly.NewDESMAConfig()
	case "olce":
		cfg = mayfly.NewOLCEConfig()
	case "eobbma":
		cfg = mayfly.NewEOBBMAConfig()
	case "gsasma":
		cfg = mayfly.NewGSASMAConfig()
	case "mpma":
		cfg = mayfly.NewMPMAConfig()
	case "aoblmoa":
		cfg = mayfly.NewAOBLMOAConfig()
	default:
		return nil, errors.Errorf("fit: unsupported mayfly variant %q", variant)
	}
	cfg.ProblemSize = dims
	cfg.LowerBound = 0
	cfg.UpperBound = 1
	cfg.MaxIterations = iters
	cfg.NPop = pop
	cfg.NPopF = pop
	// NC/2 parent pairs are drawn from both populations.
	cfg.NC = 2 * pop
	cfg.NM = max(1, int(math.Round(0.05*float64(pop))))
	return cfg, nil
}

func runMayfly(cfg *mayfly.Config) (_ *mayfly.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("mayfly panic: %v", r)
		}
	}()
	return mayfly.Optimize(cfg)
}
