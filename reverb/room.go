package reverb

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

const maxRoomSeconds = 10.0

// RoomConfig describes a synthetic mono room response: sparse early
// reflections followed by a two-band decaying noise tail.
type RoomConfig struct {
	Seconds     float64
	Seed        int64
	Reflections int
	TailLevel   float64
	Brightness  float64 // >0, larger keeps more high band
	LowDecay    float64 // seconds
	HighDecay   float64 // seconds
	FadeOut     float64 // seconds of cosine fade at the end
	Peak        float64
}

// DefaultRoomConfig returns a small, fairly dark room.
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		Seconds:     0.8,
		Seed:        1,
		Reflections: 24,
		TailLevel:   0.06,
		Brightness:  0.8,
		LowDecay:    1.2,
		HighDecay:   0.2,
		FadeOut:     0.01,
		Peak:        0.9,
	}
}

func (c RoomConfig) validate() error {
	switch {
	case !(c.Seconds > 0) || c.Seconds > maxRoomSeconds:
		return errors.Errorf("reverb: room length must be in (0,%g] s: %g", maxRoomSeconds, c.Seconds)
	case c.Reflections < 0:
		return errors.Errorf("reverb: reflections must be >= 0: %d", c.Reflections)
	case c.TailLevel < 0:
		return errors.Errorf("reverb: tail level must be >= 0: %g", c.TailLevel)
	case !(c.Brightness > 0):
		return errors.Errorf("reverb: brightness must be > 0: %g", c.Brightness)
	case !(c.LowDecay > 0) || !(c.HighDecay > 0):
		return errors.New("reverb: decay times must be > 0")
	case c.FadeOut < 0:
		return errors.Errorf("reverb: fade out must be >= 0: %g", c.FadeOut)
	case !(c.Peak > 0):
		return errors.Errorf("reverb: peak must be > 0: %g", c.Peak)
	}
	return nil
}

// GenerateRoom renders cfg at sampleRate. The result is peak normalized to
// cfg.Peak and deterministic for a given seed.
func GenerateRoom(cfg RoomConfig, sampleRate int) ([]float64, error) {
	if sampleRate <= 0 {
		return nil, errors.Errorf("reverb: sample rate must be > 0: %d", sampleRate)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	sr := float64(sampleRate)
	n := max(int(math.Round(cfg.Seconds*sr)), 1)
	ir := make([]float64, n)
	rng := rand.New(rand.NewSource(cfg.Seed))

	// Early reflections land between 1 and 50 ms.
	for range cfg.Reflections {
		t := 0.001 + 0.049*rng.Float64()
		idx := int(t * sr)
		if idx <= 0 || idx >= n {
			continue
		}
		amp := (0.10 + 0.35*rng.Float64()) * math.Exp(-t*20)
		ir[idx] += amp * math.Pow(0.5+0.5*rng.Float64(), 1/cfg.Brightness)
	}

	if cfg.TailLevel > 0 {
		high := max(0.3*(cfg.Brightness-0.3), 0)
		var lp, hp float64
		for i := range ir {
			t := float64(i) / sr
			noise := rng.NormFloat64()
			lp = 0.985*lp + 0.015*noise
			hp = 0.15*noise - 0.15*hp
			lowEnv := math.Exp(-t / (0.75 * cfg.LowDecay))
			highEnv := math.Exp(-t / (0.75 * cfg.HighDecay))
			ir[i] += cfg.TailLevel * (lowEnv*lp + high*highEnv*hp)
		}
	}

	removeDC(ir, 0.995)
	fadeOut(ir, int(cfg.FadeOut*sr))

	peak := 0.0
	for _, v := range ir {
		peak = max(peak, math.Abs(v))
	}
	if peak < 1e-12 {
		return ir, nil
	}
	g := cfg.Peak / peak
	for i := range ir {
		ir[i] *= g
	}
	return ir, nil
}

// SetRoom loads a generated room response as the impulse response.
func (c *Convolver) SetRoom(cfg RoomConfig) error {
	ir, err := GenerateRoom(cfg, c.sampleRate)
	if err != nil {
		return err
	}
	return c.SetIR(ir)
}

// removeDC runs a one-pole DC blocker with pole r.
func removeDC(x []float64, r float64) {
	var px, py float64
	for i, v := range x {
		y := v - px + r*py
		px, py = v, y
		x[i] = y
	}
}

func fadeOut(x []float64, n int) {
	n = min(n, len(x))
	if n <= 0 {
		return
	}
	start := len(x) - n
	for i := range n {
		x[start+i] *= 0.5 * (1 + math.Cos(math.Pi*float64(i+1)/float64(n)))
	}
}
