package ladder

import (
	"math"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-synth/graph"
	"github.com/pkg/errors"
)

// Structural gains of the diode stages. The first stage sees the input
// transistor pair, the inner stages share one gain and the last stage is
// loaded by three.
const (
	g0inv = 1.0
	g1inv = 1.0 / 1.836
	g2inv = 1.0 / (3 * 1.836)
)

// Event input ports of Filter and Oversampled.
const (
	CutoffPort    = 0
	ResonancePort = 1
)

// State contains explicit ladder runtime state for save/restore workflows.
type State struct {
	Stage     [4]float64
	PrevInput float64
}

// Filter is a four-stage diode-ladder low-pass solved semi-implicitly.
//
// The instantaneous feedback loop through the stage nonlinearities is
// resolved per sample by a closed-form linearisation around the current
// state: each stage's tanh is replaced by a Padé estimate of tanh(x)/x
// evaluated at the previous state, and the resulting linear system is solved
// by substitution. No iteration is needed.
type Filter struct {
	sampleRate float64
	cutoffHz   float64
	resonance  float64

	f float64 // tan(pi*fc/fs)

	state State
}

// New constructs a diode-ladder filter running at sampleRate.
func New(sampleRate float64, opts ...Option) (*Filter, error) {
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

	fl := &Filter{
		sampleRate: sampleRate,
		cutoffHz:   cfg.cutoffHz,
		resonance:  cfg.resonance,
	}
	fl.rebuild()
	return fl, nil
}

// SampleRate returns the rate the ladder is stepped at.
func (fl *Filter) SampleRate() float64 { return fl.sampleRate }

// CutoffHz returns the cutoff frequency in Hz.
func (fl *Filter) CutoffHz() float64 { return fl.cutoffHz }

// Resonance returns the feedback resonance.
func (fl *Filter) Resonance() float64 { return fl.resonance }

// SetCutoffHz updates cutoff and rebuilds coefficients.
func (fl *Filter) SetCutoffHz(cutoffHz float64) error {
	if err := validateCutoff(cutoffHz, fl.sampleRate); err != nil {
		return err
	}
	fl.cutoffHz = cutoffHz
	fl.rebuild()
	return nil
}

// SetResonance updates resonance.
func (fl *Filter) SetResonance(resonance float64) error {
	if err := validateFiniteRange(resonance, ResonanceParam.Min, ResonanceParam.Max, "resonance"); err != nil {
		return err
	}
	fl.resonance = resonance
	return nil
}

// Reset clears ladder state.
func (fl *Filter) Reset() {
	fl.state = State{}
}

// State returns a copy of the current processor state.
func (fl *Filter) State() State {
	return fl.state
}

// SetState restores an externally saved processor state.
func (fl *Filter) SetState(state State) error {
	if !stateIsFinite(state) {
		return errors.New("ladder: state contains NaN or Inf")
	}
	fl.state = state
	return nil
}

// ProcessSample processes one sample.
func (fl *Filter) ProcessSample(input float64) float64 {
	if !isFinite(input) {
		input = 0
	}
	return sanitizeOutput(fl.step(input))
}

// ProcessInPlace processes a mono buffer in place.
func (fl *Filter) ProcessInPlace(buf []float64) {
	for i := range buf {
		buf[i] = fl.ProcessSample(buf[i])
	}
}

func (fl *Filter) step(in float64) float64 {
	s := &fl.state
	s0, s1, s2, s3 := s.Stage[0], s.Stage[1], s.Stage[2], s.Stage[3]
	f, r := fl.f, fl.resonance

	// Half-sample delayed input for the nonlinearities.
	ih := 0.5 * (in + s.PrevInput)

	t0 := f * tanhXdX((ih-r*s3)*g0inv) * g0inv
	t1 := f * tanhXdX((s0-s1)*g1inv) * g1inv
	t2 := f * tanhXdX((s1-s2)*g1inv) * g1inv
	t3 := f * tanhXdX((s2-s3)*g1inv) * g1inv
	t4 := f * tanhXdX(s3*g2inv) * g2inv

	num := (s2+s3+t2*(s1+s2+s3+t1*(s0+s1+s2+s3+t0*in))+t1*(2*s2+2*s3))*t3 +
		s3 + 2*s3*t1 + t2*(2*s3+3*s3*t1)
	den := (t4+t1*(2*t4+4)+t2*(t4+t1*(t4+r*t0+4)+3)+2)*t3 +
		t4 + t1*(2*t4+2) + t2*(2*t4+t1*(3*t4+3)+2) + 1
	y3 := num / den

	y2 := (s3 - (1+t4+t3)*y3) / (-t3)
	y1 := (s2 - (1+t3+t2)*y2 + t3*y3) / (-t2)
	y0 := (s1 - (1+t2+t1)*y1 + t2*y2) / (-t1)
	xx := in - r*y3

	s0 += 2 * (t0*xx + t1*(y1-y0))
	s1 += 2 * (t2*(y2-y1) - t1*(y1-y0))
	s2 += 2 * (t3*(y3-y2) - t2*(y2-y1))
	s3 += 2 * (-t4*y3 - t3*(y3-y2))

	if !isFinite(s0) || !isFinite(s1) || !isFinite(s2) || !isFinite(s3) {
		fl.Reset()
		return 0
	}

	s.Stage[0] = dspcore.FlushDenormals(s0)
	s.Stage[1] = dspcore.FlushDenormals(s1)
	s.Stage[2] = dspcore.FlushDenormals(s2)
	s.Stage[3] = dspcore.FlushDenormals(s3)
	s.PrevInput = in

	return y3 * r
}

func (fl *Filter) rebuild() {
	fl.f = math.Tan(math.Pi * fl.cutoffHz / fl.sampleRate)
}

// Ports implements graph.Processor.
func (fl *Filter) Ports() graph.Ports {
	return graph.Ports{
		StreamIn:  []string{"in"},
		StreamOut: []string{"out"},
		EventIn:   []string{CutoffParam.Name, ResonanceParam.Name},
	}
}

// HandleEvent implements graph.Processor. Values are clamped to the declared
// parameter ranges.
func (fl *Filter) HandleEvent(port int, ev graph.Event, _ graph.Emitter) {
	if ev.Kind != graph.KindParameter {
		return
	}
	switch port {
	case CutoffPort:
		_ = fl.SetCutoffHz(clampCutoff(ev.Value, fl.sampleRate))
	case ResonancePort:
		_ = fl.SetResonance(ResonanceParam.Clamp(ev.Value))
	}
}

// Process implements graph.Processor.
func (fl *Filter) Process(in, out []float64) {
	out[0] = fl.ProcessSample(in[0])
}

// tanhXdX is a Padé approximant of tanh(x)/x.
func tanhXdX(x float64) float64 {
	a := x * x
	return ((a+105)*a + 945) / ((15*a+420)*a + 945)
}

// clampCutoff maps a requested cutoff into CutoffParam and below Nyquist of
// the host rate.
func clampCutoff(v, hostRate float64) float64 {
	v = CutoffParam.Clamp(v)
	if limit := maxCutoffRatio * hostRate; v > limit {
		v = limit
	}
	return v
}

func sanitizeOutput(value float64) float64 {
	if !isFinite(value) {
		return 0
	}
	return value
}

func stateIsFinite(state State) bool {
	for _, v := range state.Stage {
		if !isFinite(v) {
			return false
		}
	}
	return isFinite(state.PrevInput)
}
