package graph

import (
	"math"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

// ParamSpec declares a user-facing control. The host maps its UI onto
// parameter events; Clamp is the boundary-side validation applied before a
// value reaches the core.
type ParamSpec struct {
	Name string
	Min  float64
	Max  float64
	Init float64
	Unit string
	Step float64
}

// Clamp limits v to [Min, Max] and snaps it to the nearest Step above Min.
// Non-finite values map to Init.
func (p ParamSpec) Clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return p.Init
	}
	v = dspcore.Clamp(v, p.Min, p.Max)
	if p.Step > 0 {
		v = p.Min + math.Round((v-p.Min)/p.Step)*p.Step
		v = dspcore.Clamp(v, p.Min, p.Max)
	}
	return v
}

// Event returns a parameter event carrying the clamped value.
func (p ParamSpec) Event(v float64) Event {
	return ParameterChange(p.Clamp(v))
}
