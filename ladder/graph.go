package ladder

import (
	"github.com/cwbudde/algo-synth/graph"
	"github.com/pkg/errors"
)

// Graph input and output names of a FilterGraph.
const (
	AudioInput     = "in"
	CutoffInput    = "cutoff"
	ResonanceInput = "resonance"
	AudioOutput    = "out"
)

// FilterGraph is the top-level filter: an Oversampled ladder with a stream
// input, parameter event inputs and a stream output.
type FilterGraph struct {
	graph  *graph.Graph
	filter *Oversampled

	in, cutoff, resonance graph.Input
	out                   graph.Output
}

// NewFilterGraph builds a filter graph at host sampleRate.
func NewFilterGraph(sampleRate float64, opts ...Option) (*FilterGraph, error) {
	filter, err := NewOversampled(sampleRate, opts...)
	if err != nil {
		return nil, err
	}

	b := graph.NewBuilder()
	in := b.StreamInput(AudioInput)
	cutoff := b.EventInput(CutoffInput)
	resonance := b.EventInput(ResonanceInput)
	node := b.Add("ladder", filter)
	out := b.StreamOutput(AudioOutput)

	b.Connect(in, "out", node, "in")
	b.Connect(cutoff, "out", node, CutoffParam.Name)
	b.Connect(resonance, "out", node, ResonanceParam.Name)
	b.Connect(node, "out", out, "in")

	g, err := b.Build()
	if err != nil {
		return nil, errors.Wrap(err, "ladder")
	}

	fg := &FilterGraph{graph: g, filter: filter}
	if fg.in, err = g.StreamInput(AudioInput); err != nil {
		return nil, err
	}
	if fg.cutoff, err = g.EventInput(CutoffInput); err != nil {
		return nil, err
	}
	if fg.resonance, err = g.EventInput(ResonanceInput); err != nil {
		return nil, err
	}
	if fg.out, err = g.Output(AudioOutput); err != nil {
		return nil, err
	}
	return fg, nil
}

// Graph returns the underlying executor.
func (fg *FilterGraph) Graph() *graph.Graph { return fg.graph }

// Filter returns the oversampled ladder.
func (fg *FilterGraph) Filter() *Oversampled { return fg.filter }

// SetCutoffHz queues a cutoff change for the next tick.
func (fg *FilterGraph) SetCutoffHz(cutoffHz float64) {
	fg.graph.Send(fg.cutoff, graph.ParameterChange(cutoffHz))
}

// SetResonance queues a resonance change for the next tick.
func (fg *FilterGraph) SetResonance(resonance float64) {
	fg.graph.Send(fg.resonance, graph.ParameterChange(resonance))
}

// ScheduleCutoffHz queues a cutoff change at an absolute tick.
func (fg *FilterGraph) ScheduleCutoffHz(tick uint64, cutoffHz float64) {
	fg.graph.Schedule(fg.cutoff, tick, graph.ParameterChange(cutoffHz))
}

// ProcessSample runs one tick.
func (fg *FilterGraph) ProcessSample(input float64) float64 {
	fg.graph.Set(fg.in, input)
	fg.graph.Tick()
	return fg.graph.Value(fg.out)
}

// ProcessInPlace filters buf in place, one tick per sample.
func (fg *FilterGraph) ProcessInPlace(buf []float64) {
	fg.graph.ProcessInPlace(fg.in, fg.out, buf)
}
