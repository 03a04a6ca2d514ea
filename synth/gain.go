package synth

import "github.com/cwbudde/algo-synth/graph"

// Gain multiplies its audio input by its gain input.
type Gain struct{}

// Ports implements graph.Processor.
func (Gain) Ports() graph.Ports {
	return graph.Ports{StreamIn: []string{"audio", "gain"}, StreamOut: []string{"out"}}
}

// HandleEvent implements graph.Processor.
func (Gain) HandleEvent(int, graph.Event, graph.Emitter) {}

// Process implements graph.Processor.
func (Gain) Process(in, out []float64) {
	out[0] = in[0] * in[1]
}
