package graph

// Ports declares the named inputs and outputs of a processor. The index of a
// name in its slice is the port number used by HandleEvent, Process and Emit.
type Ports struct {
	StreamIn  []string
	StreamOut []string
	EventIn   []string
	EventOut  []string
}

// Emitter forwards events from a processor's event outputs. Events emitted
// while handling an event are delivered in the same tick, before any stream
// processing.
type Emitter interface {
	Emit(port int, ev Event)
}

// Processor is one unit of exclusively owned state in a graph.
//
// HandleEvent mutates state only. Process computes one sample per stream
// output from the current stream inputs and stored state. Neither may block
// or allocate.
type Processor interface {
	Ports() Ports
	HandleEvent(port int, ev Event, out Emitter)
	Process(in, out []float64)
}

// streamSource feeds a host-provided value into the graph.
type streamSource struct {
	value float64
}

func (s *streamSource) Ports() Ports {
	return Ports{StreamOut: []string{"out"}}
}

func (s *streamSource) HandleEvent(int, Event, Emitter) {}

func (s *streamSource) Process(_, out []float64) {
	out[0] = s.value
}

// eventSource republishes host events on its single event output.
type eventSource struct{}

func (eventSource) Ports() Ports {
	return Ports{EventIn: []string{"in"}, EventOut: []string{"out"}}
}

func (eventSource) HandleEvent(_ int, ev Event, out Emitter) {
	out.Emit(0, ev)
}

func (eventSource) Process(_, _ []float64) {}

// streamSink captures the summed value arriving at a graph output.
type streamSink struct {
	value float64
}

func (s *streamSink) Ports() Ports {
	return Ports{StreamIn: []string{"in"}}
}

func (s *streamSink) HandleEvent(int, Event, Emitter) {}

func (s *streamSink) Process(in, _ []float64) {
	s.value = in[0]
}
