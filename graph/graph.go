package graph

import (
	"iter"

	"github.com/pkg/errors"
)

// MaxDeliveriesPerTick bounds event handling work within one tick. Events
// beyond the budget are dropped and counted, so an event cycle cannot stall
// the audio thread.
const MaxDeliveriesPerTick = 1 << 14

type edge struct {
	node int
	port int
}

type node struct {
	name        string
	proc        Processor
	in          []float64
	out         []float64
	streamEdges [][]edge
	eventEdges  [][]edge
	emitter     emitter
}

type emitter struct {
	g    *Graph
	node int
}

func (e *emitter) Emit(port int, ev Event) {
	n := &e.g.nodes[e.node]
	if port < 0 || port >= len(n.eventEdges) {
		return
	}
	for _, dst := range n.eventEdges[port] {
		e.g.queue = append(e.g.queue, delivery{node: dst.node, port: dst.port, ev: ev})
	}
}

type delivery struct {
	node int
	port int
	ev   Event
}

type scheduled struct {
	tick  uint64
	input int
	ev    Event
}

// Input is a handle to a graph input resolved by name.
type Input int

// Output is a handle to a graph output resolved by name.
type Output int

// Graph executes a fixed topology one tick at a time. It is not safe for
// concurrent use; a single thread drives Tick.
type Graph struct {
	nodes []node
	order []int

	streamIns map[string]int
	eventIns  map[string]int
	outputs   map[string]int

	tick    uint64
	pending []scheduled
	head    int
	queue   []delivery
	dropped uint64
}

// StreamInput resolves a stream input by name.
func (g *Graph) StreamInput(name string) (Input, error) {
	i, ok := g.streamIns[name]
	if !ok {
		return -1, errors.Errorf("graph: unknown stream input %q", name)
	}
	return Input(i), nil
}

// EventInput resolves an event input by name.
func (g *Graph) EventInput(name string) (Input, error) {
	i, ok := g.eventIns[name]
	if !ok {
		return -1, errors.Errorf("graph: unknown event input %q", name)
	}
	return Input(i), nil
}

// Output resolves a stream output by name.
func (g *Graph) Output(name string) (Output, error) {
	i, ok := g.outputs[name]
	if !ok {
		return -1, errors.Errorf("graph: unknown output %q", name)
	}
	return Output(i), nil
}

// Now returns the index of the next tick to be executed.
func (g *Graph) Now() uint64 { return g.tick }

// Dropped returns the number of event deliveries discarded because a tick
// exceeded MaxDeliveriesPerTick.
func (g *Graph) Dropped() uint64 { return g.dropped }

// Order returns the node names in stream execution order.
func (g *Graph) Order() []string {
	names := make([]string, len(g.order))
	for i, id := range g.order {
		names[i] = g.nodes[id].name
	}
	return names
}

// Set stores the value a stream input produces from the next tick on.
func (g *Graph) Set(in Input, v float64) {
	g.nodes[in].proc.(*streamSource).value = v
}

// Value returns the summed sample that reached out during the last tick.
func (g *Graph) Value(out Output) float64 {
	return g.nodes[out].proc.(*streamSink).value
}

// Send queues ev for the next tick.
func (g *Graph) Send(in Input, ev Event) {
	g.Schedule(in, g.tick, ev)
}

// Schedule queues ev for delivery at tick at. Events for ticks already
// executed are delivered on the next tick. Events sharing a tick keep their
// insertion order.
func (g *Graph) Schedule(in Input, at uint64, ev Event) {
	if at < g.tick {
		at = g.tick
	}
	s := scheduled{tick: at, input: int(in), ev: ev}

	// Hosts usually schedule in time order, so scan from the back.
	i := len(g.pending)
	for i > g.head && g.pending[i-1].tick > at {
		i--
	}
	g.pending = append(g.pending, scheduled{})
	copy(g.pending[i+1:], g.pending[i:])
	g.pending[i] = s
}

// Tick executes one simulation step: every event due this tick is handled,
// including events emitted by handlers, and only then does each processor run
// its stream step once in topological order.
func (g *Graph) Tick() {
	g.deliverEvents()

	for i := range g.nodes {
		clear(g.nodes[i].in)
	}
	for _, id := range g.order {
		n := &g.nodes[id]
		n.proc.Process(n.in, n.out)
		for port, edges := range n.streamEdges {
			v := n.out[port]
			for _, e := range edges {
				g.nodes[e.node].in[e.port] += v
			}
		}
	}

	g.tick++
}

func (g *Graph) deliverEvents() {
	for g.head < len(g.pending) && g.pending[g.head].tick <= g.tick {
		s := g.pending[g.head]
		g.head++
		g.queue = append(g.queue, delivery{node: s.input, port: 0, ev: s.ev})
	}
	if g.head == len(g.pending) {
		g.pending = g.pending[:0]
		g.head = 0
	} else if g.head > len(g.pending)/2 {
		n := copy(g.pending, g.pending[g.head:])
		g.pending = g.pending[:n]
		g.head = 0
	}

	for i := 0; i < len(g.queue); i++ {
		if i == MaxDeliveriesPerTick {
			g.dropped += uint64(len(g.queue) - i)
			break
		}
		d := g.queue[i]
		n := &g.nodes[d.node]
		n.proc.HandleEvent(d.port, d.ev, &n.emitter)
	}
	g.queue = g.queue[:0]
}

// Render runs len(dst) ticks and stores each tick's value of out.
func (g *Graph) Render(out Output, dst []float64) {
	for i := range dst {
		g.Tick()
		dst[i] = g.Value(out)
	}
}

// ProcessInPlace feeds buf through the graph from in to out, one tick per
// sample, replacing each sample with the output.
func (g *Graph) ProcessInPlace(in Input, out Output, buf []float64) {
	for i, x := range buf {
		g.Set(in, x)
		g.Tick()
		buf[i] = g.Value(out)
	}
}

// Samples returns a lazy view of out. Each pulled value advances the graph
// by one tick; iteration can be stopped and started again, continuing from
// the current state.
func (g *Graph) Samples(out Output) iter.Seq[float64] {
	return func(yield func(float64) bool) {
		for {
			g.Tick()
			if !yield(g.Value(out)) {
				return
			}
		}
	}
}
