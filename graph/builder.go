package graph

import "github.com/pkg/errors"

// ErrCycle is returned by Build when stream connections form a cycle.
var ErrCycle = errors.New("graph: stream connections contain a cycle")

// NodeID identifies a node added to a Builder.
type NodeID int

type nodeRole uint8

const (
	roleProcessor nodeRole = iota
	roleStreamInput
	roleEventInput
	roleStreamOutput
)

type builderNode struct {
	name  string
	proc  Processor
	ports Ports
	role  nodeRole
}

type connection struct {
	from     NodeID
	fromPort string
	to       NodeID
	toPort   string
}

// Builder collects a fixed topology. Build resolves it once into a Graph with
// a precomputed execution order. The first error encountered while adding
// nodes or connections is reported by Build.
type Builder struct {
	nodes []builderNode
	names map[string]NodeID
	conns []connection
	err   error
}

// NewBuilder returns an empty topology builder.
func NewBuilder() *Builder {
	return &Builder{names: make(map[string]NodeID)}
}

// Add registers a processor under a unique name.
func (b *Builder) Add(name string, p Processor) NodeID {
	if p == nil {
		b.fail(errors.Errorf("graph: nil processor %q", name))
		return -1
	}
	return b.add(name, p, roleProcessor)
}

// StreamInput adds a host-driven stream source with output port "out".
func (b *Builder) StreamInput(name string) NodeID {
	return b.add(name, &streamSource{}, roleStreamInput)
}

// EventInput adds a host event entry point with output port "out".
func (b *Builder) EventInput(name string) NodeID {
	return b.add(name, eventSource{}, roleEventInput)
}

// StreamOutput adds a graph output with input port "in". Several
// connections into it are summed.
func (b *Builder) StreamOutput(name string) NodeID {
	return b.add(name, &streamSink{}, roleStreamOutput)
}

// Connect wires an output port of from to an input port of to. Port kinds
// must match: stream to stream, event to event.
func (b *Builder) Connect(from NodeID, fromPort string, to NodeID, toPort string) {
	if !b.valid(from) || !b.valid(to) {
		b.fail(errors.Errorf("graph: connect %s -> %s: unknown node", fromPort, toPort))
		return
	}
	b.conns = append(b.conns, connection{from: from, fromPort: fromPort, to: to, toPort: toPort})
}

func (b *Builder) add(name string, p Processor, role nodeRole) NodeID {
	if name == "" {
		b.fail(errors.New("graph: empty node name"))
		return -1
	}
	if _, dup := b.names[name]; dup {
		b.fail(errors.Errorf("graph: duplicate node name %q", name))
		return -1
	}
	id := NodeID(len(b.nodes))
	b.nodes = append(b.nodes, builderNode{name: name, proc: p, ports: p.Ports(), role: role})
	b.names[name] = id
	return id
}

func (b *Builder) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(b.nodes)
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build validates the topology and computes the stream execution order with
// Kahn's algorithm. Event connections do not constrain the order.
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}

	g := &Graph{
		nodes:     make([]node, len(b.nodes)),
		streamIns: make(map[string]int),
		eventIns:  make(map[string]int),
		outputs:   make(map[string]int),
	}
	for i, bn := range b.nodes {
		n := &g.nodes[i]
		n.name = bn.name
		n.proc = bn.proc
		n.in = make([]float64, len(bn.ports.StreamIn))
		n.out = make([]float64, len(bn.ports.StreamOut))
		n.streamEdges = make([][]edge, len(bn.ports.StreamOut))
		n.eventEdges = make([][]edge, len(bn.ports.EventOut))
		n.emitter = emitter{g: g, node: i}

		switch bn.role {
		case roleStreamInput:
			g.streamIns[bn.name] = i
		case roleEventInput:
			g.eventIns[bn.name] = i
		case roleStreamOutput:
			g.outputs[bn.name] = i
		}
	}

	indegree := make([]int, len(b.nodes))
	downstream := make([][]int, len(b.nodes))
	for _, c := range b.conns {
		src, dst := b.nodes[c.from], b.nodes[c.to]

		if out := indexOf(src.ports.StreamOut, c.fromPort); out >= 0 {
			in := indexOf(dst.ports.StreamIn, c.toPort)
			if in < 0 {
				if indexOf(dst.ports.EventIn, c.toPort) >= 0 {
					return nil, errors.Errorf("graph: stream output %s.%s cannot feed event input %s.%s",
						src.name, c.fromPort, dst.name, c.toPort)
				}
				return nil, errors.Errorf("graph: %s has no stream input %q", dst.name, c.toPort)
			}
			if c.from == c.to {
				return nil, errors.Wrapf(ErrCycle, "self connection on %s", src.name)
			}
			n := &g.nodes[c.from]
			n.streamEdges[out] = append(n.streamEdges[out], edge{node: int(c.to), port: in})
			indegree[c.to]++
			downstream[c.from] = append(downstream[c.from], int(c.to))
			continue
		}

		if out := indexOf(src.ports.EventOut, c.fromPort); out >= 0 {
			in := indexOf(dst.ports.EventIn, c.toPort)
			if in < 0 {
				if indexOf(dst.ports.StreamIn, c.toPort) >= 0 {
					return nil, errors.Errorf("graph: event output %s.%s cannot feed stream input %s.%s",
						src.name, c.fromPort, dst.name, c.toPort)
				}
				return nil, errors.Errorf("graph: %s has no event input %q", dst.name, c.toPort)
			}
			n := &g.nodes[c.from]
			n.eventEdges[out] = append(n.eventEdges[out], edge{node: int(c.to), port: in})
			continue
		}

		return nil, errors.Errorf("graph: %s has no output %q", src.name, c.fromPort)
	}

	// Seed in insertion order so the execution order is deterministic.
	queue := make([]int, 0, len(b.nodes))
	for i, d := range indegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}
	order := make([]int, 0, len(b.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range downstream[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(order) != len(b.nodes) {
		return nil, errors.WithStack(ErrCycle)
	}
	g.order = order

	return g, nil
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
