package graph

import (
	"testing"

	"github.com/pkg/errors"
)

// constant emits a fixed stream value.
type constant struct{ v float64 }

func (c *constant) Ports() Ports                    { return Ports{StreamOut: []string{"out"}} }
func (c *constant) HandleEvent(int, Event, Emitter) {}
func (c *constant) Process(_, out []float64)        { out[0] = c.v }

// latch holds the last parameter value it received and outputs it plus its
// stream input.
type latch struct {
	value   float64
	history []Event
}

func (l *latch) Ports() Ports {
	return Ports{StreamIn: []string{"in"}, StreamOut: []string{"out"}, EventIn: []string{"set"}}
}

func (l *latch) HandleEvent(_ int, ev Event, _ Emitter) {
	l.history = append(l.history, ev)
	if ev.Kind == KindParameter {
		l.value = ev.Value
	}
}

func (l *latch) Process(in, out []float64) { out[0] = in[0] + l.value }

// fanout forwards every event to both outputs.
type fanout struct{}

func (fanout) Ports() Ports {
	return Ports{EventIn: []string{"in"}, EventOut: []string{"a", "b"}}
}

func (fanout) HandleEvent(_ int, ev Event, out Emitter) {
	out.Emit(0, ev)
	out.Emit(1, ev)
}

func (fanout) Process(_, _ []float64) {}

// pass copies its stream input.
type pass struct{}

func (pass) Ports() Ports                    { return Ports{StreamIn: []string{"in"}, StreamOut: []string{"out"}} }
func (pass) HandleEvent(int, Event, Emitter) {}
func (pass) Process(in, out []float64)       { out[0] = in[0] }

func mustBuild(t *testing.T, b *Builder) *Graph {
	t.Helper()
	g, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return g
}

func TestEventsAppliedBeforeStreamOfSameTick(t *testing.T) {
	b := NewBuilder()
	ctl := b.EventInput("ctl")
	l := &latch{}
	ln := b.Add("latch", l)
	src := b.Add("zero", &constant{})
	out := b.StreamOutput("out")
	b.Connect(ctl, "out", ln, "set")
	b.Connect(src, "out", ln, "in")
	b.Connect(ln, "out", out, "in")
	g := mustBuild(t, b)

	in, _ := g.EventInput("ctl")
	o, _ := g.Output("out")

	g.Schedule(in, 3, ParameterChange(0.5))
	for tick := 0; tick < 6; tick++ {
		g.Tick()
		want := 0.0
		if tick >= 3 {
			want = 0.5
		}
		if got := g.Value(o); got != want {
			t.Fatalf("tick %d: got=%f want=%f", tick, got, want)
		}
	}
}

func TestSameTickEventsKeepInsertionOrder(t *testing.T) {
	b := NewBuilder()
	ctl := b.EventInput("ctl")
	l := &latch{}
	ln := b.Add("latch", l)
	b.Connect(ctl, "out", ln, "set")
	g := mustBuild(t, b)
	in, _ := g.EventInput("ctl")

	g.Schedule(in, 2, ParameterChange(3))
	g.Schedule(in, 1, ParameterChange(1))
	g.Schedule(in, 2, ParameterChange(4))
	g.Schedule(in, 1, ParameterChange(2))
	for i := 0; i < 3; i++ {
		g.Tick()
	}

	want := []float64{1, 2, 3, 4}
	if len(l.history) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(l.history))
	}
	for i, ev := range l.history {
		if ev.Value != want[i] {
			t.Fatalf("event %d out of order: got=%f want=%f", i, ev.Value, want[i])
		}
	}
	if l.value != 4 {
		t.Fatalf("expected last value to win: got=%f", l.value)
	}
}

func TestLateEventsDeliveredOnNextTick(t *testing.T) {
	b := NewBuilder()
	ctl := b.EventInput("ctl")
	l := &latch{}
	ln := b.Add("latch", l)
	b.Connect(ctl, "out", ln, "set")
	g := mustBuild(t, b)
	in, _ := g.EventInput("ctl")

	for i := 0; i < 10; i++ {
		g.Tick()
	}
	g.Schedule(in, 2, ParameterChange(7))
	g.Tick()
	if l.value != 7 {
		t.Fatalf("expected late event to be applied on tick %d", g.Now()-1)
	}
}

func TestEmittedEventsReachAllFanoutTargets(t *testing.T) {
	b := NewBuilder()
	ctl := b.EventInput("ctl")
	f := b.Add("fan", fanout{})
	l1, l2 := &latch{}, &latch{}
	n1 := b.Add("l1", l1)
	n2 := b.Add("l2", l2)
	b.Connect(ctl, "out", f, "in")
	b.Connect(f, "a", n1, "set")
	b.Connect(f, "b", n2, "set")
	b.Connect(f, "b", n1, "set")
	g := mustBuild(t, b)
	in, _ := g.EventInput("ctl")

	g.Send(in, ParameterChange(0.25))
	g.Tick()
	if len(l1.history) != 2 || len(l2.history) != 1 {
		t.Fatalf("unexpected deliveries: l1=%d l2=%d", len(l1.history), len(l2.history))
	}
}

func TestStreamFanInIsSummed(t *testing.T) {
	b := NewBuilder()
	a := b.Add("a", &constant{v: 0.25})
	c := b.Add("c", &constant{v: 0.5})
	p := b.Add("pass", pass{})
	out := b.StreamOutput("out")
	b.Connect(a, "out", p, "in")
	b.Connect(c, "out", p, "in")
	b.Connect(p, "out", out, "in")
	b.Connect(a, "out", out, "in")
	g := mustBuild(t, b)
	o, _ := g.Output("out")

	g.Tick()
	if got := g.Value(o); got != 1.0 {
		t.Fatalf("expected summed output: got=%f want=1", got)
	}
	g.Tick()
	if got := g.Value(o); got != 1.0 {
		t.Fatalf("inputs must be cleared between ticks: got=%f", got)
	}
}

func TestExecutionOrderFollowsStreamDependencies(t *testing.T) {
	b := NewBuilder()
	out := b.StreamOutput("out")
	p2 := b.Add("p2", pass{})
	p1 := b.Add("p1", pass{})
	in := b.StreamInput("in")
	b.Connect(p2, "out", out, "in")
	b.Connect(p1, "out", p2, "in")
	b.Connect(in, "out", p1, "in")
	g := mustBuild(t, b)

	pos := map[string]int{}
	for i, name := range g.Order() {
		pos[name] = i
	}
	if !(pos["in"] < pos["p1"] && pos["p1"] < pos["p2"] && pos["p2"] < pos["out"]) {
		t.Fatalf("unexpected order: %v", g.Order())
	}

	si, _ := g.StreamInput("in")
	o, _ := g.Output("out")
	buf := []float64{1, -2, 3}
	g.ProcessInPlace(si, o, buf)
	if buf[0] != 1 || buf[1] != -2 || buf[2] != 3 {
		t.Fatalf("expected zero-latency pass-through, got %v", buf)
	}
}

func TestBuildRejectsStreamCycle(t *testing.T) {
	b := NewBuilder()
	p1 := b.Add("p1", pass{})
	p2 := b.Add("p2", pass{})
	b.Connect(p1, "out", p2, "in")
	b.Connect(p2, "out", p1, "in")
	_, err := b.Build()
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}

	b = NewBuilder()
	p := b.Add("p", pass{})
	b.Connect(p, "out", p, "in")
	if _, err := b.Build(); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle for self connection, got %v", err)
	}
}

func TestBuildAllowsEventCycles(t *testing.T) {
	b := NewBuilder()
	f := b.Add("fan", fanout{})
	l := &latch{}
	ln := b.Add("latch", l)
	b.Connect(f, "a", f, "in")
	b.Connect(f, "b", ln, "set")
	g := mustBuild(t, b)

	g.nodes[f].emitter.Emit(0, ParameterChange(1))
	g.Tick()
	if g.Dropped() == 0 {
		t.Fatalf("expected runaway event cycle to be cut off")
	}
	if len(l.history) == 0 {
		t.Fatalf("expected latch to receive events before the cutoff")
	}
}

func TestBuildRejectsMismatchedPorts(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
	}{
		{
			name: "stream to event",
			build: func(b *Builder) {
				c := b.Add("c", &constant{})
				l := b.Add("l", &latch{})
				b.Connect(c, "out", l, "set")
			},
		},
		{
			name: "event to stream",
			build: func(b *Builder) {
				e := b.EventInput("e")
				l := b.Add("l", &latch{})
				b.Connect(e, "out", l, "in")
			},
		},
		{
			name: "unknown output",
			build: func(b *Builder) {
				c := b.Add("c", &constant{})
				l := b.Add("l", &latch{})
				b.Connect(c, "nope", l, "in")
			},
		},
		{
			name: "duplicate name",
			build: func(b *Builder) {
				b.Add("c", &constant{})
				b.Add("c", &constant{})
			},
		},
		{
			name: "unknown node",
			build: func(b *Builder) {
				c := b.Add("c", &constant{})
				b.Connect(c, "out", NodeID(42), "in")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			tt.build(b)
			if _, err := b.Build(); err == nil {
				t.Fatalf("expected build error")
			}
		})
	}
}

func TestSamplesIsLazyAndResumable(t *testing.T) {
	b := NewBuilder()
	c := b.Add("c", &constant{v: 0.1})
	out := b.StreamOutput("out")
	b.Connect(c, "out", out, "in")
	g := mustBuild(t, b)
	o, _ := g.Output("out")

	n := 0
	for v := range g.Samples(o) {
		if v != 0.1 {
			t.Fatalf("unexpected sample %f", v)
		}
		n++
		if n == 5 {
			break
		}
	}
	if g.Now() != 5 {
		t.Fatalf("expected 5 ticks, got %d", g.Now())
	}
	for range g.Samples(o) {
		break
	}
	if g.Now() != 6 {
		t.Fatalf("expected resumed stream to continue at tick 6, got %d", g.Now())
	}
}

func TestUnknownHandles(t *testing.T) {
	g := mustBuild(t, NewBuilder())
	if _, err := g.EventInput("x"); err == nil {
		t.Fatalf("expected error for unknown event input")
	}
	if _, err := g.StreamInput("x"); err == nil {
		t.Fatalf("expected error for unknown stream input")
	}
	if _, err := g.Output("x"); err == nil {
		t.Fatalf("expected error for unknown output")
	}
}

func TestParamSpecClamp(t *testing.T) {
	p := ParamSpec{Name: "volume", Min: -85, Max: 6, Init: -12, Unit: "dB", Step: 0.5}
	tests := []struct {
		in, want float64
	}{
		{in: -100, want: -85},
		{in: 10, want: 6},
		{in: -12.2, want: -12},
		{in: -12.3, want: -12.5},
	}
	for _, tt := range tests {
		if got := p.Clamp(tt.in); got != tt.want {
			t.Fatalf("Clamp(%f): got=%f want=%f", tt.in, got, tt.want)
		}
	}
	ev := p.Event(99)
	if ev.Kind != KindParameter || ev.Value != 6 {
		t.Fatalf("unexpected event %+v", ev)
	}
}
