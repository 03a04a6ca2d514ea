package synth

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-synth/graph"
)

func newTestEnvelope(t *testing.T) *Envelope {
	t.Helper()
	e, err := NewEnvelope(44100, 0.2, 0.02, 0.1)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	return e
}

func stepEnvelope(e *Envelope) float64 {
	out := make([]float64, 1)
	e.Process(nil, out)
	return out[0]
}

func TestEnvelopeIdleIsSilent(t *testing.T) {
	e := newTestEnvelope(t)
	e.HandleEvent(0, graph.NoteOff(0, 60), nil)
	for i := 0; i < 100; i++ {
		if v := stepEnvelope(e); v != 0 {
			t.Fatalf("expected silence while idle, got %f at tick %d", v, i)
		}
	}
	if e.Stage() != StageIdle {
		t.Fatalf("expected note-off in idle to stay idle, got %s", e.Stage())
	}
}

func TestEnvelopeAttackRisesToLevelAndHolds(t *testing.T) {
	e := newTestEnvelope(t)
	e.HandleEvent(0, graph.NoteOn(0, 60, 1), nil)

	limit := int(math.Ceil(0.02 * 44100))
	prev := 0.0
	reached := -1
	for i := 0; i < limit; i++ {
		v := stepEnvelope(e)
		if v <= prev {
			t.Fatalf("expected strictly increasing attack at tick %d: prev=%f got=%f", i, prev, v)
		}
		if v > 0.2 {
			t.Fatalf("attack overshoot at tick %d: %f", i, v)
		}
		prev = v
		if v == 0.2 {
			reached = i
			break
		}
	}
	if reached < 0 {
		t.Fatalf("expected level 0.2 within %d ticks, last value %f", limit, prev)
	}
	if e.Stage() != StageSustain {
		t.Fatalf("expected sustain after attack, got %s", e.Stage())
	}
	for i := 0; i < 5000; i++ {
		if v := stepEnvelope(e); v != 0.2 {
			t.Fatalf("expected sustain to hold exactly 0.2, got %f", v)
		}
	}
}

func TestEnvelopeReleaseDecaysGeometricallyToZero(t *testing.T) {
	e := newTestEnvelope(t)
	e.HandleEvent(0, graph.NoteOn(0, 60, 1), nil)
	for i := 0; i < 1000; i++ {
		stepEnvelope(e)
	}
	start := e.Value()
	e.HandleEvent(0, graph.NoteOff(0, 60), nil)

	m := e.ReleaseMultiplier()
	want := math.Ceil(math.Log(releaseFloor/start) / math.Log(m))

	prev := start
	ticks := 0
	for {
		v := stepEnvelope(e)
		ticks++
		if v == 0 {
			break
		}
		if math.Abs(v-prev*m) > 1e-12 {
			t.Fatalf("expected geometric decay at tick %d: got=%g want=%g", ticks, v, prev*m)
		}
		prev = v
		if ticks > 10*int(want) {
			t.Fatalf("release never reached zero")
		}
	}
	if math.Abs(float64(ticks)-want) > 2 {
		t.Fatalf("unexpected release length: got=%d want≈%.0f", ticks, want)
	}
	for i := 0; i < 100; i++ {
		if v := stepEnvelope(e); v != 0 {
			t.Fatalf("expected exact silence after release, got %g", v)
		}
	}
}

func TestEnvelopeReleaseReachesMinus80DBAfterReleaseTime(t *testing.T) {
	e := newTestEnvelope(t)
	got := math.Pow(e.ReleaseMultiplier(), 44100*0.1)
	if math.Abs(got-0.0001) > 1e-9 {
		t.Fatalf("expected -80 dB after release time: got=%g", got)
	}
}

func TestEnvelopeNoteOnDuringReleaseRestartsFromCurrentValue(t *testing.T) {
	e := newTestEnvelope(t)
	e.HandleEvent(0, graph.NoteOn(0, 60, 1), nil)
	for i := 0; i < 2000; i++ {
		stepEnvelope(e)
	}
	e.HandleEvent(0, graph.NoteOff(0, 60), nil)
	for i := 0; i < 200; i++ {
		stepEnvelope(e)
	}
	mid := e.Value()
	if mid <= 0 || mid >= 0.2 {
		t.Fatalf("expected partial release, got %f", mid)
	}

	e.HandleEvent(0, graph.NoteOn(0, 60, 1), nil)
	if e.Stage() != StageAttack {
		t.Fatalf("expected attack after retrigger, got %s", e.Stage())
	}
	v := stepEnvelope(e)
	if v <= mid || v > mid+0.2/(0.02*44100)+1e-12 {
		t.Fatalf("expected attack to continue from %f, got %f", mid, v)
	}
}

func TestEnvelopeRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name                             string
		sr, level, attack, release float64
	}{
		{name: "sample rate", sr: 0, level: 0.2, attack: 0.01, release: 0.1},
		{name: "level", sr: 44100, level: 0, attack: 0.01, release: 0.1},
		{name: "attack", sr: 44100, level: 0.2, attack: 0, release: 0.1},
		{name: "release", sr: 44100, level: 0.2, attack: 0.01, release: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEnvelope(tt.sr, tt.level, tt.attack, tt.release); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
