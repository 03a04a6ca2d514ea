package midiin

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/cwbudde/algo-synth/graph"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func TestConvertNoteMessages(t *testing.T) {
	ev, ok := Convert(midi.NoteOn(3, 64, 127), DefaultBendRange)
	if !ok || ev.Kind != graph.KindNoteOn || ev.Channel != 3 || ev.Note != 64 || ev.Velocity != 1 {
		t.Fatalf("unexpected note-on conversion: ok=%v ev=%+v", ok, ev)
	}

	ev, ok = Convert(midi.NoteOff(3, 64), DefaultBendRange)
	if !ok || ev.Kind != graph.KindNoteOff || ev.Channel != 3 || ev.Note != 64 {
		t.Fatalf("unexpected note-off conversion: ok=%v ev=%+v", ok, ev)
	}

	ev, ok = Convert(midi.NoteOn(1, 60, 0), DefaultBendRange)
	if !ok || ev.Kind != graph.KindNoteOff || ev.Note != 60 {
		t.Fatalf("expected velocity-0 note-on to release: ok=%v ev=%+v", ok, ev)
	}
}

func TestConvertPitchBendUsesRange(t *testing.T) {
	tests := []struct {
		rel  int16
		rng  float64
		want float64
	}{
		{rel: 0, rng: 2, want: 0},
		{rel: 4096, rng: 2, want: 1},
		{rel: -8192, rng: 2, want: -2},
		{rel: -8192, rng: 12, want: -12},
		{rel: 8191, rng: 2, want: 2 * 8191.0 / 8192},
	}
	for _, tt := range tests {
		ev, ok := Convert(midi.Pitchbend(5, tt.rel), tt.rng)
		if !ok || ev.Kind != graph.KindPitchBend || ev.Channel != 5 {
			t.Fatalf("unexpected pitch-bend conversion: ok=%v ev=%+v", ok, ev)
		}
		if math.Abs(ev.Bend-tt.want) > 1e-12 {
			t.Fatalf("bend %d range %g: got=%f want=%f", tt.rel, tt.rng, ev.Bend, tt.want)
		}
	}
}

func TestConvertIgnoresOtherMessages(t *testing.T) {
	for _, msg := range []midi.Message{
		midi.ControlChange(0, 7, 100),
		midi.ProgramChange(0, 5),
	} {
		if _, ok := Convert(msg, DefaultBendRange); ok {
			t.Fatalf("expected %s to be ignored", msg)
		}
	}
}

func TestReadFileFollowsTempoMap(t *testing.T) {
	const sr = 48000
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(480)

	var tempo smf.Track
	tempo.Add(0, smf.MetaTempo(120))
	tempo.Add(960, smf.MetaTempo(60))
	tempo.Close(0)

	var notes smf.Track
	notes.Add(0, midi.NoteOn(0, 60, 100))
	notes.Add(480, midi.NoteOff(0, 60))
	notes.Add(480, midi.Pitchbend(0, 4096))
	notes.Add(480, midi.NoteOn(0, 62, 64))
	notes.Close(0)

	if err := s.Add(tempo); err != nil {
		t.Fatalf("add tempo track: %v", err)
	}
	if err := s.Add(notes); err != nil {
		t.Fatalf("add note track: %v", err)
	}
	path := filepath.Join(t.TempDir(), "song.mid")
	if err := s.WriteFile(path); err != nil {
		t.Fatalf("write smf: %v", err)
	}

	events, err := ReadFile(path, sr, DefaultBendRange)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	// 120 bpm for the first two quarters (0.5 s each), then 60 bpm (1 s).
	want := []struct {
		tick uint64
		kind graph.EventKind
	}{
		{tick: 0, kind: graph.KindNoteOn},
		{tick: sr / 2, kind: graph.KindNoteOff},
		{tick: sr, kind: graph.KindPitchBend},
		{tick: 2 * sr, kind: graph.KindNoteOn},
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(events), events)
	}
	for i, w := range want {
		if events[i].Tick != w.tick || events[i].Event.Kind != w.kind {
			t.Fatalf("event %d: got tick=%d kind=%s want tick=%d kind=%s",
				i, events[i].Tick, events[i].Event.Kind, w.tick, w.kind)
		}
	}
	if events[2].Event.Bend != 1 {
		t.Fatalf("expected bend of one semitone, got %f", events[2].Event.Bend)
	}
	if got := Duration(events); got != 2*sr+1 {
		t.Fatalf("expected duration %d, got %d", 2*sr+1, got)
	}
}

func TestReadFileErrors(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.mid"), 48000, 2); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := ReadFile("unused.mid", 0, 2); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
	if Duration(nil) != 0 {
		t.Fatal("expected zero duration for no events")
	}
}
