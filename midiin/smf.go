package midiin

import (
	"math"
	"sort"

	"github.com/cwbudde/algo-synth/graph"
	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const defaultBPM = 120.0

// TimedEvent is a graph event stamped with the sample tick it is due at.
type TimedEvent struct {
	Tick  uint64
	Event graph.Event
}

type fileEvent struct {
	ticks uint64 // absolute SMF ticks
	track int
	msg   smf.Message
}

// ReadFile loads a Standard MIDI File and converts its note and pitch-bend
// messages to sample ticks at sampleRate, following the file's tempo map.
// Events are ordered by time; simultaneous events keep track order and then
// file order.
func ReadFile(path string, sampleRate int, bendRange float64) ([]TimedEvent, error) {
	if sampleRate <= 0 {
		return nil, errors.Errorf("midiin: sample rate must be > 0: %d", sampleRate)
	}
	s, err := smf.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "midiin: read %s", path)
	}
	return Events(s, sampleRate, bendRange)
}

// Events converts a parsed SMF. See ReadFile.
func Events(s *smf.SMF, sampleRate int, bendRange float64) ([]TimedEvent, error) {
	mt, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, errors.Errorf("midiin: unsupported time format %v", s.TimeFormat)
	}
	resolution := float64(mt)
	if resolution <= 0 {
		return nil, errors.New("midiin: zero ticks per quarter note")
	}

	var all []fileEvent
	for ti, track := range s.Tracks {
		var abs uint64
		for _, ev := range track {
			abs += uint64(ev.Delta)
			all = append(all, fileEvent{ticks: abs, track: ti, msg: ev.Message})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].ticks != all[j].ticks {
			return all[i].ticks < all[j].ticks
		}
		return all[i].track < all[j].track
	})

	var out []TimedEvent
	var seconds float64
	var lastTicks uint64
	secPerTick := 60 / (defaultBPM * resolution)
	sr := float64(sampleRate)
	for _, fe := range all {
		seconds += float64(fe.ticks-lastTicks) * secPerTick
		lastTicks = fe.ticks

		var bpm float64
		if fe.msg.GetMetaTempo(&bpm) {
			if bpm > 0 {
				secPerTick = 60 / (bpm * resolution)
			}
			continue
		}
		ev, ok := Convert(midi.Message(fe.msg), bendRange)
		if !ok {
			continue
		}
		out = append(out, TimedEvent{Tick: uint64(math.Round(seconds * sr)), Event: ev})
	}
	return out, nil
}

// Duration returns the tick just after the last event, or 0 for none.
func Duration(events []TimedEvent) uint64 {
	if len(events) == 0 {
		return 0
	}
	return events[len(events)-1].Tick + 1
}
