// Package midiin turns MIDI messages and Standard MIDI Files into graph
// events for the synth.
package midiin

import (
	"github.com/cwbudde/algo-synth/graph"
	"gitlab.com/gomidi/midi/v2"
)

// DefaultBendRange is the pitch-bend range in semitones at full deflection.
const DefaultBendRange = 2.0

// bendScale maps the 14-bit signed pitch-bend value to [-1, 1).
const bendScale = 1.0 / 8192

// Convert maps a channel message to a graph event. Note-on with velocity 0
// becomes a note-off. ok is false for messages the synth does not handle.
func Convert(msg midi.Message, bendRange float64) (ev graph.Event, ok bool) {
	var ch, key, vel uint8
	var rel int16
	var abs uint16
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return graph.NoteOn(int(ch), int(key), float64(vel)/127), true
	case msg.GetNoteEnd(&ch, &key):
		return graph.NoteOff(int(ch), int(key)), true
	case msg.GetPitchBend(&ch, &rel, &abs):
		return graph.PitchBend(int(ch), float64(rel)*bendScale*bendRange), true
	}
	return graph.Event{}, false
}
