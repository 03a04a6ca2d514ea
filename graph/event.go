package graph

// EventKind tags the variant carried by an Event.
type EventKind uint8

const (
	// KindNone is the zero Event; processors ignore it.
	KindNone EventKind = iota
	// KindNoteOn starts a note on a channel.
	KindNoteOn
	// KindNoteOff releases a note on a channel.
	KindNoteOff
	// KindPitchBend sets the channel bend in semitones.
	KindPitchBend
	// KindParameter carries a new numeric parameter value.
	KindParameter
)

func (k EventKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNoteOn:
		return "note_on"
	case KindNoteOff:
		return "note_off"
	case KindPitchBend:
		return "pitch_bend"
	case KindParameter:
		return "parameter"
	default:
		return "unknown"
	}
}

// Event is a discrete message delivered to a processor's event input.
//
// It is a tagged union: Kind selects which of the remaining fields are
// meaningful. Events are passed by value so delivery never allocates.
type Event struct {
	Kind     EventKind
	Channel  int
	Note     int
	Velocity float64 // NoteOn, normalized to [0,1]
	Bend     float64 // PitchBend, semitones
	Value    float64 // Parameter
}

// NoteOn returns a note-on event.
func NoteOn(channel, note int, velocity float64) Event {
	return Event{Kind: KindNoteOn, Channel: channel, Note: note, Velocity: velocity}
}

// NoteOff returns a note-off event.
func NoteOff(channel, note int) Event {
	return Event{Kind: KindNoteOff, Channel: channel, Note: note}
}

// PitchBend returns a pitch-bend event in semitones.
func PitchBend(channel int, semitones float64) Event {
	return Event{Kind: KindPitchBend, Channel: channel, Bend: semitones}
}

// ParameterChange returns a parameter event carrying value.
func ParameterChange(value float64) Event {
	return Event{Kind: KindParameter, Value: value}
}
