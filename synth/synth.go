package synth

import (
	"fmt"

	"github.com/cwbudde/algo-synth/graph"
	"github.com/pkg/errors"
)

// Graph input and output names of a Synth.
const (
	NotesInput  = "notes"
	VolumeInput = "volume"
	AudioOutput = "out"
)

// Voice is one oscillator shaped by its own envelope.
type Voice struct {
	Oscillator *Oscillator
	Envelope   *Envelope

	osc, env, amp graph.NodeID
}

// addVoice places a voice's processors into b and wires osc*env.
func addVoice(b *graph.Builder, index int, p *Params) (*Voice, error) {
	sr := float64(p.SampleRate)
	env, err := NewEnvelope(sr, p.EnvelopeLevel, p.AttackSeconds, p.ReleaseSeconds)
	if err != nil {
		return nil, err
	}
	v := &Voice{Oscillator: NewOscillator(sr), Envelope: env}

	prefix := fmt.Sprintf("voice%d/", index)
	v.osc = b.Add(prefix+"osc", v.Oscillator)
	v.env = b.Add(prefix+"env", v.Envelope)
	v.amp = b.Add(prefix+"amp", Gain{})
	b.Connect(v.osc, "out", v.amp, "audio")
	b.Connect(v.env, "out", v.amp, "gain")
	return v, nil
}

// Synth is the polyphonic engine: allocator, summed voices, and a smoothed
// master volume feeding one output.
type Synth struct {
	params    *Params
	graph     *graph.Graph
	allocator *VoiceAllocator
	voices    []*Voice
	volume    *ParameterRamp

	notesIn  graph.Input
	volumeIn graph.Input
	out      graph.Output
}

// NewSynth builds the synth graph. A nil params uses defaults.
func NewSynth(params *Params) (*Synth, error) {
	if params == nil {
		params = NewDefaultParams()
	}
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, "synth")
	}

	alloc, err := NewVoiceAllocator(params.Voices)
	if err != nil {
		return nil, err
	}
	volume, err := NewParameterRamp(float64(params.SampleRate), params.VolumeSlewRate, params.VolumeDB)
	if err != nil {
		return nil, err
	}

	b := graph.NewBuilder()
	notes := b.EventInput(NotesInput)
	vol := b.EventInput(VolumeInput)
	allocNode := b.Add("allocator", alloc)
	rampNode := b.Add("volume", volume)
	master := b.Add("master", Gain{})
	out := b.StreamOutput(AudioOutput)

	b.Connect(notes, "out", allocNode, "in")
	b.Connect(vol, "out", rampNode, "db")
	b.Connect(rampNode, "out", master, "gain")
	b.Connect(master, "out", out, "in")

	s := &Synth{params: params, allocator: alloc, volume: volume}
	for i := 0; i < params.Voices; i++ {
		v, err := addVoice(b, i, params)
		if err != nil {
			return nil, err
		}
		b.Connect(allocNode, VoiceOutput(i), v.osc, "note")
		b.Connect(allocNode, VoiceOutput(i), v.env, "note")
		b.Connect(v.amp, "out", master, "audio")
		s.voices = append(s.voices, v)
	}

	g, err := b.Build()
	if err != nil {
		return nil, errors.Wrap(err, "synth")
	}
	s.graph = g
	if s.notesIn, err = g.EventInput(NotesInput); err != nil {
		return nil, err
	}
	if s.volumeIn, err = g.EventInput(VolumeInput); err != nil {
		return nil, err
	}
	if s.out, err = g.Output(AudioOutput); err != nil {
		return nil, err
	}
	return s, nil
}

// Graph returns the underlying executor.
func (s *Synth) Graph() *graph.Graph { return s.graph }

// Params returns the construction parameters.
func (s *Synth) Params() *Params { return s.params }

// Allocator returns the voice allocator.
func (s *Synth) Allocator() *VoiceAllocator { return s.allocator }

// Voice returns voice i.
func (s *Synth) Voice(i int) *Voice { return s.voices[i] }

// NoteOn queues a note-on for the next tick.
func (s *Synth) NoteOn(channel, note int, velocity float64) {
	s.graph.Send(s.notesIn, graph.NoteOn(channel, note, velocity))
}

// NoteOff queues a note-off for the next tick.
func (s *Synth) NoteOff(channel, note int) {
	s.graph.Send(s.notesIn, graph.NoteOff(channel, note))
}

// PitchBend queues a pitch bend in semitones for the next tick.
func (s *Synth) PitchBend(channel int, semitones float64) {
	s.graph.Send(s.notesIn, graph.PitchBend(channel, semitones))
}

// SetVolumeDB queues a master volume change, clamped to VolumeParam.
func (s *Synth) SetVolumeDB(db float64) {
	s.graph.Send(s.volumeIn, VolumeParam.Event(db))
}

// Send queues any event for the next tick. Parameter events set the master
// volume in dB; everything else goes to the allocator.
func (s *Synth) Send(ev graph.Event) {
	s.Schedule(s.graph.Now(), ev)
}

// Schedule queues a note or volume event at an absolute tick. Parameter
// events go to the volume input; everything else to the note input.
func (s *Synth) Schedule(tick uint64, ev graph.Event) {
	if ev.Kind == graph.KindParameter {
		s.graph.Schedule(s.volumeIn, tick, VolumeParam.Event(ev.Value))
		return
	}
	s.graph.Schedule(s.notesIn, tick, ev)
}

// Tick advances one sample and returns it.
func (s *Synth) Tick() float64 {
	s.graph.Tick()
	return s.graph.Value(s.out)
}

// Process renders len(dst) samples.
func (s *Synth) Process(dst []float64) {
	s.graph.Render(s.out, dst)
}

// ActiveVoices counts voices whose envelope is not idle.
func (s *Synth) ActiveVoices() int {
	n := 0
	for _, v := range s.voices {
		if v.Envelope.Stage() != StageIdle {
			n++
		}
	}
	return n
}
