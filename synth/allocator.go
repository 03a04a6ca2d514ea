package synth

import (
	"slices"
	"strconv"

	"github.com/cwbudde/algo-synth/graph"
	"github.com/pkg/errors"
)

const (
	// allocatedAgeSeed starts the counter for sounding voices. It sits far
	// above any released age so active voices are stolen last.
	allocatedAgeSeed uint64 = 1_000_000_000
	// freeAgeSeed starts the counter for released voices.
	freeAgeSeed uint64 = 1
)

// VoiceInfo records which note a voice was last assigned. Age orders voices
// for stealing: the lowest age is reused first.
type VoiceInfo struct {
	Channel int
	Note    int
	Age     uint64
}

// VoiceAllocator routes one note stream to a fixed set of voices, stealing
// the voice with the lowest age on each note-on.
type VoiceAllocator struct {
	voices           []VoiceInfo
	outputs          []string
	nextAllocatedAge uint64
	nextFreeAge      uint64
}

// NewVoiceAllocator creates an allocator with n voices. Event outputs are
// named voice0 .. voice{n-1}.
func NewVoiceAllocator(n int) (*VoiceAllocator, error) {
	if n < 1 {
		return nil, errors.Errorf("allocator: voice count must be >= 1: %d", n)
	}
	a := &VoiceAllocator{
		voices:           make([]VoiceInfo, n),
		outputs:          make([]string, n),
		nextAllocatedAge: allocatedAgeSeed,
		nextFreeAge:      freeAgeSeed,
	}
	for i := range a.voices {
		a.voices[i] = VoiceInfo{Channel: -1, Note: -1}
		a.outputs[i] = VoiceOutput(i)
	}
	return a, nil
}

// VoiceOutput returns the event output name that feeds voice i.
func VoiceOutput(i int) string {
	return "voice" + strconv.Itoa(i)
}

// Ports implements graph.Processor.
func (a *VoiceAllocator) Ports() graph.Ports {
	return graph.Ports{EventIn: []string{"in"}, EventOut: a.outputs}
}

// HandleEvent implements graph.Processor.
func (a *VoiceAllocator) HandleEvent(_ int, ev graph.Event, out graph.Emitter) {
	switch ev.Kind {
	case graph.KindNoteOn:
		idx := a.oldest()
		v := &a.voices[idx]
		v.Channel = ev.Channel
		v.Note = ev.Note
		v.Age = a.nextAllocatedAge
		a.nextAllocatedAge++
		out.Emit(idx, ev)

	case graph.KindNoteOff:
		// Duplicate notes may hold several voices; release all of them.
		for i := range a.voices {
			v := &a.voices[i]
			if v.Channel == ev.Channel && v.Note == ev.Note {
				if a.nextFreeAge >= allocatedAgeSeed {
					a.compactFreeAges()
				}
				v.Age = a.nextFreeAge
				a.nextFreeAge++
				out.Emit(i, ev)
			}
		}

	case graph.KindPitchBend:
		for i := range a.voices {
			if a.voices[i].Channel == ev.Channel {
				out.Emit(i, ev)
			}
		}
	}
}

// compactFreeAges renumbers the released voices from freeAgeSeed, keeping
// their order, so released ages stay below every allocated age.
func (a *VoiceAllocator) compactFreeAges() {
	free := make([]int, 0, len(a.voices))
	for i, v := range a.voices {
		if v.Age < allocatedAgeSeed {
			free = append(free, i)
		}
	}
	slices.SortStableFunc(free, func(i, j int) int {
		switch {
		case a.voices[i].Age < a.voices[j].Age:
			return -1
		case a.voices[i].Age > a.voices[j].Age:
			return 1
		}
		return 0
	})
	a.nextFreeAge = freeAgeSeed
	for _, i := range free {
		a.voices[i].Age = a.nextFreeAge
		a.nextFreeAge++
	}
}

// oldest returns the lowest-age voice; the first in scan order wins ties.
func (a *VoiceAllocator) oldest() int {
	best := 0
	for i := 1; i < len(a.voices); i++ {
		if a.voices[i].Age < a.voices[best].Age {
			best = i
		}
	}
	return best
}

// Process implements graph.Processor.
func (a *VoiceAllocator) Process(_, _ []float64) {}

// Len returns the number of voices.
func (a *VoiceAllocator) Len() int { return len(a.voices) }

// Voice returns the record for voice i.
func (a *VoiceAllocator) Voice(i int) VoiceInfo { return a.voices[i] }
