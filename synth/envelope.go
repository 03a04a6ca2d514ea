package synth

import (
	"math"

	"github.com/cwbudde/algo-synth/graph"
	"github.com/pkg/errors"
)

// EnvelopeStage is the state of an Envelope.
type EnvelopeStage int

const (
	// StageIdle outputs silence and waits for a note-on.
	StageIdle EnvelopeStage = iota
	// StageAttack ramps linearly towards the target level.
	StageAttack
	// StageSustain holds the target level until note-off.
	StageSustain
	// StageRelease decays exponentially towards silence.
	StageRelease
)

func (s EnvelopeStage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageAttack:
		return "attack"
	case StageSustain:
		return "sustain"
	case StageRelease:
		return "release"
	default:
		return "unknown"
	}
}

const (
	// releaseFloor is the level below which a release snaps to silence.
	releaseFloor = 1e-5
	// releaseDepth is the linear gain reached after releaseSeconds (-80 dB).
	releaseDepth = 0.0001
	// attackTolerance absorbs accumulated rounding in the linear attack.
	attackTolerance = 1e-9
)

// Envelope is an attack/sustain/release amplitude generator driven by
// note-on and note-off events. Its output stays within [0, level].
type Envelope struct {
	level             float64
	attackIncrement   float64
	releaseMultiplier float64

	stage EnvelopeStage
	value float64
}

// NewEnvelope creates an envelope. attackSeconds and releaseSeconds must be
// positive and level must be in (0, 1].
func NewEnvelope(sampleRate, level, attackSeconds, releaseSeconds float64) (*Envelope, error) {
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return nil, errors.Errorf("envelope: sample rate must be > 0 and finite: %f", sampleRate)
	}
	if !(level > 0) || level > 1 {
		return nil, errors.Errorf("envelope: level must be in (0, 1]: %f", level)
	}
	if !(attackSeconds > 0) {
		return nil, errors.Errorf("envelope: attack must be > 0: %f", attackSeconds)
	}
	if !(releaseSeconds > 0) {
		return nil, errors.Errorf("envelope: release must be > 0: %f", releaseSeconds)
	}
	return &Envelope{
		level:             level,
		attackIncrement:   level / (attackSeconds * sampleRate),
		releaseMultiplier: math.Pow(releaseDepth, 1/(sampleRate*releaseSeconds)),
	}, nil
}

// Ports implements graph.Processor.
func (e *Envelope) Ports() graph.Ports {
	return graph.Ports{EventIn: []string{"note"}, StreamOut: []string{"out"}}
}

// HandleEvent implements graph.Processor.
func (e *Envelope) HandleEvent(_ int, ev graph.Event, _ graph.Emitter) {
	switch ev.Kind {
	case graph.KindNoteOn:
		e.stage = StageAttack
	case graph.KindNoteOff:
		if e.stage != StageIdle {
			e.stage = StageRelease
		}
	}
}

// Process implements graph.Processor.
func (e *Envelope) Process(_, out []float64) {
	switch e.stage {
	case StageIdle:
		e.value = 0
	case StageAttack:
		e.value += e.attackIncrement
		if e.value >= e.level-attackTolerance {
			e.value = e.level
			e.stage = StageSustain
		}
	case StageSustain:
		e.value = e.level
	case StageRelease:
		e.value *= e.releaseMultiplier
		if e.value < releaseFloor {
			e.value = 0
			e.stage = StageIdle
		}
	}
	out[0] = e.value
}

// Stage returns the current envelope stage.
func (e *Envelope) Stage() EnvelopeStage { return e.stage }

// Value returns the last output value.
func (e *Envelope) Value() float64 { return e.value }

// ReleaseMultiplier returns the per-tick release decay factor.
func (e *Envelope) ReleaseMultiplier() float64 { return e.releaseMultiplier }
