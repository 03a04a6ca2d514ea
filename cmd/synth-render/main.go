package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/cwbudde/algo-synth/analysis"
	"github.com/cwbudde/algo-synth/config"
	"github.com/cwbudde/algo-synth/graph"
	"github.com/cwbudde/algo-synth/internal/logging"
	"github.com/cwbudde/algo-synth/internal/wavio"
	"github.com/cwbudde/algo-synth/ladder"
	"github.com/cwbudde/algo-synth/midiin"
	"github.com/cwbudde/algo-synth/reverb"
	"github.com/cwbudde/algo-synth/synth"
	"github.com/pkg/errors"
)

const blockSize = 128

type options struct {
	configPath   string
	midiPath     string
	note         int
	velocity     int
	duration     float64
	releaseAfter float64
	tail         float64
	sampleRate   int
	voices       int
	volumeDB     float64
	filter       bool
	cutoff       float64
	resonance    float64
	oversampling int
	irPath       string
	irWet        float64
	room         float64
	output       string
	reportPath   string
	reference    string
	logLevel     string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "Engine config JSON file (optional)")
	flag.StringVar(&o.midiPath, "midi", "", "Standard MIDI file to render instead of a single note")
	flag.IntVar(&o.note, "note", 69, "MIDI note number (69 = A4 = 440 Hz)")
	flag.IntVar(&o.velocity, "velocity", 100, "MIDI velocity (1-127)")
	flag.Float64Var(&o.duration, "duration", 2.0, "Duration in seconds for single-note renders")
	flag.Float64Var(&o.releaseAfter, "release-after", 1.0, "Send NoteOff after this many seconds")
	flag.Float64Var(&o.tail, "tail", 0.5, "Extra seconds rendered after the last MIDI event")
	flag.IntVar(&o.sampleRate, "sample-rate", 0, "Render sample rate in Hz (overrides config)")
	flag.IntVar(&o.voices, "voices", 0, "Polyphony (overrides config)")
	flag.Float64Var(&o.volumeDB, "volume-db", 0, "Master volume in dB (overrides config)")
	flag.BoolVar(&o.filter, "filter", false, "Run the output through the diode ladder filter")
	flag.Float64Var(&o.cutoff, "cutoff", 0, "Filter cutoff in Hz (overrides config)")
	flag.Float64Var(&o.resonance, "resonance", 0, "Filter resonance (overrides config)")
	flag.IntVar(&o.oversampling, "oversampling", 0, "Filter oversampling factor 1, 2, 4 or 8 (overrides config)")
	flag.StringVar(&o.irPath, "ir", "", "Impulse response WAV convolved onto the output (optional)")
	flag.Float64Var(&o.room, "room", 0, "Synthetic room impulse length in seconds, used when -ir is empty (0 disables)")
	flag.Float64Var(&o.irWet, "ir-wet", -1, "Impulse response wet mix in [0,1] (overrides config)")
	flag.StringVar(&o.output, "output", "output.wav", "Output WAV file path")
	flag.StringVar(&o.reportPath, "report", "", "Write the analysis report as JSON to this path")
	flag.StringVar(&o.reference, "reference", "", "Reference WAV to compare the render against")
	flag.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logger, err := logging.Init(o.logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	if err := run(logger, &o); err != nil {
		logger.Error("render failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, o *options) error {
	params, err := loadParams(o)
	if err != nil {
		return err
	}

	s, err := synth.NewSynth(params)
	if err != nil {
		return err
	}
	sr := params.SampleRate

	frames, err := scheduleInput(s, o)
	if err != nil {
		return err
	}
	logger.Info("rendering",
		"frames", frames,
		"seconds", float64(frames)/float64(sr),
		"sample_rate", sr,
		"voices", params.Voices,
		"filter", params.FilterEnabled,
	)

	samples := make([]float64, frames)
	for start := 0; start < frames; start += blockSize {
		s.Process(samples[start:min(start+blockSize, frames)])
	}
	logger.Debug("synth done", "ticks", s.Graph().Now(), "dropped_events", s.Graph().Dropped())

	if params.FilterEnabled {
		fg, err := ladder.NewFilterGraph(float64(sr),
			ladder.WithCutoffHz(params.FilterCutoffHz),
			ladder.WithResonance(params.FilterResonance),
			ladder.WithOversampling(params.Oversampling),
		)
		if err != nil {
			return err
		}
		fg.ProcessInPlace(samples)
		logger.Debug("filter done", "cutoff_hz", params.FilterCutoffHz, "resonance", params.FilterResonance)
	}

	if params.IRWavPath != "" || o.room > 0 {
		samples, err = convolve(samples, params, o.room)
		if err != nil {
			return err
		}
		logger.Debug("convolution done", "ir", params.IRWavPath, "room_seconds", o.room, "wet", params.IRWet)
	}

	clipped, err := wavio.WriteFile(o.output, samples, sr)
	if err != nil {
		return err
	}
	if clipped > 0 {
		logger.Warn("output clipped", "samples", clipped)
	}

	report := analysis.Analyze(samples, sr)
	logger.Info("wrote output",
		"path", o.output,
		"frames", report.Frames,
		"peak", report.Peak,
		"rms_db", report.RMSDB,
		"peak_hz", report.PeakHz,
	)
	if !report.Finite {
		logger.Warn("render contains non-finite samples")
	}
	if o.reportPath != "" {
		if err := writeJSON(o.reportPath, report); err != nil {
			return err
		}
	}
	if o.reference != "" {
		return compareReference(logger, o.reference, samples, sr)
	}
	return nil
}

func loadParams(o *options) (*synth.Params, error) {
	params := synth.NewDefaultParams()
	if o.configPath != "" {
		var err error
		if params, err = config.LoadJSON(o.configPath); err != nil {
			return nil, err
		}
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["sample-rate"] {
		params.SampleRate = o.sampleRate
	}
	if set["voices"] {
		params.Voices = o.voices
	}
	if set["volume-db"] {
		params.VolumeDB = o.volumeDB
	}
	if set["filter"] {
		params.FilterEnabled = o.filter
	}
	if set["cutoff"] {
		params.FilterCutoffHz = o.cutoff
	}
	if set["resonance"] {
		params.FilterResonance = o.resonance
	}
	if set["oversampling"] {
		params.Oversampling = o.oversampling
	}
	if set["ir"] {
		params.IRWavPath = o.irPath
	}
	if set["ir-wet"] {
		params.IRWet = o.irWet
	}
	return params, params.Validate()
}

// scheduleInput queues the notes to render and returns the frame count.
func scheduleInput(s *synth.Synth, o *options) (int, error) {
	sr := float64(s.Params().SampleRate)
	tail := int(o.tail * sr)

	if o.midiPath != "" {
		events, err := midiin.ReadFile(o.midiPath, s.Params().SampleRate, s.Params().PitchBendRange)
		if err != nil {
			return 0, err
		}
		for _, te := range events {
			s.Schedule(te.Tick, te.Event)
		}
		return int(midiin.Duration(events)) + tail, nil
	}

	if o.velocity < 1 || o.velocity > 127 {
		return 0, errors.Errorf("synth-render: velocity must be in [1,127]: %d", o.velocity)
	}
	frames := max(int(o.duration*sr), 1)
	s.Schedule(0, graph.NoteOn(0, o.note, float64(o.velocity)/127))
	if release := int(o.releaseAfter * sr); release < frames {
		s.Schedule(uint64(max(release, 0)), graph.NoteOff(0, o.note))
	}
	return frames, nil
}

func convolve(samples []float64, params *synth.Params, roomSeconds float64) ([]float64, error) {
	c, err := reverb.NewConvolver(params.SampleRate)
	if err != nil {
		return nil, err
	}
	if params.IRWavPath != "" {
		err = c.SetIRFromWAV(params.IRWavPath)
	} else {
		room := reverb.DefaultRoomConfig()
		room.Seconds = roomSeconds
		err = c.SetRoom(room)
	}
	if err != nil {
		return nil, err
	}
	if err := c.SetWet(params.IRWet); err != nil {
		return nil, err
	}
	if err := c.ProcessInPlace(samples); err != nil {
		return nil, err
	}
	tail, err := c.Tail()
	if err != nil {
		return nil, err
	}
	return append(samples, tail...), nil
}

func compareReference(logger *slog.Logger, path string, samples []float64, sr int) error {
	ref, err := wavio.Load(path, sr)
	if err != nil {
		return err
	}
	m := analysis.Compare(ref, samples, sr)
	logger.Info("reference comparison",
		"reference", path,
		"lag_samples", m.LagSamples,
		"time_rmse", m.TimeRMSE,
		"envelope_rmse_db", m.EnvelopeRMSEDB,
		"spectral_rmse_db", m.SpectralRMSEDB,
		"score", m.Score,
		"similarity", m.Similarity,
	)
	return nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
