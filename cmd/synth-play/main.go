// Command synth-play runs the synth live on the default audio output,
// optionally driven by a MIDI input port.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	pa "github.com/gordonklaus/portaudio"
	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/cwbudde/algo-synth/config"
	"github.com/cwbudde/algo-synth/graph"
	"github.com/cwbudde/algo-synth/internal/logging"
	"github.com/cwbudde/algo-synth/ladder"
	"github.com/cwbudde/algo-synth/midiin"
	"github.com/cwbudde/algo-synth/synth"
)

const eventQueueLen = 1024

func main() {
	configPath := flag.String("config", "", "Engine config JSON file (optional)")
	midiPort := flag.String("midi-in", "", "MIDI input port name or substring (empty: no MIDI)")
	listPorts := flag.Bool("list-midi", false, "List MIDI input ports and exit")
	frames := flag.Int("frames", 256, "Frames per audio buffer")
	duration := flag.Float64("duration", 0, "Stop after this many seconds (0 runs until interrupted)")
	demo := flag.Bool("demo", false, "Play a looping arpeggio instead of waiting for MIDI")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logger, err := logging.Init(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	if *listPorts {
		if err := printPorts(); err != nil {
			logger.Error("list MIDI ports", "err", err)
			os.Exit(1)
		}
		return
	}

	params := synth.NewDefaultParams()
	if *configPath != "" {
		if params, err = config.LoadJSON(*configPath); err != nil {
			logger.Error("load config", "path", *configPath, "err", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*duration*float64(time.Second)))
		defer cancel()
	}

	events := make(chan graph.Event, eventQueueLen)
	if *midiPort != "" {
		closeMIDI, err := listenMIDI(logger, *midiPort, params.PitchBendRange, events)
		if err != nil {
			logger.Error("open MIDI input", "port", *midiPort, "err", err)
			os.Exit(1)
		}
		defer closeMIDI()
	}
	if *demo {
		go playDemo(ctx, events)
	}

	if err := play(ctx, logger, params, *frames, events); err != nil {
		logger.Error("playback failed", "err", err)
		os.Exit(1)
	}
}

// play renders blocks and writes them to a blocking output stream until ctx
// is done. Pending events are applied at block boundaries.
func play(ctx context.Context, logger *slog.Logger, params *synth.Params, frames int, events <-chan graph.Event) error {
	s, err := synth.NewSynth(params)
	if err != nil {
		return err
	}
	var filter *ladder.FilterGraph
	if params.FilterEnabled {
		filter, err = ladder.NewFilterGraph(float64(params.SampleRate),
			ladder.WithCutoffHz(params.FilterCutoffHz),
			ladder.WithResonance(params.FilterResonance),
			ladder.WithOversampling(params.Oversampling),
		)
		if err != nil {
			return err
		}
	}

	if err := pa.Initialize(); err != nil {
		return errors.Wrap(err, "portaudio init")
	}
	defer func() {
		if err := pa.Terminate(); err != nil {
			logger.Warn("portaudio terminate", "err", err)
		}
	}()
	dev, err := pa.DefaultOutputDevice()
	if err != nil {
		return errors.Wrap(err, "default output device")
	}

	out := make([]float32, frames)
	stream, err := pa.OpenDefaultStream(0, 1, float64(params.SampleRate), frames, &out)
	if err != nil {
		return errors.Wrap(err, "open stream")
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return errors.Wrap(err, "start stream")
	}
	defer stream.Stop()

	logger.Info("playing",
		"device", dev.Name,
		"sample_rate", params.SampleRate,
		"frames", frames,
		"voices", params.Voices,
		"filter", params.FilterEnabled,
	)

	block := make([]float64, frames)
	var misses, blocks uint64
	for ctx.Err() == nil {
	drain:
		for {
			select {
			case ev := <-events:
				s.Send(ev)
			default:
				break drain
			}
		}

		s.Process(block)
		if filter != nil {
			filter.ProcessInPlace(block)
		}
		for i, v := range block {
			out[i] = float32(max(-1, min(1, v)))
		}

		if err := stream.Write(); err != nil {
			if err != pa.OutputUnderflowed {
				return errors.Wrap(err, "write stream")
			}
			misses++
			logger.Warn("output underflow", "misses", misses, "block", blocks)
		}
		blocks++
	}

	logger.Info("stopped",
		"blocks", blocks,
		"underflows", misses,
		"dropped_events", s.Graph().Dropped(),
	)
	return nil
}

// listenMIDI forwards converted messages from the named input port to
// events. Messages that do not fit the queue are dropped.
func listenMIDI(logger *slog.Logger, name string, bendRange float64, events chan<- graph.Event) (func(), error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, err
	}
	ins, err := drv.Ins()
	if err != nil {
		drv.Close()
		return nil, err
	}
	var found drivers.In
	for _, in := range ins {
		if strings.Contains(in.String(), name) {
			found = in
			break
		}
	}
	if found == nil {
		drv.Close()
		return nil, errors.Errorf("MIDI input %q not found", name)
	}
	if err := found.Open(); err != nil {
		drv.Close()
		return nil, err
	}

	stop, err := midi.ListenTo(found, func(msg midi.Message, _ int32) {
		ev, ok := midiin.Convert(msg, bendRange)
		if !ok {
			return
		}
		select {
		case events <- ev:
		default:
			logger.Warn("event queue full, dropping MIDI message", "msg", msg.String())
		}
	}, midi.HandleError(func(err error) {
		logger.Warn("MIDI listener error", "port", found.String(), "err", err)
	}))
	if err != nil {
		_ = found.Close()
		drv.Close()
		return nil, err
	}
	logger.Info("MIDI input connected", "port", found.String())

	return func() {
		stop()
		_ = found.Close()
		drv.Close()
	}, nil
}

func printPorts() error {
	drv, err := rtmididrv.New()
	if err != nil {
		return err
	}
	defer drv.Close()
	ins, err := drv.Ins()
	if err != nil {
		return err
	}
	for _, in := range ins {
		fmt.Printf("%d: %s\n", in.Number(), in.String())
	}
	return nil
}

// playDemo loops an A minor arpeggio with a pitch bend on every fourth note.
func playDemo(ctx context.Context, events chan<- graph.Event) {
	notes := []int{57, 60, 64, 69, 72, 69, 64, 60}
	step := 180 * time.Millisecond
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	prev := -1
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var batch []graph.Event
		if prev >= 0 {
			batch = append(batch, graph.NoteOff(0, prev))
		}
		note := notes[i%len(notes)]
		bend := 0.0
		if i%4 == 3 {
			bend = 0.5
		}
		batch = append(batch, graph.PitchBend(0, bend), graph.NoteOn(0, note, 0.8))
		for _, ev := range batch {
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
		prev = note
	}
}
