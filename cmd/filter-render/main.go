package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cwbudde/algo-synth/analysis"
	"github.com/cwbudde/algo-synth/internal/logging"
	"github.com/cwbudde/algo-synth/internal/wavio"
	"github.com/cwbudde/algo-synth/ladder"
)

func main() {
	input := flag.String("input", "", "Input WAV file (required)")
	output := flag.String("output", "filtered.wav", "Output WAV file path")
	sampleRate := flag.Int("sample-rate", 0, "Processing sample rate in Hz (default: input rate)")
	cutoff := flag.Float64("cutoff", 1000, "Filter cutoff in Hz")
	resonance := flag.Float64("resonance", 1, "Filter resonance in [0.5,7.5]")
	oversampling := flag.Int("oversampling", 4, "Oversampling factor 1, 2, 4 or 8")
	sweepTo := flag.Float64("sweep-to", 0, "Step the cutoff to this value at -sweep-at seconds (0 disables)")
	sweepAt := flag.Float64("sweep-at", 0.5, "Time of the cutoff step in seconds")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logger, err := logging.Init(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	if *input == "" {
		logger.Error("missing -input")
		os.Exit(2)
	}

	in, err := wavio.ReadFile(*input)
	if err != nil {
		logger.Error("read input", "path", *input, "err", err)
		os.Exit(1)
	}
	samples, sr := in.Samples, in.SampleRate
	if *sampleRate > 0 && *sampleRate != sr {
		if samples, err = in.At(*sampleRate); err != nil {
			logger.Error("resample", "from", sr, "to", *sampleRate, "err", err)
			os.Exit(1)
		}
		logger.Debug("resampled input", "from", sr, "to", *sampleRate, "frames", len(samples))
		sr = *sampleRate
	}

	fg, err := ladder.NewFilterGraph(float64(sr),
		ladder.WithCutoffHz(*cutoff),
		ladder.WithResonance(*resonance),
		ladder.WithOversampling(*oversampling),
	)
	if err != nil {
		logger.Error("create filter", "err", err)
		os.Exit(1)
	}
	if *sweepTo > 0 {
		fg.ScheduleCutoffHz(uint64(max(*sweepAt, 0)*float64(sr)), *sweepTo)
	}

	fg.ProcessInPlace(samples)

	clipped, err := wavio.WriteFile(*output, samples, sr)
	if err != nil {
		logger.Error("write output", "path", *output, "err", err)
		os.Exit(1)
	}
	if clipped > 0 {
		logger.Warn("output clipped", "samples", clipped)
	}
	report := analysis.Analyze(samples, sr)
	logger.Info("wrote output",
		"path", *output,
		"sample_rate", sr,
		"frames", report.Frames,
		"cutoff_hz", *cutoff,
		"resonance", *resonance,
		"oversampling", fg.Filter().Factor(),
		"peak", report.Peak,
		"rms_db", report.RMSDB,
	)
	if !report.Finite {
		logger.Warn("output contains non-finite samples")
	}
}
