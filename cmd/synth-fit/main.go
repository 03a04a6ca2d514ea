// Command synth-fit searches attack, release, filter cutoff and resonance so
// that a single rendered note matches a reference WAV.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/cwbudde/algo-synth/config"
	"github.com/cwbudde/algo-synth/fit"
	"github.com/cwbudde/algo-synth/internal/logging"
	"github.com/cwbudde/algo-synth/internal/wavio"
	"github.com/cwbudde/algo-synth/synth"
	"github.com/pkg/errors"
)

func main() {
	reference := flag.String("reference", "", "Reference WAV file (required)")
	configPath := flag.String("config", "", "Starting engine config JSON file (optional)")
	note := flag.Int("note", 69, "MIDI note played in the reference")
	velocity := flag.Int("velocity", 100, "MIDI velocity (1-127)")
	releaseAfter := flag.Float64("release-after", 1.0, "NoteOff time in seconds")
	variant := flag.String("variant", "desma", "Mayfly variant: "+strings.Join(fit.Variants, ", "))
	pop := flag.Int("pop", 10, "Mayfly population size")
	maxEvals := flag.Int("max-evals", 300, "Maximum number of scored renders")
	seed := flag.Int64("seed", 1, "Random seed")
	output := flag.String("output", "", "Write the best render to this WAV path (optional)")
	outputConfig := flag.String("output-config", "", "Write the fitted engine config JSON to this path (optional)")
	reportPath := flag.String("report", "", "Write the fit result as JSON to this path (optional)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logger, err := logging.Init(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	if *reference == "" {
		logger.Error("missing -reference")
		os.Exit(2)
	}
	if *velocity < 1 || *velocity > 127 {
		logger.Error("velocity must be in [1,127]", "velocity", *velocity)
		os.Exit(2)
	}

	base := synth.NewDefaultParams()
	if *configPath != "" {
		if base, err = config.LoadJSON(*configPath); err != nil {
			logger.Error("load config", "path", *configPath, "err", err)
			os.Exit(1)
		}
	}
	ref, err := wavio.Load(*reference, base.SampleRate)
	if err != nil {
		logger.Error("read reference", "path", *reference, "err", err)
		os.Exit(1)
	}

	res, err := fit.Fit(fit.Config{
		Reference:    ref,
		Base:         base,
		Note:         *note,
		Velocity:     float64(*velocity) / 127,
		ReleaseAfter: *releaseAfter,
		Variant:      *variant,
		Population:   *pop,
		MaxEvals:     *maxEvals,
		Seed:         *seed,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("fit failed", "err", err)
		os.Exit(1)
	}
	logger.Info("best candidate",
		"score", res.Best.Score,
		"similarity", res.Best.Similarity,
		"start_score", res.Start.Score,
		"attack_seconds", res.Params.AttackSeconds,
		"release_seconds", res.Params.ReleaseSeconds,
		"filter_cutoff_hz", res.Params.FilterCutoffHz,
		"filter_resonance", res.Params.FilterResonance,
	)

	if err := writeOutputs(res, *note, float64(*velocity)/127, *releaseAfter, len(ref), *output, *outputConfig, *reportPath); err != nil {
		logger.Error("write outputs", "err", err)
		os.Exit(1)
	}
}

func writeOutputs(res *fit.Result, note int, velocity, releaseAfter float64, frames int, wavPath, configPath, reportPath string) error {
	if wavPath != "" {
		mono, err := fit.Render(res.Params, note, velocity, releaseAfter, frames)
		if err != nil {
			return err
		}
		if _, err := wavio.WriteFile(wavPath, mono, res.Params.SampleRate); err != nil {
			return err
		}
	}
	if configPath != "" {
		if err := config.SaveJSON(configPath, res.Params); err != nil {
			return err
		}
	}
	if reportPath != "" {
		b, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(reportPath, append(b, '\n'), 0o644); err != nil {
			return errors.Wrap(err, "write report")
		}
	}
	return nil
}
