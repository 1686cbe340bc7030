package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Indy1131/kotoba/internal/config"
	"github.com/Indy1131/kotoba/internal/formant"
	"github.com/Indy1131/kotoba/internal/stream"
	"github.com/Indy1131/kotoba/internal/vad"
)

// buildPipeline assembles the analysis stages from configuration. recorder
// may be nil.
func buildPipeline(cfg *config.Config, recorder stream.Recorder, logger *slog.Logger) (*stream.Pipeline, error) {
	gate, err := vad.NewGate(cfg.Analysis.AmplitudeThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to create amplitude gate: %w", err)
	}

	extractor, err := formant.NewExtractor(analysisParams(cfg.Analysis))
	if err != nil {
		return nil, fmt.Errorf("failed to create formant extractor: %w", err)
	}

	validator := formant.Validator{
		F1: formant.Range{Min: cfg.Validation.F1.Min, Max: cfg.Validation.F1.Max},
		F2: formant.Range{Min: cfg.Validation.F2.Min, Max: cfg.Validation.F2.Max},
	}

	return stream.NewPipeline(gate, extractor, validator, recorder, logger)
}

func analysisParams(a config.AnalysisConfig) formant.Params {
	return formant.Params{
		SampleRate:   a.SampleRate,
		FFTSize:      a.FFTSize,
		PreEmphasis:  a.PreEmphasis,
		MinSamples:   a.MinSamples,
		PeakDistance: a.PeakDistance,
		BandLow:      a.BandLow,
		BandHigh:     a.BandHigh,
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Anything else is a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
