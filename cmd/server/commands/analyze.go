package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Indy1131/kotoba/internal/audio"
	"github.com/Indy1131/kotoba/internal/stream"
)

var (
	analyzeFrame int
	analyzeHop   int
	analyzeJSON  bool
)

// frameResult is one row of analyze output
type frameResult struct {
	Index  int      `json:"index"`
	Start  float64  `json:"start_seconds"`
	State  string   `json:"state"`
	Reason string   `json:"reason,omitempty"`
	F1     *float64 `json:"f1,omitempty"`
	F2     *float64 `json:"f2,omitempty"`
}

// analysisReport is the full analyze output
type analysisReport struct {
	File          string        `json:"file"`
	SampleRate    int           `json:"sample_rate"`
	SourceRate    int           `json:"source_sample_rate"`
	BitsPerSample int           `json:"bits_per_sample"`
	DataSize      int           `json:"data_size_bytes"`
	Channels      int           `json:"channels"`
	Duration      float64       `json:"duration_seconds"`
	Emitted       int           `json:"emitted"`
	Frames        []frameResult `json:"frames"`
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.wav>",
	Short: "Extract formants from a WAV file",
	Long: `Decode a 16-bit PCM WAV file, resample it to the analysis rate, cut it into
windows and run every window through the same pipeline live streams use.

Examples:
  server analyze vowel.wav
  server analyze vowel.wav --frame 4096 --hop 2048 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		// Per-frame drops are reported in the output, so only warnings go to stderr.
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

		pipeline, err := buildPipeline(cfg, nil, logger)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		report, err := analyzeWAV(pipeline, data, cfg.Analysis.SampleRate, analyzeFrame, analyzeHop)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		report.File = args[0]

		if analyzeJSON {
			return printJSON(cmd.OutOrStdout(), report)
		}
		return printReport(cmd.OutOrStdout(), report)
	},
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeFrame, "frame", 2048, "window length in sample frames")
	analyzeCmd.Flags().IntVar(&analyzeHop, "hop", 1024, "sample frames between window starts")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

// analyzeWAV runs every window of a WAV recording through pipeline.
func analyzeWAV(pipeline *stream.Pipeline, data []byte, sampleRate, frameSize, hop int) (*analysisReport, error) {
	info, err := audio.GetWAVInfo(data)
	if err != nil {
		return nil, err
	}

	pcm, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, err
	}

	pcm, err = audio.ResamplePCM(pcm, sampleRate)
	if err != nil {
		return nil, err
	}

	framer, err := audio.NewFramer(audio.FramerConfig{
		Size:       frameSize,
		Hop:        hop,
		SampleRate: pcm.SampleRate,
		Channels:   pcm.Channels,
	})
	if err != nil {
		return nil, err
	}

	report := &analysisReport{
		SampleRate:    pcm.SampleRate,
		SourceRate:    int(info.SampleRate),
		BitsPerSample: int(info.BitsPerSample),
		DataSize:      int(info.DataSize),
		Channels:      pcm.Channels,
		Duration:      info.Duration,
	}

	for _, frame := range framer.Split(pcm.Samples) {
		outcome := pipeline.ProcessSamples(frame.Samples, frame.Channels)

		row := frameResult{
			Index:  frame.Index,
			Start:  frame.Start,
			State:  outcome.State.String(),
			Reason: string(outcome.Reason),
		}
		if outcome.Emitted() {
			f1, f2 := outcome.Estimate.F1, outcome.Estimate.F2
			row.F1, row.F2 = &f1, &f2
			report.Emitted++
		}
		report.Frames = append(report.Frames, row)
	}

	return report, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, report *analysisReport) error {
	fmt.Fprintf(w, "%s: %.2fs, %d ch, %d-bit, %d bytes, %d Hz (source %d Hz), %d/%d windows emitted\n\n",
		report.File, report.Duration, report.Channels, report.BitsPerSample, report.DataSize,
		report.SampleRate, report.SourceRate, report.Emitted, len(report.Frames))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tTIME\tSTATE\tREASON\tF1\tF2")
	for _, row := range report.Frames {
		f1, f2 := "-", "-"
		if row.F1 != nil {
			f1 = fmt.Sprintf("%.1f", *row.F1)
			f2 = fmt.Sprintf("%.1f", *row.F2)
		}
		reason := row.Reason
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(tw, "%d\t%.3f\t%s\t%s\t%s\t%s\n", row.Index, row.Start, row.State, reason, f1, f2)
	}
	return tw.Flush()
}
