package commands

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/Indy1131/kotoba/internal/audio"
	"github.com/Indy1131/kotoba/internal/config"
	"github.com/Indy1131/kotoba/internal/stream"
)

func testPipeline(t *testing.T) *stream.Pipeline {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	p, err := buildPipeline(config.Default(), nil, logger)
	if err != nil {
		t.Fatalf("buildPipeline failed: %v", err)
	}
	return p
}

// recording returns a vowel followed by the same length of silence.
func recording(sampleRate, frames int) []float64 {
	out := make([]float64, 2*frames)
	for i := 0; i < frames; i++ {
		ts := float64(i) / float64(sampleRate)
		out[i] = 0.8*math.Sin(2*math.Pi*700*ts) + 0.3*math.Sin(2*math.Pi*1150*ts)
	}
	return out
}

func TestBuildPipelineRejectsBadConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := config.Default()
	cfg.Analysis.AmplitudeThreshold = 2
	if _, err := buildPipeline(cfg, nil, logger); err == nil {
		t.Error("Expected error for threshold above full scale")
	}

	cfg = config.Default()
	cfg.Analysis.FFTSize = 3
	if _, err := buildPipeline(cfg, nil, logger); err == nil {
		t.Error("Expected error for odd FFT size")
	}
}

func TestAnalyzeWAV(t *testing.T) {
	wavData, err := audio.EncodeWAV(recording(44100, 8192), 44100, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	report, err := analyzeWAV(testPipeline(t), wavData, 44100, 2048, 2048)
	if err != nil {
		t.Fatalf("analyzeWAV failed: %v", err)
	}

	if report.BitsPerSample != 16 || report.DataSize != 2*2*8192 {
		t.Errorf("Expected 16-bit data of %d bytes, got %d-bit %d bytes", 2*2*8192, report.BitsPerSample, report.DataSize)
	}

	if len(report.Frames) != 8 {
		t.Fatalf("Expected 8 windows, got %d", len(report.Frames))
	}
	if report.Emitted != 4 {
		t.Errorf("Expected the 4 voiced windows to emit, got %d", report.Emitted)
	}

	for i, row := range report.Frames {
		voiced := i < 4
		if voiced {
			if row.F1 == nil || math.Abs(*row.F1-700) > 50 || math.Abs(*row.F2-1150) > 50 {
				t.Errorf("Window %d: unexpected estimate %+v", i, row)
			}
			continue
		}
		if row.F1 != nil || row.Reason != "quiet_signal" {
			t.Errorf("Window %d: expected quiet drop, got %+v", i, row)
		}
	}
}

func TestAnalyzeWAVResamplesStereo(t *testing.T) {
	mono := recording(22050, 8192)
	stereo := make([]float64, 2*len(mono))
	for i, s := range mono {
		stereo[2*i] = s
		stereo[2*i+1] = s
	}

	wavData, err := audio.EncodeWAV(stereo, 22050, 2)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	report, err := analyzeWAV(testPipeline(t), wavData, 44100, 2048, 1024)
	if err != nil {
		t.Fatalf("analyzeWAV failed: %v", err)
	}

	if report.SourceRate != 22050 || report.SampleRate != 44100 || report.Channels != 2 || report.DataSize != 2*2*len(mono) {
		t.Errorf("Unexpected report header %+v", report)
	}
	if report.Emitted == 0 {
		t.Fatal("Expected voiced windows to emit after resampling")
	}
	first := report.Frames[0]
	if first.F1 == nil || math.Abs(*first.F1-700) > 50 {
		t.Errorf("Unexpected first window %+v", first)
	}
}

func TestAnalyzeWAVErrors(t *testing.T) {
	p := testPipeline(t)

	if _, err := analyzeWAV(p, []byte("not a wav"), 44100, 2048, 1024); err == nil {
		t.Error("Expected error for invalid WAV")
	}

	wavData, err := audio.EncodeWAV(recording(44100, 1024), 44100, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if _, err := analyzeWAV(p, wavData, 44100, 0, 1024); err == nil {
		t.Error("Expected error for zero frame size")
	}
}

func TestPrintReport(t *testing.T) {
	f1, f2 := 700.0, 1150.0
	report := &analysisReport{
		File:          "vowel.wav",
		SampleRate:    44100,
		SourceRate:    44100,
		BitsPerSample: 16,
		DataSize:      8820,
		Channels:      1,
		Duration:      0.1,
		Emitted:       1,
		Frames: []frameResult{
			{Index: 0, State: "Emitted", F1: &f1, F2: &f2},
			{Index: 1, Start: 0.046, State: "Dropped", Reason: "quiet_signal"},
		},
	}

	var buf bytes.Buffer
	if err := printReport(&buf, report); err != nil {
		t.Fatalf("printReport failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"vowel.wav", "16-bit", "8820 bytes", "1/2 windows emitted", "700.0", "1150.0", "quiet_signal"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
}

func TestReferencesCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"references", "--speaker", "female", "--json"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		referencesSpeaker = "male"
		referencesJSON = false
	})

	if err := Execute(); err != nil {
		t.Fatalf("references failed: %v", err)
	}

	var body struct {
		Speaker string `json:"speaker_type"`
		Vowels  []struct {
			Vowel string  `json:"vowel"`
			F1    float64 `json:"f1"`
		} `json:"vowel_references"`
	}
	if err := json.Unmarshal(buf.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON output %q: %v", buf.String(), err)
	}
	if body.Speaker != "female" || len(body.Vowels) == 0 {
		t.Errorf("Unexpected profile %+v", body)
	}
}

func TestReferencesCommandUnknownSpeaker(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"references", "--speaker", "robot"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		referencesSpeaker = "male"
	})

	if err := Execute(); err == nil {
		t.Error("Expected error for unknown speaker")
	}
}
