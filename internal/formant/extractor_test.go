package formant

import (
	"errors"
	"math"
	"testing"
)

// tones generates n samples at 44.1kHz summing sine waves of the given
// frequencies and amplitudes.
func tones(n int, freqs, amps []float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / 44100
		for k, f := range freqs {
			out[i] += amps[k] * math.Sin(2*math.Pi*f*t)
		}
	}
	return out
}

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := NewExtractor(DefaultParams())
	if err != nil {
		t.Fatalf("Failed to create extractor: %v", err)
	}
	return e
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(p *Params)
		expectErr bool
	}{
		{name: "defaults", mutate: func(p *Params) {}, expectErr: false},
		{name: "zero sample rate", mutate: func(p *Params) { p.SampleRate = 0 }, expectErr: true},
		{name: "odd fft size", mutate: func(p *Params) { p.FFTSize = 2047 }, expectErr: true},
		{name: "pre-emphasis of one", mutate: func(p *Params) { p.PreEmphasis = 1 }, expectErr: true},
		{name: "min samples too small", mutate: func(p *Params) { p.MinSamples = 1 }, expectErr: true},
		{name: "zero peak distance", mutate: func(p *Params) { p.PeakDistance = 0 }, expectErr: true},
		{name: "inverted band", mutate: func(p *Params) { p.BandLow, p.BandHigh = 4000, 90 }, expectErr: true},
		{name: "band above nyquist", mutate: func(p *Params) { p.BandHigh = 30000 }, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.expectErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestExtractTwoTone(t *testing.T) {
	e := newTestExtractor(t)

	samples := tones(2048, []float64{700, 1150}, []float64{0.8, 0.3})
	est, err := e.Extract(samples, 1)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if math.Abs(est.F1-700) > 50 {
		t.Errorf("Expected F1 near 700 Hz, got %.1f", est.F1)
	}
	if math.Abs(est.F2-1150) > 50 {
		t.Errorf("Expected F2 near 1150 Hz, got %.1f", est.F2)
	}
}

func TestExtractOrdersByMagnitude(t *testing.T) {
	e := newTestExtractor(t)

	// Equal amplitudes: pre-emphasis lifts the upper tone above the lower one,
	// so the pair comes back with F1 > F2.
	samples := tones(2048, []float64{700, 1150}, []float64{0.5, 0.5})
	candidates, err := e.Candidates(samples, 1)
	if err != nil {
		t.Fatalf("Candidates failed: %v", err)
	}
	if len(candidates) < 2 {
		t.Fatalf("Expected at least 2 candidates, got %d", len(candidates))
	}

	for i := 1; i < len(candidates); i++ {
		if candidates[i].Magnitude > candidates[i-1].Magnitude {
			t.Fatalf("Candidates not in descending magnitude order at %d: %v", i, candidates)
		}
	}

	if math.Abs(candidates[0].Frequency-1150) > 50 {
		t.Errorf("Expected strongest peak near 1150 Hz, got %.1f", candidates[0].Frequency)
	}
	if math.Abs(candidates[1].Frequency-700) > 50 {
		t.Errorf("Expected second peak near 700 Hz, got %.1f", candidates[1].Frequency)
	}
}

func TestRankPeaksTies(t *testing.T) {
	peaks := []SpectralPeak{
		{Bin: 16, Magnitude: 3},
		{Bin: 40, Magnitude: 5},
		{Bin: 60, Magnitude: 3},
		{Bin: 90, Magnitude: 5},
		{Bin: 120, Magnitude: 1},
	}
	rankPeaks(peaks)

	want := []int{90, 40, 60, 16, 120}
	for i, bin := range want {
		if peaks[i].Bin != bin {
			t.Fatalf("Expected bins %v, got %+v", want, peaks)
		}
	}
}

func TestExtractLongerThanFFT(t *testing.T) {
	e := newTestExtractor(t)

	samples := tones(4096, []float64{700, 1150}, []float64{0.8, 0.3})
	est, err := e.Extract(samples, 1)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	got := []float64{est.F1, est.F2}
	for _, want := range []float64{700, 1150} {
		found := false
		for _, f := range got {
			if math.Abs(f-want) <= 50 {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected a formant near %.0f Hz, got %v", want, got)
		}
	}
}

func TestExtractInsufficientData(t *testing.T) {
	e := newTestExtractor(t)

	samples := tones(511, []float64{700, 1150}, []float64{0.8, 0.3})
	_, err := e.Extract(samples, 1)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("Expected ErrInsufficientData, got %v", err)
	}

	// stereo frames count, not samples
	stereo := make([]float64, 1000)
	_, err = e.Extract(stereo, 2)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("Expected ErrInsufficientData for 500 stereo frames, got %v", err)
	}
}

func TestExtractSilence(t *testing.T) {
	e := newTestExtractor(t)

	_, err := e.Extract(make([]float64, 2048), 1)
	if !errors.Is(err, ErrNoFormants) {
		t.Fatalf("Expected ErrNoFormants for silence, got %v", err)
	}
}

func TestExtractStereoDownmix(t *testing.T) {
	e := newTestExtractor(t)

	mono := tones(2048, []float64{700, 1150}, []float64{0.8, 0.3})
	stereo := make([]float64, 0, len(mono)*2)
	for _, s := range mono {
		stereo = append(stereo, s, s)
	}

	monoEst, err := e.Extract(mono, 1)
	if err != nil {
		t.Fatalf("Mono extract failed: %v", err)
	}
	stereoEst, err := e.Extract(stereo, 2)
	if err != nil {
		t.Fatalf("Stereo extract failed: %v", err)
	}

	if monoEst != stereoEst {
		t.Errorf("Expected stereo downmix to match mono: mono=%+v stereo=%+v", monoEst, stereoEst)
	}
}

func TestExtractChannelMismatch(t *testing.T) {
	e := newTestExtractor(t)

	_, err := e.Extract(make([]float64, 1025), 2)
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("Expected ErrFormat, got %v", err)
	}
}

func TestExtractDeterministic(t *testing.T) {
	e := newTestExtractor(t)

	samples := tones(2048, []float64{530, 1840}, []float64{0.6, 0.4})
	first, firstErr := e.Extract(samples, 1)
	for i := 0; i < 5; i++ {
		again, err := e.Extract(samples, 1)
		if (err == nil) != (firstErr == nil) || again != first {
			t.Fatalf("Run %d differs: first=%+v/%v again=%+v/%v", i, first, firstErr, again, err)
		}
	}
}

func TestExtractDoesNotMutateInput(t *testing.T) {
	e := newTestExtractor(t)

	samples := tones(1024, []float64{700, 1150}, []float64{0.8, 0.3})
	original := make([]float64, len(samples))
	copy(original, samples)

	if _, err := e.Extract(samples, 1); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	for i := range samples {
		if samples[i] != original[i] {
			t.Fatalf("Input modified at index %d", i)
		}
	}
}

func TestPreEmphasize(t *testing.T) {
	x := []float64{1, 1, 1, 0}
	preEmphasize(x, 0.97)

	expected := []float64{1, 0.03, 0.03, -0.97}
	for i := range x {
		if math.Abs(x[i]-expected[i]) > 1e-12 {
			t.Errorf("Index %d: expected %f, got %f", i, expected[i], x[i])
		}
	}
}

func TestNormalize(t *testing.T) {
	x := []float64{0.5, -2, 1}
	normalize(x)
	if x[1] != -1 || x[0] != 0.25 || x[2] != 0.5 {
		t.Errorf("Unexpected normalized signal: %v", x)
	}

	zeros := []float64{0, 0}
	normalize(zeros)
	if zeros[0] != 0 || zeros[1] != 0 {
		t.Errorf("Expected silence to stay zero, got %v", zeros)
	}
}
