package formant

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"
	"sync"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// Params configures spectral analysis. The zero value is not usable; start
// from DefaultParams.
type Params struct {
	SampleRate   int     // Hz
	FFTSize      int     // DFT length, signal is truncated or zero-padded to it
	PreEmphasis  float64 // first-order high-pass coefficient
	MinSamples   int     // frames required before analysis
	PeakDistance int     // minimum bin gap between reported peaks
	BandLow      float64 // Hz, exclusive
	BandHigh     float64 // Hz, exclusive
}

// DefaultParams returns the analysis parameters used for live streams.
func DefaultParams() Params {
	return Params{
		SampleRate:   44100,
		FFTSize:      2048,
		PreEmphasis:  0.97,
		MinSamples:   512,
		PeakDistance: 20,
		BandLow:      90,
		BandHigh:     4000,
	}
}

// Validate checks that the parameters describe a usable analysis.
func (p Params) Validate() error {
	if p.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", p.SampleRate)
	}
	if p.FFTSize < 2 || p.FFTSize%2 != 0 {
		return fmt.Errorf("fft size must be a positive even number, got %d", p.FFTSize)
	}
	if p.PreEmphasis < 0 || p.PreEmphasis >= 1 {
		return fmt.Errorf("pre-emphasis must be in [0, 1), got %f", p.PreEmphasis)
	}
	if p.MinSamples < 2 {
		return fmt.Errorf("min samples must be at least 2, got %d", p.MinSamples)
	}
	if p.PeakDistance < 1 {
		return fmt.Errorf("peak distance must be at least 1 bin, got %d", p.PeakDistance)
	}
	if p.BandLow < 0 || p.BandHigh <= p.BandLow {
		return fmt.Errorf("invalid formant band (%f, %f)", p.BandLow, p.BandHigh)
	}
	if p.BandHigh > float64(p.SampleRate)/2 {
		return fmt.Errorf("formant band upper edge %f exceeds Nyquist %d", p.BandHigh, p.SampleRate/2)
	}
	return nil
}

// SpectralPeak is a local maximum of the magnitude spectrum.
type SpectralPeak struct {
	Frequency float64 `json:"frequency"`
	Magnitude float64 `json:"magnitude"`
	Bin       int     `json:"bin"`
}

// Estimate is a formant pair in magnitude order. F1 is not guaranteed to be
// below F2.
type Estimate struct {
	F1 float64 `json:"f1"`
	F2 float64 `json:"f2"`
}

// Extractor computes formant candidates from one chunk of audio. It holds no
// per-chunk state and is safe for concurrent use.
type Extractor struct {
	params Params
	plans  sync.Pool
}

// NewExtractor creates an extractor for the given parameters.
func NewExtractor(params Params) (*Extractor, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis parameters: %w", err)
	}

	e := &Extractor{params: params}
	e.plans.New = func() any {
		return fourier.NewFFT(params.FFTSize)
	}
	return e, nil
}

// Params returns the extractor configuration.
func (e *Extractor) Params() Params {
	return e.params
}

// Extract returns the two strongest in-band spectral peaks of samples.
// samples is frame-major with the given channel count.
func (e *Extractor) Extract(samples []float64, channels int) (Estimate, error) {
	candidates, err := e.Candidates(samples, channels)
	if err != nil {
		return Estimate{}, err
	}
	if len(candidates) < 2 {
		return Estimate{}, fmt.Errorf("%w: %d in band", ErrNoFormants, len(candidates))
	}
	return Estimate{F1: candidates[0].Frequency, F2: candidates[1].Frequency}, nil
}

// Candidates returns every in-band spectral peak, strongest first.
func (e *Extractor) Candidates(samples []float64, channels int) ([]SpectralPeak, error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: channel count %d", ErrFormat, channels)
	}
	if len(samples)%channels != 0 {
		return nil, fmt.Errorf("%w: %d samples do not divide into %d channels", ErrFormat, len(samples), channels)
	}
	frames := len(samples) / channels
	if frames < e.params.MinSamples {
		return nil, fmt.Errorf("%w: %d frames, need %d", ErrInsufficientData, frames, e.params.MinSamples)
	}

	signal := downmix(samples, channels)
	preEmphasize(signal, e.params.PreEmphasis)
	normalize(signal)

	mags := e.magnitudeSpectrum(signal)
	peaks := findPeaks(mags, e.params.PeakDistance)

	all := make([]SpectralPeak, 0, len(peaks))
	for _, bin := range peaks {
		all = append(all, SpectralPeak{
			Frequency: e.binFrequency(bin),
			Magnitude: mags[bin],
			Bin:       bin,
		})
	}
	rankPeaks(all)

	inBand := all[:0]
	for _, p := range all {
		if p.Frequency > e.params.BandLow && p.Frequency < e.params.BandHigh {
			inBand = append(inBand, p)
		}
	}
	if len(inBand) == 0 {
		return nil, fmt.Errorf("%w: %d peaks, none in band", ErrNoFormants, len(all))
	}
	return inBand, nil
}

// magnitudeSpectrum windows signal over its own length and returns the
// magnitudes of the non-negative DFT bins.
func (e *Extractor) magnitudeSpectrum(signal []float64) []float64 {
	floats.Mul(signal, window.Hamming(len(signal)))

	n := e.params.FFTSize
	seq := make([]float64, n)
	copy(seq, signal)

	plan := e.plans.Get().(*fourier.FFT)
	coeffs := plan.Coefficients(nil, seq)
	e.plans.Put(plan)

	mags := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mags[i] = cmplx.Abs(c)
	}
	return mags
}

// rankPeaks orders peaks strongest first. Equal magnitudes put the higher bin
// first.
func rankPeaks(peaks []SpectralPeak) {
	sort.Slice(peaks, func(i, j int) bool {
		if peaks[i].Magnitude != peaks[j].Magnitude {
			return peaks[i].Magnitude > peaks[j].Magnitude
		}
		return peaks[i].Bin > peaks[j].Bin
	})
}

func (e *Extractor) binFrequency(bin int) float64 {
	return float64(bin) * float64(e.params.SampleRate) / float64(e.params.FFTSize)
}

// downmix averages interleaved channels into a new mono slice.
func downmix(samples []float64, channels int) []float64 {
	if channels == 1 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}
	frames := len(samples) / channels
	out := make([]float64, frames)
	for i := range out {
		out[i] = floats.Sum(samples[i*channels:(i+1)*channels]) / float64(channels)
	}
	return out
}

// preEmphasize applies y[n] = x[n] - coef*x[n-1] in place; y[0] = x[0].
func preEmphasize(x []float64, coef float64) {
	for i := len(x) - 1; i > 0; i-- {
		x[i] -= coef * x[i-1]
	}
}

// normalize scales x so its peak absolute value is 1. Silence is left as is.
func normalize(x []float64) {
	peak := floats.Norm(x, math.Inf(1))
	if peak > 0 {
		floats.Scale(1/peak, x)
	}
}
