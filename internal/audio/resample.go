package audio

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts interleaved samples between rates. Equal rates return the
// input unchanged.
//
// Each channel runs through its own resampler: Flush only drains the first
// channel of a multi-channel resampler, so sharing one would cut the tail of
// every other channel. The result is capped at round(frames*toRate/fromRate)
// frames per channel.
func Resample(samples []float64, fromRate, toRate, channels int) ([]float64, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", fromRate, toRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}
	if fromRate == toRate || len(samples) == 0 {
		return samples, nil
	}

	frames := len(samples) / channels
	if frames == 0 {
		return []float64{}, nil
	}

	resampled := make([][]float64, channels)
	for ch := range channels {
		out, err := resampleChannel(deinterleave(samples, ch, channels, frames), fromRate, toRate)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", ch, err)
		}
		resampled[ch] = out
	}

	n := int(math.Round(float64(frames) * float64(toRate) / float64(fromRate)))
	for _, out := range resampled {
		n = min(n, len(out))
	}

	return interleave(resampled, n), nil
}

func resampleChannel(in []float64, fromRate, toRate int) ([]float64, error) {
	resampler, err := resampling.New(&resampling.Config{
		InputRate:  float64(fromRate),
		OutputRate: float64(toRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	out, err := resampler.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	tail, err := resampler.Flush()
	if err != nil {
		return nil, fmt.Errorf("resample flush error: %w", err)
	}
	return append(out, tail...), nil
}

func deinterleave(samples []float64, ch, channels, frames int) []float64 {
	out := make([]float64, frames)
	for i := range out {
		out[i] = samples[i*channels+ch]
	}
	return out
}

func interleave(chans [][]float64, frames int) []float64 {
	channels := len(chans)
	out := make([]float64, frames*channels)
	for i := 0; i < frames; i++ {
		for ch, data := range chans {
			out[i*channels+ch] = data[i]
		}
	}
	return out
}

// ResamplePCM returns pcm at the target rate.
func ResamplePCM(pcm *PCM, toRate int) (*PCM, error) {
	samples, err := Resample(pcm.Samples, pcm.SampleRate, toRate, pcm.Channels)
	if err != nil {
		return nil, err
	}
	return &PCM{Samples: samples, SampleRate: toRate, Channels: pcm.Channels}, nil
}
