package audio

import (
	"fmt"
)

// Frame is one analysis window cut from a longer recording.
type Frame struct {
	Index    int       `json:"index"`
	Start    float64   `json:"start_seconds"`
	Samples  []float64 `json:"-"` // interleaved, shares memory with the source
	Channels int       `json:"channels"`
}

// FramerConfig controls how a recording is windowed
type FramerConfig struct {
	Size       int // sample frames per window
	Hop        int // sample frames between window starts
	SampleRate int
	Channels   int
}

// Framer cuts interleaved audio into fixed-size, possibly overlapping
// windows, the way a live client would have chunked it.
type Framer struct {
	config FramerConfig
}

// NewFramer creates a framer
func NewFramer(config FramerConfig) (*Framer, error) {
	if config.Size <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", config.Size)
	}
	if config.Hop <= 0 {
		return nil, fmt.Errorf("hop must be positive, got %d", config.Hop)
	}
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}
	if config.Channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", config.Channels)
	}
	return &Framer{config: config}, nil
}

// Count returns how many windows Split produces for n sample frames.
func (f *Framer) Count(n int) int {
	if n <= 0 {
		return 0
	}
	if n <= f.config.Size {
		return 1
	}
	// The trailing partial window is kept so short tails are still reported.
	covering := (n-f.config.Size+f.config.Hop-1)/f.config.Hop + 1
	starts := (n + f.config.Hop - 1) / f.config.Hop
	return min(covering, starts)
}

// Split returns the windows of samples in order. The final window may be
// shorter than Size.
func (f *Framer) Split(samples []float64) []Frame {
	ch := f.config.Channels
	n := len(samples) / ch

	frames := make([]Frame, 0, f.Count(n))
	for i, start := 0, 0; start < n; i, start = i+1, start+f.config.Hop {
		end := start + f.config.Size
		if end > n {
			end = n
		}
		frames = append(frames, Frame{
			Index:    i,
			Start:    float64(start) / float64(f.config.SampleRate),
			Samples:  samples[start*ch : end*ch],
			Channels: ch,
		})
		if end == n {
			break
		}
	}
	return frames
}
