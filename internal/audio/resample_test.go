package audio

import (
	"math"
	"math/cmplx"
	"testing"
)

// toneLevel returns the amplitude of freq in x, measured over the middle half
// so filter edges do not count.
func toneLevel(x []float64, sampleRate int, freq float64) float64 {
	start, end := len(x)/4, 3*len(x)/4
	var acc complex128
	for i := start; i < end; i++ {
		phase := -2 * math.Pi * freq * float64(i) / float64(sampleRate)
		acc += complex(x[i], 0) * cmplx.Exp(complex(0, phase))
	}
	return 2 * cmplx.Abs(acc) / float64(end-start)
}

func channel(samples []float64, ch, channels int) []float64 {
	out := make([]float64, 0, len(samples)/channels)
	for i := ch; i < len(samples); i += channels {
		out = append(out, samples[i])
	}
	return out
}

func TestResampleSameRate(t *testing.T) {
	src := sine(1000, 44100, 440, 0.5)

	out, err := Resample(src, 44100, 44100, 1)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if len(out) != len(src) || &out[0] != &src[0] {
		t.Error("Equal rates should return the input unchanged")
	}
}

func TestResampleErrors(t *testing.T) {
	tests := []struct {
		name         string
		from, to, ch int
	}{
		{"zero source rate", 0, 44100, 1},
		{"zero target rate", 48000, 0, 1},
		{"zero channels", 48000, 44100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Resample([]float64{0}, tt.from, tt.to, tt.ch); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestResampleFrameCount(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		channels int
		frames   int
	}{
		{"mono down", 48000, 44100, 1, 48000},
		{"mono up", 22050, 44100, 1, 22050},
		{"stereo down", 48000, 44100, 2, 24000},
		{"stereo up", 16000, 44100, 2, 8000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := make([]float64, tt.frames*tt.channels)
			for ch := 0; ch < tt.channels; ch++ {
				tone := sine(tt.frames, tt.from, 300*float64(ch+1), 0.5)
				for i, s := range tone {
					src[i*tt.channels+ch] = s
				}
			}

			out, err := Resample(src, tt.from, tt.to, tt.channels)
			if err != nil {
				t.Fatalf("Resample failed: %v", err)
			}
			if len(out)%tt.channels != 0 {
				t.Fatalf("Output of %d samples is not whole frames", len(out))
			}

			want := float64(tt.frames) * float64(tt.to) / float64(tt.from)
			got := float64(len(out) / tt.channels)
			if math.Abs(got-want) > want*0.01 {
				t.Errorf("Expected about %.0f frames, got %.0f", want, got)
			}
		})
	}
}

func TestResampleKeepsChannelsApart(t *testing.T) {
	const (
		from, to = 48000, 44100
		frames   = 24000
	)
	left := sine(frames, from, 440, 0.5)
	right := sine(frames, from, 1000, 0.5)

	src := make([]float64, 2*frames)
	for i := range frames {
		src[2*i] = left[i]
		src[2*i+1] = right[i]
	}

	out, err := Resample(src, from, to, 2)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}

	tests := []struct {
		name       string
		ch         int
		own, other float64
	}{
		{"left", 0, 440, 1000},
		{"right", 1, 1000, 440},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := channel(out, tt.ch, 2)
			own := toneLevel(x, to, tt.own)
			other := toneLevel(x, to, tt.other)

			if math.Abs(own-0.5) > 0.05 {
				t.Errorf("Expected %.0f Hz at about 0.5, got %.3f", tt.own, own)
			}
			if other > 0.01 {
				t.Errorf("Expected no %.0f Hz in this channel, got %.3f", tt.other, other)
			}
		})
	}
}

func TestResamplePCMChangesRate(t *testing.T) {
	pcm := &PCM{Samples: sine(48000, 48000, 440, 0.5), SampleRate: 48000, Channels: 1}

	out, err := ResamplePCM(pcm, 44100)
	if err != nil {
		t.Fatalf("ResamplePCM failed: %v", err)
	}
	if out.SampleRate != 44100 || out.Channels != 1 {
		t.Errorf("Unexpected format: %d Hz, %d channels", out.SampleRate, out.Channels)
	}
	if n := out.Frames(); n < 43660 || n > 44100 {
		t.Errorf("Expected about 44100 frames, got %d", n)
	}
}
