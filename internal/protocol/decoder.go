package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/Indy1131/kotoba/internal/formant"
)

// AudioDataField is the payload key carrying samples.
const AudioDataField = "audio_data"

// AudioChunk is a decoded chunk of audio. Samples are frame-major: with more
// than one channel, frame i occupies Samples[i*Channels:(i+1)*Channels].
type AudioChunk struct {
	Samples  []float64
	Channels int
}

// Frames returns the number of sample frames in the chunk.
func (c *AudioChunk) Frames() int {
	if c.Channels == 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// DecodeAudioChunk coerces an arbitrary payload into a chunk. The payload
// must be a map with an AudioDataField holding either a flat numeric
// sequence (mono) or a sequence of equal-length numeric sequences (one row
// per frame). Every failure wraps formant.ErrFormat and returns no chunk.
func DecodeAudioChunk(payload any) (*AudioChunk, error) {
	fields, err := asMap(payload)
	if err != nil {
		return nil, err
	}

	raw, ok := fields[AudioDataField]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q field", formant.ErrFormat, AudioDataField)
	}

	items, ok := asSlice(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %q is %T, not a sequence", formant.ErrFormat, AudioDataField, raw)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %q is empty", formant.ErrFormat, AudioDataField)
	}

	if _, nested := asSlice(items[0]); nested {
		return decodeFrames(items)
	}

	samples := make([]float64, len(items))
	for i, item := range items {
		v, err := toFloat(item)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", formant.ErrFormat, i, err)
		}
		samples[i] = v
	}
	return &AudioChunk{Samples: samples, Channels: 1}, nil
}

func decodeFrames(rows []any) (*AudioChunk, error) {
	first, _ := asSlice(rows[0])
	channels := len(first)
	if channels == 0 {
		return nil, fmt.Errorf("%w: frame 0 has no channels", formant.ErrFormat)
	}

	samples := make([]float64, 0, len(rows)*channels)
	for i, row := range rows {
		values, ok := asSlice(row)
		if !ok {
			return nil, fmt.Errorf("%w: frame %d is %T, not a sequence", formant.ErrFormat, i, row)
		}
		if len(values) != channels {
			return nil, fmt.Errorf("%w: frame %d has %d channels, expected %d", formant.ErrFormat, i, len(values), channels)
		}
		for ch, item := range values {
			v, err := toFloat(item)
			if err != nil {
				return nil, fmt.Errorf("%w: frame %d channel %d: %v", formant.ErrFormat, i, ch, err)
			}
			samples = append(samples, v)
		}
	}
	return &AudioChunk{Samples: samples, Channels: channels}, nil
}

func asMap(payload any) (map[string]any, error) {
	switch p := payload.(type) {
	case map[string]any:
		return p, nil
	case json.RawMessage:
		return unmarshalMap(p)
	case []byte:
		return unmarshalMap(p)
	case nil:
		return nil, fmt.Errorf("%w: empty payload", formant.ErrFormat)
	default:
		return nil, fmt.Errorf("%w: payload is %T, not an object", formant.ErrFormat, payload)
	}
}

func unmarshalMap(b []byte) (map[string]any, error) {
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", formant.ErrFormat, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: payload is null", formant.ErrFormat)
	}
	return m, nil
}

// asSlice accepts []any as well as typed numeric slices.
func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []float64:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []float32:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	}
	return nil, false
}

func toFloat(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, err
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric string %q", n)
		}
		f = parsed
	case int, int8, int16, int32, int64:
		f = float64(reflect.ValueOf(n).Int())
	case uint, uint8, uint16, uint32, uint64:
		f = float64(reflect.ValueOf(n).Uint())
	default:
		return 0, fmt.Errorf("non-numeric value of type %T", v)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %v", f)
	}
	return f, nil
}
