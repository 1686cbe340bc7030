package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Indy1131/kotoba/internal/formant"
)

func TestParseEncoding(t *testing.T) {
	tests := []struct {
		input     string
		expected  Encoding
		expectErr bool
	}{
		{"", EncodingJSON, false},
		{"json", EncodingJSON, false},
		{" MsgPack ", EncodingMsgpack, false},
		{"proto", EncodingJSON, true},
	}

	for _, tt := range tests {
		got, err := ParseEncoding(tt.input)
		if tt.expectErr {
			if err == nil {
				t.Errorf("ParseEncoding(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseEncoding(%q): unexpected error %v", tt.input, err)
		}
		if got != tt.expected {
			t.Errorf("ParseEncoding(%q) = %s, expected %s", tt.input, got, tt.expected)
		}
	}
}

func TestDecodeFrameJSON(t *testing.T) {
	frame := []byte(`{"event":"audio_chunk","data":{"audio_data":[0.5,-0.25,1]}}`)

	env, err := DecodeFrame(EncodingJSON, frame)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if env.Event != EventAudioChunk {
		t.Errorf("Expected event %q, got %q", EventAudioChunk, env.Event)
	}

	chunk, err := DecodeAudioChunk(env.Data)
	if err != nil {
		t.Fatalf("DecodeAudioChunk failed: %v", err)
	}
	expected := []float64{0.5, -0.25, 1}
	for i, v := range expected {
		if chunk.Samples[i] != v {
			t.Errorf("Sample %d: expected %f, got %f", i, v, chunk.Samples[i])
		}
	}
}

func TestDecodeFrameMsgpack(t *testing.T) {
	frame, err := msgpack.Marshal(map[string]any{
		"event": EventAudioChunk,
		"data": map[string]any{
			"audio_data": []any{float32(0.5), int8(-1), uint16(2), 0.125},
		},
	})
	if err != nil {
		t.Fatalf("msgpack marshal failed: %v", err)
	}

	env, err := DecodeFrame(EncodingMsgpack, frame)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}

	chunk, err := DecodeAudioChunk(env.Data)
	if err != nil {
		t.Fatalf("DecodeAudioChunk failed: %v", err)
	}
	expected := []float64{0.5, -1, 2, 0.125}
	if len(chunk.Samples) != len(expected) {
		t.Fatalf("Expected %d samples, got %d", len(expected), len(chunk.Samples))
	}
	for i, v := range expected {
		if chunk.Samples[i] != v {
			t.Errorf("Sample %d: expected %f, got %f", i, v, chunk.Samples[i])
		}
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	tests := []struct {
		name  string
		enc   Encoding
		frame []byte
	}{
		{name: "empty", enc: EncodingJSON, frame: nil},
		{name: "invalid json", enc: EncodingJSON, frame: []byte(`{"event":`)},
		{name: "missing event", enc: EncodingJSON, frame: []byte(`{"data":{}}`)},
		{name: "invalid msgpack", enc: EncodingMsgpack, frame: []byte{0xc1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeFrame(tt.enc, tt.frame); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

func TestEncodeFrame(t *testing.T) {
	b, err := EncodeFrame(EncodingJSON, EventFormantData, FormantData{F1: 700, F2: 1150})
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	var decoded struct {
		Event string      `json:"event"`
		Data  FormantData `json:"data"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Event != EventFormantData || decoded.Data.F1 != 700 || decoded.Data.F2 != 1150 {
		t.Errorf("Unexpected frame: %s", b)
	}

	b, err = EncodeFrame(EncodingMsgpack, EventError, ErrorData{Message: "Audio processing error"})
	if err != nil {
		t.Fatalf("EncodeFrame msgpack failed: %v", err)
	}
	var env struct {
		Event string    `msgpack:"event"`
		Data  ErrorData `msgpack:"data"`
	}
	if err := msgpack.Unmarshal(b, &env); err != nil {
		t.Fatalf("msgpack unmarshal failed: %v", err)
	}
	if env.Event != EventError || env.Data.Message != "Audio processing error" {
		t.Errorf("Unexpected msgpack frame: %+v", env)
	}
}

func TestDecodeAudioChunk(t *testing.T) {
	tests := []struct {
		name             string
		payload          any
		expectErr        bool
		expectedChannels int
		expectedSamples  []float64
	}{
		{
			name:             "float list",
			payload:          map[string]any{"audio_data": []any{0.1, -0.2}},
			expectedChannels: 1,
			expectedSamples:  []float64{0.1, -0.2},
		},
		{
			name:             "numeric strings",
			payload:          map[string]any{"audio_data": []any{"0.5", " -1 "}},
			expectedChannels: 1,
			expectedSamples:  []float64{0.5, -1},
		},
		{
			name:             "json numbers",
			payload:          map[string]any{"audio_data": []any{json.Number("3"), json.Number("1e-2")}},
			expectedChannels: 1,
			expectedSamples:  []float64{3, 0.01},
		},
		{
			name:             "raw json payload",
			payload:          json.RawMessage(`{"audio_data":[1,2,3]}`),
			expectedChannels: 1,
			expectedSamples:  []float64{1, 2, 3},
		},
		{
			name:             "typed slice",
			payload:          map[string]any{"audio_data": []float64{0.25}},
			expectedChannels: 1,
			expectedSamples:  []float64{0.25},
		},
		{
			name: "stereo frames",
			payload: map[string]any{"audio_data": []any{
				[]any{0.1, 0.2},
				[]any{0.3, 0.4},
			}},
			expectedChannels: 2,
			expectedSamples:  []float64{0.1, 0.2, 0.3, 0.4},
		},
		{name: "nil payload", payload: nil, expectErr: true},
		{name: "not an object", payload: []any{1, 2}, expectErr: true},
		{name: "missing field", payload: map[string]any{"samples": []any{1}}, expectErr: true},
		{name: "field not a sequence", payload: map[string]any{"audio_data": "0.1,0.2"}, expectErr: true},
		{name: "empty sequence", payload: map[string]any{"audio_data": []any{}}, expectErr: true},
		{name: "non-numeric string", payload: map[string]any{"audio_data": []any{0.1, "abc"}}, expectErr: true},
		{name: "null element", payload: map[string]any{"audio_data": []any{0.1, nil}}, expectErr: true},
		{name: "bool element", payload: map[string]any{"audio_data": []any{true}}, expectErr: true},
		{name: "object element", payload: map[string]any{"audio_data": []any{map[string]any{}}}, expectErr: true},
		{name: "nan string", payload: map[string]any{"audio_data": []any{"NaN"}}, expectErr: true},
		{name: "infinite string", payload: map[string]any{"audio_data": []any{"inf"}}, expectErr: true},
		{
			name: "ragged frames",
			payload: map[string]any{"audio_data": []any{
				[]any{0.1, 0.2},
				[]any{0.3},
			}},
			expectErr: true,
		},
		{
			name: "mixed frames and scalars",
			payload: map[string]any{"audio_data": []any{
				[]any{0.1, 0.2},
				0.3,
			}},
			expectErr: true,
		},
		{name: "invalid raw json", payload: []byte(`{"audio_data":`), expectErr: true},
		{name: "null raw json", payload: []byte(`null`), expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunk, err := DecodeAudioChunk(tt.payload)
			if tt.expectErr {
				if !errors.Is(err, formant.ErrFormat) {
					t.Errorf("Expected ErrFormat, got %v", err)
				}
				if chunk != nil {
					t.Errorf("Expected no partial result, got %+v", chunk)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if chunk.Channels != tt.expectedChannels {
				t.Errorf("Expected %d channels, got %d", tt.expectedChannels, chunk.Channels)
			}
			if len(chunk.Samples) != len(tt.expectedSamples) {
				t.Fatalf("Expected %d samples, got %d", len(tt.expectedSamples), len(chunk.Samples))
			}
			for i, v := range tt.expectedSamples {
				if chunk.Samples[i] != v {
					t.Errorf("Sample %d: expected %f, got %f", i, v, chunk.Samples[i])
				}
			}
			if chunk.Frames() != len(tt.expectedSamples)/tt.expectedChannels {
				t.Errorf("Unexpected frame count %d", chunk.Frames())
			}
		})
	}
}
