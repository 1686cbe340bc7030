package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Event names exchanged on the streaming channel
const (
	EventAudioChunk       = "audio_chunk"       // inbound
	EventFormantData      = "formant_data"      // outbound, on successful validation
	EventError            = "error"             // outbound, unexpected failures only
	EventConnectionStatus = "connection_status" // outbound, once per session
)

// Encoding identifies how a frame is serialized.
type Encoding int

const (
	EncodingJSON    Encoding = iota // text frames
	EncodingMsgpack                 // binary frames
)

// String returns the encoding name used in logs and config.
func (e Encoding) String() string {
	switch e {
	case EncodingJSON:
		return "json"
	case EncodingMsgpack:
		return "msgpack"
	default:
		return fmt.Sprintf("Unknown(%d)", int(e))
	}
}

// ParseEncoding maps a config value to an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return EncodingJSON, nil
	case "msgpack":
		return EncodingMsgpack, nil
	default:
		return EncodingJSON, fmt.Errorf("unsupported encoding: %q", s)
	}
}

// Envelope is the frame layout in both directions.
// Layout: {"event": <name>, "data": <payload>}
type Envelope struct {
	Event string `json:"event" msgpack:"event"`
	Data  any    `json:"data" msgpack:"data"`
}

// FormantData is the payload of EventFormantData.
type FormantData struct {
	F1 float64 `json:"f1" msgpack:"f1"`
	F2 float64 `json:"f2" msgpack:"f2"`
}

// ErrorData is the payload of EventError.
type ErrorData struct {
	Message string `json:"message" msgpack:"message"`
}

// ConnectionStatus is the payload of EventConnectionStatus.
type ConnectionStatus struct {
	Status    string `json:"status" msgpack:"status"`
	SessionID string `json:"session_id" msgpack:"session_id"`
}

// DecodeFrame parses an inbound frame. Data is left as the generic value
// produced by the decoder (maps, slices, numbers) for DecodeAudioChunk.
func DecodeFrame(enc Encoding, frame []byte) (*Envelope, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	var env Envelope
	switch enc {
	case EncodingJSON:
		dec := json.NewDecoder(bytes.NewReader(frame))
		dec.UseNumber()
		if err := dec.Decode(&env); err != nil {
			return nil, fmt.Errorf("failed to decode json frame: %w", err)
		}
	case EncodingMsgpack:
		if err := msgpack.Unmarshal(frame, &env); err != nil {
			return nil, fmt.Errorf("failed to decode msgpack frame: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", enc)
	}

	if env.Event == "" {
		return nil, fmt.Errorf("frame has no event name")
	}
	return &env, nil
}

// EncodeFrame serializes an outbound event.
func EncodeFrame(enc Encoding, event string, data any) ([]byte, error) {
	env := Envelope{Event: event, Data: data}

	switch enc {
	case EncodingJSON:
		b, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("failed to encode json frame: %w", err)
		}
		return b, nil
	case EncodingMsgpack:
		b, err := msgpack.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("failed to encode msgpack frame: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", enc)
	}
}
