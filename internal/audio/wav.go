package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// WAVHeader is the canonical 44-byte PCM header written by EncodeWAV
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// fmtChunk is the body of a "fmt " chunk up to BitsPerSample.
type fmtChunk struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// PCM is decoded audio. Samples are interleaved frames normalized to [-1, 1).
type PCM struct {
	Samples    []float64
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames.
func (p *PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Duration returns the audio length in seconds.
func (p *PCM) Duration() float64 {
	if p.SampleRate <= 0 {
		return 0
	}
	return float64(p.Frames()) / float64(p.SampleRate)
}

// WAVInfo describes a WAV file without its samples
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumFrames     uint32  `json:"num_frames"`
}

// EncodeWAV encodes interleaved float samples in [-1, 1] as 16-bit PCM WAV.
// Values outside the range are clipped.
func EncodeWAV(samples []float64, sampleRate, channels int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 || channels > math.MaxUint16 {
		return nil, fmt.Errorf("invalid channel count %d", channels)
	}
	if len(samples)%channels != 0 {
		return nil, fmt.Errorf("%d samples do not divide into %d channels", len(samples), channels)
	}

	numChannels := uint16(channels)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2)

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	pcm := make([]int16, len(samples))
	for i, s := range samples {
		pcm[i] = toInt16(s)
	}
	if err := binary.Write(buf, binary.LittleEndian, pcm); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

func toInt16(s float64) int16 {
	switch {
	case math.IsNaN(s):
		return 0
	case s >= 1:
		return math.MaxInt16
	case s <= -1:
		return math.MinInt16
	}
	return int16(math.Round(s * 32767))
}

// DecodeWAV decodes a 16-bit PCM WAV file of any channel count. Chunks other
// than "fmt " and "data" are skipped.
func DecodeWAV(data []byte) (*PCM, error) {
	format, payload, err := scanChunks(data)
	if err != nil {
		return nil, err
	}

	if format.AudioFormat != 1 {
		return nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", format.AudioFormat)
	}
	if format.BitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", format.BitsPerSample)
	}

	channels := int(format.NumChannels)
	numFrames := len(payload) / (2 * channels)
	if numFrames == 0 {
		return nil, fmt.Errorf("no audio data found")
	}

	raw := make([]int16, numFrames*channels)
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, raw); err != nil {
		return nil, fmt.Errorf("failed to read audio samples: %w", err)
	}

	samples := make([]float64, len(raw))
	for i, s := range raw {
		samples[i] = float64(s) / 32768.0
	}

	return &PCM{
		Samples:    samples,
		SampleRate: int(format.SampleRate),
		Channels:   channels,
	}, nil
}

// scanChunks walks the RIFF chunk list and returns the format and the data
// chunk body. A data chunk whose declared size overruns the file is truncated
// to what is present.
func scanChunks(data []byte) (fmtChunk, []byte, error) {
	var format fmtChunk

	if len(data) < 12 {
		return format, nil, fmt.Errorf("WAV data too short: need at least 12 bytes, got %d", len(data))
	}
	if string(data[0:4]) != "RIFF" {
		return format, nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(data[8:12]) != "WAVE" {
		return format, nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	r := bytes.NewReader(data[12:])
	haveFmt := false
	for {
		var id [4]byte
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			break
		}
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return format, nil, fmt.Errorf("truncated %q chunk header", id[:])
		}

		switch string(id[:]) {
		case "fmt ":
			if size < 16 {
				return format, nil, fmt.Errorf("invalid fmt chunk size %d", size)
			}
			if err := binary.Read(r, binary.LittleEndian, &format); err != nil {
				return format, nil, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if format.NumChannels == 0 {
				return format, nil, fmt.Errorf("invalid channel count 0")
			}
			if format.SampleRate == 0 {
				return format, nil, fmt.Errorf("invalid sample rate: 0")
			}
			haveFmt = true
			if _, err := r.Seek(int64(size-16)+int64(size%2), io.SeekCurrent); err != nil {
				return format, nil, err
			}

		case "data":
			if !haveFmt {
				return format, nil, fmt.Errorf("invalid WAV file: data chunk before fmt chunk")
			}
			start := len(data) - r.Len()
			end := start + int(size)
			if end > len(data) || end < start {
				end = len(data)
			}
			return format, data[start:end], nil

		default:
			if _, err := r.Seek(int64(size)+int64(size%2), io.SeekCurrent); err != nil {
				return format, nil, err
			}
		}
	}

	if !haveFmt {
		return format, nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	return format, nil, fmt.Errorf("invalid WAV file: missing data chunk")
}

// GetWAVInfo checks the container layout and extracts metadata without
// decoding samples.
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	format, payload, err := scanChunks(data)
	if err != nil {
		return nil, err
	}

	frameBytes := uint32(format.NumChannels) * uint32(format.BitsPerSample) / 8
	var numFrames uint32
	if frameBytes > 0 {
		numFrames = uint32(len(payload)) / frameBytes
	}

	return &WAVInfo{
		SampleRate:    format.SampleRate,
		Channels:      format.NumChannels,
		BitsPerSample: format.BitsPerSample,
		Duration:      float64(numFrames) / float64(format.SampleRate),
		DataSize:      uint32(len(payload)),
		NumFrames:     numFrames,
	}, nil
}
