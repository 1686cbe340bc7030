package config

import (
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server"`
	HTTP       HTTPConfig       `yaml:"http" json:"http"`
	Stream     StreamConfig     `yaml:"stream" json:"stream"`
	Analysis   AnalysisConfig   `yaml:"analysis" json:"analysis"`
	Validation ValidationConfig `yaml:"validation" json:"validation"`
	Reference  ReferenceConfig  `yaml:"reference" json:"reference"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ServerConfig identifies the running service
type ServerConfig struct {
	Name            string `yaml:"name" json:"name"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout"` // seconds
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port           int      `yaml:"port" json:"port"`
	Address        string   `yaml:"address" json:"address"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// StreamConfig contains streaming channel and session configuration
type StreamConfig struct {
	Path           string `yaml:"path" json:"path"`
	Encoding       string `yaml:"encoding" json:"encoding"`     // json or msgpack, for server-initiated frames
	ReadLimit      int64  `yaml:"read_limit" json:"read_limit"` // bytes per inbound frame
	SendBuffer     int    `yaml:"send_buffer" json:"send_buffer"`
	InboxSize      int    `yaml:"inbox_size" json:"inbox_size"`
	MaxSessions    int    `yaml:"max_sessions" json:"max_sessions"`
	SessionTimeout int    `yaml:"session_timeout" json:"session_timeout"` // seconds idle before cleanup
	WriteTimeout   int    `yaml:"write_timeout" json:"write_timeout"`     // seconds
}

// AnalysisConfig contains the signal analysis parameters
type AnalysisConfig struct {
	SampleRate         int     `yaml:"sample_rate" json:"sample_rate"`
	FFTSize            int     `yaml:"fft_size" json:"fft_size"`
	PreEmphasis        float64 `yaml:"pre_emphasis" json:"pre_emphasis"`
	AmplitudeThreshold float64 `yaml:"amplitude_threshold" json:"amplitude_threshold"`
	MinSamples         int     `yaml:"min_samples" json:"min_samples"`
	PeakDistance       int     `yaml:"peak_distance" json:"peak_distance"` // bins
	BandLow            float64 `yaml:"band_low" json:"band_low"`           // Hz, exclusive
	BandHigh           float64 `yaml:"band_high" json:"band_high"`         // Hz, exclusive
}

// RangeConfig is an inclusive frequency range in Hz
type RangeConfig struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// ValidationConfig contains the formant plausibility ranges
type ValidationConfig struct {
	F1 RangeConfig `yaml:"f1" json:"f1"`
	F2 RangeConfig `yaml:"f2" json:"f2"`
}

// ReferenceConfig points at an optional override for the built-in vowel tables
type ReferenceConfig struct {
	Path string `yaml:"path" json:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// Default returns the configuration used when no file is given. Load overlays
// file values on top of it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:            "kotoba-audio-processing",
			ShutdownTimeout: 30,
		},
		HTTP: HTTPConfig{
			Port:    5001,
			Address: "0.0.0.0",
			AllowedOrigins: []string{
				"http://localhost:5173",
				"http://localhost:5174",
				"http://localhost:3000",
			},
		},
		Stream: StreamConfig{
			Path:           "/socket",
			Encoding:       "json",
			ReadLimit:      1 << 20,
			SendBuffer:     64,
			InboxSize:      16,
			MaxSessions:    1000,
			SessionTimeout: 300,
			WriteTimeout:   5,
		},
		Analysis: AnalysisConfig{
			SampleRate:         44100,
			FFTSize:            2048,
			PreEmphasis:        0.97,
			AmplitudeThreshold: 0.01,
			MinSamples:         512,
			PeakDistance:       20,
			BandLow:            90,
			BandHigh:           4000,
		},
		Validation: ValidationConfig{
			F1: RangeConfig{Min: 200, Max: 1200},
			F2: RangeConfig{Min: 600, Max: 4000},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file. An empty path yields the
// validated defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}

	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis config: %w", err)
	}

	if err := c.Validation.Validate(); err != nil {
		return fmt.Errorf("validation config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if s.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", s.ShutdownTimeout)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("http address cannot be empty")
	}

	for _, origin := range h.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			return fmt.Errorf("allowed_origins cannot contain empty entries")
		}
	}

	return nil
}

// Validate validates stream configuration
// ReservedPaths are the fixed HTTP routes. The stream path may not reuse
// one, and may not sit under /streams/ where session details live.
var ReservedPaths = []string{
	"/",
	"/health",
	"/api/audio/formant-references",
	"/streams",
	"/streams/",
	"/config",
	"/stats",
	"/metrics",
}

func (s *StreamConfig) Validate() error {
	if !strings.HasPrefix(s.Path, "/") {
		return fmt.Errorf("path must start with '/', got '%s'", s.Path)
	}
	if slices.Contains(ReservedPaths, s.Path) || strings.HasPrefix(s.Path, "/streams/") {
		return fmt.Errorf("path '%s' collides with a built-in route", s.Path)
	}

	validEncodings := map[string]bool{"json": true, "msgpack": true}
	if !validEncodings[s.Encoding] {
		return fmt.Errorf("encoding must be 'json' or 'msgpack', got '%s'", s.Encoding)
	}

	if s.ReadLimit < 1024 {
		return fmt.Errorf("read_limit must be at least 1024 bytes, got %d", s.ReadLimit)
	}

	if s.SendBuffer < 1 {
		return fmt.Errorf("send_buffer must be at least 1, got %d", s.SendBuffer)
	}

	if s.InboxSize < 1 {
		return fmt.Errorf("inbox_size must be at least 1, got %d", s.InboxSize)
	}

	if s.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", s.MaxSessions)
	}

	if s.SessionTimeout < 1 {
		return fmt.Errorf("session_timeout must be at least 1 second, got %d", s.SessionTimeout)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	return nil
}

// Validate validates analysis configuration
func (a *AnalysisConfig) Validate() error {
	if a.SampleRate < 8000 {
		return fmt.Errorf("sample_rate must be at least 8000 Hz, got %d", a.SampleRate)
	}

	if a.FFTSize < 64 || a.FFTSize&(a.FFTSize-1) != 0 {
		return fmt.Errorf("fft_size must be a power of two >= 64, got %d", a.FFTSize)
	}

	if a.PreEmphasis < 0 || a.PreEmphasis >= 1 {
		return fmt.Errorf("pre_emphasis must be in [0, 1), got %f", a.PreEmphasis)
	}

	if a.AmplitudeThreshold < 0 || a.AmplitudeThreshold > 1 {
		return fmt.Errorf("amplitude_threshold must be between 0 and 1, got %f", a.AmplitudeThreshold)
	}

	if a.MinSamples < 1 {
		return fmt.Errorf("min_samples must be at least 1, got %d", a.MinSamples)
	}

	if a.PeakDistance < 1 {
		return fmt.Errorf("peak_distance must be at least 1 bin, got %d", a.PeakDistance)
	}

	nyquist := float64(a.SampleRate) / 2
	if a.BandLow < 0 || a.BandHigh <= a.BandLow || a.BandHigh > nyquist {
		return fmt.Errorf("band (%f, %f) must satisfy 0 <= low < high <= %f", a.BandLow, a.BandHigh, nyquist)
	}

	return nil
}

// Validate validates the formant ranges
func (v *ValidationConfig) Validate() error {
	if err := v.F1.Validate(); err != nil {
		return fmt.Errorf("f1: %w", err)
	}

	if err := v.F2.Validate(); err != nil {
		return fmt.Errorf("f2: %w", err)
	}

	return nil
}

// Validate validates a frequency range
func (r *RangeConfig) Validate() error {
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) {
		return fmt.Errorf("range bounds must be numbers")
	}

	if r.Min < 0 || r.Max <= r.Min {
		return fmt.Errorf("range [%f, %f] must satisfy 0 <= min < max", r.Min, r.Max)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Anything other than stdout/stderr is treated as a file path.
	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}

// GetShutdownTimeout returns the graceful shutdown timeout as a time.Duration
func (s *ServerConfig) GetShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// GetSessionTimeout returns the idle session timeout as a time.Duration
func (s *StreamConfig) GetSessionTimeout() time.Duration {
	return time.Duration(s.SessionTimeout) * time.Second
}

// GetWriteTimeout returns the per-frame write timeout as a time.Duration
func (s *StreamConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// Addr returns the HTTP listen address
func (h *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}
