package vad

import (
	"fmt"
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"

	"github.com/Indy1131/kotoba/internal/formant"
)

// DefaultThreshold is the peak amplitude, in normalized full-scale units,
// below which a chunk counts as quiet.
const DefaultThreshold = 0.01

// Gate rejects chunks whose peak absolute amplitude is below a threshold.
// It is safe for concurrent use; counters are the only mutable fields.
type Gate struct {
	threshold float64

	totalChunks  atomic.Uint64
	activeChunks atomic.Uint64
}

// Result describes one gate decision.
type Result struct {
	Peak   float64 `json:"peak"`   // Peak absolute amplitude
	Active bool    `json:"active"` // Whether the chunk passed the gate
}

// GateStats is a snapshot of gate counters.
type GateStats struct {
	Threshold        float64 `json:"threshold"`
	TotalChunks      uint64  `json:"total_chunks"`
	ActiveChunks     uint64  `json:"active_chunks"`
	ActivePercentage float64 `json:"active_percentage"`
}

// NewGate creates a gate with the given threshold.
func NewGate(threshold float64) (*Gate, error) {
	if threshold < 0 || threshold > 1 || math.IsNaN(threshold) {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}
	return &Gate{threshold: threshold}, nil
}

// Check computes the peak amplitude of samples. When the peak is below the
// threshold the returned error wraps formant.ErrQuietSignal.
func (g *Gate) Check(samples []float64) (Result, error) {
	g.totalChunks.Add(1)

	var peak float64
	if len(samples) > 0 {
		peak = floats.Norm(samples, math.Inf(1))
	}

	result := Result{Peak: peak, Active: peak >= g.threshold}
	if !result.Active {
		return result, fmt.Errorf("%w: peak %.4f < %.4f", formant.ErrQuietSignal, peak, g.threshold)
	}

	g.activeChunks.Add(1)
	return result, nil
}

// GetStats returns current gate counters.
func (g *Gate) GetStats() GateStats {
	total := g.totalChunks.Load()
	active := g.activeChunks.Load()

	percentage := float64(0)
	if total > 0 {
		percentage = float64(active) / float64(total) * 100
	}

	return GateStats{
		Threshold:        g.threshold,
		TotalChunks:      total,
		ActiveChunks:     active,
		ActivePercentage: percentage,
	}
}
