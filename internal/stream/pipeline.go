package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Indy1131/kotoba/internal/formant"
	"github.com/Indy1131/kotoba/internal/protocol"
	"github.com/Indy1131/kotoba/internal/vad"
)

// ErrorMessage is the only error text ever sent to a client.
const ErrorMessage = "Audio processing error"

// State is the stage a chunk reached in the pipeline.
type State int

const (
	StateReceived State = iota
	StateDecoded
	StateGated
	StateExtracted
	StateValidated
	StateEmitted
	StateDropped
	StateFailed
)

// String returns the lowercase state name used in logs and CLI output.
func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateDecoded:
		return "decoded"
	case StateGated:
		return "gated"
	case StateExtracted:
		return "extracted"
	case StateValidated:
		return "validated"
	case StateEmitted:
		return "emitted"
	case StateDropped:
		return "dropped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Outcome is the terminal result of processing one chunk. State is one of
// StateEmitted, StateDropped or StateFailed. Stage is the last stage the
// chunk completed before it terminated.
type Outcome struct {
	State    State
	Stage    State
	Reason   formant.Reason
	Estimate formant.Estimate
	Err      error
	Duration time.Duration
}

// Emitted reports whether the chunk produced a formant pair.
func (o Outcome) Emitted() bool {
	return o.State == StateEmitted
}

// ClientError returns the error payload to send for a failed outcome. ok is
// false for every other outcome and for suppressed failures.
func (o Outcome) ClientError() (protocol.ErrorData, bool) {
	if o.State != StateFailed || SuppressError(o.Err) {
		return protocol.ErrorData{}, false
	}
	return protocol.ErrorData{Message: ErrorMessage}, true
}

var suppressedFragments = []string{"serializ", "json", "msgpack", "marshal", "pickle"}

// SuppressError reports whether an unexpected error looks like a payload
// serialization fault. Those are logged but never surfaced to the client.
func SuppressError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range suppressedFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// Recorder receives per-chunk and per-session counters. *metrics.Metrics
// implements it.
type Recorder interface {
	RecordChunkReceived()
	RecordChunkEmitted()
	RecordChunkDropped(reason string)
	RecordUnexpectedError(suppressed bool)
	RecordProcessing(durationSeconds float64)

	RecordSessionCreated()
	RecordSessionDestroyed(durationSeconds float64)
	SetActiveSessions(count int)
	RecordInboxOverflow()
}

type nopRecorder struct{}

func (nopRecorder) RecordChunkReceived()           {}
func (nopRecorder) RecordChunkEmitted()            {}
func (nopRecorder) RecordChunkDropped(string)      {}
func (nopRecorder) RecordUnexpectedError(bool)     {}
func (nopRecorder) RecordProcessing(float64)       {}
func (nopRecorder) RecordSessionCreated()          {}
func (nopRecorder) RecordSessionDestroyed(float64) {}
func (nopRecorder) SetActiveSessions(int)          {}
func (nopRecorder) RecordInboxOverflow()           {}

// Extractor turns one chunk of frame-major samples into a formant pair.
// *formant.Extractor implements it.
type Extractor interface {
	Extract(samples []float64, channels int) (formant.Estimate, error)
}

// Pipeline runs one chunk through decode, gate, extraction and validation.
// It keeps no state between chunks and is safe for concurrent use.
type Pipeline struct {
	gate      *vad.Gate
	extractor Extractor
	validator formant.Validator
	recorder  Recorder
	logger    *slog.Logger
}

// NewPipeline wires the analysis stages together. recorder may be nil.
func NewPipeline(gate *vad.Gate, extractor Extractor, validator formant.Validator, recorder Recorder, logger *slog.Logger) (*Pipeline, error) {
	if gate == nil {
		return nil, errors.New("gate cannot be nil")
	}
	if extractor == nil {
		return nil, errors.New("extractor cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Pipeline{
		gate:      gate,
		extractor: extractor,
		validator: validator,
		recorder:  recorder,
		logger:    logger,
	}, nil
}

// WithLogger returns a copy of the pipeline that logs through logger.
func (p *Pipeline) WithLogger(logger *slog.Logger) *Pipeline {
	clone := *p
	clone.logger = logger
	return &clone
}

// Gate returns the amplitude gate used by the pipeline.
func (p *Pipeline) Gate() *vad.Gate {
	return p.gate
}

// Process decodes payload and analyses it. Routine drops are reported in the
// outcome; nothing here panics out to the caller.
func (p *Pipeline) Process(payload any) (outcome Outcome) {
	start := time.Now()
	p.recorder.RecordChunkReceived()

	defer p.finish(&outcome, start)

	chunk, err := protocol.DecodeAudioChunk(payload)
	if err != nil {
		return p.terminate(StateReceived, err)
	}
	return p.analyse(chunk.Samples, chunk.Channels)
}

// ProcessSamples analyses samples that are already decoded. samples is
// frame-major with the given channel count.
func (p *Pipeline) ProcessSamples(samples []float64, channels int) (outcome Outcome) {
	start := time.Now()
	p.recorder.RecordChunkReceived()

	defer p.finish(&outcome, start)

	return p.analyse(samples, channels)
}

func (p *Pipeline) analyse(samples []float64, channels int) Outcome {
	if _, err := p.gate.Check(samples); err != nil {
		return p.terminate(StateDecoded, err)
	}

	estimate, err := p.extractor.Extract(samples, channels)
	if err != nil {
		return p.terminate(StateGated, err)
	}

	estimate, err = p.validator.ValidateEstimate(estimate)
	if err != nil {
		return p.terminate(StateExtracted, err)
	}

	return Outcome{State: StateEmitted, Stage: StateValidated, Estimate: estimate}
}

func (p *Pipeline) terminate(stage State, err error) Outcome {
	reason := formant.Classify(err)
	state := StateDropped
	if !reason.Expected() {
		state = StateFailed
	}
	return Outcome{State: state, Stage: stage, Reason: reason, Err: err}
}

// finish recovers panics from any stage, then records and logs the outcome.
func (p *Pipeline) finish(outcome *Outcome, start time.Time) {
	if r := recover(); r != nil {
		*outcome = Outcome{
			State:  StateFailed,
			Stage:  outcome.Stage,
			Reason: formant.ReasonUnexpected,
			Err:    fmt.Errorf("panic during chunk processing: %v", r),
		}
	}
	outcome.Duration = time.Since(start)
	p.recorder.RecordProcessing(outcome.Duration.Seconds())

	switch outcome.State {
	case StateEmitted:
		p.recorder.RecordChunkEmitted()
		p.logger.Debug("Formants extracted",
			slog.Float64("f1", outcome.Estimate.F1),
			slog.Float64("f2", outcome.Estimate.F2),
			slog.Duration("duration", outcome.Duration),
		)

	case StateDropped:
		p.recorder.RecordChunkDropped(string(outcome.Reason))
		p.logger.Debug("Chunk dropped",
			slog.String("reason", string(outcome.Reason)),
			slog.String("stage", outcome.Stage.String()),
			slog.String("detail", outcome.Err.Error()),
		)

	case StateFailed:
		suppressed := SuppressError(outcome.Err)
		p.recorder.RecordUnexpectedError(suppressed)
		p.logger.Error("Audio processing failed",
			slog.String("stage", outcome.Stage.String()),
			slog.String("error", outcome.Err.Error()),
			slog.Bool("suppressed", suppressed),
		)
	}
}
