package formant

import "errors"

// Drop reasons. Each is an expected outcome of analysing a live chunk and is
// never reported to the client.
var (
	ErrFormat           = errors.New("malformed audio payload")
	ErrInsufficientData = errors.New("insufficient audio data")
	ErrQuietSignal      = errors.New("signal below amplitude threshold")
	ErrNoFormants       = errors.New("no formant candidates")
	ErrOutOfRange       = errors.New("formants out of range")
)

// Reason is the label attached to a chunk outcome.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonFormat           Reason = "format"
	ReasonInsufficientData Reason = "insufficient_data"
	ReasonQuietSignal      Reason = "quiet_signal"
	ReasonNoFormants       Reason = "no_formants"
	ReasonOutOfRange       Reason = "out_of_range"
	ReasonUnexpected       Reason = "unexpected"
)

// Classify maps an error returned by any pipeline stage to its Reason.
// Errors that match none of the drop sentinels are ReasonUnexpected.
func Classify(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrFormat):
		return ReasonFormat
	case errors.Is(err, ErrInsufficientData):
		return ReasonInsufficientData
	case errors.Is(err, ErrQuietSignal):
		return ReasonQuietSignal
	case errors.Is(err, ErrNoFormants):
		return ReasonNoFormants
	case errors.Is(err, ErrOutOfRange):
		return ReasonOutOfRange
	default:
		return ReasonUnexpected
	}
}

// Expected reports whether r is a routine drop rather than a failure.
func (r Reason) Expected() bool {
	switch r {
	case ReasonFormat, ReasonInsufficientData, ReasonQuietSignal, ReasonNoFormants, ReasonOutOfRange:
		return true
	default:
		return false
	}
}
