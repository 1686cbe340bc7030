// Package stream turns audio chunks into formant events.
//
// Pipeline runs one chunk through decode, amplitude gate, extraction and
// validation and reports a tagged Outcome. Manager owns one Session per
// streaming connection; each session processes its chunks on a single worker
// so emissions keep arrival order, and idle sessions are removed after a
// configurable timeout.
package stream
