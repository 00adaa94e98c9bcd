package ingest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLocationNotFound means geocoding returned no match for a place.
	ErrLocationNotFound = errors.New("location not found")

	// ErrUnrecognizedPayload means a payload is not a shape the builder or
	// normalizer understands at all.
	ErrUnrecognizedPayload = errors.New("unrecognized payload")

	// ErrEmptyForecast means a forecast payload parsed but held no entries.
	ErrEmptyForecast = errors.New("forecast payload has no entries")
)

// UpstreamError is a failure from one upstream source: transport, HTTP
// status, timeout, open circuit, or a payload that did not parse.
type UpstreamError struct {
	Source     string
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (%s): status %d: %v", e.Source, e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Source, e.Endpoint, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// AllSourcesExhaustedError is returned when every attempted forecast source
// failed. Failures are in attempt order.
type AllSourcesExhaustedError struct {
	Place    string
	Failures []*UpstreamError
}

func (e *AllSourcesExhaustedError) Error() string {
	return fmt.Sprintf("all forecast sources failed for %q: %s", e.Place, strings.Join(e.Reasons(), "; "))
}

// Reasons returns one message per failed source.
func (e *AllSourcesExhaustedError) Reasons() []string {
	reasons := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		reasons[i] = f.Error()
	}
	return reasons
}

// PartialRecordError describes a single entry that was skipped because a
// required field was missing. It is logged, never returned.
type PartialRecordError struct {
	Kind  string // "forecast" or "observation"
	Index int
	Field string
}

func (e *PartialRecordError) Error() string {
	return fmt.Sprintf("%s entry %d: missing required field %q", e.Kind, e.Index, e.Field)
}
