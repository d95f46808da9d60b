// Package llm contains the structured-output LLM client: transport adapters,
// the JSON extraction cascade, schema validation, the repair loop, and the
// error taxonomy shared by all of them.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an engine error by failure mode, not by Go type.
type Kind string

const (
	KindTimeout       Kind = "timeout"
	KindConnection    Kind = "connection"
	KindModelNotFound Kind = "model_not_found"
	KindSchema        Kind = "schema"
	KindNonJSON       Kind = "non_json_output"
	KindQualityGate   Kind = "quality_gate"
	KindUnauthorized  Kind = "unauthorized"
	KindRateLimited   Kind = "rate_limited"
	KindCancelled     Kind = "cancelled"
	KindInternal      Kind = "internal"
)

// CallMeta is attached to every error (and every success) so callers can see
// exactly what the engine did.
type CallMeta struct {
	Attempt          int    `json:"attempt"`
	UsedRepair       bool   `json:"used_repair"`
	UsedExtraction   bool   `json:"used_extraction"`
	ExtractionMethod string `json:"extraction_method,omitempty"`
	LatencyMS        int64  `json:"latency_ms"`
	Model            string `json:"model,omitempty"`
}

// Error is the engine's typed error. RawOutput carries the model's original
// text for schema/quality failures so the caller can inspect it.
type Error struct {
	Kind         Kind
	Msg          string
	RawOutput    string
	ValidatorErr string
	Meta         CallMeta
	Err          error
}

func (e *Error) Error() string {
	if e.ValidatorErr != "" {
		return fmt.Sprintf("llm %s: %s (%s)", e.Kind, e.Msg, e.ValidatorErr)
	}
	return fmt.Sprintf("llm %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindInternal for foreign errors.
// Context cancellation is always reported as KindCancelled, never converted.
func KindOf(err error) Kind {
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsFallbackWorthy reports whether the fallback model should be tried for
// this error. Timeouts, connection failures, rate limits, and cancellation
// never trigger fallback: the second model would hit the same wall.
func IsFallbackWorthy(err error) bool {
	switch KindOf(err) {
	case KindModelNotFound, KindNonJSON, KindSchema, KindQualityGate:
		return true
	default:
		return false
	}
}

// MetaOf extracts CallMeta from an engine error, if present.
func MetaOf(err error) (CallMeta, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Meta, true
	}
	return CallMeta{}, false
}
