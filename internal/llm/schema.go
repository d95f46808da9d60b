package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"promptforge/internal/types"
)

// resultSchemaJSON is the contract every improvement response must satisfy.
// Bounds on list length and confidence range are deliberately absent here:
// out-of-range values are sanitized after validation rather than rejected.
const resultSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["improved_prompt", "clarifying_questions", "assumptions", "confidence"],
  "properties": {
    "improved_prompt":      {"type": "string", "minLength": 1},
    "clarifying_questions": {"type": "array", "items": {"type": "string"}},
    "assumptions":          {"type": "array", "items": {"type": "string"}},
    "confidence":           {"type": "number"}
  }
}`

// ResultSchema validates and decodes raw JSON into an ImprovementResult.
type ResultSchema struct {
	compiled       *jsonschema.Schema
	maxQuestions   int
	maxAssumptions int
}

// NewResultSchema compiles the improvement-result schema with the configured
// list bounds used during sanitation.
func NewResultSchema(maxQuestions, maxAssumptions int) (*ResultSchema, error) {
	compiled, err := jsonschema.CompileString("improvement_result.json", resultSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to compile result schema: %w", err)
	}
	return &ResultSchema{
		compiled:       compiled,
		maxQuestions:   maxQuestions,
		maxAssumptions: maxAssumptions,
	}, nil
}

// Decode parses, coerces, validates, and sanitizes a JSON payload.
// Coercion happens before validation (a bare string where an array was asked
// for becomes a one-element array); clamping and dedup happen after.
func (s *ResultSchema) Decode(jsonText string) (types.ImprovementResult, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return types.ImprovementResult{}, &Error{
			Kind: KindNonJSON, Msg: "payload is not a JSON object", RawOutput: jsonText, Err: err,
		}
	}

	coerceScalarToArray(raw, "clarifying_questions")
	coerceScalarToArray(raw, "assumptions")

	if err := s.compiled.Validate(raw); err != nil {
		return types.ImprovementResult{}, &Error{
			Kind:         KindSchema,
			Msg:          "response does not match the result schema",
			RawOutput:    jsonText,
			ValidatorErr: err.Error(),
			Err:          err,
		}
	}

	result := types.ImprovementResult{
		ImprovedPrompt:      asString(raw["improved_prompt"]),
		ClarifyingQuestions: asStringSlice(raw["clarifying_questions"]),
		Assumptions:         asStringSlice(raw["assumptions"]),
		Confidence:          asFloat(raw["confidence"]),
	}

	result.ClarifyingQuestions = sanitizeList(result.ClarifyingQuestions, s.maxQuestions)
	result.Assumptions = sanitizeList(result.Assumptions, s.maxAssumptions)
	result.Confidence = clamp01(result.Confidence)
	return result, nil
}

// coerceScalarToArray wraps a lone string in a one-element array so a model
// that forgot the brackets still validates. Missing or null fields are left
// alone so the schema's required check still fires.
func coerceScalarToArray(raw map[string]interface{}, key string) {
	if v, ok := raw[key].(string); ok {
		raw[key] = []interface{}{v}
	}
}

// sanitizeList trims entries, drops empties, dedups case-insensitively
// preserving order, and truncates to max.
func sanitizeList(in []string, max int) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if len(out) == max {
			break
		}
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}

func asStringSlice(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
