// Package types defines the shared domain types for the prompt improvement
// pipeline: requests, analysis results, few-shot examples, and history
// entries. All other packages depend on this one; it depends on nothing.
package types

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// ENUMS - Intent, Complexity, Preset, ExecMode
// =============================================================================

// Intent is the classified purpose of a raw idea.
type Intent string

const (
	IntentDebug    Intent = "DEBUG"
	IntentRefactor Intent = "REFACTOR"
	IntentGenerate Intent = "GENERATE"
	IntentExplain  Intent = "EXPLAIN"
)

// ParseIntent maps a string to an Intent, defaulting to EXPLAIN.
func ParseIntent(s string) Intent {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return IntentDebug
	case "REFACTOR":
		return IntentRefactor
	case "GENERATE":
		return IntentGenerate
	default:
		return IntentExplain
	}
}

// Complexity buckets an idea by how much structure its improvement needs.
type Complexity string

const (
	ComplexitySimple   Complexity = "SIMPLE"
	ComplexityModerate Complexity = "MODERATE"
	ComplexityComplex  Complexity = "COMPLEX"
)

// ParseComplexity maps a string to a Complexity, defaulting to MODERATE.
func ParseComplexity(s string) Complexity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SIMPLE":
		return ComplexitySimple
	case "COMPLEX":
		return ComplexityComplex
	default:
		return ComplexityModerate
	}
}

// Preset selects the assembler's output expectations.
type Preset string

const (
	PresetDefault    Preset = "default"
	PresetSpecific   Preset = "specific"
	PresetStructured Preset = "structured"
	PresetCoding     Preset = "coding"
)

// ParsePreset maps a string to a Preset, defaulting to PresetDefault.
func ParsePreset(s string) Preset {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "specific":
		return PresetSpecific
	case "structured":
		return PresetStructured
	case "coding":
		return PresetCoding
	default:
		return PresetDefault
	}
}

// ExecMode selects where the improvement call runs.
type ExecMode string

const (
	ModeLocal  ExecMode = "local"
	ModeRemote ExecMode = "remote"
	ModeHybrid ExecMode = "hybrid"
)

// ParseExecMode maps a string to an ExecMode, defaulting to ModeLocal.
func ParseExecMode(s string) ExecMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "remote":
		return ModeRemote
	case "hybrid":
		return ModeHybrid
	default:
		return ModeLocal
	}
}

// =============================================================================
// REQUESTS
// =============================================================================

// MinIdeaLength is the minimum trimmed idea length accepted by the pipeline.
const MinIdeaLength = 5

// InputError reports a caller mistake. Input errors are never retried.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// ImproveRequest is the caller-facing request for one improvement run.
type ImproveRequest struct {
	Idea          string   `json:"idea"`
	Context       string   `json:"context,omitempty"`
	Preset        Preset   `json:"preset,omitempty"`
	Mode          ExecMode `json:"mode,omitempty"`
	TimeoutMS     int      `json:"timeout_ms,omitempty"`
	Model         string   `json:"model,omitempty"`
	FallbackModel string   `json:"fallback_model,omitempty"`
}

// Validate checks the request. The idea must be at least MinIdeaLength
// characters after trimming.
func (r ImproveRequest) Validate() error {
	idea := strings.TrimSpace(r.Idea)
	if idea == "" {
		return &InputError{Field: "idea", Reason: "must not be empty"}
	}
	if len(idea) < MinIdeaLength {
		return &InputError{
			Field:  "idea",
			Reason: fmt.Sprintf("must be at least %d characters, got %d", MinIdeaLength, len(idea)),
		}
	}
	return nil
}

// Normalized returns a copy with the cache-identity fields trimmed and
// internal whitespace runs collapsed to a single space.
func (r ImproveRequest) Normalized() ImproveRequest {
	out := r
	out.Idea = collapseWhitespace(r.Idea)
	out.Context = collapseWhitespace(r.Context)
	return out
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// AnalyzedRequest is an ImproveRequest enriched with classifier output.
type AnalyzedRequest struct {
	ImproveRequest
	Intent     Intent     `json:"intent"`
	Complexity Complexity `json:"complexity"`
	Confidence float64    `json:"confidence"`
}

// =============================================================================
// FEW-SHOT CATALOG
// =============================================================================

// FewShotExample is one curated exemplar from the static catalog.
// The catalog is loaded once at startup and is immutable at runtime.
// HasExpectedOutput and ValidatorScore are optional in the catalog file and
// default to false / 0.0.
type FewShotExample struct {
	ID                string     `yaml:"id" json:"id"`
	Input             string     `yaml:"input" json:"input"`
	Output            string     `yaml:"output" json:"output"`
	Role              string     `yaml:"role" json:"role"`
	Framework         string     `yaml:"framework,omitempty" json:"framework,omitempty"`
	Guardrails        string     `yaml:"guardrails,omitempty" json:"guardrails,omitempty"`
	Domain            string     `yaml:"domain,omitempty" json:"domain,omitempty"`
	Intent            Intent     `yaml:"intent" json:"intent"`
	Complexity        Complexity `yaml:"complexity" json:"complexity"`
	ValidatorScore    float64    `yaml:"validator_score,omitempty" json:"validator_score,omitempty"`
	HasExpectedOutput bool       `yaml:"has_expected_output,omitempty" json:"has_expected_output,omitempty"`
}

// =============================================================================
// RESULTS
// =============================================================================

// ResultMeta carries per-call diagnostics attached to every result.
type ResultMeta struct {
	Backend          string `json:"backend,omitempty"`
	Model            string `json:"model,omitempty"`
	Attempt          int    `json:"attempt"`
	UsedExtraction   bool   `json:"used_extraction"`
	UsedRepair       bool   `json:"used_repair"`
	ExtractionMethod string `json:"extraction_method,omitempty"`
	LatencyMS        int64  `json:"latency_ms"`
	Optimizer        string `json:"optimizer,omitempty"`
	CacheHit         bool   `json:"cache_hit,omitempty"`
	LowConfidence    bool   `json:"low_confidence,omitempty"`
}

// ImprovementResult is the pipeline's successful output.
type ImprovementResult struct {
	ImprovedPrompt      string     `json:"improved_prompt"`
	ClarifyingQuestions []string   `json:"clarifying_questions"`
	Assumptions         []string   `json:"assumptions"`
	Confidence          float64    `json:"confidence"`
	Meta                ResultMeta `json:"meta"`
}

// =============================================================================
// HISTORY
// =============================================================================

// EngineTag identifies which backend produced a history entry.
type EngineTag string

const (
	EngineDSPy   EngineTag = "dspy"
	EngineOllama EngineTag = "ollama"
)

// HistoryMeta is the optional metadata block stored with a history entry.
type HistoryMeta struct {
	Confidence  float64  `json:"confidence,omitempty"`
	Questions   []string `json:"questions,omitempty"`
	Assumptions []string `json:"assumptions,omitempty"`
}

// HistoryEntry is one line of the append-only prompt history.
type HistoryEntry struct {
	ID          string       `json:"id"`
	Timestamp   time.Time    `json:"timestamp"`
	Prompt      string       `json:"prompt"`
	Meta        *HistoryMeta `json:"meta,omitempty"`
	Source      EngineTag    `json:"source"`
	InputLength int          `json:"input_length"`
	Preset      string       `json:"preset,omitempty"`
}
