package classify

import (
	"strings"

	"promptforge/internal/logging"
	"promptforge/internal/types"
)

// Multi-requirement connectors. A comma also counts, handled separately.
var requirementConnectors = []string{
	"and also", "as well as", "in addition", "plus", "along with",
}

// Technical-requirement phrases that indicate a compound specification.
var technicalPhrases = []string{
	"authentication", "authorization", "oauth", "jwt", "rbac",
	"database", "cache", "redis", "queue", "websocket", "api",
	"encryption", "rate limit", "pagination", "migration", "session",
	"concurrency", "retry", "fallback", "schema", "validation",
}

// ComplexityResult is the analyzer's verdict.
type ComplexityResult struct {
	Level          types.Complexity
	Confidence     float64
	SignalsMatched []string
}

// Analyzer derives complexity from token count and technical-term density.
type Analyzer struct{}

// NewAnalyzer returns the complexity analyzer.
func NewAnalyzer() *Analyzer { return &Analyzer{} }

// Analyze buckets the idea:
//
//	SIMPLE:   <= 15 tokens and no multi-requirement connectors
//	MODERATE: 16-30 tokens, or exactly one connector
//	COMPLEX:  > 30 tokens, or >= 2 distinct technical-requirement phrases
func (a *Analyzer) Analyze(idea string) ComplexityResult {
	tokens := len(strings.Fields(idea))
	lower := strings.ToLower(idea)

	var signals []string
	connectors := strings.Count(idea, ",")
	if connectors > 0 {
		signals = append(signals, "comma")
	}
	for _, c := range requirementConnectors {
		if strings.Contains(lower, c) {
			connectors++
			signals = append(signals, c)
		}
	}

	technical := 0
	for _, p := range technicalPhrases {
		if strings.Contains(lower, p) {
			technical++
			signals = append(signals, p)
		}
	}

	var level types.Complexity
	var confidence float64
	switch {
	case tokens > 30 || technical >= 2:
		level = types.ComplexityComplex
		confidence = 0.9
	case tokens > 15 || connectors >= 1:
		level = types.ComplexityModerate
		confidence = 0.8
	default:
		level = types.ComplexitySimple
		confidence = 0.9
	}

	logging.PipelineDebug("Complexity: %s tokens=%d connectors=%d technical=%d",
		level, tokens, connectors, technical)

	return ComplexityResult{Level: level, Confidence: confidence, SignalsMatched: signals}
}
