// Package classify provides the rule-based intent classifier and the
// complexity analyzer that route a raw idea through the pipeline. Both are
// pure functions over the input text; no LLM call is involved.
package classify

import (
	"strings"

	"promptforge/internal/logging"
	"promptforge/internal/types"
)

// =============================================================================
// KEYWORD CORPUS
// =============================================================================

// Keyword votes per intent. Precedence on ties is DEBUG > REFACTOR >
// GENERATE; EXPLAIN is the fallthrough when nothing matches.
var (
	debugKeywords = []string{
		"fix", "error", "bug", "traceback", "not working", "broken",
		"crash", "exception", "fails", "failing", "stack trace", "debug",
	}
	refactorKeywords = []string{
		"refactor", "simplify", "optimize", "clean up", "cleanup",
		"restructure", "rewrite", "improve readability", "extract",
	}
	generateKeywords = []string{
		"create", "build", "write", "generate", "implement", "make",
		"add", "scaffold", "design",
	}
	explainKeywords = []string{
		"explain", "what is", "how does", "describe", "why", "understand",
		"walk through", "summarize",
	}
)

// IntentResult is the classifier's verdict.
type IntentResult struct {
	Intent     types.Intent
	Confidence float64
	Votes      map[types.Intent]int
}

// Classifier maps free text to an intent with a confidence score.
type Classifier struct{}

// NewClassifier returns the rule-based intent classifier.
func NewClassifier() *Classifier { return &Classifier{} }

// Classify applies keyword-vote precedence. Confidence is the winning
// intent's share of all detected signals; 0.5 when nothing matched.
func (c *Classifier) Classify(idea string) IntentResult {
	lower := strings.ToLower(idea)

	votes := map[types.Intent]int{
		types.IntentDebug:    countMatches(lower, debugKeywords),
		types.IntentRefactor: countMatches(lower, refactorKeywords),
		types.IntentGenerate: countMatches(lower, generateKeywords),
		types.IntentExplain:  countMatches(lower, explainKeywords),
	}
	total := votes[types.IntentDebug] + votes[types.IntentRefactor] +
		votes[types.IntentGenerate] + votes[types.IntentExplain]

	result := IntentResult{Intent: types.IntentExplain, Confidence: 0.5, Votes: votes}
	if total == 0 {
		logging.PipelineDebug("Intent: no keyword signals, defaulting to EXPLAIN")
		return result
	}

	// Debug semantics take absolute precedence: a single debug signal wins.
	switch {
	case votes[types.IntentDebug] > 0:
		result.Intent = types.IntentDebug
		result.Confidence = float64(votes[types.IntentDebug]) / float64(total)
	case votes[types.IntentRefactor] > 0 && votes[types.IntentRefactor] >= votes[types.IntentGenerate]:
		result.Intent = types.IntentRefactor
		result.Confidence = float64(votes[types.IntentRefactor]) / float64(total)
	case votes[types.IntentGenerate] > 0:
		result.Intent = types.IntentGenerate
		result.Confidence = float64(votes[types.IntentGenerate]) / float64(total)
	default:
		result.Intent = types.IntentExplain
		result.Confidence = float64(votes[types.IntentExplain]) / float64(total)
	}

	logging.PipelineDebug("Intent: %s confidence=%.2f votes=%v", result.Intent, result.Confidence, votes)
	return result
}

func countMatches(lower string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}
