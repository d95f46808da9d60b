package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptforge/internal/types"
)

// ideaOfTokens builds an idea of exactly n neutral tokens: no intent
// keywords, no connectors, no technical phrases.
func ideaOfTokens(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = "gleaming"
	}
	return strings.Join(words, " ")
}

// =============================================================================
// INTENT
// =============================================================================

func TestClassifyIntentTable(t *testing.T) {
	c := NewClassifier()
	tests := []struct {
		name string
		idea string
		want types.Intent
	}{
		{"debug_keyword", "fix the traceback in the importer", types.IntentDebug},
		{"refactor_keyword", "refactor the importer into smaller pieces", types.IntentRefactor},
		{"generate_keyword", "build a csv importer", types.IntentGenerate},
		{"explain_keyword", "explain how the importer works", types.IntentExplain},
		{"case_insensitive", "FIX THE BROKEN importer", types.IntentDebug},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.idea)
			assert.Equal(t, tt.want, got.Intent)
		})
	}
}

func TestClassifyNoSignalsDefaultsToExplain(t *testing.T) {
	got := NewClassifier().Classify(ideaOfTokens(6))
	assert.Equal(t, types.IntentExplain, got.Intent)
	assert.Equal(t, 0.5, got.Confidence)
}

func TestClassifyDebugTakesPrecedence(t *testing.T) {
	// One debug signal outweighs any number of generate signals.
	got := NewClassifier().Classify("create and build a tool to fix the importer")
	assert.Equal(t, types.IntentDebug, got.Intent)
}

func TestClassifyRefactorWinsTieAgainstGenerate(t *testing.T) {
	got := NewClassifier().Classify("refactor the importer and make it faster")
	assert.Equal(t, types.IntentRefactor, got.Intent)
}

func TestClassifyConfidenceIsVoteShare(t *testing.T) {
	// debug=1 (fix), generate=4 (create, build, write, implement): the winner
	// holds 1 of 5 signals and the confidence is exactly that ratio.
	got := NewClassifier().Classify("fix the pipeline so it can create, build, write and implement steps")
	require.Equal(t, types.IntentDebug, got.Intent)
	assert.InDelta(t, 0.2, got.Confidence, 1e-9)
	assert.Equal(t, 1, got.Votes[types.IntentDebug])
	assert.Equal(t, 4, got.Votes[types.IntentGenerate])
}

func TestClassifySingleSignalIsFullConfidence(t *testing.T) {
	got := NewClassifier().Classify("explain the importer module")
	require.Equal(t, types.IntentExplain, got.Intent)
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)
}

// =============================================================================
// COMPLEXITY
// =============================================================================

func TestAnalyzeTokenBoundaries(t *testing.T) {
	a := NewAnalyzer()
	tests := []struct {
		name   string
		tokens int
		want   types.Complexity
	}{
		{"fifteen_tokens_simple", 15, types.ComplexitySimple},
		{"sixteen_tokens_moderate", 16, types.ComplexityModerate},
		{"thirty_tokens_moderate", 30, types.ComplexityModerate},
		{"thirty_one_tokens_complex", 31, types.ComplexityComplex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Analyze(ideaOfTokens(tt.tokens))
			assert.Equal(t, tt.want, got.Level)
		})
	}
}

func TestAnalyzeConnectorPromotesToModerate(t *testing.T) {
	a := NewAnalyzer()

	got := a.Analyze("sort the names, keep duplicates")
	assert.Equal(t, types.ComplexityModerate, got.Level)
	assert.Contains(t, got.SignalsMatched, "comma")

	got = a.Analyze("sort the names and also keep duplicates")
	assert.Equal(t, types.ComplexityModerate, got.Level)
}

func TestAnalyzeTwoTechnicalPhrasesAreComplex(t *testing.T) {
	got := NewAnalyzer().Analyze("add oauth login backed by redis")
	assert.Equal(t, types.ComplexityComplex, got.Level)
	assert.Contains(t, got.SignalsMatched, "oauth")
	assert.Contains(t, got.SignalsMatched, "redis")
}

func TestAnalyzeSingleTechnicalPhraseStaysSimple(t *testing.T) {
	got := NewAnalyzer().Analyze("wire up the redis client")
	assert.Equal(t, types.ComplexitySimple, got.Level)
}
