package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSchema(t *testing.T) *ResultSchema {
	t.Helper()
	s, err := NewResultSchema(3, 5)
	require.NoError(t, err)
	return s
}

func TestDecodeValidPayload(t *testing.T) {
	s := newTestSchema(t)

	result, err := s.Decode(`{
		"improved_prompt": "# Task\nDo the thing.",
		"clarifying_questions": ["Which language?"],
		"assumptions": ["Go 1.24"],
		"confidence": 0.85
	}`)
	require.NoError(t, err)
	assert.Equal(t, "# Task\nDo the thing.", result.ImprovedPrompt)
	assert.Equal(t, []string{"Which language?"}, result.ClarifyingQuestions)
	assert.Equal(t, []string{"Go 1.24"}, result.Assumptions)
	assert.InDelta(t, 0.85, result.Confidence, 1e-9)
}

func TestDecodeCoercesScalarToArray(t *testing.T) {
	s := newTestSchema(t)

	result, err := s.Decode(`{
		"improved_prompt": "p",
		"clarifying_questions": "Just one question?",
		"assumptions": "One assumption",
		"confidence": 0.5
	}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Just one question?"}, result.ClarifyingQuestions)
	assert.Equal(t, []string{"One assumption"}, result.Assumptions)
}

func TestDecodeClampsConfidence(t *testing.T) {
	s := newTestSchema(t)

	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"above_one", "1.5", 1.0},
		{"below_zero", "-0.2", 0.0},
		{"exact_one", "1.0", 1.0},
		{"exact_zero", "0.0", 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.Decode(`{"improved_prompt":"p","clarifying_questions":[],"assumptions":[],"confidence":` + tt.in + `}`)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Confidence)
		})
	}
}

func TestDecodeDedupsAndTruncatesLists(t *testing.T) {
	s := newTestSchema(t)

	result, err := s.Decode(`{
		"improved_prompt": "p",
		"clarifying_questions": ["A?", "a?", " B? ", "C?", "D?", "E?"],
		"assumptions": [],
		"confidence": 0.7
	}`)
	require.NoError(t, err)
	// Case-insensitive dedup keeps the first spelling; cap is 3.
	assert.Equal(t, []string{"A?", "B?", "C?"}, result.ClarifyingQuestions)
}

func TestDecodeRejectsMissingField(t *testing.T) {
	s := newTestSchema(t)

	_, err := s.Decode(`{"improved_prompt": "p", "confidence": 0.5}`)
	require.Error(t, err)
	llmErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindSchema, llmErr.Kind)
	assert.NotEmpty(t, llmErr.ValidatorErr)
}

func TestDecodeRejectsEmptyPrompt(t *testing.T) {
	s := newTestSchema(t)

	_, err := s.Decode(`{"improved_prompt":"","clarifying_questions":[],"assumptions":[],"confidence":0.5}`)
	require.Error(t, err)
	assert.Equal(t, KindSchema, KindOf(err))
}

func TestDecodeRejectsNonObject(t *testing.T) {
	s := newTestSchema(t)

	_, err := s.Decode(`["not", "an", "object"]`)
	require.Error(t, err)
	assert.Equal(t, KindNonJSON, KindOf(err))
}

func TestDecodeRejectsNullLists(t *testing.T) {
	s := newTestSchema(t)

	_, err := s.Decode(`{"improved_prompt":"p","clarifying_questions":null,"assumptions":null,"confidence":0.5}`)
	require.Error(t, err)
	assert.Equal(t, KindSchema, KindOf(err))
}
