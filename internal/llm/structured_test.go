package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptforge/internal/config"
	"promptforge/internal/quality"
	"promptforge/internal/types"
)

// scriptedTransport returns canned responses (or errors) in order and records
// every request it saw.
type scriptedTransport struct {
	responses []string
	errs      []error
	calls     []Request
}

func (s *scriptedTransport) Name() string { return "scripted" }

func (s *scriptedTransport) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	idx := len(s.calls)
	s.calls = append(s.calls, req)
	if idx < len(s.errs) && s.errs[idx] != nil {
		return "", s.errs[idx]
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	return "", &Error{Kind: KindInternal, Msg: "script exhausted"}
}

const goodJSON = `{"improved_prompt":"# Task\nWrite a parser.","clarifying_questions":[],"assumptions":[],"confidence":0.9}`

func newTestClient(t *testing.T, transport Transport) *StructuredClient {
	t.Helper()
	schema, err := NewResultSchema(3, 5)
	require.NoError(t, err)
	validator := quality.NewValidator(config.DefaultQualityConfig())
	return NewStructuredClient(transport, schema, validator)
}

func defaultOpts() GenerateOpts {
	return GenerateOpts{
		Model:            "llama3.1",
		MaxAttempts:      2,
		EnableAutoRepair: true,
		OriginalIdea:     "write a parser",
	}
}

func TestGenerateHappyPath(t *testing.T) {
	transport := &scriptedTransport{responses: []string{goodJSON}}
	client := newTestClient(t, transport)

	result, err := client.Generate(context.Background(), "sys", "user", defaultOpts())
	require.NoError(t, err)
	assert.Equal(t, "# Task\nWrite a parser.", result.ImprovedPrompt)
	assert.Equal(t, 1, result.Meta.Attempt)
	assert.False(t, result.Meta.UsedRepair)
	assert.False(t, result.Meta.UsedExtraction)
	assert.Equal(t, MethodStrict, result.Meta.ExtractionMethod)
	assert.Len(t, transport.calls, 1)
}

func TestGenerateExtractsFromProse(t *testing.T) {
	transport := &scriptedTransport{responses: []string{"Here is the result:\n```json\n" + goodJSON + "\n```"}}
	client := newTestClient(t, transport)

	result, err := client.Generate(context.Background(), "sys", "user", defaultOpts())
	require.NoError(t, err)
	assert.True(t, result.Meta.UsedExtraction)
	assert.Equal(t, MethodFenced, result.Meta.ExtractionMethod)
}

func TestGenerateRepairsNonJSON(t *testing.T) {
	transport := &scriptedTransport{responses: []string{"I'd be happy to help!", goodJSON}}
	client := newTestClient(t, transport)

	result, err := client.Generate(context.Background(), "sys", "user", defaultOpts())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Meta.Attempt)
	assert.True(t, result.Meta.UsedRepair)
	require.Len(t, transport.calls, 2)

	// The repair prompt restates the invalid output and the original idea.
	repair := transport.calls[1]
	assert.Contains(t, repair.User, "I'd be happy to help!")
	assert.Contains(t, repair.User, "write a parser")
	assert.Contains(t, repair.User, "ONLY valid JSON")
}

func TestGenerateRepairsQualityViolation(t *testing.T) {
	leaked := `{"improved_prompt":"Task: rewrite the following","clarifying_questions":[],"assumptions":[],"confidence":0.8}`
	transport := &scriptedTransport{responses: []string{leaked, goodJSON}}
	client := newTestClient(t, transport)

	result, err := client.Generate(context.Background(), "sys", "user", defaultOpts())
	require.NoError(t, err)
	assert.True(t, result.Meta.UsedRepair)

	repair := transport.calls[1]
	assert.Contains(t, repair.User, quality.RuleMetaLine)
}

func TestGenerateFailsAfterSecondQualityViolation(t *testing.T) {
	leaked := `{"improved_prompt":"Task: rewrite the following","clarifying_questions":[],"assumptions":[],"confidence":0.8}`
	transport := &scriptedTransport{responses: []string{leaked, leaked}}
	client := newTestClient(t, transport)

	_, err := client.Generate(context.Background(), "sys", "user", defaultOpts())
	require.Error(t, err)
	assert.Equal(t, KindQualityGate, KindOf(err))

	llmErr := err.(*Error)
	assert.Equal(t, 2, llmErr.Meta.Attempt)
	assert.NotEmpty(t, llmErr.RawOutput)
	assert.NotEmpty(t, llmErr.ValidatorErr)
}

func TestGenerateNoRepairWhenDisabled(t *testing.T) {
	transport := &scriptedTransport{responses: []string{"not json at all", goodJSON}}
	client := newTestClient(t, transport)

	opts := defaultOpts()
	opts.EnableAutoRepair = false
	_, err := client.Generate(context.Background(), "sys", "user", opts)
	require.Error(t, err)
	assert.Equal(t, KindNonJSON, KindOf(err))
	assert.Len(t, transport.calls, 1)
}

func TestGenerateFallbackOnModelNotFound(t *testing.T) {
	transport := &scriptedTransport{
		errs:      []error{&Error{Kind: KindModelNotFound, Msg: "model missing not found"}},
		responses: []string{"", goodJSON},
	}
	client := newTestClient(t, transport)

	opts := defaultOpts()
	opts.Model = "missing"
	opts.FallbackModel = "llama3.1"
	result, err := client.Generate(context.Background(), "sys", "user", opts)
	require.NoError(t, err)
	assert.Equal(t, "llama3.1", result.Meta.Model)
	require.Len(t, transport.calls, 2)
	assert.Equal(t, "missing", transport.calls[0].Model)
	assert.Equal(t, "llama3.1", transport.calls[1].Model)
}

func TestGenerateNoFallbackOnTimeout(t *testing.T) {
	transport := &scriptedTransport{
		errs: []error{&Error{Kind: KindTimeout, Msg: "deadline exceeded"}},
	}
	client := newTestClient(t, transport)

	opts := defaultOpts()
	opts.FallbackModel = "other"
	_, err := client.Generate(context.Background(), "sys", "user", opts)
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Len(t, transport.calls, 1)
}

func TestGenerateFallbackAfterFailedRepair(t *testing.T) {
	// Primary model never produces JSON even after repair; fallback succeeds.
	transport := &scriptedTransport{responses: []string{"nope", "still nope", goodJSON}}
	client := newTestClient(t, transport)

	opts := defaultOpts()
	opts.FallbackModel = "backup"
	result, err := client.Generate(context.Background(), "sys", "user", opts)
	require.NoError(t, err)
	assert.Equal(t, "backup", result.Meta.Model)
	assert.Len(t, transport.calls, 3)
}

func TestGenerateCancellationSurfacesUntouched(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport := &scriptedTransport{responses: []string{goodJSON}}
	client := newTestClient(t, transport)

	opts := defaultOpts()
	opts.FallbackModel = "other"
	_, err := client.Generate(ctx, "sys", "user", opts)
	require.Error(t, err)
	assert.Equal(t, KindCancelled, KindOf(err))
	// Cancellation is never fallback-worthy.
	assert.Empty(t, transport.calls)
}

func TestGenerateSystemAndUserStaySeparate(t *testing.T) {
	transport := &scriptedTransport{responses: []string{goodJSON}}
	client := newTestClient(t, transport)

	_, err := client.Generate(context.Background(), "the system prompt", "the user prompt", defaultOpts())
	require.NoError(t, err)
	require.Len(t, transport.calls, 1)
	assert.Equal(t, "the system prompt", transport.calls[0].System)
	assert.Equal(t, "the user prompt", transport.calls[0].User)
}

func TestHintFor(t *testing.T) {
	tests := []struct {
		name string
		text string
		mode string
		want string
	}{
		{"local_conn_refused", "dial tcp 127.0.0.1:11434: connection refused", "local", HintStartOllama},
		{"remote_conn_refused", "dial tcp: connection refused", "remote", HintCheckBaseURL},
		{"model_missing", "model llama9 not found", "local", HintPullModel},
		{"timeout", "context deadline exceeded", "local", HintSlowModel},
		{"unauthorized", "401 unauthorized", "remote", HintCheckAPIKey},
		{"rate_limited", "429 too many requests", "remote", HintRateLimited},
		{"no_match", "something else entirely", "local", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HintFor(tt.text, types.ParseExecMode(tt.mode)))
		})
	}
}
