package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptforge/internal/assemble"
	"promptforge/internal/cache"
	"promptforge/internal/config"
	"promptforge/internal/history"
	"promptforge/internal/llm"
	"promptforge/internal/metrics"
	"promptforge/internal/quality"
	"promptforge/internal/types"
)

// countingGenerator returns a fixed result (or error) and counts calls. An
// optional gate lets tests hold the call open to force concurrency overlap.
type countingGenerator struct {
	mu      sync.Mutex
	calls   int
	result  types.ImprovementResult
	err     error
	started chan struct{}
	release chan struct{}
}

func (g *countingGenerator) Generate(ctx context.Context, _, _ string, _ llm.GenerateOpts) (types.ImprovementResult, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	if g.started != nil {
		g.started <- struct{}{}
	}
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return types.ImprovementResult{}, ctx.Err()
		}
	}
	if g.err != nil {
		return types.ImprovementResult{}, g.err
	}
	return g.result, nil
}

func (g *countingGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// recordingRetriever returns a fixed example set and remembers the flags of
// the last query.
type recordingRetriever struct {
	mu                    sync.Mutex
	examples              []types.FewShotExample
	lastIntent            types.Intent
	lastK                 int
	requireExpectedOutput bool
}

func (r *recordingRetriever) FindExamples(_ string, intent types.Intent, _ types.Complexity, k int, requireExpectedOutput bool) []types.FewShotExample {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastIntent = intent
	r.lastK = k
	r.requireExpectedOutput = requireExpectedOutput
	return r.examples
}

func passingResult(conf float64) types.ImprovementResult {
	return types.ImprovementResult{
		ImprovedPrompt: "# Build It\n\n## Task\nWrite the parser described below with explicit edge cases.",
		Confidence:     conf,
	}
}

func debugResult() types.ImprovementResult {
	return types.ImprovementResult{
		ImprovedPrompt: "# Debug Session\n\n## Task\nResolve the ZeroDivisionError raised when the divisor comes from user input.",
		Confidence:     0.9,
	}
}

type engineFixture struct {
	engine    *Engine
	generator *countingGenerator
	retriever *recordingRetriever
}

func newFixture(t *testing.T, gen *countingGenerator, mutate func(*Options)) engineFixture {
	t.Helper()
	retriever := &recordingRetriever{}
	opts := Options{
		Generator:        gen,
		Assembler:        assemble.New(),
		Validator:        quality.NewValidator(config.DefaultQualityConfig()),
		Retriever:        retriever,
		Store:            cache.NewMemory(64, 0),
		Model:            "llama3.1",
		FallbackModel:    "",
		TimeoutMS:        60000,
		MaxAttempts:      2,
		EnableAutoRepair: true,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return engineFixture{engine: New(opts), generator: gen, retriever: retriever}
}

// =============================================================================
// INPUT VALIDATION
// =============================================================================

func TestImproveRejectsShortIdea(t *testing.T) {
	fx := newFixture(t, &countingGenerator{result: passingResult(0.9)}, nil)

	_, err := fx.engine.Improve(context.Background(), types.ImproveRequest{Idea: "tiny"})
	var inputErr *types.InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "idea", inputErr.Field)
	assert.Zero(t, fx.generator.callCount(), "invalid input must never reach the model")

	// Five trimmed characters is the acceptance boundary.
	_, err = fx.engine.Improve(context.Background(), types.ImproveRequest{Idea: "  tools  "})
	require.NoError(t, err)
	assert.Equal(t, 1, fx.generator.callCount())
}

// =============================================================================
// CACHING
// =============================================================================

func TestImproveCacheMissThenHit(t *testing.T) {
	fx := newFixture(t, &countingGenerator{result: passingResult(0.9)}, nil)
	req := types.ImproveRequest{Idea: "write a function to reverse a string"}

	first, err := fx.engine.Improve(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Meta.CacheHit)

	second, err := fx.engine.Improve(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Meta.CacheHit)
	assert.Equal(t, 1, fx.generator.callCount(), "cache hit must skip the model")

	if diff := cmp.Diff(first, second, cmpopts.IgnoreFields(types.ImprovementResult{}, "Meta")); diff != "" {
		t.Errorf("cached result differs from original (-first +second):\n%s", diff)
	}
}

func TestImproveWhitespaceVariantsShareCacheEntry(t *testing.T) {
	fx := newFixture(t, &countingGenerator{result: passingResult(0.9)}, nil)

	_, err := fx.engine.Improve(context.Background(), types.ImproveRequest{Idea: "write a   function to reverse a string"})
	require.NoError(t, err)
	got, err := fx.engine.Improve(context.Background(), types.ImproveRequest{Idea: "  write a function to reverse a string  "})
	require.NoError(t, err)

	assert.True(t, got.Meta.CacheHit)
	assert.Equal(t, 1, fx.generator.callCount())
}

func TestImproveConcurrentIdenticalRequestsShareOneCall(t *testing.T) {
	gen := &countingGenerator{
		result:  passingResult(0.9),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	fx := newFixture(t, gen, nil)
	req := types.ImproveRequest{Idea: "write a function to reverse a string"}

	const callers = 8
	results := make([]types.ImprovementResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = fx.engine.Improve(context.Background(), req)
		}(i)
	}

	<-gen.started
	close(gen.release)
	wg.Wait()

	assert.Equal(t, 1, gen.callCount(), "concurrent identical requests must share one model call")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, passingResult(0.9).ImprovedPrompt, results[i].ImprovedPrompt)
	}
}

func TestImproveFailureIsNotCached(t *testing.T) {
	gen := &countingGenerator{err: &llm.Error{Kind: llm.KindTimeout, Msg: "deadline"}}
	fx := newFixture(t, gen, nil)
	req := types.ImproveRequest{Idea: "write a function to reverse a string"}

	_, err := fx.engine.Improve(context.Background(), req)
	require.Error(t, err)
	_, err = fx.engine.Improve(context.Background(), req)
	require.Error(t, err)

	assert.Equal(t, 2, gen.callCount(), "errors must not be served from cache")
}

// =============================================================================
// ROUTING
// =============================================================================

func TestImproveRoutesDebugToReflexion(t *testing.T) {
	fx := newFixture(t, &countingGenerator{result: debugResult()}, nil)

	got, err := fx.engine.Improve(context.Background(),
		types.ImproveRequest{Idea: "fix ZeroDivisionError when dividing by user input"})
	require.NoError(t, err)
	assert.Equal(t, "reflexion", got.Meta.Optimizer)
	assert.Equal(t, types.IntentDebug, fx.retriever.lastIntent)
}

func TestImproveRoutesGenerateToOPRO(t *testing.T) {
	fx := newFixture(t, &countingGenerator{result: passingResult(0.9)}, nil)

	got, err := fx.engine.Improve(context.Background(),
		types.ImproveRequest{Idea: "write a function to reverse a string"})
	require.NoError(t, err)
	assert.Equal(t, "opro", got.Meta.Optimizer)
	assert.Equal(t, 3, fx.retriever.lastK, "simple requests retrieve three exemplars")
}

func TestImproveRefactorRequiresExpectedOutput(t *testing.T) {
	fx := newFixture(t, &countingGenerator{result: passingResult(0.9)}, nil)

	_, err := fx.engine.Improve(context.Background(),
		types.ImproveRequest{Idea: "refactor this parser into smaller functions"})
	require.NoError(t, err)
	assert.Equal(t, types.IntentRefactor, fx.retriever.lastIntent)
	assert.True(t, fx.retriever.requireExpectedOutput)
}

func TestImproveIdentityFallbackWhenTransportUnreachable(t *testing.T) {
	gen := &countingGenerator{err: &llm.Error{Kind: llm.KindConnection, Msg: "connection refused"}}
	fx := newFixture(t, gen, nil)

	got, err := fx.engine.Improve(context.Background(),
		types.ImproveRequest{Idea: "write a function to reverse a string"})
	require.NoError(t, err, "unreachable transport degrades, never fails")
	assert.Equal(t, "identity", got.Meta.Optimizer)
	assert.Contains(t, got.ImprovedPrompt, "reverse a string")
}

func TestImproveTimeoutErrorPropagates(t *testing.T) {
	gen := &countingGenerator{err: &llm.Error{Kind: llm.KindTimeout, Msg: "deadline"}}
	fx := newFixture(t, gen, nil)

	_, err := fx.engine.Improve(context.Background(),
		types.ImproveRequest{Idea: "write a function to reverse a string"})
	require.Error(t, err)
	assert.Equal(t, llm.KindTimeout, llm.KindOf(err))
}

func TestImproveCancellationSurfacesVerbatim(t *testing.T) {
	gen := &countingGenerator{
		result:  passingResult(0.9),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	fx := newFixture(t, gen, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := fx.engine.Improve(ctx, types.ImproveRequest{Idea: "write a function to reverse a string"})
		done <- err
	}()

	<-gen.started
	cancel()
	err := <-done
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	close(gen.release)
}

// =============================================================================
// SOFT SIGNALS + SINKS
// =============================================================================

func TestImproveFlagsLowConfidence(t *testing.T) {
	fx := newFixture(t, &countingGenerator{result: passingResult(0.2)}, nil)

	got, err := fx.engine.Improve(context.Background(),
		types.ImproveRequest{Idea: "write a function to reverse a string"})
	require.NoError(t, err)
	assert.True(t, got.Meta.LowConfidence)
}

func TestImproveRecordsHistoryAndMetrics(t *testing.T) {
	dir := t.TempDir()
	hist, err := history.NewStore(filepath.Join(dir, "history.jsonl"), 20)
	require.NoError(t, err)
	met, err := metrics.NewStore(filepath.Join(dir, "metrics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { met.Close() })

	fx := newFixture(t, &countingGenerator{result: passingResult(0.9)}, func(o *Options) {
		o.History = hist
		o.Metrics = met
	})
	req := types.ImproveRequest{Idea: "write a function to reverse a string"}

	_, err = fx.engine.Improve(context.Background(), req)
	require.NoError(t, err)
	_, err = fx.engine.Improve(context.Background(), req)
	require.NoError(t, err)

	entries := hist.List(0)
	require.Len(t, entries, 1, "cache hits are not re-recorded in history")
	assert.Equal(t, passingResult(0.9).ImprovedPrompt, entries[0].Prompt)
	assert.Equal(t, types.EngineOllama, entries[0].Source)

	rows, err := met.Recent(10)
	require.NoError(t, err)
	require.Len(t, rows, 2, "every request gets a metrics row, hits included")
	hits := 0
	for _, row := range rows {
		if row.CacheHit {
			hits++
		}
		assert.Equal(t, types.IntentGenerate, row.Intent)
	}
	assert.Equal(t, 1, hits)
}

func TestImproveComplexIdeaRetrievesFiveExamples(t *testing.T) {
	fx := newFixture(t, &countingGenerator{result: passingResult(0.9)}, nil)

	idea := "build a REST api with oauth authentication, redis cache, rate limit middleware, and database migration support"
	_, err := fx.engine.Improve(context.Background(), types.ImproveRequest{Idea: idea})
	require.NoError(t, err)
	assert.Equal(t, 5, fx.retriever.lastK)
}

func TestImproveDistinctRequestsDoNotShareCache(t *testing.T) {
	fx := newFixture(t, &countingGenerator{result: passingResult(0.9)}, nil)

	for i := 0; i < 3; i++ {
		_, err := fx.engine.Improve(context.Background(),
			types.ImproveRequest{Idea: fmt.Sprintf("write a function to reverse a string v%d", i)})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, fx.generator.callCount())
}
