// Package pipeline wires the classifier, retriever, assembler, optimizers,
// cache, and stores into the single Improve entry point the CLI calls.
package pipeline

import (
	"context"

	"promptforge/internal/cache"
	"promptforge/internal/classify"
	"promptforge/internal/fewshot"
	"promptforge/internal/history"
	"promptforge/internal/llm"
	"promptforge/internal/logging"
	"promptforge/internal/metrics"
	"promptforge/internal/optimize"
	"promptforge/internal/quality"
	"promptforge/internal/types"
)

// Retriever is the slice of the few-shot provider the engine consumes.
type Retriever interface {
	FindExamples(query string, intent types.Intent, complexity types.Complexity, k int, requireExpectedOutput bool) []types.FewShotExample
}

// Engine is the improvement orchestrator. All ports are injected at
// construction; the engine itself holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	cfg        defaults
	classifier *classify.Classifier
	analyzer   *classify.Analyzer
	validator  *quality.Validator
	retriever  Retriever
	flight     *cache.SingleFlight

	reflexion optimize.Optimizer
	opro      optimize.Optimizer
	identity  optimize.Optimizer

	history *history.Store
	metrics *metrics.Store
	source  types.EngineTag
}

// defaults is the subset of the application config the engine reads per call.
type defaults struct {
	model            string
	fallbackModel    string
	timeoutMS        int
	temperature      float64
	maxAttempts      int
	enableAutoRepair bool
}

// Options carries the engine's injected ports. History and Metrics are
// optional; a nil store disables that sink.
type Options struct {
	Generator optimize.Generator
	Assembler optimize.Assembler
	Validator *quality.Validator
	Retriever Retriever
	Store     cache.Store
	History   *history.Store
	Metrics   *metrics.Store
	Source    types.EngineTag

	Model            string
	FallbackModel    string
	TimeoutMS        int
	Temperature      float64
	MaxAttempts      int
	EnableAutoRepair bool
}

// New builds the engine from its ports.
func New(opts Options) *Engine {
	source := opts.Source
	if source == "" {
		source = types.EngineOllama
	}
	return &Engine{
		cfg: defaults{
			model:            opts.Model,
			fallbackModel:    opts.FallbackModel,
			timeoutMS:        opts.TimeoutMS,
			temperature:      opts.Temperature,
			maxAttempts:      opts.MaxAttempts,
			enableAutoRepair: opts.EnableAutoRepair,
		},
		classifier: classify.NewClassifier(),
		analyzer:   classify.NewAnalyzer(),
		validator:  opts.Validator,
		retriever:  opts.Retriever,
		flight:     cache.NewSingleFlight(opts.Store),
		reflexion:  optimize.NewReflexion(opts.Generator, opts.Assembler, opts.Validator),
		opro:       optimize.NewOPRO(opts.Generator, opts.Assembler, opts.Validator),
		identity:   optimize.NewIdentity(),
		history:    opts.History,
		metrics:    opts.Metrics,
		source:     source,
	}
}

// Improve runs one request through the full pipeline: validate, classify,
// analyze, then compute the improvement under the single-flight cache.
// Concurrent identical requests share one LLM call; a cache hit skips the
// model entirely.
func (e *Engine) Improve(ctx context.Context, req types.ImproveRequest) (types.ImprovementResult, error) {
	if err := req.Validate(); err != nil {
		return types.ImprovementResult{}, err
	}
	req = e.withDefaults(req.Normalized())

	intent := e.classifier.Classify(req.Idea)
	complexity := e.analyzer.Analyze(req.Idea)
	analyzed := types.AnalyzedRequest{
		ImproveRequest: req,
		Intent:         intent.Intent,
		Complexity:     complexity.Level,
		Confidence:     intent.Confidence,
	}
	logging.Pipeline("Improve: intent=%s complexity=%s preset=%s model=%s",
		analyzed.Intent, analyzed.Complexity, req.Preset, req.Model)

	key := cache.KeyFor(req)
	result, hit, err := e.flight.Do(ctx, key, func(ctx context.Context) (types.ImprovementResult, error) {
		return e.compute(ctx, analyzed)
	})
	if err != nil {
		e.record(analyzed, types.ImprovementResult{}, false, err)
		return types.ImprovementResult{}, err
	}

	result.Meta.CacheHit = hit
	soft := e.validator.Soft(result.Confidence, len(result.ClarifyingQuestions), len(result.Assumptions))
	result.Meta.LowConfidence = soft.LowConfidence
	if hit {
		logging.Cache("Improve served from cache: key=%s", key[:12])
	}

	e.record(analyzed, result, hit, nil)
	if !hit {
		e.remember(analyzed, result)
	}
	return result, nil
}

// compute is the cache-miss path: retrieve exemplars, pick the strategy for
// the intent, and run it. An unreachable transport degrades to the identity
// optimizer instead of failing the request.
func (e *Engine) compute(ctx context.Context, analyzed types.AnalyzedRequest) (types.ImprovementResult, error) {
	k := fewshot.DefaultK(analyzed.Complexity)
	examples := e.retriever.FindExamples(
		analyzed.Idea, analyzed.Intent, analyzed.Complexity, k,
		analyzed.Intent == types.IntentRefactor,
	)

	opts := llm.GenerateOpts{
		Model:            analyzed.Model,
		FallbackModel:    analyzed.FallbackModel,
		TimeoutMS:        analyzed.TimeoutMS,
		Temperature:      e.cfg.temperature,
		MaxAttempts:      e.cfg.maxAttempts,
		EnableAutoRepair: e.cfg.enableAutoRepair,
		OriginalIdea:     analyzed.Idea,
	}

	strategy := optimize.ForIntent(analyzed.Intent, e.reflexion, e.opro)
	result, err := strategy.Optimize(ctx, analyzed, examples, opts)
	if err != nil {
		if llm.KindOf(err) != llm.KindConnection {
			return types.ImprovementResult{}, err
		}
		logging.Pipeline("Transport unreachable, degrading to identity optimizer: %v", err)
		result, err = e.identity.Optimize(ctx, analyzed, examples, opts)
		if err != nil {
			return types.ImprovementResult{}, err
		}
	}
	return result, nil
}

// withDefaults fills per-request blanks from the engine configuration. The
// model is resolved before cache keying so explicit and defaulted requests
// for the same model share an entry.
func (e *Engine) withDefaults(req types.ImproveRequest) types.ImproveRequest {
	if req.Model == "" {
		req.Model = e.cfg.model
	}
	if req.FallbackModel == "" {
		req.FallbackModel = e.cfg.fallbackModel
	}
	if req.TimeoutMS <= 0 {
		req.TimeoutMS = e.cfg.timeoutMS
	}
	if req.Preset == "" {
		req.Preset = types.PresetDefault
	}
	if req.Mode == "" {
		req.Mode = types.ModeLocal
	}
	return req
}

// record writes the metrics row. Best-effort: a nil store or a write failure
// never affects the request.
func (e *Engine) record(analyzed types.AnalyzedRequest, result types.ImprovementResult, hit bool, err error) {
	if e.metrics == nil {
		return
	}
	row := metrics.Row{
		Intent:     analyzed.Intent,
		Complexity: analyzed.Complexity,
		Preset:     analyzed.Preset,
		Model:      analyzed.Model,
		CacheHit:   hit,
	}
	if err == nil {
		row.Attempt = result.Meta.Attempt
		row.UsedRepair = result.Meta.UsedRepair
		row.UsedExtraction = result.Meta.UsedExtraction
		row.LatencyMS = result.Meta.LatencyMS
		row.Confidence = result.Confidence
		row.Optimizer = result.Meta.Optimizer
		row.Score = result.Confidence
	} else if meta, ok := llm.MetaOf(err); ok {
		row.Attempt = meta.Attempt
		row.UsedRepair = meta.UsedRepair
		row.UsedExtraction = meta.UsedExtraction
		row.LatencyMS = meta.LatencyMS
	}
	e.metrics.Record(row)
}

// remember appends the result to the prompt history. Cache hits are not
// re-recorded; failures are logged and swallowed.
func (e *Engine) remember(analyzed types.AnalyzedRequest, result types.ImprovementResult) {
	if e.history == nil {
		return
	}
	_, err := e.history.Save(types.HistoryEntry{
		Prompt: result.ImprovedPrompt,
		Meta: &types.HistoryMeta{
			Confidence:  result.Confidence,
			Questions:   result.ClarifyingQuestions,
			Assumptions: result.Assumptions,
		},
		Source:      e.source,
		InputLength: len(analyzed.Idea),
		Preset:      string(analyzed.Preset),
	})
	if err != nil {
		logging.HistoryWarn("Failed to save history entry: %v", err)
	}
}
