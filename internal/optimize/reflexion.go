package optimize

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"promptforge/internal/llm"
	"promptforge/internal/logging"
	"promptforge/internal/quality"
	"promptforge/internal/types"
)

// reflexionMaxIterations bounds the error-driven loop.
const reflexionMaxIterations = 2

// errorSymbolRe matches error identifiers in the idea (ZeroDivisionError,
// NullPointerException, ...). These must survive into the improved prompt.
var errorSymbolRe = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*(?:Error|Exception)\b`)

// Reflexion refines debug prompts by feeding a failed candidate's diagnosis
// back into a second attempt.
type Reflexion struct {
	generator Generator
	assembler Assembler
	validator *quality.Validator
}

// NewReflexion wires the strategy.
func NewReflexion(generator Generator, assembler Assembler, validator *quality.Validator) *Reflexion {
	return &Reflexion{generator: generator, assembler: assembler, validator: validator}
}

// Name identifies the strategy in result metadata.
func (r *Reflexion) Name() string { return "reflexion" }

// Optimize runs at most two iterations: generate, diagnose, regenerate with
// the diagnosis prepended, then return the better candidate.
func (r *Reflexion) Optimize(ctx context.Context, req types.AnalyzedRequest, examples []types.FewShotExample, opts llm.GenerateOpts) (types.ImprovementResult, error) {
	system, user := r.assembler.Assemble(req, examples)
	symptoms := errorSymbolRe.FindAllString(req.Idea, -1)

	first, err := r.generator.Generate(ctx, system, user, opts)
	if err == nil {
		diagnosis := r.diagnose(first, symptoms)
		if diagnosis == "" {
			first.Meta.Optimizer = r.Name()
			logging.Pipeline("Reflexion converged at iteration 1")
			return first, nil
		}
		return r.secondPass(ctx, system, user, opts, &first, first.ImprovedPrompt, diagnosis, symptoms)
	}

	// A quality-gate failure still carries the raw candidate; anything else
	// is not recoverable by another iteration.
	llmErr, ok := err.(*llm.Error)
	if !ok || llmErr.Kind != llm.KindQualityGate {
		return types.ImprovementResult{}, err
	}
	return r.secondPass(ctx, system, user, opts, nil, llmErr.RawOutput, llmErr.ValidatorErr, symptoms)
}

// secondPass regenerates with the prior candidate and its diagnosis
// prepended, then picks the better of the two available candidates.
func (r *Reflexion) secondPass(ctx context.Context, system, user string, opts llm.GenerateOpts, first *types.ImprovementResult, priorCandidate, diagnosis string, symptoms []string) (types.ImprovementResult, error) {
	logging.Pipeline("Reflexion iteration 2: %s", diagnosis)

	var sb strings.Builder
	sb.WriteString("A previous attempt at this task failed.\n\nPrevious candidate:\n")
	sb.WriteString(priorCandidate)
	sb.WriteString("\n\nDiagnosis:\n")
	sb.WriteString(diagnosis)
	sb.WriteString("\n\nProduce a corrected answer to the original task below. Fix the diagnosed problem; keep everything that already worked.\n\n")
	sb.WriteString(user)

	second, err := r.generator.Generate(ctx, system, sb.String(), opts)
	if err != nil {
		if first != nil {
			first.Meta.Optimizer = r.Name()
			return *first, nil
		}
		return types.ImprovementResult{}, err
	}

	best := second
	if first != nil && r.better(*first, second, symptoms) {
		best = *first
	}
	best.Meta.Optimizer = r.Name()
	return best, nil
}

// diagnose returns a human-readable defect description, or "" when the
// candidate is acceptable.
func (r *Reflexion) diagnose(result types.ImprovementResult, symptoms []string) string {
	if v := r.validator.ValidatePrompt(result.ImprovedPrompt); v != nil {
		return v.Error()
	}
	for _, symptom := range symptoms {
		if !strings.Contains(result.ImprovedPrompt, symptom) {
			return fmt.Sprintf("the improved prompt does not mention the reported symptom %q verbatim", symptom)
		}
	}
	return ""
}

// better reports whether a beats b: validator pass first, then symptom
// coverage, then confidence.
func (r *Reflexion) better(a, b types.ImprovementResult, symptoms []string) bool {
	aPass := r.diagnose(a, symptoms) == ""
	bPass := r.diagnose(b, symptoms) == ""
	if aPass != bPass {
		return aPass
	}
	return a.Confidence > b.Confidence
}
