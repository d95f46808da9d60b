// Package optimize implements the intent-routed refinement strategies:
// Reflexion for debug requests, OPRO trajectory refinement for everything
// else, and an identity fallback when no model is reachable.
package optimize

import (
	"context"

	"promptforge/internal/llm"
	"promptforge/internal/types"
)

// Generator is the slice of the structured client the optimizers consume.
type Generator interface {
	Generate(ctx context.Context, system, user string, opts llm.GenerateOpts) (types.ImprovementResult, error)
}

// Assembler builds the message pair for a request.
type Assembler interface {
	Assemble(req types.AnalyzedRequest, examples []types.FewShotExample) (system, user string)
}

// Optimizer runs one bounded refinement strategy.
type Optimizer interface {
	Name() string
	Optimize(ctx context.Context, req types.AnalyzedRequest, examples []types.FewShotExample, opts llm.GenerateOpts) (types.ImprovementResult, error)
}

// ForIntent picks the strategy for a classified request: Reflexion owns
// DEBUG, OPRO owns the rest.
func ForIntent(intent types.Intent, reflexion, opro Optimizer) Optimizer {
	if intent == types.IntentDebug {
		return reflexion
	}
	return opro
}
