package optimize

import (
	"context"
	"strings"

	"promptforge/internal/assemble"
	"promptforge/internal/llm"
	"promptforge/internal/logging"
	"promptforge/internal/types"
)

// Identity is the last-resort strategy when no model is reachable or
// optimization is disabled: it builds a structured prompt directly from the
// analyzed request, with no LLM call. Confidence comes from the analyzer.
type Identity struct{}

// NewIdentity returns the no-op strategy.
func NewIdentity() *Identity { return &Identity{} }

// Name identifies the strategy in result metadata.
func (i *Identity) Name() string { return "identity" }

// Optimize deterministically shapes the request into a usable prompt.
func (i *Identity) Optimize(_ context.Context, req types.AnalyzedRequest, examples []types.FewShotExample, _ llm.GenerateOpts) (types.ImprovementResult, error) {
	logging.Pipeline("Identity optimizer: no model call, shaping request directly")

	role := assemble.RoleFor(req.Intent, req.Complexity)
	idea := req.Normalized().Idea

	var sb strings.Builder
	sb.WriteString("# ")
	sb.WriteString(titleFor(req.Intent))
	sb.WriteString("\n\nAct as a ")
	sb.WriteString(role)
	sb.WriteString(".\n\n## Task\n")
	sb.WriteString(idea)
	sb.WriteString("\n")
	if ctx := strings.TrimSpace(req.Context); ctx != "" {
		sb.WriteString("\n## Context\n")
		sb.WriteString(ctx)
		sb.WriteString("\n")
	}
	if len(examples) > 0 {
		sb.WriteString("\n## Reference\nFollow the structure of this pattern:\n")
		sb.WriteString(examples[0].Output)
		sb.WriteString("\n")
	}
	sb.WriteString("\n## Expectations\nState your approach before the result. Be explicit about inputs, outputs, and edge cases.\n")

	return types.ImprovementResult{
		ImprovedPrompt: sb.String(),
		Confidence:     req.Confidence,
		Meta:           types.ResultMeta{Optimizer: i.Name()},
	}, nil
}

func titleFor(intent types.Intent) string {
	switch intent {
	case types.IntentDebug:
		return "Debugging Task"
	case types.IntentRefactor:
		return "Refactoring Task"
	case types.IntentGenerate:
		return "Implementation Task"
	default:
		return "Explanation Task"
	}
}
