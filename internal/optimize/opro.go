package optimize

import (
	"context"
	"fmt"
	"strings"

	"promptforge/internal/llm"
	"promptforge/internal/logging"
	"promptforge/internal/quality"
	"promptforge/internal/types"
)

// oproMaxIterations bounds the trajectory loop; earlyStopScore short-circuits
// it as soon as a candidate cannot be beaten.
const (
	oproMaxIterations = 3
	earlyStopScore    = 1.0
)

// candidate is one trajectory entry: what the model produced, how it scored,
// and what the validator said about it.
type candidate struct {
	result   types.ImprovementResult
	score    float64
	feedback string
}

// OPRO refines prompts by showing the model its own prior candidates and
// scores and asking for something better.
type OPRO struct {
	generator Generator
	assembler Assembler
	validator *quality.Validator
}

// NewOPRO wires the strategy.
func NewOPRO(generator Generator, assembler Assembler, validator *quality.Validator) *OPRO {
	return &OPRO{generator: generator, assembler: assembler, validator: validator}
}

// Name identifies the strategy in result metadata.
func (o *OPRO) Name() string { return "opro" }

// Optimize runs up to three iterations, each fed the full trajectory so far,
// and returns the highest-scoring candidate.
func (o *OPRO) Optimize(ctx context.Context, req types.AnalyzedRequest, examples []types.FewShotExample, opts llm.GenerateOpts) (types.ImprovementResult, error) {
	system, user := o.assembler.Assemble(req, examples)

	var trajectory []candidate
	for iteration := 1; iteration <= oproMaxIterations; iteration++ {
		prompt := user
		if iteration > 1 {
			prompt = o.buildMetaPrompt(user, trajectory)
		}

		result, err := o.generator.Generate(ctx, system, prompt, opts)
		if err != nil {
			// Nothing banked yet: the failure is the answer. Otherwise keep
			// the best candidate we have.
			if len(trajectory) == 0 {
				return types.ImprovementResult{}, err
			}
			logging.Pipeline("OPRO iteration %d failed (%v); keeping best of %d candidates", iteration, err, len(trajectory))
			break
		}

		cand := candidate{
			result:   result,
			score:    scoreCandidate(result, o.validator, examples),
			feedback: o.feedback(result),
		}
		trajectory = append(trajectory, cand)
		logging.Pipeline("OPRO iteration %d: score=%.2f", iteration, cand.score)

		if cand.score >= earlyStopScore {
			break
		}
	}

	best := trajectory[0]
	for _, cand := range trajectory[1:] {
		if cand.score > best.score {
			best = cand
		}
	}
	best.result.Meta.Optimizer = o.Name()
	return best.result, nil
}

// buildMetaPrompt lays out the full trajectory (candidate, score, feedback
// per iteration) and asks for an improvement.
func (o *OPRO) buildMetaPrompt(user string, trajectory []candidate) string {
	var sb strings.Builder
	sb.WriteString("You have already produced the following candidates for this task, scored from 0.0 to 1.0:\n")
	for i, cand := range trajectory {
		sb.WriteString(fmt.Sprintf("\n--- Candidate %d (score %.2f) ---\n", i+1, cand.score))
		sb.WriteString(cand.result.ImprovedPrompt)
		sb.WriteString("\nFeedback: ")
		sb.WriteString(cand.feedback)
		sb.WriteString("\n")
	}
	sb.WriteString("\nProduce a new candidate that scores higher than all of the above. Address the feedback; do not repeat prior candidates.\n\n")
	sb.WriteString(user)
	return sb.String()
}

// feedback summarizes what held a candidate back.
func (o *OPRO) feedback(result types.ImprovementResult) string {
	if v := o.validator.ValidatePrompt(result.ImprovedPrompt); v != nil {
		return v.Error()
	}
	var notes []string
	if !hasLabeledSections(result.ImprovedPrompt) {
		notes = append(notes, "add labeled sections to structure the prompt")
	}
	if result.Confidence < 0.8 {
		notes = append(notes, fmt.Sprintf("confidence is only %.2f; tighten the weakest requirements", result.Confidence))
	}
	if len(notes) == 0 {
		return "no defects found"
	}
	return strings.Join(notes, "; ")
}
