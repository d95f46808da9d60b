package optimize

import (
	"strings"

	"promptforge/internal/quality"
	"promptforge/internal/types"
)

// Bonus weights for the deterministic candidate score. The score is
// validator-pass + normalized confidence + bonuses, capped at 1.0, so a
// passing candidate with any confidence clears the early-stop bar.
const (
	structuralBonus = 0.1
	adherenceBonus  = 0.1
)

// scoreCandidate rates a candidate deterministically. Same inputs, same
// score; no model call involved.
func scoreCandidate(result types.ImprovementResult, validator *quality.Validator, examples []types.FewShotExample) float64 {
	var score float64
	if validator.ValidatePrompt(result.ImprovedPrompt) == nil {
		score += 1.0
	}
	score += clamp01(result.Confidence)
	if hasLabeledSections(result.ImprovedPrompt) {
		score += structuralBonus
	}
	if matchesExampleShape(result.ImprovedPrompt, examples) {
		score += adherenceBonus
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// hasLabeledSections reports whether the prompt is organized under markdown
// headings or labeled blocks.
func hasLabeledSections(prompt string) bool {
	for _, line := range strings.Split(prompt, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return true
		}
		if strings.HasSuffix(trimmed, ":") && len(trimmed) > 1 && !strings.ContainsRune(trimmed[:len(trimmed)-1], ' ') {
			return true
		}
	}
	return false
}

// matchesExampleShape reports whether the candidate opens the way the
// reference outputs do (heading-first outputs should produce heading-first
// candidates).
func matchesExampleShape(prompt string, examples []types.FewShotExample) bool {
	if len(examples) == 0 {
		return false
	}
	headingFirst := 0
	for _, ex := range examples {
		if strings.HasPrefix(strings.TrimSpace(ex.Output), "#") {
			headingFirst++
		}
	}
	wantHeading := headingFirst*2 >= len(examples)
	gotHeading := strings.HasPrefix(strings.TrimSpace(prompt), "#")
	return wantHeading == gotHeading
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
