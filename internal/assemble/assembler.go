// Package assemble composes the system and user messages sent to the model:
// role injection from intent and complexity, few-shot reference patterns,
// Rephrase-and-Respond expansion for complex requests, and the structured
// output contract.
package assemble

import (
	"fmt"
	"regexp"
	"strings"

	"promptforge/internal/logging"
	"promptforge/internal/types"
)

// =============================================================================
// ROLE INJECTION
// =============================================================================

// RoleFor maps intent and complexity to the persona injected into the system
// prompt.
func RoleFor(intent types.Intent, complexity types.Complexity) string {
	switch intent {
	case types.IntentDebug:
		return "Code Debugger"
	case types.IntentRefactor:
		return "Refactoring Specialist"
	case types.IntentGenerate:
		switch complexity {
		case types.ComplexityComplex:
			return "Software Architect"
		case types.ComplexityModerate:
			return "Senior Developer"
		default:
			return "Developer"
		}
	default:
		return "Technical Writer"
	}
}

// =============================================================================
// SCHEMA CONTRACT
// =============================================================================

// schemaContract is the literal output contract appended to every user
// message, exactly once. The wording is stable; tests count occurrences.
const schemaContract = `Respond with a single JSON object containing exactly these fields:
  "improved_prompt": string (the complete rewritten prompt, non-empty)
  "clarifying_questions": array of string (at most 3, each one sentence)
  "assumptions": array of string (at most 5)
  "confidence": number between 0.0 and 1.0
No other fields. No prose before or after the JSON.`

// presetGuidance is the preset-specific line placed directly above the
// contract.
var presetGuidance = map[types.Preset]string{
	types.PresetDefault:    "Write the improved prompt as clear, direct instructions.",
	types.PresetSpecific:   "Make the improved prompt maximally specific: name exact inputs, outputs, and acceptance criteria.",
	types.PresetStructured: "Structure the improved prompt with markdown headings (a # title, then ## sections).",
	types.PresetCoding:     "Target the improved prompt at a coding assistant: state language, interfaces, and edge cases explicitly.",
}

// =============================================================================
// NON-NEGOTIABLE TOKEN EXTRACTION
// =============================================================================

var (
	// Tokens containing a digit: versions, durations, counts (OAuth2, 15min, 7d).
	numericTokenRe = regexp.MustCompile(`[A-Za-z]*\d[\w.]*`)

	// Capitalized words and acronyms: named providers, roles, technologies.
	properTokenRe = regexp.MustCompile(`\b[A-Z][A-Za-z0-9]*\b`)
)

// extractAnchors pulls the tokens that must survive any rephrasing: numeric
// constants, named providers, and enumeration members. Order of first
// appearance, deduplicated.
func extractAnchors(idea string) []string {
	type hit struct {
		pos   int
		token string
	}
	var hits []hit
	for _, re := range []*regexp.Regexp{numericTokenRe, properTokenRe} {
		for _, loc := range re.FindAllStringIndex(idea, -1) {
			hits = append(hits, hit{pos: loc[0], token: idea[loc[0]:loc[1]]})
		}
	}

	seen := make(map[string]bool, len(hits))
	var anchors []string
	// Insertion-sort by position keeps the pass simple for the small inputs
	// ideas are.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	for _, h := range hits {
		if seen[h.token] {
			continue
		}
		seen[h.token] = true
		anchors = append(anchors, h.token)
	}
	return anchors
}

// =============================================================================
// ASSEMBLER
// =============================================================================

// Assembler builds the message pair for one analyzed request.
type Assembler struct{}

// New returns an Assembler.
func New() *Assembler { return &Assembler{} }

// Assemble produces the system and user messages for the request, folding in
// the retrieved reference examples.
func (a *Assembler) Assemble(req types.AnalyzedRequest, examples []types.FewShotExample) (system, user string) {
	role := RoleFor(req.Intent, req.Complexity)
	system = buildSystemPrompt(role, req.Intent)

	var sb strings.Builder

	sb.WriteString("Rewrite the following rough idea into a high-quality prompt.\n\n")
	sb.WriteString("Raw idea:\n")
	sb.WriteString(req.Normalized().Idea)
	sb.WriteString("\n")
	if ctx := strings.TrimSpace(req.Context); ctx != "" {
		sb.WriteString("\nAdditional context:\n")
		sb.WriteString(ctx)
		sb.WriteString("\n")
	}

	if len(examples) > 0 {
		sb.WriteString("\n## Reference Patterns\n")
		sb.WriteString("Study how these rough inputs were turned into strong prompts.\n")
		for i, ex := range examples {
			sb.WriteString(fmt.Sprintf("\n## Example %d\nInput: %s\nOutput: %s\n", i+1, ex.Input, ex.Output))
		}
	}

	if req.Complexity == types.ComplexityComplex {
		writeRaRSection(&sb, req.Normalized().Idea)
	}

	sb.WriteString("\n")
	if guidance, ok := presetGuidance[req.Preset]; ok {
		sb.WriteString(guidance)
	} else {
		sb.WriteString(presetGuidance[types.PresetDefault])
	}
	sb.WriteString("\n\n")
	sb.WriteString(schemaContract)

	user = sb.String()
	logging.PipelineDebug("Assembled prompt: role=%s examples=%d complex=%v user_len=%d",
		role, len(examples), req.Complexity == types.ComplexityComplex, len(user))
	return system, user
}

// buildSystemPrompt injects the role and the behavioral ground rules.
func buildSystemPrompt(role string, intent types.Intent) string {
	var sb strings.Builder
	sb.WriteString("You are a ")
	sb.WriteString(role)
	sb.WriteString(" who rewrites rough ideas into precise, self-contained prompts.\n\n")
	sb.WriteString("The improved prompt must stand alone: a reader with no other context can act on it. ")
	sb.WriteString("Never include your own instructions, rule lists, or the original request text in the improved prompt. ")
	sb.WriteString("Never leave template placeholders unfilled.")
	if intent == types.IntentDebug {
		sb.WriteString(" Preserve every error name, symbol, and message from the idea verbatim in the improved prompt.")
	}
	return sb.String()
}

// writeRaRSection appends the Rephrase-and-Respond instructions for complex
// requests: an Understanding expansion that is forbidden to alter the
// request's constants, which are restated verbatim.
func writeRaRSection(sb *strings.Builder, idea string) {
	sb.WriteString("\n## Understanding\n")
	sb.WriteString("Before writing the improved prompt, expand the request in your own words: ")
	sb.WriteString("surface implicit requirements, name the moving parts, and note what a complete solution covers. ")
	sb.WriteString("You may elaborate freely, but you must NOT rephrase, convert, or approximate any numeric constant, ")
	sb.WriteString("named provider, or enumerated item from the request.\n")

	anchors := extractAnchors(idea)
	sb.WriteString("\nRequirements (NON-NEGOTIABLE)\n")
	sb.WriteString("The improved prompt must carry these tokens exactly as written:\n")
	for _, anchor := range anchors {
		sb.WriteString("- ")
		sb.WriteString(anchor)
		sb.WriteString("\n")
	}
	sb.WriteString("The original request, verbatim:\n")
	sb.WriteString(idea)
	sb.WriteString("\n")
}
