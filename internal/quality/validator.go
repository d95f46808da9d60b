// Package quality enforces the output rules for improved prompts: no leaked
// meta-instructions, no banned phrases, no unfilled placeholders. The rule
// sets are closed; configuration can extend them but never shrink them.
package quality

import (
	"fmt"
	"regexp"
	"strings"

	"promptforge/internal/config"
	"promptforge/internal/logging"
)

// =============================================================================
// RULE SETS (closed; extended only via configuration)
// =============================================================================

// baseMetaLineStarters are first-line prefixes that indicate the model leaked
// its rewrite instructions instead of producing the improved prompt.
var baseMetaLineStarters = []string{
	"task:",
	"rules:",
	"guardrails:",
	"rewrite instruction:",
	"raw user request:",
}

// baseBannedPhrases are substrings that must never appear in an improved
// prompt. The schema field names are included because their presence means
// the model echoed the contract instead of filling it.
var baseBannedPhrases = []string{
	"you are a prompt improver",
	"hard rules",
	"output rules",
	"clarifying_questions",
	"assumptions",
	"confidence",
	"do you want me to",
	"would you like me to",
	"as an ai",
	"as a language model",
}

var (
	// {{anything}}
	doubleBraceRe = regexp.MustCompile(`\{\{.*?\}\}`)

	// [IDENT] not preceded by a colon (a colon marks markdown link syntax
	// and literal schema examples, which are allowed).
	bracketIdentRe = regexp.MustCompile(`(^|[^:])\[([A-Za-z_][A-Za-z0-9_]*)\]`)

	// <IDENT> where the content is a bare identifier, not JSON-like.
	angleIdentRe = regexp.MustCompile(`<([A-Za-z_][A-Za-z0-9_]*)>`)
)

// Rule names reported in violations and cited by the repair prompt.
const (
	RuleMetaLine    = "meta_line_starter"
	RuleBannedWord  = "banned_phrase"
	RulePlaceholder = "unfilled_placeholder"
	RuleTooShort    = "too_short"
)

// Violation describes the first hard-fail rule an output broke.
type Violation struct {
	Rule     string
	Fragment string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("quality violation %s: %q", v.Rule, v.Fragment)
}

// SoftSignals are recorded in result metadata and never fail a call.
type SoftSignals struct {
	LowConfidence        bool
	QuestionsTruncated   bool
	AssumptionsTruncated bool
}

// =============================================================================
// VALIDATOR
// =============================================================================

// Validator applies the hard-fail and soft-fail rules. Rule sets are built at
// construction and immutable afterwards; hot config reloads swap the whole
// validator.
type Validator struct {
	metaStarters   []string
	bannedPhrases  []string
	minLength      int
	minConfidence  float64
	maxQuestions   int
	maxAssumptions int
}

// NewValidator builds a validator from the built-in closed sets plus the
// configured extensions.
func NewValidator(cfg config.QualityConfig) *Validator {
	v := &Validator{
		minLength:      cfg.MinPromptLength,
		minConfidence:  cfg.MinConfidence,
		maxQuestions:   cfg.MaxQuestions,
		maxAssumptions: cfg.MaxAssumptions,
	}
	v.metaStarters = append(v.metaStarters, baseMetaLineStarters...)
	for _, s := range cfg.MetaLineStarters {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			v.metaStarters = append(v.metaStarters, s)
		}
	}
	v.bannedPhrases = append(v.bannedPhrases, baseBannedPhrases...)
	for _, s := range cfg.BannedSnippets {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			v.bannedPhrases = append(v.bannedPhrases, s)
		}
	}
	return v
}

// MaxQuestions returns the configured clarifying-question bound.
func (v *Validator) MaxQuestions() int { return v.maxQuestions }

// MaxAssumptions returns the configured assumption bound.
func (v *Validator) MaxAssumptions() int { return v.maxAssumptions }

// MinConfidence returns the soft confidence threshold.
func (v *Validator) MinConfidence() float64 { return v.minConfidence }

// ValidatePrompt applies the hard-fail rules to a candidate improved prompt.
// Returns nil when the prompt passes, or the first violation found.
func (v *Validator) ValidatePrompt(prompt string) *Violation {
	trimmed := strings.TrimSpace(prompt)
	if len(trimmed) < v.minLength {
		return &Violation{Rule: RuleTooShort, Fragment: trimmed}
	}

	// First non-whitespace line must not start with a meta-line starter.
	firstLine := trimmed
	if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = firstLine[:idx]
	}
	lowerFirst := strings.ToLower(strings.TrimSpace(firstLine))
	for _, starter := range v.metaStarters {
		if strings.HasPrefix(lowerFirst, starter) {
			logging.Quality("Hard fail: meta-line starter %q", starter)
			return &Violation{Rule: RuleMetaLine, Fragment: firstLine}
		}
	}

	lower := strings.ToLower(prompt)
	for _, phrase := range v.bannedPhrases {
		if strings.Contains(lower, phrase) {
			logging.Quality("Hard fail: banned phrase %q", phrase)
			return &Violation{Rule: RuleBannedWord, Fragment: phrase}
		}
	}

	if frag := findPlaceholder(prompt); frag != "" {
		logging.Quality("Hard fail: unfilled placeholder %q", frag)
		return &Violation{Rule: RulePlaceholder, Fragment: frag}
	}

	return nil
}

// findPlaceholder returns the first unfilled placeholder in s, or "".
func findPlaceholder(s string) string {
	if m := doubleBraceRe.FindString(s); m != "" {
		return m
	}
	if m := bracketIdentRe.FindStringSubmatch(s); m != nil {
		return "[" + m[2] + "]"
	}
	if m := angleIdentRe.FindStringSubmatch(s); m != nil {
		// Angle-bracket content that is JSON-like (quoted, braced) never
		// matches the identifier pattern, so anything here is a placeholder.
		return "<" + m[1] + ">"
	}
	return ""
}

// Soft evaluates the soft signals for a finished result. The caller has
// already enforced the list bounds; truncation flags report whether the raw
// model output exceeded them.
func (v *Validator) Soft(confidence float64, rawQuestions, rawAssumptions int) SoftSignals {
	return SoftSignals{
		LowConfidence:        confidence < v.minConfidence,
		QuestionsTruncated:   rawQuestions > v.maxQuestions,
		AssumptionsTruncated: rawAssumptions > v.maxAssumptions,
	}
}

// =============================================================================
// REPAIR PROMPT BUILDER
// =============================================================================

// BuildRepairPrompt produces the system and user messages for the single
// repair attempt after a quality violation. It cites the violated rule and
// offending fragment, restates the original idea verbatim, and demands pure
// JSON output.
func (v *Validator) BuildRepairPrompt(invalidOutput string, violation *Violation, originalIdea string) (system, user string) {
	system = "You repair invalid prompt-improvement output. Return ONLY valid JSON matching the schema; no commentary, no fences."

	var sb strings.Builder
	sb.WriteString("Your previous output violated the quality rule ")
	sb.WriteString(fmt.Sprintf("%q (offending fragment: %q).\n\n", violation.Rule, violation.Fragment))
	sb.WriteString("Previous invalid output:\n")
	sb.WriteString(invalidOutput)
	sb.WriteString("\n\nOriginal user idea (unchanged):\n")
	sb.WriteString(originalIdea)
	sb.WriteString("\n\nProduce a corrected improved_prompt that does not violate the rule. ")
	sb.WriteString("Return ONLY valid JSON matching the schema; no prose, no fences.")
	return system, sb.String()
}
