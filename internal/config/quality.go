package config

// QualityConfig configures the quality validator and result bounds.
// BannedSnippets and MetaLineStarters extend the built-in closed sets; the
// built-ins can never be removed through configuration.
type QualityConfig struct {
	// MaxQuestions bounds clarifying_questions (default 3).
	MaxQuestions int `yaml:"max_questions" json:"max_questions"`

	// MaxAssumptions bounds assumptions (default 5).
	MaxAssumptions int `yaml:"max_assumptions" json:"max_assumptions"`

	// MinPromptLength is the minimum trimmed improved_prompt length.
	MinPromptLength int `yaml:"min_prompt_length" json:"min_prompt_length"`

	// MinConfidence is the soft threshold below which a low-confidence flag
	// is recorded in result metadata. Never fails the call.
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`

	// BannedSnippets are additional case-insensitive substrings that hard-fail.
	BannedSnippets []string `yaml:"banned_snippets" json:"banned_snippets"`

	// MetaLineStarters are additional case-insensitive first-line prefixes
	// that hard-fail.
	MetaLineStarters []string `yaml:"meta_line_starters" json:"meta_line_starters"`
}

// DefaultQualityConfig returns the standard bounds.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		MaxQuestions:    3,
		MaxAssumptions:  5,
		MinPromptLength: 5,
		MinConfidence:   0.3,
	}
}
