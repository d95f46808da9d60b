package config

// WizardConfig configures the conversational ambiguity wizard.
type WizardConfig struct {
	// Mode is "off", "auto", or "always".
	Mode string `yaml:"mode" json:"mode"`

	// MaxTurns is the upper bound on wizard turns.
	MaxTurns int `yaml:"max_turns" json:"max_turns"`

	// TimeoutPerTurnMS bounds a single wizard turn.
	TimeoutPerTurnMS int `yaml:"timeout_per_turn_ms" json:"timeout_per_turn_ms"`

	// RetentionHours is how long idle sessions are kept before the sweep
	// deletes them.
	RetentionHours int `yaml:"retention_hours" json:"retention_hours"`
}

// DefaultWizardConfig returns auto mode with a three-turn budget.
func DefaultWizardConfig() WizardConfig {
	return WizardConfig{
		Mode:             "auto",
		MaxTurns:         3,
		TimeoutPerTurnMS: 60000,
		RetentionHours:   24,
	}
}
