// Package wizard implements the multi-turn ambiguity resolver: a session
// state machine with per-id serialization, atomic file persistence, and a
// decision table that gates when the wizard engages at all.
package wizard

import (
	"strings"
	"time"

	"promptforge/internal/types"
)

// Role tags a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TurnMeta is the per-turn metadata attached to assistant messages.
type TurnMeta struct {
	Confidence  float64 `json:"confidence"`
	IsAmbiguous bool    `json:"is_ambiguous"`
}

// Message is one transcript entry.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Meta      *TurnMeta `json:"meta,omitempty"`
}

// TurnConfig is the per-session wizard configuration snapshot.
type TurnConfig struct {
	Mode             string `json:"mode"`
	MaxTurns         int    `json:"max_turns"`
	CurrentTurn      int    `json:"current_turn"`
	TimeoutPerTurnMS int    `json:"timeout_per_turn_ms"`
}

// State is the wizard's position in its lifecycle plus the analysis snapshot
// it was decided on.
type State struct {
	Enabled        bool                   `json:"enabled"`
	Bypassed       bool                   `json:"bypassed"`
	Resolved       bool                   `json:"resolved"`
	AmbiguityScore float64                `json:"ambiguity_score"`
	Analysis       *types.AnalyzedRequest `json:"analysis,omitempty"`
	Config         TurnConfig             `json:"config"`

	// CanOfferSkip is surfaced to UIs only; nothing in the engine branches
	// on it.
	CanOfferSkip bool `json:"can_offer_skip"`
}

// SessionRecord is one wizard conversation. Mutated only through the
// SessionManager; callers receive snapshots.
type SessionRecord struct {
	ID            string          `json:"id"`
	OriginalInput string          `json:"original_input"`
	Preset        types.Preset    `json:"preset"`
	Engine        types.EngineTag `json:"engine"`
	CreatedAt     time.Time       `json:"created_at"`
	LastActivity  time.Time       `json:"last_activity"`
	Messages      []Message       `json:"messages"`
	State         State           `json:"state"`
}

// snapshot deep-copies the record so callers can never reach the manager's
// mutable copy.
func (s *SessionRecord) snapshot() SessionRecord {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	if s.State.Analysis != nil {
		analysis := *s.State.Analysis
		out.State.Analysis = &analysis
	}
	return out
}

// =============================================================================
// DECISION TABLE
// =============================================================================

// autoConfidenceBar is the analysis confidence below which auto mode engages
// the wizard.
const autoConfidenceBar = 0.7

// Decision is the outcome of the entry gate.
type Decision struct {
	Enabled      bool
	CanOfferSkip bool
}

// Decide applies the entry gate: off never engages, always always does, and
// auto engages for generate intents, complex requests, shaky classifications,
// or multi-turn configurations.
func Decide(mode string, maxTurns int, analysis types.AnalyzedRequest) Decision {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "off":
		return Decision{}
	case "always":
		return Decision{Enabled: true}
	}

	// auto
	enabled := analysis.Intent == types.IntentGenerate ||
		analysis.Complexity == types.ComplexityComplex ||
		analysis.Confidence < autoConfidenceBar ||
		maxTurns > 1

	canOfferSkip := maxTurns > 1 &&
		analysis.Confidence >= autoConfidenceBar &&
		analysis.Complexity != types.ComplexityComplex &&
		analysis.Intent != types.IntentGenerate

	return Decision{Enabled: enabled, CanOfferSkip: canOfferSkip}
}

// ExtractFinalPrompt returns the last assistant message whose content starts
// with a markdown heading, which is how finished prompts are emitted.
func (s *SessionRecord) ExtractFinalPrompt() (string, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		msg := s.Messages[i]
		if msg.Role == RoleAssistant && strings.HasPrefix(strings.TrimSpace(msg.Content), "#") {
			return msg.Content, true
		}
	}
	return "", false
}

// ToChatFormat returns the conversation for display: the original input
// first, then every non-system message.
func (s *SessionRecord) ToChatFormat() []Message {
	out := make([]Message, 0, len(s.Messages)+1)
	out = append(out, Message{Role: RoleUser, Content: s.OriginalInput, Timestamp: s.CreatedAt})
	for _, msg := range s.Messages {
		if msg.Role == RoleSystem {
			continue
		}
		out = append(out, msg)
	}
	return out
}
