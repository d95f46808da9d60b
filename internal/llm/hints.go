package llm

import (
	"strings"

	"promptforge/internal/types"
)

// Hint strings surfaced to UIs next to an error message. Closed set; callers
// may switch on these values.
const (
	HintStartOllama    = "The local backend is unreachable. Start it with `ollama serve` and retry."
	HintPullModel      = "The requested model is not installed. Pull it first, e.g. `ollama pull <model>`."
	HintCheckBaseURL   = "The remote endpoint is unreachable. Check base_url and your network connection."
	HintCheckAPIKey    = "The request was rejected as unauthorized. Check the configured API key."
	HintSlowModel      = "The model did not answer in time. Raise timeout_ms or switch to a smaller model."
	HintRateLimited    = "The provider is rate limiting requests. Wait a moment before retrying."
	HintTryFallback    = "The model kept returning unusable output. Configure fallback_model to retry on a different one."
	HintShorterIdea    = "The request was refused by the provider. Try a shorter or simpler idea."
)

// HintFor maps an error message and execution mode to a user-facing hint.
// Pure function over the message text; returns "" when nothing applies.
func HintFor(errText string, mode types.ExecMode) string {
	lower := strings.ToLower(errText)

	switch {
	case contains(lower, "connection refused", "no such host", "unreachable", "dial tcp"):
		if mode == types.ModeRemote {
			return HintCheckBaseURL
		}
		return HintStartOllama
	case contains(lower, "model", "not found"):
		return HintPullModel
	case contains(lower, "deadline exceeded", "timed out", "timeout"):
		return HintSlowModel
	case contains(lower, "unauthorized", "invalid api key", "401", "403"):
		return HintCheckAPIKey
	case contains(lower, "rate limit", "too many requests", "429"):
		return HintRateLimited
	case contains(lower, string(KindNonJSON)), contains(lower, string(KindSchema)), contains(lower, string(KindQualityGate)):
		return HintTryFallback
	case contains(lower, "request entity too large", "context length"):
		return HintShorterIdea
	}
	return ""
}

// contains reports whether s contains every needle.
func contains(s string, needles ...string) bool {
	for _, n := range needles {
		if !strings.Contains(s, n) {
			return false
		}
	}
	return true
}
