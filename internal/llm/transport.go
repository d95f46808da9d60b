package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"
)

// Request is one chat-style call. System and User are always sent in their
// own message slots, never concatenated.
type Request struct {
	System      string
	User        string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Transport is the injected port to an LLM provider. Implementations return
// the raw response body text or a typed *Error.
type Transport interface {
	// Complete issues the request and returns the raw assistant text.
	Complete(ctx context.Context, req Request) (string, error)

	// Name identifies the backend ("ollama", "openai") for metadata.
	Name() string
}

// HealthChecker is an optional interface for transports that can probe their
// endpoint cheaply.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// classifyHTTPError maps an HTTP status and body to a typed engine error.
func classifyHTTPError(status int, body string, model string) *Error {
	switch {
	case status == http.StatusNotFound:
		return &Error{Kind: KindModelNotFound, Msg: "model " + model + " not found", RawOutput: body}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindUnauthorized, Msg: "endpoint rejected credentials", RawOutput: body}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Msg: "rate limit exceeded", RawOutput: body}
	case status >= 500:
		return &Error{Kind: KindConnection, Msg: "server error " + http.StatusText(status), RawOutput: body}
	default:
		// Some providers return 400 with a "model not found" body.
		if strings.Contains(strings.ToLower(body), "model") && strings.Contains(strings.ToLower(body), "not found") {
			return &Error{Kind: KindModelNotFound, Msg: "model " + model + " not found", RawOutput: body}
		}
		return &Error{Kind: KindInternal, Msg: "unexpected status " + http.StatusText(status), RawOutput: body}
	}
}

// classifyTransportError maps a client-side error to a typed engine error.
// Context errors pass through so cancellation is never re-labelled.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Msg: "request deadline exceeded", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Msg: "network timeout", Err: err}
	}
	return &Error{Kind: KindConnection, Msg: "transport failure", Err: err}
}

// newHTTPClient builds the shared http.Client. Per-call deadlines come from
// the request context, so no client-level timeout is set.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        8,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}
