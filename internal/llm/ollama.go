package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"promptforge/internal/logging"
)

// OllamaClient implements Transport against an Ollama /api/chat endpoint.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient creates a transport for the given base URL, e.g.
// "http://localhost:11434".
func NewOllamaClient(baseURL string) *OllamaClient {
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newHTTPClient(),
	}
}

// Name identifies this backend.
func (c *OllamaClient) Name() string { return "ollama" }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// Complete issues a non-streaming chat call and returns the assistant text.
func (c *OllamaClient) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]ollamaMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: req.User})

	body := ollamaChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   false,
		Options:  ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &Error{Kind: KindInternal, Msg: "failed to marshal request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Kind: KindInternal, Msg: "failed to build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	logging.API("ollama chat: model=%s system_len=%d user_len=%d", req.Model, len(req.System), len(req.User))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTPError(resp.StatusCode, string(raw), req.Model)
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &Error{Kind: KindInternal, Msg: "unparseable ollama response", RawOutput: string(raw), Err: err}
	}
	if parsed.Error != "" {
		if strings.Contains(strings.ToLower(parsed.Error), "not found") {
			return "", &Error{Kind: KindModelNotFound, Msg: fmt.Sprintf("model %s not found", req.Model), RawOutput: parsed.Error}
		}
		return "", &Error{Kind: KindInternal, Msg: "ollama error: " + parsed.Error}
	}

	return strings.TrimSpace(parsed.Message.Content), nil
}

// HealthCheck probes /api/tags, the cheapest endpoint Ollama serves.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return classifyHTTPError(resp.StatusCode, "", "")
	}
	return nil
}
