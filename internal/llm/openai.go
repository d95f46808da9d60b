package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"promptforge/internal/logging"
)

// OpenAIClient implements Transport against any OpenAI-compatible
// /v1/chat/completions endpoint (OpenAI, vLLM, LM Studio, gateways).
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewOpenAIClient creates a transport for the given base URL and key.
func NewOpenAIClient(baseURL, apiKey string) *OpenAIClient {
	return &OpenAIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: newHTTPClient(),
	}
}

// Name identifies this backend.
func (c *OpenAIClient) Name() string { return "openai" }

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message      oaiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Complete issues a chat completion and returns the assistant text.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]oaiMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, oaiMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, oaiMessage{Role: "user", Content: req.User})

	payload, err := json.Marshal(oaiChatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", &Error{Kind: KindInternal, Msg: "failed to marshal request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Kind: KindInternal, Msg: "failed to build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	logging.API("openai chat: model=%s system_len=%d user_len=%d", req.Model, len(req.System), len(req.User))

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

	var parsed oaiChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &Error{Kind: KindInternal, Msg: "unparseable completion response", RawOutput: string(raw), Err: err}
	}
	if parsed.Error != nil {
		if parsed.Error.Code == "model_not_found" {
			return "", &Error{Kind: KindModelNotFound, Msg: "model " + req.Model + " not found", RawOutput: parsed.Error.Message}
		}
		return "", &Error{Kind: KindInternal, Msg: "provider error: " + parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return "", &Error{Kind: KindInternal, Msg: "no completion returned"}
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// HealthCheck probes /v1/models.
func (c *OpenAIClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
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
