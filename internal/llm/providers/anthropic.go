package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oscarlaird/gmath/internal/llm/configuration"
	llmerrors "github.com/oscarlaird/gmath/internal/llm/errors"
	"github.com/oscarlaird/gmath/internal/llm/transport"
)

const anthropicVersion = "2023-06-01"

// AnthropicAdapter speaks the messages API, which carries the system prompt
// outside the message list.
type AnthropicAdapter struct {
	config configuration.ProviderConfig
}

// NewAnthropicAdapter creates an Anthropic adapter, defaulting to the public endpoint.
func NewAnthropicAdapter(cfg configuration.ProviderConfig) *AnthropicAdapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.anthropic.com/v1"
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &AnthropicAdapter{config: cfg}
}

// Name returns the provider name.
func (a *AnthropicAdapter) Name() string {
	return configuration.ProviderAnthropic
}

// Build constructs a messages request.
func (a *AnthropicAdapter) Build(ctx context.Context, req *transport.Request) (*http.Request, error) {
	if a.config.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", a.Name(), llmerrors.ErrMissingAPIKey)
	}

	// max_tokens is mandatory for this API.
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 16
	}

	body := map[string]any{
		"model": req.Model,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
		"max_tokens":  maxTokens,
		"temperature": req.Temperature,
	}
	if req.SystemPrompt != "" {
		body["system"] = req.SystemPrompt
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.Endpoint+"/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.config.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

// Parse concatenates the text blocks of a messages response.
func (a *AnthropicAdapter) Parse(httpResp *http.Response) (*transport.Response, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		provErr := parseAnthropicError(httpResp.StatusCode, body)
		provErr.RetryAfter = parseRetryAfter(httpResp.Header)
		return nil, provErr
	}

	var resp struct {
		Model   string `json:"model"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int64 `json:"input_tokens"`
			OutputTokens int64 `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", llmerrors.ErrInvalidResponse, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	var requestIDs []string
	if reqID := httpResp.Header.Get("request-id"); reqID != "" {
		requestIDs = append(requestIDs, reqID)
	}

	return &transport.Response{
		Content:            sb.String(),
		FinishReason:       resp.StopReason,
		Model:              resp.Model,
		ProviderRequestIDs: requestIDs,
		Usage: transport.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		Headers: httpResp.Header,
	}, nil
}

func parseAnthropicError(statusCode int, body []byte) *llmerrors.ProviderError {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &llmerrors.ProviderError{
			Provider:   configuration.ProviderAnthropic,
			StatusCode: statusCode,
			Message:    errResp.Error.Message,
			Code:       errResp.Error.Type,
			Type:       classifyErrorType(statusCode, errResp.Error.Type),
		}
	}

	return &llmerrors.ProviderError{
		Provider:   configuration.ProviderAnthropic,
		StatusCode: statusCode,
		Message:    string(body),
		Type:       classifyErrorType(statusCode, ""),
	}
}
