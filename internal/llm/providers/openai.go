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

// OpenAIAdapter speaks the chat/completions API.
type OpenAIAdapter struct {
	config configuration.ProviderConfig
}

// NewOpenAIAdapter creates an OpenAI adapter, defaulting to the public endpoint.
func NewOpenAIAdapter(cfg configuration.ProviderConfig) *OpenAIAdapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1"
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &OpenAIAdapter{config: cfg}
}

// Name returns the provider name.
func (a *OpenAIAdapter) Name() string {
	return configuration.ProviderOpenAI
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

// Build constructs the chat/completions request with a system and a user message.
func (a *OpenAIAdapter) Build(ctx context.Context, req *transport.Request) (*http.Request, error) {
	if a.config.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", a.Name(), llmerrors.ErrMissingAPIKey)
	}

	messages := make([]openAIMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.Prompt})

	jsonBody, err := json.Marshal(openAIRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := a.config.Endpoint + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

// Parse extracts the first choice and usage from a chat/completions response.
func (a *OpenAIAdapter) Parse(httpResp *http.Response) (*transport.Response, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		provErr := parseOpenAIError(httpResp.StatusCode, body)
		provErr.RetryAfter = parseRetryAfter(httpResp.Header)
		return nil, provErr
	}

	var resp struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
			TotalTokens      int64 `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", llmerrors.ErrInvalidResponse, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: %w", llmerrors.ErrInvalidResponse, ErrEmptyChoices)
	}

	var requestIDs []string
	if reqID := httpResp.Header.Get("x-request-id"); reqID != "" {
		requestIDs = append(requestIDs, reqID)
	}

	return &transport.Response{
		Content:            resp.Choices[0].Message.Content,
		FinishReason:       resp.Choices[0].FinishReason,
		Model:              resp.Model,
		ProviderRequestIDs: requestIDs,
		Usage: transport.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Headers: httpResp.Header,
	}, nil
}

func parseOpenAIError(statusCode int, body []byte) *llmerrors.ProviderError {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		code := errResp.Error.Code
		if code == "" {
			code = errResp.Error.Type
		}
		return &llmerrors.ProviderError{
			Provider:   configuration.ProviderOpenAI,
			StatusCode: statusCode,
			Message:    errResp.Error.Message,
			Code:       code,
			Type:       classifyErrorType(statusCode, code),
		}
	}

	return &llmerrors.ProviderError{
		Provider:   configuration.ProviderOpenAI,
		StatusCode: statusCode,
		Message:    string(body),
		Type:       classifyErrorType(statusCode, ""),
	}
}
