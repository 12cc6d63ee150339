package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/oscarlaird/gmath/internal/llm/configuration"
	llmerrors "github.com/oscarlaird/gmath/internal/llm/errors"
	"github.com/oscarlaird/gmath/internal/llm/transport"
)

type generateFunc func(ctx context.Context, req *transport.Request) (*genai.GenerateContentResponse, error)

// GeminiHandler serves google requests through the generative-ai SDK rather
// than a raw HTTP adapter.
type GeminiHandler struct {
	generate generateFunc
	closer   func() error
}

// NewGeminiHandler creates an SDK client for the configured key and endpoint.
func NewGeminiHandler(ctx context.Context, cfg configuration.ProviderConfig) (*GeminiHandler, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s: %w", configuration.ProviderGoogle, llmerrors.ErrMissingAPIKey)
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	return &GeminiHandler{
		generate: func(ctx context.Context, req *transport.Request) (*genai.GenerateContentResponse, error) {
			m := cl.GenerativeModel(strings.TrimSpace(req.Model))
			m.SetTemperature(float32(req.Temperature))
			if req.MaxTokens > 0 {
				m.SetMaxOutputTokens(int32(req.MaxTokens))
			}
			if req.SystemPrompt != "" {
				m.SystemInstruction = &genai.Content{
					Parts: []genai.Part{genai.Text(req.SystemPrompt)},
				}
			}
			return m.GenerateContent(ctx, genai.Text(req.Prompt))
		},
		closer: cl.Close,
	}, nil
}

// Close releases the SDK client.
func (g *GeminiHandler) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer()
}

// Handle implements transport.Handler.
func (g *GeminiHandler) Handle(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.generate(ctx, req)
	latency := time.Since(start)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: %w", llmerrors.ErrInvalidResponse, ErrEmptyChoices)
	}

	// A candidate without text is an empty reply, as with the other providers.
	out := &transport.Response{
		Content:  firstText(resp),
		Provider: configuration.ProviderGoogle,
		Model:    req.Model,
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		out.FinishReason = resp.Candidates[0].FinishReason.String()
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = transport.Usage{
			PromptTokens:     int64(u.PromptTokenCount),
			CompletionTokens: int64(u.CandidatesTokenCount),
			TotalTokens:      int64(u.TotalTokenCount),
		}
	}
	out.Usage.LatencyMs = latency.Milliseconds()
	return out, nil
}

func classifyGeminiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &llmerrors.ProviderError{
			Provider: configuration.ProviderGoogle,
			Message:  blocked.Error(),
			Type:     llmerrors.ErrorTypeContent,
		}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &llmerrors.ProviderError{
			Provider:   configuration.ProviderGoogle,
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Type:       classifyErrorType(apiErr.Code, ""),
			RetryAfter: parseRetryAfter(apiErr.Header),
		}
	}

	return &llmerrors.ProviderError{
		Provider: configuration.ProviderGoogle,
		Message:  err.Error(),
		Type:     llmerrors.Classify(err),
	}
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}
