package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	llmerrors "github.com/oscarlaird/gmath/internal/llm/errors"
	"github.com/oscarlaird/gmath/internal/llm/transport"
)

const responsePreviewLimit = 200

// NewLoggingMiddleware logs every judge call with a request id, latency and
// token usage. With redact set, prompts and replies are logged by length only.
func NewLoggingMiddleware(logger *slog.Logger, redact bool) transport.Middleware {
	if logger == nil {
		logger = slog.Default().With("component", "llm")
	}
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if req.RequestID == "" {
				req.RequestID = uuid.New().String()
			}

			fields := []any{
				"request_id", req.RequestID,
				"provider", req.Provider,
				"model", req.Model,
				"max_tokens", req.MaxTokens,
				"temperature", req.Temperature,
			}
			if redact {
				fields = append(fields, "prompt_length", len(req.Prompt))
			} else {
				fields = append(fields, "prompt", req.Prompt)
			}
			logger.Debug("LLM request started", fields...)

			start := time.Now()
			resp, err := next.Handle(ctx, req)
			duration := time.Since(start)

			if err != nil {
				logger.Error("LLM request failed",
					"request_id", req.RequestID,
					"provider", req.Provider,
					"model", req.Model,
					"duration_ms", duration.Milliseconds(),
					"error_type", string(llmerrors.Classify(err)),
					"error", err.Error())
				return nil, err
			}

			done := []any{
				"request_id", req.RequestID,
				"provider", req.Provider,
				"model", req.Model,
				"duration_ms", duration.Milliseconds(),
				"finish_reason", resp.FinishReason,
				"prompt_tokens", resp.Usage.PromptTokens,
				"completion_tokens", resp.Usage.CompletionTokens,
				"total_tokens", resp.Usage.TotalTokens,
				"provider_request_ids", strings.Join(resp.ProviderRequestIDs, ","),
			}
			if redact {
				done = append(done, "response_length", len(resp.Content))
			} else {
				content := resp.Content
				if len(content) > responsePreviewLimit {
					content = content[:responsePreviewLimit] + "..."
				}
				done = append(done, "response_preview", content)
			}
			logger.Info("LLM request completed", done...)
			return resp, nil
		})
	}
}
