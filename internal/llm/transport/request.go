package transport

import (
	"net/http"
	"strings"
	"time"

	llmerrors "github.com/oscarlaird/gmath/internal/llm/errors"
)

// Request is a provider-agnostic chat completion request. The judge fills
// SystemPrompt and Prompt; provider adapters translate it to the wire format.
type Request struct {
	Provider       string
	Model          string
	SystemPrompt   string
	Prompt         string
	MaxTokens      int
	Temperature    float64
	Timeout        time.Duration // per-attempt, 0 means caller context only
	IdempotencyKey string
	RequestID      string
}

// Validate rejects requests no provider could serve.
func (r *Request) Validate() error {
	switch {
	case strings.TrimSpace(r.Provider) == "":
		return &llmerrors.ValidationError{Field: "provider", Message: "required"}
	case strings.TrimSpace(r.Model) == "":
		return &llmerrors.ValidationError{Field: "model", Message: "required"}
	case strings.TrimSpace(r.Prompt) == "":
		return &llmerrors.ValidationError{Field: "prompt", Message: "required"}
	case r.MaxTokens < 0:
		return &llmerrors.ValidationError{Field: "max_tokens", Value: r.MaxTokens, Message: "must be >= 0"}
	case r.Temperature < 0 || r.Temperature > 2:
		return &llmerrors.ValidationError{Field: "temperature", Value: r.Temperature, Message: "must be within [0, 2]"}
	}
	return nil
}

// Usage holds normalized token accounting.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	LatencyMs        int64 `json:"latency_ms"`
}

// Response is the normalized provider reply.
type Response struct {
	Content            string
	FinishReason       string
	Provider           string
	Model              string
	Usage              Usage
	ProviderRequestIDs []string
	Headers            http.Header
}
