package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// CurrentCanonicalVersion is bumped whenever canonicalization changes.
const CurrentCanonicalVersion = "v1"

// CanonicalPayload is the normalized form of a judge request used for
// idempotency keys. Equivalent requests must serialize identically.
type CanonicalPayload struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Version     string  `json:"version"`
}

// BuildCanonicalPayload normalizes req into its canonical payload.
func BuildCanonicalPayload(req *Request) *CanonicalPayload {
	return &CanonicalPayload{
		Provider:    strings.ToLower(strings.TrimSpace(req.Provider)),
		Model:       strings.TrimSpace(req.Model),
		System:      normalizeText(req.SystemPrompt),
		Prompt:      normalizeText(req.Prompt),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Version:     CurrentCanonicalVersion,
	}
}

// IdempotencyKey returns the SHA-256 hex digest of the canonical payload.
// Struct fields marshal in declaration order, so the encoding is stable.
func IdempotencyKey(req *Request) (string, error) {
	b, err := json.Marshal(BuildCanonicalPayload(req))
	if err != nil {
		return "", fmt.Errorf("failed to marshal canonical payload: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// normalizeText trims, unifies line endings and collapses runs of spaces.
func normalizeText(text string) string {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n")
	return strings.Join(strings.Fields(text), " ")
}
