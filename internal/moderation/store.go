// Package moderation keeps the instructor-approved alternative answers per
// question. The grading endpoint merges them into a request's acceptable
// answers when the request names its question.
package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Validation errors returned by Add.
var (
	ErrEmptyQuestionID = errors.New("question id is required")
	ErrEmptyAnswer     = errors.New("answer is required")
)

// Store maps question ids to ordered sets of approved answers.
type Store interface {
	// Get returns the answers for questionID in insertion order. Unknown
	// questions yield an empty slice.
	Get(ctx context.Context, questionID string) ([]string, error)
	// Add appends answer unless it is already present.
	Add(ctx context.Context, questionID, answer string) error
	// Snapshot returns every question with its answers.
	Snapshot(ctx context.Context) (map[string][]string, error)
}

func validate(questionID, answer string) error {
	if strings.TrimSpace(questionID) == "" {
		return ErrEmptyQuestionID
	}
	if strings.TrimSpace(answer) == "" {
		return ErrEmptyAnswer
	}
	return nil
}

// Preload adds the answers of a JSON document shaped like a Snapshot,
// {"questionId": ["answer", ...]}, and returns how many entries it read.
func Preload(ctx context.Context, store Store, r io.Reader) (int, error) {
	var doc map[string][]string
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("decode preload: %w", err)
	}
	n := 0
	for questionID, answers := range doc {
		for _, a := range answers {
			if err := store.Add(ctx, questionID, a); err != nil {
				return n, fmt.Errorf("preload %s: %w", questionID, err)
			}
			n++
		}
	}
	return n, nil
}

// PreloadFile is Preload reading from path.
func PreloadFile(ctx context.Context, store Store, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return Preload(ctx, store, f)
}
