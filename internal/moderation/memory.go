package moderation

import (
	"context"
	"slices"
	"sync"
)

// Memory is a process-local Store.
type Memory struct {
	mu      sync.RWMutex
	answers map[string][]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{answers: make(map[string][]string)}
}

// Get returns a copy of the answers for questionID.
func (m *Memory) Get(_ context.Context, questionID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string{}, m.answers[questionID]...), nil
}

// Add appends answer unless the question already has it.
func (m *Memory) Add(_ context.Context, questionID, answer string) error {
	if err := validate(questionID, answer); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if slices.Contains(m.answers[questionID], answer) {
		return nil
	}
	m.answers[questionID] = append(m.answers[questionID], answer)
	return nil
}

// Snapshot copies every question and its answers.
func (m *Memory) Snapshot(_ context.Context) (map[string][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]string, len(m.answers))
	for q, a := range m.answers {
		out[q] = slices.Clone(a)
	}
	return out, nil
}
