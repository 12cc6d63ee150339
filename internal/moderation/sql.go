package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQLStore persists answers in the acceptable_answers table.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLStore wraps an open database whose schema is already in place.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Get returns the answers for questionID, oldest first.
func (s *SQLStore) Get(ctx context.Context, questionID string) ([]string, error) {
	answers := []string{}
	err := s.db.SelectContext(ctx, &answers, s.db.Rebind(
		`SELECT answer FROM acceptable_answers WHERE question_id = ? ORDER BY created_at, answer`),
		questionID)
	if err != nil {
		return nil, fmt.Errorf("get acceptable answers: %w", err)
	}
	return answers, nil
}

// Add inserts answer; an existing (question, answer) pair is left as is.
func (s *SQLStore) Add(ctx context.Context, questionID, answer string) error {
	if err := validate(questionID, answer); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO acceptable_answers (question_id, answer, created_at) VALUES (?, ?, ?)
		ON CONFLICT (question_id, answer) DO NOTHING`),
		questionID, answer, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("add acceptable answer: %w", err)
	}
	return nil
}

// Snapshot reads the whole table grouped by question.
func (s *SQLStore) Snapshot(ctx context.Context) (map[string][]string, error) {
	var rows []struct {
		QuestionID string `db:"question_id"`
		Answer     string `db:"answer"`
	}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT question_id, answer FROM acceptable_answers ORDER BY question_id, created_at, answer`)
	if err != nil {
		return nil, fmt.Errorf("snapshot acceptable answers: %w", err)
	}
	out := make(map[string][]string)
	for _, r := range rows {
		out[r.QuestionID] = append(out[r.QuestionID], r.Answer)
	}
	return out, nil
}
