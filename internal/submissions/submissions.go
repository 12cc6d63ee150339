// Package submissions records graded answers per student in the
// hw_responses table.
package submissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// DefaultListLimit caps ListByStudent when no limit is given.
const DefaultListLimit = 100

// ErrEmptyStudentID rejects submissions and listings without a student.
var ErrEmptyStudentID = errors.New("student id is required")

// Submission is one graded answer.
type Submission struct {
	ID            string    `json:"id"`
	StudentID     string    `json:"studentId"`
	QuestionID    string    `json:"questionId,omitempty"`
	UserAnswer    string    `json:"userAnswer"`
	CorrectAnswer string    `json:"correctAnswer"`
	IsCorrect     bool      `json:"isCorrect"`
	Tier          string    `json:"tier"`
	Attempt       int       `json:"attempt"`
	IP            string    `json:"ip,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type row struct {
	ID            string `db:"id"`
	StudentID     string `db:"stud_id"`
	QuestionID    string `db:"question_id"`
	UserAnswer    string `db:"user_answer"`
	CorrectAnswer string `db:"correct_answer"`
	IsCorrect     bool   `db:"is_correct"`
	Tier          string `db:"tier"`
	Attempt       int    `db:"attempt"`
	IP            string `db:"ip"`
	CreatedAt     int64  `db:"created_at"`
}

func (r row) submission() Submission {
	return Submission{
		ID:            r.ID,
		StudentID:     r.StudentID,
		QuestionID:    r.QuestionID,
		UserAnswer:    r.UserAnswer,
		CorrectAnswer: r.CorrectAnswer,
		IsCorrect:     r.IsCorrect,
		Tier:          r.Tier,
		Attempt:       r.Attempt,
		IP:            r.IP,
		CreatedAt:     time.UnixMilli(r.CreatedAt).UTC(),
	}
}

// Store writes and reads submissions.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewStore wraps an open database whose schema is already in place.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Record stores s, filling in ID, CreatedAt and a first attempt when unset,
// and returns what was written.
func (s *Store) Record(ctx context.Context, sub Submission) (Submission, error) {
	if sub.StudentID == "" {
		return Submission{}, ErrEmptyStudentID
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now()
	}
	sub.CreatedAt = sub.CreatedAt.UTC().Truncate(time.Millisecond)
	if sub.Attempt <= 0 {
		sub.Attempt = 1
	}

	_, err := s.db.NamedExecContext(ctx, `INSERT INTO hw_responses
		(id, stud_id, question_id, user_answer, correct_answer, is_correct, tier, attempt, ip, created_at)
		VALUES (:id, :stud_id, :question_id, :user_answer, :correct_answer, :is_correct, :tier, :attempt, :ip, :created_at)`,
		row{
			ID:            sub.ID,
			StudentID:     sub.StudentID,
			QuestionID:    sub.QuestionID,
			UserAnswer:    sub.UserAnswer,
			CorrectAnswer: sub.CorrectAnswer,
			IsCorrect:     sub.IsCorrect,
			Tier:          sub.Tier,
			Attempt:       sub.Attempt,
			IP:            sub.IP,
			CreatedAt:     sub.CreatedAt.UnixMilli(),
		})
	if err != nil {
		return Submission{}, fmt.Errorf("record submission: %w", err)
	}
	return sub, nil
}

// ListByStudent returns the student's submissions, newest first.
func (s *Store) ListByStudent(ctx context.Context, studentID string, limit int) ([]Submission, error) {
	if studentID == "" {
		return nil, ErrEmptyStudentID
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var rows []row
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT
		id, stud_id, question_id, user_answer, correct_answer, is_correct, tier, attempt, ip, created_at
		FROM hw_responses WHERE stud_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`),
		studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	out := make([]Submission, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.submission())
	}
	return out, nil
}
