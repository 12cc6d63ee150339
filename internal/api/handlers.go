package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/oscarlaird/gmath/internal/grading"
	"github.com/oscarlaird/gmath/internal/moderation"
	"github.com/oscarlaird/gmath/internal/submissions"
)

type gradeRequest struct {
	UserAnswer        string         `json:"userAnswer" validate:"required"`
	CorrectAnswer     grading.Answer `json:"correctAnswer" validate:"required"`
	AcceptableAnswers []string       `json:"acceptableAnswers"`
	QuestionID        string         `json:"questionId"`
	StudentID         string         `json:"studentId"`
	Attempt           int            `json:"attempt" validate:"gte=0"`
}

type gradeResponse struct {
	IsCorrect bool `json:"isCorrect"`
}

// POST /api/grade
func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body gradeRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validate.Struct(body); err != nil {
		details, missing := validationDetails(err, s.trans)
		msg := "Invalid request"
		if missing {
			msg = "Missing required fields"
		}
		writeError(w, http.StatusBadRequest, msg, details...)
		return
	}

	acceptable := body.AcceptableAnswers
	if body.QuestionID != "" && s.answers != nil {
		moderated, err := s.answers.Get(ctx, body.QuestionID)
		if err != nil {
			s.logger.WarnContext(ctx, "loading moderated answers failed",
				"question_id", body.QuestionID, "error", err)
		} else {
			acceptable = grading.MergeAcceptable(acceptable, moderated)
		}
	}

	res, err := s.grader.Grade(ctx, grading.Request{
		UserAnswer:        body.UserAnswer,
		CorrectAnswer:     body.CorrectAnswer,
		AcceptableAnswers: acceptable,
	})
	if err != nil {
		var verr *grading.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, "Missing required fields", verr.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// The client is gone or the timeout middleware answers.
			s.logger.InfoContext(ctx, "grading abandoned", "error", err)
		default:
			s.logger.ErrorContext(ctx, "grading failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	if body.StudentID != "" && s.submissions != nil {
		s.record(ctx, r, body, res)
	}
	writeJSON(w, http.StatusOK, gradeResponse{IsCorrect: res.IsCorrect})
}

func (s *Server) record(ctx context.Context, r *http.Request, body gradeRequest, res grading.Result) {
	_, err := s.submissions.Record(ctx, submissions.Submission{
		StudentID:     body.StudentID,
		QuestionID:    body.QuestionID,
		UserAnswer:    body.UserAnswer,
		CorrectAnswer: body.CorrectAnswer.String(),
		IsCorrect:     res.IsCorrect,
		Tier:          string(res.Tier),
		Attempt:       body.Attempt,
		IP:            clientIP(r),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "recording submission failed",
			"student_id", body.StudentID, "error", err)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type answersRequest struct {
	QuestionID string `json:"questionId" validate:"required"`
	Answer     string `json:"answer" validate:"required_if=Action add"`
	Action     string `json:"action"`
}

// POST /api/acceptable-answers
func (s *Server) handleAcceptableAnswers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body answersRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if body.Action != "get" && body.Action != "add" {
		writeError(w, http.StatusBadRequest, "Invalid action")
		return
	}
	if err := s.validate.Struct(body); err != nil {
		details, _ := validationDetails(err, s.trans)
		writeError(w, http.StatusBadRequest, "Invalid request", details...)
		return
	}

	switch body.Action {
	case "get":
		answers, err := s.answers.Get(ctx, body.QuestionID)
		if err != nil {
			s.logger.ErrorContext(ctx, "get acceptable answers failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"answers": answers})
	case "add":
		err := s.answers.Add(ctx, body.QuestionID, body.Answer)
		if errors.Is(err, moderation.ErrEmptyQuestionID) || errors.Is(err, moderation.ErrEmptyAnswer) {
			writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
			return
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "add acceptable answer failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		s.logger.InfoContext(ctx, "acceptable answer added", "question_id", body.QuestionID)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

// GET /api/students/{studentID}/responses
func (s *Server) handleStudentResponses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	studentID := chi.URLParam(r, "studentID")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	responses, err := s.submissions.ListByStudent(ctx, studentID, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "listing submissions failed", "student_id", studentID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"responses": responses})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, s.stats())
}
