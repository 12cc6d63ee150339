// Package api serves the grading engine over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/oscarlaird/gmath/internal/grading"
	"github.com/oscarlaird/gmath/internal/moderation"
	"github.com/oscarlaird/gmath/internal/submissions"
)

// Grader grades one answer.
type Grader interface {
	Grade(ctx context.Context, req grading.Request) (grading.Result, error)
}

// SubmissionLog records and lists graded answers.
type SubmissionLog interface {
	Record(ctx context.Context, sub submissions.Submission) (submissions.Submission, error)
	ListByStudent(ctx context.Context, studentID string, limit int) ([]submissions.Submission, error)
}

// Pinger reports database reachability.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators behind the handlers. Grader and Answers are
// required; a nil Submissions disables recording and the responses route, a
// nil DB makes readiness unconditional.
type Deps struct {
	Grader      Grader
	Answers     moderation.Store
	Submissions SubmissionLog
	DB          Pinger
	Stats       func() any
	Logger      *slog.Logger
}

// Options tune the middleware stack.
type Options struct {
	RequestTimeout time.Duration
	CORSOrigins    []string
}

// Server holds the handler dependencies.
type Server struct {
	grader      Grader
	answers     moderation.Store
	submissions SubmissionLog
	db          Pinger
	stats       func() any
	logger      *slog.Logger
	validate    *validator.Validate
	trans       ut.Translator
}

// NewServer wires the dependencies.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "api")
	}
	validate, trans := newValidator()
	return &Server{
		grader:      deps.Grader,
		answers:     deps.Answers,
		submissions: deps.Submissions,
		db:          deps.DB,
		stats:       deps.Stats,
		logger:      logger,
		validate:    validate,
		trans:       trans,
	}
}

// Routes builds the router with its middleware stack.
func (s *Server) Routes(opts Options) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(s.logger), middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/debug/stats", s.handleStats)

	r.Route("/api", func(r chi.Router) {
		r.Post("/grade", s.handleGrade)
		r.Post("/acceptable-answers", s.handleAcceptableAnswers)
		if s.submissions != nil {
			r.Get("/students/{studentID}/responses", s.handleStudentResponses)
		}
	})
	// The embedded homework page posts under its own base path.
	r.Post("/gmath_embed/api/grade", s.handleGrade)

	return r
}
