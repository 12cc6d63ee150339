package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscarlaird/gmath/internal/grading"
	"github.com/oscarlaird/gmath/internal/moderation"
	"github.com/oscarlaird/gmath/internal/submissions"
)

type judgeFunc func(user, correct string) bool

func (f judgeFunc) Equivalent(_ context.Context, user, correct string) (bool, error) {
	return f(user, correct), nil
}

type failingGrader struct{}

func (failingGrader) Grade(context.Context, grading.Request) (grading.Result, error) {
	return grading.Result{}, errors.New("boom")
}

type fakeLog struct {
	mu   sync.Mutex
	subs []submissions.Submission
	err  error
}

func (f *fakeLog) Record(_ context.Context, sub submissions.Submission) (submissions.Submission, error) {
	if f.err != nil {
		return submissions.Submission{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sub.ID = "sub-1"
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeLog) ListByStudent(_ context.Context, studentID string, _ int) ([]submissions.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []submissions.Submission{}
	for i := len(f.subs) - 1; i >= 0; i-- {
		if f.subs[i].StudentID == studentID {
			out = append(out, f.subs[i])
		}
	}
	return out, nil
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type testEnv struct {
	handler    http.Handler
	judgeCalls *atomic.Int32
	answers    *moderation.Memory
	log        *fakeLog
}

func newTestEnv(t *testing.T, mutate ...func(*Deps)) *testEnv {
	t.Helper()
	calls := &atomic.Int32{}
	judge := judgeFunc(func(user, correct string) bool {
		calls.Add(1)
		return user == `\frac{1}{2}` && correct == "0.5"
	})
	quiet := slog.New(slog.DiscardHandler)
	g, err := grading.NewGrader(nil, judge, grading.WithLogger(quiet))
	require.NoError(t, err)

	env := &testEnv{judgeCalls: calls, answers: moderation.NewMemory(), log: &fakeLog{}}
	deps := Deps{
		Grader:      g,
		Answers:     env.answers,
		Submissions: env.log,
		Stats:       func() any { return map[string]int{"hits": 1} },
		Logger:      quiet,
	}
	for _, m := range mutate {
		m(&deps)
	}
	env.handler = NewServer(deps).Routes(Options{
		RequestTimeout: 5 * time.Second,
		CORSOrigins:    []string{"http://localhost:3004"},
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestGrade_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		want      bool
		wantJudge int32
	}{
		{name: "exact", body: `{"userAnswer":"4","correctAnswer":"4"}`, want: true},
		{name: "numeric_reference", body: `{"userAnswer":"4.0005","correctAnswer":4}`, want: true},
		{name: "acceptable", body: `{"userAnswer":"2+2","correctAnswer":"4","acceptableAnswers":["2+2","2*2"]}`, want: true},
		{name: "judge_rejects", body: `{"userAnswer":"5","correctAnswer":"4"}`, want: false, wantJudge: 1},
		{name: "judge_accepts", body: `{"userAnswer":"\\frac{1}{2}","correctAnswer":"0.5"}`, want: true, wantJudge: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec, out := env.do(t, http.MethodPost, "/api/grade", tt.body)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, map[string]any{"isCorrect": tt.want}, out)
			assert.Equal(t, tt.wantJudge, env.judgeCalls.Load())
		})
	}
}

func TestGrade_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantError  string
	}{
		{name: "missing_user_answer", method: http.MethodPost, path: "/api/grade", body: `{"correctAnswer":"4"}`, wantStatus: http.StatusBadRequest, wantError: "Missing required fields"},
		{name: "empty_correct_answer", method: http.MethodPost, path: "/api/grade", body: `{"userAnswer":"4","correctAnswer":""}`, wantStatus: http.StatusBadRequest, wantError: "Missing required fields"},
		{name: "null_correct_answer", method: http.MethodPost, path: "/api/grade", body: `{"userAnswer":"4","correctAnswer":null}`, wantStatus: http.StatusBadRequest, wantError: "Missing required fields"},
		{name: "negative_attempt", method: http.MethodPost, path: "/api/grade", body: `{"userAnswer":"4","correctAnswer":"4","attempt":-1}`, wantStatus: http.StatusBadRequest, wantError: "Invalid request"},
		{name: "malformed_json", method: http.MethodPost, path: "/api/grade", body: `{"userAnswer":`, wantStatus: http.StatusBadRequest, wantError: "Invalid request body"},
		{name: "boolean_correct_answer", method: http.MethodPost, path: "/api/grade", body: `{"userAnswer":"4","correctAnswer":true}`, wantStatus: http.StatusBadRequest, wantError: "Invalid request body"},
		{name: "wrong_method", method: http.MethodGet, path: "/api/grade", wantStatus: http.StatusMethodNotAllowed, wantError: "Method not allowed"},
		{name: "wrong_method_alias", method: http.MethodPut, path: "/gmath_embed/api/grade", wantStatus: http.StatusMethodNotAllowed, wantError: "Method not allowed"},
		{name: "unknown_route", method: http.MethodGet, path: "/api/nope", wantStatus: http.StatusNotFound, wantError: "Not found"},
	}

	env := newTestEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, out["error"])
		})
	}
	assert.Zero(t, env.judgeCalls.Load())

	t.Run("internal_error", func(t *testing.T) {
		env := newTestEnv(t, func(d *Deps) { d.Grader = failingGrader{} })
		rec, out := env.do(t, http.MethodPost, "/api/grade", `{"userAnswer":"4","correctAnswer":"4"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Internal server error", out["error"])
	})
}

func TestGrade_AliasRoute(t *testing.T) {
	env := newTestEnv(t)
	rec, out := env.do(t, http.MethodPost, "/gmath_embed/api/grade", `{"userAnswer":" X + X ","correctAnswer":"x+x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["isCorrect"])
}

func TestGrade_MergesModeratedAnswers(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.answers.Add(context.Background(), "q7", "2+2"))

	rec, out := env.do(t, http.MethodPost, "/api/grade", `{"userAnswer":"2+2","correctAnswer":"4","questionId":"q7"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["isCorrect"])
	assert.Zero(t, env.judgeCalls.Load())
}

func TestGrade_RecordsSubmission(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/grade",
		strings.NewReader(`{"userAnswer":"5","correctAnswer":4,"studentId":"s1","questionId":"q1","attempt":2}`))
	req.RemoteAddr = "203.0.113.9:4321"
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, env.log.subs, 1)
	sub := env.log.subs[0]
	assert.Equal(t, "s1", sub.StudentID)
	assert.Equal(t, "q1", sub.QuestionID)
	assert.Equal(t, "4", sub.CorrectAnswer)
	assert.False(t, sub.IsCorrect)
	assert.Equal(t, "semantic", sub.Tier)
	assert.Equal(t, 2, sub.Attempt)
	assert.Equal(t, "203.0.113.9", sub.IP)

	t.Run("listed_newest_first", func(t *testing.T) {
		rec, out := env.do(t, http.MethodGet, "/api/students/s1/responses", "")
		require.Equal(t, http.StatusOK, rec.Code)
		responses, ok := out["responses"].([]any)
		require.True(t, ok)
		assert.Len(t, responses, 1)
	})

	t.Run("recording_failure_does_not_fail_grading", func(t *testing.T) {
		env := newTestEnv(t, func(d *Deps) { d.Submissions = &fakeLog{err: errors.New("db down")} })
		rec, out := env.do(t, http.MethodPost, "/api/grade", `{"userAnswer":"4","correctAnswer":"4","studentId":"s1"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, out["isCorrect"])
	})

	t.Run("responses_route_absent_when_disabled", func(t *testing.T) {
		env := newTestEnv(t, func(d *Deps) { d.Submissions = nil })
		rec, _ := env.do(t, http.MethodGet, "/api/students/s1/responses", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid_limit", func(t *testing.T) {
		rec, out := env.do(t, http.MethodGet, "/api/students/s1/responses?limit=x", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid limit", out["error"])
	})
}

func TestAcceptableAnswers(t *testing.T) {
	env := newTestEnv(t)

	rec, out := env.do(t, http.MethodPost, "/api/acceptable-answers", `{"questionId":"q1","action":"get"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, out["answers"])

	rec, out = env.do(t, http.MethodPost, "/api/acceptable-answers", `{"questionId":"q1","answer":"2*2","action":"add"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])

	rec, out = env.do(t, http.MethodPost, "/api/acceptable-answers", `{"questionId":"q1","action":"get"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"2*2"}, out["answers"])

	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{name: "unknown_action", body: `{"questionId":"q1","action":"delete"}`, wantError: "Invalid action"},
		{name: "missing_action", body: `{"questionId":"q1"}`, wantError: "Invalid action"},
		{name: "malformed", body: `not json`, wantError: "Invalid request"},
		{name: "missing_question", body: `{"action":"get"}`, wantError: "Invalid request"},
		{name: "add_without_answer", body: `{"questionId":"q1","action":"add"}`, wantError: "Invalid request"},
		{name: "blank_answer", body: `{"questionId":"q1","answer":"   ","action":"add"}`, wantError: "Invalid request"},
		{name: "blank_question", body: `{"questionId":"  ","answer":"4","action":"add"}`, wantError: "Invalid request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := env.do(t, http.MethodPost, "/api/acceptable-answers", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantError, out["error"])
		})
	}
}

func TestHealthAndStats(t *testing.T) {
	env := newTestEnv(t)

	rec, out := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])

	rec, out = env.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", out["status"])

	rec, out = env.do(t, http.MethodGet, "/debug/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), out["hits"])

	t.Run("database_down", func(t *testing.T) {
		env := newTestEnv(t, func(d *Deps) { d.DB = fakePinger{err: errors.New("refused")} })
		rec, out := env.do(t, http.MethodGet, "/readyz", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "unavailable", out["status"])
	})
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/grade", nil)
	req.Header.Set("Origin", "http://localhost:3004")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3004", rec.Header().Get("Access-Control-Allow-Origin"))
}
