package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oscarlaird/gmath/internal/config"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GMATH_DATABASE_DRIVER", "none")
	return dir
}

func TestGradeCommand(t *testing.T) {
	isolate(t)

	tests := []struct {
		name     string
		args     []string
		wantOK   bool
		wantTier string
	}{
		{name: "exact", args: []string{"--user", " X + X ", "--correct", "x+x"}, wantOK: true, wantTier: "exact"},
		{name: "numeric", args: []string{"--user", "4.0005", "--correct", "4", "--numeric"}, wantOK: true, wantTier: "exact"},
		{name: "acceptable", args: []string{"--user", "2+2", "--correct", "4", "--acceptable", "2+2,2*2"}, wantOK: true, wantTier: "acceptable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, append([]string{"grade"}, tt.args...)...)
			require.NoError(t, err)

			var got gradeOutput
			require.NoError(t, json.Unmarshal([]byte(out), &got))
			assert.Equal(t, tt.wantOK, got.IsCorrect)
			assert.Equal(t, tt.wantTier, got.Tier)
		})
	}

	t.Run("numeric_flag_needs_number", func(t *testing.T) {
		_, err := runCLI(t, "grade", "--user", "4", "--correct", "four", "--numeric")
		require.Error(t, err)
	})

	t.Run("missing_flags", func(t *testing.T) {
		_, err := runCLI(t, "grade", "--user", "4")
		require.Error(t, err)
	})
}

func TestAnswersExport(t *testing.T) {
	dir := isolate(t)
	preload := filepath.Join(dir, "answers.json")
	require.NoError(t, os.WriteFile(preload, []byte(`{"q1":["2+2","2*2"]}`), 0o600))
	t.Setenv("GMATH_DATABASE_PRELOAD_FILE", preload)

	out, err := runCLI(t, "answers", "export")
	require.NoError(t, err)

	var snap map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, map[string][]string{"q1": {"2+2", "2*2"}}, snap)
}

func TestInvalidConfigFails(t *testing.T) {
	isolate(t)
	t.Setenv("GMATH_JUDGE_FALLBACK", "optimistic")

	_, err := runCLI(t, "grade", "--user", "4", "--correct", "4")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid config"))
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		obs       config.ObservabilityConfig
		wantJSON  bool
		wantDebug bool
	}{
		{name: "json_info", obs: config.ObservabilityConfig{LogLevel: "info", LogFormat: "json"}, wantJSON: true},
		{name: "text_debug", obs: config.ObservabilityConfig{LogLevel: "debug", LogFormat: "text"}, wantDebug: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, tt.obs)
			logger.Debug("debug line")
			logger.Info("info line")

			out := buf.String()
			assert.Equal(t, tt.wantDebug, strings.Contains(out, "debug line"))
			assert.Contains(t, out, "info line")
			assert.Equal(t, tt.wantJSON, strings.HasPrefix(out, "{"))
		})
	}
}
