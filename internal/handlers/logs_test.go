package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hostdeck/hostdeck/internal/config"
)

func newLogsRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/logs", GetLogs)
	return r
}

func setupLogFile(t *testing.T, content string) {
	t.Helper()
	orig := config.Cfg.LogPath
	t.Cleanup(func() { config.Cfg.LogPath = orig })

	path := filepath.Join(t.TempDir(), "hostdeck.log")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	config.Cfg.LogPath = path
}

func TestGetLogsTail(t *testing.T) {
	setupLogFile(t, "line one\nline two\nline three\n")

	w := doRequest(t, newLogsRouter(), http.MethodGet, "/api/v1/logs?lines=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Logs string `json:"logs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Logs != "line two\nline three" {
		t.Errorf("logs = %q, want last two lines", body.Logs)
	}
}

func TestGetLogsDefaultLines(t *testing.T) {
	setupLogFile(t, "only line\n")

	w := doRequest(t, newLogsRouter(), http.MethodGet, "/api/v1/logs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Logs string `json:"logs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Logs != "only line" {
		t.Errorf("logs = %q, want %q", body.Logs, "only line")
	}
}

func TestGetLogsMissingFile(t *testing.T) {
	setupLogFile(t, "")

	w := doRequest(t, newLogsRouter(), http.MethodGet, "/api/v1/logs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Logs string `json:"logs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Logs != "" {
		t.Errorf("logs = %q, want empty for missing file", body.Logs)
	}
}

func TestGetLogsInvalidLines(t *testing.T) {
	setupLogFile(t, "line\n")

	for _, q := range []string{"lines=0", "lines=-5", "lines=abc", "lines=99999"} {
		w := doRequest(t, newLogsRouter(), http.MethodGet, "/api/v1/logs?"+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status for %q = %d, want %d", q, w.Code, http.StatusBadRequest)
		}
	}
}
