package handlers

import (
	"net/http"
	"strconv"

	"github.com/hostdeck/hostdeck/internal/logging"
)

const defaultLogLines = 200

// GetLogs returns the tail of the service log file.
// GET /api/v1/logs?lines=N
func GetLogs(w http.ResponseWriter, r *http.Request) {
	lines := defaultLogLines
	if v := r.URL.Query().Get("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 10000 {
			writeError(w, http.StatusBadRequest, "lines must be between 1 and 10000")
			return
		}
		lines = n
	}

	tail, err := logging.ReadTail(lines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read log file")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"logs": tail})
}
