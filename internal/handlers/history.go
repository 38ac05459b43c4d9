package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetHistory returns the command history for the requesting user on a host,
// oldest first.
// GET /api/v1/hosts/{name}/history
func GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Missing user identity")
		return
	}
	name := chi.URLParam(r, "name")
	if _, ok := Hosts.Get(name); !ok {
		writeError(w, http.StatusNotFound, "Host not found")
		return
	}

	entries, err := History.List(userID, name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// GetLastCommand returns the newest history entry for the requesting user
// on a host, for retry-last-command UX.
// GET /api/v1/hosts/{name}/history/last
func GetLastCommand(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Missing user identity")
		return
	}
	name := chi.URLParam(r, "name")
	if _, ok := Hosts.Get(name); !ok {
		writeError(w, http.StatusNotFound, "Host not found")
		return
	}

	entry, ok, err := History.Last(userID, name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "No history for this host")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ClearHistory removes the whole history collection for the requesting user
// on a host.
// DELETE /api/v1/hosts/{name}/history
func ClearHistory(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Missing user identity")
		return
	}
	name := chi.URLParam(r, "name")
	if _, ok := Hosts.Get(name); !ok {
		writeError(w, http.StatusNotFound, "Host not found")
		return
	}

	if err := History.Clear(userID, name); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clear history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
