package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hostdeck/hostdeck/internal/termsession"
)

// sessionInfo is the JSON representation of a terminal session.
type sessionInfo struct {
	ID        string                    `json:"id"`
	UserID    string                    `json:"user_id"`
	HostID    string                    `json:"host_id"`
	Status    termsession.SessionStatus `json:"status"`
	Cols      uint16                    `json:"cols"`
	Rows      uint16                    `json:"rows"`
	CreatedAt time.Time                 `json:"created_at"`
}

func toSessionInfo(s *termsession.Session) sessionInfo {
	size := s.PTYSize()
	return sessionInfo{
		ID:        s.ID,
		UserID:    s.UserID,
		HostID:    s.HostID,
		Status:    s.Status(),
		Cols:      size.Cols,
		Rows:      size.Rows,
		CreatedAt: s.CreatedAt,
	}
}

// ListSessions returns the requesting user's live terminal sessions.
// GET /api/v1/sessions
func ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Missing user identity")
		return
	}
	if Sessions == nil {
		writeJSON(w, http.StatusOK, map[string][]sessionInfo{"sessions": {}})
		return
	}

	sessions := Sessions.ListSessions(userID)
	result := make([]sessionInfo, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, toSessionInfo(s))
	}
	writeJSON(w, http.StatusOK, map[string][]sessionInfo{"sessions": result})
}

// CloseSession terminates one of the requesting user's sessions.
// DELETE /api/v1/sessions/{sessionId}
func CloseSession(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Missing user identity")
		return
	}
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "Session ID required")
		return
	}
	if Sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "Session manager not initialized")
		return
	}

	s := Sessions.GetSession(sessionID)
	if s == nil || s.UserID != userID {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	Sessions.CloseSession(sessionID, "closed by user")
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}
