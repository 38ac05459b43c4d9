package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/hostdeck/hostdeck/internal/history"
	"github.com/hostdeck/hostdeck/internal/inventory"
	"github.com/hostdeck/hostdeck/internal/sshpool"
	"github.com/hostdeck/hostdeck/internal/termsession"
)

// Wired from main.go during startup.
var (
	Pool     *sshpool.Pool
	Sessions *termsession.Manager
	Hosts    *inventory.Inventory
	History  *history.Store
)

// userHeader carries the verified identity supplied by the upstream auth
// layer. Auth itself is outside this service; the header is trusted.
const userHeader = "X-Hostdeck-User"

// requestUser extracts the verified user identity from the request. The
// query parameter fallback exists for WebSocket clients that cannot set
// headers.
func requestUser(r *http.Request) string {
	if u := r.Header.Get(userHeader); u != "" {
		return u
	}
	return r.URL.Query().Get("user")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
