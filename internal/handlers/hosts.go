package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hostdeck/hostdeck/internal/sshpool"
)

// ListHosts returns the managed-host inventory. Credentials never appear in
// the response.
// GET /api/v1/hosts
func ListHosts(w http.ResponseWriter, r *http.Request) {
	if Hosts == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"hosts": []interface{}{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"hosts": Hosts.List()})
}

// PoolStatus reports every pooled connection with its state and reference
// count.
// GET /api/v1/pool/status
func PoolStatus(w http.ResponseWriter, r *http.Request) {
	if Pool == nil {
		writeError(w, http.StatusServiceUnavailable, "Connection pool not initialized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"connections": Pool.Status()})
}

// HostEvents returns the recent connection lifecycle events for a host:
// handshakes, faults, evictions.
// GET /api/v1/hosts/{name}/events
func HostEvents(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	host, ok := Hosts.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "Host not found")
		return
	}
	if Pool == nil {
		writeError(w, http.StatusServiceUnavailable, "Connection pool not initialized")
		return
	}
	events := Pool.Events(host.Identity())
	if events == nil {
		events = []sshpool.ConnectionEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
