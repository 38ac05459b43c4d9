package handlers

import (
	"net/http"

	"github.com/hostdeck/hostdeck/internal/database"
)

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbStatus = "connected"
			}
		}
	}

	status := "healthy"
	if dbStatus != "connected" {
		status = "unhealthy"
	}

	connections := 0
	sessions := 0
	if Pool != nil {
		connections = Pool.ConnectionCount()
	}
	if Sessions != nil {
		sessions = Sessions.SessionCount()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      status,
		"database":    dbStatus,
		"connections": connections,
		"sessions":    sessions,
	})
}
