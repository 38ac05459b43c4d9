package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"

	"github.com/hostdeck/hostdeck/internal/config"
	"github.com/hostdeck/hostdeck/internal/database"
	"github.com/hostdeck/hostdeck/internal/handlers"
	"github.com/hostdeck/hostdeck/internal/history"
	"github.com/hostdeck/hostdeck/internal/inventory"
	"github.com/hostdeck/hostdeck/internal/logging"
	"github.com/hostdeck/hostdeck/internal/sshpool"
	"github.com/hostdeck/hostdeck/internal/termsession"
)

func main() {
	config.Load()
	logging.Init()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	hosts, err := inventory.Load(config.Cfg.InventoryPath, filepath.Join(config.Cfg.DataPath, "ssh"))
	if err != nil {
		log.Fatalf("Inventory load: %v", err)
	}
	handlers.Hosts = hosts
	log.Printf("Inventory loaded: %d host(s)", len(hosts.List()))

	pool := sshpool.NewPool(sshpool.Config{
		ConnectTimeout: config.Cfg.SSHConnectTimeout,
		IdleTimeout:    config.Cfg.PoolIdleTimeout,
		ReapInterval:   config.Cfg.PoolReapInterval,
		MaxConnections: config.Cfg.PoolMaxConns,
	})
	handlers.Pool = pool
	log.Printf("Connection pool initialized (idle_timeout=%s, reap_interval=%s, connect_timeout=%s)",
		config.Cfg.PoolIdleTimeout, config.Cfg.PoolReapInterval, config.Cfg.SSHConnectTimeout)

	kv := database.NewStore(database.DB)
	hist := history.NewStore(kv, config.Cfg.HistoryLimit, config.Cfg.HistoryTTL)
	handlers.History = hist
	log.Printf("History store initialized (limit=%d, ttl=%s)", config.Cfg.HistoryLimit, config.Cfg.HistoryTTL)

	sessions := termsession.NewManager(pool, hist)
	handlers.Sessions = sessions

	// Scheduled cleanup of expired history rows. Expiry is already enforced
	// on read; this keeps the table from accumulating dead rows.
	maint := cron.New()
	maint.AddFunc("@hourly", func() {
		if n, err := kv.PruneExpired(); err != nil {
			log.Printf("History prune: %v", err)
		} else if n > 0 {
			log.Printf("History prune: removed %d expired row(s)", n)
		}
	})
	maint.Start()

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", handlers.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/hosts", handlers.ListHosts)
		r.Get("/pool/status", handlers.PoolStatus)
		r.Get("/sessions", handlers.ListSessions)
		r.Delete("/sessions/{sessionId}", handlers.CloseSession)
		r.Get("/hosts/{name}/events", handlers.HostEvents)
		r.Get("/logs", handlers.GetLogs)
		r.Get("/hosts/{name}/history", handlers.GetHistory)
		r.Get("/hosts/{name}/history/last", handlers.GetLastCommand)
		r.Delete("/hosts/{name}/history", handlers.ClearHistory)
	})

	r.Get("/ws/terminal/{name}", handlers.TerminalWS)

	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("Listening on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Printf("Shutting down")

	maint.Stop()
	sessions.CloseAll("server shutting down")
	if err := pool.CloseAll(); err != nil {
		log.Printf("Pool shutdown: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
}
