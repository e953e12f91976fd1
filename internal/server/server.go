// Package server wires the stores, the backup engine and the HTTP API.
package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/haccp/internal/backup"
	"github.com/dukerupert/haccp/internal/config"
	"github.com/dukerupert/haccp/internal/email"
	"github.com/dukerupert/haccp/internal/handler"
	"github.com/dukerupert/haccp/internal/logging"
	"github.com/dukerupert/haccp/internal/metrics"
	"github.com/dukerupert/haccp/internal/middleware"
	"github.com/dukerupert/haccp/internal/sheets"
	"github.com/dukerupert/haccp/internal/store"
	"github.com/dukerupert/haccp/internal/token"
	ws "github.com/dukerupert/haccp/internal/websocket"
)

type Server struct {
	db           *sql.DB
	cfg          *config.Config
	hub          *ws.Hub
	stores       backup.Stores
	orchestrator *backup.Orchestrator
	scheduler    *backup.Scheduler
	backupH      *handler.BackupHandler
	settingsH    *handler.SettingsHandler
	structureH   *handler.StructureHandler
	recordH      *handler.RecordHandler
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	metrics.Register()

	hub := ws.NewHub(logging.Component(logger, "websocket"))

	kv := store.NewKVStore(db)
	stores := backup.Stores{
		Config:     store.NewConfigStore(kv),
		Structures: store.NewStructureStore(kv),
		Records:    store.NewRecordStore(kv),
		Logs:       store.NewBackupLogStore(kv),
		Leases:     store.NewLeaseStore(kv),
	}

	backupLogger := logging.Component(logger, "backup")
	signer := token.NewSigner(cfg.TokenURL, cfg.CallTimeout, logging.Component(logger, "token"))
	factory := backup.SheetsFactory(sheets.Options{
		Endpoint: cfg.SheetsEndpoint,
		Timeout:  cfg.CallTimeout,
		Logger:   logging.Component(logger, "sheets"),
	})

	orch := backup.NewOrchestrator(stores, signer, factory, backup.Options{
		DocumentTimeout: cfg.DocumentTimeout,
		Concurrency:     cfg.BackupConcurrency,
	}, backupLogger)
	orch.SetStatusCallback(func(s backup.Status) {
		hub.BroadcastBackupStatus(s.LogID, s)
	})
	if snaps := backup.NewSnapshotter(cfg.Snapshot, cfg.SnapshotPassphrase, backupLogger); snaps != nil {
		orch.SetSnapshotter(snaps)
	}
	if mail := email.NewClient(cfg.Postmark.ServerToken, cfg.Postmark.FromEmail, cfg.Postmark.AlertEmail); mail.Configured() {
		orch.SetNotifier(mail)
	}

	sched, err := backup.NewScheduler(orch, stores.Config, cfg.Location, logging.Component(logger, "scheduler"))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &Server{
		db:           db,
		cfg:          cfg,
		hub:          hub,
		stores:       stores,
		orchestrator: orch,
		scheduler:    sched,
		backupH:      handler.NewBackupHandler(orch, stores.Logs, logging.Component(logger, "backup_handler")),
		settingsH:    handler.NewSettingsHandler(stores.Config, sched, hub, logging.Component(logger, "settings")),
		structureH:   handler.NewStructureHandler(stores.Structures, hub, logging.Component(logger, "structure")),
		recordH:      handler.NewRecordHandler(stores.Records, hub, logging.Component(logger, "record")),
		rateLimiter:  middleware.NewRateLimiter(),
		logger:       logger,
	}, nil
}

// Orchestrator returns the backup orchestrator.
func (s *Server) Orchestrator() *backup.Orchestrator {
	return s.orchestrator
}

// Scheduler returns the daily backup scheduler. The caller owns Start and Stop.
func (s *Server) Scheduler() *backup.Scheduler {
	return s.scheduler
}

// Stores returns the persisted stores.
func (s *Server) Stores() backup.Stores {
	return s.stores
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", promhttp.Handler())
	outerMux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.cfg.WebSocketOrigins, logging.Component(s.logger, "websocket")))

	apiMux := http.NewServeMux()
	s.registerAPIRoutes(apiMux)
	outerMux.Handle("/api/", middleware.RequireToken(s.cfg.AdminToken)(apiMux))

	return middleware.RequestLogger(logging.Component(s.logger, "http"), "/health", "/metrics")(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		status, code = "database unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"backup": s.orchestrator.Status(),
	})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP, 6, time.Minute)
	return rl(h).ServeHTTP
}

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	// Backup triggers, status and history
	mux.HandleFunc("POST /api/backup/run", s.rateLimitedHandler(s.backupH.Run))
	mux.HandleFunc("POST /api/backup/documents/{type}", s.rateLimitedHandler(s.backupH.RunDocument))
	mux.HandleFunc("GET /api/backup/status", s.backupH.Status)
	mux.HandleFunc("GET /api/backup/logs", s.backupH.ListLogs)
	mux.HandleFunc("GET /api/backup/logs/{id}", s.backupH.GetLog)

	// Backup structures
	mux.HandleFunc("GET /api/backup/structures", s.structureH.List)
	mux.HandleFunc("PUT /api/backup/structures/{type}", s.structureH.Put)
	mux.HandleFunc("DELETE /api/backup/structures/{type}", s.structureH.Delete)

	// Settings
	mux.HandleFunc("GET /api/settings/backup", s.settingsH.GetBackup)
	mux.HandleFunc("PUT /api/settings/backup", s.settingsH.UpdateBackup)
	mux.HandleFunc("GET /api/settings/backup/schedule", s.settingsH.GetSchedule)
	mux.HandleFunc("PUT /api/settings/backup/schedule", s.settingsH.UpdateSchedule)

	// Records
	mux.HandleFunc("GET /api/document-types", handler.DocumentTypes)
	mux.HandleFunc("GET /api/records/{type}", s.recordH.List)
	mux.HandleFunc("POST /api/records/{type}", s.recordH.Create)
	mux.HandleFunc("DELETE /api/records/{type}/{id}", s.recordH.Delete)
}
