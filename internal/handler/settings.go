package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/haccp/internal/credential"
	"github.com/dukerupert/haccp/internal/model"
	"github.com/dukerupert/haccp/internal/store"
	"github.com/dukerupert/haccp/internal/syncerr"
	"github.com/dukerupert/haccp/internal/websocket"
)

// ScheduleUpdater is the running scheduler.
type ScheduleUpdater interface {
	Schedule() model.Schedule
	Update(sched model.Schedule) error
}

type SettingsHandler struct {
	configs   *store.ConfigStore
	scheduler ScheduleUpdater
	hub       *websocket.Hub
	logger    *slog.Logger
}

func NewSettingsHandler(configs *store.ConfigStore, scheduler ScheduleUpdater, hub *websocket.Hub, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{configs: configs, scheduler: scheduler, hub: hub, logger: logger}
}

func (h *SettingsHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

// backupSettings never carries the private key.
type backupSettings struct {
	Configured    bool       `json:"configured"`
	SpreadsheetID string     `json:"spreadsheet_id"`
	ClientEmail   string     `json:"client_email,omitempty"`
	ProjectID     string     `json:"project_id,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

func (h *SettingsHandler) GetBackup(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.configs.GetBackupConfig()
	if err != nil {
		h.logger.Error("get backup config", "error", err)
		writeError(w, http.StatusInternalServerError, string(syncerr.KindStorage), "failed to get backup settings")
		return
	}
	writeJSON(w, http.StatusOK, describe(cfg))
}

func describe(cfg *model.BackupConfig) backupSettings {
	var out backupSettings
	if cfg == nil {
		return out
	}
	out.SpreadsheetID = cfg.SpreadsheetID
	out.UpdatedAt = &cfg.UpdatedAt
	if cred, err := credential.Parse(cfg.ServiceAccountJSON); err == nil {
		out.ClientEmail = cred.ClientEmail
		out.ProjectID = cred.ProjectID
		out.Configured = cfg.SpreadsheetID != ""
	}
	return out
}

type backupSettingsRequest struct {
	SpreadsheetID      string `json:"spreadsheet_id"`
	ServiceAccountJSON string `json:"service_account_json"`
}

// UpdateBackup saves the spreadsheet id and service account. An empty
// service_account_json keeps the saved one.
func (h *SettingsHandler) UpdateBackup(w http.ResponseWriter, r *http.Request) {
	var req backupSettingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.SpreadsheetID = strings.TrimSpace(req.SpreadsheetID)
	if req.SpreadsheetID == "" {
		writeError(w, http.StatusBadRequest, string(syncerr.KindConfigMissing), "spreadsheet_id is required")
		return
	}

	if req.ServiceAccountJSON == "" {
		current, err := h.configs.GetBackupConfig()
		if err != nil {
			h.logger.Error("get backup config", "error", err)
			writeError(w, http.StatusInternalServerError, string(syncerr.KindStorage), "failed to get backup settings")
			return
		}
		if current == nil || current.ServiceAccountJSON == "" {
			writeError(w, http.StatusBadRequest, string(syncerr.KindConfigMissing), "service_account_json is required")
			return
		}
		req.ServiceAccountJSON = current.ServiceAccountJSON
	}

	if _, err := credential.Parse(req.ServiceAccountJSON); err != nil {
		writeError(w, http.StatusBadRequest, string(syncerr.KindOf(err)), err.Error())
		return
	}

	saved, err := h.configs.SaveBackupConfig(req.SpreadsheetID, req.ServiceAccountJSON)
	if err != nil {
		h.logger.Error("save backup config", "error", err)
		writeError(w, http.StatusInternalServerError, string(syncerr.KindStorage), "failed to save backup settings")
		return
	}

	h.broadcast(websocket.NewMessage("settings", "updated", "backup", nil))
	writeJSON(w, http.StatusOK, describe(saved))
}

func (h *SettingsHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Schedule())
}

func (h *SettingsHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var sched model.Schedule
	if err := decodeJSON(w, r, &sched); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if sched.Hour < 0 || sched.Hour > 23 || sched.Minute < 0 || sched.Minute > 59 {
		writeError(w, http.StatusBadRequest, "invalid_request", "hour must be 0-23 and minute 0-59")
		return
	}
	if err := h.scheduler.Update(sched); err != nil {
		h.logger.Error("update backup schedule", "error", err)
		writeError(w, http.StatusInternalServerError, string(syncerr.KindStorage), "failed to save schedule")
		return
	}

	h.broadcast(websocket.NewMessage("settings", "updated", "schedule", sched))
	writeJSON(w, http.StatusOK, sched)
}
