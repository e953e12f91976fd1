package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/haccp/internal/backup"
	"github.com/dukerupert/haccp/internal/store"
	"github.com/dukerupert/haccp/internal/syncerr"
)

// Runner starts backups.
type Runner interface {
	RunManual(ctx context.Context) backup.Outcome
	RunDocument(ctx context.Context, docType, spreadsheetID, sheetName string) backup.Outcome
	Status() backup.Status
}

type BackupHandler struct {
	runner Runner
	logs   *store.BackupLogStore
	logger *slog.Logger
}

func NewBackupHandler(runner Runner, logs *store.BackupLogStore, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{runner: runner, logs: logs, logger: logger}
}

// outcomeStatus maps an outcome to an HTTP status. A run that started
// answers 200 whatever its result; the body says how it ended.
func outcomeStatus(out backup.Outcome) int {
	if out.Data != nil || out.Error == nil {
		return http.StatusOK
	}
	switch out.Error.Kind {
	case syncerr.KindInProgress:
		return http.StatusConflict
	case syncerr.KindUnknownDocument:
		return http.StatusNotFound
	case syncerr.KindStorage:
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	out := h.runner.RunManual(r.Context())
	writeJSON(w, outcomeStatus(out), out)
}

type documentRunRequest struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	SheetName     string `json:"sheet_name"`
}

func (h *BackupHandler) RunDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRunRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	out := h.runner.RunDocument(r.Context(), r.PathValue("type"), req.SpreadsheetID, req.SheetName)
	writeJSON(w, outcomeStatus(out), out)
}

func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.runner.Status())
}

func (h *BackupHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	logs, err := h.logs.List(limit)
	if err != nil {
		h.logger.Error("list backup logs", "error", err)
		writeError(w, http.StatusInternalServerError, string(syncerr.KindStorage), "failed to list backup logs")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *BackupHandler) GetLog(w http.ResponseWriter, r *http.Request) {
	entry, err := h.logs.Get(r.PathValue("id"))
	if err != nil {
		h.logger.Error("get backup log", "error", err)
		writeError(w, http.StatusInternalServerError, string(syncerr.KindStorage), "failed to get backup log")
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "not_found", "backup log not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
