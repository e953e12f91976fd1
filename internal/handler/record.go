package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/haccp/internal/document"
	"github.com/dukerupert/haccp/internal/model"
	"github.com/dukerupert/haccp/internal/store"
	"github.com/dukerupert/haccp/internal/syncerr"
	"github.com/dukerupert/haccp/internal/websocket"
)

type RecordHandler struct {
	records *store.RecordStore
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewRecordHandler(records *store.RecordStore, hub *websocket.Hub, logger *slog.Logger) *RecordHandler {
	return &RecordHandler{records: records, hub: hub, logger: logger}
}

func (h *RecordHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

// schema resolves the path's document type, writing a 404 when unknown.
func (h *RecordHandler) schema(w http.ResponseWriter, r *http.Request) (*document.Schema, bool) {
	docType := r.PathValue("type")
	s, ok := document.Lookup(docType)
	if !ok {
		writeError(w, http.StatusNotFound, string(syncerr.KindUnknownDocument), "unknown document type "+docType)
	}
	return s, ok
}

func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := h.schema(w, r)
	if !ok {
		return
	}
	records, skipped, err := h.records.List(s.Prefix)
	if err != nil {
		h.logger.Error("list records", "document_type", s.Type, "error", err)
		writeError(w, http.StatusInternalServerError, string(syncerr.KindStorage), "failed to list records")
		return
	}
	if len(skipped) > 0 {
		h.logger.Warn("skipped unreadable records", "document_type", s.Type, "keys", skipped)
	}
	if records == nil {
		records = []model.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	s, ok := h.schema(w, r)
	if !ok {
		return
	}
	if s.Rule == document.RuleDashboard {
		writeError(w, http.StatusBadRequest, "invalid_request", s.Type+" is derived from ccp records and cannot be written")
		return
	}

	var rec model.Record
	if err := decodeJSON(w, r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if missing := s.Missing(rec); len(missing) > 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing required fields: "+strings.Join(missing, ", "))
		return
	}

	created, err := h.records.Create(s.Prefix, rec)
	if errors.Is(err, store.ErrRecordExists) {
		writeError(w, http.StatusConflict, "record_exists", "a record with id "+rec.ID()+" already exists")
		return
	}
	if err != nil {
		h.logger.Error("create record", "document_type", s.Type, "error", err)
		writeError(w, http.StatusInternalServerError, string(syncerr.KindStorage), "failed to create record")
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityRecord, "created", created.ID(), map[string]string{"documentType": s.Type}))
	writeJSON(w, http.StatusCreated, created)
}

func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	s, ok := h.schema(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	deleted, err := h.records.Delete(s.Prefix, id)
	if err != nil {
		h.logger.Error("delete record", "document_type", s.Type, "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, string(syncerr.KindStorage), "failed to delete record")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found", "record not found")
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityRecord, "deleted", id, map[string]string{"documentType": s.Type}))
	w.WriteHeader(http.StatusNoContent)
}

type documentType struct {
	Type    string           `json:"type"`
	Title   string           `json:"title"`
	Rule    string           `json:"rule"`
	Fields  []document.Field `json:"fields"`
	Columns []string         `json:"columns"`
}

// DocumentTypes lists every registered document type with its columns.
func DocumentTypes(w http.ResponseWriter, r *http.Request) {
	var out []documentType
	for _, s := range document.Schemas() {
		header, _ := document.HeaderFor(s.Type)
		out = append(out, documentType{
			Type:    s.Type,
			Title:   s.Title,
			Rule:    string(s.Rule),
			Fields:  s.Fields,
			Columns: header,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
