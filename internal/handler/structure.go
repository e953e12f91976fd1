package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/haccp/internal/document"
	"github.com/dukerupert/haccp/internal/model"
	"github.com/dukerupert/haccp/internal/store"
	"github.com/dukerupert/haccp/internal/syncerr"
	"github.com/dukerupert/haccp/internal/websocket"
)

type StructureHandler struct {
	structures *store.StructureStore
	hub        *websocket.Hub
	logger     *slog.Logger
}

func NewStructureHandler(structures *store.StructureStore, hub *websocket.Hub, logger *slog.Logger) *StructureHandler {
	return &StructureHandler{structures: structures, hub: hub, logger: logger}
}

func (h *StructureHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

func (h *StructureHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.structures.List()
	if err != nil {
		h.logger.Error("list structures", "error", err)
		writeError(w, http.StatusInternalServerError, string(syncerr.KindStorage), "failed to list structures")
		return
	}
	if list == nil {
		list = []model.BackupStructure{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Put saves the structure for the path's document type. Field names the
// schema does not know are dropped.
func (h *StructureHandler) Put(w http.ResponseWriter, r *http.Request) {
	docType := r.PathValue("type")
	schema, ok := document.Lookup(docType)
	if !ok {
		writeError(w, http.StatusNotFound, string(syncerr.KindUnknownDocument), "unknown document type "+docType)
		return
	}

	var st model.BackupStructure
	if err := decodeJSON(w, r, &st); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	st.DocumentType = docType
	if st.SpreadsheetID == "" {
		st.SpreadsheetID = model.DefaultSpreadsheet
	}
	fields := st.Fields[:0]
	for _, f := range st.Fields {
		if _, ok := schema.Field(f); ok {
			fields = append(fields, f)
		}
	}
	st.Fields = fields

	if err := h.structures.Save(st); err != nil {
		h.logger.Error("save structure", "document_type", docType, "error", err)
		writeError(w, http.StatusInternalServerError, string(syncerr.KindStorage), "failed to save structure")
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityStructure, "updated", docType, st))
	writeJSON(w, http.StatusOK, st)
}

func (h *StructureHandler) Delete(w http.ResponseWriter, r *http.Request) {
	docType := r.PathValue("type")
	deleted, err := h.structures.Delete(docType)
	if err != nil {
		h.logger.Error("delete structure", "document_type", docType, "error", err)
		writeError(w, http.StatusInternalServerError, string(syncerr.KindStorage), "failed to delete structure")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found", "structure not found")
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityStructure, "deleted", docType, nil))
	w.WriteHeader(http.StatusNoContent)
}
