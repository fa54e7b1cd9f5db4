package rest

import (
	"net/http"

	"smpserver/internal/smp/models"
	dErrors "smpserver/pkg/domain-errors"
)

func (h *Handler) handleCreateOutboundMigration(w http.ResponseWriter, r *http.Request) {
	var req createMigrationRequest
	if !h.decode(w, r, &req) {
		return
	}
	participant, err := h.factory.ParseParticipant(req.ParticipantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	m, err := h.migrations.CreateOutbound(r.Context(), callerFrom(r), participant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, toMigrationResponse(*m))
}

func (h *Handler) handleCreateInboundMigration(w http.ResponseWriter, r *http.Request) {
	var req createMigrationRequest
	if !h.decode(w, r, &req) {
		return
	}
	participant, err := h.factory.ParseParticipant(req.ParticipantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	m, err := h.migrations.CreateInbound(r.Context(), callerFrom(r), participant, req.MigrationKey)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, toMigrationResponse(*m))
}

func (h *Handler) handleListMigrations(w http.ResponseWriter, r *http.Request) {
	direction := models.MigrationDirection(r.URL.Query().Get("direction"))
	list, err := h.migrations.List(r.Context(), direction)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]migrationResponse, 0, len(list))
	for _, m := range list {
		resp = append(resp, toMigrationResponse(m))
	}
	h.respond(w, http.StatusOK, map[string]any{"migrations": resp})
}

func (h *Handler) handleCancelMigration(w http.ResponseWriter, r *http.Request) {
	migrationID := pathParam(r, "migrationID")
	if err := h.migrations.Cancel(r.Context(), callerFrom(r), migrationID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFinalizeOutbound(w http.ResponseWriter, r *http.Request) {
	migrationID := pathParam(r, "migrationID")
	if err := h.migrations.FinalizeOutbound(r.Context(), callerFrom(r), migrationID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFinalizeInbound(w http.ResponseWriter, r *http.Request) {
	migrationID := pathParam(r, "migrationID")
	caller := callerFrom(r)
	if caller.ID == "" && !caller.Admin {
		h.writeError(w, r, dErrors.New(dErrors.CodeForbidden, "caller identity is required"))
		return
	}
	var req finalizeInboundRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	if err := h.migrations.FinalizeInbound(r.Context(), caller, migrationID, req.Extension); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
