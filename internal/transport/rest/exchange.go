package rest

import (
	"encoding/xml"
	"net/http"

	"smpserver/internal/smp/exchange"
	dErrors "smpserver/pkg/domain-errors"
)

// handleExport streams the full registry as an exchange document. Admin only:
// the export crosses ownership boundaries.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if !caller.Admin {
		h.writeError(w, r, dErrors.New(dErrors.CodeForbidden, "registry export requires an administrative caller"))
		return
	}
	doc, err := h.exporter.Export(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondXML(w, r, http.StatusOK, doc)
}

// handleImport applies an uploaded exchange document. The action log is the
// outcome: per-participant failures land there, not in the HTTP status.
func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if !caller.Admin {
		h.writeError(w, r, dErrors.New(dErrors.CodeForbidden, "registry import requires an administrative caller"))
		return
	}
	var doc exchange.Document
	if err := xml.NewDecoder(r.Body).Decode(&doc); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "invalid exchange document"))
		return
	}
	opts := exchange.ImportOptions{
		Overwrite:    boolQuery(r, "overwrite-existing"),
		DefaultOwner: r.URL.Query().Get("default-owner"),
	}
	result, err := h.importer.Import(r.Context(), caller.ID, &doc, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondXML(w, r, http.StatusOK, result)
}

func (h *Handler) respondXML(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return
	}
	if err := xml.NewEncoder(w).Encode(body); err != nil {
		h.logger.ErrorContext(r.Context(), "response encoding failed",
			"path", r.URL.Path,
			"error", err.Error(),
		)
	}
}
