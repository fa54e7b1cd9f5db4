package rest

import (
	"net/http"
	"strings"

	"smpserver/internal/smp/models"
	dErrors "smpserver/pkg/domain-errors"
)

func (h *Handler) handleListServiceGroups(w http.ResponseWriter, r *http.Request) {
	participants, err := h.groups.ListParticipants(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.String())
	}
	h.respond(w, http.StatusOK, map[string]any{"participant_ids": ids})
}

func (h *Handler) handleCreateServiceGroup(w http.ResponseWriter, r *http.Request) {
	participant, err := h.participantParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req createServiceGroupRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	sg, err := h.groups.Create(r.Context(), callerFrom(r), participant, req.OwnerID, req.Extension)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, toServiceGroupResponse(*sg))
}

func (h *Handler) handleGetServiceGroup(w http.ResponseWriter, r *http.Request) {
	participant, err := h.participantParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sg, err := h.groups.Get(r.Context(), participant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toServiceGroupResponse(*sg))
}

func (h *Handler) handleDeleteServiceGroup(w http.ResponseWriter, r *http.Request) {
	participant, err := h.participantParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	// Deregistration from the locator is the default; deregister=false keeps
	// the locator entry, which finalizing an outbound migration relies on.
	deregister := !strings.EqualFold(r.URL.Query().Get("deregister"), "false")
	deleted, err := h.groups.Delete(r.Context(), callerFrom(r), participant, deregister)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !deleted {
		h.writeError(w, r, dErrors.Newf(dErrors.CodeNotFound, "service group %s does not exist", participant))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListServiceInformation(w http.ResponseWriter, r *http.Request) {
	participant, err := h.participantParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	infos, err := h.infos.GetOfServiceGroup(r.Context(), participant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]serviceInformationResponse, 0, len(infos))
	for _, si := range infos {
		resp = append(resp, toServiceInformationResponse(si))
	}
	h.respond(w, http.StatusOK, map[string]any{"service_information": resp})
}

func (h *Handler) handlePutServiceInformation(w http.ResponseWriter, r *http.Request) {
	participant, err := h.participantParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	docType, err := h.documentTypeParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req serviceInformationRequest
	if !h.decode(w, r, &req) {
		return
	}
	si, err := req.toModel(h.factory, participant, docType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	stored, err := h.infos.CreateOrUpdate(r.Context(), callerFrom(r), si, boolQuery(r, "overwrite"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toServiceInformationResponse(*stored))
}

func (h *Handler) handleGetServiceInformation(w http.ResponseWriter, r *http.Request) {
	participant, err := h.participantParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	docType, err := h.documentTypeParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	si, err := h.infos.Get(r.Context(), participant, docType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toServiceInformationResponse(*si))
}

func (h *Handler) handleDeleteServiceInformation(w http.ResponseWriter, r *http.Request) {
	participant, err := h.participantParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	docType, err := h.documentTypeParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	deleted, err := h.infos.Delete(r.Context(), callerFrom(r), participant, docType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !deleted {
		h.writeError(w, r, dErrors.Newf(dErrors.CodeNotFound, "no service information for %s under %s", docType, participant))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListRedirects(w http.ResponseWriter, r *http.Request) {
	participant, err := h.participantParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	redirects, err := h.redirects.GetOfServiceGroup(r.Context(), participant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]redirectResponse, 0, len(redirects))
	for _, red := range redirects {
		resp = append(resp, toRedirectResponse(red))
	}
	h.respond(w, http.StatusOK, map[string]any{"redirects": resp})
}

func (h *Handler) handlePutRedirect(w http.ResponseWriter, r *http.Request) {
	participant, err := h.participantParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	docType, err := h.documentTypeParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req redirectRequest
	if !h.decode(w, r, &req) {
		return
	}
	red := models.Redirect{
		Participant:     participant,
		DocumentType:    docType,
		TargetURL:       req.TargetURL,
		SubjectUniqueID: req.SubjectUniqueID,
		Extension:       req.Extension,
	}
	stored, err := h.redirects.CreateOrUpdate(r.Context(), callerFrom(r), red, boolQuery(r, "overwrite"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toRedirectResponse(*stored))
}

func (h *Handler) handleDeleteRedirect(w http.ResponseWriter, r *http.Request) {
	participant, err := h.participantParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	docType, err := h.documentTypeParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	deleted, err := h.redirects.Delete(r.Context(), callerFrom(r), participant, docType)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !deleted {
		h.writeError(w, r, dErrors.Newf(dErrors.CodeNotFound, "no redirect for %s under %s", docType, participant))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePutBusinessCard(w http.ResponseWriter, r *http.Request) {
	participant, err := h.participantParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req businessCardRequest
	if !h.decode(w, r, &req) {
		return
	}
	stored, err := h.cards.Put(r.Context(), callerFrom(r), req.toModel(participant))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toBusinessCardResponse(*stored))
}

func (h *Handler) handleGetBusinessCard(w http.ResponseWriter, r *http.Request) {
	participant, err := h.participantParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	bc, err := h.cards.Get(r.Context(), participant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, toBusinessCardResponse(*bc))
}

func (h *Handler) handleDeleteBusinessCard(w http.ResponseWriter, r *http.Request) {
	participant, err := h.participantParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	deleted, err := h.cards.Delete(r.Context(), callerFrom(r), participant)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !deleted {
		h.writeError(w, r, dErrors.Newf(dErrors.CodeNotFound, "no business card for %s", participant))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
