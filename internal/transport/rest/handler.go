// Package rest is the thin HTTP layer over the registry services. Handlers
// parse requests, delegate to services, and map coded domain errors onto
// status codes; no business rules live here.
//
// Authentication is handled by the fronting layer: the caller identity
// arrives pre-authenticated in the X-SMP-User header, and X-SMP-Role: admin
// marks administrative callers. Services enforce ownership from there.
package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"smpserver/internal/smp/exchange"
	"smpserver/internal/smp/service"
	dErrors "smpserver/pkg/domain-errors"
	"smpserver/pkg/identifier"
)

// Handler exposes the registry over HTTP.
type Handler struct {
	logger     *slog.Logger
	factory    identifier.Factory
	groups     *service.ServiceGroupService
	infos      *service.ServiceInformationService
	redirects  *service.RedirectService
	cards      *service.BusinessCardService
	migrations *service.MigrationService
	exporter   *exchange.Exporter
	importer   *exchange.Importer
	writable   bool
}

// New creates a Handler. Set writable to false to run the instance read-only:
// every mutating route then answers 412 without touching the services.
func New(
	logger *slog.Logger,
	factory identifier.Factory,
	groups *service.ServiceGroupService,
	infos *service.ServiceInformationService,
	redirects *service.RedirectService,
	cards *service.BusinessCardService,
	migrations *service.MigrationService,
	exporter *exchange.Exporter,
	importer *exchange.Importer,
	writable bool,
) *Handler {
	return &Handler{
		logger:     logger,
		factory:    factory,
		groups:     groups,
		infos:      infos,
		redirects:  redirects,
		cards:      cards,
		migrations: migrations,
		exporter:   exporter,
		importer:   importer,
		writable:   writable,
	}
}

// Register mounts all registry routes on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(h.requireWritable)

	r.Get("/health", h.handleHealth)

	r.Route("/servicegroups", func(r chi.Router) {
		r.Get("/", h.handleListServiceGroups)
		r.Route("/{participantID}", func(r chi.Router) {
			r.Put("/", h.handleCreateServiceGroup)
			r.Get("/", h.handleGetServiceGroup)
			r.Delete("/", h.handleDeleteServiceGroup)

			r.Route("/services", func(r chi.Router) {
				r.Get("/", h.handleListServiceInformation)
				r.Put("/{documentTypeID}", h.handlePutServiceInformation)
				r.Get("/{documentTypeID}", h.handleGetServiceInformation)
				r.Delete("/{documentTypeID}", h.handleDeleteServiceInformation)
			})
			r.Route("/redirects", func(r chi.Router) {
				r.Get("/", h.handleListRedirects)
				r.Put("/{documentTypeID}", h.handlePutRedirect)
				r.Delete("/{documentTypeID}", h.handleDeleteRedirect)
			})
			r.Route("/businesscard", func(r chi.Router) {
				r.Put("/", h.handlePutBusinessCard)
				r.Get("/", h.handleGetBusinessCard)
				r.Delete("/", h.handleDeleteBusinessCard)
			})
		})
	})

	r.Route("/migrations", func(r chi.Router) {
		r.Post("/outbound", h.handleCreateOutboundMigration)
		r.Post("/inbound", h.handleCreateInboundMigration)
		r.Get("/", h.handleListMigrations)
		r.Post("/outbound/{migrationID}/finalize", h.handleFinalizeOutbound)
		r.Post("/inbound/{migrationID}/finalize", h.handleFinalizeInbound)
		r.Post("/{migrationID}/cancel", h.handleCancelMigration)
	})

	r.Route("/registry", func(r chi.Router) {
		r.Get("/export", h.handleExport)
		r.Put("/import", h.handleImport)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireWritable rejects mutations on read-only instances. Reads always
// pass through.
func (h *Handler) requireWritable(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.writable {
			switch r.Method {
			case http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodPatch:
				h.respond(w, http.StatusPreconditionFailed, errorBody{
					Error:   "read_only",
					Message: "the writable API is disabled on this instance",
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// callerFrom builds the service caller from the pre-authenticated headers.
func callerFrom(r *http.Request) service.Caller {
	return service.Caller{
		ID:    r.Header.Get("X-SMP-User"),
		Admin: strings.EqualFold(r.Header.Get("X-SMP-Role"), "admin"),
	}
}

// pathParam returns a URL parameter with percent-encoding undone; identifier
// values carry colons and may arrive escaped. The router extracts parameters
// from the raw path only when the request URI carries escapes, so unescaping
// an already-decoded value would corrupt literal percent signs.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}

func (h *Handler) participantParam(r *http.Request) (identifier.ParticipantIdentifier, error) {
	return h.factory.ParseParticipant(pathParam(r, "participantID"))
}

func (h *Handler) documentTypeParam(r *http.Request) (identifier.DocumentTypeIdentifier, error) {
	return h.factory.ParseDocumentType(pathParam(r, "documentTypeID"))
}

func boolQuery(r *http.Request, name string) bool {
	return strings.EqualFold(r.URL.Query().Get(name), "true")
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

// writeError translates a coded domain error into the JSON error envelope.
// Messages on coded errors are caller-safe; anything uncoded is reported as
// internal without leaking the cause.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeOf(err)
	status := httpStatus(code)
	body := errorBody{Error: string(code)}
	var de *dErrors.Error
	if errors.As(err, &de) {
		body.Message = de.Message
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"error", err.Error(),
		)
	}
	h.respond(w, status, body)
}

func httpStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeStateTransition:
		return http.StatusConflict
	case dErrors.CodeBadRequest, dErrors.CodeInvalidIdentifier:
		return http.StatusBadRequest
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeExternalDirectory:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
