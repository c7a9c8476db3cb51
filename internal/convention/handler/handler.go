package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"immersion/internal/convention/models"
	"immersion/internal/convention/service"
	"immersion/pkg/domain"
	"immersion/pkg/platform/httputil"
	"immersion/pkg/requestcontext"
)

// Service defines the convention operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, draft models.Convention) (models.Convention, error)
	Get(ctx context.Context, id domain.ConventionID) (models.Convention, error)
	Sign(ctx context.Context, id domain.ConventionID) (models.Convention, error)
	UpdateStatus(ctx context.Context, id domain.ConventionID, req service.UpdateStatusRequest) (models.Convention, error)
}

// Handler serves the convention endpoints. Authentication happens upstream;
// the service reads the actor from the request context.
type Handler struct {
	conventions Service
	logger      *slog.Logger
}

func New(conventions Service, logger *slog.Logger) *Handler {
	return &Handler{conventions: conventions, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/conventions", h.handleCreate)
	r.Get("/conventions/{id}", h.handleGet)
	r.Post("/conventions/{id}/sign", h.handleSign)
	r.Post("/conventions/{id}/status", h.handleUpdateStatus)
}

type updateStatusRequest struct {
	Status        string `json:"status"`
	Justification string `json:"justification"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var draft models.Convention
	if err := httputil.DecodeJSON(r, &draft); err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.conventions.Create(ctx, draft)
	if err != nil {
		h.fail(ctx, w, "create", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseConventionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.conventions.Get(ctx, id)
	if err != nil {
		h.fail(ctx, w, "get", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseConventionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.conventions.Sign(ctx, id)
	if err != nil {
		h.fail(ctx, w, "sign", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseConventionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req updateStatusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.conventions.UpdateStatus(ctx, id, service.UpdateStatusRequest{
		Status:        status,
		Justification: req.Justification,
	})
	if err != nil {
		h.fail(ctx, w, "update_status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	h.logger.DebugContext(ctx, "convention request refused",
		"op", op,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
