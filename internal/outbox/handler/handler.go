// Package handler exposes the outbox remediation surface to back-office staff.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"immersion/internal/outbox/models"
	"immersion/internal/outbox/quarantine"
	"immersion/pkg/domain"
	dErrors "immersion/pkg/domain-errors"
	"immersion/pkg/platform/httputil"
	"immersion/pkg/platform/middleware/auth"
	"immersion/pkg/requestcontext"
)

// Remediator is the quarantine surface the handler drives.
type Remediator interface {
	List(ctx context.Context) ([]models.DomainEvent, error)
	ListFailed(ctx context.Context, limit int) ([]models.DomainEvent, error)
	MarkPoison(ctx context.Context, id domain.EventID, origin quarantine.Origin, reason string) error
	Release(ctx context.Context, id domain.EventID) error
	Requeue(ctx context.Context, id domain.EventID) error
}

type Handler struct {
	remediator Remediator
	logger     *slog.Logger
}

func New(remediator Remediator, logger *slog.Logger) *Handler {
	return &Handler{remediator: remediator, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/admin/outbox", func(r chi.Router) {
		r.Use(auth.RequireRole(domain.RoleBackOffice))
		r.Get("/quarantined", h.handleListQuarantined)
		r.Get("/failed", h.handleListFailed)
		r.Post("/{id}/quarantine", h.handleQuarantine)
		r.Post("/{id}/release", h.handleRelease)
		r.Post("/{id}/requeue", h.handleRequeue)
	})
}

type eventsResponse struct {
	Events []models.DomainEvent `json:"events"`
	Count  int                  `json:"count"`
}

type quarantineRequest struct {
	Reason string `json:"reason"`
}

type actionResponse struct {
	EventID domain.EventID `json:"eventId"`
	Action  string         `json:"action"`
}

func (h *Handler) handleListQuarantined(w http.ResponseWriter, r *http.Request) {
	events, err := h.remediator.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeEvents(w, events)
}

func (h *Handler) handleListFailed(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	events, err := h.remediator.ListFailed(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeEvents(w, events)
}

func (h *Handler) handleQuarantine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req quarantineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.remediator.MarkPoison(ctx, id, quarantine.OriginOperator, req.Reason); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.audit(ctx, id, "quarantine")
	httputil.WriteJSON(w, http.StatusOK, actionResponse{EventID: id, Action: "quarantine"})
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "release", h.remediator.Release)
}

func (h *Handler) handleRequeue(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "requeue", h.remediator.Requeue)
}

func (h *Handler) act(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, domain.EventID) error) {
	ctx := r.Context()
	id, err := domain.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := fn(ctx, id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.audit(ctx, id, action)
	httputil.WriteJSON(w, http.StatusOK, actionResponse{EventID: id, Action: action})
}

// audit leaves a trace of who touched the outbox by hand.
func (h *Handler) audit(ctx context.Context, id domain.EventID, action string) {
	actor, _ := requestcontext.Actor(ctx)
	h.logger.InfoContext(ctx, "outbox remediation",
		"event_id", id,
		"action", action,
		"subject", actor.Subject,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func writeEvents(w http.ResponseWriter, events []models.DomainEvent) {
	if events == nil {
		events = []models.DomainEvent{}
	}
	httputil.WriteJSON(w, http.StatusOK, eventsResponse{Events: events, Count: len(events)})
}
