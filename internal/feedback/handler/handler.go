package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	conventionmodels "immersion/internal/convention/models"
	"immersion/internal/feedback/models"
	"immersion/pkg/domain"
	"immersion/pkg/platform/httputil"
	"immersion/pkg/platform/middleware/auth"
	"immersion/pkg/requestcontext"
)

// Service is the feedback side of the handler.
type Service interface {
	Latest(ctx context.Context, id domain.ConventionID) ([]models.BroadcastFeedback, error)
	History(ctx context.Context, id domain.ConventionID) ([]models.BroadcastFeedback, error)
	MarkHandledByAgency(ctx context.Context, id domain.ConventionID, consumerName string) error
}

// ConventionReader resolves the convention first so agency scoping applies to
// its feedback too.
type ConventionReader interface {
	Get(ctx context.Context, id domain.ConventionID) (conventionmodels.Convention, error)
}

type Handler struct {
	feedback    Service
	conventions ConventionReader
	logger      *slog.Logger
}

func New(feedback Service, conventions ConventionReader, logger *slog.Logger) *Handler {
	return &Handler{feedback: feedback, conventions: conventions, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(domain.RoleCounsellor, domain.RoleValidator, domain.RoleBackOffice))
		r.Get("/conventions/{id}/broadcast-feedbacks", h.handleList)
		r.Post("/conventions/{id}/broadcast-feedbacks/{consumer}/handled", h.handleMarkHandled)
	})
}

type feedbacksResponse struct {
	ConventionID domain.ConventionID        `json:"conventionId"`
	Feedbacks    []models.BroadcastFeedback `json:"feedbacks"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.resolve(w, r)
	if !ok {
		return
	}
	list := h.feedback.Latest
	if r.URL.Query().Get("history") == "true" {
		list = h.feedback.History
	}
	feedbacks, err := list(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if feedbacks == nil {
		feedbacks = []models.BroadcastFeedback{}
	}
	httputil.WriteJSON(w, http.StatusOK, feedbacksResponse{ConventionID: id, Feedbacks: feedbacks})
}

func (h *Handler) handleMarkHandled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.resolve(w, r)
	if !ok {
		return
	}
	consumer := chi.URLParam(r, "consumer")
	if err := h.feedback.MarkHandledByAgency(ctx, id, consumer); err != nil {
		httputil.WriteError(w, err)
		return
	}
	actor, _ := requestcontext.Actor(ctx)
	h.logger.DebugContext(ctx, "feedback acknowledged",
		"convention_id", id,
		"partner", consumer,
		"subject", actor.Subject,
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (domain.ConventionID, bool) {
	id, err := domain.ParseConventionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	if _, err := h.conventions.Get(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return id, true
}
