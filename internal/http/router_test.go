package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"immersion/pkg/platform/middleware/auth"
	"immersion/pkg/requestcontext"
	"immersion/pkg/testutil"
)

type staticValidator struct{}

func (staticValidator) ValidateToken(token string) (*auth.JWTClaims, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return &auth.JWTClaims{Subject: "ops", Role: "back-office"}, nil
}

type whoami struct{}

func (whoami) Register(r chi.Router) {
	r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		actor, _ := requestcontext.Actor(r.Context())
		_, _ = w.Write([]byte(actor.Role))
	})
}

func newRouter(health map[string]HealthCheck) http.Handler {
	return NewRouter(Config{
		Validator: staticValidator{},
		Logger:    slog.New(slog.DiscardHandler),
		Health:    health,
		Handlers:  []Registrar{whoami{}},
	})
}

func TestRouter_AuthenticatedRoutes(t *testing.T) {
	r := newRouter(nil)

	rec := testutil.DoRequest(r, testutil.NewRequestWithBody(t, http.MethodGet, "/whoami", ""))
	testutil.AssertStatusAndError(t, rec, http.StatusUnauthorized, "unauthorized")

	req := testutil.NewRequestWithBody(t, http.MethodGet, "/whoami", "")
	req.Header.Set("Authorization", "Bearer good")
	rec = testutil.DoRequest(r, req)
	testutil.AssertStatus(t, rec, http.StatusOK)
	assert.Equal(t, "back-office", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_Probes(t *testing.T) {
	healthy := newRouter(map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
	})
	rec := testutil.DoRequest(healthy, testutil.NewRequestWithBody(t, http.MethodGet, "/healthz", ""))
	testutil.AssertStatus(t, rec, http.StatusOK)

	degraded := newRouter(map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	rec = testutil.DoRequest(degraded, testutil.NewRequestWithBody(t, http.MethodGet, "/healthz", ""))
	testutil.AssertStatus(t, rec, http.StatusServiceUnavailable)
	body := testutil.UnmarshalResponse[map[string]string](t, rec)
	assert.Equal(t, "connection refused", (*body)["redis"])

	rec = testutil.DoRequest(healthy, testutil.NewRequestWithBody(t, http.MethodGet, "/metrics", ""))
	testutil.AssertStatus(t, rec, http.StatusOK)
}
