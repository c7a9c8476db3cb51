// Package francetravail broadcasts conventions to the France Travail
// immersion API.
package francetravail

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"immersion/internal/broadcast"
	"immersion/internal/broadcast/tokencache"
	"immersion/internal/outbox/models"
)

const (
	Name = "france-travail"

	DefaultScope = "api_immersion-prov2"

	broadcastPath = "/partenaire/immersion-pro/v2/demandes-immersion"
)

type Config struct {
	APIBaseURL string
	Scope      string
}

// Partner is the raw call: it fetches a bearer token through the token cache
// and posts the flattened convention.
type Partner struct {
	cfg    Config
	client *broadcast.Client
	tokens *tokencache.Cache
	fetch  tokencache.Fetcher
}

func New(cfg Config, client *broadcast.Client, tokens *tokencache.Cache, fetch tokencache.Fetcher) *Partner {
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}
	return &Partner{cfg: cfg, client: client, tokens: tokens, fetch: fetch}
}

func (p *Partner) Name() string { return Name }

func (p *Partner) Send(ctx context.Context, event models.DomainEvent) (broadcast.Response, error) {
	token, err := p.tokens.GetOrFetch(ctx, p.cfg.Scope, p.fetch)
	if err != nil {
		var pe *broadcast.PartnerError
		if errors.As(err, &pe) {
			return broadcast.Response{}, err
		}
		return broadcast.Response{}, broadcast.NewPartnerError(broadcast.ErrorAuthentication, Name, "cannot obtain access token", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	resp, err := p.client.PostJSON(ctx, p.cfg.APIBaseURL+broadcastPath, headers, Flatten(event.Payload.ConventionSnapshot()))

	var pe *broadcast.PartnerError
	if errors.As(err, &pe) && pe.StatusCode == http.StatusUnauthorized {
		// A token revoked upstream before its expiry: drop it so the next
		// attempt fetches a fresh one.
		_ = p.tokens.Invalidate(ctx, p.cfg.Scope)
		pe.Category = broadcast.ErrorAuthentication
		pe.Retryable = true
	}
	return resp, err
}
