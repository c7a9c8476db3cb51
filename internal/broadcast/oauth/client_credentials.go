// Package oauth fetches partner access tokens with the client credentials grant.
package oauth

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"immersion/internal/broadcast"
	"immersion/internal/broadcast/ratelimit"
	"immersion/internal/broadcast/retry"
	"immersion/internal/broadcast/tokencache"
)

// Config locates the token endpoint and holds the client credentials.
type Config struct {
	AuthBaseURL  string
	ClientID     string
	ClientSecret string
}

// ClientCredentials calls POST <auth base>/token through the partner's common
// rate limiter and the retry strategy.
type ClientCredentials struct {
	cfg     Config
	client  *broadcast.Client
	limiter *ratelimit.Limiter
	retry   retry.Strategy
}

func NewClientCredentials(cfg Config, client *broadcast.Client, limiter *ratelimit.Limiter, strategy retry.Strategy) *ClientCredentials {
	cfg.AuthBaseURL = strings.TrimRight(cfg.AuthBaseURL, "/")
	return &ClientCredentials{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
		retry:   strategy,
	}
}

// Fetch implements tokencache.Fetcher.
func (c *ClientCredentials) Fetch(ctx context.Context, scope string) (tokencache.Token, error) {
	var token tokencache.Token
	err := c.limiter.Run(ctx, func(ctx context.Context) error {
		return c.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			token, err = c.request(ctx, scope)
			return err
		})
	})
	return token, err
}

func (c *ClientCredentials) request(ctx context.Context, scope string) (tokencache.Token, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"scope":         {scope},
	}
	resp, err := c.client.PostForm(ctx, c.cfg.AuthBaseURL+"/token", form)
	if err != nil {
		return tokencache.Token{}, err
	}

	body, _ := resp.Body.(map[string]any)
	access, _ := body["access_token"].(string)
	if access == "" {
		return tokencache.Token{}, broadcast.NewPartnerError(broadcast.ErrorAuthentication, c.client.Partner(),
			"token response has no access_token", nil)
	}
	return tokencache.Token{
		AccessToken: access,
		ExpiresIn:   expiresIn(body["expires_in"]),
	}, nil
}

// expiresIn reads expires_in seconds, sent as a number or a numeric string.
func expiresIn(v any) time.Duration {
	switch n := v.(type) {
	case float64:
		return time.Duration(n) * time.Second
	case string:
		if secs, err := strconv.Atoi(n); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
