// Package webhook delivers convention updates to API consumers that
// registered a callback URL.
package webhook

import (
	"context"
	"net/http"

	"immersion/internal/broadcast"
	conventionmodels "immersion/internal/convention/models"
	"immersion/internal/outbox/models"
)

// SubscribedEvent is the only callback kind consumers can subscribe to.
const SubscribedEvent = "convention.updated"

// Consumer is one registered API consumer.
type Consumer struct {
	ID          string
	Name        string
	CallbackURL string
	// AuthorizationHeader is sent verbatim as the Authorization header.
	AuthorizationHeader string
}

// Body is the callback payload.
type Body struct {
	Payload         Payload `json:"payload"`
	SubscribedEvent string  `json:"subscribedEvent"`
}

type Payload struct {
	Convention conventionmodels.Convention `json:"convention"`
}

type Callback struct {
	consumer Consumer
	client   *broadcast.Client
}

func New(consumer Consumer, client *broadcast.Client) *Callback {
	return &Callback{consumer: consumer, client: client}
}

func (c *Callback) Name() string { return c.consumer.Name }

func (c *Callback) ConsumerID() string { return c.consumer.ID }

func (c *Callback) Send(ctx context.Context, event models.DomainEvent) (broadcast.Response, error) {
	headers := http.Header{}
	if c.consumer.AuthorizationHeader != "" {
		headers.Set("Authorization", c.consumer.AuthorizationHeader)
	}
	return c.client.PostJSON(ctx, c.consumer.CallbackURL, headers, Body{
		Payload:         Payload{Convention: event.Payload.ConventionSnapshot()},
		SubscribedEvent: SubscribedEvent,
	})
}
