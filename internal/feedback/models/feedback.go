package models

import (
	"time"

	"immersion/pkg/domain"
)

// BroadcastFeedback is the outcome of one delivery attempt to one external
// consumer. Exactly one of SubscriberError and Response is set.
type BroadcastFeedback struct {
	ConventionID    domain.ConventionID `json:"conventionId"`
	ConsumerID      string              `json:"consumerId"`
	ConsumerName    string              `json:"consumerName"`
	RequestParams   RequestParams       `json:"requestParams"`
	SubscriberError *SubscriberError    `json:"subscriberErrorFeedback,omitempty"`
	Response        *Response           `json:"response,omitempty"`
	OccurredAt      time.Time           `json:"occurredAt"`
	HandledByAgency bool                `json:"handledByAgency"`
}

// RequestParams identifies what was being broadcast.
type RequestParams struct {
	ConventionID     domain.ConventionID `json:"conventionId"`
	ConventionStatus string              `json:"conventionStatus,omitempty"`
	EventID          domain.EventID      `json:"eventId,omitempty"`
	Topic            string              `json:"topic,omitempty"`
	Attempt          int                 `json:"attempt"`
}

// SubscriberError describes a failed attempt. Status follows the outcome
// mapping: definitive 4xx answers keep their status, anything else is 500.
type SubscriberError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
	Error   any    `json:"error,omitempty"`
}

// Response is the partner's answer to a successful attempt.
type Response struct {
	HTTPStatus int `json:"httpStatus"`
	Body       any `json:"body,omitempty"`
}

func (f BroadcastFeedback) Succeeded() bool {
	return f.SubscriberError == nil
}
