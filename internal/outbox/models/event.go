package models

import (
	"encoding/json"
	"slices"
	"time"

	"immersion/pkg/domain"
	dErrors "immersion/pkg/domain-errors"
	"immersion/pkg/platform/clock"
	"immersion/pkg/platform/idgen"
)

// EventStatus is the publication state of a domain event.
type EventStatus string

const (
	EventStatusNeverPublished EventStatus = "never-published"
	EventStatusPublished      EventStatus = "published"
	EventStatusFailed         EventStatus = "failed"
)

// SubscriberID names one registered consumer of events.
type SubscriberID string

// Outcome is the result of one dispatch attempt.
type Outcome string

const (
	OutcomeOK    Outcome = "ok"
	OutcomeError Outcome = "error"
)

// Publication records one dispatch attempt of an event to a subscriber.
type Publication struct {
	SubscriberID SubscriberID `json:"subscriberId"`
	Outcome      Outcome      `json:"outcome"`
	At           time.Time    `json:"at"`
	Error        string       `json:"error,omitempty"`
}

// DomainEvent is an immutable fact waiting in the outbox. Only Publications,
// Status and WasQuarantined change after creation, and only through the store.
// Payload is nil when a stored payload could not be decoded for its topic.
type DomainEvent struct {
	ID               domain.EventID
	Topic            Topic
	Payload          Payload
	OccurredAt       time.Time
	Publications     []Publication
	Status           EventStatus
	WasQuarantined   bool
	QuarantineReason string
}

// MakeEvent builds a never-published event. Identity and time come from the
// given ports only.
func MakeEvent(topic Topic, payload Payload, clk clock.Clock, ids idgen.Generator) (DomainEvent, error) {
	if err := checkPayload(topic, payload); err != nil {
		return DomainEvent{}, err
	}
	return DomainEvent{
		ID:         domain.EventID(ids.New()),
		Topic:      topic,
		Payload:    payload,
		OccurredAt: clk.Now(),
		Status:     EventStatusNeverPublished,
	}, nil
}

// SucceededFor reports whether subscriber already has an ok publication.
func (e DomainEvent) SucceededFor(subscriber SubscriberID) bool {
	return slices.ContainsFunc(e.Publications, func(p Publication) bool {
		return p.SubscriberID == subscriber && p.Outcome == OutcomeOK
	})
}

// SucceededForAll reports whether every subscriber in required succeeded.
func (e DomainEvent) SucceededForAll(required []SubscriberID) bool {
	for _, id := range required {
		if !e.SucceededFor(id) {
			return false
		}
	}
	return true
}

// WithPublication returns the event with pub appended and the status moved
// accordingly. Published never reverts.
func (e DomainEvent) WithPublication(pub Publication, required []SubscriberID) DomainEvent {
	out := e
	out.Publications = append(slices.Clone(e.Publications), pub)
	switch {
	case e.Status == EventStatusPublished:
	case pub.Outcome == OutcomeOK && out.SucceededForAll(required):
		out.Status = EventStatusPublished
	case pub.Outcome == OutcomeError:
		out.Status = EventStatusFailed
	}
	return out
}

type eventWire struct {
	ID               domain.EventID  `json:"id"`
	Topic            Topic           `json:"topic"`
	Payload          json.RawMessage `json:"payload"`
	OccurredAt       time.Time       `json:"occurredAt"`
	Publications     []Publication   `json:"publications"`
	Status           EventStatus     `json:"status"`
	WasQuarantined   bool            `json:"wasQuarantined"`
	QuarantineReason string          `json:"quarantineReason,omitempty"`
}

func (e DomainEvent) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	pubs := e.Publications
	if pubs == nil {
		pubs = []Publication{}
	}
	return json.Marshal(eventWire{
		ID:               e.ID,
		Topic:            e.Topic,
		Payload:          payload,
		OccurredAt:       e.OccurredAt.UTC(),
		Publications:     pubs,
		Status:           e.Status,
		WasQuarantined:   e.WasQuarantined,
		QuarantineReason: e.QuarantineReason,
	})
}

func (e *DomainEvent) UnmarshalJSON(data []byte) error {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	payload, err := DecodePayload(w.Topic, w.Payload)
	if err != nil {
		return err
	}
	*e = DomainEvent{
		ID:               w.ID,
		Topic:            w.Topic,
		Payload:          payload,
		OccurredAt:       w.OccurredAt,
		Publications:     w.Publications,
		Status:           w.Status,
		WasQuarantined:   w.WasQuarantined,
		QuarantineReason: w.QuarantineReason,
	}
	return nil
}

func checkPayload(topic Topic, payload Payload) error {
	if payload == nil {
		return dErrors.New(dErrors.CodeValidation, "event payload is required")
	}
	want, err := kindOf(topic)
	if err != nil {
		return err
	}
	if payload.kind() != want {
		return dErrors.New(dErrors.CodeValidation, "payload does not match topic "+string(topic))
	}
	return nil
}
