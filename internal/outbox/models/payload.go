package models

import (
	"encoding/json"

	conventionmodels "immersion/internal/convention/models"
	"immersion/pkg/domain"
	dErrors "immersion/pkg/domain-errors"
)

// Payload is the topic-specific body of an event. The set of implementations is
// closed: ConventionPayload, JustifiedPayload and ModificationPayload.
type Payload interface {
	ConventionSnapshot() conventionmodels.Convention
	kind() payloadKind
}

// TriggeredBy identifies the actor behind the transition.
type TriggeredBy struct {
	Role    domain.Role `json:"role"`
	Subject string      `json:"subject,omitempty"`
}

// ConventionPayload carries the resulting convention.
type ConventionPayload struct {
	Convention  conventionmodels.Convention `json:"convention"`
	TriggeredBy *TriggeredBy                `json:"triggeredBy,omitempty"`
}

// JustifiedPayload is used by rejected, cancelled and deprecated events.
type JustifiedPayload struct {
	Convention    conventionmodels.Convention `json:"convention"`
	Justification string                      `json:"justification"`
	TriggeredBy   *TriggeredBy                `json:"triggeredBy,omitempty"`
}

// ModificationPayload asks the listed roles to amend the convention.
type ModificationPayload struct {
	Convention    conventionmodels.Convention `json:"convention"`
	Justification string                      `json:"justification"`
	RolesToNotify []domain.Role               `json:"roles"`
	TriggeredBy   *TriggeredBy                `json:"triggeredBy,omitempty"`
}

func (p ConventionPayload) ConventionSnapshot() conventionmodels.Convention { return p.Convention }
func (p JustifiedPayload) ConventionSnapshot() conventionmodels.Convention { return p.Convention }
func (p ModificationPayload) ConventionSnapshot() conventionmodels.Convention { return p.Convention }

func (ConventionPayload) kind() payloadKind { return kindConvention }
func (JustifiedPayload) kind() payloadKind { return kindJustified }
func (ModificationPayload) kind() payloadKind { return kindModification }

// DecodePayload reads raw as the payload variant topic requires.
func DecodePayload(topic Topic, raw []byte) (Payload, error) {
	k, err := kindOf(topic)
	if err != nil {
		return nil, err
	}
	var payload Payload
	switch k {
	case kindConvention:
		var p ConventionPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case kindJustified:
		var p JustifiedPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	case kindModification:
		var p ModificationPayload
		err = json.Unmarshal(raw, &p)
		payload = p
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed payload for topic "+string(topic))
	}
	if payload.ConventionSnapshot().ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "payload for topic "+string(topic)+" has no convention id")
	}
	return payload, nil
}
