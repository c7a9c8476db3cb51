// Package events derives the outbox event produced by a convention transition.
package events

import (
	"slices"

	"immersion/internal/convention/models"
	"immersion/internal/convention/transition"
	outboxmodels "immersion/internal/outbox/models"
	"immersion/pkg/domain"
	"immersion/pkg/platform/clock"
	"immersion/pkg/platform/idgen"
)

var statusTopics = map[models.Status]outboxmodels.Topic{
	models.StatusPartiallySigned:      outboxmodels.TopicConventionPartiallySigned,
	models.StatusInReview:             outboxmodels.TopicConventionFullySigned,
	models.StatusAcceptedByCounsellor: outboxmodels.TopicConventionAcceptedByCounsellor,
	models.StatusAcceptedByValidator:  outboxmodels.TopicConventionAcceptedByValidator,
	models.StatusRejected:             outboxmodels.TopicConventionRejected,
	models.StatusCancelled:            outboxmodels.TopicConventionCancelled,
	models.StatusDraft:                outboxmodels.TopicConventionRequiresModification,
	models.StatusDeprecated:           outboxmodels.TopicConventionDeprecated,
}

// TopicForStatus returns the topic announcing that a convention reached status.
// READY_TO_SIGN produces no event.
func TopicForStatus(status models.Status) (outboxmodels.Topic, bool) {
	topic, ok := statusTopics[status]
	return topic, ok
}

// RolesToNotify returns the roles able to act on the convention from its current
// status, limited to the convention's signatories and the agency, excluding the
// role that asked for the change. A draft is edited and signed again by its
// signatories, so they are notified as well.
func RolesToNotify(c models.Convention, requester domain.Role) []domain.Role {
	signatories := c.SignatoryRoles()
	present := append(slices.Clone(signatories), domain.AgencyRoles...)
	candidates := transition.RolesActingFrom(c.Status)
	if c.Status == models.StatusDraft {
		candidates = append(candidates, signatories...)
	}
	slices.Sort(candidates)

	var roles []domain.Role
	for _, role := range slices.Compact(candidates) {
		if role == requester || !slices.Contains(present, role) {
			continue
		}
		roles = append(roles, role)
	}
	return roles
}

// PayloadFor builds the payload variant topic requires.
func PayloadFor(topic outboxmodels.Topic, c models.Convention, by outboxmodels.TriggeredBy, justification string) outboxmodels.Payload {
	trigger := &by
	switch topic {
	case outboxmodels.TopicConventionRejected,
		outboxmodels.TopicConventionCancelled,
		outboxmodels.TopicConventionDeprecated:
		return outboxmodels.JustifiedPayload{Convention: c, Justification: justification, TriggeredBy: trigger}
	case outboxmodels.TopicConventionRequiresModification:
		return outboxmodels.ModificationPayload{
			Convention:    c,
			Justification: justification,
			RolesToNotify: RolesToNotify(c, by.Role),
			TriggeredBy:   trigger,
		}
	default:
		return outboxmodels.ConventionPayload{Convention: c, TriggeredBy: trigger}
	}
}

// ForTransition returns the event announcing that c reached its current status,
// or nil when the status is not announced.
func ForTransition(c models.Convention, by outboxmodels.TriggeredBy, clk clock.Clock, ids idgen.Generator) (*outboxmodels.DomainEvent, error) {
	topic, ok := TopicForStatus(c.Status)
	if !ok {
		return nil, nil
	}
	evt, err := outboxmodels.MakeEvent(topic, PayloadFor(topic, c, by, c.StatusJustification), clk, ids)
	if err != nil {
		return nil, err
	}
	return &evt, nil
}

// ForSubmission returns the event announcing a newly submitted convention.
func ForSubmission(c models.Convention, by outboxmodels.TriggeredBy, clk clock.Clock, ids idgen.Generator) (outboxmodels.DomainEvent, error) {
	topic := outboxmodels.TopicConventionSubmittedByBeneficiary
	return outboxmodels.MakeEvent(topic, PayloadFor(topic, c, by, ""), clk, ids)
}
