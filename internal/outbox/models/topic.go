package models

import dErrors "immersion/pkg/domain-errors"

// Topic names the kind of fact an event records. It decides the payload shape.
type Topic string

const (
	TopicConventionSubmittedByBeneficiary Topic = "ConventionSubmittedByBeneficiary"
	TopicConventionPartiallySigned        Topic = "ConventionPartiallySigned"
	TopicConventionFullySigned            Topic = "ConventionFullySigned"
	TopicConventionAcceptedByCounsellor   Topic = "ConventionAcceptedByCounsellor"
	TopicConventionAcceptedByValidator    Topic = "ConventionAcceptedByValidator"
	TopicConventionRejected               Topic = "ConventionRejected"
	TopicConventionCancelled              Topic = "ConventionCancelled"
	TopicConventionRequiresModification   Topic = "ConventionRequiresModification"
	TopicConventionDeprecated             Topic = "ConventionDeprecated"
)

// AllTopics lists every topic.
var AllTopics = []Topic{
	TopicConventionSubmittedByBeneficiary,
	TopicConventionPartiallySigned,
	TopicConventionFullySigned,
	TopicConventionAcceptedByCounsellor,
	TopicConventionAcceptedByValidator,
	TopicConventionRejected,
	TopicConventionCancelled,
	TopicConventionRequiresModification,
	TopicConventionDeprecated,
}

func ParseTopic(s string) (Topic, error) {
	t := Topic(s)
	if _, err := kindOf(t); err != nil {
		return "", err
	}
	return t, nil
}

func (t Topic) String() string {
	return string(t)
}

type payloadKind int

const (
	kindConvention payloadKind = iota + 1
	kindJustified
	kindModification
)

func kindOf(t Topic) (payloadKind, error) {
	switch t {
	case TopicConventionSubmittedByBeneficiary,
		TopicConventionPartiallySigned,
		TopicConventionFullySigned,
		TopicConventionAcceptedByCounsellor,
		TopicConventionAcceptedByValidator:
		return kindConvention, nil
	case TopicConventionRejected, TopicConventionCancelled, TopicConventionDeprecated:
		return kindJustified, nil
	case TopicConventionRequiresModification:
		return kindModification, nil
	default:
		return 0, dErrors.New(dErrors.CodeValidation, "unknown topic: "+string(t))
	}
}
