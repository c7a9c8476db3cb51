package models

import dErrors "immersion/pkg/domain-errors"

// Status is the lifecycle position of a convention.
// Invariant: the value must be one of the statuses below.
type Status string

const (
	StatusReadyToSign          Status = "READY_TO_SIGN"
	StatusPartiallySigned      Status = "PARTIALLY_SIGNED"
	StatusInReview             Status = "IN_REVIEW"
	StatusAcceptedByCounsellor Status = "ACCEPTED_BY_COUNSELLOR"
	StatusAcceptedByValidator  Status = "ACCEPTED_BY_VALIDATOR"
	StatusRejected             Status = "REJECTED"
	StatusCancelled            Status = "CANCELLED"
	StatusDraft                Status = "DRAFT"
	StatusDeprecated           Status = "DEPRECATED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusReadyToSign,
	StatusPartiallySigned,
	StatusInReview,
	StatusAcceptedByCounsellor,
	StatusAcceptedByValidator,
	StatusRejected,
	StatusCancelled,
	StatusDraft,
	StatusDeprecated,
}

// ParseStatus constructs a Status from external input.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid status: "+s)
	}
	return st, nil
}

func (s Status) IsValid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsValidated reports whether the status belongs to the validated family.
func (s Status) IsValidated() bool {
	return s == StatusAcceptedByValidator
}

// ResetsSignatures reports whether reaching the status sends the convention back
// to a draft-like state where every signatory has to sign again.
func (s Status) ResetsSignatures() bool {
	return s == StatusDraft || s == StatusReadyToSign
}

// RequiresJustification reports whether a transition to s must carry a reason.
func (s Status) RequiresJustification() bool {
	switch s {
	case StatusRejected, StatusDraft, StatusCancelled, StatusDeprecated:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition leaves the status.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusDeprecated
}

func (s Status) String() string {
	return string(s)
}
