package domain

import (
	dErrors "immersion/pkg/domain-errors"
)

// Identifiers are opaque strings of 1 to 64 characters drawn from [A-Za-z0-9_-].
// Generated ids are UUIDs; imported ids (e.g. from a legacy system) keep their
// original form as long as they respect the alphabet.
//
// Usage: construct via the Parse* functions at trust boundaries; direct casting
// bypasses validation.
type (
	ConventionID string
	AgencyID     string
	EventID      string
)

const maxIDLength = 64

func (id ConventionID) String() string { return string(id) }
func (id AgencyID) String() string     { return string(id) }
func (id EventID) String() string      { return string(id) }

func (id ConventionID) IsNil() bool { return id == "" }
func (id AgencyID) IsNil() bool     { return id == "" }
func (id EventID) IsNil() bool      { return id == "" }

// ParseConventionID validates external input as a convention id.
func ParseConventionID(s string) (ConventionID, error) {
	if err := validateID("convention id", s); err != nil {
		return "", err
	}
	return ConventionID(s), nil
}

// ParseAgencyID validates external input as an agency id.
func ParseAgencyID(s string) (AgencyID, error) {
	if err := validateID("agency id", s); err != nil {
		return "", err
	}
	return AgencyID(s), nil
}

// ParseEventID validates external input as a domain event id.
func ParseEventID(s string) (EventID, error) {
	if err := validateID("event id", s); err != nil {
		return "", err
	}
	return EventID(s), nil
}

func validateID(kind, s string) error {
	if s == "" {
		return dErrors.New(dErrors.CodeValidation, kind+" cannot be empty")
	}
	if len(s) > maxIDLength {
		return dErrors.New(dErrors.CodeValidation, kind+" is too long")
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return dErrors.New(dErrors.CodeValidation, "invalid "+kind)
		}
	}
	return nil
}
