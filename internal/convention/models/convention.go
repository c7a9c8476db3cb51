package models

import (
	"maps"
	"slices"
	"strings"
	"time"

	"immersion/pkg/domain"
	dErrors "immersion/pkg/domain-errors"
)

// Signatory is one party that has to sign the convention.
type Signatory struct {
	Role      domain.Role `json:"role"`
	Email     string      `json:"email"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Phone     string      `json:"phone,omitempty"`
	SignedAt  *time.Time  `json:"signedAt,omitempty"`
}

// Convention is the work-placement agreement tracked through its statuses.
// Treat it as a value: transitions return a new Convention and never mutate the
// stored one.
type Convention struct {
	ID                  domain.ConventionID       `json:"id"`
	Status              Status                    `json:"status"`
	AgencyID            domain.AgencyID           `json:"agencyId"`
	Signatories         map[domain.Role]Signatory `json:"signatories"`
	DateSubmission      time.Time                 `json:"dateSubmission"`
	DateStart           time.Time                 `json:"dateStart"`
	DateEnd             time.Time                 `json:"dateEnd"`
	DateValidation      *time.Time                `json:"dateValidation,omitempty"`
	StatusJustification string                    `json:"statusJustification,omitempty"`
	Siret               string                    `json:"siret"`
	BusinessName        string                    `json:"businessName"`
	ImmersionAddress    string                    `json:"immersionAddress,omitempty"`
	ImmersionObjective  string                    `json:"immersionObjective,omitempty"`
	InternshipKind      string                    `json:"internshipKind"`
	UpdatedAt           time.Time                 `json:"updatedAt"`
}

// Clone returns a deep copy so callers can derive a new value safely.
func (c Convention) Clone() Convention {
	out := c
	out.Signatories = make(map[domain.Role]Signatory, len(c.Signatories))
	for role, s := range c.Signatories {
		if s.SignedAt != nil {
			at := *s.SignedAt
			s.SignedAt = &at
		}
		out.Signatories[role] = s
	}
	if c.DateValidation != nil {
		at := *c.DateValidation
		out.DateValidation = &at
	}
	return out
}

// AllSigned reports whether every signatory has a signed-at timestamp.
func (c Convention) AllSigned() bool {
	if len(c.Signatories) == 0 {
		return false
	}
	for _, s := range c.Signatories {
		if s.SignedAt == nil {
			return false
		}
	}
	return true
}

// SignatoryRoles returns the roles present on the convention, sorted.
func (c Convention) SignatoryRoles() []domain.Role {
	return slices.Sorted(maps.Keys(c.Signatories))
}

// Validate checks the structural invariants of a convention being created.
func (c Convention) Validate() error {
	if c.ID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "convention id is required")
	}
	if c.AgencyID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "agency id is required")
	}
	for _, required := range []domain.Role{domain.RoleBeneficiary, domain.RoleEstablishmentRepresentative} {
		if _, ok := c.Signatories[required]; !ok {
			return dErrors.New(dErrors.CodeValidation, "missing signatory: "+required.String())
		}
	}
	for role, s := range c.Signatories {
		if !role.IsSignatory() || s.Role != role {
			return dErrors.New(dErrors.CodeValidation, "invalid signatory role: "+role.String())
		}
		if strings.TrimSpace(s.Email) == "" {
			return dErrors.New(dErrors.CodeValidation, "signatory email is required for "+role.String())
		}
	}
	if !c.DateStart.IsZero() && !c.DateEnd.IsZero() && c.DateEnd.Before(c.DateStart) {
		return dErrors.New(dErrors.CodeValidation, "dateEnd must not be before dateStart")
	}
	return nil
}
