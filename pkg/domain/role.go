package domain

import dErrors "immersion/pkg/domain-errors"

// Role is the capacity in which an actor acts on a convention.
// Invariant: the value must be one of the roles below.
type Role string

// Signatory roles.
const (
	RoleBeneficiary                 Role = "beneficiary"
	RoleBeneficiaryRepresentative   Role = "beneficiary-representative"
	RoleBeneficiaryCurrentEmployer  Role = "beneficiary-current-employer"
	RoleEstablishmentRepresentative Role = "establishment-representative"
)

// Agency and operator roles.
const (
	RoleCounsellor Role = "counsellor"
	RoleValidator  Role = "validator"
	RoleBackOffice Role = "back-office"
)

// AllRoles lists every role in a stable order.
var AllRoles = []Role{
	RoleBeneficiary,
	RoleBeneficiaryRepresentative,
	RoleBeneficiaryCurrentEmployer,
	RoleEstablishmentRepresentative,
	RoleCounsellor,
	RoleValidator,
	RoleBackOffice,
}

// SignatoryRoles lists the roles that sign a convention.
var SignatoryRoles = []Role{
	RoleBeneficiary,
	RoleBeneficiaryRepresentative,
	RoleBeneficiaryCurrentEmployer,
	RoleEstablishmentRepresentative,
}

// AgencyRoles lists the roles acting on behalf of the owning agency.
var AgencyRoles = []Role{RoleCounsellor, RoleValidator}

// ParseRole constructs a Role from external input.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid role: "+s)
	}
	return r, nil
}

func (r Role) IsValid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// IsSignatory reports whether the role signs conventions.
func (r Role) IsSignatory() bool {
	for _, s := range SignatoryRoles {
		if r == s {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}
