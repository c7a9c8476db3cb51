// Package transition holds the convention state machine: which role may move a
// convention to which status, and how the convention changes when it does.
package transition

import (
	"fmt"
	"slices"

	"immersion/internal/convention/models"
	"immersion/pkg/domain"
	dErrors "immersion/pkg/domain-errors"
)

// Rule lists who may request a target status and from where.
type Rule struct {
	AllowedRoles   []domain.Role
	AllowedSources []models.Status
}

var (
	agencyAndBackOffice = []domain.Role{domain.RoleCounsellor, domain.RoleValidator, domain.RoleBackOffice}

	editableSources = []models.Status{
		models.StatusReadyToSign,
		models.StatusPartiallySigned,
		models.StatusInReview,
		models.StatusAcceptedByCounsellor,
	}

	signingSources = []models.Status{models.StatusReadyToSign, models.StatusPartiallySigned}
)

// table is keyed by target status and covers every status.
var table = map[models.Status]Rule{
	models.StatusReadyToSign: {
		AllowedRoles:   agencyAndBackOffice,
		AllowedSources: []models.Status{models.StatusDraft},
	},
	models.StatusPartiallySigned: {
		AllowedRoles:   domain.SignatoryRoles,
		AllowedSources: signingSources,
	},
	models.StatusInReview: {
		AllowedRoles:   domain.SignatoryRoles,
		AllowedSources: signingSources,
	},
	models.StatusAcceptedByCounsellor: {
		AllowedRoles:   []domain.Role{domain.RoleCounsellor, domain.RoleBackOffice},
		AllowedSources: []models.Status{models.StatusInReview},
	},
	models.StatusAcceptedByValidator: {
		AllowedRoles:   []domain.Role{domain.RoleValidator, domain.RoleBackOffice},
		AllowedSources: []models.Status{models.StatusInReview, models.StatusAcceptedByCounsellor},
	},
	models.StatusRejected: {
		AllowedRoles:   agencyAndBackOffice,
		AllowedSources: []models.Status{models.StatusInReview, models.StatusAcceptedByCounsellor},
	},
	models.StatusCancelled: {
		AllowedRoles: agencyAndBackOffice,
		AllowedSources: []models.Status{
			models.StatusReadyToSign,
			models.StatusPartiallySigned,
			models.StatusInReview,
			models.StatusAcceptedByCounsellor,
			models.StatusAcceptedByValidator,
			models.StatusDraft,
		},
	},
	models.StatusDraft: {
		AllowedRoles:   domain.AllRoles,
		AllowedSources: editableSources,
	},
	models.StatusDeprecated: {
		AllowedRoles:   agencyAndBackOffice,
		AllowedSources: editableSources,
	},
}

// Lookup returns the rule for a target status.
func Lookup(to models.Status) (Rule, bool) {
	rule, ok := table[to]
	return rule, ok
}

// AllowedRoles returns a copy of the roles allowed to request the target status.
func AllowedRoles(to models.Status) []domain.Role {
	return slices.Clone(table[to].AllowedRoles)
}

// AllowedSources returns a copy of the statuses from which the target is reachable.
func AllowedSources(to models.Status) []models.Status {
	return slices.Clone(table[to].AllowedSources)
}

// Authorize reports whether role may move a convention from one status to another.
// The role check runs before the source check so an unknown actor learns nothing
// about the convention's current status.
func Authorize(role domain.Role, from, to models.Status) error {
	rule, ok := table[to]
	if !ok {
		return dErrors.New(dErrors.CodeBadRequest, "unknown target status: "+to.String())
	}
	if !slices.Contains(rule.AllowedRoles, role) {
		return dErrors.New(dErrors.CodeForbidden,
			fmt.Sprintf("%s is not allowed to go to status %s", role, to))
	}
	if !slices.Contains(rule.AllowedSources, from) {
		return dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("cannot go to status %s for convention whose status is %s", to, from))
	}
	return nil
}

// RolesActingFrom returns the roles that can move a convention out of status,
// sorted and without duplicates.
func RolesActingFrom(status models.Status) []domain.Role {
	var roles []domain.Role
	for _, to := range models.AllStatuses {
		rule := table[to]
		if !slices.Contains(rule.AllowedSources, status) {
			continue
		}
		roles = append(roles, rule.AllowedRoles...)
	}
	slices.Sort(roles)
	return slices.Compact(roles)
}
