package transition

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"immersion/internal/convention/models"
	"immersion/pkg/domain"
	dErrors "immersion/pkg/domain-errors"
)

func TestTable_CoversEveryStatus(t *testing.T) {
	for _, status := range models.AllStatuses {
		rule, ok := Lookup(status)
		require.True(t, ok, "missing rule for %s", status)
		assert.NotEmpty(t, rule.AllowedRoles, "no role can reach %s", status)
		assert.NotEmpty(t, rule.AllowedSources, "%s is unreachable", status)
	}
}

// TestAuthorize_Exhaustive walks every (role, from, to) triple.
func TestAuthorize_Exhaustive(t *testing.T) {
	for _, to := range models.AllStatuses {
		roles := AllowedRoles(to)
		sources := AllowedSources(to)
		for _, from := range models.AllStatuses {
			for _, role := range domain.AllRoles {
				err := Authorize(role, from, to)
				roleOK := slices.Contains(roles, role)
				sourceOK := slices.Contains(sources, from)
				switch {
				case roleOK && sourceOK:
					assert.NoError(t, err, "%s %s->%s", role, from, to)
				case !roleOK:
					assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden), "%s %s->%s: %v", role, from, to, err)
				default:
					assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest), "%s %s->%s: %v", role, from, to, err)
				}
			}
		}
	}
}

func TestAuthorize_Messages(t *testing.T) {
	t.Run("forbidden names role and target", func(t *testing.T) {
		err := Authorize(domain.RoleBeneficiary, models.StatusInReview, models.StatusAcceptedByValidator)
		require.Error(t, err)
		assert.Equal(t, "beneficiary is not allowed to go to status ACCEPTED_BY_VALIDATOR", err.Error())
	})

	t.Run("bad request names both statuses", func(t *testing.T) {
		err := Authorize(domain.RoleValidator, models.StatusDraft, models.StatusAcceptedByValidator)
		require.Error(t, err)
		assert.Equal(t, "cannot go to status ACCEPTED_BY_VALIDATOR for convention whose status is DRAFT", err.Error())
	})

	t.Run("role checked before source", func(t *testing.T) {
		err := Authorize(domain.RoleBeneficiary, models.StatusDraft, models.StatusAcceptedByValidator)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("unknown target", func(t *testing.T) {
		err := Authorize(domain.RoleBackOffice, models.StatusDraft, models.Status("ARCHIVED"))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func TestAuthorize_TerminalStatuses(t *testing.T) {
	for _, from := range []models.Status{models.StatusCancelled, models.StatusRejected, models.StatusDeprecated} {
		for _, to := range models.AllStatuses {
			err := Authorize(domain.RoleBackOffice, from, to)
			assert.Error(t, err, "%s should be terminal but reaches %s", from, to)
		}
	}
}

func TestRolesActingFrom(t *testing.T) {
	t.Run("in review", func(t *testing.T) {
		got := RolesActingFrom(models.StatusInReview)
		assert.Equal(t, []domain.Role{
			domain.RoleBackOffice,
			domain.RoleBeneficiary,
			domain.RoleBeneficiaryCurrentEmployer,
			domain.RoleBeneficiaryRepresentative,
			domain.RoleCounsellor,
			domain.RoleEstablishmentRepresentative,
			domain.RoleValidator,
		}, got)
	})

	t.Run("draft only reachable by agency", func(t *testing.T) {
		got := RolesActingFrom(models.StatusDraft)
		assert.Equal(t, []domain.Role{domain.RoleBackOffice, domain.RoleCounsellor, domain.RoleValidator}, got)
	})

	t.Run("terminal status has no actors", func(t *testing.T) {
		assert.Empty(t, RolesActingFrom(models.StatusRejected))
	})

	t.Run("copies do not alias the table", func(t *testing.T) {
		roles := AllowedRoles(models.StatusDraft)
		roles[0] = domain.Role("mutated")
		assert.NotEqual(t, domain.Role("mutated"), AllowedRoles(models.StatusDraft)[0])
	})
}
