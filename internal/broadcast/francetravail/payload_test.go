package francetravail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	conventionmodels "immersion/internal/convention/models"
	"immersion/pkg/domain"
)

func TestFlatten(t *testing.T) {
	signedAt := time.Date(2022, 1, 2, 9, 0, 0, 0, time.UTC)
	c := conventionmodels.Convention{
		ID:                  "C1",
		Status:              conventionmodels.StatusRejected,
		StatusJustification: "missing documents",
		DateSubmission:      time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		DateStart:           time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC),
		DateEnd:             time.Date(2022, 2, 15, 0, 0, 0, 0, time.UTC),
		Siret:               "12345678901234",
		BusinessName:        "Boulangerie",
		ImmersionObjective:  "Initier une démarche de recrutement",
		Signatories: map[domain.Role]conventionmodels.Signatory{
			domain.RoleBeneficiary: {
				Role: domain.RoleBeneficiary, Email: "jane@example.com",
				FirstName: "Jane", LastName: "Doe", SignedAt: &signedAt,
			},
			domain.RoleEstablishmentRepresentative: {
				Role: domain.RoleEstablishmentRepresentative, Email: "boss@example.com",
				FirstName: "Jean", LastName: "Martin",
			},
		},
	}

	got := Flatten(c)

	assert.Equal(t, "C1", got.ID)
	assert.Equal(t, "REJETÉ", got.Statut)
	assert.Equal(t, "jane@example.com", got.Email)
	assert.Equal(t, "2022-02-01T00:00:00Z", got.DateDebut)
	assert.Empty(t, got.DateValidation)
	assert.Equal(t, 3, got.ObjectifDeImmersion)
	assert.True(t, got.SignatureBeneficiaire)
	assert.False(t, got.SignatureEntreprise)
	assert.Equal(t, "Martin Jean", got.NomPrenomTuteur)
	assert.Equal(t, "missing documents", got.Motif)
}

func TestFlatten_EveryStatusHasAStatut(t *testing.T) {
	for _, status := range conventionmodels.AllStatuses {
		got := Flatten(conventionmodels.Convention{ID: "C1", Status: status})
		assert.NotEmpty(t, got.Statut, status)
	}
}
