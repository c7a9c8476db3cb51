package francetravail

import (
	"time"

	conventionmodels "immersion/internal/convention/models"
	"immersion/pkg/domain"
)

// Convention is the flattened shape the France Travail immersion API expects.
type Convention struct {
	ID                    string `json:"id"`
	OriginalID            string `json:"originalId"`
	Statut                string `json:"statut"`
	Email                 string `json:"email"`
	Telephone             string `json:"telephone,omitempty"`
	Prenom                string `json:"prenom"`
	Nom                   string `json:"nom"`
	DateDemande           string `json:"dateDemande"`
	DateDebut             string `json:"dateDebut"`
	DateFin               string `json:"dateFin"`
	DateValidation        string `json:"dateValidation,omitempty"`
	Siret                 string `json:"siret"`
	RaisonSociale         string `json:"raisonSociale"`
	AdresseImmersion      string `json:"adresseImmersion,omitempty"`
	ObjectifDeImmersion   int    `json:"objectifDeImmersion,omitempty"`
	SignatureBeneficiaire bool   `json:"signatureBeneficiaire"`
	SignatureEntreprise   bool   `json:"signatureEntreprise"`
	EmailTuteur           string `json:"emailTuteur,omitempty"`
	NomPrenomTuteur       string `json:"nomPrenomTuteur,omitempty"`
	TypeStage             string `json:"typeStage,omitempty"`
	Motif                 string `json:"motif,omitempty"`
}

var statuts = map[conventionmodels.Status]string{
	conventionmodels.StatusReadyToSign:          "DEMANDE_A_SIGNER",
	conventionmodels.StatusPartiallySigned:      "PARTIELLEMENT_SIGNÉ",
	conventionmodels.StatusInReview:             "DEMANDE_A_ETUDIER",
	conventionmodels.StatusAcceptedByCounsellor: "DEMANDE_ÉLIGIBLE",
	conventionmodels.StatusAcceptedByValidator:  "DEMANDE_VALIDÉE",
	conventionmodels.StatusRejected:             "REJETÉ",
	conventionmodels.StatusCancelled:            "DEMANDE_ANNULÉE",
	conventionmodels.StatusDraft:                "BROUILLON",
	conventionmodels.StatusDeprecated:           "DEMANDE_OBSOLÈTE",
}

var objectives = map[string]int{
	"Confirmer un projet professionnel":            1,
	"Découvrir un métier ou un secteur d'activité": 2,
	"Initier une démarche de recrutement":          3,
}

// Flatten maps a convention snapshot to the partner payload.
func Flatten(c conventionmodels.Convention) Convention {
	beneficiary := c.Signatories[domain.RoleBeneficiary]
	establishment := c.Signatories[domain.RoleEstablishmentRepresentative]

	out := Convention{
		ID:                    c.ID.String(),
		OriginalID:            c.ID.String(),
		Statut:                statuts[c.Status],
		Email:                 beneficiary.Email,
		Telephone:             beneficiary.Phone,
		Prenom:                beneficiary.FirstName,
		Nom:                   beneficiary.LastName,
		DateDemande:           formatDate(c.DateSubmission),
		DateDebut:             formatDate(c.DateStart),
		DateFin:               formatDate(c.DateEnd),
		Siret:                 c.Siret,
		RaisonSociale:         c.BusinessName,
		AdresseImmersion:      c.ImmersionAddress,
		ObjectifDeImmersion:   objectives[c.ImmersionObjective],
		SignatureBeneficiaire: beneficiary.SignedAt != nil,
		SignatureEntreprise:   establishment.SignedAt != nil,
		EmailTuteur:           establishment.Email,
		TypeStage:             c.InternshipKind,
	}
	if establishment.FirstName != "" || establishment.LastName != "" {
		out.NomPrenomTuteur = establishment.LastName + " " + establishment.FirstName
	}
	if c.DateValidation != nil {
		out.DateValidation = formatDate(*c.DateValidation)
	}
	if c.Status == conventionmodels.StatusRejected || c.Status == conventionmodels.StatusCancelled ||
		c.Status == conventionmodels.StatusDeprecated || c.Status == conventionmodels.StatusDraft {
		out.Motif = c.StatusJustification
	}
	return out
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
