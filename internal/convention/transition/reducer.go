package transition

import (
	"strings"
	"time"

	"immersion/internal/convention/models"
	"immersion/pkg/domain"
	dErrors "immersion/pkg/domain-errors"
)

// Request is a status change asked for by an actor.
type Request struct {
	Target        models.Status
	Role          domain.Role
	Justification string
}

// Reduce applies req to current and returns the resulting convention.
// current is never modified.
func Reduce(current models.Convention, req Request, now time.Time) (models.Convention, error) {
	if err := Authorize(req.Role, current.Status, req.Target); err != nil {
		return models.Convention{}, err
	}

	justification := strings.TrimSpace(req.Justification)
	if req.Target.RequiresJustification() && justification == "" {
		return models.Convention{}, dErrors.New(dErrors.CodeBadRequest,
			"a justification is required to go to status "+req.Target.String())
	}

	next := current.Clone()
	next.Status = req.Target
	next.UpdatedAt = now

	if req.Target.ResetsSignatures() {
		for role, s := range next.Signatories {
			s.SignedAt = nil
			next.Signatories[role] = s
		}
	}

	if req.Target.IsValidated() {
		if !next.AllSigned() {
			return models.Convention{}, dErrors.New(dErrors.CodeBadRequest,
				"convention cannot be validated before every signatory has signed")
		}
		at := now
		next.DateValidation = &at
	} else {
		next.DateValidation = nil
	}

	if req.Target.RequiresJustification() {
		next.StatusJustification = justification
	} else {
		next.StatusJustification = ""
	}

	return next, nil
}

// Sign records the signature of the signatory holding role. The convention moves
// to IN_REVIEW once everyone has signed, PARTIALLY_SIGNED otherwise.
func Sign(current models.Convention, role domain.Role, now time.Time) (models.Convention, error) {
	signatory, ok := current.Signatories[role]
	if !ok {
		return models.Convention{}, dErrors.New(dErrors.CodeForbidden,
			role.String()+" is not a signatory of convention "+current.ID.String())
	}
	if signatory.SignedAt != nil {
		return models.Convention{}, dErrors.New(dErrors.CodeBadRequest,
			role.String()+" has already signed convention "+current.ID.String())
	}

	signed := current.Clone()
	at := now
	signatory.SignedAt = &at
	signed.Signatories[role] = signatory

	target := models.StatusPartiallySigned
	if signed.AllSigned() {
		target = models.StatusInReview
	}
	if err := Authorize(role, current.Status, target); err != nil {
		return models.Convention{}, err
	}

	signed.Status = target
	signed.UpdatedAt = now
	return signed, nil
}
