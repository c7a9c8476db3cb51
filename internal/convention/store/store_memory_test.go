package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"immersion/internal/convention/models"
	"immersion/pkg/domain"
	"immersion/pkg/platform/sentinel"
	"immersion/pkg/platform/tx"
)

type InMemoryConventionStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func TestInMemoryConventionStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryConventionStoreSuite))
}

func (s *InMemoryConventionStoreSuite) SetupTest() {
	s.store = NewInMemory()
}

func sample() models.Convention {
	at := time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC)
	return models.Convention{
		ID:          "C1",
		Status:      models.StatusInReview,
		AgencyID:    "agency-1",
		Signatories: map[domain.Role]models.Signatory{
			domain.RoleBeneficiary: {Role: domain.RoleBeneficiary, Email: "b@mail.com", SignedAt: &at},
		},
	}
}

func (s *InMemoryConventionStoreSuite) TestInsertAndGet() {
	ctx := context.Background()
	s.Require().NoError(s.store.Insert(ctx, sample()))
	s.ErrorIs(s.store.Insert(ctx, sample()), sentinel.ErrConflict)

	got, err := s.store.GetByID(ctx, "C1")
	s.Require().NoError(err)
	s.Equal(models.StatusInReview, got.Status)

	_, err = s.store.GetByID(ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryConventionStoreSuite) TestReturnedValuesAreIndependent() {
	ctx := context.Background()
	s.Require().NoError(s.store.Insert(ctx, sample()))

	got, err := s.store.GetByID(ctx, "C1")
	s.Require().NoError(err)
	delete(got.Signatories, domain.RoleBeneficiary)

	again, err := s.store.GetByID(ctx, "C1")
	s.Require().NoError(err)
	s.Contains(again.Signatories, domain.RoleBeneficiary)
}

func (s *InMemoryConventionStoreSuite) TestUpdateRollsBack() {
	ctx := context.Background()
	s.Require().NoError(s.store.Insert(ctx, sample()))

	boom := errors.New("boom")
	err := tx.NewInMemory().RunInTx(ctx, func(ctx context.Context) error {
		c := sample()
		c.Status = models.StatusAcceptedByValidator
		s.Require().NoError(s.store.Update(ctx, c))
		return boom
	})
	s.ErrorIs(err, boom)

	got, err := s.store.GetByID(ctx, "C1")
	s.Require().NoError(err)
	s.Equal(models.StatusInReview, got.Status)

	missing := sample()
	missing.ID = "C2"
	s.ErrorIs(s.store.Update(ctx, missing), sentinel.ErrNotFound)
}
