package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"immersion/internal/convention/models"
	"immersion/pkg/domain"
	"immersion/pkg/platform/sentinel"
	"immersion/pkg/platform/tx"
)

// PostgresStore persists conventions in PostgreSQL. This store is pure I/O; the
// state machine lives in the transition package.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const conventionColumns = `id, status, agency_id, signatories, date_submission, date_start, date_end,
	date_validation, status_justification, siret, business_name, immersion_address,
	immersion_objective, internship_kind, updated_at`

func (s *PostgresStore) GetByID(ctx context.Context, id domain.ConventionID) (models.Convention, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+conventionColumns+` FROM conventions WHERE id = $1`, id.String())
	c, err := scanConvention(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Convention{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Convention{}, fmt.Errorf("get convention: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Insert(ctx context.Context, c models.Convention) error {
	args, err := conventionArgs(c)
	if err != nil {
		return err
	}
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO conventions (`+conventionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
	`, args...)
	if err != nil {
		return fmt.Errorf("insert convention: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, c models.Convention) error {
	args, err := conventionArgs(c)
	if err != nil {
		return err
	}
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE conventions SET
			status = $2,
			agency_id = $3,
			signatories = $4,
			date_submission = $5,
			date_start = $6,
			date_end = $7,
			date_validation = $8,
			status_justification = $9,
			siret = $10,
			business_name = $11,
			immersion_address = $12,
			immersion_objective = $13,
			internship_kind = $14,
			updated_at = $15
		WHERE id = $1
	`, args...)
	if err != nil {
		return fmt.Errorf("update convention: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update convention: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func conventionArgs(c models.Convention) ([]any, error) {
	signatories, err := json.Marshal(c.Signatories)
	if err != nil {
		return nil, fmt.Errorf("marshal signatories: %w", err)
	}
	var validation sql.NullTime
	if c.DateValidation != nil {
		validation = sql.NullTime{Time: *c.DateValidation, Valid: true}
	}
	return []any{
		c.ID.String(),
		string(c.Status),
		c.AgencyID.String(),
		signatories,
		c.DateSubmission,
		c.DateStart,
		c.DateEnd,
		validation,
		c.StatusJustification,
		c.Siret,
		c.BusinessName,
		c.ImmersionAddress,
		c.ImmersionObjective,
		c.InternshipKind,
		c.UpdatedAt,
	}, nil
}

func scanConvention(row *sql.Row) (models.Convention, error) {
	var (
		c                           models.Convention
		id, status, agency          string
		signatories                 []byte
		submission, start, end, upd time.Time
		validation                  sql.NullTime
	)
	err := row.Scan(&id, &status, &agency, &signatories, &submission, &start, &end,
		&validation, &c.StatusJustification, &c.Siret, &c.BusinessName, &c.ImmersionAddress,
		&c.ImmersionObjective, &c.InternshipKind, &upd)
	if err != nil {
		return models.Convention{}, err
	}
	if err := json.Unmarshal(signatories, &c.Signatories); err != nil {
		return models.Convention{}, fmt.Errorf("unmarshal signatories: %w", err)
	}
	c.ID = domain.ConventionID(id)
	c.Status = models.Status(status)
	c.AgencyID = domain.AgencyID(agency)
	c.DateSubmission = submission.UTC()
	c.DateStart = start.UTC()
	c.DateEnd = end.UTC()
	c.UpdatedAt = upd.UTC()
	if validation.Valid {
		at := validation.Time.UTC()
		c.DateValidation = &at
	}
	return c, nil
}
