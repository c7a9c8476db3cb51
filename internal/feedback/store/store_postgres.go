package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"immersion/internal/feedback/models"
	"immersion/pkg/domain"
	"immersion/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const feedbackColumns = `convention_id, consumer_id, consumer_name, request_params,
	subscriber_error, response, occurred_at, handled_by_agency`

func (s *PostgresStore) Save(ctx context.Context, f models.BroadcastFeedback) error {
	params, err := json.Marshal(f.RequestParams)
	if err != nil {
		return fmt.Errorf("marshal request params: %w", err)
	}
	subscriberErr, err := nullableJSON(f.SubscriberError)
	if err != nil {
		return fmt.Errorf("marshal subscriber error: %w", err)
	}
	response, err := nullableJSON(f.Response)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO broadcast_feedbacks (`+feedbackColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, f.ConventionID.String(), f.ConsumerID, f.ConsumerName, params, subscriberErr, response,
		f.OccurredAt, f.HandledByAgency)
	if err != nil {
		return fmt.Errorf("insert broadcast feedback: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByConvention(ctx context.Context, id domain.ConventionID) ([]models.BroadcastFeedback, error) {
	return s.query(ctx, `
		SELECT `+feedbackColumns+` FROM broadcast_feedbacks
		WHERE convention_id = $1
		ORDER BY occurred_at, id
	`, id.String())
}

func (s *PostgresStore) LatestByConsumer(ctx context.Context, id domain.ConventionID) ([]models.BroadcastFeedback, error) {
	return s.query(ctx, `
		SELECT DISTINCT ON (consumer_name) `+feedbackColumns+` FROM broadcast_feedbacks
		WHERE convention_id = $1
		ORDER BY consumer_name, occurred_at DESC, id DESC
	`, id.String())
}

func (s *PostgresStore) MarkHandledByAgency(ctx context.Context, id domain.ConventionID, consumerName string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE broadcast_feedbacks SET handled_by_agency = TRUE
		WHERE convention_id = $1 AND consumer_name = $2
	`, id.String(), consumerName)
	if err != nil {
		return fmt.Errorf("mark feedback handled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark feedback handled: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]models.BroadcastFeedback, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query broadcast feedbacks: %w", err)
	}
	defer rows.Close()

	var out []models.BroadcastFeedback
	for rows.Next() {
		var (
			f                       models.BroadcastFeedback
			conventionID            string
			params                  []byte
			subscriberErr, response []byte
		)
		if err := rows.Scan(&conventionID, &f.ConsumerID, &f.ConsumerName, &params,
			&subscriberErr, &response, &f.OccurredAt, &f.HandledByAgency); err != nil {
			return nil, fmt.Errorf("scan broadcast feedback: %w", err)
		}
		f.ConventionID = domain.ConventionID(conventionID)
		if err := json.Unmarshal(params, &f.RequestParams); err != nil {
			return nil, fmt.Errorf("decode request params: %w", err)
		}
		if subscriberErr != nil {
			f.SubscriberError = new(models.SubscriberError)
			if err := json.Unmarshal(subscriberErr, f.SubscriberError); err != nil {
				return nil, fmt.Errorf("decode subscriber error: %w", err)
			}
		}
		if response != nil {
			f.Response = new(models.Response)
			if err := json.Unmarshal(response, f.Response); err != nil {
				return nil, fmt.Errorf("decode response: %w", err)
			}
		}
		f.OccurredAt = f.OccurredAt.UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}

func nullableJSON[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
