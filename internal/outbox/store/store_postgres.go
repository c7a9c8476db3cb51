package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"immersion/internal/outbox/models"
	"immersion/pkg/domain"
	"immersion/pkg/platform/sentinel"
	"immersion/pkg/platform/tx"
)

// PostgresStore persists events and their publications in PostgreSQL.
// Writes join the transaction carried by ctx when there is one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const eventColumns = `id, topic, payload, occurred_at, status, was_quarantined, quarantine_reason`

func (s *PostgresStore) Append(ctx context.Context, event models.DomainEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	query := `
		INSERT INTO outbox_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, FALSE, '')
		ON CONFLICT (id) DO NOTHING
	`
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, query,
		event.ID.String(), string(event.Topic), payload, event.OccurredAt, string(models.EventStatusNeverPublished))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.EventID) (models.DomainEvent, error) {
	events, err := s.query(ctx, `SELECT `+eventColumns+` FROM outbox_events WHERE id = $1`, id.String())
	if err != nil {
		return models.DomainEvent{}, err
	}
	if len(events) == 0 {
		return models.DomainEvent{}, sentinel.ErrNotFound
	}
	return events[0], nil
}

func (s *PostgresStore) ListUnpublished(ctx context.Context, limit int) ([]models.DomainEvent, error) {
	return s.query(ctx, `
		SELECT `+eventColumns+`
		FROM outbox_events
		WHERE status = 'never-published' AND NOT was_quarantined
		ORDER BY occurred_at, id
		LIMIT $1
	`, limit)
}

func (s *PostgresStore) ListQuarantined(ctx context.Context) ([]models.DomainEvent, error) {
	return s.query(ctx, `
		SELECT `+eventColumns+`
		FROM outbox_events
		WHERE was_quarantined
		ORDER BY occurred_at, id
	`)
}

func (s *PostgresStore) ListFailed(ctx context.Context, limit int) ([]models.DomainEvent, error) {
	return s.query(ctx, `
		SELECT `+eventColumns+`
		FROM outbox_events
		WHERE status = 'failed'
		ORDER BY occurred_at, id
		LIMIT $1
	`, limit)
}

// RecordPublication inserts the publication and recomputes the status in one
// transaction. A published row is never moved back.
func (s *PostgresStore) RecordPublication(ctx context.Context, id domain.EventID, pub models.Publication, required []models.SubscriberID) (models.DomainEvent, error) {
	subscribers := make([]string, len(required))
	for i, r := range required {
		subscribers[i] = string(r)
	}

	err := tx.NewSQL(s.db).RunInTx(ctx, func(ctx context.Context) error {
		ex := tx.Exec(ctx, s.db)
		var current string
		err := ex.QueryRowContext(ctx, `SELECT status FROM outbox_events WHERE id = $1 FOR UPDATE`, id.String()).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock event: %w", err)
		}

		_, err = ex.ExecContext(ctx, `
			INSERT INTO outbox_publications (event_id, subscriber_id, outcome, error, published_at)
			VALUES ($1, $2, $3, $4, $5)
		`, id.String(), string(pub.SubscriberID), string(pub.Outcome), pub.Error, pub.At)
		if err != nil {
			return fmt.Errorf("insert publication: %w", err)
		}

		_, err = ex.ExecContext(ctx, `
			UPDATE outbox_events SET status = CASE
				WHEN status = 'published' THEN 'published'
				WHEN $2::text = 'ok' AND NOT EXISTS (
					SELECT 1 FROM unnest($3::text[]) AS r(subscriber_id)
					WHERE NOT EXISTS (
						SELECT 1 FROM outbox_publications p
						WHERE p.event_id = $1 AND p.subscriber_id = r.subscriber_id AND p.outcome = 'ok'
					)
				) THEN 'published'
				WHEN $2::text = 'error' THEN 'failed'
				ELSE status
			END
			WHERE id = $1
		`, id.String(), string(pub.Outcome), pq.Array(subscribers))
		if err != nil {
			return fmt.Errorf("update event status: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.DomainEvent{}, err
	}
	return s.Get(ctx, id)
}

func (s *PostgresStore) Quarantine(ctx context.Context, id domain.EventID, reason string) error {
	return s.execOne(ctx, `UPDATE outbox_events SET was_quarantined = TRUE, quarantine_reason = $2 WHERE id = $1`, id.String(), reason)
}

func (s *PostgresStore) Release(ctx context.Context, id domain.EventID) error {
	return s.execOne(ctx, `
		UPDATE outbox_events
		SET was_quarantined = FALSE,
			quarantine_reason = '',
			status = CASE WHEN status = 'failed' THEN 'never-published' ELSE status END
		WHERE id = $1
	`, id.String())
}

func (s *PostgresStore) Requeue(ctx context.Context, id domain.EventID) error {
	var status string
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx, `
		UPDATE outbox_events
		SET status = CASE WHEN status = 'failed' THEN 'never-published' ELSE status END
		WHERE id = $1
		RETURNING status
	`, id.String()).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("requeue event: %w", err)
	}
	if models.EventStatus(status) == models.EventStatusPublished {
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]models.DomainEvent, error) {
	ex := tx.Exec(ctx, s.db)
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []models.DomainEvent
	var ids []string
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
		ids = append(ids, event.ID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	pubs, err := s.publications(ctx, ex, ids)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].Publications = pubs[events[i].ID]
	}
	return events, nil
}

func (s *PostgresStore) publications(ctx context.Context, ex tx.Executor, ids []string) (map[domain.EventID][]models.Publication, error) {
	rows, err := ex.QueryContext(ctx, `
		SELECT event_id, subscriber_id, outcome, error, published_at
		FROM outbox_publications
		WHERE event_id = ANY($1)
		ORDER BY id
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query publications: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.EventID][]models.Publication, len(ids))
	for rows.Next() {
		var (
			eventID, subscriber, outcome, errMsg string
			at                                   time.Time
		)
		if err := rows.Scan(&eventID, &subscriber, &outcome, &errMsg, &at); err != nil {
			return nil, fmt.Errorf("scan publication: %w", err)
		}
		id := domain.EventID(eventID)
		out[id] = append(out[id], models.Publication{
			SubscriberID: models.SubscriberID(subscriber),
			Outcome:      models.Outcome(outcome),
			At:           at.UTC(),
			Error:        errMsg,
		})
	}
	return out, rows.Err()
}

func scanEvent(rows *sql.Rows) (models.DomainEvent, error) {
	var (
		id, topic, status, reason string
		payload                   []byte
		occurredAt                time.Time
		quarantined               bool
	)
	if err := rows.Scan(&id, &topic, &payload, &occurredAt, &status, &quarantined, &reason); err != nil {
		return models.DomainEvent{}, fmt.Errorf("scan event: %w", err)
	}
	// An undecodable payload leaves Payload nil so the worker can quarantine it.
	decoded, _ := models.DecodePayload(models.Topic(topic), payload)
	return models.DomainEvent{
		ID:               domain.EventID(id),
		Topic:            models.Topic(topic),
		Payload:          decoded,
		OccurredAt:       occurredAt.UTC(),
		Status:           models.EventStatus(status),
		WasQuarantined:   quarantined,
		QuarantineReason: reason,
	}, nil
}
