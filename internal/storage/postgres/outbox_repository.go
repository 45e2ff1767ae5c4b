package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type outboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository создаёт PostgreSQL-реализацию transactional outbox.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{db: store.DB()}
}

func (r *outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("insert outbox message: %w", err)
	}

	return msg, nil
}

func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox messages: %w", err)
	}
	defer rows.Close()

	messages := make([]domain.OutboxMessage, 0, limit)
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}

	return messages, nil
}

func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at)
		FROM outbox
		WHERE status = 'pending'
	`).Scan(&stats.PendingCount, &oldest)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("query outbox stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time
	}

	return stats, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, "sent")
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, "failed")
}

// DeleteSentBefore удаляет до limit отправленных записей, опубликованных раньше before.
func (r *outboxRepository) DeleteSentBefore(ctx context.Context, before time.Time, limit int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM outbox
		WHERE id IN (
			SELECT id FROM outbox
			WHERE status = 'sent' AND updated_at < $1
			ORDER BY updated_at ASC
			LIMIT $2
		)
	`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("delete sent outbox messages: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *outboxRepository) setStatus(ctx context.Context, id, status string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox
		SET status = $1, updated_at = $2
		WHERE id = $3
	`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update outbox status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("outbox record %s not found", id)
	}

	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
