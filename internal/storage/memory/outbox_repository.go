package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg       domain.OutboxMessage
	status    string
	createdAt time.Time
	updatedAt time.Time
}

// outboxRepositoryInMemory — простое in-memory хранилище для transactional outbox.
type outboxRepositoryInMemory struct {
	mu      sync.RWMutex
	records map[string]*outboxRecord
}

// NewOutboxRepository создаёт in-memory реализацию outbox.
func NewOutboxRepository() domain.OutboxRepository {
	return &outboxRepositoryInMemory{records: make(map[string]*outboxRecord)}
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его идентификатор.
func (r *outboxRepositoryInMemory) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.records[msg.ID] = &outboxRecord{
		msg:       msg,
		status:    "pending",
		createdAt: now,
		updatedAt: now,
	}
	return msg, nil
}

// PullPending возвращает до limit сообщений со статусом `pending`
// в порядке постановки в очередь.
func (r *outboxRepositoryInMemory) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	pending := make([]*outboxRecord, 0, len(r.records))
	for _, rec := range r.records {
		if rec.status == "pending" {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].createdAt.Before(pending[j].createdAt) })

	if len(pending) > limit {
		pending = pending[:limit]
	}
	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и возраст самого старого pending-сообщения.
func (r *outboxRepositoryInMemory) Stats(_ context.Context) (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.OutboxStats{}
	for _, rec := range r.records {
		if rec.status != "pending" {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || rec.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.createdAt
		}
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r *outboxRepositoryInMemory) MarkSent(_ context.Context, id string) error {
	return r.setStatus(id, "sent")
}

// MarkFailed помечает событие как неопубликованное после исчерпания retry.
func (r *outboxRepositoryInMemory) MarkFailed(_ context.Context, id string) error {
	return r.setStatus(id, "failed")
}

// DeleteSentBefore удаляет до limit отправленных записей, опубликованных раньше before.
func (r *outboxRepositoryInMemory) DeleteSentBefore(_ context.Context, before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	expired := make([]*outboxRecord, 0)
	for _, rec := range r.records {
		if rec.status == "sent" && rec.updatedAt.Before(before) {
			expired = append(expired, rec)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].updatedAt.Before(expired[j].updatedAt) })
	if len(expired) > limit {
		expired = expired[:limit]
	}

	for _, rec := range expired {
		delete(r.records, rec.msg.ID)
	}
	return len(expired), nil
}

func (r *outboxRepositoryInMemory) setStatus(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return fmt.Errorf("outbox record %s not found", id)
	}
	record.status = status
	record.updatedAt = time.Now().UTC()
	return nil
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
