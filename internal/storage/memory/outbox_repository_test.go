package memory

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()

	msg := domain.OutboxMessage{
		AggregateType: "product",
		AggregateID:   "7",
		EventType:     "product.created",
		Payload:       []byte(`{"product_id":7}`),
	}

	saved, err := repo.Enqueue(ctx, msg)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated id")
	}

	pending, err := repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending message, got %d", len(pending))
	}
	if pending[0].ID != saved.ID {
		t.Fatalf("expected same message id, got %s", pending[0].ID)
	}
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()

	saved, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: "category"})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := repo.MarkSent(ctx, saved.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, saved.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, "missing"); err == nil {
		t.Fatal("expected error for missing record")
	}
}

func TestOutboxRepository_Stats(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 0 || !stats.OldestPendingAt.IsZero() {
		t.Fatalf("expected empty stats, got %+v", stats)
	}

	first, _ := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: "product"})
	_, _ = repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: "product"})

	stats, err = repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 2 {
		t.Fatalf("expected 2 pending, got %d", stats.PendingCount)
	}
	if stats.OldestPendingAt.IsZero() {
		t.Fatal("expected oldest pending timestamp")
	}

	if err := repo.MarkSent(ctx, first.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	stats, _ = repo.Stats(ctx)
	if stats.PendingCount != 1 {
		t.Fatalf("expected 1 pending after mark sent, got %d", stats.PendingCount)
	}
}

func TestOutboxRepository_DeleteSentBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()

	sent, _ := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: "product"})
	pending, _ := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: "product"})
	if err := repo.MarkSent(ctx, sent.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}

	// Cutoff в прошлом не задевает свежие записи.
	deleted, err := repo.DeleteSentBefore(ctx, time.Now().UTC().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("delete sent failed: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected 0 deleted with past cutoff, got %d", deleted)
	}

	deleted, err = repo.DeleteSentBefore(ctx, time.Now().UTC().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("delete sent failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}

	// Pending-запись пережила очистку.
	remaining, _ := repo.PullPending(ctx, 10)
	if len(remaining) != 1 || remaining[0].ID != pending.ID {
		t.Fatalf("pending record must survive cleanup: %+v", remaining)
	}
}
