package domain

import (
	"context"
	"time"
)

// ProductFetcher получает актуальные данные товара из каталога.
// Реализации обязаны возвращать ErrProductNotFound для отсутствующих товаров,
// чтобы корзина могла отличить удалённый товар от сетевого сбоя.
type ProductFetcher interface {
	Fetch(ctx context.Context, id int64) (Product, error)
}

// CartStorage хранит сериализованное состояние корзины под одним
// namespaced-ключом. Load возвращает nil без ошибки, если состояния ещё нет.
type CartStorage interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	// DeleteSentBefore удаляет до limit опубликованных записей, отправленных
	// раньше before. Возвращает число удалённых.
	DeleteSentBefore(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
