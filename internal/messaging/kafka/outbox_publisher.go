package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения каталога в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicCatalogEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	// Ключ — идентификатор агрегата: события одного товара или категории
	// попадают в одну партицию и сохраняют порядок.
	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	envelope := CatalogEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   time.Now().UTC(),
	}

	return p.producer.PublishEvent(p.topic, key, envelope)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
