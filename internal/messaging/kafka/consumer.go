package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// MessageHandler обрабатывает одно сообщение из Kafka.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// Consumer — обёртка над consumer group с повторными попытками обработки
// и отправкой безнадёжных сообщений в DLQ.
type Consumer struct {
	group       sarama.ConsumerGroup
	topics      []string
	handler     MessageHandler
	logger      *log.Entry
	wg          sync.WaitGroup
	dlqProducer *Producer
	maxRetries  int
	retryDelay  time.Duration
}

// NewConsumer создаёт consumer без DLQ: после исчерпания попыток ошибка
// просто возвращается и сообщение не маркируется.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler) (*Consumer, error) {
	return NewConsumerWithDLQ(brokers, groupID, topics, handler, nil, 3)
}

// NewConsumerWithDLQ создаёт consumer, который после maxRetries неудачных
// попыток перекладывает сообщение в Dead Letter Queue.
func NewConsumerWithDLQ(brokers []string, groupID string, topics []string, handler MessageHandler, dlqProducer *Producer, maxRetries int) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &Consumer{
		group:       group,
		topics:      topics,
		handler:     handler,
		logger:      log.WithField("component", "kafka-consumer"),
		dlqProducer: dlqProducer,
		maxRetries:  maxRetries,
		retryDelay:  500 * time.Millisecond,
	}, nil
}

// Start запускает цикл потребления в фоне.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// При rebalance Consume возвращается, поэтому крутим его в цикле
			// до отмены контекста.
			if err := c.group.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("error from consumer")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает группу и дожидается фоновых горутин.
func (c *Consumer) Stop() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup — часть интерфейса sarama.ConsumerGroupHandler.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup — часть интерфейса sarama.ConsumerGroupHandler.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim читает сообщения одной партиции до конца сессии.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			c.logger.WithFields(log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			}).Debug("received message")

			if err := c.handleMessageWithRetry(session.Context(), message); err != nil {
				c.logger.WithError(err).WithFields(log.Fields{
					"topic":     message.Topic,
					"partition": message.Partition,
					"offset":    message.Offset,
				}).Error("message processing failed after all retries")
				// Офсет не двигаем: сообщение либо уже в DLQ, либо будет
				// прочитано снова.
				continue
			}

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// handleMessageWithRetry выполняет обработчик с паузами retryDelay между
// попытками. Счёт попыток начинается с x-retry-count из заголовков, чтобы
// переигранные сообщения не крутились бесконечно.
func (c *Consumer) handleMessageWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	retryCount := c.getRetryCount(message)

	err := c.handler(ctx, message)
	if err == nil {
		return nil
	}

	for attempt := retryCount + 1; attempt < c.maxRetries; attempt++ {
		c.logger.WithFields(log.Fields{
			"topic":       message.Topic,
			"retry_count": attempt,
			"max_retries": c.maxRetries,
		}).Warn("message processing failed, will retry")

		if c.retryDelay > 0 {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err = c.handler(ctx, message)
		if err == nil {
			return nil
		}
	}

	if c.dlqProducer == nil {
		return err
	}

	if dlqErr := c.sendToDLQ(message, err); dlqErr != nil {
		c.logger.WithError(dlqErr).Error("failed to send message to DLQ")
		return fmt.Errorf("failed to send to DLQ: %w", dlqErr)
	}
	c.logger.WithFields(log.Fields{
		"topic":       message.Topic,
		"retry_count": retryCount,
	}).Info("message sent to DLQ after max retries")
	return nil
}

func (c *Consumer) getRetryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if string(header.Key) != HeaderRetryCount {
			continue
		}
		if count, err := strconv.Atoi(string(header.Value)); err == nil {
			return count
		}
	}
	return 0
}

// sendToDLQ сохраняет исходное сообщение целиком: dlq-reprocess умеет
// восстанавливать из этих полей событие и переигрывать его.
func (c *Consumer) sendToDLQ(message *sarama.ConsumerMessage, processingErr error) error {
	record := map[string]interface{}{
		"original_topic":     message.Topic,
		"original_partition": message.Partition,
		"original_offset":    message.Offset,
		"original_key":       string(message.Key),
		"original_value":     string(message.Value),
		"error_message":      processingErr.Error(),
		"failed_at":          time.Now().UTC().Format(time.RFC3339),
		"retry_count":        c.getRetryCount(message),
	}

	return c.dlqProducer.PublishEvent(TopicDeadLetterQueue, string(message.Key), record)
}

// CatalogEnvelope — конверт события каталога, публикуемый outbox-воркером.
type CatalogEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// ParseCatalogEnvelope разбирает конверт события каталога из сообщения.
func ParseCatalogEnvelope(message *sarama.ConsumerMessage) (*CatalogEnvelope, error) {
	var envelope CatalogEnvelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog envelope: %w", err)
	}
	return &envelope, nil
}

// ParseProductEvent разбирает ProductEvent из payload конверта.
func ParseProductEvent(payload []byte) (*ProductEvent, error) {
	var event ProductEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product event: %w", err)
	}
	return &event, nil
}

// ParseCategoryEvent разбирает CategoryEvent из payload конверта.
func ParseCategoryEvent(payload []byte) (*CategoryEvent, error) {
	var event CategoryEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal category event: %w", err)
	}
	return &event, nil
}
