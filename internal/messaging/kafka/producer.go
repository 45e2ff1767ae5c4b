package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// Producer — синхронный Kafka-продьюсер событий каталога.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
}

// NewProducer создаёт идемпотентный sync-продьюсер: подтверждение от всех
// in-sync реплик, snappy-сжатие, не более одного запроса в полёте.
func NewProducer(brokers []string) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, producerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &Producer{
		producer: producer,
		logger:   log.WithField("component", "kafka-producer"),
	}, nil
}

func producerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = "shop-catalog"
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	// Идемпотентность требует не более одного запроса в полёте.
	config.Net.MaxOpenRequests = 1
	return config
}

// PublishEvent сериализует событие в JSON и отправляет его в topic под key.
func (p *Producer) PublishEvent(topic string, key string, event interface{}) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(eventData),
		Timestamp: time.Now(),
	})
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"topic": topic,
			"key":   key,
		}).Error("failed to send message to kafka")
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.WithFields(log.Fields{
		"topic":     topic,
		"key":       key,
		"partition": partition,
		"offset":    offset,
	}).Debug("message sent to kafka")

	return nil
}

// Close закрывает продьюсер.
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
