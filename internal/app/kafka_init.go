package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
)

// initKafkaProducer создаёт producer событий каталога. Пустой brokers
// означает запуск без Kafka: outbox копится, но не публикуется.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	if brokers == "" {
		return nil, nil
	}

	addrs := strings.Split(brokers, ",")
	for i := range addrs {
		addrs[i] = strings.TrimSpace(addrs[i])
	}

	producer, err := kafka.NewProducer(addrs)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", addrs).Info("kafka producer initialized")
	return producer, nil
}

func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
