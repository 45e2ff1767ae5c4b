package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
)

const (
	defaultScanLimit   = 100
	defaultIdleTimeout = 2 * time.Second
)

// replayConfig описывает параметры одного прогона переигрывания DLQ.
type replayConfig struct {
	brokers []string
	source  string
	target  string
	limit   int
	execute bool
	idle    time.Duration
}

// tally — итог прогона: сколько сообщений просмотрено, сколько стало
// кандидатами на переигрывание, сколько пропущено как нераспознанные.
type tally struct {
	scanned int
	queued  int
	skipped int
}

// candidate — восстановленное событие каталога, готовое к публикации.
type candidate struct {
	topic string
	key   string
	value []byte
}

// consumerDLQRecord пишет в DLQ consumer каталога: исходное сообщение
// сохраняется целиком в полях original_*.
type consumerDLQRecord struct {
	OriginalTopic string `json:"original_topic"`
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
}

// outboxDLQRecord пишет outbox-воркер: конверт DLQ несёт исходное событие
// внутри своего payload.
type outboxDLQRecord struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

// clusterClient даёт офсеты и партиции исходного топика.
type clusterClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

// partitionReader читает одну партицию DLQ.
type partitionReader interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

// readerFactory открывает partitionReader по партиции и офсету.
type readerFactory interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionReader, error)
	Close() error
}

// eventSink публикует восстановленные события в целевой топик.
type eventSink interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaReaderFactory struct {
	consumer sarama.Consumer
}

func (f saramaReaderFactory) ConsumePartition(topic string, partition int32, offset int64) (partitionReader, error) {
	return f.consumer.ConsumePartition(topic, partition, offset)
}

func (f saramaReaderFactory) Close() error {
	if f.consumer == nil {
		return nil
	}
	return f.consumer.Close()
}

// connectKafka подменяется в тестах.
var connectKafka = func(cfg replayConfig) (clusterClient, readerFactory, eventSink, error) {
	clientConfig := sarama.NewConfig()
	clientConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, clientConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	readers := saramaReaderFactory{consumer: consumer}

	// В dry-run продьюсер не нужен вовсе.
	if !cfg.execute {
		return client, readers, nil, nil
	}

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Compression = sarama.CompressionSnappy
	producerConfig.Producer.Idempotent = true
	producerConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.brokers, producerConfig)
	if err != nil {
		_ = readers.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return client, readers, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig() (replayConfig, error) {
	var (
		brokersRaw string
		cfg        replayConfig
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: SHOP_KAFKA_BROKERS)")
	flag.StringVar(&cfg.source, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	flag.StringVar(&cfg.target, "target-topic", kafka.TopicCatalogEvents, "target topic for replay")
	flag.IntVar(&cfg.limit, "limit", defaultScanLimit, "max number of messages to scan")
	flag.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	flag.DurationVar(&cfg.idle, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("SHOP_KAFKA_BROKERS")
	}

	cfg.brokers = splitBrokers(brokersRaw)
	switch {
	case len(cfg.brokers) == 0:
		return replayConfig{}, fmt.Errorf("kafka brokers are required (-brokers or SHOP_KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.source) == "":
		return replayConfig{}, fmt.Errorf("source-topic is required")
	case strings.TrimSpace(cfg.target) == "":
		return replayConfig{}, fmt.Errorf("target-topic is required")
	case cfg.limit <= 0:
		return replayConfig{}, fmt.Errorf("limit must be > 0")
	case cfg.idle <= 0:
		return replayConfig{}, fmt.Errorf("idle-timeout must be > 0")
	}

	return cfg, nil
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg replayConfig) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.source,
		"target_topic": cfg.target,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
	}).Info("starting dlq replay")

	client, readers, sink, err := connectKafka(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if sink != nil {
			_ = sink.Close()
		}
		if readers != nil {
			_ = readers.Close()
		}
		if client != nil {
			_ = client.Close()
		}
	}()

	return replayAll(ctx, cfg, client, readers, sink)
}

func replayAll(ctx context.Context, cfg replayConfig, client clusterClient, readers readerFactory, sink eventSink) error {
	if client == nil || readers == nil {
		return fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.execute && sink == nil {
		return fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := client.Partitions(cfg.source)
	if err != nil {
		return fmt.Errorf("get partitions for topic %s: %w", cfg.source, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", cfg.source).Warn("source topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var total tally
	for _, partition := range partitions {
		if total.scanned >= cfg.limit {
			break
		}

		part, err := drainPartition(ctx, cfg, client, readers, sink, partition, cfg.limit-total.scanned)
		if err != nil {
			return err
		}
		total.scanned += part.scanned
		total.queued += part.queued
		total.skipped += part.skipped
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.scanned,
		"replayed":  total.queued,
		"skipped":   total.skipped,
	}).Info("dlq replay finished")

	return nil
}

// drainPartition читает одну партицию от старейшего офсета и останавливается,
// дойдя до newest, исчерпав лимит или простояв idle без сообщений.
func drainPartition(ctx context.Context, cfg replayConfig, client clusterClient, readers readerFactory, sink eventSink, partition int32, limit int) (tally, error) {
	var part tally
	if limit <= 0 {
		return part, nil
	}

	oldest, err := client.GetOffset(cfg.source, partition, sarama.OffsetOldest)
	if err != nil {
		return part, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := client.GetOffset(cfg.source, partition, sarama.OffsetNewest)
	if err != nil {
		return part, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return part, nil
	}

	reader, err := readers.ConsumePartition(cfg.source, partition, oldest)
	if err != nil {
		return part, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = reader.Close() }()

	idle := time.NewTimer(cfg.idle)
	defer idle.Stop()

	for part.scanned < limit {
		select {
		case <-ctx.Done():
			return part, ctx.Err()
		case err := <-reader.Errors():
			if err != nil {
				return part, fmt.Errorf("partition %d consumer error: %w", partition, err)
			}
		case msg, ok := <-reader.Messages():
			if !ok || msg == nil {
				return part, nil
			}

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(cfg.idle)

			if msg.Offset >= newest {
				return part, nil
			}
			part.scanned++

			event, ok, err := decodeDLQ(msg, cfg.target)
			if err != nil {
				part.skipped++
				log.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip unsupported dlq message")
				continue
			}
			if !ok {
				part.skipped++
				continue
			}

			if cfg.execute {
				if err := publish(sink, event); err != nil {
					return part, fmt.Errorf("publish replay message: %w", err)
				}
			} else {
				log.WithFields(log.Fields{
					"partition":    msg.Partition,
					"offset":       msg.Offset,
					"target_topic": event.topic,
					"key":          event.key,
				}).Info("dlq replay candidate")
			}
			part.queued++

			if msg.Offset+1 >= newest {
				return part, nil
			}
		case <-idle.C:
			return part, nil
		}
	}

	return part, nil
}

func publish(sink eventSink, event candidate) error {
	if sink == nil {
		return fmt.Errorf("producer is nil")
	}

	_, _, err := sink.SendMessage(&sarama.ProducerMessage{
		Topic:     event.topic,
		Key:       sarama.StringEncoder(event.key),
		Value:     sarama.ByteEncoder(event.value),
		Timestamp: time.Now().UTC(),
	})
	return err
}

// decodeDLQ восстанавливает исходное событие каталога из DLQ-сообщения
// любого из двух источников: consumer каталога или outbox-воркер.
func decodeDLQ(msg *sarama.ConsumerMessage, fallbackTopic string) (candidate, bool, error) {
	var record consumerDLQRecord
	if err := json.Unmarshal(msg.Value, &record); err == nil && record.OriginalValue != "" {
		topic := strings.TrimSpace(record.OriginalTopic)
		if topic == "" {
			topic = fallbackTopic
		}
		return candidate{
			topic: topic,
			key:   record.OriginalKey,
			value: []byte(record.OriginalValue),
		}, true, nil
	}

	var envelope kafka.CatalogEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return candidate{}, false, nil
	}
	if len(envelope.Payload) == 0 {
		return candidate{}, false, nil
	}

	var record2 outboxDLQRecord
	if err := json.Unmarshal(envelope.Payload, &record2); err != nil {
		return candidate{}, false, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(record2.Payload) == 0 {
		return candidate{}, false, fmt.Errorf("outbox dlq payload does not contain original event payload")
	}

	restored := kafka.CatalogEnvelope{
		ID:            pick(record2.OutboxID, envelope.ID),
		AggregateType: pick(record2.AggregateType, envelope.AggregateType),
		AggregateID:   pick(record2.AggregateID, envelope.AggregateID),
		EventType:     pick(record2.EventType, envelope.EventType),
		Payload:       record2.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(restored)
	if err != nil {
		return candidate{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}

	key := restored.AggregateID
	if key == "" {
		key = restored.ID
	}

	return candidate{topic: fallbackTopic, key: key, value: encoded}, true, nil
}

func pick(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
