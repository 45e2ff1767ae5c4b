package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

var (
	outboxPublishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_outbox_publish_attempts_total",
		Help: "Total number of outbox publish attempts grouped by result.",
	}, []string{"result"})
	outboxPendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shop_outbox_pending_records",
		Help: "Current number of pending records in transactional outbox.",
	})
	outboxOldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shop_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest pending outbox record.",
	})
)

// WorkerOptions задаёт параметры воркера публикации.
type WorkerOptions struct {
	Logger         *log.Entry
	DLQPublisher   domain.OutboxPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

func (opts *WorkerOptions) normalize() {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) { opts.Logger = logger }
}

// WithDLQPublisher задаёт publisher для отправки в DLQ после исчерпания retry.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) { opts.DLQPublisher = publisher }
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) { opts.PollInterval = interval }
}

// WithBatchSize задаёт размер батча из outbox.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) { opts.BatchSize = batchSize }
}

// WithMaxAttempts задаёт число попыток публикации перед failed/DLQ.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) { opts.MaxAttempts = maxAttempts }
}

// WithRetryBaseDelay задаёт базовый delay для exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) { opts.RetryBaseDelay = delay }
}

// Worker переносит pending-события каталога из outbox-таблицы в брокер.
// Успешные записи маркируются sent, безнадёжные — failed с копией в DLQ,
// так что ни одно событие не теряется молча.
type Worker struct {
	repo           domain.OutboxRepository
	publisher      domain.OutboxPublisher
	dlqPublisher   domain.OutboxPublisher
	logger         *log.Entry
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// NewWorker создаёт воркер публикации outbox.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}
	opts.normalize()

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-worker")
	}

	return &Worker{
		repo:           repo,
		publisher:      publisher,
		dlqPublisher:   opts.DLQPublisher,
		logger:         logger,
		pollInterval:   opts.PollInterval,
		batchSize:      opts.BatchSize,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
	}
}

// Run опрашивает outbox до отмены контекста. Первый цикл выполняется сразу,
// не дожидаясь тикера.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce вытягивает один батч pending-записей и публикует его.
func (w *Worker) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	w.updateBacklogGauges(ctx)

	batch, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return
	}
	if len(batch) == 0 {
		return
	}

	for _, message := range batch {
		if ctx.Err() != nil {
			return
		}
		w.handleMessage(ctx, message)
	}

	w.updateBacklogGauges(ctx)
}

func (w *Worker) handleMessage(ctx context.Context, message domain.OutboxMessage) {
	if err := w.deliver(ctx, message); err != nil {
		w.logger.WithError(err).WithFields(log.Fields{
			"outbox_id":  message.ID,
			"event_type": message.EventType,
		}).Error("outbox publish failed after retries")
		outboxPublishAttempts.WithLabelValues("failed").Inc()

		if dlqErr := w.forwardToDLQ(message, err); dlqErr != nil {
			w.logger.WithError(dlqErr).WithField("outbox_id", message.ID).Warn("failed to publish to DLQ")
			outboxPublishAttempts.WithLabelValues("dlq_failed").Inc()
		}
		if markErr := w.repo.MarkFailed(ctx, message.ID); markErr != nil {
			w.logger.WithError(markErr).WithField("outbox_id", message.ID).Warn("failed to mark outbox as failed")
		}
		return
	}

	if err := w.repo.MarkSent(ctx, message.ID); err != nil {
		w.logger.WithError(err).WithField("outbox_id", message.ID).Warn("failed to mark outbox as sent")
	}
}

// deliver публикует сообщение, повторяя попытки с exponential backoff.
func (w *Worker) deliver(ctx context.Context, message domain.OutboxMessage) error {
	var lastErr error

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		err := w.publisher.Publish(message)
		if err == nil {
			outboxPublishAttempts.WithLabelValues("sent").Inc()
			return nil
		}
		lastErr = err
		outboxPublishAttempts.WithLabelValues("retry_error").Inc()

		if attempt >= w.maxAttempts {
			break
		}

		delay := w.backoffDelay(attempt)
		if delay <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("publish failed after %d attempts: %w", w.maxAttempts, lastErr)
}

func (w *Worker) updateBacklogGauges(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	outboxPendingRecords.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		outboxOldestPendingAge.Set(0)
		return
	}

	age := time.Since(stats.OldestPendingAt).Seconds()
	if age < 0 {
		age = 0
	}
	outboxOldestPendingAge.Set(age)
}

func (w *Worker) backoffDelay(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}

	const maxDuration = time.Duration(1<<63 - 1)
	delay := w.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > maxDuration/2 {
			return maxDuration
		}
		delay *= 2
	}
	return delay
}

// forwardToDLQ публикует копию события в DLQ-топик вместе с текстом ошибки.
// Формат payload понимает dlq-reprocess.
func (w *Worker) forwardToDLQ(message domain.OutboxMessage, publishErr error) error {
	if w.dlqPublisher == nil {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"outbox_id":        message.ID,
		"aggregate_type":   message.AggregateType,
		"aggregate_id":     message.AggregateID,
		"event_type":       message.EventType,
		"payload":          json.RawMessage(message.Payload),
		"publish_error":    publishErr.Error(),
		"dlq_published_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}

	copyMessage := domain.OutboxMessage{
		ID:            message.ID,
		AggregateType: message.AggregateType,
		AggregateID:   message.AggregateID,
		EventType:     message.EventType,
		Payload:       payload,
	}
	if err := w.dlqPublisher.Publish(copyMessage); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}

	return nil
}
