package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
	defaultRetention        = 24 * time.Hour
)

var (
	outboxCleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_outbox_cleanup_runs_total",
		Help: "Total number of outbox cleanup runs grouped by result.",
	}, []string{"result"})
	outboxCleanupDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_outbox_cleanup_deleted_total",
		Help: "Total number of deleted published outbox records.",
	})
	outboxCleanupLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shop_outbox_cleanup_last_deleted",
		Help: "Number of deleted records during the last cleanup run.",
	})
)

// CleanupOptions задаёт параметры воркера очистки опубликованных событий.
type CleanupOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
	Retention time.Duration
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupOptions)

// WithCleanupLogger задаёт logger для воркера.
func WithCleanupLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Logger = logger
	}
}

// WithCleanupInterval задаёт интервал между cleanup-циклами.
func WithCleanupInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Interval = interval
	}
}

// WithCleanupBatchSize задаёт размер batch для одного удаления.
func WithCleanupBatchSize(batchSize int) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.BatchSize = batchSize
	}
}

// WithRetention задаёт срок хранения опубликованных записей.
func WithRetention(retention time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Retention = retention
	}
}

// CleanupWorker периодически удаляет опубликованные outbox-записи,
// пережившие срок хранения. Pending и failed записи не трогаются.
type CleanupWorker struct {
	repo      domain.OutboxRepository
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	retention time.Duration
}

// NewCleanupWorker создаёт воркер очистки опубликованных событий.
func NewCleanupWorker(repo domain.OutboxRepository, options ...CleanupOption) *CleanupWorker {
	opts := CleanupOptions{
		Interval:  defaultCleanupInterval,
		BatchSize: defaultCleanupBatchSize,
		Retention: defaultRetention,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-cleanup-worker")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}

	return &CleanupWorker{
		repo:      repo,
		logger:    logger,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		retention: opts.Retention,
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("outbox cleanup worker is disabled: repo is nil")
		return
	}

	w.cleanup(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *CleanupWorker) cleanup(ctx context.Context) {
	deleted, err := w.DeleteExpired(ctx, time.Now().UTC().Add(-w.retention))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		outboxCleanupRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("outbox cleanup run failed")
		return
	}

	outboxCleanupRunsTotal.WithLabelValues("ok").Inc()
	outboxCleanupLastDeleted.Set(float64(deleted))
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("outbox cleanup completed")
	}
}

// DeleteExpired удаляет все отправленные записи старше before порциями batchSize.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	totalDeleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return totalDeleted, err
		}

		deleted, err := w.repo.DeleteSentBefore(ctx, before, w.batchSize)
		if err != nil {
			return totalDeleted, err
		}

		totalDeleted += deleted
		if deleted > 0 {
			outboxCleanupDeletedTotal.Add(float64(deleted))
		}

		if deleted < w.batchSize {
			break
		}
	}

	return totalDeleted, nil
}
