package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics содержит метрики сверки корзины с каталогом.
type CartMetrics struct {
	renders        prometheus.Counter
	staleRenders   prometheus.Counter
	droppedEntries prometheus.Counter
}

// NewCartMetrics создаёт метрики корзины в default registry.
func NewCartMetrics() *CartMetrics {
	return newCartMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCartMetricsWithRegisterer(registerer prometheus.Registerer) *CartMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CartMetrics{
		renders: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_cart_renders_total",
			Help: "Total number of cart renders committed",
		}),
		staleRenders: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_cart_stale_renders_total",
			Help: "Total number of cart renders discarded as stale",
		}),
		droppedEntries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_cart_dropped_entries_total",
			Help: "Total number of cart entries dropped during reconciliation",
		}),
	}
}

// RecordRender увеличивает счётчик зафиксированных render.
func (m *CartMetrics) RecordRender() {
	m.renders.Inc()
}

// RecordStaleRender увеличивает счётчик отброшенных устаревших render.
func (m *CartMetrics) RecordStaleRender() {
	m.staleRenders.Inc()
}

// RecordDroppedEntries увеличивает счётчик позиций, удалённых при сверке.
func (m *CartMetrics) RecordDroppedEntries(count int) {
	if count <= 0 {
		return
	}
	m.droppedEntries.Add(float64(count))
}

// PipelineMetrics содержит метрики конвейера изображений.
type PipelineMetrics struct {
	processed prometheus.Counter
	rejected  prometheus.Counter
	duration  prometheus.Histogram
}

// NewPipelineMetrics создаёт метрики конвейера в default registry.
func NewPipelineMetrics() *PipelineMetrics {
	return newPipelineMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newPipelineMetricsWithRegisterer(registerer prometheus.Registerer) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PipelineMetrics{
		processed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_image_uploads_processed_total",
			Help: "Total number of image uploads fully processed",
		}),
		rejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_image_uploads_rejected_total",
			Help: "Total number of image uploads rejected at validation",
		}),
		duration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_image_pipeline_duration_seconds",
			Help:    "Duration of image processing per upload in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordProcessed фиксирует успешно обработанную загрузку и её длительность.
func (m *PipelineMetrics) RecordProcessed(duration time.Duration) {
	m.processed.Inc()
	m.duration.Observe(duration.Seconds())
}

// RecordRejected увеличивает счётчик отклонённых загрузок.
func (m *PipelineMetrics) RecordRejected() {
	m.rejected.Inc()
}

// HTTPMetrics содержит метрики REST-слоя.
type HTTPMetrics struct {
	requestDuration *prometheus.HistogramVec
}

// NewHTTPMetrics создаёт метрики REST-слоя в default registry.
func NewHTTPMetrics() *HTTPMetrics {
	return newHTTPMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newHTTPMetricsWithRegisterer(registerer prometheus.Registerer) *HTTPMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &HTTPMetrics{
		requestDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "shop_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route", "status"}),
	}
}

// RecordRequest записывает длительность обработанного HTTP-запроса.
func (m *HTTPMetrics) RecordRequest(method, route string, status int, duration time.Duration) {
	m.requestDuration.WithLabelValues(method, route, fmt.Sprintf("%d", status)).Observe(duration.Seconds())
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}
