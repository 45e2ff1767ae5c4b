package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status — состояние компонента или сервиса в целом.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check — результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — тело ответа health endpoint.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker выполняет проверку одного компонента.
type Checker interface {
	Check() Check
}

// Handler агрегирует зарегистрированные проверки и отдаёт их по HTTP.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	startTime time.Time
}

func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		version:   version,
		startTime: time.Now(),
	}
}

// RegisterChecker добавляет проверку под именем name. Повторная регистрация
// замещает предыдущую.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// snapshot копирует реестр под RLock, чтобы проверки шли без блокировки.
func (h *Handler) snapshot() map[string]Checker {
	h.mu.RLock()
	defer h.mu.RUnlock()

	checkers := make(map[string]Checker, len(h.checkers))
	for name, checker := range h.checkers {
		checkers[name] = checker
	}
	return checkers
}

func (h *Handler) runChecks() (map[string]Check, Status) {
	checks := make(map[string]Check)
	overall := StatusHealthy

	for name, checker := range h.snapshot() {
		result := checker.Check()
		checks[name] = result

		switch {
		case result.Status == StatusUnhealthy:
			overall = StatusUnhealthy
		case result.Status == StatusDegraded && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}

	return checks, overall
}

// ServeHTTP отдаёт полный отчёт. Unhealthy даёт 503, degraded остаётся 200.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	checks, overall := h.runChecks()

	code := http.StatusOK
	if overall == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{
		Status:        overall,
		Timestamp:     time.Now(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
}

// LivenessHandler отвечает 200, пока процесс жив.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler отвечает 503, если хоть одна проверка unhealthy.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	if _, overall := h.runChecks(); overall == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// SimpleChecker заворачивает функцию в Checker и замеряет длительность.
type SimpleChecker struct {
	name    string
	checkFn func() error
}

func NewSimpleChecker(name string, checkFn func() error) *SimpleChecker {
	return &SimpleChecker{name: name, checkFn: checkFn}
}

// NewPingChecker оборачивает ctx-based ping (Postgres, Redis) в проверку
// с собственным таймаутом, чтобы зависший бэкенд не блокировал health endpoint.
func NewPingChecker(name string, timeout time.Duration, ping func(context.Context) error) *SimpleChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return NewSimpleChecker(name, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return ping(ctx)
	})
}

func (c *SimpleChecker) Check() Check {
	started := time.Now()
	err := c.checkFn()

	result := Check{
		Name:       c.name,
		Status:     StatusHealthy,
		DurationMs: time.Since(started).Milliseconds(),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	return result
}
