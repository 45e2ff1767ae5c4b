package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

// RouterConfig задаёт зависимости REST-роутера.
type RouterConfig struct {
	Handler *Handler
	Logger  *log.Entry
	Metrics *metrics.HTTPMetrics
	// UploadDir — корень каталога артефактов изображений; пустая строка
	// отключает отдачу /uploads/*.
	UploadDir string
}

// NewRouter собирает REST-роутер каталога.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "http-router")
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(logger))
	if cfg.Metrics != nil {
		r.Use(metricsMiddleware(cfg.Metrics))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/categories", func(r chi.Router) {
			r.Get("/", cfg.Handler.listCategories)
			r.Post("/", cfg.Handler.createCategory)
			r.Put("/{catid}", cfg.Handler.renameCategory)
			r.Delete("/{catid}", cfg.Handler.deleteCategory)
		})
		r.Route("/products", func(r chi.Router) {
			r.Get("/", cfg.Handler.listProducts)
			r.Post("/", cfg.Handler.createProduct)
			r.Get("/{pid}", cfg.Handler.getProduct)
			r.Put("/{pid}", cfg.Handler.updateProduct)
			r.Delete("/{pid}", cfg.Handler.deleteProduct)
		})
	})

	if cfg.UploadDir != "" {
		fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir)))
		r.Get("/uploads/*", fs.ServeHTTP)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})

	return r
}
