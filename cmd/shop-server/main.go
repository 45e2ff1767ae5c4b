package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/app"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
}

// readConfig формирует конфигурацию приложения из переменных окружения.
func readConfig() app.Config {
	cfg := app.DefaultConfig()
	if v := os.Getenv("SHOP_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("SHOP_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("SHOP_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("SHOP_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = v
	}
	if v := os.Getenv("SHOP_UPLOAD_DIR"); v != "" {
		cfg.UploadDir = v
	}
	return cfg
}

func main() {
	setupLogger()
	cfg := readConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"metrics_addr": cfg.MetricsAddr,
		"upload_dir":   cfg.UploadDir,
	}).Info("запускаем сервер каталога")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("сервер каталога остановлен")
}
