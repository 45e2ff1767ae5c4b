package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected http addr: %s", cfg.HTTPAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Fatalf("unexpected metrics addr: %s", cfg.MetricsAddr)
	}
	if cfg.UploadDir != "uploads" {
		t.Fatalf("unexpected upload dir: %s", cfg.UploadDir)
	}
	if cfg.PostgresDSN != "" || cfg.KafkaBrokers != "" {
		t.Fatalf("postgres and kafka must be opt-in, got %+v", cfg)
	}
}

func TestNewDependenciesMemoryMode(t *testing.T) {
	deps, err := NewDependencies(context.Background(), Config{}, log.WithField("component", "test"))
	if err != nil {
		t.Fatalf("NewDependencies: %v", err)
	}
	defer deps.Close()

	if deps.Store != nil {
		t.Fatal("expected nil postgres store in memory mode")
	}
	if deps.Categories == nil || deps.Products == nil || deps.Outbox == nil {
		t.Fatal("expected all repositories initialized")
	}

	// Репозитории должны быть связаны: категория видна после создания.
	cat, err := deps.Categories.Create(context.Background(), "Books")
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	ok, err := deps.Categories.Exists(context.Background(), cat.ID)
	if err != nil || !ok {
		t.Fatalf("category must exist after create, ok=%v err=%v", ok, err)
	}
}

func TestInitKafkaProducerEmptyBrokers(t *testing.T) {
	producer, err := initKafkaProducer("", log.WithField("component", "test"))
	if err != nil {
		t.Fatalf("empty brokers must not fail: %v", err)
	}
	if producer != nil {
		t.Fatal("expected nil producer for empty brokers")
	}
	// closeKafka на nil — no-op.
	closeKafka(nil, log.WithField("component", "test"))
}
