package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/cart"
	"github.com/vladislavdragonenkov/shop/internal/catalog"
	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
	"github.com/vladislavdragonenkov/shop/internal/storage/redis"
)

const (
	defaultAPIBase     = "http://localhost:8080"
	defaultCartID      = "default"
	defaultOpTimeout   = 15 * time.Second
	watchConsumerGroup = "shop-cartctl"
)

type config struct {
	apiBase  string
	redisURL string
	cartID   string
	brokers  string
	timeout  time.Duration
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.WarnLevel)

	cfg, args := readConfig()
	if len(args) == 0 {
		fail("usage: cartctl [flags] show|add|set|remove|clear|watch — see -h for flags")
	}

	if err := run(cfg, args); err != nil {
		fail("cartctl: %v", err)
	}
}

func readConfig() (config, []string) {
	var cfg config

	flag.StringVar(&cfg.apiBase, "api", defaultAPIBase, "base URL of the catalog API")
	flag.StringVar(&cfg.redisURL, "redis", "", "redis URL for cart persistence (fallback: SHOP_REDIS_ADDR; empty = in-memory)")
	flag.StringVar(&cfg.cartID, "cart-id", defaultCartID, "cart identifier in redis")
	flag.StringVar(&cfg.brokers, "brokers", "", "Kafka brokers for watch mode (fallback: SHOP_KAFKA_BROKERS)")
	flag.DurationVar(&cfg.timeout, "timeout", defaultOpTimeout, "timeout for a single operation")
	flag.Parse()

	if strings.TrimSpace(cfg.redisURL) == "" {
		cfg.redisURL = strings.TrimSpace(os.Getenv("SHOP_REDIS_ADDR"))
	}
	if strings.TrimSpace(cfg.brokers) == "" {
		cfg.brokers = strings.TrimSpace(os.Getenv("SHOP_KAFKA_BROKERS"))
	}

	return cfg, flag.Args()
}

func run(cfg config, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	storage, cleanup, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	logger := log.WithField("component", "cartctl")
	store := cart.NewStore(storage, logger)
	store.Load(ctx)

	client := catalog.NewClient(cfg.apiBase, nil, logger)
	reconciler := cart.NewReconciler(store, client, logger)

	command := args[0]
	switch command {
	case "show":
		view, err := reconciler.Render(ctx)
		if err != nil {
			return err
		}
		printView(view)
		return nil
	case "add":
		id, qty, err := parseItemArgs(args[1:], 1)
		if err != nil {
			return err
		}
		view, err := reconciler.AddItem(ctx, id, qty)
		if err != nil {
			return err
		}
		printView(view)
		return nil
	case "set":
		if len(args) < 3 {
			return fmt.Errorf("set requires <product-id> <quantity>")
		}
		id, qty, err := parseItemArgs(args[1:], 0)
		if err != nil {
			return err
		}
		view, err := reconciler.SetQuantity(ctx, id, qty)
		if err != nil {
			return err
		}
		printView(view)
		return nil
	case "remove":
		id, _, err := parseItemArgs(args[1:], 0)
		if err != nil {
			return err
		}
		view, err := reconciler.RemoveItem(ctx, id)
		if err != nil {
			return err
		}
		printView(view)
		return nil
	case "clear":
		store.Clear(ctx)
		view, err := reconciler.Render(ctx)
		if err != nil {
			return err
		}
		printView(view)
		return nil
	case "watch":
		return watch(cfg, reconciler)
	default:
		return fmt.Errorf("unknown command %q (use show|add|set|remove|clear|watch)", command)
	}
}

func openStorage(ctx context.Context, cfg config) (domain.CartStorage, func(), error) {
	if cfg.redisURL == "" {
		return memory.NewCartStorage(), func() {}, nil
	}

	client, err := redis.Connect(ctx, cfg.redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	cleanup := func() { _ = client.Close() }
	return redis.NewCartStorage(client, cfg.cartID), cleanup, nil
}

func parseItemArgs(args []string, defaultQty int) (int64, int, error) {
	if len(args) == 0 {
		return 0, 0, fmt.Errorf("product id is required")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, 0, fmt.Errorf("invalid product id %q", args[0])
	}
	qty := defaultQty
	if len(args) > 1 {
		qty, err = strconv.Atoi(args[1])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid quantity %q", args[1])
		}
	}
	return id, qty, nil
}

func printView(view cart.View) {
	if len(view.Lines) == 0 {
		fmt.Println("cart is empty")
		return
	}
	for _, line := range view.Lines {
		lineTotal := line.Product.PriceCents * int64(line.Entry.Quantity)
		fmt.Printf("%6d  %-30s %4d x $%s = $%s\n",
			line.Product.ID,
			line.Product.Name,
			line.Entry.Quantity,
			domain.FormatPrice(line.Product.PriceCents),
			domain.FormatPrice(lineTotal),
		)
	}
	fmt.Printf("total: %s (%d items)\n", view.Total, view.TotalQuantity)
}

// watch подписывается на события каталога и перерисовывает корзину при
// изменении товаров: кэш сверки сбрасывается, render выполняется заново.
func watch(cfg config, reconciler *cart.Reconciler) error {
	if cfg.brokers == "" {
		return fmt.Errorf("watch requires kafka brokers (-brokers or SHOP_KAFKA_BROKERS)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if view, err := reconciler.Render(ctx); err == nil {
		printView(view)
	}

	handler := func(ctx context.Context, message *sarama.ConsumerMessage) error {
		envelope, err := kafka.ParseCatalogEnvelope(message)
		if err != nil {
			return err
		}

		reconciler.InvalidateCache()
		view, err := reconciler.Render(ctx)
		if err != nil {
			log.WithError(err).Warn("render after catalog event failed")
			return nil
		}

		fmt.Printf("-- %s --\n", describeEvent(envelope))
		printView(view)
		return nil
	}

	consumer, err := kafka.NewConsumer(parseBrokers(cfg.brokers), watchConsumerGroup, []string{kafka.TopicCatalogEvents}, handler)
	if err != nil {
		return err
	}
	if err := consumer.Start(ctx); err != nil {
		_ = consumer.Stop()
		return err
	}

	<-ctx.Done()
	return consumer.Stop()
}

// describeEvent строит заголовок события из типизированного payload.
// Нераспознанный payload сворачивается до одного типа события.
func describeEvent(envelope *kafka.CatalogEnvelope) string {
	switch envelope.AggregateType {
	case kafka.AggregateProduct:
		if event, err := kafka.ParseProductEvent(envelope.Payload); err == nil {
			return fmt.Sprintf("%s: product %d %q", envelope.EventType, event.ProductID, event.Name)
		}
	case kafka.AggregateCategory:
		if event, err := kafka.ParseCategoryEvent(envelope.Payload); err == nil {
			return fmt.Sprintf("%s: category %d %q", envelope.EventType, event.CategoryID, event.Name)
		}
	}
	return envelope.EventType
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		broker := strings.TrimSpace(chunk)
		if broker == "" {
			continue
		}
		brokers = append(brokers, broker)
	}
	return brokers
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
