package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/storage/postgres"
)

const runTimeout = 30 * time.Second

func main() {
	direction := flag.String("direction", "up", "migration direction: up|down|status")
	steps := flag.Int("steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (fallback: SHOP_POSTGRES_DSN)")
	flag.Parse()

	target := strings.TrimSpace(*dsn)
	if target == "" {
		target = strings.TrimSpace(os.Getenv("SHOP_POSTGRES_DSN"))
	}
	if target == "" {
		fail("SHOP_POSTGRES_DSN (or -dsn) is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, target)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	action := strings.ToLower(strings.TrimSpace(*direction))
	switch action {
	case "up":
		if err := store.MigrateUp(ctx, *steps); err != nil {
			fail("migrate up failed: %v", err)
		}
	case "down":
		n := *steps
		if n <= 0 {
			n = 1
		}
		if err := store.MigrateDown(ctx, n); err != nil {
			fail("migrate down failed: %v", err)
		}
	case "status":
		// только отчёт ниже
	default:
		fail("unsupported direction: %s (use up|down|status)", *direction)
	}

	version, applied, err := store.MigrationStatus(ctx)
	if err != nil {
		fail("migration status failed: %v", err)
	}

	switch action {
	case "status":
		fmt.Printf("migration status: version=%d applied=%d\n", version, applied)
	default:
		fmt.Printf("migrate %s ok: version=%d applied=%d\n", action, version, applied)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
