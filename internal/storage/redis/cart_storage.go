package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// DefaultNamespace — фиксированный префикс ключа состояния корзины.
const DefaultNamespace = "shop:cart:v1"

// Connect создаёт redis-клиент из URL или host:port.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") {
		opt, parseErr := redis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// cartStorage хранит сериализованную корзину под одним namespaced-ключом.
type cartStorage struct {
	client *redis.Client
	key    string
}

// NewCartStorage возвращает redis-реализацию CartStorage.
// cartID различает корзины разных клиентов внутри общего namespace.
func NewCartStorage(client *redis.Client, cartID string) domain.CartStorage {
	key := DefaultNamespace
	if cartID != "" {
		key = DefaultNamespace + ":" + cartID
	}
	return &cartStorage{client: client, key: key}
}

// Load возвращает сохранённый снимок; nil без ошибки, если ключа нет.
func (s *cartStorage) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load cart state: %w", err)
	}
	return data, nil
}

// Save перезаписывает снимок целиком, без TTL: корзина живёт до явной очистки.
func (s *cartStorage) Save(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("persist cart state: %w", err)
	}
	return nil
}

var _ domain.CartStorage = (*cartStorage)(nil)
