package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// cartStorageInMemory — in-memory реализация CartStorage для тестов
// и однопроцессных запусков без redis.
type cartStorageInMemory struct {
	mu   sync.RWMutex
	data []byte
}

// NewCartStorage возвращает in-memory хранилище состояния корзины.
func NewCartStorage() domain.CartStorage {
	return &cartStorageInMemory{}
}

// Load возвращает последний сохранённый снимок; nil, если его ещё не было.
func (s *cartStorageInMemory) Load(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.data == nil {
		return nil, nil
	}
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out, nil
}

// Save перезаписывает снимок целиком.
func (s *cartStorageInMemory) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make([]byte, len(data))
	copy(s.data, data)
	return nil
}

var _ domain.CartStorage = (*cartStorageInMemory)(nil)
