package cart

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// MaxQuantity ограничивает количество единиц одного товара в корзине.
const MaxQuantity = 999

// Entry — одна позиция корзины: товар и желаемое количество.
type Entry struct {
	ProductID int64
	Quantity  int
}

// Store хранит отображение productID -> quantity и переживает перезапуски
// через CartStorage. Store — единственный писатель своего состояния; каждая
// мутация сохраняется до возврата управления вызывающему.
type Store struct {
	mu      sync.RWMutex
	items   map[int64]int
	storage domain.CartStorage
	logger  *log.Entry
}

// NewStore создаёт корзину поверх переданного хранилища.
func NewStore(storage domain.CartStorage, logger *log.Entry) *Store {
	if logger == nil {
		logger = log.WithField("component", "cart-store")
	}
	return &Store{
		items:   make(map[int64]int),
		storage: storage,
		logger:  logger,
	}
}

// Load читает сохранённое состояние. Отсутствующие, повреждённые или
// не-объектные данные дают пустую корзину: ошибка наружу не поднимается,
// состояние сбрасывается.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[int64]int)

	raw, err := s.storage.Load(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("failed to load cart state, starting empty")
		return
	}
	if len(raw) == 0 {
		return
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &parsed); err != nil {
		s.logger.Warn("cart state is corrupt, resetting to empty")
		return
	}

	for rawID, rawQty := range parsed {
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		// не-числовое значение выбрасывает только свою позицию,
		// остальная корзина переживает загрузку
		var num json.Number
		if err := json.Unmarshal(rawQty, &num); err != nil {
			continue
		}
		qty := normalizeQuantity(num.String())
		if qty <= 0 {
			continue
		}
		s.items[id] = qty
	}
}

// SetQuantity выставляет количество товара. Количество <= 0 удаляет позицию,
// иначе значение прижимается к [1, MaxQuantity]. Некорректный productID — no-op.
func (s *Store) SetQuantity(ctx context.Context, productID int64, quantity int) {
	if productID <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity <= 0 {
		delete(s.items, productID)
	} else {
		s.items[productID] = clampQuantity(quantity)
	}
	s.persistLocked(ctx)
}

// AddItem увеличивает количество товара на delta с насыщением на MaxQuantity.
// Некорректный productID или delta <= 0 — no-op.
func (s *Store) AddItem(ctx context.Context, productID int64, delta int) {
	if productID <= 0 || delta <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[productID] = clampQuantity(s.items[productID] + clampQuantity(delta))
	s.persistLocked(ctx)
}

// RemoveItem удаляет позицию; эквивалентно SetQuantity(productID, 0).
func (s *Store) RemoveItem(ctx context.Context, productID int64) {
	s.SetQuantity(ctx, productID, 0)
}

// Clear опустошает корзину и сохраняет пустое состояние.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[int64]int)
	s.persistLocked(ctx)
}

// Entries возвращает позиции, упорядоченные по productID по возрастанию.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.items))
	for id, qty := range s.items {
		entries = append(entries, Entry{ProductID: id, Quantity: qty})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ProductID < entries[j].ProductID })
	return entries
}

// Quantity возвращает количество товара; 0 для отсутствующей позиции.
func (s *Store) Quantity(productID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[productID]
}

// TotalQuantity возвращает суммарное количество единиц во всех позициях.
func (s *Store) TotalQuantity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, qty := range s.items {
		total += qty
	}
	return total
}

// RemoveMissing удаляет перечисленные позиции одним сохранением.
// Используется reconciler-ом для самоизлечения после исчезновения товаров.
func (s *Store) RemoveMissing(ctx context.Context, productIDs []int64) {
	if len(productIDs) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, id := range productIDs {
		if _, ok := s.items[id]; ok {
			delete(s.items, id)
			changed = true
		}
	}
	if changed {
		s.persistLocked(ctx)
	}
}

// persistLocked сериализует и сохраняет всё отображение целиком.
// Вызывается только под s.mu.
func (s *Store) persistLocked(ctx context.Context) {
	payload := make(map[string]int, len(s.items))
	for id, qty := range s.items {
		payload[strconv.FormatInt(id, 10)] = qty
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).Warn("failed to marshal cart state")
		return
	}
	if err := s.storage.Save(ctx, data); err != nil {
		s.logger.WithError(err).Warn("failed to persist cart state")
	}
}

func clampQuantity(qty int) int {
	if qty > MaxQuantity {
		return MaxQuantity
	}
	return qty
}

// normalizeQuantity разбирает количество из сырого значения по правилам
// корзины: не целое или <= 0 -> 0, больше лимита -> лимит.
func normalizeQuantity(raw string) int {
	qty, err := strconv.Atoi(raw)
	if err != nil || qty <= 0 {
		return 0
	}
	return clampQuantity(qty)
}
