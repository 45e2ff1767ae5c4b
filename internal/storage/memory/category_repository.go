package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// categoryRepositoryInMemory — простая in-memory реализация CategoryRepository.
type categoryRepositoryInMemory struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]domain.Category

	// products нужен для проверки ссылочной целостности при удалении.
	products *productRepositoryInMemory
}

// NewCategoryRepository возвращает in-memory репозиторий категорий.
// Репозиторий товаров передаётся для эмуляции FK RESTRICT.
func NewCategoryRepository(products domain.ProductRepository) domain.CategoryRepository {
	repo := &categoryRepositoryInMemory{
		nextID: 1,
		items:  make(map[int64]domain.Category),
	}
	if p, ok := products.(*productRepositoryInMemory); ok {
		repo.products = p
		p.categories = repo
	}
	return repo
}

// List возвращает категории, упорядоченные по ID.
func (r *categoryRepositoryInMemory) List(_ context.Context) ([]domain.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Category, 0, len(r.items))
	for _, category := range r.items {
		result = append(result, category)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Create сохраняет категорию с уникальным именем.
func (r *categoryRepositoryInMemory) Create(_ context.Context, name string) (domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nameTakenLocked(name, 0) {
		return domain.Category{}, domain.ErrCategoryNameTaken
	}

	category := domain.Category{ID: r.nextID, Name: name}
	r.items[category.ID] = category
	r.nextID++
	return category, nil
}

// Rename меняет название категории, сохраняя уникальность имён.
func (r *categoryRepositoryInMemory) Rename(_ context.Context, id int64, name string) (domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	category, ok := r.items[id]
	if !ok {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	if r.nameTakenLocked(name, id) {
		return domain.Category{}, domain.ErrCategoryNameTaken
	}

	category.Name = name
	r.items[id] = category
	return category, nil
}

// Delete удаляет категорию, если на неё не ссылаются товары.
func (r *categoryRepositoryInMemory) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrCategoryNotFound
	}
	if r.products != nil && r.products.hasCategory(id) {
		return domain.ErrCategoryInUse
	}

	delete(r.items, id)
	return nil
}

// Exists сообщает, существует ли категория.
func (r *categoryRepositoryInMemory) Exists(_ context.Context, id int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.items[id]
	return ok, nil
}

func (r *categoryRepositoryInMemory) nameTakenLocked(name string, exceptID int64) bool {
	for _, category := range r.items {
		if category.Name == name && category.ID != exceptID {
			return true
		}
	}
	return false
}

// nameOf возвращает название категории для денормализации в товарах.
func (r *categoryRepositoryInMemory) nameOf(id int64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.items[id].Name
}

var _ domain.CategoryRepository = (*categoryRepositoryInMemory)(nil)
