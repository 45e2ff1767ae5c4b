package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// productRepositoryInMemory — простая in-memory реализация ProductRepository.
type productRepositoryInMemory struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]domain.Product

	categories *categoryRepositoryInMemory
}

// NewProductRepository возвращает in-memory репозиторий товаров
// для локальной разработки и тестов.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{
		nextID: 1,
		items:  make(map[int64]domain.Product),
	}
}

// List возвращает товары, упорядоченные по ID; categoryID > 0 фильтрует по категории.
func (r *productRepositoryInMemory) List(_ context.Context, categoryID int64) ([]domain.Product, error) {
	r.mu.RLock()
	result := make([]domain.Product, 0, len(r.items))
	for _, product := range r.items {
		if categoryID > 0 && product.CategoryID != categoryID {
			continue
		}
		result = append(result, product)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	for i := range result {
		result[i] = r.withCategoryName(result[i])
	}
	return result, nil
}

// Get возвращает товар или ErrProductNotFound.
func (r *productRepositoryInMemory) Get(_ context.Context, id int64) (domain.Product, error) {
	r.mu.RLock()
	product, ok := r.items[id]
	r.mu.RUnlock()

	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return r.withCategoryName(product), nil
}

// Create сохраняет новый товар и присваивает ему ID.
func (r *productRepositoryInMemory) Create(_ context.Context, input domain.ProductInput) (domain.Product, error) {
	r.mu.Lock()
	now := time.Now().UTC()
	product := domain.Product{
		ID:          r.nextID,
		CategoryID:  input.CategoryID,
		Name:        input.Name,
		PriceCents:  input.PriceCents,
		Description: input.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.items[product.ID] = product
	r.nextID++
	r.mu.Unlock()

	return r.withCategoryName(product), nil
}

// Update применяет изменения к товару, не трогая пути изображений.
func (r *productRepositoryInMemory) Update(_ context.Context, id int64, input domain.ProductInput) (domain.Product, error) {
	r.mu.Lock()
	product, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return domain.Product{}, domain.ErrProductNotFound
	}

	product.CategoryID = input.CategoryID
	product.Name = input.Name
	product.PriceCents = input.PriceCents
	product.Description = input.Description
	product.UpdatedAt = time.Now().UTC()
	r.items[id] = product
	r.mu.Unlock()

	return r.withCategoryName(product), nil
}

// SetImagePaths записывает пути артефактов изображений.
func (r *productRepositoryInMemory) SetImagePaths(_ context.Context, id int64, imagePath, thumbPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return domain.ErrProductNotFound
	}

	product.ImagePath = imagePath
	product.ThumbPath = thumbPath
	product.UpdatedAt = time.Now().UTC()
	r.items[id] = product
	return nil
}

// Delete удаляет товар.
func (r *productRepositoryInMemory) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(r.items, id)
	return nil
}

// hasCategory сообщает, есть ли товары в категории (для FK-проверки).
func (r *productRepositoryInMemory) hasCategory(categoryID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, product := range r.items {
		if product.CategoryID == categoryID {
			return true
		}
	}
	return false
}

// withCategoryName денормализует название категории; вызывается без r.mu,
// чтобы не пересекать блокировки двух репозиториев.
func (r *productRepositoryInMemory) withCategoryName(product domain.Product) domain.Product {
	if r.categories != nil {
		product.CategoryName = r.categories.nameOf(product.CategoryID)
	}
	return product
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
