package catalog

import (
	"context"
	"encoding/json"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/images"
	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
)

// ImageProcessor — узкий контракт конвейера изображений, нужный сервису.
type ImageProcessor interface {
	// Validate отклоняет неподдерживаемый формат или превышение размера
	// до любых изменений на диске.
	Validate(data []byte, mimeType string) (string, error)
	Process(productID int64, data []byte, mimeType string) (images.Artifacts, error)
	Remove(productID int64) error
}

// Service реализует операции каталога поверх репозиториев, конвейера
// изображений и transactional outbox. Репозитории отвечают за конфликты
// хранилища (дубликаты имён, FK), сервис — за валидацию входа и события.
type Service struct {
	categories domain.CategoryRepository
	products   domain.ProductRepository
	pipeline   ImageProcessor
	outbox     domain.OutboxRepository
	logger     *log.Entry
}

// NewService создаёт сервис каталога. outbox может быть nil — тогда
// события не публикуются.
func NewService(
	categories domain.CategoryRepository,
	products domain.ProductRepository,
	pipeline ImageProcessor,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog-service")
	}
	return &Service{
		categories: categories,
		products:   products,
		pipeline:   pipeline,
		outbox:     outbox,
		logger:     logger,
	}
}

// ListCategories возвращает все категории.
func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.categories.List(ctx)
}

// CreateCategory создаёт категорию с уникальным названием.
func (s *Service) CreateCategory(ctx context.Context, name string) (domain.Category, error) {
	normalized, err := domain.ValidateCategoryName(name)
	if err != nil {
		return domain.Category{}, err
	}

	category, err := s.categories.Create(ctx, normalized)
	if err != nil {
		return domain.Category{}, err
	}

	s.emitCategoryEvent(ctx, kafka.EventTypeCategoryCreated, category)
	return category, nil
}

// RenameCategory меняет название категории.
func (s *Service) RenameCategory(ctx context.Context, id int64, name string) (domain.Category, error) {
	if id <= 0 {
		return domain.Category{}, domain.ErrCategoryIDInvalid
	}
	normalized, err := domain.ValidateCategoryName(name)
	if err != nil {
		return domain.Category{}, err
	}

	category, err := s.categories.Rename(ctx, id, normalized)
	if err != nil {
		return domain.Category{}, err
	}

	s.emitCategoryEvent(ctx, kafka.EventTypeCategoryUpdated, category)
	return category, nil
}

// DeleteCategory удаляет категорию без товаров.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	if id <= 0 {
		return domain.ErrCategoryIDInvalid
	}

	if err := s.categories.Delete(ctx, id); err != nil {
		return err
	}

	s.emitCategoryEvent(ctx, kafka.EventTypeCategoryDeleted, domain.Category{ID: id})
	return nil
}

// ListProducts возвращает товары, опционально отфильтрованные по категории.
// Неизвестная категория в фильтре — ErrCategoryNotFound.
func (s *Service) ListProducts(ctx context.Context, categoryID int64) ([]domain.Product, error) {
	if categoryID > 0 {
		exists, err := s.categories.Exists(ctx, categoryID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, domain.ErrCategoryNotFound
		}
	}
	return s.products.List(ctx, categoryID)
}

// GetProduct возвращает товар по идентификатору.
func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	if id <= 0 {
		return domain.Product{}, domain.ErrProductIDInvalid
	}
	return s.products.Get(ctx, id)
}

// CreateProduct валидирует вход и создаёт товар в существующей категории.
func (s *Service) CreateProduct(ctx context.Context, categoryID int64, name, price, description string) (domain.Product, error) {
	input, err := domain.ValidateProductInput(categoryID, name, price, description)
	if err != nil {
		return domain.Product{}, err
	}

	exists, err := s.categories.Exists(ctx, input.CategoryID)
	if err != nil {
		return domain.Product{}, err
	}
	if !exists {
		return domain.Product{}, domain.ErrCategoryNotFound
	}

	product, err := s.products.Create(ctx, input)
	if err != nil {
		return domain.Product{}, err
	}

	s.emitProductEvent(ctx, kafka.EventTypeProductCreated, product)
	return product, nil
}

// UpdateProduct валидирует вход и применяет изменения к товару.
func (s *Service) UpdateProduct(ctx context.Context, id int64, categoryID int64, name, price, description string) (domain.Product, error) {
	if id <= 0 {
		return domain.Product{}, domain.ErrProductIDInvalid
	}
	input, err := domain.ValidateProductInput(categoryID, name, price, description)
	if err != nil {
		return domain.Product{}, err
	}

	exists, err := s.categories.Exists(ctx, input.CategoryID)
	if err != nil {
		return domain.Product{}, err
	}
	if !exists {
		return domain.Product{}, domain.ErrCategoryNotFound
	}

	product, err := s.products.Update(ctx, id, input)
	if err != nil {
		return domain.Product{}, err
	}

	s.emitProductEvent(ctx, kafka.EventTypeProductUpdated, product)
	return product, nil
}

// DeleteProduct удаляет товар вместе с артефактами изображений.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if id <= 0 {
		return domain.ErrProductIDInvalid
	}

	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}

	// Запись товара уже удалена: осиротевшие файлы не должны ронять запрос.
	if s.pipeline != nil {
		if err := s.pipeline.Remove(id); err != nil {
			s.logger.WithError(err).WithField("product_id", id).Warn("failed to remove image artifacts")
		}
	}

	s.emitProductEvent(ctx, kafka.EventTypeProductDeleted, domain.Product{ID: id})
	return nil
}

// ValidateImage проверяет загрузку без обработки. Нужен транспорту, чтобы
// отклонить плохой файл до создания записи товара.
func (s *Service) ValidateImage(data []byte, mimeType string) error {
	if s.pipeline == nil {
		return domain.ErrUnsupportedImageType
	}
	_, err := s.pipeline.Validate(data, mimeType)
	return err
}

// UploadProductImage прогоняет загрузку через конвейер и сохраняет пути
// артефактов в записи товара.
func (s *Service) UploadProductImage(ctx context.Context, id int64, data []byte, mimeType string) (domain.Product, error) {
	if id <= 0 {
		return domain.Product{}, domain.ErrProductIDInvalid
	}
	if s.pipeline == nil {
		return domain.Product{}, domain.ErrUnsupportedImageType
	}

	// Товар должен существовать до обработки: иначе конвейер оставит
	// артефакты без записи.
	if _, err := s.products.Get(ctx, id); err != nil {
		return domain.Product{}, err
	}

	artifacts, err := s.pipeline.Process(id, data, mimeType)
	if err != nil {
		return domain.Product{}, err
	}

	if err := s.products.SetImagePaths(ctx, id, artifacts.ImagePath, artifacts.ThumbPath); err != nil {
		return domain.Product{}, err
	}

	product, err := s.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	s.emitProductEvent(ctx, kafka.EventTypeProductUpdated, product)
	return product, nil
}

// emitProductEvent кладёт событие товара в outbox. Ошибка публикации
// логируется, но не валит операцию каталога.
func (s *Service) emitProductEvent(ctx context.Context, eventType kafka.EventType, product domain.Product) {
	if s.outbox == nil {
		return
	}

	event := kafka.NewProductEvent(eventType, product.ID, product.CategoryID, product.Name, product.PriceCents)
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"product_id": product.ID,
			"event":      eventType,
		}).Error("marshal product event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: kafka.AggregateProduct,
		AggregateID:   strconv.FormatInt(product.ID, 10),
		EventType:     string(eventType),
		Payload:       payload,
	}
	if _, err := s.outbox.Enqueue(ctx, msg); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"product_id": product.ID,
			"event":      eventType,
		}).Error("enqueue product event failed")
	}
}

func (s *Service) emitCategoryEvent(ctx context.Context, eventType kafka.EventType, category domain.Category) {
	if s.outbox == nil {
		return
	}

	event := kafka.NewCategoryEvent(eventType, category.ID, category.Name)
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"category_id": category.ID,
			"event":       eventType,
		}).Error("marshal category event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: kafka.AggregateCategory,
		AggregateID:   strconv.FormatInt(category.ID, 10),
		EventType:     string(eventType),
		Payload:       payload,
	}
	if _, err := s.outbox.Enqueue(ctx, msg); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"category_id": category.ID,
			"event":       eventType,
		}).Error("enqueue category event failed")
	}
}
