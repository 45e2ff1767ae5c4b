package kafka

import "time"

// EventType определяет тип события каталога
type EventType string

const (
	// Product события
	EventTypeProductCreated EventType = "product.created"
	EventTypeProductUpdated EventType = "product.updated"
	EventTypeProductDeleted EventType = "product.deleted"

	// Category события
	EventTypeCategoryCreated EventType = "category.created"
	EventTypeCategoryUpdated EventType = "category.updated"
	EventTypeCategoryDeleted EventType = "category.deleted"
)

// Topics для Kafka
const (
	TopicCatalogEvents   = "shop.catalog.events"
	TopicDeadLetterQueue = "shop.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// Агрегаты каталога
const (
	AggregateProduct  = "product"
	AggregateCategory = "category"
)

// ProductEvent представляет событие товара
type ProductEvent struct {
	EventType  EventType `json:"event_type"`
	ProductID  int64     `json:"product_id"`
	CategoryID int64     `json:"category_id,omitempty"`
	Name       string    `json:"name,omitempty"`
	PriceCents int64     `json:"price_cents,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// CategoryEvent представляет событие категории
type CategoryEvent struct {
	EventType  EventType `json:"event_type"`
	CategoryID int64     `json:"category_id"`
	Name       string    `json:"name,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewProductEvent создает новое событие товара
func NewProductEvent(eventType EventType, productID, categoryID int64, name string, priceCents int64) *ProductEvent {
	return &ProductEvent{
		EventType:  eventType,
		ProductID:  productID,
		CategoryID: categoryID,
		Name:       name,
		PriceCents: priceCents,
		Timestamp:  time.Now(),
	}
}

// NewCategoryEvent создает новое событие категории
func NewCategoryEvent(eventType EventType, categoryID int64, name string) *CategoryEvent {
	return &CategoryEvent{
		EventType:  eventType,
		CategoryID: categoryID,
		Name:       name,
		Timestamp:  time.Now(),
	}
}
