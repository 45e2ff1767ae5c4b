package domain

import "errors"

var (
	// Ошибка некорректного идентификатора категории.
	ErrCategoryIDInvalid = errors.New("category id must be a positive integer")
	// Ошибка некорректного идентификатора товара.
	ErrProductIDInvalid = errors.New("product id must be a positive integer")
	// Ошибка некорректного названия товара (пустое или длиннее 120 символов).
	ErrProductNameInvalid = errors.New("product name is required (1-120 chars)")
	// Ошибка некорректного названия категории (пустое или длиннее 80 символов).
	ErrCategoryNameInvalid = errors.New("category name is required (1-80 chars)")
	// Ошибка некорректной цены (не число, отрицательная или более 2 знаков после точки).
	ErrPriceInvalid = errors.New("price must be a number >= 0 with at most 2 fraction digits")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrCategoryNotFound возвращается, если категория не найдена.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrCategoryNameTaken сигнализирует о дубликате названия категории.
	ErrCategoryNameTaken = errors.New("category name already exists")
	// ErrCategoryInUse возвращается при удалении категории, на которую ссылаются товары.
	ErrCategoryInUse = errors.New("category still has products")
	// ErrUnsupportedImageType — загруженный файл не jpeg/png/webp.
	ErrUnsupportedImageType = errors.New("unsupported image format, use jpg/png/webp")
	// ErrImageTooLarge — загруженный файл превышает лимит размера.
	ErrImageTooLarge = errors.New("image is too large (max 10MB)")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsNotFound проверяет, относится ли ошибка к классу "не найдено".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrCategoryNotFound)
}

// IsConflict проверяет, относится ли ошибка к классу конфликтов.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCategoryNameTaken) || errors.Is(err, ErrCategoryInUse)
}

// IsValidation проверяет, относится ли ошибка к классу ошибок валидации.
func IsValidation(err error) bool {
	switch {
	case errors.Is(err, ErrCategoryIDInvalid),
		errors.Is(err, ErrProductIDInvalid),
		errors.Is(err, ErrProductNameInvalid),
		errors.Is(err, ErrCategoryNameInvalid),
		errors.Is(err, ErrPriceInvalid),
		errors.Is(err, ErrUnsupportedImageType),
		errors.Is(err, ErrImageTooLarge):
		return true
	}
	return false
}
