package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxProductNameLen ограничивает длину названия товара в символах.
	MaxProductNameLen = 120
	// MaxDescriptionLen ограничивает длину описания товара в символах.
	MaxDescriptionLen = 4000
)

// Product представляет товар каталога.
// CategoryName денормализуется при чтении (JOIN с категорией) и не хранится.
type Product struct {
	ID           int64
	CategoryID   int64
	CategoryName string
	Name         string
	// PriceCents — цена в минимальных денежных единицах (центах).
	PriceCents int64
	Description string
	// ImagePath и ThumbPath — публичные пути артефактов изображений;
	// пустая строка означает отсутствие изображения.
	ImagePath string
	ThumbPath string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductInput — нормализованные данные для создания/обновления товара.
type ProductInput struct {
	CategoryID  int64
	Name        string
	PriceCents  int64
	Description string
}

// ValidateProductInput проверяет и нормализует входные данные товара.
// Возвращённый ProductInput содержит обрезанные строки и цену в центах.
func ValidateProductInput(categoryID int64, name, price, description string) (ProductInput, error) {
	if categoryID <= 0 {
		return ProductInput{}, ErrCategoryIDInvalid
	}

	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" || utf8.RuneCountInString(trimmedName) > MaxProductNameLen {
		return ProductInput{}, ErrProductNameInvalid
	}

	cents, err := ParsePriceCents(price)
	if err != nil {
		return ProductInput{}, err
	}

	desc := truncateRunes(strings.TrimSpace(description), MaxDescriptionLen)

	return ProductInput{
		CategoryID:  categoryID,
		Name:        trimmedName,
		PriceCents:  cents,
		Description: desc,
	}, nil
}

// truncateRunes обрезает s до limit символов по границе руны:
// байтовый срез мог бы разрезать многобайтовый символ и дать невалидный UTF-8.
func truncateRunes(s string, limit int) string {
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
