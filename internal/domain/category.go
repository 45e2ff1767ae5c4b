package domain

import (
	"strings"
	"unicode/utf8"
)

// MaxCategoryNameLen ограничивает длину названия категории в символах.
const MaxCategoryNameLen = 80

// Category представляет категорию каталога.
type Category struct {
	ID   int64
	Name string
}

// ValidateCategoryName проверяет и нормализует название категории.
func ValidateCategoryName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > MaxCategoryNameLen {
		return "", ErrCategoryNameInvalid
	}
	return trimmed, nil
}
