package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePriceCents разбирает десятичную цену ("19.90", "20") в центы.
// Допускается не более двух знаков после точки; отрицательные
// и нечисловые значения отклоняются.
func ParsePriceCents(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, ErrPriceInvalid
	}

	whole := s
	frac := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		whole = s[:idx]
		frac = s[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, ErrPriceInvalid
	}
	// Дополняем дробную часть до двух знаков: "5.9" -> 590.
	for len(frac) < 2 {
		frac += "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 || strings.HasPrefix(whole, "-") {
		return 0, ErrPriceInvalid
	}

	var cents int64
	if frac != "00" {
		parsed, err := strconv.ParseInt(frac, 10, 64)
		if err != nil || parsed < 0 {
			return 0, ErrPriceInvalid
		}
		cents = parsed
	}

	return units*100 + cents, nil
}

// FormatPrice возвращает цену в центах как десятичную строку с двумя знаками.
func FormatPrice(cents int64) string {
	if cents < 0 {
		cents = 0
	}
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// FormatMoney форматирует сумму в центах для отображения: "$40.00".
// Отрицательные суммы прижимаются к нулю.
func FormatMoney(cents int64) string {
	return "$" + FormatPrice(cents)
}
