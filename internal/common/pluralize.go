// Package common — pluralize.go содержит форматирование сумм для сообщений
// и уведомлений. Базовое склонение реализовано в helpers.go.
package common

import "fmt"

// FormatPointsDelta создаёт строку вида "+10 points" или "-50 points".
// Знак «+» или «-» добавляется автоматически.
//
// Примеры:
//
//	FormatPointsDelta(10)  → "+10 points"
//	FormatPointsDelta(-50) → "-50 points"
//	FormatPointsDelta(1)   → "+1 point"
func FormatPointsDelta(amount int64) string {
	if amount >= 0 {
		return fmt.Sprintf("+%d %s", amount, PluralizePoints(amount))
	}
	return fmt.Sprintf("%d %s", amount, PluralizePoints(amount))
}

// FormatNumber форматирует число с разделителями тысяч (запятыми).
// Пример: FormatNumber(2350) → "2,350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s,%03d", FormatNumber(n/1000), n%1000)
}
