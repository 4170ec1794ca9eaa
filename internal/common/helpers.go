// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: расчёт уровня, склонение слова «point», работа с датами.
package common

import (
	"fmt"
	"time"
)

// PointsPerLevel — сколько баллов нужно на один уровень.
const PointsPerLevel = 1000

// DateLayout — формат календарной даты в истории транзакций (без времени).
const DateLayout = "2006-01-02"

// LevelForPoints возвращает уровень для баланса: 1 уровень на каждые 1000 баллов, минимум 1.
//
// Примеры:
//
//	LevelForPoints(0)    → 1
//	LevelForPoints(999)  → 1
//	LevelForPoints(1000) → 2
//	LevelForPoints(2500) → 3
func LevelForPoints(points int64) int {
	if points < 0 {
		return 1
	}
	return int(points/PointsPerLevel) + 1
}

// PluralizePoints возвращает "point" или "points" для числа n.
func PluralizePoints(n int64) string {
	if n == 1 || n == -1 {
		return "point"
	}
	return "points"
}

// FormatPoints форматирует количество баллов в читабельную строку.
// Пример: FormatPoints(150) → "150 points"
func FormatPoints(n int64) string {
	return fmt.Sprintf("%d %s", n, PluralizePoints(n))
}

// FormatDate приводит время к календарной дате в указанном часовом поясе.
// Используется для поля date в истории транзакций.
func FormatDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// ClampLimit ограничивает limit диапазоном [1, max], 0 и меньше — def.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
