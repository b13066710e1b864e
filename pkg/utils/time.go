package utils

import (
	"time"
)

// time.go - утилиты для работы со временем
//
// Назначение:
// Вспомогательная функция для определения границы суток, используемая
// при агрегации дневного P&L в execution.State.

// GetDayStartFrom возвращает начало дня (00:00:00 UTC) для указанного
// времени.
func GetDayStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
