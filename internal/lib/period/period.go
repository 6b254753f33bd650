// Package period содержит функции расчёта границ учётных периодов:
// начало текущих суток по UTC и начало календарного месяца.
package period

import (
	"time"
)

// StartOfUTCDay возвращает полночь по UTC для суток, в которые попадает now.
func StartOfUTCDay(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfMonth возвращает первое число месяца в часовом поясе now.
// Месячные лимиты считаются по локальным часам сервера, а не по UTC.
func StartOfMonth(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// AddDays прибавляет к t указанное количество календарных дней.
func AddDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}

// DaysUntil возвращает число полных или неполных суток от now до target,
// округлённое вверх. Прошедшая дата даёт 0.
func DaysUntil(now, target time.Time) int {
	diff := target.Sub(now)
	if diff <= 0 {
		return 0
	}
	days := int(diff / (24 * time.Hour))
	if diff%(24*time.Hour) != 0 {
		days++
	}
	return days
}
