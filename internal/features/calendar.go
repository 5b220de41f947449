package features

import (
	"math"
	"time"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
)

// Calendar holds the date-derived inputs shared by every model.
type Calendar struct {
	Year       int
	Month      int
	Day        int
	Weekday    int // Monday = 0
	DayOfYear  int
	WeekOfYear int // ISO week
	IsWeekend  bool
	MonthSin   float64
	WeekdayCos float64
}

// CalendarOf derives the calendar features of a date.
func CalendarOf(t time.Time) Calendar {
	_, week := t.ISOWeek()
	weekday := domain.WeekdayIndex(t)
	return Calendar{
		Year:       t.Year(),
		Month:      int(t.Month()),
		Day:        t.Day(),
		Weekday:    weekday,
		DayOfYear:  t.YearDay(),
		WeekOfYear: week,
		IsWeekend:  weekday >= 5,
		MonthSin:   math.Sin(2 * math.Pi * float64(t.Month()) / 12),
		WeekdayCos: math.Cos(2 * math.Pi * float64(weekday) / 7),
	}
}

// WeekendFlag is IsWeekend as a 0/1 number.
func (c Calendar) WeekendFlag() float64 {
	if c.IsWeekend {
		return 1
	}
	return 0
}
