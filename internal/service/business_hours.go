package service

import (
	"time"

	cal "github.com/rickar/cal/v2"
)

// BusinessHours is the weekday send window in the pipeline time zone.
type BusinessHours struct {
	Location  *time.Location
	StartHour int
	EndHour   int
	// Holidays, when set, closes the window on national holidays.
	Holidays *cal.BusinessCalendar
}

// Open reports whether t falls on Mon-Fri within [StartHour, EndHour).
func (b BusinessHours) Open(t time.Time) bool {
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if local.Hour() < b.StartHour || local.Hour() >= b.EndHour {
		return false
	}
	if b.Holidays != nil {
		if holiday, _, _ := b.Holidays.IsHoliday(local); holiday {
			return false
		}
	}
	return true
}

// BrazilHolidays builds the national holiday calendar, Carnival and Corpus
// Christi included since most businesses close.
func BrazilHolidays() *cal.BusinessCalendar {
	c := cal.NewBusinessCalendar()
	fixed := func(name string, m time.Month, d int) *cal.Holiday {
		return &cal.Holiday{Name: name, Type: cal.ObservancePublic, Month: m, Day: d, Func: cal.CalcDayOfMonth}
	}
	easter := func(name string, offset int) *cal.Holiday {
		return &cal.Holiday{Name: name, Type: cal.ObservancePublic, Offset: offset, Func: cal.CalcEasterOffset}
	}
	c.AddHoliday(
		fixed("Confraternização Universal", time.January, 1),
		easter("Carnaval (segunda)", -48),
		easter("Carnaval (terça)", -47),
		easter("Sexta-feira Santa", -2),
		fixed("Tiradentes", time.April, 21),
		fixed("Dia do Trabalho", time.May, 1),
		easter("Corpus Christi", 60),
		fixed("Independência", time.September, 7),
		fixed("Nossa Senhora Aparecida", time.October, 12),
		fixed("Finados", time.November, 2),
		fixed("Proclamação da República", time.November, 15),
		fixed("Consciência Negra", time.November, 20),
		fixed("Natal", time.December, 25),
	)
	return c
}
