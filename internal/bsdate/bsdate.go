// Package bsdate converts Gregorian (AD) dates to Bikram Sambat (BS) dates.
//
// Month lengths in BS are not computable from a rule; they come from the
// published calendar tables, so conversion is only defined for the years
// present in monthDays.
package bsdate

import (
	"fmt"
	"time"
)

// Date is a Bikram Sambat calendar date. Month is 1-based (1 = Baisakh).
type Date struct {
	Year  int
	Month int
	Day   int
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Converter maps a Gregorian civil date to a BS date.
type Converter interface {
	FromGregorian(t time.Time) (Date, error)
}

// ConversionError reports a date outside the supported calendar range.
type ConversionError struct {
	Input time.Time
	Min   time.Time
	Max   time.Time
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("bsdate: %s outside supported range %s..%s",
		e.Input.Format(time.DateOnly), e.Min.Format(time.DateOnly), e.Max.Format(time.DateOnly))
}

// Table is a Converter backed by a month-length table starting at a known
// epoch (BS first year, Baisakh 1 == epoch AD date).
type Table struct {
	firstYear int
	epoch     time.Time // AD civil date of BS firstYear-01-01, UTC midnight
	months    [][12]int
	totalDays int
}

// Default returns the converter over the built-in table.
func Default() *Table {
	return defaultTable
}

var defaultTable = NewTable(2070, time.Date(2013, time.April, 14, 0, 0, 0, 0, time.UTC), monthDays)

// NewTable builds a converter. epoch must be the Gregorian date of BS
// firstYear-01-01; months[i] holds the month lengths of year firstYear+i.
func NewTable(firstYear int, epoch time.Time, months [][12]int) *Table {
	t := &Table{
		firstYear: firstYear,
		epoch:     civil(epoch),
		months:    months,
	}
	for _, y := range months {
		for _, d := range y {
			t.totalDays += d
		}
	}
	return t
}

// Range returns the first and last Gregorian dates the table can convert.
func (t *Table) Range() (time.Time, time.Time) {
	return t.epoch, t.epoch.AddDate(0, 0, t.totalDays-1)
}

// FromGregorian converts the civil date of tm (in tm's own location).
func (t *Table) FromGregorian(tm time.Time) (Date, error) {
	day := civil(tm)
	offset := int(day.Sub(t.epoch).Hours() / 24)
	if offset < 0 || offset >= t.totalDays {
		lo, hi := t.Range()
		return Date{}, &ConversionError{Input: day, Min: lo, Max: hi}
	}

	for yi, months := range t.months {
		for mi, n := range months {
			if offset < n {
				return Date{Year: t.firstYear + yi, Month: mi + 1, Day: offset + 1}, nil
			}
			offset -= n
		}
	}
	// unreachable: offset < totalDays
	lo, hi := t.Range()
	return Date{}, &ConversionError{Input: day, Min: lo, Max: hi}
}

// civil drops the clock and zone, keeping the wall-clock calendar date.
func civil(tm time.Time) time.Time {
	y, m, d := tm.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
