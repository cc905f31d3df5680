package feed

import (
	"fmt"
	"time"

	"meetfeed/internal/bsdate"
	"meetfeed/internal/model"
)

// Record is a meeting that passed the validity filter, with its parsed
// sort keys.
type Record struct {
	model.Meeting
	Day     string // validated YYYY-MM-DD, in whatever calendar the feed uses
	Minutes int    // minutes since midnight
	// Gregorian is Day read as a Gregorian date at UTC midnight; zero when
	// Day is not a valid Gregorian date (e.g. BS 2081-02-32).
	Gregorian time.Time
}

// Filter is a domain predicate. Filters compose by AND; an error from
// Match excludes the record.
type Filter struct {
	Name  string
	Match func(r Record) (bool, error)
}

// SameLunarDay keeps meetings whose date equals today's date in the
// Bikram Sambat calendar. It assumes the feed stores BS dates, as the
// booking form does, and compares the YYYY-MM-DD strings.
// now should already be in the display timezone.
func SameLunarDay(conv bsdate.Converter, now time.Time) Filter {
	today, convErr := conv.FromGregorian(now)
	key := today.String()
	return Filter{
		Name: "same_lunar_day",
		Match: func(r Record) (bool, error) {
			if convErr != nil {
				return false, convErr
			}
			return r.Day == key, nil
		},
	}
}

// Category keeps meetings whose category label equals name exactly.
func Category(name string) Filter {
	return Filter{
		Name: "category",
		Match: func(r Record) (bool, error) {
			return r.Category() == name, nil
		},
	}
}

// DayOffset keeps meetings on the Gregorian day that is days away from
// now (-1 yesterday, 1 tomorrow, 2 overmorrow). Unlike SameLunarDay it
// assumes the feed stores Gregorian dates; a record whose date is not a
// valid Gregorian date is excluded with an error.
func DayOffset(now time.Time, days int) Filter {
	y, m, d := now.Date()
	target := time.Date(y, m, d+days, 0, 0, 0, 0, time.UTC)
	return Filter{
		Name: "day_offset",
		Match: func(r Record) (bool, error) {
			if r.Gregorian.IsZero() {
				return false, fmt.Errorf("date %q is not a Gregorian date", r.Day)
			}
			return r.Gregorian.Equal(target), nil
		},
	}
}

// FilterSpec describes the domain filters in configuration terms.
type FilterSpec struct {
	// TodayLunar keeps only meetings dated today in the BS calendar; the
	// feed's dates are read as BS.
	TodayLunar bool
	// Category, when non-empty, keeps only meetings with that category.
	Category string
	// DayOffset, when non-nil, keeps only meetings on today+N; the feed's
	// dates are read as Gregorian.
	DayOffset *int
}

// BSDates reports whether the filters read the feed's dates as Bikram
// Sambat. Such dates must not be exported as Gregorian timestamps.
func (s FilterSpec) BSDates() bool {
	return s.TodayLunar
}

// Build turns the filter settings into filters evaluated against now.
func (s FilterSpec) Build(conv bsdate.Converter, now time.Time) []Filter {
	var out []Filter
	if s.TodayLunar {
		out = append(out, SameLunarDay(conv, now))
	}
	if s.DayOffset != nil {
		out = append(out, DayOffset(now, *s.DayOffset))
	}
	if s.Category != "" {
		out = append(out, Category(s.Category))
	}
	return out
}
