package feed

import (
	"cmp"
	"slices"

	appLog "meetfeed/internal/log"
	"meetfeed/internal/model"
)

// Options configures Normalize.
type Options struct {
	Filters []Filter
}

// Stats counts what Normalize dropped and why.
type Stats struct {
	Input    int
	Invalid  int
	Filtered map[string]int // by filter name, including filter errors
	Output   int
}

// Normalize drops invalid records, applies the filters and sorts by
// (date, time of day). A date is valid if it has the YYYY-MM-DD shape;
// it is not required to be a Gregorian date, since feeds may carry Bikram
// Sambat dates. Dates compare as strings, which orders both calendars.
// The sort is stable. It never fails; the worst case is an empty result.
func Normalize(raw []model.Meeting, opts Options) []model.Meeting {
	out, _ := NormalizeWithStats(raw, opts)
	return out
}

func NormalizeWithStats(raw []model.Meeting, opts Options) ([]model.Meeting, Stats) {
	stats := Stats{Input: len(raw), Filtered: map[string]int{}}
	records := make([]Record, 0, len(raw))

	for _, m := range raw {
		day, err := ParseDateKey(m.Date)
		if err != nil {
			stats.Invalid++
			appLog.Debug("feed: dropped invalid date", "key", m.Key(), "date", m.Date, "reason", err.Error())
			continue
		}
		minutes, err := ParseClock(m.Time)
		if err != nil {
			stats.Invalid++
			appLog.Debug("feed: dropped invalid time", "key", m.Key(), "time", m.Time, "reason", err.Error())
			continue
		}

		r := Record{Meeting: m, Day: day, Minutes: minutes}
		if g, err := ParseDate(m.Date); err == nil {
			r.Gregorian = g
		}
		if name, ok := matchAll(r, opts.Filters); !ok {
			stats.Filtered[name]++
			continue
		}
		records = append(records, r)
	}

	slices.SortStableFunc(records, func(a, b Record) int {
		if c := cmp.Compare(a.Day, b.Day); c != 0 {
			return c
		}
		return cmp.Compare(a.Minutes, b.Minutes)
	})

	out := make([]model.Meeting, len(records))
	for i, r := range records {
		out[i] = r.Meeting
	}
	stats.Output = len(out)

	appLog.Debug("feed: normalized", "input", stats.Input, "invalid", stats.Invalid, "filtered", stats.filteredTotal(), "output", stats.Output)
	return out, stats
}

// matchAll returns the name of the first filter that rejected r.
func matchAll(r Record, filters []Filter) (string, bool) {
	for _, f := range filters {
		ok, err := f.Match(r)
		if err != nil {
			appLog.Debug("feed: filter error, record excluded", "filter", f.Name, "key", r.Key(), "reason", err.Error())
			return f.Name, false
		}
		if !ok {
			return f.Name, false
		}
	}
	return "", true
}

func (s Stats) filteredTotal() int {
	n := 0
	for _, v := range s.Filtered {
		n += v
	}
	return n
}
