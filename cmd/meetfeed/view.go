package main

import (
	"fmt"
	"slices"
	"strings"

	"meetfeed/internal/config"
	"meetfeed/internal/feed"
)

// view is a named preset over the configured filters.
type view struct {
	name     string
	pageSize int // 0 keeps the configured page size
	apply    func(*feed.FilterSpec)
}

func dayOffset(n int) func(*feed.FilterSpec) {
	return func(s *feed.FilterSpec) {
		s.TodayLunar = false
		s.DayOffset = &n
	}
}

var views = []view{
	{name: "config"},
	{name: "all", apply: func(s *feed.FilterSpec) { *s = feed.FilterSpec{} }},
	{name: "today", pageSize: 6, apply: func(s *feed.FilterSpec) {
		s.TodayLunar = true
		s.DayOffset = nil
	}},
	{name: "yesterday", apply: dayOffset(-1)},
	{name: "tomorrow", apply: dayOffset(1)},
	{name: "overmorrow", apply: dayOffset(2)},
	{name: "internal", apply: func(s *feed.FilterSpec) { s.Category = "internal" }},
}

func viewNames() string {
	names := make([]string, len(views))
	for i, v := range views {
		names[i] = v.name
	}
	return strings.Join(names, ", ")
}

func lookupView(name string) (view, error) {
	i := slices.IndexFunc(views, func(v view) bool { return v.name == strings.ToLower(name) })
	if i < 0 {
		return view{}, fmt.Errorf("unknown view %q (want one of: %s)", name, viewNames())
	}
	return views[i], nil
}

// filters starts from the configured filters and applies the preset.
func (v view) filters(fc config.FilterConfig) feed.FilterSpec {
	spec := feed.FilterSpec{
		TodayLunar: fc.TodayLunar,
		Category:   fc.Category,
		DayOffset:  fc.DayOffset,
	}
	if v.apply != nil {
		v.apply(&spec)
	}
	return spec
}
