package feed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.DateOnly,
}

// ParseDateKey validates the calendar part of a wire date and returns it
// as YYYY-MM-DD. Only the shape is checked (month 1..12, day 1..32), so
// Bikram Sambat dates such as 2081-02-32 pass. Anything after the date
// must start with 'T'.
func ParseDateKey(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errors.New("empty date")
	}
	if len(s) < len(time.DateOnly) || s[4] != '-' || s[7] != '-' {
		return "", fmt.Errorf("unparseable date %q", raw)
	}
	if rest := s[len(time.DateOnly):]; rest != "" && rest[0] != 'T' {
		return "", fmt.Errorf("unparseable date %q", raw)
	}

	if !allDigits(s[0:4]) || !allDigits(s[5:7]) || !allDigits(s[8:10]) {
		return "", fmt.Errorf("unparseable date %q", raw)
	}
	month, _ := strconv.Atoi(s[5:7])
	day, _ := strconv.Atoi(s[8:10])
	if month < 1 || month > 12 {
		return "", fmt.Errorf("date %q: month %d out of range 1..12", raw, month)
	}
	if day < 1 || day > 32 {
		return "", fmt.Errorf("date %q: day %d out of range 1..32", raw, day)
	}
	return s[:len(time.DateOnly)], nil
}

// ParseDate reads a wire date as a Gregorian date and returns its calendar
// day (the YYYY-MM-DD prefix) as UTC midnight.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}

	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return time.Parse(time.DateOnly, s[:len(time.DateOnly)])
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

// ParseClock converts HH:MM (optionally HH:MM:SS) to minutes since midnight.
func ParseClock(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("unparseable time %q", raw)
	}

	hour, err := clockField(parts[0], 23)
	if err != nil {
		return 0, fmt.Errorf("time %q: hour: %w", raw, err)
	}
	minute, err := clockField(parts[1], 59)
	if err != nil {
		return 0, fmt.Errorf("time %q: minute: %w", raw, err)
	}
	if len(parts) == 3 {
		if _, err := clockField(parts[2], 59); err != nil {
			return 0, fmt.Errorf("time %q: second: %w", raw, err)
		}
	}
	return hour*60 + minute, nil
}

func clockField(s string, max int) (int, error) {
	if s == "" || len(s) > 2 || !allDigits(s) {
		return 0, fmt.Errorf("bad field %q", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n > max {
		return 0, fmt.Errorf("%d out of range 0..%d", n, max)
	}
	return n, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
