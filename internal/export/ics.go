// Package export writes a normalized meeting feed as an iCalendar file.
package export

import (
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"meetfeed/internal/feed"
	appLog "meetfeed/internal/log"
	"meetfeed/internal/model"
)

const (
	productID       = "-//meetfeed//meeting feed//EN"
	defaultDuration = time.Hour
)

// Calendar builds a VCALENDAR with one VEVENT per valid meeting. Start
// times are the meeting's date and time interpreted in loc, with the date
// read as Gregorian. Records that fail date/time parsing are skipped,
// which includes Bikram Sambat dates such as 2081-02-32. A feed of BS
// dates should not be exported at all; other BS dates would come out as
// Gregorian days decades ahead.
func Calendar(meetings []model.Meeting, loc *time.Location, stamp time.Time) *ical.Calendar {
	if loc == nil {
		loc = time.Local
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	skipped := 0
	for _, m := range meetings {
		day, err := feed.ParseDate(m.Date)
		if err != nil {
			skipped++
			continue
		}
		minutes, err := feed.ParseClock(m.Time)
		if err != nil {
			skipped++
			continue
		}

		start := time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, loc)

		ev := cal.AddEvent(uid(m))
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(start)
		ev.SetEndAt(start.Add(defaultDuration))
		if c := m.Category(); c != "" {
			ev.SetSummary(c)
		}
		if m.Location != "" {
			ev.SetLocation(m.Location)
		}
		if m.Description != "" {
			ev.SetDescription(m.Description)
		}
		if m.HighPriority() {
			ev.SetProperty(ical.ComponentPropertyPriority, "1")
		}
	}

	if skipped > 0 {
		appLog.Debug("ics export: skipped invalid meetings", "count", skipped)
	}
	return cal
}

// WriteICS serializes Calendar(meetings, loc, stamp) to w.
func WriteICS(w io.Writer, meetings []model.Meeting, loc *time.Location, stamp time.Time) error {
	_, err := io.WriteString(w, Calendar(meetings, loc, stamp).Serialize())
	return err
}

// uid is the record id, or a name-based UUID of the fallback key for
// records without one.
func uid(m model.Meeting) string {
	if m.ID != "" {
		return strings.NewReplacer(" ", "_", "\n", "_").Replace(m.ID) + "@meetfeed"
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(m.Key())).String() + "@meetfeed"
}
