// Package format renders engine views for terminals and scripts.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"meetfeed/internal/engine"
)

// Time renders a 24-hour HH:MM string as a 12-hour clock ("1:05 PM").
// Unparseable input is returned unchanged.
func Time(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return raw
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return raw
	}

	ampm := "AM"
	if hour >= 12 {
		ampm = "PM"
	}
	h12 := hour % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%s %s", h12, parts[1], ampm)
}

// Date renders the YYYY-MM-DD part of a wire date. This is a display
// slice only; it never converts between calendars.
func Date(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		return s[:i]
	}
	return s
}

// RowDTO is the flat, display-ready shape of an engine row.
type RowDTO struct {
	Rank         int    `json:"rank"`
	ID           string `json:"id,omitempty"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Type         string `json:"type"`
	Location     string `json:"location"`
	Description  string `json:"description"`
	HighPriority bool   `json:"high_priority"`
	Selected     bool   `json:"selected"`
}

// PageDTO is the JSON shape of a view.
type PageDTO struct {
	Rows           []RowDTO  `json:"rows"`
	Page           int       `json:"page"`
	TotalPages     int       `json:"total_pages"`
	PageSize       int       `json:"page_size"`
	Total          int       `json:"total"`
	SelectedCount  int       `json:"selected_count"`
	FetchedAt      time.Time `json:"fetched_at"`
	Error          string    `json:"error,omitempty"`
	SessionExpired bool      `json:"session_expired"`
}

func NewPageDTO(v engine.View) PageDTO {
	rows := make([]RowDTO, 0, len(v.Rows))
	for _, r := range v.Rows {
		rows = append(rows, RowDTO{
			Rank:         r.Rank,
			ID:           r.Meeting.ID,
			Date:         Date(r.Meeting.Date),
			Time:         Time(r.Meeting.Time),
			Type:         r.Meeting.Category(),
			Location:     r.Meeting.Location,
			Description:  r.Meeting.Description,
			HighPriority: r.Meeting.HighPriority(),
			Selected:     r.Selected,
		})
	}

	dto := PageDTO{
		Rows:           rows,
		Page:           v.Page,
		TotalPages:     v.TotalPages,
		PageSize:       v.PageSize,
		Total:          v.Total,
		SelectedCount:  v.SelectedCount,
		FetchedAt:      v.FetchedAt,
		SessionExpired: v.SessionExpired,
	}
	if v.LastError != nil {
		dto.Error = v.LastError.Error()
	}
	return dto
}

// WritePage writes v to w as "tsv" or "json".
func WritePage(w io.Writer, v engine.View, format string) error {
	switch format {
	case "tsv":
		return writePageTSV(w, v)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(NewPageDTO(v))
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writePageTSV(w io.Writer, v engine.View) error {
	if _, err := fmt.Fprintln(w, "sel\tsn\tdate\ttime\ttype\tlocation\tdescription"); err != nil {
		return err
	}
	for _, r := range NewPageDTO(v).Rows {
		sel := " "
		if r.Selected {
			sel = "x"
		}
		if r.HighPriority {
			sel += "!"
		}
		line := fmt.Sprintf("%s\t%d\t%s\t%s\t%s\t%s\t%s",
			sel, r.Rank, r.Date, r.Time, r.Type,
			escapeNewlines(r.Location), escapeNewlines(r.Description))
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "page %d of %d\n", v.Page, v.TotalPages)
	return err
}

func escapeNewlines(text string) string {
	return strings.ReplaceAll(text, "\n", "\\n")
}
