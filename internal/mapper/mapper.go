// Package mapper builds canonical Event and Task records from classified,
// normalized spreadsheet rows.
package mapper

import (
	"fmt"
	"strconv"
	"strings"

	"sheetsync/internal/models"
)

// Cell layout within a raw row.
const (
	colTitle = iota
	colDate
	colTime
	colStatus
	colRemarks
)

// ToEvent maps a row classified as an event. date is the normalized ISO
// date; startTime is the normalized start time or "" when the time cell
// was unparseable, in which case the default 09:00-10:00 window applies.
func ToEvent(cells []string, date, startTime string, src models.SourceRef) models.Event {
	title := strings.TrimSpace(cell(cells, colTitle))
	if title == "" {
		title = "Untitled"
	}

	start := startTime
	end := ""
	if start == "" {
		start = "09:00:00"
		end = "10:00:00"
	} else {
		end = endOfEvent(start)
	}

	remarks := cell(cells, colRemarks)
	online := containsAny(strings.ToLower(remarks), "online", "zoom")

	location := ""
	if !online {
		location = "Campus"
	}

	return models.Event{
		Title:       title,
		Description: remarks,
		Date:        date,
		StartTime:   start,
		EndTime:     end,
		IsOnline:    online,
		Location:    location,
		Notes:       statusNote(cell(cells, colStatus)),
		Source:      src,
	}
}

// ToTask maps a row classified as a task. The start time is kept verbatim
// (possibly ""); tasks never receive a synthesized end time.
func ToTask(cells []string, date, startTime string, src models.SourceRef) models.Task {
	status := strings.ToLower(cell(cells, colStatus))
	remarks := strings.ToLower(cell(cells, colRemarks))

	priority := models.PriorityMedium
	if containsAny(remarks, "urgent", "important") {
		priority = models.PriorityHigh
	}

	return models.Task{
		Title:       strings.TrimSpace(cell(cells, colTitle)),
		Description: cell(cells, colRemarks),
		Date:        date,
		StartTime:   startTime,
		IsCompleted: strings.Contains(status, "complete") || status == "done",
		Priority:    priority,
		Notes:       statusNote(cell(cells, colStatus)),
		Source:      src,
	}
}

// endOfEvent returns start + 1 hour. Events never cross midnight: a start
// in the 23:xx hour clamps the end to 23:59:00 instead of rolling over.
func endOfEvent(start string) string {
	if len(start) != 8 {
		return "10:00:00"
	}
	hour, err := strconv.Atoi(start[:2])
	if err != nil {
		return "10:00:00"
	}
	if hour == 23 {
		return "23:59:00"
	}
	return fmt.Sprintf("%02d%s", hour+1, start[2:])
}

func statusNote(status string) string {
	if strings.TrimSpace(status) == "" {
		return ""
	}
	return "Status: " + status
}

func cell(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
