// Package classify decides whether a raw spreadsheet row describes an
// event, a task, or should be skipped entirely.
package classify

import "strings"

// Category is the classification outcome for a row.
type Category int

const (
	// Skip marks structural rows (headers, blanks) that carry no record.
	Skip Category = iota
	// Event marks rows whose text suggests a scheduled occurrence.
	Event
	// Task is the default for every row that is not an event.
	Task
)

func (c Category) String() string {
	switch c {
	case Event:
		return "event"
	case Task:
		return "task"
	default:
		return "skip"
	}
}

// Keyword sets are fixed; classification is a plain substring check with
// no scoring. Any hit makes the row an event, otherwise it is a task.
var (
	eventTitleWords   = []string{"lecture", "class", "meeting", "presentation", "exam", "quiz"}
	eventRemarksWords = []string{"submission", "lecture"}
)

// Row classifies one raw row. Cells are positional: title, date, time,
// status, remarks. Rows with fewer than two cells, an empty title, or a
// title of "name"/"title" are treated as header/structural rows.
func Row(cells []string) Category {
	if len(cells) < 2 {
		return Skip
	}
	title := strings.ToLower(strings.TrimSpace(cells[0]))
	if title == "" || title == "name" || title == "title" {
		return Skip
	}

	remarks := ""
	if len(cells) > 4 {
		remarks = strings.ToLower(cells[4])
	}

	for _, w := range eventTitleWords {
		if strings.Contains(title, w) {
			return Event
		}
	}
	for _, w := range eventRemarksWords {
		if strings.Contains(remarks, w) {
			return Event
		}
	}
	return Task
}
