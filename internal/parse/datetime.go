// Package parse normalizes the date and time text found in spreadsheet
// cells into canonical ISO forms ("2006-01-02" and "15:04:05").
package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	reDayMonth = regexp.MustCompile(`^(\d{1,2})-([A-Za-z]{3})$`)
	reISODate  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	reUSDate   = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)

	reClockAMPM = regexp.MustCompile(`^(\d{1,2}):(\d{2})\s*([AaPp][Mm])$`)
	reClockHMS  = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})$`)
	reClockHM   = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	reBareHour  = regexp.MustCompile(`^(\d{1,2})$`)
)

var monthsByAbbr = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// Date converts a spreadsheet date cell into "YYYY-MM-DD". Accepted shapes,
// in priority order: "DD-MMM" (combined with year), "YYYY-MM-DD"
// (pass-through), and US "MM/DD/YYYY". Values that match a shape but name
// an impossible calendar date (e.g. "13/45/2025") are rejected. The second
// return is false when the text is unparseable; callers skip the row.
func Date(text string, year int) (string, bool) {
	s := strings.TrimSpace(text)

	if m := reDayMonth.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, ok := monthsByAbbr[strings.ToLower(m[2])]
		if !ok || !validDate(year, int(month), day) {
			return "", false
		}
		return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
	}

	if reISODate.MatchString(s) {
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return "", false
		}
		return s, true
	}

	if m := reUSDate.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		if !validDate(y, month, day) {
			return "", false
		}
		return fmt.Sprintf("%04d-%02d-%02d", y, month, day), true
	}

	return "", false
}

// Time converts a spreadsheet time cell into "HH:MM:SS". Accepted shapes:
// "H:MM AM/PM", bare "HH:MM", canonical "HH:MM:SS", and a range such as
// "4pm - 6pm" or "9-12:30 pm", from which only the start token is kept.
// For ranges, AM/PM is inferred from the substring "pm"/"am" appearing
// anywhere in the original text; "9-12:30 pm" therefore resolves the "9"
// as 21:00:00. That ambiguity is inherited from the source data and kept.
func Time(text string) (string, bool) {
	s := strings.TrimSpace(text)

	if m := reClockAMPM.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		if hour < 1 || hour > 12 || min > 59 {
			return "", false
		}
		if strings.EqualFold(m[3], "pm") {
			if hour != 12 {
				hour += 12
			}
		} else if hour == 12 {
			hour = 0
		}
		return fmt.Sprintf("%02d:%02d:00", hour, min), true
	}

	if m := reClockHMS.FindStringSubmatch(s); m != nil {
		return clockString(m[1], m[2], m[3])
	}

	if m := reClockHM.FindStringSubmatch(s); m != nil {
		return clockString(m[1], m[2], "00")
	}

	if strings.Contains(s, "-") {
		return startOfRange(s)
	}

	return "", false
}

// startOfRange extracts the token before the first "-" and reparses it,
// carrying over a meridiem found anywhere in the full text.
func startOfRange(s string) (string, bool) {
	token, _, _ := strings.Cut(s, "-")
	token = strings.TrimSpace(token)

	// The token may carry its own meridiem ("4pm"); strip it here, the
	// whole-text inference below puts it back.
	if lower := strings.ToLower(token); strings.HasSuffix(lower, "pm") || strings.HasSuffix(lower, "am") {
		token = strings.TrimSpace(token[:len(token)-2])
	}
	if reBareHour.MatchString(token) {
		token += ":00"
	}

	full := strings.ToLower(s)
	switch {
	case strings.Contains(full, "pm"):
		return Time(token + " PM")
	case strings.Contains(full, "am"):
		return Time(token + " AM")
	default:
		return Time(token)
	}
}

func clockString(h, m, sec string) (string, bool) {
	hour, _ := strconv.Atoi(h)
	min, _ := strconv.Atoi(m)
	s, _ := strconv.Atoi(sec)
	if hour > 23 || min > 59 || s > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d:%02d", hour, min, s), true
}

func validDate(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && int(t.Month()) == month && t.Day() == day
}
