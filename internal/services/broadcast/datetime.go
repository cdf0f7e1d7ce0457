package broadcast

import (
	"errors"
	"regexp"
	"time"
)

// scheduleLayout is the only accepted schedule input: DD.MM.YYYY HH:MM,
// 24-hour clock, interpreted in the configured fixed UTC offset.
const scheduleLayout = "02.01.2006 15:04"

var scheduleRe = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4} \d{2}:\d{2}$`)

var (
	ErrBadScheduleFormat = errors.New("schedule input must match DD.MM.YYYY HH:MM")
	ErrBadScheduleDate   = errors.New("schedule input is not a valid date")
	ErrScheduleInPast    = errors.New("schedule time must be in the future")
)

// ParseScheduleAt validates and parses a schedule input string against now.
// The three failure modes are distinguished so the admin gets a specific
// re-prompt: format mismatch, unparseable date, or not strictly in the future.
func ParseScheduleAt(input string, loc *time.Location, now time.Time) (time.Time, error) {
	if !scheduleRe.MatchString(input) {
		return time.Time{}, ErrBadScheduleFormat
	}
	t, err := time.ParseInLocation(scheduleLayout, input, loc)
	if err != nil {
		return time.Time{}, ErrBadScheduleDate
	}
	if !t.After(now.In(loc)) {
		return time.Time{}, ErrScheduleInPast
	}
	return t, nil
}

// FormatScheduleAt renders a schedule time in the admin-facing input format.
func FormatScheduleAt(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(scheduleLayout)
}
