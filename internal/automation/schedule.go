package automation

import (
	"fmt"
	"strings"
	"time"

	"whatsapp-flowbot/internal/logger"

	"go.uber.org/zap"
)

// WorkingDay is the opening window of one weekday. Times are "HH:MM" in the workspace
// time zone; an end at or before the start spans midnight.
type WorkingDay struct {
	Day       string `json:"day"`
	Open      bool   `json:"open"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type WorkingHoursSchedule struct {
	Days        []WorkingDay
	HolidayMode bool
}

// OutOfHours reports whether t falls outside every open window. An empty schedule is
// never out of hours unless holiday mode is on, so an enabled out_of_hours rule stays
// silent until working hours are configured.
func (s WorkingHoursSchedule) OutOfHours(t time.Time) bool {
	if s.HolidayMode {
		return true
	}
	if len(s.Days) == 0 {
		return false
	}

	minute := t.Hour()*60 + t.Minute()
	today := t.Weekday()
	yesterday := (today + 6) % 7

	for _, d := range s.Days {
		if !d.Open {
			continue
		}
		day, ok := parseWeekday(d.Day)
		if !ok {
			logger.Warn("unknown working day", zap.String("day", d.Day))
			continue
		}
		start, end, err := d.window()
		if err != nil {
			logger.Warn("invalid working hours", zap.String("day", d.Day), zap.Error(err))
			continue
		}
		overnight := end <= start
		switch {
		case day == today && !overnight && minute >= start && minute < end:
			return false
		case day == today && overnight && minute >= start:
			return false
		case day == yesterday && overnight && minute < end:
			return false
		}
	}
	return true
}

func (d WorkingDay) window() (start, end int, err error) {
	if start, err = parseClock(d.StartTime); err != nil {
		return 0, 0, err
	}
	if end, err = parseClock(d.EndTime); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// parseClock converts "HH:MM" to minutes after midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// parseWeekday accepts full or three-letter English day names in any case.
func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 3 {
		return 0, false
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, true
		}
	}
	return 0, false
}
