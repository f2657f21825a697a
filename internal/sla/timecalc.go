package sla

import (
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/sla-monitor/internal/config"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util"
)

// timeFormats are tried in order when parsing remote timestamps.
// Formats without a zone are interpreted as UTC.
var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses a timestamp string in any of the accepted formats.
func ParseTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, apperrors.NewParseError(value, fmt.Errorf("empty timestamp"))
	}
	for _, layout := range timeFormats {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, apperrors.NewParseError(value, fmt.Errorf("unrecognized timestamp format"))
}

// BusinessCalendar counts elapsed minutes inside a business-hours window.
// A minute counts when its starting instant falls on a configured weekday,
// within [startHour, endHour), and not on a holiday, all evaluated in the
// calendar's timezone.
type BusinessCalendar struct {
	startHour int
	endHour   int
	weekdays  map[time.Weekday]bool
	location  *time.Location
	holidays  map[string]bool
}

// Full names and three-letter abbreviations are both accepted.
var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"sun":       time.Sunday,
	"monday":    time.Monday,
	"mon":       time.Monday,
	"tuesday":   time.Tuesday,
	"tue":       time.Tuesday,
	"wednesday": time.Wednesday,
	"wed":       time.Wednesday,
	"thursday":  time.Thursday,
	"thu":       time.Thursday,
	"friday":    time.Friday,
	"fri":       time.Friday,
	"saturday":  time.Saturday,
	"sat":       time.Saturday,
}

// NewBusinessCalendar builds a calendar from tuning configuration.
func NewBusinessCalendar(cfg config.BusinessHoursConfig) (*BusinessCalendar, error) {
	if cfg.StartHour < 0 || cfg.EndHour > 24 || cfg.StartHour >= cfg.EndHour {
		return nil, fmt.Errorf("invalid business hours window %d-%d", cfg.StartHour, cfg.EndHour)
	}
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	weekdays := make(map[time.Weekday]bool, len(cfg.Weekdays))
	for _, name := range cfg.Weekdays {
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		weekdays[day] = true
	}
	holidays := make(map[string]bool, len(cfg.Holidays))
	for _, h := range cfg.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return nil, fmt.Errorf("invalid holiday date %q: %w", h, err)
		}
		holidays[h] = true
	}
	return &BusinessCalendar{
		startHour: cfg.StartHour,
		endHour:   cfg.EndHour,
		weekdays:  weekdays,
		location:  location,
		holidays:  holidays,
	}, nil
}

// IsBusinessTime reports whether the instant falls inside business hours.
func (c *BusinessCalendar) IsBusinessTime(at time.Time) bool {
	local := at.In(c.location)
	if !c.weekdays[local.Weekday()] {
		return false
	}
	if local.Hour() < c.startHour || local.Hour() >= c.endHour {
		return false
	}
	return !c.holidays[local.Format("2006-01-02")]
}

// InWindowHours reports whether the instant's local hour falls inside the
// business window, ignoring weekday and holiday rules. The end hour is
// inclusive here: the window only truly closes once that hour has passed.
func (c *BusinessCalendar) InWindowHours(at time.Time) bool {
	hour := at.In(c.location).Hour()
	return hour >= c.startHour && hour <= c.endHour
}

// BusinessMinutes counts whole business minutes between start and end.
// Returns 0 when start is not before end.
func (c *BusinessCalendar) BusinessMinutes(start, end time.Time) int {
	startLocal := start.In(c.location).Truncate(time.Minute)
	endLocal := end.In(c.location)
	if !startLocal.Before(endLocal) {
		return 0
	}

	total := 0
	day := time.Date(startLocal.Year(), startLocal.Month(), startLocal.Day(), 0, 0, 0, 0, c.location)
	for day.Before(endLocal) {
		if c.weekdays[day.Weekday()] && !c.holidays[day.Format("2006-01-02")] {
			windowStart := day.Add(time.Duration(c.startHour) * time.Hour)
			windowEnd := day.Add(time.Duration(c.endHour) * time.Hour)
			from := maxTime(windowStart, startLocal)
			until := minTime(windowEnd, endLocal)
			if from.Before(until) {
				total += minuteMarks(from, until)
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return total
}

// minuteMarks counts minute-aligned instants in [from, until). Both bounds
// follow from minute-aligned inputs except until, which may carry seconds.
func minuteMarks(from, until time.Time) int {
	span := until.Sub(from)
	marks := int(span / time.Minute)
	if span%time.Minute > 0 {
		marks++
	}
	return marks
}

// AddBusinessMinutes returns the instant at which the given number of whole
// business minutes has elapsed after start. For a business-hours policy this
// is the exact instant a target of that many minutes runs out.
func (c *BusinessCalendar) AddBusinessMinutes(start time.Time, minutes int) time.Time {
	cursor := start.In(c.location).Truncate(time.Minute)
	if minutes <= 0 {
		return cursor
	}

	remaining := minutes
	day := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), 0, 0, 0, 0, c.location)
	// Ten years of days bounds the walk for degenerate calendars.
	for i := 0; i < 3660; i++ {
		if c.weekdays[day.Weekday()] && !c.holidays[day.Format("2006-01-02")] {
			windowStart := day.Add(time.Duration(c.startHour) * time.Hour)
			windowEnd := day.Add(time.Duration(c.endHour) * time.Hour)
			from := maxTime(windowStart, cursor)
			if from.Before(windowEnd) {
				available := int(windowEnd.Sub(from) / time.Minute)
				if remaining <= available {
					return from.Add(time.Duration(remaining) * time.Minute)
				}
				remaining -= available
			}
		}
		day = day.AddDate(0, 0, 1)
		cursor = day
	}
	return start.Add(time.Duration(minutes) * time.Minute)
}

// Remaining reports the time left before the target is exhausted. The result
// is negative once the target has been exceeded; callers clamp for display.
func (c *BusinessCalendar) Remaining(createdAt, now time.Time, target time.Duration, businessOnly bool) time.Duration {
	if !businessOnly {
		return target - now.Sub(createdAt)
	}
	elapsed := time.Duration(c.BusinessMinutes(createdAt, now)) * time.Minute
	return target - elapsed
}

// IsBreached reports whether the target has been fully consumed.
func (c *BusinessCalendar) IsBreached(createdAt, now time.Time, target time.Duration, businessOnly bool) bool {
	return c.Remaining(createdAt, now, target, businessOnly) <= 0
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
