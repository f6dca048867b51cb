package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/robfig/cron/v3"
)

// ErrInvalidRecurrence is returned for recurrences that cannot be turned into a trigger
var ErrInvalidRecurrence = errors.New("invalid recurrence")

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// RecurrenceSpec converts a campaign recurrence into a cron expression evaluated
// in timezone (empty = the scheduler's zone).
//
//	daily   -> "M H * * *"
//	weekly  -> "M H * * DOW"  (dayOfWeek 0-6, Sunday = 0)
//	monthly -> "M H DOM * *"  (dayOfMonth 1-31)
func RecurrenceSpec(r models.Recurring, timezone string) (string, error) {
	if !r.Enabled {
		return "", fmt.Errorf("%w: recurrence is disabled", ErrInvalidRecurrence)
	}
	at, err := time.Parse("15:04", r.Time)
	if err != nil {
		return "", fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidRecurrence, r.Time)
	}

	var spec string
	switch r.Frequency {
	case models.FrequencyDaily:
		spec = fmt.Sprintf("%d %d * * *", at.Minute(), at.Hour())
	case models.FrequencyWeekly:
		if r.DayOfWeek == nil || *r.DayOfWeek < 0 || *r.DayOfWeek > 6 {
			return "", fmt.Errorf("%w: weekly recurrence needs dayOfWeek 0-6", ErrInvalidRecurrence)
		}
		spec = fmt.Sprintf("%d %d * * %d", at.Minute(), at.Hour(), *r.DayOfWeek)
	case models.FrequencyMonthly:
		if r.DayOfMonth == nil || *r.DayOfMonth < 1 || *r.DayOfMonth > 31 {
			return "", fmt.Errorf("%w: monthly recurrence needs dayOfMonth 1-31", ErrInvalidRecurrence)
		}
		spec = fmt.Sprintf("%d %d %d * *", at.Minute(), at.Hour(), *r.DayOfMonth)
	default:
		return "", fmt.Errorf("%w: unknown frequency %q", ErrInvalidRecurrence, r.Frequency)
	}

	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return "", fmt.Errorf("%w: unknown timezone %q", ErrInvalidRecurrence, timezone)
		}
		spec = "CRON_TZ=" + timezone + " " + spec
	}
	if _, err := specParser.Parse(spec); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
	}
	return spec, nil
}

// NextRun returns the first activation of spec after from
func NextRun(spec string, from time.Time) (time.Time, error) {
	sched, err := specParser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
	}
	return sched.Next(from), nil
}
