// Package schedule parses job recurrence specs and computes the next run time.
//
// A spec is a standard five-field cron expression ("0 7 * * 1-5") or a
// descriptor ("@daily", "@every 6h").
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"feedcast/internal/apperr"
)

// MinInterval is the shortest allowed gap between two runs of a job.
const MinInterval = 15 * time.Minute

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var ErrInvalid = apperr.Validation("jobs.invalidSchedule")

func Parse(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, ErrInvalid
	}
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, ErrInvalid.Key, err)
	}
	return sched, nil
}

// Validate rejects unparsable specs, specs that never fire and specs whose
// firings over a year ever come closer than MinInterval.
func Validate(spec string) error {
	sched, err := Parse(spec)
	if err != nil {
		return err
	}
	gap, ok := minGap(sched, validateFrom, validateFrom.AddDate(1, 0, 0))
	if !ok {
		return apperr.Wrap(apperr.KindValidation, ErrInvalid.Key, fmt.Errorf("%q never fires", spec))
	}
	if gap < MinInterval {
		return apperr.Wrap(apperr.KindValidation, "jobs.scheduleTooFrequent",
			fmt.Errorf("runs %s apart, minimum is %s", gap, MinInterval))
	}
	return nil
}

// validateFrom starts a leap year so Feb 29 firings are seen.
var validateFrom = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// maxFirings bounds the walk; a schedule allowed by MinInterval fires at most
// 4 times an hour.
const maxFirings = 366*24*4 + 1

// minGap returns the smallest gap between consecutive firings in [from, until].
// A schedule firing at most once in the window has no gap and counts as valid.
func minGap(sched cron.Schedule, from, until time.Time) (time.Duration, bool) {
	prev := sched.Next(from)
	if prev.IsZero() {
		return 0, false
	}
	gap := time.Duration(1<<63 - 1)
	for i := 0; i < maxFirings; i++ {
		next := sched.Next(prev)
		if next.IsZero() || next.After(until) {
			break
		}
		if d := next.Sub(prev); d < gap {
			gap = d
			if gap < MinInterval {
				break
			}
		}
		prev = next
	}
	return gap, true
}

// Next returns the first activation strictly after from.
func Next(spec string, from time.Time) (time.Time, error) {
	sched, err := Parse(spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}
