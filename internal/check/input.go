package check

import (
	"fmt"
	"time"

	"github.com/robert-malhotra/imagery-check/internal/catalog"
)

// Window resolves the search window of a run. An empty end defaults to
// endOffsetDays before now; an empty start to durationDays before end.
// Dates are YYYY-MM-DD.
func Window(start, end string, durationDays, endOffsetDays int, now time.Time) (catalog.TimeSpan, error) {
	if durationDays < 0 {
		return catalog.TimeSpan{}, fmt.Errorf("%w: duration_days must not be negative, got %d", catalog.ErrInvalidTimeSpan, durationDays)
	}

	e := now.UTC().AddDate(0, 0, -endOffsetDays)
	if end != "" {
		t, err := time.Parse(catalog.DateFormat, end)
		if err != nil {
			return catalog.TimeSpan{}, fmt.Errorf("%w: end date %q, expected YYYY-MM-DD", catalog.ErrInvalidTimeSpan, end)
		}
		e = t
	}

	s := e.AddDate(0, 0, -durationDays)
	if start != "" {
		t, err := time.Parse(catalog.DateFormat, start)
		if err != nil {
			return catalog.TimeSpan{}, fmt.Errorf("%w: start date %q, expected YYYY-MM-DD", catalog.ErrInvalidTimeSpan, start)
		}
		s = t
	}

	return catalog.NewTimeSpan(s, e)
}
