package catalog

import (
	"fmt"
	"time"
)

// DateFormat is the layout for calendar dates in queries and API parameters.
const DateFormat = "2006-01-02"

// TimeSpan is an inclusive range of calendar days in UTC.
type TimeSpan struct {
	Start time.Time
	End   time.Time
}

// NewTimeSpan truncates both ends to UTC midnight and checks start <= end.
func NewTimeSpan(start, end time.Time) (TimeSpan, error) {
	s := truncateDay(start)
	e := truncateDay(end)
	if e.Before(s) {
		return TimeSpan{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidTimeSpan, s.Format(DateFormat), e.Format(DateFormat))
	}
	return TimeSpan{Start: s, End: e}, nil
}

// ParseTimeSpan parses two YYYY-MM-DD dates.
func ParseTimeSpan(start, end string) (TimeSpan, error) {
	s, err := time.Parse(DateFormat, start)
	if err != nil {
		return TimeSpan{}, fmt.Errorf("%w: start date %q: %v", ErrInvalidTimeSpan, start, err)
	}
	e, err := time.Parse(DateFormat, end)
	if err != nil {
		return TimeSpan{}, fmt.Errorf("%w: end date %q: %v", ErrInvalidTimeSpan, end, err)
	}
	return NewTimeSpan(s, e)
}

// SingleDay returns a span covering one day.
func SingleDay(day time.Time) TimeSpan {
	d := truncateDay(day)
	return TimeSpan{Start: d, End: d}
}

// Days returns the number of calendar days in the span, counting both ends.
func (s TimeSpan) Days() int {
	return int(s.End.Sub(s.Start).Hours()/24) + 1
}

// Chunks splits the span into consecutive sub-spans of at most days calendar
// days each. Chunks do not overlap and together cover every day of the span.
func (s TimeSpan) Chunks(days int) []TimeSpan {
	if days <= 0 {
		return []TimeSpan{s}
	}

	var chunks []TimeSpan
	for start := s.Start; !start.After(s.End); start = start.AddDate(0, 0, days) {
		end := start.AddDate(0, 0, days-1)
		if end.After(s.End) {
			end = s.End
		}
		chunks = append(chunks, TimeSpan{Start: start, End: end})
	}
	return chunks
}

// String renders the span as an ISO 8601 date interval.
func (s TimeSpan) String() string {
	return s.Start.Format(DateFormat) + "/" + s.End.Format(DateFormat)
}

// StartOfDay returns the first instant of the span, e.g. 2025-04-06T00:00:00Z.
func (s TimeSpan) StartOfDay() string {
	return s.Start.Format(DateFormat) + "T00:00:00Z"
}

// EndOfDay returns the last second of the span, e.g. 2025-04-08T23:59:59Z.
func (s TimeSpan) EndOfDay() string {
	return s.End.Format(DateFormat) + "T23:59:59Z"
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
