package testutil

import "time"

// Span is the wall-clock interval a run spent executing.
type Span struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether both spans were executing at the same moment.
func (s Span) Overlaps(o Span) bool {
	return s.Start.Before(o.End) && o.Start.Before(s.End)
}
