package domain

import "time"

// TimeRange represents a time period with start and end.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewTimeRange creates a time range.
func NewTimeRange(start, end time.Time) TimeRange {
	return TimeRange{Start: start, End: end}
}

// Overlaps checks if two time ranges overlap.
func (t TimeRange) Overlaps(other TimeRange) bool {
	return t.Start.Before(other.End) && other.Start.Before(t.End)
}

// Contains checks if a time falls within the range.
func (t TimeRange) Contains(at time.Time) bool {
	return !at.Before(t.Start) && at.Before(t.End)
}

// Duration returns the duration of the time range.
func (t TimeRange) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

// IsZero returns true for the empty range.
func (t TimeRange) IsZero() bool {
	return t.Start.IsZero() && t.End.IsZero()
}
