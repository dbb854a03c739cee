package timeutil

import "time"

const DateLayout = "2006-01-02"

// Clock returns the current time. Components take one so tests can pin "now".
type Clock func() time.Time

func System() Clock {
	return time.Now
}

func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}

// FloorMicro drops everything below microsecond precision. It never rounds up.
func FloorMicro(t time.Time) time.Time {
	return time.UnixMicro(t.UnixMicro()).In(t.Location())
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
