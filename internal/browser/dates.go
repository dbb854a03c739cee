package browser

import (
	"strings"
	"time"

	appErr "github.com/xxxsen/postvec/internal/pkg/errors"
	"github.com/xxxsen/postvec/internal/pkg/timeutil"
	"github.com/xxxsen/postvec/internal/vectorstore"
)

const (
	BucketToday = "today"
	BucketWeek  = "week"
	BucketMonth = "month"
	BucketYear  = "year"
)

// ResolveBucket turns a date bucket into [first day, tomorrow) relative to
// now. The empty bucket means no date filter.
func ResolveBucket(bucket string, now time.Time) (vectorstore.DateRange, error) {
	today := timeutil.StartOfDay(now)
	var start time.Time
	switch strings.ToLower(strings.TrimSpace(bucket)) {
	case "", "all":
		return vectorstore.DateRange{}, nil
	case BucketToday:
		start = today
	case BucketWeek:
		offset := (int(today.Weekday()) + 6) % 7
		start = today.AddDate(0, 0, -offset)
	case BucketMonth:
		start = today.AddDate(0, 0, 1-today.Day())
	case BucketYear:
		start = time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, today.Location())
	default:
		return vectorstore.DateRange{}, appErr.Invalid("unknown date filter %q", bucket)
	}
	return vectorstore.DateRange{
		Start:     start.Format(timeutil.DateLayout),
		EndBefore: today.AddDate(0, 0, 1).Format(timeutil.DateLayout),
	}, nil
}
