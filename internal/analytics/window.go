package analytics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidWindow is returned for window specifiers that cannot be parsed.
var ErrInvalidWindow = errors.New("invalid window")

const (
	maxHourlyUnits = 168
	maxDailyUnits  = 366

	hourlyLabelLayout = "15:04"
	dailyLabelLayout  = "Jan 02"
)

// Granularity is the width of one bucket.
type Granularity int

const (
	Hourly Granularity = iota
	Daily
)

func (g Granularity) String() string {
	if g == Hourly {
		return "hour"
	}
	return "day"
}

// Window is a number of calendar units ending at "now".
type Window struct {
	Units       int
	Granularity Granularity
}

// Hours returns an hourly window.
func Hours(n int) Window { return Window{Units: n, Granularity: Hourly} }

// Days returns a daily window.
func Days(n int) Window { return Window{Units: n, Granularity: Daily} }

func (w Window) String() string {
	if w.Granularity == Hourly {
		return fmt.Sprintf("%dh", w.Units)
	}
	return fmt.Sprintf("%dd", w.Units)
}

// ParseWindow accepts "24h", "7d", "30d", "7days", "1day" or a bare day count.
func ParseWindow(raw string) (Window, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return Window{}, fmt.Errorf("%w: empty", ErrInvalidWindow)
	}

	var (
		digits string
		w      Window
	)
	switch {
	case strings.HasSuffix(s, "days"):
		digits, w.Granularity = strings.TrimSuffix(s, "days"), Daily
	case strings.HasSuffix(s, "day"):
		digits, w.Granularity = strings.TrimSuffix(s, "day"), Daily
	case strings.HasSuffix(s, "d"):
		digits, w.Granularity = strings.TrimSuffix(s, "d"), Daily
	case strings.HasSuffix(s, "h"):
		digits, w.Granularity = strings.TrimSuffix(s, "h"), Hourly
	default:
		digits, w.Granularity = s, Daily
	}

	n, err := strconv.Atoi(digits)
	if err != nil {
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidWindow, raw)
	}
	limit := maxDailyUnits
	if w.Granularity == Hourly {
		limit = maxHourlyUnits
	}
	if n <= 0 || n > limit {
		return Window{}, fmt.Errorf("%w: %q must be between 1 and %d %ss", ErrInvalidWindow, raw, limit, w.Granularity)
	}
	w.Units = n
	return w, nil
}

// Timeline is the ordered, gap-free set of bucket start instants for a window.
// Bucket identity is the calendar-truncated instant, so records from another
// day or year never share a bucket with a same-labelled one.
type Timeline struct {
	window Window
	loc    *time.Location
	starts []time.Time
	index  map[int64]int
}

// NewTimeline generates window.Units buckets walking backward from now,
// returned oldest to newest. A nil loc means UTC.
func NewTimeline(window Window, now time.Time, loc *time.Location) *Timeline {
	if loc == nil {
		loc = time.UTC
	}
	n := window.Units
	if n < 0 {
		n = 0
	}
	t := &Timeline{
		window: window,
		loc:    loc,
		starts: make([]time.Time, 0, n),
		index:  make(map[int64]int, n),
	}

	local := now.In(loc)
	for i := n - 1; i >= 0; i-- {
		var at time.Time
		if window.Granularity == Hourly {
			at = local.Add(-time.Duration(i) * time.Hour)
		} else {
			at = local.AddDate(0, 0, -i)
		}
		start := t.truncate(at)
		t.index[start.Unix()] = len(t.starts)
		t.starts = append(t.starts, start)
	}
	return t
}

// Len returns the number of buckets.
func (t *Timeline) Len() int { return len(t.starts) }

// Window returns the window the timeline was built for.
func (t *Timeline) Window() Window { return t.window }

// Start returns the start instant of bucket i.
func (t *Timeline) Start(i int) time.Time { return t.starts[i] }

// Label returns the display label of bucket i ("15:00" or "Jan 02").
func (t *Timeline) Label(i int) string {
	layout := dailyLabelLayout
	if t.window.Granularity == Hourly {
		layout = hourlyLabelLayout
	}
	return t.starts[i].In(t.loc).Format(layout)
}

// Index returns the bucket holding ts, if any.
func (t *Timeline) Index(ts time.Time) (int, bool) {
	i, ok := t.index[t.truncate(ts).Unix()]
	return i, ok
}

func (t *Timeline) truncate(ts time.Time) time.Time {
	local := ts.In(t.loc)
	if t.window.Granularity == Hourly {
		// Subtract the wall-clock remainder rather than rebuilding the date so
		// both hours of a DST fall-back stay distinct.
		rem := time.Duration(local.Minute())*time.Minute +
			time.Duration(local.Second())*time.Second +
			time.Duration(local.Nanosecond())
		return local.Add(-rem)
	}
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.loc)
}
