package tokenauth

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var lifetimePattern = regexp.MustCompile(`^(-?(?:\d+)?\.?\d+) *([a-z]+)?$`)

var lifetimeUnits = map[string]time.Duration{
	"ms": time.Millisecond, "msec": time.Millisecond, "msecs": time.Millisecond,
	"millisecond": time.Millisecond, "milliseconds": time.Millisecond,
	"s": time.Second, "sec": time.Second, "secs": time.Second,
	"second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute,
	"minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour,
	"hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"w": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
	"y": yearDuration, "yr": yearDuration, "yrs": yearDuration,
	"year": yearDuration, "years": yearDuration,
}

const yearDuration = time.Duration(365.25 * 24 * float64(time.Hour))

// ParseLifetime parses token lifetime strings such as "7d", "12h", "90 minutes"
// or "1.5h". A number without a unit is read as milliseconds. The result is
// truncated to whole seconds because token timestamps have second precision.
func ParseLifetime(s string) (time.Duration, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	if raw == "" {
		return 0, fmt.Errorf("empty lifetime")
	}
	m := lifetimePattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("invalid lifetime %q", s)
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid lifetime %q: %w", s, err)
	}
	unit := time.Millisecond
	if m[2] != "" {
		u, ok := lifetimeUnits[m[2]]
		if !ok {
			return 0, fmt.Errorf("invalid lifetime unit %q", m[2])
		}
		unit = u
	}
	total := n * float64(unit)
	if total <= 0 {
		return 0, fmt.Errorf("lifetime must be positive, got %q", s)
	}
	if total > math.MaxInt64 {
		return 0, fmt.Errorf("lifetime %q overflows", s)
	}
	return time.Duration(total).Truncate(time.Second), nil
}
