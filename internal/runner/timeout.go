package runner

import (
	"math"
	"time"

	"github.com/spf13/cast"
)

// NormalizeTimeout converts a loosely typed timeout into a duration.
//
// A time.Duration is used as is. Any other value is read as a number of
// seconds: numbers of any kind or numeric strings. Values that are
// nil, not numeric, NaN, or not positive yield 0, meaning no timeout.
func NormalizeTimeout(v any) time.Duration {
	switch t := v.(type) {
	case nil:
		return 0
	case time.Duration:
		return max(t, 0)
	}

	secs, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(secs) || secs <= 0 {
		return 0
	}
	if secs >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs * float64(time.Second))
}
