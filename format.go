package clustertime

import (
	"fmt"
	"time"
)

// FormatOffset renders a signed duration the way this package's log lines
// report offsets, skews, and interval widths: a sign, then the magnitude in
// the largest unit that does not exceed it (whole nanoseconds below 1µs,
// otherwise µs, ms or s with three decimals), e.g. "+123.456ms", "-2.500s",
// "+450ns".
func FormatOffset(d time.Duration) string {
	sign := "+"
	abs := d
	if d < 0 {
		sign = "-"
		abs = -d
	}

	switch {
	case abs < time.Microsecond:
		return fmt.Sprintf("%s%dns", sign, abs.Nanoseconds())
	case abs < time.Millisecond:
		return fmt.Sprintf("%s%.3fµs", sign, float64(abs.Nanoseconds())/float64(time.Microsecond))
	case abs < time.Second:
		return fmt.Sprintf("%s%.3fms", sign, float64(abs.Nanoseconds())/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%s%.3fs", sign, abs.Seconds())
	}
}
