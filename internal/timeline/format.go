package timeline

import (
	"fmt"
	"math"
)

// Style selects the output of FormatMinutes.
type Style int

const (
	// FormatShort renders "h:mm".
	FormatShort Style = iota
	// FormatLong renders "2 hours and 5 minutes".
	FormatLong
)

// FormatMinutes renders a minute count for display, rounding to the
// nearest whole minute. Negative values are prefixed with "-".
func FormatMinutes(m float64, style Style) string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = math.Abs(m)
	}

	total := int(math.Round(m))
	if total == 0 {
		sign = ""
	}
	h, mins := total/60, total%60

	if style == FormatShort {
		return fmt.Sprintf("%s%d:%02d", sign, h, mins)
	}

	var text string
	switch {
	case h == 0:
		text = plural(mins, "minute")
	case mins == 0:
		text = plural(h, "hour")
	default:
		text = plural(h, "hour") + " and " + plural(mins, "minute")
	}
	return sign + text
}

// Hours converts minutes to fractional hours, the unit labor is billed in.
func Hours(m float64) float64 {
	return m / 60
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
