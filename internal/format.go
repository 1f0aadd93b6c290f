package internal

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"redveil/pkg/types"
)

// scorePlaceholder replaces hidden or negative counts; rendering a literal
// zero would misrepresent them.
const scorePlaceholder = "•"

const timeLayout = "Jan 02 2006, 15:04:05 UTC"

// FormatScore pairs a raw count with its abbreviated label.
// Thresholds: >= 1,000,000 one decimal + "m"; >= 1,000 one decimal + "k";
// a trailing ".0" is dropped (1000 -> "1k", 1500 -> "1.5k").
func FormatScore(value int, hidden bool) types.Score {
	return types.Score{Value: value, Label: formatCount(value, hidden), Hidden: hidden}
}

func formatCount(value int, hidden bool) string {
	if hidden || value < 0 {
		return scorePlaceholder
	}
	switch {
	case value >= 1_000_000:
		return trimZero(fmt.Sprintf("%.1f", float64(value)/1_000_000)) + "m"
	case value >= 1_000:
		return trimZero(fmt.Sprintf("%.1f", float64(value)/1_000)) + "k"
	default:
		return strconv.Itoa(value)
	}
}

func trimZero(s string) string {
	return strings.TrimSuffix(s, ".0")
}

// FormatTime pairs a unix instant (upstream sends fractional seconds) with
// its formatted UTC string.
func FormatTime(unixSeconds float64) types.Timestamp {
	unix := int64(unixSeconds)
	return types.Timestamp{
		Unix:      unix,
		Formatted: time.Unix(unix, 0).UTC().Format(timeLayout),
	}
}
