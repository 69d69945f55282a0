package types

import (
	"strconv"
	"strings"
)

// ParseTimeLimit parses a duration string into seconds.
//
// Supported formats:
//   - DD-hh:mm:ss
//   - hh:mm:ss (days default 0; shorter forms pad left, so "5:00" is five
//     minutes and "90" is ninety seconds)
//
// Returns 0 for missing or invalid values: an unparseable limit means the
// limit is disabled, never an ingest error.
func ParseTimeLimit(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	var days int64
	rest := s
	if i := strings.Index(s, "-"); i >= 0 {
		d, err := strconv.ParseInt(strings.TrimSpace(s[:i]), 10, 64)
		if err != nil {
			return 0
		}
		days = d
		rest = s[i+1:]
	}
	fields := strings.Split(rest, ":")
	parts := make([]int64, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return 0
		}
		parts = append(parts, n)
	}
	for len(parts) < 3 {
		parts = append([]int64{0}, parts...)
	}
	// extra leading fields beyond hh:mm:ss are ignored
	hh, mm, ss := parts[len(parts)-3], parts[len(parts)-2], parts[len(parts)-1]
	return days*86400 + hh*3600 + mm*60 + ss
}
