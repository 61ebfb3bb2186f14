package filter

import (
	"fmt"
	"strconv"
	"strings"
)

var multipliers = map[string]int64{
	"":  1,
	"B": 1,
	"K": 1 << 10,
	"M": 1 << 20,
	"G": 1 << 30,
	"T": 1 << 40,
	"P": 1 << 50,
}

// ParseSize parses a human-readable size into bytes. It accepts plain
// integers, single-letter suffixes (100K, 1.5G), two-letter suffixes (10GB,
// 512MiB) and the spaced lower-case form copy-tool summaries print
// ("1.25 m"). Multipliers are powers of 1024.
func ParseSize(s string) (int64, error) {
	orig := s
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	upper := strings.ToUpper(s)
	upper = strings.TrimSuffix(upper, "IB")
	if len(upper) > 1 && strings.HasSuffix(upper, "B") {
		if _, ok := multipliers[upper[len(upper)-2:len(upper)-1]]; ok && !isDigit(upper[len(upper)-2]) {
			upper = upper[:len(upper)-1]
		}
	}

	numStr, suffix := upper, ""
	if last := upper[len(upper)-1]; !isDigit(last) && last != '.' {
		numStr, suffix = upper[:len(upper)-1], string(last)
	}
	mult, ok := multipliers[suffix]
	if !ok || numStr == "" {
		return 0, fmt.Errorf("invalid size: %q", orig)
	}

	if n, err := strconv.ParseInt(numStr, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative size: %q", orig)
		}
		return n * mult, nil
	}

	f, err := strconv.ParseFloat(numStr, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid size: %q", orig)
	}
	return int64(f * float64(mult)), nil
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }
