package scrape

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ageRe = regexp.MustCompile(`^(\d+)([dhm])$`)

// ParseAge parses an age-cutoff duration like "7d", "24h", or "30m".
func ParseAge(s string) (time.Duration, error) {
	m := ageRe.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q: use a form like 7d, 24h, or 30m", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	switch m[2] {
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	default:
		return time.Duration(n) * time.Minute, nil
	}
}
