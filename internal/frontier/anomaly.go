package frontier

import (
	"net/url"
	"strings"
)

// TrapDetector guards registration against spider traps and runaway URL
// generation (calendar pages, self-referencing rewrites).
type TrapDetector struct {
	// MaxURLLength rejects URLs longer than this many bytes.
	MaxURLLength int
	// MaxSegmentRepeats rejects paths where the same segment repeats
	// consecutively this many times or more (e.g. /cal/cal/cal).
	MaxSegmentRepeats int
}

// DefaultTrapDetector returns the production thresholds.
func DefaultTrapDetector() TrapDetector {
	return TrapDetector{
		MaxURLLength:      2000,
		MaxSegmentRepeats: 3,
	}
}

// Suspicious reports whether the URL looks like a crawl trap and should
// not be registered.
func (d TrapDetector) Suspicious(rawURL string) bool {
	if len(rawURL) > d.MaxURLLength {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	repeats := 0
	last := ""
	for _, seg := range strings.Split(u.Path, "/") {
		if seg == "" {
			continue
		}
		if seg == last {
			repeats++
			if repeats >= d.MaxSegmentRepeats-1 {
				return true
			}
		} else {
			repeats = 0
		}
		last = seg
	}
	return false
}
