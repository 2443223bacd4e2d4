package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDuration  = regexp.MustCompile(`(?i)^PT(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?$`)
	unitDuration = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(hours?|hrs?|h|minutes?|mins?|m)\b`)
)

// ParseDuration accepts plain minutes ("45"), ISO-8601 ("PT1H30M") and
// phrases ("2 hours", "1 hour 15 minutes"). A phrase naming a unit without a
// usable number falls back to 60 minutes for hours and 30 for minutes.
func ParseDuration(s string) (time.Duration, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, false
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return positive(minutes(v))
	}

	if m := isoDuration.FindStringSubmatch(s); m != nil && (m[1] != "" || m[2] != "") {
		var d time.Duration
		if m[1] != "" {
			h, _ := strconv.ParseFloat(m[1], 64)
			d += minutes(h * 60)
		}
		if m[2] != "" {
			mm, _ := strconv.ParseFloat(m[2], 64)
			d += minutes(mm)
		}
		return positive(d)
	}

	if strings.Contains(s, "half") && strings.Contains(s, "hour") && !unitDuration.MatchString(s) {
		return 30 * time.Minute, true
	}

	var d time.Duration
	for _, m := range unitDuration.FindAllStringSubmatch(s, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if strings.HasPrefix(m[2], "h") {
			d += minutes(v * 60)
		} else {
			d += minutes(v)
		}
	}
	if d > 0 {
		return d, true
	}

	switch {
	case strings.Contains(s, "hour"):
		return meetingDuration, true
	case strings.Contains(s, "min"):
		return otherDuration, true
	}
	return 0, false
}

func minutes(v float64) time.Duration {
	return time.Duration(v * float64(time.Minute))
}

func positive(d time.Duration) (time.Duration, bool) {
	if d <= 0 {
		return 0, false
	}
	return d, true
}
