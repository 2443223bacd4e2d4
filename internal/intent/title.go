package intent

import (
	"strings"
	"unicode/utf8"

	"github.com/LinkovichChomofski/calendaragent/internal/temporal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	lower = cases.Lower(language.English)
	upper = cases.Upper(language.English)

	titlePrefixes = []string{"Team Sync:", "1:1:", "Review:", "Planning:"}
)

// NormalizeTitle capitalizes each word and, for meetings, adds a kind prefix
// derived from the title and the number of participants.
func NormalizeTitle(title, eventType string, participants int) string {
	words := strings.Fields(title)
	if len(words) == 0 {
		return ""
	}
	for i, w := range words {
		words[i] = capitalize(w)
	}
	title = strings.Join(words, " ")

	if !strings.EqualFold(eventType, temporal.EventTypeMeeting) {
		return title
	}
	for _, p := range titlePrefixes {
		if strings.Contains(title, p) {
			return title
		}
	}
	l := lower.String(title)
	switch {
	case strings.Contains(l, "team") && strings.Contains(l, "sync"):
		return "Team Sync: " + title
	case participants == 1:
		return "1:1: " + title
	case strings.Contains(l, "review"):
		return "Review: " + title
	case strings.Contains(l, "plan"):
		return "Planning: " + title
	}
	return title
}

func capitalize(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if r == utf8.RuneError {
		return w
	}
	return upper.String(w[:size]) + lower.String(w[size:])
}
