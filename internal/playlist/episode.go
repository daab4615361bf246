package playlist

import (
	"regexp"
	"strconv"
	"strings"
)

// episodePatterns match a trailing season/episode suffix. Each pattern
// captures season and episode; a missing season capture means season 1.
// The match start is where the series name ends.
var episodePatterns = []struct {
	re            *regexp.Regexp
	season, epNum int
}{
	{regexp.MustCompile(`(?i)[\s\-–:]*\b[ST](\d{1,3})\s*E(\d{1,4})\b.*$`), 1, 2},
	{regexp.MustCompile(`(?i)[\s\-–:]*\bT(\d{1,3})\s*\|\s*EP\s*(\d{1,4})\b.*$`), 1, 2},
	{regexp.MustCompile(`(?i)\s*[\-–]\s*Epis[oó]dio\s*(\d{1,4})\s*$`), 0, 1},
}

// SeriesName strips the season/episode suffix from an episode title.
// Titles without a recognised suffix are their own series name.
func SeriesName(title string) string {
	trimmed := strings.TrimSpace(title)
	for _, p := range episodePatterns {
		loc := p.re.FindStringIndex(trimmed)
		if loc == nil {
			continue
		}
		if name := strings.TrimSpace(trimmed[:loc[0]]); name != "" {
			return name
		}
	}
	return trimmed
}

// EpisodeNumbers extracts season and episode numbers from an episode title.
// Either value defaults to 1 when it cannot be parsed.
func EpisodeNumbers(title string) (season, episode int) {
	season, episode = 1, 1
	for _, p := range episodePatterns {
		m := p.re.FindStringSubmatch(title)
		if m == nil {
			continue
		}
		if p.season > 0 {
			season = atoiOr(m[p.season], 1)
		}
		episode = atoiOr(m[p.epNum], 1)
		return season, episode
	}
	return season, episode
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
