package playlist

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Patterns run against folded (lower-case, accent-free) text.
var (
	seasonEpisodeMarkers = []*regexp.Regexp{
		regexp.MustCompile(`\bs\d{1,3}(\s*e\d{1,4})?\b`),
		regexp.MustCompile(`\bt\d{1,3}\s*e\d{1,4}\b`),
		regexp.MustCompile(`\bt\d{1,3}\s*\|\s*ep\s*\d{1,4}\b`),
		regexp.MustCompile(`\btemporada\b`),
		regexp.MustCompile(`\bepisodio\b`),
		regexp.MustCompile(`\bep\.`),
	}
	yearInParens  = regexp.MustCompile(`\(\d{4}\)`)
	anyParenthese = regexp.MustCompile(`\([^)]*\)`)
)

var (
	seriesGroups = []string{"serie", "show"}
	movieGroups  = []string{"filme", "movie", "cinema"}
	tvGroups     = []string{"tv", "channel", "canal", "ao vivo", "live"}
)

// Classify infers the content type of an entry from its title and group.
// Rules are evaluated in order and the first match wins: series markers are
// checked before movie markers since episode titles often carry a year.
func Classify(title, groupTitle string) ContentType {
	t := fold(title)
	g := fold(groupTitle)

	if hasSeasonEpisodeMarker(t) || hasSeasonEpisodeMarker(g) || containsAny(g, seriesGroups) {
		return TypeSeries
	}

	if containsAny(g, movieGroups) || yearInParens.MatchString(t) || anyParenthese.MatchString(t) {
		return TypeMovie
	}

	if containsAny(g, tvGroups) {
		return TypeTV
	}

	return TypeUnknown
}

func hasSeasonEpisodeMarker(s string) bool {
	for _, re := range seasonEpisodeMarkers {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// fold lower-cases s and strips diacritics so "Episódio" matches "episodio".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}
