package naming

import (
	"regexp"
	"strings"
)

var repeatedDots = regexp.MustCompile(`\.{2,}`)

// Normalize tidies a rendered label: when collapseFiller is set, runs of two
// or more ".filler" segments become one; runs of dots become a single dot;
// leading and trailing dots are removed. The steps repeat until the label is
// stable, so Normalize(Normalize(x)) == Normalize(x). The boolean reports
// whether the label differs from raw.
func Normalize(raw, filler string, collapseFiller bool) (string, bool) {
	var fillerRuns *regexp.Regexp
	if collapseFiller && filler != "" {
		fillerRuns = regexp.MustCompile(`(\.` + regexp.QuoteMeta(filler) + `){2,}`)
	}

	label := raw
	for {
		next := label
		if fillerRuns != nil {
			next = fillerRuns.ReplaceAllLiteralString(next, "."+filler)
		}
		next = repeatedDots.ReplaceAllLiteralString(next, ".")
		next = strings.Trim(next, ".")
		if next == label {
			break
		}
		label = next
	}
	return label, label != raw
}
