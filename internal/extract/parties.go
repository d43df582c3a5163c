package extract

import (
	"regexp"
	"strings"
	"unicode"
)

// Side classifies which side of the case a party appears on.
type Side string

const (
	SidePlaintiff Side = "plaintiff"
	SideDefendant Side = "defendant"
	SideUnknown   Side = "unknown"
)

// Party is a lawyer named in a record, keyed by bar registration number.
type Party struct {
	Name string
	OAB  string
	Side Side
}

// OABNumberRE matches the bar registration formats the gazette prints:
// "123456/RJ", "OAB/RJ-123456" and "RJ-123456".
var OABNumberRE = regexp.MustCompile(`(\d{1,6}/[A-Z]{2}|OAB/[A-Z]{2}-\d{1,6}|[A-Z]{2}-\d{1,6})`)

var (
	// respondentMarker splits plaintiff-side from defendant-side lawyers
	// in the common record layout.
	respondentMarker = " REQDO: "

	// versusRE is the fallback side separator: "(...)  X  ..." between
	// the two party lists.
	versusRE = regexp.MustCompile(`\)\s+X\s+`)

	invalidNameCharRE = regexp.MustCompile(`[^a-zA-ZÀ-ú\s\-']`)
)

// ExtractParties finds every bar number inside a record block and pairs it
// with the name printed immediately before it. Lawyers before the
// respondent marker argue for the plaintiff, lawyers after it for the
// defendant; without a marker the side stays unknown.
func ExtractParties(text string) []Party {
	oabs := OABNumberRE.FindAllString(text, -1)
	if len(oabs) == 0 {
		return nil
	}

	sep := strings.Index(text, respondentMarker)
	if sep < 0 {
		if m := versusRE.FindStringIndex(text); m != nil {
			sep = m[0]
		}
	}

	parties := make([]Party, 0, len(oabs))
	for _, oab := range oabs {
		idx := strings.Index(text, oab)
		prefix := text[:idx]

		// The name is whatever sits between the last label separator and
		// the bar number. Colon-delimited labels ("Adv: JOHN DOE") win
		// over sentence ends.
		name := prefix
		if c := strings.LastIndex(prefix, ":"); c >= 0 {
			name = prefix[c+1:]
		} else if p := strings.LastIndex(prefix, "."); p >= 0 {
			name = prefix[p+1:]
		}

		side := SideUnknown
		if sep >= 0 {
			if idx < sep {
				side = SidePlaintiff
			} else {
				side = SideDefendant
			}
		}

		parties = append(parties, Party{
			Name: CleanPersonName(name),
			OAB:  strings.Replace(oab, "OAB/", "", 1),
			Side: side,
		})
	}
	return parties
}

// CleanPersonName normalizes a name fragment cut from gazette text:
// whitespace collapsed, title-cased, and stripped of anything that is not
// a letter, space, hyphen or apostrophe.
func CleanPersonName(raw string) string {
	cased := titleCase(strings.Join(strings.Fields(raw), " "))
	cleaned := invalidNameCharRE.ReplaceAllString(cased, "")
	return strings.Join(strings.Fields(cleaned), " ")
}

func titleCase(s string) string {
	words := strings.Split(strings.ToLower(s), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
