package extract

import (
	"regexp"
	"strings"
)

var (
	whitespaceRE = regexp.MustCompile(`\s+`)

	// subjectsRE captures the subject list the gazette prints between the
	// "Assunto:" and "Origem:" labels.
	subjectsRE = regexp.MustCompile(`Assunto: [^:]* Origem:`)
)

// rtfControlWords are the stray RTF markers that survive the upstream PDF
// conversion. Order matters: longer words strip before their prefixes.
var rtfControlWords = []string{
	`\b0`,
	`\b`,
	`\ulnone`,
	`\ul`,
	`\i0`,
	`\i`,
	`\par \pard`,
}

// StripRTF removes leaked RTF control words from a text block.
func StripRTF(text string) string {
	for _, w := range rtfControlWords {
		text = strings.ReplaceAll(text, w, "")
	}
	return text
}

// ExtractSubjects returns the lowercased subject tags of a record block,
// or nil when the block carries no subject line.
func ExtractSubjects(text string) []string {
	flat := whitespaceRE.ReplaceAllString(strings.ReplaceAll(text, "\n", " "), " ")
	m := subjectsRE.FindString(flat)
	if m == "" {
		return nil
	}
	m = strings.TrimPrefix(m, "Assunto: ")
	m = strings.TrimSuffix(m, " Origem:")

	var subjects []string
	for _, s := range strings.Split(m, " / ") {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			subjects = append(subjects, s)
		}
	}
	return subjects
}
