package gazette

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// PageFooter is the official publication notice printed at the bottom of
// every gazette page; its absence means the converter handed us something
// that is not a gazette page.
const PageFooter = "Publicação Oficial do Tribunal de Justiça do Estado do Rio de Janeiro – Lei Federal nº 11.419/2006, art. 4º e Resolução TJ/OE nº 10/2008."

// ErrBadLayout means a page lacks the expected header/footer markers.
// The edition may simply not be fully published yet, so deliveries hitting
// this are retried rather than dropped.
var ErrBadLayout = errors.New("page is not in the expected gazette layout")

const layoutProbeWindow = 500

// headerPattern is interpolated with the current year: the masthead reads
// "Ano NN – nº NNN/YYYY".
const headerPattern = `Ano ([0-9]{1,2}) – nº ([0-9]{1,3})/%d`

// Normalizer validates page layout and rewrites page text so reassembly
// keeps per-line page attribution.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer builds a Normalizer using the wall clock.
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

func (n *Normalizer) headerRegexp() *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(headerPattern, n.now().Year()))
}

// CheckLayout verifies the masthead appears near the top of the page and
// the official footer near the bottom.
func (n *Normalizer) CheckLayout(content string) bool {
	head := content
	if len(head) > layoutProbeWindow {
		head = head[:layoutProbeWindow]
	}
	tail := content
	if len(tail) > layoutProbeWindow {
		tail = tail[len(tail)-layoutProbeWindow:]
	}
	return n.headerRegexp().MatchString(head) && strings.Contains(tail, PageFooter)
}

// PageMarker is the inline marker inserted before every line of page
// content, so the reassembled book can attribute each line to its
// originating page after pages are concatenated.
func PageMarker(page int) string {
	return fmt.Sprintf("\n[[page:%d]]", page)
}

// NormalizePage validates the page layout, strips the repeated page-number
// boilerplate and the footer, and marks every line with the page number.
// Returns ErrBadLayout when the structural markers are missing.
func (n *Normalizer) NormalizePage(content string, page int) (string, error) {
	if !n.CheckLayout(content) {
		return "", fmt.Errorf("page %d: %w", page, ErrBadLayout)
	}

	body := content
	if page > 1 {
		// Pages after the first repeat the page number as a standalone
		// paragraph before the content proper.
		split := fmt.Sprintf(" \n\n%d \n\n", page)
		parts := strings.SplitN(body, split, 2)
		if len(parts) < 2 {
			return "", fmt.Errorf("page %d: missing page-number paragraph: %w", page, ErrBadLayout)
		}
		body = parts[1]
	}
	body = strings.SplitN(body, PageFooter, 2)[0]

	marker := PageMarker(page)
	return "\n\n" + marker + strings.ReplaceAll(strings.TrimSpace(body), "\n", marker), nil
}
