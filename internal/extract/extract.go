// Package extract carves case records out of reassembled gazette text.
// Everything here is pure in-memory computation over one book's text.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// ProcessNumberRE matches the CNJ-format case number that delimits records
// inside a book: NNNNNNN-DD.AAAA.J.TR.OOOO.
var ProcessNumberRE = regexp.MustCompile(`\d{7}-\d{2}\.\d{4}\.\d{1,2}\.\d{1,2}\.\d{4}`)

var (
	pageMarkerRE = regexp.MustCompile(`\[\[page:([0-9]+)\]\]`)

	// paragraphRE finds a paragraph break in marked-up text: either a bare
	// blank line (page join) or two consecutive line starts with nothing
	// between them (a blank line inside a page, where every newline
	// carries a page marker).
	paragraphRE = regexp.MustCompile(`\n(\[\[page:[0-9]+\]\])?\n`)

	leadingOrdinalRE = regexp.MustCompile(`^[0-9]+\.`)
)

// Config names the carve heuristics so their tolerance is explicit and
// independently testable.
type Config struct {
	// MaxPageSpan rejects a pattern match whose preceding segment spans
	// more than this many distinct pages: such a match would swallow
	// unrelated leading content.
	MaxPageSpan int

	// MinBlockLength rejects carved blocks shorter than this; they are
	// too short to be a real record.
	MinBlockLength int

	// MaxParties is a sanity ceiling on participants per record; above it
	// the record is kept but flagged as a parsing anomaly.
	MaxParties int

	// ProgressEvery controls how often the scanner logs progress through
	// a large book. Zero disables progress logging.
	ProgressEvery int
}

// DefaultConfig returns the tuned production thresholds.
func DefaultConfig() Config {
	return Config{
		MaxPageSpan:    7,
		MinBlockLength: 150,
		MaxParties:     35,
		ProgressEvery:  100,
	}
}

// Record is one carved case occurrence.
type Record struct {
	ProcessNumber string
	Text          string
	Page          int
	Title         string
	Subjects      []string
	Parties       []Party
}

// Extractor scans book text for case records.
type Extractor struct {
	cfg    Config
	logger *zap.Logger
}

// New constructs an Extractor.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if cfg.MaxPageSpan <= 0 {
		cfg.MaxPageSpan = DefaultConfig().MaxPageSpan
	}
	if cfg.MinBlockLength <= 0 {
		cfg.MinBlockLength = DefaultConfig().MinBlockLength
	}
	if cfg.MaxParties <= 0 {
		cfg.MaxParties = DefaultConfig().MaxParties
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// candidatePatterns returns the identifier anchors for one process number,
// most specific first. The last pattern anchors on an ordinal heading
// ("123. SOME HEADING 0001234-56...") and exists for records published
// without a "Proc."/"Processo:" label.
func candidatePatterns(proc string) []*regexp.Regexp {
	quoted := regexp.QuoteMeta(proc)
	return []*regexp.Regexp{
		regexp.MustCompile(`Proc\.\s+` + quoted),
		regexp.MustCompile(`Processo:\s+` + quoted),
		regexp.MustCompile(`[0-9]{3,4}\.\s+[A-ZÀ-ú\s\-]+` + quoted),
	}
}

// ScanBook walks every process-number occurrence in order and carves one
// record per accepted match. The cursor only moves forward - past the end
// of each consumed block - so total work is linear in the book length no
// matter how many identifiers it contains.
func (e *Extractor) ScanBook(book string) []Record {
	matches := ProcessNumberRE.FindAllStringIndex(book, -1)
	if len(matches) == 0 {
		return nil
	}

	var records []Record
	cursor := 0
	for i, m := range matches {
		if e.cfg.ProgressEvery > 0 && (i+1)%e.cfg.ProgressEvery == 0 {
			e.logger.Info("scan progress",
				zap.Int("processed", i+1),
				zap.Int("total", len(matches)),
				zap.String("pct", fmt.Sprintf("%.2f", float64(i+1)/float64(len(matches))*100)),
			)
		}
		if m[0] < cursor {
			// Identifier inside an already-consumed block.
			continue
		}
		proc := book[m[0]:m[1]]
		rec, consumed := e.carve(book[cursor:], proc)
		if consumed == 0 {
			// Nothing carvable here; skip just this occurrence.
			cursor = m[1]
			continue
		}
		cursor += consumed
		records = append(records, rec)
	}
	return records
}

// carve attempts to cut one record for proc out of text. It returns the
// number of bytes of text consumed; the scan cursor advances by exactly
// this much. consumed == 0 means this occurrence yields no record.
//
// Anchor selection takes the first pattern that matches within the page
// span; everything after that is terminal, so a stricter anchor's short
// block never falls through to a sloppier one reaching further ahead.
func (e *Extractor) carve(text, proc string) (Record, int) {
	var loc []int
	for _, re := range candidatePatterns(proc) {
		m := re.FindStringIndex(text)
		if m == nil {
			continue
		}
		if text[m[1]:] == "" {
			continue
		}
		if distinctPages(text[:m[0]]) > e.cfg.MaxPageSpan {
			// The match is too far from the cursor to belong to this
			// record; a sloppier pattern may still anchor correctly.
			continue
		}
		loc = m
		break
	}
	if loc == nil {
		e.logger.Warn("no matching pattern for process", zap.String("process", proc))
		return Record{}, 0
	}

	before := text[:loc[0]]
	after := text[loc[1]:]
	splitter := text[loc[0]:loc[1]]

	// The block runs to the next paragraph break or the next process
	// number, whichever comes first.
	end := len(after)
	if pm := paragraphRE.FindStringIndex(after); pm != nil && pm[0] < end {
		end = pm[0]
	}
	if nm := ProcessNumberRE.FindStringIndex(after); nm != nil && nm[0] < end {
		end = nm[0]
	}

	page := firstPage(after[:end])
	if page == 0 {
		page = lastPage(before)
	}
	if page == 0 {
		e.logger.Warn("no page marker around match", zap.String("process", proc))
		return Record{}, 0
	}

	body := pageMarkerRE.ReplaceAllString(after[:end], "")
	body = strings.Replace(body, "\n ", "\n", 1)
	block := splitter + body
	if len(block) < e.cfg.MinBlockLength {
		// Too short to be a real record.
		return Record{}, 0
	}
	block = StripRTF(block)

	parties := ExtractParties(block)
	if len(parties) > e.cfg.MaxParties {
		e.logger.Warn("party count above sanity ceiling",
			zap.String("process", proc),
			zap.Int("parties", len(parties)),
		)
	}

	return Record{
		ProcessNumber: proc,
		Text:          strings.TrimSpace(block),
		Page:          page,
		Title:         extractTitle(block, proc),
		Subjects:      ExtractSubjects(block),
		Parties:       parties,
	}, loc[1] + end
}

// distinctPages counts the unique page markers inside a text span.
func distinctPages(text string) int {
	seen := map[string]struct{}{}
	for _, m := range pageMarkerRE.FindAllStringSubmatch(text, -1) {
		seen[m[1]] = struct{}{}
	}
	return len(seen)
}

func firstPage(text string) int {
	m := pageMarkerRE.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	return atoiOrZero(m[1])
}

func lastPage(text string) int {
	ms := pageMarkerRE.FindAllStringSubmatch(text, -1)
	if len(ms) == 0 {
		return 0
	}
	return atoiOrZero(ms[len(ms)-1][1])
}

func atoiOrZero(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

// extractTitle takes the text preceding the process number inside the
// block, dropping the "Proc." label and any leading ordinal heading.
func extractTitle(block, proc string) string {
	title := strings.SplitN(block, proc, 2)[0]
	title = strings.TrimSpace(strings.Replace(title, "Proc.", "", 1))
	title = strings.TrimSpace(leadingOrdinalRE.ReplaceAllString(title, ""))
	return title
}
