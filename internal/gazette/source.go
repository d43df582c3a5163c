// Package gazette adapts the DJE-RJ court gazette: upstream endpoints,
// page-layout normalization, and crawl dispatch.
package gazette

import "fmt"

// SourceID tags every message and entity produced from this gazette.
const SourceID = "DJE-RJ"

// SourceName is the human-readable gazette title.
const SourceName = "Diário de Justiça do Rio de Janeiro"

// Gazette categories ("cadernos"). Each publishes as its own page-numbered
// edition per date.
const (
	CategoryFirstCapital  = "C"
	CategoryFirstInterior = "I"
	CategorySecond        = "S"
	CategoryEdict         = "E"
)

// CategoryLabels maps category codes to the labels the upstream uses and
// entities are tagged with.
var CategoryLabels = map[string]string{
	CategoryFirstCapital:  "1a Instância - Capital",
	CategoryFirstInterior: "1a Instância - Interior",
	CategorySecond:        "2a Instância",
	CategoryEdict:         "Edital e demais publicações",
}

// Categories lists the category codes in dispatch order.
var Categories = []string{
	CategoryFirstCapital,
	CategoryFirstInterior,
	CategorySecond,
	CategoryEdict,
}

// ValidCategory reports whether code is a known caderno.
func ValidCategory(code string) bool {
	_, ok := CategoryLabels[code]
	return ok
}

// Instance maps a category code to the judicial instance it covers;
// edicts carry no instance and map to zero.
func Instance(code string) int {
	switch code {
	case CategoryFirstCapital, CategoryFirstInterior:
		return 1
	case CategorySecond:
		return 2
	default:
		return 0
	}
}

// BookID identifies one logical gazette edition: all pages published for
// one category on one date.
func BookID(date, categoryLabel string) string {
	return fmt.Sprintf("%s:%s:%s", SourceID, date, categoryLabel)
}

// RawBookID identifies the raw (pre-normalization) backup copy of an
// edition's pages, kept for replay.
func RawBookID(date, categoryLabel string) string {
	return BookID(date, categoryLabel) + RawSuffix
}

// RawSuffix marks raw backup books in the page store.
const RawSuffix = "-RAW"
