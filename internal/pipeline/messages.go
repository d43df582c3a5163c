// Package pipeline contains the message-driven harvesting flow: fetch
// jobs, page storage with completion tracking, and record extraction with
// entity upserts.
package pipeline

import (
	"encoding/json"
	"fmt"
)

// fetchJobVersion is bumped when the envelope shape changes; consumers
// ignore versions they do not understand.
const fetchJobVersion = 1

// FetchJob asks a fetch worker to retrieve one page of one edition.
type FetchJob struct {
	Version  int          `json:"version"`
	SourceID string       `json:"source_id"`
	Data     FetchJobData `json:"data"`
}

// FetchJobData carries the page coordinates. Field names stay aligned with
// the historical envelope so mixed fleets can drain shared topics.
type FetchJobData struct {
	Category string `json:"type"`
	Page     int    `json:"page"`
	PageQty  int    `json:"page_qty"`
	Date     string `json:"date"`
}

// NewFetchJob builds a versioned fetch job for one page.
func NewFetchJob(sourceID, category string, page, pageQty int, date string) FetchJob {
	return FetchJob{
		Version:  fetchJobVersion,
		SourceID: sourceID,
		Data: FetchJobData{
			Category: category,
			Page:     page,
			PageQty:  pageQty,
			Date:     date,
		},
	}
}

// PageMetadata describes one fetched page as it moves through conversion.
type PageMetadata struct {
	Source   string `json:"source"`
	Category string `json:"caderno"`
	URL      string `json:"url"`
	Date     string `json:"date"`
	Page     int    `json:"page"`
	PageQty  int    `json:"page_qty"`
	Instance int    `json:"instancia"`
}

// ConvertJob hands raw PDF bytes to the external PDF-to-text converter.
type ConvertJob struct {
	Base64PDF string       `json:"base64pdf"`
	Metadata  PageMetadata `json:"metadata"`
}

// ProcessedPage is the converter's output: the page text plus the original
// metadata, consumed by the page worker.
type ProcessedPage struct {
	SourceID string       `json:"source_id"`
	Text     string       `json:"text"`
	Metadata PageMetadata `json:"metadata"`
}

// DecodeFetchJob parses a fetch job delivery body.
func DecodeFetchJob(body []byte) (FetchJob, error) {
	var job FetchJob
	if err := json.Unmarshal(body, &job); err != nil {
		return FetchJob{}, fmt.Errorf("decode fetch job: %w", err)
	}
	return job, nil
}

// DecodeProcessedPage parses a processed-page delivery body. Older
// producers omit source_id at the top level and only set metadata.source.
func DecodeProcessedPage(body []byte) (ProcessedPage, error) {
	var page ProcessedPage
	if err := json.Unmarshal(body, &page); err != nil {
		return ProcessedPage{}, fmt.Errorf("decode processed page: %w", err)
	}
	if page.SourceID == "" {
		page.SourceID = page.Metadata.Source
	}
	return page, nil
}
