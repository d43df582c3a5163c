package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/auctionlens/gazette-harvester/internal/blob"
	"github.com/auctionlens/gazette-harvester/internal/broker"
	"github.com/auctionlens/gazette-harvester/internal/gazette"
)

// pdfSource is the slice of the gazette client the fetch worker needs.
type pdfSource interface {
	PDFURL(date, category string, page int) string
	DownloadPDF(ctx context.Context, rawURL string) ([]byte, error)
}

// FetchWorker downloads one page PDF per fetch job, backs the raw bytes
// up, and hands them to the external PDF-to-text converter.
type FetchWorker struct {
	source       pdfSource
	pub          broker.Publisher
	blobs        blob.Store
	convertTopic string
	logger       *zap.Logger
}

// NewFetchWorker constructs a FetchWorker.
func NewFetchWorker(source pdfSource, pub broker.Publisher, blobs blob.Store, convertTopic string, logger *zap.Logger) *FetchWorker {
	if blobs == nil {
		blobs = blob.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FetchWorker{
		source:       source,
		pub:          pub,
		blobs:        blobs,
		convertTopic: convertTopic,
		logger:       logger,
	}
}

// Handle processes one fetch job delivery body.
func (w *FetchWorker) Handle(ctx context.Context, body []byte) error {
	job, err := DecodeFetchJob(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if job.SourceID != gazette.SourceID {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidInput, job.SourceID)
	}
	if !gazette.ValidCategory(job.Data.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidInput, job.Data.Category)
	}
	if job.Data.Page < 1 || job.Data.PageQty < 1 || job.Data.Page > job.Data.PageQty {
		return fmt.Errorf("%w: page %d out of range", ErrInvalidInput, job.Data.Page)
	}

	url := w.source.PDFURL(job.Data.Date, job.Data.Category, job.Data.Page)
	pdf, err := w.source.DownloadPDF(ctx, url)
	if err != nil {
		return fmt.Errorf("download page %d of %s/%s: %w", job.Data.Page, job.Data.Date, job.Data.Category, err)
	}

	// Backup is best effort; losing it only means a replay refetches from
	// the upstream site.
	path := fmt.Sprintf("dje/%s/%s/%d.pdf", job.Data.Date, job.Data.Category, job.Data.Page)
	if _, err := w.blobs.PutObject(ctx, path, "application/pdf", bytes.NewReader(pdf)); err != nil {
		w.logger.Warn("pdf backup failed", zap.String("path", path), zap.Error(err))
	}

	convert := ConvertJob{
		Base64PDF: base64.StdEncoding.EncodeToString(pdf),
		Metadata: PageMetadata{
			Source:   job.SourceID,
			Category: job.Data.Category,
			URL:      url,
			Date:     job.Data.Date,
			Page:     job.Data.Page,
			PageQty:  job.Data.PageQty,
			Instance: gazette.Instance(job.Data.Category),
		},
	}
	payload, err := json.Marshal(convert)
	if err != nil {
		return fmt.Errorf("encode convert job: %w", err)
	}
	if err := w.pub.Publish(w.convertTopic, payload); err != nil {
		return fmt.Errorf("publish convert job: %w", err)
	}
	w.logger.Debug("page fetched",
		zap.String("date", job.Data.Date),
		zap.String("category", job.Data.Category),
		zap.Int("page", job.Data.Page),
		zap.Int("bytes", len(pdf)),
	)
	return nil
}
