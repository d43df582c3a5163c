package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/auctionlens/gazette-harvester/internal/extract"
	"github.com/auctionlens/gazette-harvester/internal/gazette"
	"github.com/auctionlens/gazette-harvester/internal/metrics"
)

type pageStore interface {
	AddPage(ctx context.Context, bookID string, page, pageQty int, text string) (bool, error)
	IsComplete(ctx context.Context, bookID string, pageQty int) (bool, error)
	OrderedBook(ctx context.Context, bookID string) (string, error)
	Purge(ctx context.Context, bookID string) error
}

type claimStore interface {
	Acquire(ctx context.Context, bookID string, lease time.Duration) (bool, error)
	Release(ctx context.Context, bookID string) error
	Finish(ctx context.Context, bookID string) error
}

type recordResolver interface {
	Resolve(ctx context.Context, rec extract.Record, sourceID string, bookDate time.Time) error
}

// PageWorker consumes converted page text. Each page is backed up raw,
// normalized, and stored; the worker that stores the last page of a book
// claims it, reassembles it in page order, and runs extraction. The claim
// guarantees one extraction per book even when the final pages land on
// different workers at once.
type PageWorker struct {
	pages      pageStore
	claims     claimStore
	resolver   recordResolver
	normalizer *gazette.Normalizer
	extractor  *extract.Extractor
	lease      time.Duration
	logger     *zap.Logger
}

// NewPageWorker constructs a PageWorker.
func NewPageWorker(pages pageStore, claims claimStore, resolver recordResolver, normalizer *gazette.Normalizer, extractor *extract.Extractor, lease time.Duration, logger *zap.Logger) *PageWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageWorker{
		pages:      pages,
		claims:     claims,
		resolver:   resolver,
		normalizer: normalizer,
		extractor:  extractor,
		lease:      lease,
		logger:     logger,
	}
}

// Handle processes one converted page delivery body.
func (w *PageWorker) Handle(ctx context.Context, body []byte) error {
	page, err := DecodeProcessedPage(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	meta := page.Metadata
	if page.SourceID != gazette.SourceID {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidInput, page.SourceID)
	}
	if !gazette.ValidCategory(meta.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidInput, meta.Category)
	}
	if meta.Page < 1 || meta.PageQty < 1 || meta.Page > meta.PageQty {
		return fmt.Errorf("%w: page %d out of range for %d pages", ErrInvalidInput, meta.Page, meta.PageQty)
	}
	if page.Text == "" {
		return fmt.Errorf("%w: empty page text", ErrInvalidInput)
	}
	bookDate, err := time.Parse("2006-01-02", meta.Date)
	if err != nil {
		return fmt.Errorf("%w: bad date %q", ErrInvalidInput, meta.Date)
	}

	label := gazette.CategoryLabels[meta.Category]
	bookID := gazette.BookID(meta.Date, label)

	// Raw copy first, so a carve bug can be fixed and the book replayed
	// without refetching from the court site.
	if _, err := w.pages.AddPage(ctx, gazette.RawBookID(meta.Date, label), meta.Page, meta.PageQty, page.Text); err != nil {
		return fmt.Errorf("store raw page: %w", err)
	}

	// Layout failures are retryable: the converter may have handed us a
	// page of an edition that is not fully published yet.
	if !w.normalizer.CheckLayout(page.Text) {
		metrics.PageRejected(meta.Category)
		return fmt.Errorf("page %d of %s: %w", meta.Page, bookID, gazette.ErrBadLayout)
	}
	normalized, err := w.normalizer.NormalizePage(page.Text, meta.Page)
	if err != nil {
		metrics.PageRejected(meta.Category)
		return fmt.Errorf("normalize page %d of %s: %w", meta.Page, bookID, err)
	}

	inserted, err := w.pages.AddPage(ctx, bookID, meta.Page, meta.PageQty, normalized)
	if err != nil {
		return fmt.Errorf("store page: %w", err)
	}
	if inserted {
		metrics.PageStored(meta.Category)
	} else {
		metrics.PageDuplicate(meta.Category)
	}

	complete, err := w.pages.IsComplete(ctx, bookID, meta.PageQty)
	if err != nil {
		return fmt.Errorf("check completion: %w", err)
	}
	if !complete {
		return nil
	}

	won, err := w.claims.Acquire(ctx, bookID, w.lease)
	if err != nil {
		return fmt.Errorf("acquire claim: %w", err)
	}
	if !won {
		w.logger.Debug("book claimed elsewhere", zap.String("book", bookID))
		return nil
	}
	return w.extractBook(ctx, bookID, bookDate, meta)
}

// extractBook runs extraction under an owned claim. Failures before the
// records are resolved release the claim so the requeued delivery can
// retry immediately.
func (w *PageWorker) extractBook(ctx context.Context, bookID string, bookDate time.Time, meta PageMetadata) error {
	book, err := w.pages.OrderedBook(ctx, bookID)
	if err != nil {
		if relErr := w.claims.Release(ctx, bookID); relErr != nil {
			w.logger.Error("release claim failed", zap.String("book", bookID), zap.Error(relErr))
		}
		return fmt.Errorf("reassemble book: %w", err)
	}

	w.logger.Info("book complete, extracting",
		zap.String("book", bookID),
		zap.Int("pages", meta.PageQty),
	)
	start := time.Now()
	records := w.extractor.ScanBook(book)
	metrics.ObserveExtraction(time.Since(start))
	metrics.BookCompleted()

	failed := 0
	for i, rec := range records {
		if err := w.resolver.Resolve(ctx, rec, meta.Source, bookDate); err != nil {
			failed++
			metrics.RecordFailed()
			w.logger.Error("record resolution failed",
				zap.String("book", bookID),
				zap.String("process", rec.ProcessNumber),
				zap.Error(err),
			)
			continue
		}
		metrics.RecordExtracted()
		if (i+1)%100 == 0 {
			w.logger.Info("resolving records",
				zap.String("book", bookID),
				zap.Int("resolved", i+1),
				zap.Int("total", len(records)),
			)
		}
	}

	if err := w.pages.Purge(ctx, bookID); err != nil {
		w.logger.Error("purge pages failed", zap.String("book", bookID), zap.Error(err))
	}
	if err := w.claims.Finish(ctx, bookID); err != nil {
		w.logger.Error("finish claim failed", zap.String("book", bookID), zap.Error(err))
	}
	w.logger.Info("book extracted",
		zap.String("book", bookID),
		zap.Int("records", len(records)),
		zap.Int("failed", failed),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
