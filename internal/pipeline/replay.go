package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/auctionlens/gazette-harvester/internal/gazette"
	"github.com/auctionlens/gazette-harvester/internal/store"
)

// rawPageStore extends pageStore with the reads replay needs.
type rawPageStore interface {
	pageStore
	Pages(ctx context.Context, bookID string) ([]store.StoredPage, error)
}

type resettableClaimStore interface {
	claimStore
	Reset(ctx context.Context, bookID string) error
}

// Replayer re-runs normalization and extraction of one edition from its
// raw page backups, without touching the upstream site. Used after a
// carve or normalization fix to reprocess history.
type Replayer struct {
	worker *PageWorker
	pages  rawPageStore
	claims resettableClaimStore
	logger *zap.Logger
}

// NewReplayer constructs a Replayer sharing the page worker's stores.
func NewReplayer(worker *PageWorker, pages rawPageStore, claims resettableClaimStore, logger *zap.Logger) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{worker: worker, pages: pages, claims: claims, logger: logger}
}

// Replay reprocesses the raw backup of one date and category. It returns
// the number of pages replayed.
func (r *Replayer) Replay(ctx context.Context, date, category string) (int, error) {
	if !gazette.ValidCategory(category) {
		return 0, fmt.Errorf("unknown category %q", category)
	}
	bookDate, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, fmt.Errorf("bad date %q", date)
	}

	label := gazette.CategoryLabels[category]
	bookID := gazette.BookID(date, label)
	rawID := gazette.RawBookID(date, label)

	raw, err := r.pages.Pages(ctx, rawID)
	if err != nil {
		return 0, fmt.Errorf("load raw pages: %w", err)
	}
	if len(raw) == 0 {
		return 0, fmt.Errorf("no raw backup for %s", bookID)
	}

	// Drop the old claim and any half-replayed pages so the rebuild
	// starts clean.
	if err := r.claims.Reset(ctx, bookID); err != nil {
		return 0, err
	}
	if err := r.pages.Purge(ctx, bookID); err != nil {
		return 0, err
	}

	pageQty := raw[0].PageQty
	for _, p := range raw {
		if !r.worker.normalizer.CheckLayout(p.Text) {
			r.logger.Warn("raw page fails layout check, skipping",
				zap.String("book", bookID),
				zap.Int("page", p.Number),
			)
			continue
		}
		normalized, err := r.worker.normalizer.NormalizePage(p.Text, p.Number)
		if err != nil {
			r.logger.Warn("raw page does not normalize, skipping",
				zap.String("book", bookID),
				zap.Int("page", p.Number),
				zap.Error(err),
			)
			continue
		}
		if _, err := r.pages.AddPage(ctx, bookID, p.Number, pageQty, normalized); err != nil {
			return 0, fmt.Errorf("restore page %d: %w", p.Number, err)
		}
	}

	won, err := r.claims.Acquire(ctx, bookID, r.worker.lease)
	if err != nil {
		return 0, err
	}
	if !won {
		return 0, fmt.Errorf("book %s claimed by another worker", bookID)
	}
	meta := PageMetadata{
		Source:   gazette.SourceID,
		Category: category,
		Date:     date,
		PageQty:  pageQty,
		Instance: gazette.Instance(category),
	}
	if err := r.worker.extractBook(ctx, bookID, bookDate, meta); err != nil {
		return 0, err
	}
	return len(raw), nil
}
