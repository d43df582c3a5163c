// Package dispatcher enumerates gazette editions and fans one fetch job
// out per page over the broker.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/auctionlens/gazette-harvester/internal/broker"
	"github.com/auctionlens/gazette-harvester/internal/gazette"
	"github.com/auctionlens/gazette-harvester/internal/metrics"
	"github.com/auctionlens/gazette-harvester/internal/pipeline"
)

// Upstream is the slice of the gazette client the dispatcher needs.
type Upstream interface {
	ValidateDate(ctx context.Context, date string) error
	PageCount(ctx context.Context, date, category string) (int, error)
}

// Dispatcher emits fetch jobs for every page of every category of one
// edition date.
type Dispatcher struct {
	upstream      Upstream
	pub           broker.Publisher
	topic         string
	delay         time.Duration
	tomorrowAfter int
	logger        *zap.Logger
	now           func() time.Time
}

// New constructs a Dispatcher. delay throttles consecutive publishes so
// the fetch layer is not flooded; tomorrowAfter is the UTC hour after
// which an unset date targets the next day's edition.
func New(upstream Upstream, pub broker.Publisher, topic string, delay time.Duration, tomorrowAfter int, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		upstream:      upstream,
		pub:           pub,
		topic:         topic,
		delay:         delay,
		tomorrowAfter: tomorrowAfter,
		logger:        logger,
		now:           time.Now,
	}
}

// resolveDate defaults an empty date to today, or tomorrow late in the
// day: the gazette publishes the next edition the evening before.
func (d *Dispatcher) resolveDate(date string) string {
	if date != "" {
		return date
	}
	t := d.now().UTC()
	if t.Hour() >= d.tomorrowAfter {
		t = t.AddDate(0, 0, 1)
	}
	return t.Format("2006-01-02")
}

// Browse validates the date, queries every category's page count, and
// publishes one fetch job per page. An invalid publication date is benign:
// it logs and dispatches nothing. Returns the number of jobs dispatched.
func (d *Dispatcher) Browse(ctx context.Context, date string) (int, error) {
	date = d.resolveDate(date)

	if err := d.upstream.ValidateDate(ctx, date); err != nil {
		var invalid *gazette.ErrInvalidDate
		if errors.As(err, &invalid) {
			d.logger.Warn("no edition for date, skipping dispatch",
				zap.String("date", date),
				zap.String("reason", invalid.Reason),
			)
			return 0, nil
		}
		return 0, fmt.Errorf("validate date %s: %w", date, err)
	}

	counts := make([]int, len(gazette.Categories))
	g, gctx := errgroup.WithContext(ctx)
	for i, category := range gazette.Categories {
		i, category := i, category
		g.Go(func() error {
			count, err := d.upstream.PageCount(gctx, date, category)
			if err != nil {
				return fmt.Errorf("page count for %s: %w", category, err)
			}
			counts[i] = count
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for i, category := range gazette.Categories {
		d.logger.Info("dispatching edition pages",
			zap.String("source", gazette.SourceName),
			zap.String("category", gazette.CategoryLabels[category]),
			zap.String("date", date),
			zap.Int("pages", counts[i]),
		)
		for page := 1; page <= counts[i]; page++ {
			if err := d.publishJob(ctx, date, category, page, counts[i]); err != nil {
				return total, err
			}
			total++
		}
	}
	return total, nil
}

func (d *Dispatcher) publishJob(ctx context.Context, date, category string, page, pageQty int) error {
	job := pipeline.NewFetchJob(gazette.SourceID, category, page, pageQty, date)
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal fetch job: %w", err)
	}

	// Publish is fire-and-forget: a failed send is logged and the browse
	// keeps going, the daily re-run picks up the hole.
	if err := d.pub.Publish(d.topic, body); err != nil {
		d.logger.Error("publish fetch job failed",
			zap.String("category", category),
			zap.Int("page", page),
			zap.Error(err),
		)
	} else {
		metrics.FetchJobDispatched(category)
	}

	if d.delay > 0 {
		timer := time.NewTimer(d.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("dispatch interrupted: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return nil
}
