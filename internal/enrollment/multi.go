package enrollment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ohenr/internal/models"
	"ohenr/internal/normalizer"
)

// MultiResult is the concatenation of several processed end years.
type MultiResult struct {
	RunID   string
	Batches []*Batch
}

// Wide returns the wide records of every batch in request order.
func (m *MultiResult) Wide() []models.WideRecord {
	n := 0
	for _, b := range m.Batches {
		n += len(b.Wide)
	}

	out := make([]models.WideRecord, 0, n)
	for _, b := range m.Batches {
		out = append(out, b.Wide...)
	}

	return out
}

// Records returns the classified records of every batch in request order.
func (m *MultiResult) Records() []models.ClassifiedRecord {
	n := 0
	for _, b := range m.Batches {
		n += len(b.Records)
	}

	out := make([]models.ClassifiedRecord, 0, n)
	for _, b := range m.Batches {
		out = append(out, b.Records...)
	}

	return out
}

// Reports returns the report of every batch in request order.
func (m *MultiResult) Reports() []normalizer.Report {
	out := make([]normalizer.Report, len(m.Batches))
	for i, b := range m.Batches {
		out[i] = b.Report
	}

	return out
}

// FetchEnrMulti fetches several end years concurrently. Every year is
// checked before any work starts. The first failing year cancels the rest
// and its error names that year.
func (c *Client) FetchEnrMulti(ctx context.Context, endYears []int, opts Options) (*MultiResult, error) {
	for _, y := range endYears {
		if err := c.CheckYear(y); err != nil {
			return nil, err
		}
	}

	runID := uuid.NewString()
	log := c.log.With("run_id", runID)
	start := time.Now()

	log.Info("starting multi-year fetch", "years", endYears, "concurrency", c.concurrency)

	batches := make([]*Batch, len(endYears))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, y := range endYears {
		i, y := i, y
		g.Go(func() error {
			batch, err := c.fetch(gctx, y, opts, log)
			if err != nil {
				return fmt.Errorf("end year %d: %w", y, err)
			}

			batches[i] = batch

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("multi-year fetch failed", "error", err)

		return nil, err
	}

	result := &MultiResult{RunID: runID, Batches: batches}

	log.Info("multi-year fetch complete", "years", len(endYears), "duration", time.Since(start))

	return result, nil
}
