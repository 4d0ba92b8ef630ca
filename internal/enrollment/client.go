// Package enrollment fetches yearly Ohio enrollment extracts and turns them
// into canonical wide or classified long records.
package enrollment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ohenr/internal/cache"
	"ohenr/internal/config"
	"ohenr/internal/extract"
	"ohenr/internal/logger"
	"ohenr/internal/models"
	"ohenr/internal/normalizer"
	"ohenr/internal/quality"
	"ohenr/internal/schema"
)

// ErrYearUnavailable is returned for an end year outside the published range.
var ErrYearUnavailable = errors.New("end year not available")

// GridSource yields the parsed extract of an end year and where it came from.
type GridSource interface {
	FetchGrid(ctx context.Context, endYear int) (models.Grid, string, error)
}

// Options selects the shape of a fetched batch.
type Options struct {
	// Tidy returns classified long records instead of wide records.
	Tidy bool
	// UseCache reads and writes the batch cache.
	UseCache bool
}

// Batch is the processed extract of one end year.
type Batch struct {
	EndYear int
	Source  string
	Wide    []models.WideRecord
	Records []models.ClassifiedRecord
	Report  normalizer.Report
	Quality *quality.Result
	Cached  bool
}

// Len returns the number of records in the batch's requested shape.
func (b *Batch) Len() int {
	if b.Records != nil {
		return len(b.Records)
	}

	return len(b.Wide)
}

// cachedBatch is the blob written to the cache.
type cachedBatch struct {
	Report  normalizer.Report         `json:"report"`
	Wide    []models.WideRecord       `json:"wide,omitempty"`
	Records []models.ClassifiedRecord `json:"records,omitempty"`
}

// Years is the published range of end years.
type Years struct {
	MinYear int   `json:"min_year"`
	MaxYear int   `json:"max_year"`
	Missing []int `json:"missing"`
}

// Client runs the enrollment pipeline for one or more end years.
type Client struct {
	source       GridSource
	store        cache.Store
	processor    *normalizer.Processor
	checker      *quality.Checker
	years        config.YearsConfig
	concurrency  int
	tableVersion int
	log          *logger.Logger
	now          func() time.Time
}

// NewClient creates a client. store may be nil, which disables caching.
func NewClient(cfg *config.Config, table *schema.Table, source GridSource, store cache.Store, log *logger.Logger) *Client {
	concurrency := cfg.Pipeline.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Client{
		source:       source,
		store:        store,
		processor:    normalizer.NewProcessor(table, extract.WithModernEraStart(cfg.Pipeline.ModernEraStart)),
		checker:      quality.NewChecker(cfg.Pipeline.MaxExclusionRatio, cfg.Pipeline.FailOnExclusion),
		years:        cfg.Source.Years,
		concurrency:  concurrency,
		tableVersion: table.Version(),
		log:          log,
		now:          time.Now,
	}
}

// Processor returns the pipeline used by the client.
func (c *Client) Processor() *normalizer.Processor {
	return c.processor
}

// AvailableYears returns the published range of end years.
func (c *Client) AvailableYears() Years {
	return Years{
		MinYear: c.years.Min,
		MaxYear: c.years.Max,
		Missing: append([]int{}, c.years.Missing...),
	}
}

// CheckYear returns ErrYearUnavailable for an unpublished end year.
func (c *Client) CheckYear(endYear int) error {
	if c.years.IsAvailable(endYear) {
		return nil
	}

	return fmt.Errorf("%w: %d (published %d-%d, missing %v)",
		ErrYearUnavailable, endYear, c.years.Min, c.years.Max, c.years.Missing)
}

// FetchEnr fetches and processes one end year.
func (c *Client) FetchEnr(ctx context.Context, endYear int, opts Options) (*Batch, error) {
	return c.fetch(ctx, endYear, opts, c.log)
}

func (c *Client) fetch(ctx context.Context, endYear int, opts Options, log *logger.Logger) (*Batch, error) {
	if err := c.CheckYear(endYear); err != nil {
		return nil, err
	}

	mode := cache.ModeWide
	if opts.Tidy {
		mode = cache.ModeTidy
	}

	key := cache.Key(endYear, mode, c.tableVersion)
	useCache := opts.UseCache && c.store != nil

	if useCache {
		if batch, ok := c.readCache(ctx, key, log); ok {
			log.Info("cache hit", "end_year", endYear, "mode", mode, "records", batch.Len())

			return batch, nil
		}
	}

	grid, src, err := c.source.FetchGrid(ctx, endYear)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch end year %d: %w", endYear, err)
	}

	batch, err := c.process(grid, endYear, src, opts.Tidy)
	if err != nil {
		return nil, err
	}

	log.Info("processed extract",
		"end_year", endYear,
		"era", batch.Report.Era,
		"source", src,
		"rows", batch.Report.RowsRead,
		"excluded", batch.Report.RowsExcluded,
		"records", batch.Len(),
	)

	for _, w := range batch.Quality.Warnings {
		log.Warn("quality warning", "end_year", endYear, "warning", w)
	}

	if useCache {
		c.writeCache(ctx, key, batch, log)
	}

	return batch, nil
}

func (c *Client) process(grid models.Grid, endYear int, src string, tidy bool) (*Batch, error) {
	var (
		res *normalizer.Result
		err error
	)

	if tidy {
		res, err = c.processor.Process(grid, endYear, src)
	} else {
		res, err = c.processor.ProcessWide(grid, endYear, src)
	}

	if err != nil {
		return nil, err
	}

	batch := &Batch{
		EndYear: endYear,
		Source:  src,
		Report:  res.Report,
	}

	if tidy {
		batch.Records = res.Records
		batch.Quality = c.checker.Check(res.Report, res.Records)
	} else {
		batch.Wide = res.Wide
		batch.Quality = c.checker.CheckWide(res.Report, res.Wide)
	}

	if err := batch.Quality.Err(); err != nil {
		return nil, &normalizer.BatchError{EndYear: endYear, Source: src, Err: err}
	}

	return batch, nil
}

func (c *Client) readCache(ctx context.Context, key string, log *logger.Logger) (*Batch, bool) {
	blob, ok, err := c.store.Get(ctx, key)
	if err != nil {
		log.Warn("cache read failed", "key", key, "error", err)

		return nil, false
	}

	if !ok {
		return nil, false
	}

	var cb cachedBatch
	if err := json.Unmarshal(blob, &cb); err != nil {
		log.Warn("discarding undecodable cache entry", "key", key, "error", err)

		return nil, false
	}

	batch := &Batch{
		EndYear: cb.Report.EndYear,
		Source:  cb.Report.Source,
		Wide:    cb.Wide,
		Records: cb.Records,
		Report:  cb.Report,
		Cached:  true,
	}

	if cb.Records != nil {
		batch.Quality = c.checker.Check(cb.Report, cb.Records)
	} else {
		batch.Quality = c.checker.CheckWide(cb.Report, cb.Wide)
	}

	return batch, true
}

func (c *Client) writeCache(ctx context.Context, key string, batch *Batch, log *logger.Logger) {
	blob, err := json.Marshal(cachedBatch{Report: batch.Report, Wide: batch.Wide, Records: batch.Records})
	if err != nil {
		log.Warn("failed to encode batch for cache", "key", key, "error", err)

		return
	}

	if err := c.store.Put(ctx, key, blob, c.now()); err != nil {
		log.Warn("cache write failed", "key", key, "error", err)
	}
}

// TidyEnr reshapes and classifies wide records without fetching anything.
func (c *Client) TidyEnr(wide []models.WideRecord) []models.ClassifiedRecord {
	return c.processor.TidyWide(wide)
}
