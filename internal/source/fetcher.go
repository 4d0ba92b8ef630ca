package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"ohenr/internal/config"
	"ohenr/internal/logger"
	"ohenr/internal/models"
)

// ErrAllSourcesExhausted is returned when no candidate URL yielded a grid.
var ErrAllSourcesExhausted = errors.New("all sources exhausted")

// Fetcher downloads the extract of a year from the first candidate URL that answers.
type Fetcher struct {
	downloader *Downloader
	urls       *URLManager
	skipRows   int
	log        *logger.Logger
}

// NewFetcher creates a fetcher from the source configuration.
func NewFetcher(cfg *config.SourceConfig, modernEraStart int, log *logger.Logger) *Fetcher {
	return NewFetcherWithDeps(
		NewDownloader(&cfg.Retry, cfg.MaxBodyMb, cfg.UserAgent),
		NewURLManager(cfg, modernEraStart),
		cfg.SkipRows,
		log,
	)
}

// NewFetcherWithDeps creates a fetcher with injected dependencies.
func NewFetcherWithDeps(downloader *Downloader, urls *URLManager, skipRows int, log *logger.Logger) *Fetcher {
	return &Fetcher{
		downloader: downloader,
		urls:       urls,
		skipRows:   skipRows,
		log:        log,
	}
}

// URLs returns the URL manager, for attempt statistics.
func (f *Fetcher) URLs() *URLManager {
	return f.urls
}

// FetchGrid returns the parsed grid of an end year and the URL it came from.
// Candidates are tried in order; a candidate that is missing, fails or does
// not parse moves on to the next one.
func (f *Fetcher) FetchGrid(ctx context.Context, endYear int) (models.Grid, string, error) {
	candidates := f.urls.Candidates(endYear)
	if len(candidates) == 0 {
		return models.Grid{}, "", fmt.Errorf("%w: no candidates for %d", ErrAllSourcesExhausted, endYear)
	}

	var lastErr error

	for _, url := range candidates {
		body, status, duration, err := f.downloader.FetchWithMetrics(ctx, url)
		if err == nil {
			var grid models.Grid

			grid, err = ReadGrid(bytes.NewReader(body), f.skipRows)
			if err == nil {
				f.urls.RecordAttempt(url, true, nil, status, duration)
				f.log.Debug("fetched extract", "end_year", endYear, "url", url, "rows", grid.Len(), "bytes", len(body))

				return grid, url, nil
			}
		}

		f.urls.RecordAttempt(url, false, err, status, duration)

		if ctx.Err() != nil {
			return models.Grid{}, "", ctx.Err()
		}

		f.log.Debug("candidate failed", "end_year", endYear, "url", url, "error", err)
		lastErr = err
	}

	f.urls.LogAttemptSummary(f.log, endYear)

	return models.Grid{}, "", fmt.Errorf("%w: %d: %w", ErrAllSourcesExhausted, endYear, lastErr)
}

// LocalFetcher reads extracts from disk. Its path may contain the same
// placeholders as URL templates, e.g. "data/enrollment_{end_year}.csv".
type LocalFetcher struct {
	pattern  string
	skipRows int
}

// NewLocalFetcher creates a fetcher over a file path pattern.
func NewLocalFetcher(pattern string, skipRows int) *LocalFetcher {
	return &LocalFetcher{pattern: pattern, skipRows: skipRows}
}

// FetchGrid reads and parses the file of an end year.
func (f *LocalFetcher) FetchGrid(_ context.Context, endYear int) (models.Grid, string, error) {
	path := ExpandTemplate(f.pattern, endYear)

	file, err := os.Open(path)
	if err != nil {
		return models.Grid{}, path, fmt.Errorf("failed to open local file %s: %w", path, err)
	}
	defer file.Close()

	grid, err := ReadGrid(file, f.skipRows)
	if err != nil {
		return models.Grid{}, path, fmt.Errorf("failed to read local file %s: %w", path, err)
	}

	return grid, path, nil
}
