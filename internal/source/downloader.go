// Package source retrieves yearly enrollment extracts and parses them into cell grids.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"ohenr/internal/config"
)

// Download errors.
var (
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
	ErrNotFound             = errors.New("not found")
	ErrBodyTooLarge         = errors.New("response body exceeds limit")
)

// Downloader fetches files over HTTP with config-driven retry logic.
type Downloader struct {
	client      *http.Client
	retryPolicy *config.RetryPolicy
	userAgent   string
	maxBody     int64
}

// NewDownloader creates a downloader with the given retry policy and body limit.
func NewDownloader(retryPolicy *config.RetryPolicy, maxBodyMb int, userAgent string) *Downloader {
	return &Downloader{
		client: &http.Client{
			Timeout: retryPolicy.GetTimeout(),
		},
		retryPolicy: retryPolicy,
		userAgent:   userAgent,
		maxBody:     int64(maxBodyMb) << 20,
	}
}

// FetchWithMetrics returns (body, statusCode, duration, error). A 404 is
// returned at once as ErrNotFound; 408, 429, 503, 504 and transport errors
// are retried with backoff.
func (d *Downloader) FetchWithMetrics(ctx context.Context, url string) ([]byte, int, time.Duration, error) {
	var lastErr error

	var lastStatusCode int

	totalDuration := time.Duration(0)

	for attempt := 1; attempt <= d.retryPolicy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, d.retryPolicy.GetRetryDelay(attempt)); err != nil {
				return nil, lastStatusCode, totalDuration, err
			}
		}

		startTime := time.Now()
		body, status, err := d.do(ctx, url)
		totalDuration += time.Since(startTime)
		lastStatusCode = status

		if err == nil {
			return body, status, totalDuration, nil
		}

		lastErr = fmt.Errorf("attempt %d/%d: %w", attempt, d.retryPolicy.MaxAttempts, err)

		if ctx.Err() != nil {
			return nil, status, totalDuration, ctx.Err()
		}

		if status != 0 && !isRetryableStatus(status) {
			break
		}
	}

	return nil, lastStatusCode, totalDuration, lastErr
}

// Fetch returns the body at url.
func (d *Downloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	body, _, _, err := d.FetchWithMetrics(ctx, url)

	return body, err
}

func (d *Downloader) do(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/csv,text/plain,application/octet-stream;q=0.9,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, resp.StatusCode, fmt.Errorf("%w: %s", ErrNotFound, url)
	case resp.StatusCode != http.StatusOK:
		return nil, resp.StatusCode, fmt.Errorf("%w: %d", ErrUnexpectedStatusCode, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBody+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if int64(len(body)) > d.maxBody {
		return nil, resp.StatusCode, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, d.maxBody)
	}

	return body, resp.StatusCode, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isRetryableStatus determines if we should retry based on HTTP status code.
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests, http.StatusRequestTimeout:
		return true
	}

	return false
}
