package source

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"ohenr/internal/config"
	"ohenr/internal/logger"
)

// URLManager expands the configured URL templates into per-year candidates
// and keeps a log of fetch attempts. It is safe for concurrent use.
type URLManager struct {
	modern         []string
	legacy         []string
	modernEraStart int
	mu             sync.Mutex
	attemptLog     map[string][]AttemptResult
}

// AttemptResult records the result of a URL fetch attempt.
type AttemptResult struct {
	Timestamp  time.Time
	URL        string
	Error      string
	Attempt    int
	Duration   time.Duration
	StatusCode int
	Success    bool
}

// NewURLManager creates a new URL manager. Years from modernEraStart on use
// the modern templates.
func NewURLManager(cfg *config.SourceConfig, modernEraStart int) *URLManager {
	return &URLManager{
		modern:         cfg.ModernURLs,
		legacy:         cfg.LegacyURLs,
		modernEraStart: modernEraStart,
		attemptLog:     make(map[string][]AttemptResult),
	}
}

// ExpandTemplate substitutes {end_year}, {start_year}, {yy} (two-digit end
// year) and {start_yy} in a URL or path template.
func ExpandTemplate(tmpl string, endYear int) string {
	r := strings.NewReplacer(
		"{end_year}", strconv.Itoa(endYear),
		"{start_year}", strconv.Itoa(endYear-1),
		"{yy}", fmt.Sprintf("%02d", endYear%100),
		"{start_yy}", fmt.Sprintf("%02d", (endYear-1)%100),
	)

	return r.Replace(tmpl)
}

// Candidates returns the URLs to try for an end year, most likely first.
func (um *URLManager) Candidates(endYear int) []string {
	templates := um.legacy
	if endYear >= um.modernEraStart {
		templates = um.modern
	}

	urls := make([]string, 0, len(templates))
	for _, tmpl := range templates {
		urls = append(urls, ExpandTemplate(tmpl, endYear))
	}

	return urls
}

// RecordAttempt records the result of a fetch attempt.
func (um *URLManager) RecordAttempt(url string, success bool, err error, statusCode int, duration time.Duration) {
	um.mu.Lock()
	defer um.mu.Unlock()

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}

	um.attemptLog[url] = append(um.attemptLog[url], AttemptResult{
		URL:        url,
		Attempt:    len(um.attemptLog[url]) + 1,
		Success:    success,
		Error:      errMsg,
		Timestamp:  time.Now(),
		Duration:   duration,
		StatusCode: statusCode,
	})
}

// GetAttemptLog returns a copy of the attempt log for a URL.
func (um *URLManager) GetAttemptLog(url string) []AttemptResult {
	um.mu.Lock()
	defer um.mu.Unlock()

	return append([]AttemptResult(nil), um.attemptLog[url]...)
}

// GetAttemptStats returns statistics about fetch attempts.
func (um *URLManager) GetAttemptStats() AttemptStats {
	um.mu.Lock()
	defer um.mu.Unlock()

	stats := AttemptStats{
		TotalURLs:   len(um.attemptLog),
		URLAttempts: make(map[string]int, len(um.attemptLog)),
	}

	for url, results := range um.attemptLog {
		stats.URLAttempts[url] = len(results)
		stats.TotalAttempts += len(results)

		urlSuccess := false

		for _, result := range results {
			if result.Success {
				stats.SuccessfulAttempts++
				urlSuccess = true
			} else {
				stats.FailedAttempts++
			}
		}

		if urlSuccess {
			stats.SuccessfulURLs++
		} else {
			stats.FailedURLs++
		}
	}

	return stats
}

// AttemptStats contains statistics about fetch attempts.
type AttemptStats struct {
	URLAttempts        map[string]int
	TotalURLs          int
	SuccessfulURLs     int
	FailedURLs         int
	TotalAttempts      int
	SuccessfulAttempts int
	FailedAttempts     int
}

// String returns a string representation of attempt stats.
func (s AttemptStats) String() string {
	return fmt.Sprintf(
		"URLs: %d total, %d success, %d failed | Attempts: %d total, %d success, %d failed",
		s.TotalURLs,
		s.SuccessfulURLs,
		s.FailedURLs,
		s.TotalAttempts,
		s.SuccessfulAttempts,
		s.FailedAttempts,
	)
}

// LogAttemptSummary logs the attempts made for an end year.
func (um *URLManager) LogAttemptSummary(l *logger.Logger, endYear int) {
	for _, url := range um.Candidates(endYear) {
		results := um.GetAttemptLog(url)
		if len(results) == 0 {
			l.Debug("candidate not attempted", "end_year", endYear, "url", url)

			continue
		}

		last := results[len(results)-1]
		l.Info("candidate attempted",
			"end_year", endYear,
			"url", url,
			"attempts", len(results),
			"success", last.Success,
			"status", last.StatusCode,
			"error", last.Error,
		)
	}

	l.Debug("fetch attempt summary", "stats", um.GetAttemptStats().String())
}

// Reset clears the attempt log.
func (um *URLManager) Reset() {
	um.mu.Lock()
	defer um.mu.Unlock()

	um.attemptLog = make(map[string][]AttemptResult)
}
