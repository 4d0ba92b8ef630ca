package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ohenr/internal/config"
	"ohenr/internal/logger"
)

func fastPolicy() *config.RetryPolicy {
	return &config.RetryPolicy{
		MaxAttempts:       3,
		InitialDelayMs:    1,
		MaxDelayMs:        5,
		BackoffMultiplier: 2.0,
		TimeoutSec:        5,
	}
}

func TestReadGrid(t *testing.T) {
	input := "\xEF\xBB\xBFDistrict IRN,District Name, Total Enrollment ,\n" +
		"043752,\"Columbus City, OH\",\"1,234\",\n" +
		",,,\n" +
		"043786,Dayton City,*\n"

	grid, err := ReadGrid(strings.NewReader(input), 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"District IRN", "District Name", "Total Enrollment", "column_4"}, grid.Columns)
	require.Equal(t, 2, grid.Len())
	assert.Equal(t, "043752", grid.Rows[0]["District IRN"])
	assert.Equal(t, "Columbus City, OH", grid.Rows[0]["District Name"])
	assert.Equal(t, "1,234", grid.Rows[0]["Total Enrollment"])
	assert.Nil(t, grid.Rows[0]["column_4"])
	assert.Equal(t, "*", grid.Rows[1]["Total Enrollment"])
	assert.Nil(t, grid.Rows[1]["column_4"], "short row pads with nil")
}

func TestReadGrid_SniffsDelimiterAndSkipsBanner(t *testing.T) {
	input := "Ohio Department of Education, Fall Enrollment\n" +
		"Report generated 2019-10-31\n" +
		"IRN\tName\tTotal\tTotal\n" +
		"1\tA, B\t10\t11\n"

	grid, err := ReadGrid(strings.NewReader(input), 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"IRN", "Name", "Total", "Total.1"}, grid.Columns)
	require.Equal(t, 1, grid.Len())
	assert.Equal(t, "A, B", grid.Rows[0]["Name"])
	assert.Equal(t, "11", grid.Rows[0]["Total.1"])
}

func TestReadGrid_Empty(t *testing.T) {
	for _, input := range []string{"", "\n", "banner only\n"} {
		skip := 0
		if strings.HasPrefix(input, "banner") {
			skip = 1
		}

		_, err := ReadGrid(strings.NewReader(input), skip)
		assert.ErrorIs(t, err, ErrEmptyGrid, "input %q", input)
	}
}

func TestExpandTemplate(t *testing.T) {
	got := ExpandTemplate("https://x/{start_year}-{yy}/{end_year}/{start_yy}.csv", 2009)
	assert.Equal(t, "https://x/2008-09/2009/08.csv", got)
}

func TestURLManager_Candidates(t *testing.T) {
	cfg := &config.SourceConfig{
		ModernURLs: []string{"m1/{end_year}", "m2/{end_year}"},
		LegacyURLs: []string{"l1/{end_year}"},
	}
	um := NewURLManager(cfg, 2015)

	assert.Equal(t, []string{"l1/2014"}, um.Candidates(2014))
	assert.Equal(t, []string{"m1/2015", "m2/2015"}, um.Candidates(2015))
}

func TestURLManager_AttemptStats(t *testing.T) {
	um := NewURLManager(&config.SourceConfig{}, 2015)

	um.RecordAttempt("a", false, errors.New("boom"), 503, time.Millisecond)
	um.RecordAttempt("a", true, nil, 200, time.Millisecond)
	um.RecordAttempt("b", false, ErrNotFound, 404, time.Millisecond)

	stats := um.GetAttemptStats()
	assert.Equal(t, 2, stats.TotalURLs)
	assert.Equal(t, 1, stats.SuccessfulURLs)
	assert.Equal(t, 1, stats.FailedURLs)
	assert.Equal(t, 3, stats.TotalAttempts)
	assert.Equal(t, 2, stats.FailedAttempts)

	log := um.GetAttemptLog("a")
	require.Len(t, log, 2)
	assert.Equal(t, "boom", log[0].Error)
	assert.Equal(t, 2, log[1].Attempt)

	um.Reset()
	assert.Zero(t, um.GetAttemptStats().TotalAttempts)
}

func TestDownloader_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ohenr-test", r.Header.Get("User-Agent"))

		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := NewDownloader(fastPolicy(), 1, "ohenr-test")

	body, status, _, err := d.FetchWithMetrics(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownloader_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewDownloader(fastPolicy(), 1, "ohenr-test").Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDownloader_ServerErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewDownloader(fastPolicy(), 1, "ohenr-test").Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrUnexpectedStatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDownloader_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, (1<<20)+1))
	}))
	defer srv.Close()

	_, err := NewDownloader(fastPolicy(), 1, "ohenr-test").Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestDownloader_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	policy := fastPolicy()
	policy.InitialDelayMs = 10000
	policy.MaxDelayMs = 10000

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewDownloader(policy, 1, "ohenr-test").Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetcher_FallsBackToNextCandidate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/good/2019.csv", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("District IRN,Total Enrollment\n43752,100\n"))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := &config.SourceConfig{
		ModernURLs: []string{srv.URL + "/missing/{end_year}.csv", srv.URL + "/good/{end_year}.csv"},
		LegacyURLs: []string{srv.URL + "/legacy/{end_year}.csv"},
		UserAgent:  "ohenr-test",
		Retry:      *fastPolicy(),
		MaxBodyMb:  1,
	}
	f := NewFetcher(cfg, 2015, logger.NewNop())

	grid, url, err := f.FetchGrid(context.Background(), 2019)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/good/2019.csv", url)
	assert.Equal(t, 1, grid.Len())

	stats := f.URLs().GetAttemptStats()
	assert.Equal(t, 1, stats.SuccessfulURLs)
	assert.Equal(t, 1, stats.FailedURLs)

	_, _, err = f.FetchGrid(context.Background(), 2010)
	require.ErrorIs(t, err, ErrAllSourcesExhausted)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalFetcher(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "enr_2012.csv"), []byte("banner\nIRN;Total\n1;5\n"), 0o644))

	f := NewLocalFetcher(filepath.Join(dir, "enr_{end_year}.csv"), 1)

	grid, path, err := f.FetchGrid(context.Background(), 2012)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "enr_2012.csv"), path)
	assert.Equal(t, []string{"IRN", "Total"}, grid.Columns)
	assert.Equal(t, "5", grid.Rows[0]["Total"])

	_, _, err = f.FetchGrid(context.Background(), 2013)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
