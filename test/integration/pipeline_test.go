package integration

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

	"ohenr/internal/cache"
	"ohenr/internal/config"
	"ohenr/internal/enrollment"
	"ohenr/internal/export"
	"ohenr/internal/logger"
	"ohenr/internal/models"
	"ohenr/internal/schema"
	"ohenr/internal/source"
)

type fixtureServer struct {
	*httptest.Server
	hits atomic.Int32
}

// newFixtureServer serves ../fixtures/enrollment_<year>.csv under both
// /modern/ and /legacy/.
func newFixtureServer(t *testing.T) *fixtureServer {
	t.Helper()

	fs := &fixtureServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.hits.Add(1)

		name := filepath.Base(r.URL.Path)
		http.ServeFile(w, r, filepath.Join("..", "fixtures", "enrollment_"+name))
	}))
	t.Cleanup(fs.Close)

	return fs
}

func newPipeline(t *testing.T, srv *fixtureServer) (*enrollment.Client, *cache.SQLite) {
	t.Helper()

	cfg := config.Default()
	cfg.Source.ModernURLs = []string{srv.URL + "/modern/{end_year}.csv"}
	cfg.Source.LegacyURLs = []string{srv.URL + "/legacy/{end_year}.csv"}
	cfg.Source.Retry.InitialDelayMs = 1
	cfg.Source.Retry.MaxDelayMs = 2
	cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.db")

	table, err := schema.Default()
	if err != nil {
		t.Fatalf("schema.Default() error = %v", err)
	}

	log := logger.NewNop()

	store, err := cache.OpenSQLite(cfg.Cache.Path, cfg.Cache.TTL(), log)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	src := source.NewFetcher(&cfg.Source, cfg.Pipeline.ModernEraStart, log)

	return enrollment.NewClient(cfg, table, src, store, log), store
}

func find(records []models.ClassifiedRecord, year int, building, grade string, sg models.Subgroup) *models.ClassifiedRecord {
	for i := range records {
		r := &records[i]
		if r.EndYear == year && r.BuildingID == building && r.GradeLevel == grade && r.Subgroup == sg {
			return r
		}
	}

	return nil
}

func TestPipeline_MultiYearAcrossEras(t *testing.T) {
	srv := newFixtureServer(t)
	client, _ := newPipeline(t, srv)

	res, err := client.FetchEnrMulti(context.Background(), []int{2010, 2019}, enrollment.Options{Tidy: true, UseCache: true})
	if err != nil {
		t.Fatalf("FetchEnrMulti() error = %v", err)
	}

	records := res.Records()

	// 2010: district total, white, english learner, grade 1; building total, grade 1, grade 2
	// 2019: district total, white, black, grade 1; building total, black, grade 1; community total, white
	if len(records) != 16 {
		t.Fatalf("len(records) = %d, want 16", len(records))
	}

	reports := res.Reports()
	if reports[0].Era != schema.EraLegacy || reports[1].Era != schema.EraModern {
		t.Errorf("eras = %s, %s", reports[0].Era, reports[1].Era)
	}

	legacyTotal := find(records, 2010, "", models.GradeTotal, models.SubgroupTotal)
	if legacyTotal == nil || legacyTotal.Value != 30 || legacyTotal.DistrictID != "045187" {
		t.Errorf("2010 district total = %+v, want 30 summed from grades", legacyTotal)
	}

	el := find(records, 2010, "", models.GradeTotal, models.SubgroupEnglishLearner)
	if el == nil || el.Ratio == nil || *el.Ratio != 0.2 {
		t.Errorf("2010 english learner = %+v, want ratio 0.2", el)
	}

	building := find(records, 2010, "009876", models.GradeTotal, models.SubgroupTotal)
	if building == nil || building.Value != 20 || !building.IsBuilding {
		t.Errorf("2010 building total = %+v", building)
	}

	black := find(records, 2019, "", models.GradeTotal, models.SubgroupBlack)
	if black == nil || black.Value != 125 || black.DistrictID != "043752" {
		t.Errorf("2019 district black = %+v, want 125 from 12.5%%", black)
	}

	for _, r := range records {
		if r.DistrictID != "143198" {
			continue
		}

		if !r.IsCommunity || r.IsTraditional || !r.IsDistrict {
			t.Errorf("community school flags = %+v", r)
		}
	}
}

func TestPipeline_CacheServesRepeatRuns(t *testing.T) {
	srv := newFixtureServer(t)
	client, store := newPipeline(t, srv)
	ctx := context.Background()
	opts := enrollment.Options{Tidy: true, UseCache: true}

	first, err := client.FetchEnr(ctx, 2019, opts)
	if err != nil {
		t.Fatalf("FetchEnr() error = %v", err)
	}

	hits := srv.hits.Load()

	second, err := client.FetchEnr(ctx, 2019, opts)
	if err != nil {
		t.Fatalf("FetchEnr() cached error = %v", err)
	}

	if srv.hits.Load() != hits || !second.Cached {
		t.Errorf("second fetch hit the server (cached = %v)", second.Cached)
	}

	dir := t.TempDir()
	a := filepath.Join(dir, "fresh.json")
	b := filepath.Join(dir, "cached.json")

	if err := export.WriteRecords(a, first.Records, export.WriteOptions{Format: export.FormatJSON}); err != nil {
		t.Fatal(err)
	}

	if err := export.WriteRecords(b, second.Records, export.WriteOptions{Format: export.FormatJSON}); err != nil {
		t.Fatal(err)
	}

	fresh, _ := os.ReadFile(a)
	cached, _ := os.ReadFile(b)

	if string(fresh) != string(cached) {
		t.Error("cached run output differs from fresh run")
	}

	table, _ := schema.Default()

	key := cache.Key(2019, cache.ModeTidy, table.Version())
	if _, ok, err := store.Get(ctx, key); err != nil || !ok {
		t.Errorf("store.Get(%s) = %v, %v", key, ok, err)
	}
}

func TestPipeline_UnpublishedYear(t *testing.T) {
	srv := newFixtureServer(t)
	client, _ := newPipeline(t, srv)

	_, err := client.FetchEnr(context.Background(), 2012, enrollment.Options{})
	if !errors.Is(err, source.ErrAllSourcesExhausted) || !errors.Is(err, source.ErrNotFound) {
		t.Fatalf("FetchEnr(2012) error = %v, want ErrAllSourcesExhausted wrapping ErrNotFound", err)
	}

	if !strings.Contains(err.Error(), "2012") {
		t.Errorf("error %q does not name the year", err)
	}
}

func TestPipeline_JSONLExport(t *testing.T) {
	srv := newFixtureServer(t)
	client, _ := newPipeline(t, srv)

	batch, err := client.FetchEnr(context.Background(), 2019, enrollment.Options{})
	if err != nil {
		t.Fatalf("FetchEnr() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "wide.jsonl")
	if err := export.WriteRecords(path, batch.Wide, export.WriteOptions{Format: export.FormatJSONL}); err != nil {
		t.Fatalf("WriteRecords() error = %v", err)
	}

	wide, err := export.ReadWide(path)
	if err != nil {
		t.Fatalf("ReadWide() error = %v", err)
	}

	if len(wide) != 3 || wide[0].County != "Franklin" {
		t.Errorf("wide = %+v", wide)
	}

	if got := len(client.TidyEnr(wide)); got != 9 {
		t.Errorf("TidyEnr() = %d records, want 9", got)
	}
}
