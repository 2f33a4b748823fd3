package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicgen/clinicgen/internal/domain/dataset"
	"github.com/clinicgen/clinicgen/internal/domain/dictionary"
	"github.com/clinicgen/clinicgen/internal/domain/visit"
)

func run(t *testing.T, m *Metrics, size, batch int) *dataset.Stats {
	t.Helper()
	tables, err := dictionary.Default()
	require.NoError(t, err)
	cfg := dataset.DefaultConfig()
	cfg.Size = size
	cfg.BatchSize = batch
	_, stats, err := dataset.Generate(context.Background(), cfg, tables, dataset.WithObserver(m))
	require.NoError(t, err)
	return stats
}

func TestNew_PreregistersLabels(t *testing.T) {
	m := New()
	assert.Equal(t, 2, testutil.CollectAndCount(m.RecordsGenerated))
	assert.Equal(t, len(visit.Categories()), testutil.CollectAndCount(m.ValidationWarnings))
	assert.Zero(t, testutil.ToFloat64(m.Batches))
}

func TestMetrics_ObserveRun(t *testing.T) {
	m := New()
	stats := run(t, m, 250, 100)

	assert.Equal(t, float64(stats.NewClients), testutil.ToFloat64(m.RecordsGenerated.WithLabelValues(VisitNew)))
	assert.Equal(t, float64(stats.RepeatVisits), testutil.ToFloat64(m.RecordsGenerated.WithLabelValues(VisitRepeat)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Batches))
	assert.Equal(t, stats.ValidRatio(), testutil.ToFloat64(m.LastRunValidRatio))
	assert.Equal(t, 250.0, testutil.ToFloat64(m.LastRunRecords))
	assert.Positive(t, testutil.ToFloat64(m.LastRunTimestamp))

	var warnings float64
	for _, c := range visit.Categories() {
		warnings += testutil.ToFloat64(m.ValidationWarnings.WithLabelValues(string(c)))
	}
	assert.Equal(t, float64(stats.Warnings), warnings)
}

func TestMetrics_BatchDuration(t *testing.T) {
	m := New()
	m.BatchCompleted(dataset.BatchInfo{Index: 1, Duration: 20 * time.Millisecond})
	m.BatchCompleted(dataset.BatchInfo{Index: 2, Duration: 30 * time.Millisecond})

	expected := `
# HELP clinicgen_batches_total Completed generation batches
# TYPE clinicgen_batches_total counter
clinicgen_batches_total 2
`
	require.NoError(t, testutil.CollectAndCompare(m.Batches, strings.NewReader(expected)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.BatchDuration))
}

func TestMetrics_WarningsByCategory(t *testing.T) {
	m := New()
	r := &visit.Record{Repeat: true}
	m.RecordGenerated(r, []visit.Warning{
		{Seq: 1, Category: visit.CategorySymptomAffinity},
		{Seq: 1, Category: visit.CategorySymptomAffinity},
		{Seq: 1, Category: visit.CategoryLabTestAffinity},
	})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ValidationWarnings.WithLabelValues(string(visit.CategorySymptomAffinity))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationWarnings.WithLabelValues(string(visit.CategoryLabTestAffinity))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsGenerated.WithLabelValues(VisitRepeat)))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	run(t, m, 20, 10)

	path := filepath.Join(t.TempDir(), "clinicgen.prom")
	require.NoError(t, m.WriteTextfile(path))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, "clinicgen_batches_total 2")
	assert.Contains(t, text, `clinicgen_records_generated_total{visit="new"}`)
	assert.Contains(t, text, "clinicgen_last_run_valid_ratio")
	assert.Contains(t, text, "clinicgen_batch_duration_seconds_bucket")
}

func TestMetrics_WriteTextfileBadPath(t *testing.T) {
	m := New()
	err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "clinicgen.prom"))
	assert.Error(t, err)
}

func TestMetrics_Push(t *testing.T) {
	var (
		method, path string
		body         []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	stats := run(t, m, 10, 10)
	require.NoError(t, m.Push(context.Background(), srv.URL, "clinicgen", stats.RunID.String()))

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/clinicgen/run_id/"+stats.RunID.String(), path)
	assert.NotEmpty(t, body)
}

func TestMetrics_PushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New().Push(context.Background(), srv.URL, "clinicgen", "")
	assert.Error(t, err)
}
