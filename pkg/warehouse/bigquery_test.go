package warehouse

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bq "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/option"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/config"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
)

// fakeBigQuery serves the subset of the BigQuery v2 REST API the warehouse uses
type fakeBigQuery struct {
	mu       sync.Mutex
	tables   map[string]*bq.Table
	datasets map[string]bool
	jobs     map[string]*bq.Job
	polls    int
	inserted []*bq.TableDataInsertAllRequest
	uploads  [][]byte
	// Job result applied when a job is polled
	jobError *bq.ErrorProto
}

func newFakeBigQuery() *fakeBigQuery {
	return &fakeBigQuery{
		tables:   make(map[string]*bq.Table),
		datasets: make(map[string]bool),
		jobs:     make(map[string]*bq.Job),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]interface{}{
		"error": map[string]interface{}{"code": 404, "message": "Not found"},
	})
}

func (f *fakeBigQuery) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(path, "/upload/bigquery/v2/projects/p/jobs"):
		body, _ := io.ReadAll(r.Body)
		f.uploads = append(f.uploads, body)
		job := &bq.Job{
			JobReference: &bq.JobReference{ProjectId: "p", JobId: "upload-job", Location: "US"},
			Status:       &bq.JobStatus{State: "RUNNING"},
		}
		f.jobs["upload-job"] = job
		writeJSON(w, http.StatusOK, job)

	case r.Method == http.MethodPost && path == "/bigquery/v2/projects/p/jobs":
		var job bq.Job
		_ = json.NewDecoder(r.Body).Decode(&job)
		job.Status = &bq.JobStatus{State: "PENDING"}
		f.jobs[job.JobReference.JobId] = &job
		writeJSON(w, http.StatusOK, &job)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/bigquery/v2/projects/p/jobs/"):
		id := strings.TrimPrefix(path, "/bigquery/v2/projects/p/jobs/")
		job, ok := f.jobs[id]
		if !ok {
			notFound(w)
			return
		}
		f.polls++
		job.Status = &bq.JobStatus{State: "DONE"}
		if f.jobError != nil {
			job.Status.ErrorResult = f.jobError
			job.Status.Errors = []*bq.ErrorProto{f.jobError, {Message: "row 2: bad value"}}
		} else {
			job.Statistics = &bq.JobStatistics{Load: &bq.JobStatistics3{OutputRows: 3, BadRecords: 1}}
		}
		writeJSON(w, http.StatusOK, job)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/bigquery/v2/projects/p/datasets/") && !strings.Contains(path, "/tables"):
		id := strings.TrimPrefix(path, "/bigquery/v2/projects/p/datasets/")
		if !f.datasets[id] {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, &bq.Dataset{Id: id})

	case r.Method == http.MethodPost && path == "/bigquery/v2/projects/p/datasets":
		var ds bq.Dataset
		_ = json.NewDecoder(r.Body).Decode(&ds)
		f.datasets[ds.DatasetReference.DatasetId] = true
		writeJSON(w, http.StatusOK, &ds)

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/insertAll"):
		var req bq.TableDataInsertAllRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.inserted = append(f.inserted, &req)
		writeJSON(w, http.StatusOK, &bq.TableDataInsertAllResponse{})

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/tables"):
		var t bq.Table
		_ = json.NewDecoder(r.Body).Decode(&t)
		f.tables[t.TableReference.DatasetId+"."+t.TableReference.TableId] = &t
		writeJSON(w, http.StatusOK, &t)

	case r.Method == http.MethodGet && strings.Contains(path, "/tables/"):
		parts := strings.Split(strings.TrimPrefix(path, "/bigquery/v2/projects/p/datasets/"), "/")
		t, ok := f.tables[parts[0]+"."+parts[2]]
		if !ok {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, t)

	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusTeapot)
	}
}

func newTestBigQuery(t *testing.T) (*BigQuery, *fakeBigQuery) {
	t.Helper()
	fake := newFakeBigQuery()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	w, err := NewBigQuery(context.Background(),
		&config.BigQueryConfig{Project: "p", Location: "US", PollInterval: time.Millisecond},
		option.WithEndpoint(srv.URL+"/bigquery/v2/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return w, fake
}

func TestBigQueryEnsureDataset(t *testing.T) {
	w, fake := newTestBigQuery(t)
	ctx := context.Background()

	require.NoError(t, w.EnsureDataset(ctx, "tablas"))
	assert.True(t, fake.datasets["tablas"])

	// existing datasets are left alone
	require.NoError(t, w.EnsureDataset(ctx, "tablas"))
}

func TestBigQueryCreateAndGetTable(t *testing.T) {
	w, fake := newTestBigQuery(t)
	ctx := context.Background()

	lookup, err := w.GetTable(ctx, ordersRef)
	require.NoError(t, err)
	assert.False(t, lookup.Exists)

	nested := append(schema.TableSchema{}, ordersSchema...)
	nested = append(nested, schema.Field{
		Name: "address", Type: schema.TypeRecord, Mode: schema.ModeNullable,
		Fields: []schema.Field{{Name: "city", Type: schema.TypeString, Mode: schema.ModeNullable}},
	})

	require.NoError(t, w.CreateTable(ctx, ordersRef, nested))
	created := fake.tables["tablas.orders"]
	require.NotNil(t, created)
	require.Len(t, created.Schema.Fields, 5)
	assert.Equal(t, "REQUIRED", created.Schema.Fields[0].Mode)
	assert.Equal(t, "RECORD", created.Schema.Fields[4].Type)
	assert.Equal(t, "city", created.Schema.Fields[4].Fields[0].Name)

	lookup, err = w.GetTable(ctx, ordersRef)
	require.NoError(t, err)
	assert.True(t, lookup.Exists)
	assert.Empty(t, nested.Diff(lookup.Schema))
}

func TestBigQueryLoadInlineData(t *testing.T) {
	w, fake := newTestBigQuery(t)

	res, err := w.Load(context.Background(), ordersRef, ordersSchema,
		LoadSource{Data: []byte("order_id\no1\n")},
		LoadOptions{Disposition: WriteTruncate, MaxBadRecords: 10})
	require.NoError(t, err)
	assert.Equal(t, "upload-job", res.JobID)
	assert.Equal(t, int64(3), res.OutputRows)
	assert.Equal(t, int64(1), res.BadRecords)
	assert.Equal(t, 1, fake.polls)

	require.Len(t, fake.uploads, 1)
	upload := string(fake.uploads[0])
	assert.Contains(t, upload, `"writeDisposition":"WRITE_TRUNCATE"`)
	assert.Contains(t, upload, `"maxBadRecords":10`)
	assert.Contains(t, upload, "o1")
}

func TestBigQueryLoadFromURI(t *testing.T) {
	w, fake := newTestBigQuery(t)

	res, err := w.Load(context.Background(), ordersRef, ordersSchema,
		LoadSource{URI: "gs://cargacsv2ml/processed_orders.csv"},
		LoadOptions{})
	require.NoError(t, err)

	job := fake.jobs[res.JobID]
	require.NotNil(t, job)
	load := job.Configuration.Load
	assert.Equal(t, []string{"gs://cargacsv2ml/processed_orders.csv"}, load.SourceUris)
	assert.Equal(t, "WRITE_APPEND", load.WriteDisposition)
	assert.Equal(t, "CREATE_NEVER", load.CreateDisposition)
	assert.Equal(t, int64(1), load.SkipLeadingRows)
}

func TestBigQueryLoadJobError(t *testing.T) {
	w, fake := newTestBigQuery(t)
	fake.jobError = &bq.ErrorProto{Reason: "invalid", Message: "Error while reading data"}

	_, err := w.Load(context.Background(), ordersRef, ordersSchema,
		LoadSource{URI: "gs://b/o.csv"}, LoadOptions{})

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "invalid", loadErr.Reason)
	assert.Equal(t, "Error while reading data", loadErr.Message)
	assert.Equal(t, []string{"Error while reading data", "row 2: bad value"}, loadErr.Errors)
}

func TestBigQueryLoadWithoutSource(t *testing.T) {
	w, _ := newTestBigQuery(t)
	_, err := w.Load(context.Background(), ordersRef, ordersSchema, LoadSource{}, LoadOptions{})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestBigQueryInsertRows(t *testing.T) {
	w, fake := newTestBigQuery(t)
	s := schema.TableSchema{
		{Name: "prediction", Type: schema.TypeInteger},
		{Name: "timestamp", Type: schema.TypeTimestamp},
	}
	ref := TableRef{Dataset: "tabla_pred_clust", Table: "pred_clust"}
	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	require.NoError(t, w.InsertRows(context.Background(), ref, s, []Row{{"prediction": 4, "timestamp": ts}}))
	require.Len(t, fake.inserted, 1)
	row := fake.inserted[0].Rows[0]
	assert.NotEmpty(t, row.InsertId)
	assert.Equal(t, float64(4), row.Json["prediction"])
	assert.Equal(t, "2024-05-01 12:30:00", row.Json["timestamp"])

	err := w.InsertRows(context.Background(), ref, s, []Row{{"nope": 1}})
	assert.Error(t, err)
}
