package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/cleaner"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/storage"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/warehouse"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/writer"
)

const bucket = "cargacsv2ml"

const ordersCSV = `order_id,customer_id,order_status,purchase_timestamp,days_since_purchase
o1,c1,delivered,2021-03-04 10:00:00,10
o2,c2,delivered,2019-01-01 00:00:00,
o3,c1,shipped,not a date,30
`

var (
	ordersRef = warehouse.TableRef{Dataset: "tablas", Table: "orders"}
	auditRef  = warehouse.TableRef{Dataset: "tablas", Table: "cleaned_on_ingress"}
)

type ingestFixture struct {
	store    *storage.Memory
	wh       *warehouse.Memory
	ingestor *Ingestor
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	catalog, err := schema.Default()
	require.NoError(t, err)

	store := storage.NewMemory()
	wh := warehouse.NewMemory()
	c, err := cleaner.NewDataCleaner(store, "")
	require.NoError(t, err)

	ing, err := NewIngestor(c, writer.New(wh, 10), catalog, IngestOptions{
		Dataset:    "tablas",
		AuditTable: "cleaned_on_ingress",
	})
	require.NoError(t, err)
	return &ingestFixture{store: store, wh: wh, ingestor: ing}
}

func states(res *IngestResult) []State {
	out := make([]State, len(res.Transitions))
	for i, tr := range res.Transitions {
		out[i] = tr.State
	}
	return out
}

func TestIngestLoadsCleanedObject(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.store.Put(bucket, "orders.csv", []byte(ordersCSV))

	res, err := f.ingestor.Ingest(ctx, bucket, "orders.csv")
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []State{StateReceived, StateCleaning, StateEnsuringTable, StateLoading, StateDone}, states(res))
	assert.Equal(t, "orders", res.Table)
	assert.Equal(t, "gs://cargacsv2ml/orders.csv", res.Object)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, int64(3), res.LoadedRows)
	assert.NotEmpty(t, res.Operations)
	assert.True(t, res.Succeeded())

	exists, err := f.store.Exists(ctx, bucket, "processed_orders.csv")
	require.NoError(t, err)
	assert.True(t, exists)

	rows := f.wh.Rows(ordersRef)
	require.Len(t, rows, 3)
	assert.Equal(t, "o1", rows[0]["order_id"])
	assert.NotNil(t, rows[0]["purchase_timestamp"])
	// before the date floor
	assert.Nil(t, rows[1]["purchase_timestamp"])
	assert.Nil(t, rows[2]["purchase_timestamp"])
	assert.NotNil(t, rows[1]["days_since_purchase"])
	assert.Nil(t, rows[0]["approved_at"])

	audit := f.wh.Rows(auditRef)
	require.Len(t, audit, len(res.Operations))
	for _, row := range audit {
		assert.Equal(t, res.RunID, row["run_id"])
		assert.Equal(t, "orders", row["table_name"])
		assert.Equal(t, "gs://cargacsv2ml/orders.csv", row["source_object"])
	}
}

func TestIngestIgnoresProcessedOutput(t *testing.T) {
	f := newIngestFixture(t)
	f.store.Put(bucket, "processed_orders.csv", []byte(ordersCSV))

	res, err := f.ingestor.Ingest(context.Background(), bucket, "processed_orders.csv")
	require.NoError(t, err)
	assert.Equal(t, StateSkipped, res.State)
	assert.Equal(t, 0, f.wh.Loads())
}

func TestIngestShortCircuitsWhenAlreadyProcessed(t *testing.T) {
	f := newIngestFixture(t)
	f.store.Put(bucket, "orders.csv", []byte(ordersCSV))
	f.store.Put(bucket, "processed_orders.csv", []byte(ordersCSV))
	_, writesBefore := f.store.Counts()

	res, err := f.ingestor.Ingest(context.Background(), bucket, "orders.csv")
	require.NoError(t, err)
	assert.Equal(t, StateSkipped, res.State)
	assert.Equal(t, "object already processed", res.Reason)
	assert.Equal(t, []State{StateReceived, StateCleaning, StateSkipped}, states(res))
	assert.Equal(t, 0, f.wh.Loads())

	_, writesAfter := f.store.Counts()
	assert.Equal(t, writesBefore, writesAfter)
}

func TestIngestUnmatchedObjectFails(t *testing.T) {
	f := newIngestFixture(t)
	f.store.Put(bucket, "inventory.csv", []byte("sku\n1\n"))

	res, err := f.ingestor.Ingest(context.Background(), bucket, "inventory.csv")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSchema)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, "schema", res.Category)
	assert.Equal(t, err, res.Err())
	assert.False(t, res.Succeeded())
}

func TestIngestLoadFailure(t *testing.T) {
	f := newIngestFixture(t)
	f.store.Put(bucket, "orders.csv", []byte(ordersCSV))
	f.wh.Err = &warehouse.LoadError{Table: ordersRef, JobID: "j1", Reason: "invalid", Message: "bad"}

	res, err := f.ingestor.Ingest(context.Background(), bucket, "orders.csv")
	require.Error(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, CategoryWarehouseLoad.String(), res.Category)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StateLoading, perr.Stage)

	var loadErr *warehouse.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "j1", loadErr.JobID)

	// nothing is audited for a failed load
	assert.Empty(t, f.wh.Rows(auditRef))
}

func TestIngestMalformedObject(t *testing.T) {
	f := newIngestFixture(t)
	f.store.Put(bucket, "orders.csv", []byte("order_id,customer_id\no1,c1,extra\n"))

	res, err := f.ingestor.Ingest(context.Background(), bucket, "orders.csv")
	require.Error(t, err)
	assert.Equal(t, CategoryParse.String(), res.Category)
	assert.Equal(t, StateFailed, res.State)
}

func TestNewIngestorUnknownAuditTable(t *testing.T) {
	catalog, err := schema.Default()
	require.NoError(t, err)
	c, err := cleaner.NewDataCleaner(storage.NewMemory(), "")
	require.NoError(t, err)

	_, err = NewIngestor(c, writer.New(warehouse.NewMemory(), 10), catalog, IngestOptions{AuditTable: "nope"})
	assert.ErrorIs(t, err, ErrNoSchema)
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCategory
	}{
		{nil, CategoryNone},
		{context.Canceled, CategoryCanceled},
		{&warehouse.LoadError{Reason: "invalid"}, CategoryWarehouseLoad},
		{schema.ErrUnknownType, CategorySchema},
		{ErrNoSchema, CategorySchema},
		{errors.Join(errors.New("read"), storage.ErrNotFound), CategoryMissingSource},
		{errors.New("failed to upload gs://b/o: quota"), CategoryStorage},
		{errors.New("something else"), CategoryUnknown},
		{NewError(StateLoading, "o", schema.ErrInvalidSchema), CategorySchema},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Categorize(tt.err), "%v", tt.err)
	}
}

func TestErrorMessage(t *testing.T) {
	err := NewError(StateCleaning, "gs://b/orders.csv", errors.New("boom"))
	assert.Equal(t, "[unknown] gs://b/orders.csv failed while cleaning: boom", err.Error())
	assert.True(t, CategoryStorage.Fatal())
	assert.False(t, CategoryMissingSource.Fatal())
}
