// pkg/warehouse/bigquery.go
package warehouse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	bq "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/config"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
)

const (
	jobStateDone    = "DONE"
	sourceFormatCSV = "CSV"
	createNever     = "CREATE_NEVER"
)

// BigQuery implements Warehouse on the BigQuery v2 REST API
type BigQuery struct {
	svc          *bq.Service
	project      string
	location     string
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewBigQuery creates a BigQuery warehouse for the configured project
func NewBigQuery(ctx context.Context, cfg *config.BigQueryConfig, opts ...option.ClientOption) (*BigQuery, error) {
	logger := zap.L().Named("bigquery-warehouse")

	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	svc, err := bq.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %w", err)
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	logger.Info("Using BigQuery",
		zap.String("project", cfg.Project),
		zap.String("location", cfg.Location))

	return &BigQuery{
		svc:          svc,
		project:      cfg.Project,
		location:     cfg.Location,
		pollInterval: pollInterval,
		logger:       logger,
	}, nil
}

func (b *BigQuery) tableRef(ref TableRef) *bq.TableReference {
	return &bq.TableReference{ProjectId: b.project, DatasetId: ref.Dataset, TableId: ref.Table}
}

func (b *BigQuery) EnsureDataset(ctx context.Context, dataset string) error {
	_, err := b.svc.Datasets.Get(b.project, dataset).Context(ctx).Do()
	if err == nil {
		return nil
	}
	if !hasStatus(err, http.StatusNotFound) {
		return fmt.Errorf("failed to get dataset %s: %w", dataset, err)
	}

	_, err = b.svc.Datasets.Insert(b.project, &bq.Dataset{
		DatasetReference: &bq.DatasetReference{ProjectId: b.project, DatasetId: dataset},
		Location:         b.location,
	}).Context(ctx).Do()
	if err != nil && !hasStatus(err, http.StatusConflict) {
		return fmt.Errorf("failed to create dataset %s: %w", dataset, err)
	}
	b.logger.Info("Created dataset", zap.String("dataset", dataset))
	return nil
}

func (b *BigQuery) GetTable(ctx context.Context, ref TableRef) (Lookup, error) {
	t, err := b.svc.Tables.Get(b.project, ref.Dataset, ref.Table).Context(ctx).Do()
	if err != nil {
		if hasStatus(err, http.StatusNotFound) {
			return Lookup{Exists: false}, nil
		}
		return Lookup{}, fmt.Errorf("failed to get table %s: %w", ref, err)
	}

	var actual schema.TableSchema
	if t.Schema != nil {
		actual = fromTableFields(t.Schema.Fields)
	}
	return Lookup{Exists: true, Schema: actual, NumRows: int64(t.NumRows)}, nil
}

func (b *BigQuery) CreateTable(ctx context.Context, ref TableRef, s schema.TableSchema) error {
	_, err := b.svc.Tables.Insert(b.project, ref.Dataset, &bq.Table{
		TableReference: b.tableRef(ref),
		Schema:         &bq.TableSchema{Fields: toTableFields(s)},
	}).Context(ctx).Do()
	if err != nil {
		if hasStatus(err, http.StatusConflict) {
			b.logger.Debug("Table already exists", zap.String("table", ref.String()))
			return nil
		}
		return fmt.Errorf("failed to create table %s: %w", ref, err)
	}
	b.logger.Info("Created table", zap.String("table", ref.String()))
	return nil
}

// Load submits a CSV load job and polls it until it is DONE
func (b *BigQuery) Load(
	ctx context.Context,
	ref TableRef,
	s schema.TableSchema,
	src LoadSource,
	opts LoadOptions,
) (LoadResult, error) {
	disposition := opts.Disposition
	if disposition == "" {
		disposition = WriteAppend
	}

	load := &bq.JobConfigurationLoad{
		DestinationTable:    b.tableRef(ref),
		Schema:              &bq.TableSchema{Fields: toTableFields(s)},
		SourceFormat:        sourceFormatCSV,
		SkipLeadingRows:     1,
		AllowQuotedNewlines: true,
		MaxBadRecords:       int64(opts.MaxBadRecords),
		WriteDisposition:    string(disposition),
		CreateDisposition:   createNever,
	}
	if len(src.Data) == 0 {
		if src.URI == "" {
			return LoadResult{}, fmt.Errorf("load into %s: %w", ref, ErrNoData)
		}
		load.SourceUris = []string{src.URI}
	}

	job := &bq.Job{
		JobReference: &bq.JobReference{
			ProjectId: b.project,
			JobId:     "load_" + uuid.NewString(),
			Location:  b.location,
		},
		Configuration: &bq.JobConfiguration{Load: load},
	}

	call := b.svc.Jobs.Insert(b.project, job).Context(ctx)
	if len(src.Data) > 0 {
		call = call.Media(bytes.NewReader(src.Data), googleapi.ContentType("application/octet-stream"))
	}

	submitted, err := call.Do()
	if err != nil {
		return LoadResult{}, fmt.Errorf("failed to submit load job for %s: %w", ref, err)
	}
	if submitted.JobReference == nil {
		submitted.JobReference = job.JobReference
	}
	jobID := submitted.JobReference.JobId

	b.logger.Info("Submitted load job",
		zap.String("table", ref.String()),
		zap.String("job_id", jobID),
		zap.String("disposition", string(disposition)))

	done, err := b.wait(ctx, submitted)
	if err != nil {
		return LoadResult{}, fmt.Errorf("failed waiting for load job %s: %w", jobID, err)
	}

	if status := done.Status; status.ErrorResult != nil {
		loadErr := &LoadError{
			Table:   ref,
			JobID:   jobID,
			Reason:  status.ErrorResult.Reason,
			Message: status.ErrorResult.Message,
		}
		for _, e := range status.Errors {
			loadErr.Errors = append(loadErr.Errors, e.Message)
		}
		loadErr.Errors = firstErrors(loadErr.Errors)
		return LoadResult{}, loadErr
	}

	result := LoadResult{JobID: jobID}
	if done.Statistics != nil && done.Statistics.Load != nil {
		result.OutputRows = done.Statistics.Load.OutputRows
		result.BadRecords = done.Statistics.Load.BadRecords
	}
	return result, nil
}

// wait polls a job until its state is DONE
func (b *BigQuery) wait(ctx context.Context, job *bq.Job) (*bq.Job, error) {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	ref := job.JobReference
	for job.Status == nil || job.Status.State != jobStateDone {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		call := b.svc.Jobs.Get(ref.ProjectId, ref.JobId).Context(ctx)
		if ref.Location != "" {
			call = call.Location(ref.Location)
		}
		next, err := call.Do()
		if err != nil {
			return nil, err
		}
		job = next
		if job.JobReference == nil {
			job.JobReference = ref
		}
	}
	return job, nil
}

// InsertRows streams rows through tabledata.insertAll
func (b *BigQuery) InsertRows(ctx context.Context, ref TableRef, s schema.TableSchema, rows []Row) error {
	req := &bq.TableDataInsertAllRequest{Rows: make([]*bq.TableDataInsertAllRequestRows, len(rows))}
	for i, r := range rows {
		values := make(map[string]bq.JsonValue, len(r))
		for name, v := range r {
			f, ok := s.Field(name)
			if !ok {
				return fmt.Errorf("insert into %s: row %d: no such field: %s", ref, i, name)
			}
			values[name] = jsonValue(v, f)
		}
		req.Rows[i] = &bq.TableDataInsertAllRequestRows{InsertId: uuid.NewString(), Json: values}
	}

	resp, err := b.svc.Tabledata.InsertAll(b.project, ref.Dataset, ref.Table, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("insert into %s: %w", ref, err)
	}
	if len(resp.InsertErrors) > 0 {
		var msgs []string
		for _, ie := range resp.InsertErrors {
			for _, e := range ie.Errors {
				msgs = append(msgs, fmt.Sprintf("row %d: %s", ie.Index, e.Message))
			}
		}
		return &LoadError{Table: ref, Reason: "invalid", Message: "streaming insert rejected rows", Errors: firstErrors(msgs)}
	}
	return nil
}

func (b *BigQuery) CountRows(ctx context.Context, ref TableRef) (int64, error) {
	lookup, err := b.GetTable(ctx, ref)
	if err != nil {
		return 0, err
	}
	if !lookup.Exists {
		return 0, fmt.Errorf("%w: %s", ErrTableNotFound, ref)
	}
	return lookup.NumRows, nil
}

// Close is a no-op, the REST client holds no connections of its own
func (b *BigQuery) Close() error {
	return nil
}

func jsonValue(v interface{}, f schema.Field) bq.JsonValue {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	if f.Type == schema.TypeDate {
		return t.UTC().Format("2006-01-02")
	}
	return t.UTC().Format("2006-01-02 15:04:05.999999")
}

func toTableFields(fields []schema.Field) []*bq.TableFieldSchema {
	if len(fields) == 0 {
		return nil
	}
	out := make([]*bq.TableFieldSchema, len(fields))
	for i, f := range fields {
		mode := f.Mode
		if mode == "" {
			mode = schema.ModeNullable
		}
		out[i] = &bq.TableFieldSchema{
			Name:        f.Name,
			Type:        string(f.Type),
			Mode:        string(mode),
			Description: f.Description,
			Fields:      toTableFields(f.Fields),
		}
	}
	return out
}

func fromTableFields(fields []*bq.TableFieldSchema) []schema.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]schema.Field, len(fields))
	for i, f := range fields {
		t, err := schema.ParseFieldType(f.Type)
		if err != nil {
			// BYTES, TIME, GEOGRAPHY and friends have no declared counterpart
			t = schema.TypeString
		}
		mode, err := schema.ParseMode(f.Mode)
		if err != nil {
			mode = schema.ModeNullable
		}
		out[i] = schema.Field{
			Name:        f.Name,
			Type:        t,
			Mode:        mode,
			Description: f.Description,
			Fields:      fromTableFields(f.Fields),
		}
	}
	return out
}

func hasStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}
