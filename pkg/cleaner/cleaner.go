// pkg/cleaner/cleaner.go
package cleaner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/model"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/storage"
)

// DefaultProcessedPrefix marks cleaned objects
const DefaultProcessedPrefix = "processed_"

// DataCleaner repairs source tables according to their declared schema
type DataCleaner struct {
	store  storage.ObjectStore
	prefix string
	now    func() time.Time
	logger *zap.Logger
}

// ObjectResult describes the outcome of cleaning one stored object
type ObjectResult struct {
	Source           storage.Object
	Processed        storage.Object
	AlreadyProcessed bool
	Rows             int
	Operations       []model.CleaningOperation
	// Cleaned content, nil when the object was already processed
	Table *model.Table
}

// NewDataCleaner creates a cleaner that reads and writes through store
func NewDataCleaner(store storage.ObjectStore, prefix string) (*DataCleaner, error) {
	if store == nil {
		return nil, errors.New("object store cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultProcessedPrefix
	}

	return &DataCleaner{
		store:  store,
		prefix: prefix,
		now:    time.Now,
		logger: zap.L().Named("cleaner"),
	}, nil
}

// Prefix returns the processed-object name prefix
func (c *DataCleaner) Prefix() string {
	return c.prefix
}

// ProcessedName returns the name a cleaned copy of name is stored under
func (c *DataCleaner) ProcessedName(name string) string {
	return c.prefix + name
}

// IsProcessed reports whether name is itself a cleaned output
func (c *DataCleaner) IsProcessed(name string) bool {
	base := name
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	return strings.HasPrefix(name, c.prefix) || strings.HasPrefix(base, c.prefix)
}

// Clean returns a cleaned copy of table and the operations performed. The
// amount column is clipped first; every other column is cleaned independently.
// Columns named in buckets but absent from the table are ignored.
func (c *DataCleaner) Clean(table *model.Table, buckets schema.Buckets, cctx model.CleaningContext) (*model.Table, []model.CleaningOperation) {
	out := table.Clone()
	var operations []model.CleaningOperation

	base := model.CleaningOperation{
		RunID:        cctx.RunID,
		SourceObject: cctx.SourceObject,
		TableName:    cctx.TableName,
		CleanedAt:    c.now().UTC(),
	}

	apply := func(column string, clean func([]model.Value, model.CleaningOperation) columnResult) {
		values := out.Column(column)
		if values == nil {
			return
		}
		op := base
		op.ColumnName = column
		res := clean(values, op)
		out.SetColumn(column, res.values)
		operations = append(operations, res.ops...)
	}

	apply(AmountColumn, clipAmount)

	for _, col := range buckets.Integer {
		apply(col, cleanInteger)
	}
	for _, col := range buckets.Float {
		apply(col, cleanFloat)
	}

	dates := make(map[string]bool)
	var order []string
	add := func(col string, dateOnly bool) {
		if _, seen := dates[col]; !seen {
			order = append(order, col)
			dates[col] = dateOnly
		}
	}
	for _, col := range buckets.Date {
		add(col, true)
	}
	for _, col := range buckets.Timestamp {
		add(col, false)
	}
	for _, col := range BaselineDateColumns {
		add(col, false)
	}
	for _, col := range order {
		dateOnly := dates[col]
		apply(col, func(values []model.Value, op model.CleaningOperation) columnResult {
			return cleanDate(values, dateOnly, op)
		})
	}

	for _, op := range operations {
		c.logger.Debug("Cleaned column",
			zap.String("table", op.TableName),
			zap.String("column", op.ColumnName),
			zap.String("operation", op.Operation),
			zap.Int("rows", op.AffectedRows))
	}

	return out, operations
}

// CleanObject cleans bucket/name and stores the result under the processed
// prefix. When the processed object already exists nothing is read or written.
func (c *DataCleaner) CleanObject(
	ctx context.Context,
	bucket, name string,
	buckets schema.Buckets,
	cctx model.CleaningContext,
) (*ObjectResult, error) {
	result := &ObjectResult{
		Source:    storage.Object{Bucket: bucket, Name: name},
		Processed: storage.Object{Bucket: bucket, Name: c.ProcessedName(name)},
	}

	exists, err := c.store.Exists(ctx, bucket, result.Processed.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check for %s: %w", result.Processed, err)
	}
	if exists {
		c.logger.Info("Object already processed, skipping",
			zap.String("object", result.Source.URI()),
			zap.String("processed", result.Processed.URI()))
		result.AlreadyProcessed = true
		return result, nil
	}

	data, err := c.store.Read(ctx, bucket, name)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", result.Source, err)
	}

	table, err := model.ReadCSV(name, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	cctx.SourceObject = result.Source.URI()
	cleaned, operations := c.Clean(table, buckets, cctx)

	encoded, err := cleaned.EncodeCSV()
	if err != nil {
		return nil, fmt.Errorf("failed to encode cleaned %s: %w", name, err)
	}

	if err := c.store.Write(ctx, bucket, result.Processed.Name, storage.ContentTypeCSV, encoded); err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", result.Processed, err)
	}

	result.Rows = cleaned.Len()
	result.Operations = operations
	result.Table = cleaned

	c.logger.Info("Cleaned object",
		zap.String("object", result.Source.URI()),
		zap.String("processed", result.Processed.URI()),
		zap.Int("rows", result.Rows),
		zap.Int("operations", len(operations)))

	return result, nil
}
