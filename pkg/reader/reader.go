// pkg/reader/reader.go
package reader

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/model"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/storage"
)

// DefaultSources are the files the feature job reads
var DefaultSources = []string{
	"orders.csv",
	"order_items.csv",
	"order_payments.csv",
	"reviews.csv",
	"customers.csv",
}

// Result lists which sources were read and which were absent
type Result struct {
	Tables  []*model.Table
	Missing []string
}

// Reader fetches raw CSV sources from object storage
type Reader struct {
	store  storage.ObjectStore
	logger *zap.Logger
}

// New creates a source reader
func New(store storage.ObjectStore) *Reader {
	return &Reader{
		store:  store,
		logger: zap.L().Named("reader"),
	}
}

// Read fetches and parses each named object of the bucket. Objects that do not
// exist are skipped with a log note. Storage and parse errors abort the read.
func (r *Reader) Read(ctx context.Context, bucket string, names []string) (*Result, error) {
	result := &Result{}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		exists, err := r.store.Exists(ctx, bucket, name)
		if err != nil {
			return nil, fmt.Errorf("failed to check source %s: %w", name, err)
		}
		if !exists {
			r.logger.Info("Source file does not exist, skipping",
				zap.String("bucket", bucket),
				zap.String("file", name))
			result.Missing = append(result.Missing, name)
			continue
		}

		r.logger.Info("Downloading source file",
			zap.String("bucket", bucket),
			zap.String("file", name))

		data, err := r.store.Read(ctx, bucket, name)
		if err != nil {
			return nil, fmt.Errorf("failed to download source %s: %w", name, err)
		}

		table, err := model.ReadCSV(name, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}

		r.logger.Debug("Parsed source file",
			zap.String("file", name),
			zap.Strings("columns", table.Columns),
			zap.Int("rows", table.Len()))

		result.Tables = append(result.Tables, table)
	}

	return result, nil
}

// ReadObject fetches and parses a single object
func (r *Reader) ReadObject(ctx context.Context, bucket, name string) (*model.Table, error) {
	data, err := r.store.Read(ctx, bucket, name)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", name, err)
	}
	return model.ReadCSV(name, bytes.NewReader(data))
}
