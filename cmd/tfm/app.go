// cmd/tfm/app.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/cleaner"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/config"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/pipeline"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/reader"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/storage"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/warehouse"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/writer"
)

// app holds the lazily opened backends shared by the commands
type app struct {
	logger  *zap.Logger
	cfg     *config.Config
	store   storage.ObjectStore
	wh      warehouse.Warehouse
	catalog *schema.Catalog
}

func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *app) schemas() (*schema.Catalog, error) {
	if a.catalog != nil {
		return a.catalog, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	if cfg.Pipeline.SchemaFile != "" {
		a.catalog, err = schema.Load(cfg.Pipeline.SchemaFile)
	} else {
		a.catalog, err = schema.Default()
	}
	return a.catalog, err
}

func (a *app) objectStore(ctx context.Context) (storage.ObjectStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	a.store, err = storage.New(ctx, cfg.Storage)
	return a.store, err
}

func (a *app) warehouse(ctx context.Context) (warehouse.Warehouse, error) {
	if a.wh != nil {
		return a.wh, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	a.wh, err = warehouse.New(ctx, cfg)
	return a.wh, err
}

func (a *app) writer(ctx context.Context) (*writer.Writer, error) {
	wh, err := a.warehouse(ctx)
	if err != nil {
		return nil, err
	}
	return writer.New(wh, a.cfg.Pipeline.MaxBadRecords), nil
}

func (a *app) ingestor(ctx context.Context) (*pipeline.Ingestor, error) {
	catalog, err := a.schemas()
	if err != nil {
		return nil, err
	}
	store, err := a.objectStore(ctx)
	if err != nil {
		return nil, err
	}
	w, err := a.writer(ctx)
	if err != nil {
		return nil, err
	}
	c, err := cleaner.NewDataCleaner(store, a.cfg.Pipeline.ProcessedPrefix)
	if err != nil {
		return nil, err
	}
	return pipeline.NewIngestor(c, w, catalog, pipeline.IngestOptions{
		Dataset:    a.cfg.Pipeline.Dataset,
		AuditTable: a.cfg.Pipeline.AuditTable,
	})
}

// featureJob builds the feature job. Without a writer it can only compute.
func (a *app) featureJob(ctx context.Context, withWriter bool) (*pipeline.FeatureJob, error) {
	catalog, err := a.schemas()
	if err != nil {
		return nil, err
	}
	store, err := a.objectStore(ctx)
	if err != nil {
		return nil, err
	}
	var w *writer.Writer
	if withWriter {
		if w, err = a.writer(ctx); err != nil {
			return nil, err
		}
	}
	return pipeline.NewFeatureJob(reader.New(store), w, catalog, pipeline.FeatureOptions{
		Bucket:  a.cfg.Pipeline.SourceBucket,
		Sources: a.cfg.Pipeline.SourceFiles,
		Dataset: a.cfg.Pipeline.FeatureDataset,
		Table:   a.cfg.Pipeline.FeatureTable,
		Strict:  a.cfg.Pipeline.StrictColumns,
	})
}

func (a *app) close() {
	if a.wh != nil {
		if err := a.wh.Close(); err != nil {
			logger().Warn("Failed to close warehouse", zap.Error(err))
		}
	}
	if c, ok := a.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger().Warn("Failed to close object store", zap.Error(err))
		}
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
