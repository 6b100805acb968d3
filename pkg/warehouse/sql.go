// pkg/warehouse/sql.go
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/converter"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
)

const (
	defaultBatchSize = 1000
	// Postgres accepts at most 65535 bind parameters per statement
	maxBindParams = 65535
)

// columnsQuery reads the actual layout of a table. Aliases are quoted so both
// backends return lower-case column labels.
const columnsQuery = `
	SELECT column_name AS "column_name",
	       data_type AS "data_type",
	       is_nullable AS "is_nullable",
	       numeric_scale AS "numeric_scale"
	FROM information_schema.columns
	WHERE table_schema = ? AND table_name = ?
	ORDER BY ordinal_position
`

// columnInfo is one information_schema.columns row
type columnInfo struct {
	Name         string        `db:"column_name"`
	DataType     string        `db:"data_type"`
	IsNullable   string        `db:"is_nullable"`
	NumericScale sql.NullInt64 `db:"numeric_scale"`
	// Element type of Postgres arrays, e.g. _int8
	UDTName sql.NullString `db:"udt_name"`
}

// sqlBackend implements the Warehouse operations shared by SQL destinations
type sqlBackend struct {
	db        *sqlx.DB
	conv      *converter.TypeConverter
	logger    *zap.Logger
	database  string
	timeout   time.Duration
	batchSize int
	// Overrides columnsQuery when the backend exposes more detail
	columnsQuery string
}

func (b *sqlBackend) EnsureDataset(ctx context.Context, dataset string) error {
	stmt := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", converter.QuoteIdentifier(dataset))
	if _, err := b.ExecWithTimeout(ctx, stmt, b.timeout); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", dataset, err)
	}
	return nil
}

func (b *sqlBackend) GetTable(ctx context.Context, ref TableRef) (Lookup, error) {
	query := b.columnsQuery
	if query == "" {
		query = columnsQuery
	}

	queryCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var cols []columnInfo
	if err := b.db.SelectContext(queryCtx, &cols, b.db.Rebind(query), ref.Dataset, ref.Table); err != nil {
		return Lookup{}, fmt.Errorf("failed to describe table %s: %w", ref, err)
	}
	if len(cols) == 0 {
		return Lookup{Exists: false}, nil
	}

	actual := make(schema.TableSchema, len(cols))
	for i, col := range cols {
		actual[i] = b.fieldFromColumn(col)
	}
	return Lookup{Exists: true, Schema: actual}, nil
}

func (b *sqlBackend) fieldFromColumn(col columnInfo) schema.Field {
	scale := -1
	if col.NumericScale.Valid {
		scale = int(col.NumericScale.Int64)
	}

	var f schema.Field
	f.Name = col.Name
	if strings.EqualFold(col.DataType, "ARRAY") && col.UDTName.Valid && strings.HasPrefix(col.UDTName.String, "_") {
		f.Type, _ = b.conv.ReverseType(strings.TrimPrefix(col.UDTName.String, "_"), scale)
		f.Mode = schema.ModeRepeated
		return f
	}

	f.Type, f.Mode = b.conv.ReverseType(col.DataType, scale)
	if f.Mode == schema.ModeNullable && strings.EqualFold(col.IsNullable, "NO") {
		f.Mode = schema.ModeRequired
	}
	return f
}

func (b *sqlBackend) CreateTable(ctx context.Context, ref TableRef, s schema.TableSchema) error {
	stmt, err := b.conv.CreateTableStatement(ref.Dataset, ref.Table, s)
	if err != nil {
		return fmt.Errorf("failed to render table %s: %w", ref, err)
	}
	if _, err := b.ExecWithTimeout(ctx, stmt, b.timeout); err != nil {
		return fmt.Errorf("failed to create table %s: %w", ref, err)
	}
	b.logger.Info("Created table", zap.String("table", ref.String()))
	return nil
}

// Load converts the CSV rows and writes them in a single transaction
func (b *sqlBackend) Load(
	ctx context.Context,
	ref TableRef,
	s schema.TableSchema,
	src LoadSource,
	opts LoadOptions,
) (LoadResult, error) {
	if len(src.Data) == 0 {
		return LoadResult{}, fmt.Errorf("load into %s from %q: %w", ref, src.URI, ErrNoData)
	}

	jobID := uuid.NewString()
	prepared, err := prepareRows(b.conv, ref, s, src.Data)
	if err != nil {
		return LoadResult{}, err
	}
	if err := checkBadRecords(ref, jobID, prepared, opts.MaxBadRecords); err != nil {
		return LoadResult{}, err
	}

	loadCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	tx, err := b.db.BeginTxx(loadCtx, nil)
	if err != nil {
		return LoadResult{}, fmt.Errorf("failed to begin load into %s: %w", ref, err)
	}
	defer func() { _ = tx.Rollback() }()

	if opts.Disposition == WriteTruncate {
		stmt := "DELETE FROM " + converter.QualifiedName(ref.Dataset, ref.Table)
		if _, err := tx.ExecContext(loadCtx, stmt); err != nil {
			return LoadResult{}, &LoadError{Table: ref, JobID: jobID, Reason: "backendError", Message: err.Error()}
		}
	}

	inserted, err := b.batchInsert(loadCtx, tx, ref, s, prepared.Values)
	if err != nil {
		return LoadResult{}, &LoadError{Table: ref, JobID: jobID, Reason: "backendError", Message: err.Error()}
	}

	if err := tx.Commit(); err != nil {
		return LoadResult{}, &LoadError{Table: ref, JobID: jobID, Reason: "backendError", Message: err.Error()}
	}

	if len(prepared.Bad) > 0 {
		b.logger.Warn("Skipped bad records",
			zap.String("table", ref.String()),
			zap.Int("bad_records", len(prepared.Bad)),
			zap.Strings("errors", firstErrors(prepared.Bad)))
	}

	return LoadResult{
		JobID:      jobID,
		OutputRows: inserted,
		BadRecords: int64(len(prepared.Bad)),
	}, nil
}

func (b *sqlBackend) InsertRows(ctx context.Context, ref TableRef, s schema.TableSchema, rows []Row) error {
	values, err := rowValues(b.conv, s, rows)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", ref, err)
	}

	insertCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if _, err := b.batchInsert(insertCtx, b.db, ref, s, values); err != nil {
		return fmt.Errorf("insert into %s: %w", ref, err)
	}
	return nil
}

// CountRows returns the number of rows stored in a table
func (b *sqlBackend) CountRows(ctx context.Context, ref TableRef) (int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var count int64
	query := "SELECT COUNT(*) FROM " + converter.QualifiedName(ref.Dataset, ref.Table)
	if err := b.db.GetContext(queryCtx, &count, query); err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", ref, err)
	}
	return count, nil
}

// Close closes the database connection
func (b *sqlBackend) Close() error {
	b.logger.Info("Closing connection")
	logPoolStats(b.logger, b.db)
	return b.db.Close()
}

// ExecWithTimeout executes a statement with a timeout
func (b *sqlBackend) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return b.db.ExecContext(queryCtx, query, args...)
}

// batchInsert performs a bulk insert, splitting rows into statements that
// stay under the bind parameter limit
func (b *sqlBackend) batchInsert(
	ctx context.Context,
	exec sqlx.ExtContext,
	ref TableRef,
	s schema.TableSchema,
	valueRows [][]interface{},
) (int64, error) {
	if len(valueRows) == 0 {
		return 0, nil
	}

	batchSize := b.batchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if limit := maxBindParams / len(s); batchSize > limit {
		batchSize = limit
	}

	var totalRowsInserted int64
	for i := 0; i < len(valueRows); i += batchSize {
		end := i + batchSize
		if end > len(valueRows) {
			end = len(valueRows)
		}
		currentBatch := valueRows[i:end]

		args := make([]interface{}, 0, len(currentBatch)*len(s))
		for _, row := range currentBatch {
			args = append(args, row...)
		}

		query := exec.Rebind(insertStatement(b.conv, ref, s, len(currentBatch)))
		result, err := exec.ExecContext(ctx, query, args...)
		if err != nil {
			return totalRowsInserted, fmt.Errorf("batch insert failed: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			b.logger.Warn("Couldn't get rows affected", zap.Error(err))
			rowsAffected = int64(len(currentBatch))
		}
		totalRowsInserted += rowsAffected
	}

	return totalRowsInserted, nil
}

// insertStatement renders a multi-row INSERT with ? placeholders. Snowflake
// cannot bind semi-structured values directly, so document columns are
// parsed from text through a SELECT over VALUES.
func insertStatement(conv *converter.TypeConverter, ref TableRef, s schema.TableSchema, rows int) string {
	cols := make([]string, len(s))
	hasDocuments := false
	for i, f := range s {
		cols[i] = converter.QuoteIdentifier(f.Name)
		if conv.IsDocument(f) {
			hasDocuments = true
		}
	}

	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(s)), ", ") + ")"
	values := strings.TrimSuffix(strings.Repeat(placeholders+", ", rows), ", ")
	target := fmt.Sprintf("INSERT INTO %s (%s)",
		converter.QualifiedName(ref.Dataset, ref.Table), strings.Join(cols, ", "))

	if conv.Dialect() != converter.DialectSnowflake || !hasDocuments {
		return fmt.Sprintf("%s VALUES %s", target, values)
	}

	exprs := make([]string, len(s))
	for i, f := range s {
		exprs[i] = fmt.Sprintf("column%d", i+1)
		if conv.IsDocument(f) {
			exprs[i] = "PARSE_JSON(" + exprs[i] + ")"
		}
	}
	return fmt.Sprintf("%s SELECT %s FROM VALUES %s", target, strings.Join(exprs, ", "), values)
}
