// pkg/features/aggregate.go
package features

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/model"
)

// GroupKey is the customer identifier column
const GroupKey = "customer_id"

var (
	// ErrMissingGroupKey is returned when no input table carries the customer identifier
	ErrMissingGroupKey = errors.New("no input carries the customer identifier column")
	// ErrMissingSourceColumn is returned in strict mode when an aggregated column is absent from every input
	ErrMissingSourceColumn = errors.New("aggregation source column missing from every input")
)

// Func is an aggregation function
type Func string

// Supported aggregations
const (
	Sum   Func = "sum"
	Count Func = "count"
	Mean  Func = "mean"
	Min   Func = "min"
)

// Aggregation maps a source column to an output feature
type Aggregation struct {
	Source string
	Func   Func
	Output string
}

// CustomerFeatures is the per-customer feature definition
var CustomerFeatures = []Aggregation{
	{Source: "amount", Func: Sum, Output: "total_spent"},
	{Source: "order_id", Func: Count, Output: "purchase_frequency"},
	{Source: "price", Func: Mean, Output: "average_order_value"},
	{Source: "review_id", Func: Count, Output: "num_reviews"},
	{Source: "score", Func: Mean, Output: "avg_review_score"},
	{Source: "days_since_purchase", Func: Min, Output: "days_since_purchase"},
}

// Report describes what the aggregation saw
type Report struct {
	InputTables    int
	UnionRows      int
	NullKeyRows    int
	Customers      int
	MissingColumns []string
}

// Aggregator groups unioned source tables by customer
type Aggregator struct {
	aggregations []Aggregation
	strict       bool
	logger       *zap.Logger
}

// NewAggregator creates an aggregator. In strict mode a source column missing
// from every input fails the run instead of producing null features.
func NewAggregator(aggregations []Aggregation, strict bool) *Aggregator {
	return &Aggregator{
		aggregations: aggregations,
		strict:       strict,
		logger:       zap.L().Named("features"),
	}
}

// Columns returns the output column names
func (a *Aggregator) Columns() []string {
	cols := []string{GroupKey}
	for _, agg := range a.aggregations {
		cols = append(cols, agg.Output)
	}
	return cols
}

// Aggregate unions the tables and produces one row per distinct non-null
// customer identifier, sorted by identifier
func (a *Aggregator) Aggregate(tables ...*model.Table) (*model.Table, Report, error) {
	report := Report{InputTables: len(tables)}

	union := model.Concat("combined", tables...)
	report.UnionRows = union.Len()

	keyIdx := union.ColumnIndex(GroupKey)
	if keyIdx < 0 {
		return nil, report, ErrMissingGroupKey
	}

	for _, agg := range a.aggregations {
		if !union.HasColumn(agg.Source) {
			report.MissingColumns = append(report.MissingColumns, agg.Source)
		}
	}
	if len(report.MissingColumns) > 0 {
		a.logger.Warn("Aggregation source columns missing from every input",
			zap.Strings("columns", report.MissingColumns))
		if a.strict {
			return nil, report, fmt.Errorf("%w: %s", ErrMissingSourceColumn, strings.Join(report.MissingColumns, ", "))
		}
	}

	groups := make(map[string][]int)
	for i, row := range union.Rows {
		key := row[keyIdx]
		if key.IsNull() {
			report.NullKeyRows++
			continue
		}
		groups[key.Str] = append(groups[key.Str], i)
	}
	if report.NullKeyRows > 0 {
		a.logger.Info("Excluded rows without customer identifier",
			zap.Int("rows", report.NullKeyRows))
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := model.NewTable("customer_features", a.Columns()...)
	for _, id := range ids {
		row := make([]model.Value, 0, len(out.Columns))
		row = append(row, model.String(id))
		for _, agg := range a.aggregations {
			row = append(row, aggregate(union, groups[id], agg))
		}
		out.Rows = append(out.Rows, row)
	}
	report.Customers = out.Len()

	a.logger.Info("Aggregated customer features",
		zap.Int("input_tables", report.InputTables),
		zap.Int("union_rows", report.UnionRows),
		zap.Int("customers", report.Customers))

	return out, report, nil
}

func aggregate(union *model.Table, rows []int, agg Aggregation) model.Value {
	idx := union.ColumnIndex(agg.Source)

	if agg.Func == Count {
		n := 0
		if idx >= 0 {
			for _, r := range rows {
				if !union.Rows[r][idx].IsNull() {
					n++
				}
			}
		}
		return model.String(strconv.Itoa(n))
	}

	if idx < 0 {
		return model.Null
	}

	var values stats.Float64Data
	for _, r := range rows {
		if v, ok := union.Rows[r][idx].Float(); ok {
			values = append(values, v)
		}
	}

	var (
		result float64
		err    error
	)
	switch agg.Func {
	case Sum:
		result, err = stats.Sum(values)
	case Mean:
		result, err = stats.Mean(values)
	case Min:
		result, err = stats.Min(values)
	default:
		return model.Null
	}
	if err != nil || len(values) == 0 {
		return model.Null
	}
	return model.String(model.FormatFloat(result))
}
