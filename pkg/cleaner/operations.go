// pkg/cleaner/operations.go
package cleaner

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/model"
)

// Fixed data quality rules
const (
	// AmountColumn receives outlier clipping before any other cleaning
	AmountColumn = "amount"
	// AmountCeiling is the largest plausible amount
	AmountCeiling = 10000.0

	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
)

// DateFloor is the earliest date kept; anything before it is nulled
var DateFloor = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// BaselineDateColumns are treated as timestamps whatever the table declares
var BaselineDateColumns = []string{
	"purchase_timestamp",
	"approved_at",
	"delivered_courier_date",
	"delivered_customer_date",
	"estimated_delivery_date",
}

// Reasons recorded on cleaning operations
const (
	reasonMissing    = "missing_value"
	reasonNotNumeric = "not_numeric"
	reasonNotDate    = "not_a_date"
	reasonBeforeDate = "before_2020-01-01"
	reasonAboveLimit = "above_10000"
	reasonFraction   = "fractional_integer"
)

// columnResult is the outcome of cleaning a single column
type columnResult struct {
	values []model.Value
	ops    []model.CleaningOperation
}

func (r *columnResult) record(op model.CleaningOperation, affected int) {
	if affected == 0 {
		return
	}
	op.AffectedRows = affected
	r.ops = append(r.ops, op)
}

// coerceNumeric parses every cell; non-numeric text becomes null
func coerceNumeric(values []model.Value) (nums []float64, present []bool, coerced int) {
	nums = make([]float64, len(values))
	present = make([]bool, len(values))
	for i, v := range values {
		if v.IsNull() {
			continue
		}
		f, ok := v.Float()
		if !ok {
			coerced++
			continue
		}
		nums[i] = f
		present[i] = true
	}
	return nums, present, coerced
}

func presentValues(nums []float64, present []bool) []float64 {
	out := make([]float64, 0, len(nums))
	for i, ok := range present {
		if ok {
			out = append(out, nums[i])
		}
	}
	return out
}

// clipAmount replaces values above the ceiling with the mean of the in-range values
func clipAmount(values []model.Value, base model.CleaningOperation) columnResult {
	nums, present, coerced := coerceNumeric(values)
	res := columnResult{values: make([]model.Value, len(values))}

	var inRange []float64
	for i, ok := range present {
		if ok && nums[i] <= AmountCeiling {
			inRange = append(inRange, nums[i])
		}
	}

	fill := model.Null
	if len(inRange) > 0 {
		fill = model.String(model.FormatFloat(stat.Mean(inRange, nil)))
	}

	clipped := 0
	for i, v := range values {
		switch {
		case !present[i]:
			res.values[i] = model.Null
		case nums[i] > AmountCeiling:
			res.values[i] = fill
			clipped++
		default:
			res.values[i] = v
		}
	}

	res.record(withKind(base, model.OperationCoercedToNull, reasonNotNumeric, ""), coerced)
	res.record(withKind(base, model.OperationOutlierClip, reasonAboveLimit, fill.Str), clipped)
	return res
}

// cleanInteger fills nulls with the column mode (mean when there is none) and
// stores every value as a whole number
func cleanInteger(values []model.Value, base model.CleaningOperation) columnResult {
	nums, present, coerced := coerceNumeric(values)
	res := columnResult{values: make([]model.Value, len(values))}

	// Text that parses as int64 is kept as written; anything else must
	// truncate into the int64 range or it becomes null.
	exact := make([]bool, len(values))
	for i, v := range values {
		if !present[i] {
			continue
		}
		if _, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64); err == nil {
			exact[i] = true
			continue
		}
		if !fitsInt64(nums[i]) {
			present[i] = false
			coerced++
		}
	}

	observed := presentValues(nums, present)
	fill, kind, hasFill := integerFill(observed)
	if hasFill && !fitsInt64(fill) {
		hasFill = false
	}

	filled, cast := 0, 0
	for i, v := range values {
		if !present[i] {
			if hasFill {
				res.values[i] = model.String(strconv.FormatInt(int64(fill), 10))
				filled++
			} else {
				res.values[i] = model.Null
			}
			continue
		}

		if exact[i] {
			res.values[i] = model.String(strings.TrimSpace(v.Str))
			continue
		}
		truncated := math.Trunc(nums[i])
		res.values[i] = model.String(strconv.FormatInt(int64(truncated), 10))
		if truncated != nums[i] {
			cast++
		}
	}

	fillValue := ""
	if hasFill {
		fillValue = strconv.FormatInt(int64(fill), 10)
	}
	res.record(withKind(base, model.OperationCoercedToNull, reasonNotNumeric, ""), coerced)
	res.record(withKind(base, kind, reasonMissing, fillValue), filled)
	res.record(withKind(base, model.OperationIntegerCast, reasonFraction, ""), cast)
	return res
}

// fitsInt64 reports whether f truncates to a representable int64
func fitsInt64(f float64) bool {
	t := math.Trunc(f)
	return t >= math.MinInt64 && t < -math.MinInt64
}

// integerFill picks the most frequent value, the smallest on ties, falling
// back to the mean
func integerFill(observed []float64) (float64, string, bool) {
	if len(observed) > 0 {
		mode, count := stat.Mode(observed, nil)
		if count > 0 {
			return math.Trunc(mode), model.OperationModeFill, true
		}
		mean := stat.Mean(observed, nil)
		if !math.IsNaN(mean) {
			return math.Trunc(mean), model.OperationMeanFill, true
		}
	}
	return 0, model.OperationModeFill, false
}

// cleanFloat fills nulls with the column mean
func cleanFloat(values []model.Value, base model.CleaningOperation) columnResult {
	nums, present, coerced := coerceNumeric(values)
	res := columnResult{values: make([]model.Value, len(values))}

	observed := presentValues(nums, present)
	fill := model.Null
	if len(observed) > 0 {
		fill = model.String(model.FormatFloat(stat.Mean(observed, nil)))
	}

	filled := 0
	for i := range values {
		if present[i] {
			res.values[i] = model.String(model.FormatFloat(nums[i]))
			continue
		}
		res.values[i] = fill
		if fill.Valid {
			filled++
		}
	}

	res.record(withKind(base, model.OperationCoercedToNull, reasonNotNumeric, ""), coerced)
	res.record(withKind(base, model.OperationMeanFill, reasonMissing, fill.Str), filled)
	return res
}

// cleanDate parses every cell, nulling unparseable values and values before
// the floor. dateOnly selects the output layout.
func cleanDate(values []model.Value, dateOnly bool, base model.CleaningOperation) columnResult {
	res := columnResult{values: make([]model.Value, len(values))}
	layout := timestampLayout
	if dateOnly {
		layout = dateLayout
	}

	unparseable, floored := 0, 0
	for i, v := range values {
		if v.IsNull() {
			res.values[i] = model.Null
			continue
		}
		t, err := toTime(v.Str)
		if err != nil {
			res.values[i] = model.Null
			unparseable++
			continue
		}
		if t.Before(DateFloor) {
			res.values[i] = model.Null
			floored++
			continue
		}
		res.values[i] = model.String(t.Format(layout))
	}

	res.record(withKind(base, model.OperationUnparseableDate, reasonNotDate, ""), unparseable)
	res.record(withKind(base, model.OperationDateFloor, reasonBeforeDate, ""), floored)
	return res
}

func withKind(base model.CleaningOperation, kind, reason, fill string) model.CleaningOperation {
	base.Operation = kind
	base.Reason = reason
	base.FillValue = fill
	return base
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"01-02-2006",
	"2006/01/02",
}

// toTime parses a date or timestamp, normalising to UTC
func toTime(raw string) (time.Time, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return time.Time{}, errors.New("empty string")
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("cannot parse time from '%s'", cleaned)
}
