// pkg/pipeline/errors.go
package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/features"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/model"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/schema"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/storage"
	"github.com/StasKorotchenko/EDEM-MDA2324-TFM/pkg/warehouse"
)

// ErrNoSchema is returned when an uploaded object matches no catalog entry
var ErrNoSchema = errors.New("no schema declared for object")

// ErrorCategory classifies pipeline failures
type ErrorCategory int

const (
	CategoryNone ErrorCategory = iota
	// Source object absent, the run skips it
	CategoryMissingSource
	// Input could not be parsed as a table
	CategoryParse
	// Values could not be coerced to their declared type
	CategoryCoercion
	CategoryStorage
	// Load job failed, the job payload is kept
	CategoryWarehouseLoad
	CategorySchema
	// A called service answered with an error
	CategoryDownstream
	CategoryCanceled
	CategoryUnknown
)

// String returns a string representation of the error category
func (c ErrorCategory) String() string {
	switch c {
	case CategoryNone:
		return "none"
	case CategoryMissingSource:
		return "missing_source"
	case CategoryParse:
		return "parse"
	case CategoryCoercion:
		return "coercion"
	case CategoryStorage:
		return "storage"
	case CategoryWarehouseLoad:
		return "warehouse_load"
	case CategorySchema:
		return "schema"
	case CategoryDownstream:
		return "downstream"
	case CategoryCanceled:
		return "canceled"
	case CategoryUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Fatal reports whether errors of this category end the run
func (c ErrorCategory) Fatal() bool {
	return c != CategoryNone && c != CategoryMissingSource && c != CategoryCoercion
}

// Error is a failure attributed to one stage of a run
type Error struct {
	Category ErrorCategory
	Stage    State
	Object   string
	Err      error
	At       time.Time
}

// NewError wraps err with its stage and classification
func NewError(stage State, object string, err error) *Error {
	return &Error{
		Category: Categorize(err),
		Stage:    stage,
		Object:   object,
		Err:      err,
		At:       time.Now().UTC(),
	}
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] ", e.Category))
	if e.Object != "" {
		sb.WriteString(fmt.Sprintf("%s ", e.Object))
	}
	sb.WriteString(fmt.Sprintf("failed while %s", e.Stage))
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Categorize determines the category of an error by inspecting its chain
func Categorize(err error) ErrorCategory {
	if err == nil {
		return CategoryNone
	}

	var (
		pipelineErr *Error
		loadErr     *warehouse.LoadError
		csvErr      *csv.ParseError
	)
	switch {
	case errors.As(err, &pipelineErr):
		return pipelineErr.Category
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CategoryCanceled
	case errors.As(err, &loadErr), errors.Is(err, warehouse.ErrNoData):
		return CategoryWarehouseLoad
	case errors.Is(err, ErrNoSchema),
		errors.Is(err, schema.ErrInvalidSchema),
		errors.Is(err, schema.ErrUnknownType),
		errors.Is(err, schema.ErrUnknownMode),
		errors.Is(err, features.ErrMissingGroupKey),
		errors.Is(err, features.ErrMissingSourceColumn):
		return CategorySchema
	case errors.Is(err, storage.ErrNotFound):
		return CategoryMissingSource
	case errors.Is(err, model.ErrEmptyFile), errors.As(err, &csvErr):
		return CategoryParse
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "failed to parse"), strings.Contains(msg, "failed to read header"):
		return CategoryParse
	case strings.Contains(msg, "download"), strings.Contains(msg, "upload"), strings.Contains(msg, "failed to check"):
		return CategoryStorage
	default:
		return CategoryUnknown
	}
}
