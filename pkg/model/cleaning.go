// pkg/model/cleaning.go
package model

import (
	"time"
)

// Cleaning operation kinds
const (
	OperationModeFill        = "mode_fill"
	OperationMeanFill        = "mean_fill"
	OperationCoercedToNull   = "coerced_to_null"
	OperationUnparseableDate = "unparseable_date"
	OperationDateFloor       = "date_floor"
	OperationOutlierClip     = "outlier_clip"
	OperationIntegerCast     = "integer_cast"
)

// CleaningOperation summarises one kind of repair applied to a column
type CleaningOperation struct {
	RunID        string    `json:"run_id"`        // Pipeline run that performed the cleaning
	SourceObject string    `json:"source_object"` // Object the table was read from
	TableName    string    `json:"table_name"`    // Catalog table name
	ColumnName   string    `json:"column_name"`   // Column that was cleaned
	Operation    string    `json:"operation"`     // Kind of cleaning (e.g. "mode_fill")
	Reason       string    `json:"reason"`        // Why the cleaning was needed (e.g. "missing_value")
	FillValue    string    `json:"fill_value"`    // Replacement value, empty when values were nulled
	AffectedRows int       `json:"affected_rows"` // Number of cells touched
	CleanedAt    time.Time `json:"cleaned_at"`    // When the cleaning occurred
}

// CleaningContext identifies the table being cleaned
type CleaningContext struct {
	RunID        string
	SourceObject string
	TableName    string
}
