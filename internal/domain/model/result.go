package model

// RowKind classifies the outcome of processing a single row.
type RowKind string

const (
	RowCreated  RowKind = "created"
	RowUpdated  RowKind = "updated"
	RowDeleted  RowKind = "deleted"
	RowSkipped  RowKind = "skipped"
	RowFailed   RowKind = "failed"
	RowExported RowKind = "exported"
)

// Totals counts processed rows by outcome. The categories are disjoint and
// sum to the number of rows processed.
type Totals struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	Exported int `json:"exported"`
}

// Sum returns the total number of rows counted across all categories.
func (t Totals) Sum() int {
	return t.Created + t.Updated + t.Deleted + t.Skipped + t.Failed + t.Exported
}

func (t *Totals) add(kind RowKind) {
	switch kind {
	case RowCreated:
		t.Created++
	case RowUpdated:
		t.Updated++
	case RowDeleted:
		t.Deleted++
	case RowSkipped:
		t.Skipped++
	case RowFailed:
		t.Failed++
	case RowExported:
		t.Exported++
	}
}

// RowResult is the outcome of one processed row, including the rendered diff
// shown in the parse preview and any errors attached to the row.
type RowResult struct {
	Number      int               `json:"number"`
	Kind        RowKind           `json:"kind"`
	Diff        []string          `json:"diff,omitempty"`
	Errors      []string          `json:"errors,omitempty"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

// Invalid reports whether the row carries validation errors.
func (r RowResult) Invalid() bool {
	return r.Kind == RowFailed || len(r.Errors) > 0 || len(r.FieldErrors) > 0
}

// InvalidRow captures a rejected row with enough detail for a reviewer to fix
// the source file.
type InvalidRow struct {
	Number         int               `json:"number"`
	Values         []string          `json:"values,omitempty"`
	FieldErrors    map[string]string `json:"field_errors,omitempty"`
	NonFieldErrors []string          `json:"non_field_errors,omitempty"`
}

// Result is the structured outcome of a job run. It is absent until the first
// run finishes and written atomically at finalization, so readers never see a
// partially assembled result.
type Result struct {
	Totals      Totals       `json:"totals"`
	Rows        []RowResult  `json:"rows,omitempty"`
	InvalidRows []InvalidRow `json:"invalid_rows,omitempty"`
	TotalRows   int          `json:"total_rows"`
}

// Append records a processed row and updates totals.
func (r *Result) Append(row RowResult) {
	r.Totals.add(row.Kind)
	r.TotalRows++
	r.Rows = append(r.Rows, row)
	if row.Invalid() {
		r.InvalidRows = append(r.InvalidRows, InvalidRow{
			Number:         row.Number,
			Values:         row.Diff,
			FieldErrors:    row.FieldErrors,
			NonFieldErrors: row.Errors,
		})
	}
}

// AppendExported records n exported rows without per-row detail.
func (r *Result) AppendExported(n int) {
	r.Totals.Exported += n
	r.TotalRows += n
}

// HasInvalidRows reports whether any parsed row failed validation.
func (r *Result) HasInvalidRows() bool {
	return r != nil && len(r.InvalidRows) > 0
}
