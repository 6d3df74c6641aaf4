// Package engine declares the contract between job processing and the
// underlying row-level conversion engine. The engine itself is an external
// collaborator: jobs treat it as a function over (source data, parameters)
// producing rows, diffs and totals.
package engine

import (
	"context"
	"io"

	"async-import-export/internal/domain/model"
)

// Resource is one registered conversion definition, already resolved with its
// caller-supplied parameters.
type Resource interface {
	// Headers returns the column names this resource exports and expects on import.
	Headers() []string
	// ExportRows returns the rows to export with filtering and ordering already
	// applied, so counts taken from the dataset reflect the filtered set.
	ExportRows(ctx context.Context) (*model.Dataset, error)
	// ImportRow applies a single row. With dryRun the row is validated and
	// diffed but nothing is mutated. Row-level problems are reported inside
	// the RowResult; a non-nil error means the run itself is broken.
	ImportRow(ctx context.Context, number int, row model.Row, dryRun bool) (model.RowResult, error)
}

// Factory builds a Resource from caller-supplied parameters. Registered under
// a stable string key; construction may reject bad parameters.
type Factory func(p model.Params) (Resource, error)

// Encoder writes rows of an export artifact incrementally so progress can be
// reported at chunk boundaries.
type Encoder interface {
	WriteHeader(headers []string) error
	WriteRow(row model.Row) error
	Close() error
}

// Format is a file codec for one artifact format.
type Format interface {
	Name() string
	Extension() string
	NewEncoder(w io.Writer) Encoder
	Decode(r io.Reader) (*model.Dataset, error)
}
