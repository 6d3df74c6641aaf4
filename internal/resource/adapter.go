package resource

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"async-import-export/internal/domain"
	"async-import-export/internal/domain/model"
	"async-import-export/internal/domain/ports/engine"
)

// Adapter resolves conversion definitions for job runs and normalizes their
// input: filtered export datasets with reliable totals, and parsed import
// datasets validated against the configured row ceiling before any processing
// starts.
type Adapter struct {
	registry *Registry
	maxRows  int
}

func NewAdapter(registry *Registry, maxRows int) *Adapter {
	return &Adapter{registry: registry, maxRows: maxRows}
}

// Resolve constructs the resource for key, failing fast on unknown keys.
func (a *Adapter) Resolve(key string, p model.Params) (engine.Resource, error) {
	return a.registry.Resolve(key, p)
}

// ValidateKey rejects unregistered resource keys at job creation time.
func (a *Adapter) ValidateKey(key string) error {
	return a.registry.Validate(key)
}

// ExportDataset resolves the resource and fetches its filtered, ordered rows.
// The dataset length is the progress total, taken after filtering.
func (a *Adapter) ExportDataset(ctx context.Context, key string, p model.Params) (engine.Resource, *model.Dataset, error) {
	res, err := a.registry.Resolve(key, p)
	if err != nil {
		return nil, nil, err
	}
	ds, err := res.ExportRows(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch export rows for %q: %w", key, err)
	}
	return res, ds, nil
}

// ParseDataset decodes raw file content by extension and enforces the row
// ceiling. Oversized files are rejected before a single row is processed.
func (a *Adapter) ParseDataset(filename string, data []byte) (*model.Dataset, error) {
	format, err := FormatForFilename(filename)
	if err != nil {
		return nil, err
	}
	ds, err := format.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := a.CheckRowCount(ds.Len()); err != nil {
		return nil, err
	}
	return ds, nil
}

// CheckRowCount enforces the configured maximum dataset size.
func (a *Adapter) CheckRowCount(n int) error {
	if a.maxRows > 0 && n > a.maxRows {
		return fmt.Errorf("%w: %d rows (max %d); the input file may be broken or contain empty rows",
			domain.ErrTooManyRows, n, a.maxRows)
	}
	return nil
}

// ExportFilename builds the artifact name from the dataset title (or the
// resource key), a timestamp, and the format extension.
func (a *Adapter) ExportFilename(key string, p model.Params, format engine.Format) string {
	title := p.Title
	if title == "" {
		title = key
	}
	title = strings.ReplaceAll(title, "/", "-")
	title = strings.ReplaceAll(title, " ", "_")
	return fmt.Sprintf("%s-%s%s", title, time.Now().Format("2006-01-02_15-04-05"), format.Extension())
}
