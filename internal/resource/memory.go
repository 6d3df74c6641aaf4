package resource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"async-import-export/internal/domain/model"
	"async-import-export/internal/domain/ports/engine"
)

// MemoryResource is a Resource over an in-memory table, keyed by the first
// column. It honors Params filtering and ordering on export and computes
// per-row diffs on import. Embedding applications use it for development and
// as a template for real resources.
type MemoryResource struct {
	mu      sync.RWMutex
	headers []string
	rows    map[string]model.Row
	params  model.Params
}

var _ engine.Resource = (*MemoryResource)(nil)

func NewMemoryResource(headers []string, rows []model.Row, p model.Params) (*MemoryResource, error) {
	if len(headers) == 0 {
		return nil, fmt.Errorf("headers are required")
	}
	m := &MemoryResource{
		headers: headers,
		rows:    make(map[string]model.Row, len(rows)),
		params:  p,
	}
	for _, row := range rows {
		if len(row) != len(headers) {
			return nil, fmt.Errorf("row has %d values, want %d", len(row), len(headers))
		}
		m.rows[row[0]] = row
	}
	return m, nil
}

func (m *MemoryResource) Headers() []string { return m.headers }

func (m *MemoryResource) ExportRows(ctx context.Context) (*model.Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := make([]model.Row, 0, len(m.rows))
	for _, row := range m.rows {
		if m.matches(row) {
			rows = append(rows, row)
		}
	}
	m.order(rows)
	return &model.Dataset{Headers: m.headers, Rows: rows}, nil
}

func (m *MemoryResource) ImportRow(ctx context.Context, number int, row model.Row, dryRun bool) (model.RowResult, error) {
	if len(row) != len(m.headers) {
		return model.RowResult{
			Number: number,
			Kind:   model.RowFailed,
			Errors: []string{fmt.Sprintf("expected %d values, got %d", len(m.headers), len(row))},
		}, nil
	}
	key := row[0]
	if key == "" {
		return model.RowResult{
			Number:      number,
			Kind:        model.RowFailed,
			FieldErrors: map[string]string{m.headers[0]: "must not be empty"},
		}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.rows[key]
	switch {
	case !ok:
		if !dryRun {
			m.rows[key] = row
		}
		return model.RowResult{Number: number, Kind: model.RowCreated, Diff: row}, nil
	case equalRows(existing, row):
		return model.RowResult{Number: number, Kind: model.RowSkipped}, nil
	default:
		if !dryRun {
			m.rows[key] = row
		}
		return model.RowResult{Number: number, Kind: model.RowUpdated, Diff: row}, nil
	}
}

// matches applies exact-value filters named by header.
func (m *MemoryResource) matches(row model.Row) bool {
	for name, want := range m.params.Filters {
		idx := m.column(name)
		if idx < 0 || row[idx] != want {
			return false
		}
	}
	return true
}

// order sorts rows by the ordering columns; a leading '-' means descending.
func (m *MemoryResource) order(rows []model.Row) {
	if len(m.params.Ordering) == 0 {
		sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, name := range m.params.Ordering {
			desc := false
			if len(name) > 0 && name[0] == '-' {
				desc = true
				name = name[1:]
			}
			idx := m.column(name)
			if idx < 0 {
				continue
			}
			a, b := rows[i][idx], rows[j][idx]
			if a == b {
				continue
			}
			if desc {
				return a > b
			}
			return a < b
		}
		return false
	})
}

func (m *MemoryResource) column(name string) int {
	for i, h := range m.headers {
		if h == name {
			return i
		}
	}
	return -1
}

func equalRows(a, b model.Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SampleFactory builds a small seeded MemoryResource, registered under the
// "sample" key in developer mode.
func SampleFactory() engine.Factory {
	return func(p model.Params) (engine.Resource, error) {
		return NewMemoryResource(
			[]string{"id", "name", "status"},
			[]model.Row{
				{"1", "alpha", "active"},
				{"2", "beta", "active"},
				{"3", "gamma", "disabled"},
			},
			p,
		)
	}
}
