package model

// Row is a single tabular record, one value per column.
type Row []string

// Dataset is the normalized tabular form every file format decodes into and
// every export encodes from. Import jobs persist it at parse time so that
// confirmation re-applies exactly what was reviewed.
type Dataset struct {
	Headers []string `json:"headers"`
	Rows    []Row    `json:"rows"`
}

// Len returns the number of data rows (headers excluded).
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Params carries the caller-supplied arguments a resource is resolved with:
// filtering and ordering applied before counting, plus an optional dataset
// title used for artifact naming.
type Params struct {
	Filters  map[string]string `json:"filters,omitempty"`
	Ordering []string          `json:"ordering,omitempty"`
	Title    string            `json:"title,omitempty"`
}
