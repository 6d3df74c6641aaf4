package resource

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"async-import-export/internal/domain"
	"async-import-export/internal/domain/model"
	"async-import-export/internal/domain/ports/engine"
)

// Built-in artifact codecs covering the wire shapes the job layer itself
// needs. Both sit on encoding/csv and encoding/json directly.
var formats = map[string]engine.Format{
	"csv":  csvFormat{},
	"json": jsonFormat{},
}

// FormatByName returns the codec registered under name ("csv", "json").
func FormatByName(name string) (engine.Format, error) {
	f, ok := formats[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownFormat, name)
	}
	return f, nil
}

// FormatForFilename picks the codec matching the file extension.
func FormatForFilename(filename string) (engine.Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		return nil, fmt.Errorf("%w: file %q has no extension", domain.ErrUnknownFormat, filename)
	}
	return FormatByName(ext)
}

// --- CSV ---

type csvFormat struct{}

func (csvFormat) Name() string      { return "csv" }
func (csvFormat) Extension() string { return ".csv" }

func (csvFormat) NewEncoder(w io.Writer) engine.Encoder {
	return &csvEncoder{w: csv.NewWriter(w)}
}

type csvEncoder struct {
	w *csv.Writer
}

func (e *csvEncoder) WriteHeader(headers []string) error { return e.w.Write(headers) }
func (e *csvEncoder) WriteRow(row model.Row) error       { return e.w.Write(row) }

func (e *csvEncoder) Close() error {
	e.w.Flush()
	return e.w.Error()
}

func (csvFormat) Decode(r io.Reader) (*model.Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("decode csv: %w: missing header row", domain.ErrInvalidArgument)
	}
	ds := &model.Dataset{Headers: records[0]}
	for _, rec := range records[1:] {
		ds.Rows = append(ds.Rows, model.Row(rec))
	}
	return ds, nil
}

// --- JSON ---

type jsonFormat struct{}

func (jsonFormat) Name() string      { return "json" }
func (jsonFormat) Extension() string { return ".json" }

func (jsonFormat) NewEncoder(w io.Writer) engine.Encoder {
	return &jsonEncoder{w: w}
}

// jsonEncoder buffers rows and writes one array of objects on Close; JSON has
// no row-incremental form that stays a valid document.
type jsonEncoder struct {
	w       io.Writer
	headers []string
	rows    []map[string]string
}

func (e *jsonEncoder) WriteHeader(headers []string) error {
	e.headers = headers
	return nil
}

func (e *jsonEncoder) WriteRow(row model.Row) error {
	obj := make(map[string]string, len(e.headers))
	for i, h := range e.headers {
		if i < len(row) {
			obj[h] = row[i]
		}
	}
	e.rows = append(e.rows, obj)
	return nil
}

func (e *jsonEncoder) Close() error {
	enc := json.NewEncoder(e.w)
	enc.SetIndent("", "  ")
	if e.rows == nil {
		e.rows = []map[string]string{}
	}
	return enc.Encode(e.rows)
}

func (jsonFormat) Decode(r io.Reader) (*model.Dataset, error) {
	var objs []map[string]string
	if err := json.NewDecoder(r).Decode(&objs); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if len(objs) == 0 {
		return &model.Dataset{}, nil
	}
	headers := make([]string, 0, len(objs[0]))
	for k := range objs[0] {
		headers = append(headers, k)
	}
	sort.Strings(headers)
	ds := &model.Dataset{Headers: headers}
	for _, obj := range objs {
		row := make(model.Row, len(headers))
		for i, h := range headers {
			row[i] = obj[h]
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}
