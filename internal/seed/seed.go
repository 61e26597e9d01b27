// Package seed loads initial records from YAML fixture files.
//
// A fixture file looks like:
//
//	version: 1
//	tables:
//	  users:
//	    - id: 1
//	      name: Alice
//	      email: alice@example.com
package seed

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"os"
	"slices"
	"time"

	"github.com/maruel/jsondb/internal/tablestore"
	"gopkg.in/yaml.v3"
)

// Fixture is the content of a fixture file.
type Fixture struct {
	Version int                         `yaml:"version"`
	Tables  map[string][]map[string]any `yaml:"tables"`
}

// Validate checks the version, the table names, that every record carries
// a scalar id and that every value fits the JSON data model.
func (f *Fixture) Validate() error {
	if f.Version != 1 {
		return fmt.Errorf("unsupported version %d", f.Version)
	}
	for name, rows := range f.Tables {
		if !tablestore.ValidTableName(name) {
			return fmt.Errorf("invalid table name %q", name)
		}
		for i, row := range rows {
			if row == nil {
				return fmt.Errorf("table %q: record %d is empty", name, i)
			}
			if !tablestore.ValidID(row[tablestore.IDField]) {
				return fmt.Errorf("table %q: record %d has no valid id", name, i)
			}
		}
		if _, err := normalizeTable(name, rows); err != nil {
			return err
		}
	}
	return nil
}

// Parse decodes and validates fixture data.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}
	return &f, nil
}

// ParseFile reads and parses a fixture file.
// The path is provided by the operator, so file inclusion is expected.
func ParseFile(path string) (*Fixture, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-specified fixture path
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return Parse(data)
}

// Inserter is the subset of the table store used to import records.
type Inserter interface {
	Len(table string) int
	Insert(table string, record tablestore.Record) tablestore.Record
}

// Result reports how many records were imported per table.
type Result struct {
	Imported map[string]int `json:"imported"`
	Skipped  []string       `json:"skipped,omitempty"`
}

// Apply inserts the fixture records into s. Tables that already hold records
// are skipped unless force is set, in which case records are appended.
// Every record is converted before the first insert, so a fixture that fails
// leaves s untouched.
func Apply(s Inserter, f *Fixture, force bool) (*Result, error) {
	res := &Result{Imported: map[string]int{}}
	var names []string
	pending := map[string][]tablestore.Record{}
	for _, name := range slices.Sorted(maps.Keys(f.Tables)) {
		if !force && s.Len(name) > 0 {
			slog.Info("Table not empty, skipping fixture", "table", name)
			res.Skipped = append(res.Skipped, name)
			continue
		}
		rows, err := normalizeTable(name, f.Tables[name])
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		pending[name] = rows
	}
	for _, name := range names {
		for _, r := range pending[name] {
			s.Insert(name, r)
		}
		res.Imported[name] = len(pending[name])
		slog.Info("Imported fixture", "table", name, "records", len(pending[name]))
	}
	return res, nil
}

func normalizeTable(name string, rows []map[string]any) ([]tablestore.Record, error) {
	out := make([]tablestore.Record, 0, len(rows))
	for i, row := range rows {
		r, err := normalizeMap(row)
		if err != nil {
			return nil, fmt.Errorf("table %q: record %d: %w", name, i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

var (
	errNonStringKey = errors.New("mapping keys must be strings")
	errNonFinite    = errors.New("numbers must be finite")
)

// normalizeMap converts a decoded YAML mapping to the JSON data model.
func normalizeMap(m map[string]any) (tablestore.Record, error) {
	r := make(tablestore.Record, len(m))
	for k, v := range m {
		n, err := normalize(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		r[k] = n
	}
	return r, nil
}

func normalize(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		r, err := normalizeMap(t)
		if err != nil {
			return nil, err
		}
		return map[string]any(r), nil
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			s, ok := k.(string)
			if !ok {
				return nil, errNonStringKey
			}
			m[s] = e
		}
		return normalize(m)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			n, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case float64:
		if math.IsInf(t, 0) || math.IsNaN(t) {
			return nil, errNonFinite
		}
		return t, nil
	case time.Time:
		return t.Format(time.RFC3339Nano), nil
	default:
		return v, nil
	}
}
