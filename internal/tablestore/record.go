// Defines the schema-agnostic record type and id comparison.

package tablestore

import (
	"encoding/json"
	"maps"
	"math"
	"regexp"
	"strconv"
)

// IDField is the name of the field identifying a record within its table.
const IDField = "id"

// Record is one stored entity.
//
// Values are expected to stay within the JSON data model: nil, bool, numbers,
// string, []any and map[string]any. Other values are kept in memory as-is but
// will make the next snapshot fail to encode.
type Record map[string]any

// ID returns the record's id and whether it is set.
func (r Record) ID() (any, bool) {
	id, ok := r[IDField]
	return id, ok
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	c := make(Record, len(r))
	for k, v := range r {
		c[k] = cloneValue(v)
	}
	return c
}

// merge returns a copy of r with every field of patch applied over it.
func (r Record) merge(patch Record) Record {
	m := r.Clone()
	if m == nil {
		m = make(Record, len(patch))
	}
	maps.Copy(m, patch.Clone())
	return m
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		c := make(map[string]any, len(t))
		for k, e := range t {
			c[k] = cloneValue(e)
		}
		return c
	case Record:
		return t.Clone()
	case []any:
		c := make([]any, len(t))
		for i, e := range t {
			c[i] = cloneValue(e)
		}
		return c
	default:
		return v
	}
}

// IDEqual reports whether two id values identify the same record.
//
// Numbers compare by value across Go numeric kinds and json.Number; two
// integers compare exactly, even beyond 2^53. Strings and bools compare by
// value. Anything else, including nil, never matches.
func IDEqual(a, b any) bool {
	if ia, ok := asInteger(a); ok {
		if ib, ok := asInteger(b); ok {
			return ia == ib
		}
	}
	if fa, ok := asNumber(a); ok {
		fb, ok := asNumber(b)
		return ok && fa == fb
	}
	switch va := a.(type) {
	case string:
		vb, ok := b.(string)
		return ok && va == vb
	case bool:
		vb, ok := b.(bool)
		return ok && va == vb
	}
	return false
}

// integer is an exact representation of any Go integer value.
type integer struct {
	neg bool
	abs uint64
}

func fromInt64(n int64) integer {
	if n < 0 {
		return integer{neg: true, abs: uint64(-(n + 1)) + 1}
	}
	return integer{abs: uint64(n)}
}

func asInteger(v any) (integer, bool) {
	switch n := v.(type) {
	case int:
		return fromInt64(int64(n)), true
	case int8:
		return fromInt64(int64(n)), true
	case int16:
		return fromInt64(int64(n)), true
	case int32:
		return fromInt64(int64(n)), true
	case int64:
		return fromInt64(n), true
	case uint:
		return integer{abs: uint64(n)}, true
	case uint8:
		return integer{abs: uint64(n)}, true
	case uint16:
		return integer{abs: uint64(n)}, true
	case uint32:
		return integer{abs: uint64(n)}, true
	case uint64:
		return integer{abs: n}, true
	}
	return integer{}, false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// ValidID reports whether v can identify a record: a string, a bool or a
// finite number.
func ValidID(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	}
	f, ok := asNumber(v)
	return ok && !math.IsInf(f, 0)
}

// ParseID converts an id typed by a user, in a URL path or on a command line,
// to the value compared with stored ids: a finite number when s parses as
// one, s itself otherwise. String ids that look like numbers are therefore
// not reachable this way.
func ParseID(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return s
}

var tableNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidTableName reports whether name is accepted by the HTTP API and the
// fixture loader. The Store itself accepts any name.
func ValidTableName(name string) bool {
	return tableNameRe.MatchString(name)
}

// indexOf returns the position of the first record in rows with the given id,
// or -1.
func indexOf(rows []Record, id any) int {
	for i, r := range rows {
		if v, ok := r.ID(); ok && IDEqual(v, id) {
			return i
		}
	}
	return -1
}
