package sqlexec

import (
	"fmt"
	"strconv"
	"strings"
)

// Row is one result row. Values are positional; Get looks columns up by
// name, ignoring case.
type Row struct {
	Columns []string
	Values  []any
	index   map[string]int
}

func newRow(cols []string, vals []any) Row {
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[strings.ToLower(c)] = i
	}
	return Row{Columns: cols, Values: vals, index: idx}
}

// NewRow builds a Row from parallel column and value slices.
func NewRow(cols []string, vals []any) Row { return newRow(cols, vals) }

func (r Row) Get(col string) (any, bool) {
	i, ok := r.index[strings.ToLower(col)]
	if !ok || i >= len(r.Values) {
		return nil, false
	}
	return r.Values[i], true
}

// String returns the column as text. NULL and missing columns are "".
func (r Row) String(col string) string {
	v, _ := r.Get(col)
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// Int64 returns the column as an integer and whether it held a number.
func (r Row) Int64(col string) (int64, bool) {
	v, _ := r.Get(col)
	return toInt64(v)
}

// Int64At is Int64 for a column position.
func (r Row) Int64At(i int) (int64, bool) {
	if i < 0 || i >= len(r.Values) {
		return 0, false
	}
	return toInt64(r.Values[i])
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int32:
		return int64(t), true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case []byte:
		return parseInt(string(t))
	case string:
		return parseInt(t)
	default:
		return 0, false
	}
}

func parseInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f), true
	}
	return 0, false
}
