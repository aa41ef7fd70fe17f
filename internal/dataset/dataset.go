// Package dataset parses the delimited tables the board and card catalog are
// loaded from. Rows are mapped by header name and cells are coerced on access.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Table is a parsed dataset with a header row.
type Table struct {
	Name    string
	Headers []string
	Rows    []Row

	index map[string]int
}

// Row is one record of a table, addressed by column name.
type Row struct {
	Line   int
	table  *Table
	fields []string
}

// MissingColumnsError is returned by Require when required headers are absent.
type MissingColumnsError struct {
	Table   string
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: missing required columns: %s", e.Table, strings.Join(e.Columns, ", "))
}

// ErrEmpty is returned for a dataset with no header row.
var ErrEmpty = errors.New("dataset is empty")

// ParseFile reads and parses a comma separated file.
func ParseFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()
	return Parse(path, f)
}

// Parse reads a comma separated table. Quoted fields may contain the delimiter
// and line breaks; short rows are padded with empty cells.
func Parse(name string, r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: %w", name, ErrEmpty)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read header: %w", name, err)
	}

	t := &Table{Name: name, index: make(map[string]int, len(header))}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		t.Headers = append(t.Headers, h)
		if _, dup := t.index[h]; !dup && h != "" {
			t.index[h] = i
		}
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if blank(rec) {
			continue
		}
		line, _ := cr.FieldPos(0)
		t.Rows = append(t.Rows, Row{Line: line, table: t, fields: rec})
	}
	return t, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Has reports whether the table has a column.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Require checks that every column is present.
func (t *Table) Require(cols ...string) error {
	var missing []string
	for _, c := range cols {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Table: t.Name, Columns: missing}
	}
	return nil
}

// String returns the trimmed cell text, or "" if the column is absent.
func (r Row) String(col string) string {
	i, ok := r.table.index[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

// Int parses the cell as an integer. Currency symbols, thousands separators and
// a trailing percent sign are ignored.
func (r Row) Int(col string) (int, bool) {
	return ParseInt(r.String(col))
}

// IntOr returns the cell as an integer or def when it does not parse.
func (r Row) IntOr(col string, def int) int {
	if n, ok := r.Int(col); ok {
		return n
	}
	return def
}

// Bool interprets yes/no, true/false, y/n and 1/0 cells.
func (r Row) Bool(col string) bool {
	b, _ := ParseBool(r.String(col))
	return b
}

// Value returns the cell coerced to int, float64, bool or string.
func (r Row) Value(col string) interface{} {
	return Coerce(r.String(col))
}

// Map returns every column of the row with coerced values.
func (r Row) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(r.table.Headers))
	for _, h := range r.table.Headers {
		if h == "" {
			continue
		}
		out[h] = r.Value(h)
	}
	return out
}

// ParseInt parses numbers like "12", "$1,500" or "10%".
func ParseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

// ParseBool parses a yes/no style cell. The second result is false when the
// cell is not a recognised boolean.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "1":
		return true, true
	case "no", "n", "false", "0":
		return false, true
	}
	return false, false
}

// Coerce detects integers, floats and true/false literals.
func Coerce(s string) interface{} {
	if s == "" {
		return ""
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
