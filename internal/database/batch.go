package database

import (
	"errors"
	"fmt"
	"strings"
)

// MaxParameters is the largest placeholder index PostgreSQL accepts in one
// statement.
const MaxParameters = 65535

// ErrTooManyParameters is returned when a batch would exceed MaxParameters.
var ErrTooManyParameters = errors.New("too many statement parameters")

// Placeholders renders rows groups of cols sequential placeholders, numbered
// from start+1. It returns the rendered text and the last index used, which is
// the start for the next statement of the same batch.
//
//	Placeholders(2, 3, 0) == "($1, $2, $3), ($4, $5, $6)", 6
func Placeholders(rows, cols, start int) (string, int) {
	if rows <= 0 || cols <= 0 {
		return "", start
	}
	var b strings.Builder
	next := start
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			next++
			fmt.Fprintf(&b, "$%d", next)
		}
		b.WriteByte(')')
	}
	return b.String(), next
}

// BatchBuilder chains multi-row INSERT statements into a single statement so
// that a parent row and its association rows are written atomically. One
// counter numbers every placeholder of the batch; statements never share an
// index range.
type BatchBuilder struct {
	counter int
	inserts []string
	args    []interface{}
}

// NewBatchBuilder returns an empty builder whose first placeholder is $1.
func NewBatchBuilder() *BatchBuilder {
	return &BatchBuilder{}
}

// Counter returns the last placeholder index handed out.
func (b *BatchBuilder) Counter() int {
	return b.counter
}

// Args returns the parameters collected so far, in placeholder order.
func (b *BatchBuilder) Args() []interface{} {
	return b.args
}

// Insert appends a multi-row INSERT into table. Every row must carry one value
// per column. suffix is appended verbatim (e.g. an ON CONFLICT clause).
func (b *BatchBuilder) Insert(table string, columns []string, rows [][]interface{}, suffix ...string) error {
	if len(columns) == 0 {
		return fmt.Errorf("insert into %s: no columns", table)
	}
	if len(rows) == 0 {
		return fmt.Errorf("insert into %s: no rows", table)
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("insert into %s: row %d has %d values, want %d", table, i, len(row), len(columns))
		}
	}
	if total := b.counter + len(rows)*len(columns); total > MaxParameters {
		return fmt.Errorf("%w: insert into %s needs %d, limit is %d", ErrTooManyParameters, table, total, MaxParameters)
	}

	values, next := Placeholders(len(rows), len(columns), b.counter)
	b.counter = next
	for _, row := range rows {
		b.args = append(b.args, row...)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(columns, ", "), values)
	if len(suffix) > 0 {
		stmt += " " + strings.Join(suffix, " ")
	}
	b.inserts = append(b.inserts, stmt)
	return nil
}

// Build returns the combined statement and its arguments. Several inserts are
// chained as data-modifying CTEs so PostgreSQL runs them as one statement:
//
//	WITH b1 AS (INSERT ...), b2 AS (INSERT ...) INSERT ...
func (b *BatchBuilder) Build() (string, []interface{}, error) {
	switch len(b.inserts) {
	case 0:
		return "", nil, fmt.Errorf("empty batch")
	case 1:
		return b.inserts[0], b.args, nil
	}

	ctes := make([]string, 0, len(b.inserts)-1)
	for i, stmt := range b.inserts[:len(b.inserts)-1] {
		ctes = append(ctes, fmt.Sprintf("b%d AS (%s)", i+1, stmt))
	}
	query := "WITH " + strings.Join(ctes, ", ") + " " + b.inserts[len(b.inserts)-1]
	return query, b.args, nil
}
