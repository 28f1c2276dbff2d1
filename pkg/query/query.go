// Package query describes row-level reads and writes against a tabular
// chat source and executes them.
package query

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrInvalidQuery is wrapped by every Validate failure.
var ErrInvalidQuery = errors.New("invalid query")

// Query is a Select or an Insert.
type Query interface {
	Validate() error
	Kind() string
}

// Executor runs queries against a tabular data source.
type Executor interface {
	Execute(ctx context.Context, q Query) (*Result, error)
}

// Row maps column names to scalar values.
type Row map[string]any

// Result is what an executed query produced. Selects fill Rows, inserts
// fill Affected.
type Result struct {
	Columns  []string
	Rows     []Row
	Affected int64
}

// Condition is an equality filter on one column.
type Condition struct {
	Column string
	Value  any
}

// Select reads Columns from Table.
type Select struct {
	Table   string
	Columns []string
	Where   []Condition
	OrderBy string
	Desc    bool
	Limit   int
}

func (Select) Kind() string { return "select" }

func (s Select) Validate() error {
	if err := validIdent("table", s.Table); err != nil {
		return err
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: select needs at least one column", ErrInvalidQuery)
	}
	for _, column := range s.Columns {
		if err := validIdent("column", column); err != nil {
			return err
		}
	}
	for _, cond := range s.Where {
		if err := validIdent("where column", cond.Column); err != nil {
			return err
		}
	}
	if s.OrderBy != "" {
		if err := validIdent("order column", s.OrderBy); err != nil {
			return err
		}
	}
	if s.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrInvalidQuery, s.Limit)
	}

	return nil
}

// Insert writes Values into Columns of Table, one inner slice per row.
type Insert struct {
	Table   string
	Columns []string
	Values  [][]any
}

func (Insert) Kind() string { return "insert" }

func (i Insert) Validate() error {
	if err := validIdent("table", i.Table); err != nil {
		return err
	}
	if len(i.Columns) == 0 {
		return fmt.Errorf("%w: insert needs at least one column", ErrInvalidQuery)
	}
	for _, column := range i.Columns {
		if err := validIdent("column", column); err != nil {
			return err
		}
	}
	if len(i.Values) == 0 {
		return fmt.Errorf("%w: insert needs at least one row", ErrInvalidQuery)
	}
	for n, row := range i.Values {
		if len(row) != len(i.Columns) {
			return fmt.Errorf("%w: row %d has %d values for %d columns", ErrInvalidQuery, n, len(row), len(i.Columns))
		}
	}

	return nil
}

func validIdent(what string, name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: %s name %q", ErrInvalidQuery, what, name)
	}

	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
