package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SQLExecutor runs queries through database/sql. Identifiers are quoted,
// values are always bound as parameters.
type SQLExecutor struct {
	db *sql.DB
}

// NewSQLExecutor wraps an open database handle.
func NewSQLExecutor(db *sql.DB) *SQLExecutor {
	return &SQLExecutor{db: db}
}

// DB exposes the underlying handle.
func (e *SQLExecutor) DB() *sql.DB {
	return e.db
}

func (e *SQLExecutor) Execute(ctx context.Context, q Query) (*Result, error) {
	if e == nil || e.db == nil {
		return nil, errors.New("sql executor has no database")
	}
	if q == nil {
		return nil, fmt.Errorf("%w: nil query", ErrInvalidQuery)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	switch typed := q.(type) {
	case Select:
		return e.selectRows(ctx, typed)
	case *Select:
		return e.selectRows(ctx, *typed)
	case Insert:
		return e.insertRows(ctx, typed)
	case *Insert:
		return e.insertRows(ctx, *typed)
	default:
		return nil, fmt.Errorf("%w: unsupported query kind %q", ErrInvalidQuery, q.Kind())
	}
}

func (e *SQLExecutor) selectRows(ctx context.Context, s Select) (*Result, error) {
	statement, args := buildSelect(s)

	rows, err := e.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", s.Table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", s.Table, err)
	}

	result := &Result{Columns: columns, Rows: []Row{}}
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan row of %s: %w", s.Table, err)
		}

		row := make(Row, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows of %s: %w", s.Table, err)
	}

	return result, nil
}

func (e *SQLExecutor) insertRows(ctx context.Context, i Insert) (*Result, error) {
	statement, args := buildInsert(i)

	res, err := e.db.ExecContext(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", i.Table, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		affected = int64(len(i.Values))
	}

	return &Result{Columns: i.Columns, Affected: affected}, nil
}

func buildSelect(s Select) (string, []any) {
	columns := make([]string, len(s.Columns))
	for i, column := range s.Columns {
		columns[i] = quoteIdent(column)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(quoteIdent(s.Table))

	args := make([]any, 0, len(s.Where))
	if len(s.Where) > 0 {
		clauses := make([]string, len(s.Where))
		for i, cond := range s.Where {
			clauses[i] = quoteIdent(cond.Column) + " = ?"
			args = append(args, cond.Value)
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(clauses, " AND "))
	}

	if s.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(quoteIdent(s.OrderBy))
		if s.Desc {
			b.WriteString(" DESC")
		}
	}

	if s.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, s.Limit)
	}

	return b.String(), args
}

func buildInsert(i Insert) (string, []any) {
	columns := make([]string, len(i.Columns))
	for n, column := range i.Columns {
		columns[n] = quoteIdent(column)
	}

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(i.Columns)), ", ") + ")"
	groups := make([]string, len(i.Values))
	args := make([]any, 0, len(i.Values)*len(i.Columns))
	for n, row := range i.Values {
		groups[n] = placeholder
		args = append(args, row...)
	}

	statement := "INSERT INTO " + quoteIdent(i.Table) +
		" (" + strings.Join(columns, ", ") + ") VALUES " + strings.Join(groups, ", ")

	return statement, args
}

// normalizeValue turns driver byte slices into strings so row values stay
// comparable.
func normalizeValue(value any) any {
	if raw, ok := value.([]byte); ok {
		return string(raw)
	}

	return value
}
