package sqlite

import "strings"

// QueryBuilder composes a parameterized SELECT. Every value passed to
// Where, Limit and Offset ends up as a placeholder argument, never
// concatenated into the SQL string, per spec.md §4.4 ("never concatenates
// user strings"); OrderBy's column name is written into the SQL as is.
type QueryBuilder struct {
	table   string
	columns []string
	joins   []string
	wheres  []string
	args    []any
	groupBy string
	orderBy string
	limit   int
	offset  int
}

// NewQueryBuilder starts a builder selecting columns from table.
func NewQueryBuilder(table string, columns ...string) *QueryBuilder {
	return &QueryBuilder{table: table, columns: columns, limit: -1}
}

// Join appends a raw JOIN clause (e.g. "INNER JOIN crawl_sources cs ON cs.id = p.source_id").
// Callers must not interpolate user input into the clause itself.
func (q *QueryBuilder) Join(clause string) *QueryBuilder {
	q.joins = append(q.joins, clause)
	return q
}

// Where appends a parameterized predicate, e.g. Where("p.source_id = ?", id).
func (q *QueryBuilder) Where(predicate string, args ...any) *QueryBuilder {
	q.wheres = append(q.wheres, predicate)
	q.args = append(q.args, args...)
	return q
}

// GroupBy sets a raw GROUP BY clause.
func (q *QueryBuilder) GroupBy(clause string) *QueryBuilder {
	q.groupBy = clause
	return q
}

// OrderBy sets the ORDER BY column and direction. column must come from a
// fixed allow-list chosen by the caller (the dataset's canonical time
// column), never directly from request input.
func (q *QueryBuilder) OrderBy(column string, descending bool) *QueryBuilder {
	dir := "ASC"
	if descending {
		dir = "DESC"
	}
	q.orderBy = column + " " + dir
	return q
}

// Limit sets a row limit; values <= 0 omit the clause.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Offset sets a row offset; values <= 0 omit the clause.
func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.offset = n
	return q
}

// Build renders the final SQL string and its positional argument slice.
func (q *QueryBuilder) Build() (string, []any) {
	var sb strings.Builder

	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(q.columns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(q.table)

	for _, j := range q.joins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}

	if len(q.wheres) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(q.wheres, " AND "))
	}

	if q.groupBy != "" {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(q.groupBy)
	}

	if q.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(q.orderBy)
	}

	if q.limit > 0 {
		sb.WriteString(" LIMIT ?")
		q.args = append(q.args, q.limit)
	} else if q.offset > 0 {
		// SQLite rejects a standalone OFFSET with no LIMIT; -1 means unbounded.
		sb.WriteString(" LIMIT -1")
	}
	if q.offset > 0 {
		sb.WriteString(" OFFSET ?")
		q.args = append(q.args, q.offset)
	}

	return sb.String(), q.args
}
