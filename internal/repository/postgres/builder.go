package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/memberbill/memberbill/internal/types"
)

// queryBuilder accumulates WHERE conditions with named bind parameters and
// renders a statement bound for Postgres. Slice parameters expand through
// sqlx.In, so IN clauses take a single named parameter.
type queryBuilder struct {
	base   string
	conds  []string
	args   map[string]interface{}
	order  string
	limit  int
	offset int
}

func newQuery(base string) *queryBuilder {
	return &queryBuilder{base: base, args: map[string]interface{}{}}
}

// scopedQuery starts a query restricted to the tenant and environment of the
// context. Environment scoping is skipped when the context carries none.
func scopedQuery(ctx context.Context, base string) *queryBuilder {
	q := newQuery(base)
	q.where("tenant_id = :tenant_id", "tenant_id", types.GetTenantID(ctx))
	if envID := types.GetEnvironmentID(ctx); envID != "" {
		q.where("environment_id = :environment_id", "environment_id", envID)
	}
	return q
}

func (q *queryBuilder) where(cond, name string, value interface{}) *queryBuilder {
	q.conds = append(q.conds, cond)
	q.args[name] = value
	return q
}

// whereExpr adds a condition that binds no parameters, for example an IS NULL
// check
func (q *queryBuilder) whereExpr(cond string) *queryBuilder {
	q.conds = append(q.conds, cond)
	return q
}

func (q *queryBuilder) orderBy(column, direction string) *queryBuilder {
	q.order = column + " " + direction
	return q
}

// applyStatus adds the soft delete status condition from the filter
func (q *queryBuilder) applyStatus(f types.BaseFilter) *queryBuilder {
	if status := f.GetStatus(); status != "" {
		q.where("status = :status", "status", status)
	}
	return q
}

// applyTimeRange bounds the given timestamp column by the optional range
func (q *queryBuilder) applyTimeRange(tr *types.TimeRangeFilter, column string) *queryBuilder {
	if tr == nil {
		return q
	}
	if tr.StartTime != nil {
		q.where(column+" >= :"+column+"_from", column+"_from", tr.StartTime.UTC())
	}
	if tr.EndTime != nil {
		q.where(column+" <= :"+column+"_to", column+"_to", tr.EndTime.UTC())
	}
	return q
}

// applyPagination adds sorting and paging from the filter. The sort key is
// resolved against the allow list so filter input never reaches the SQL text.
func (q *queryBuilder) applyPagination(f types.BaseFilter, sortable map[string]string) *queryBuilder {
	q.orderBy(sortColumn(sortable, f.GetSort()), sortDirection(f.GetOrder()))
	if !f.IsUnlimited() {
		q.limit = f.GetLimit()
		q.offset = f.GetOffset()
	}
	return q
}

// build renders the statement with Postgres dollar bindvars
func (q *queryBuilder) build() (string, []interface{}, error) {
	stmt := q.base
	if len(q.conds) > 0 {
		stmt += " WHERE " + strings.Join(q.conds, " AND ")
	}
	if q.order != "" {
		stmt += " ORDER BY " + q.order
	}
	if q.limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", q.limit)
	}
	if q.offset > 0 {
		stmt += fmt.Sprintf(" OFFSET %d", q.offset)
	}

	bound, args, err := sqlx.Named(stmt, q.args)
	if err != nil {
		return "", nil, err
	}
	bound, args, err = sqlx.In(bound, args...)
	if err != nil {
		return "", nil, err
	}
	return sqlx.Rebind(sqlx.DOLLAR, bound), args, nil
}

// sortColumn maps a requested sort key to a real column, defaulting to
// created_at for anything outside the allow list
func sortColumn(allowed map[string]string, sort string) string {
	if col, ok := allowed[sort]; ok {
		return col
	}
	return "created_at"
}

func sortDirection(order string) string {
	if strings.EqualFold(order, types.OrderAsc) {
		return "ASC"
	}
	return "DESC"
}
