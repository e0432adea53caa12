// Package executor runs the parsed statement tree of spec §4.6 against the
// plugin registry and result cache. The SELECT pipeline's operator ordering
// (resolve, lower predicate, probe cache, fetch, join, aggregate, project,
// order, paginate, truncate, cache-insert) is new to this domain, but the
// per-operator building blocks — aggregation, pagination, comparison — are
// adapted line-for-line from sqlvibe's internal/QE package.
package executor

import (
	"context"
	"sort"
	"time"

	"github.com/cyw0ng95/infraql/internal/cache"
	"github.com/cyw0ng95/infraql/internal/errs"
	"github.com/cyw0ng95/infraql/internal/lang"
	"github.com/cyw0ng95/infraql/internal/model"
	"github.com/cyw0ng95/infraql/internal/plugin"
	"github.com/cyw0ng95/infraql/internal/registry"
)

const DefaultMaxResults = 10000

// Executor is the single owner of a query's operator pipeline; it holds no
// state of its own beyond wiring to the registry and cache (spec §9 "cyclic
// lookups avoided").
type Executor struct {
	registry          *registry.Registry
	cache             *cache.ResultCache
	defaultMaxResults int
}

func New(reg *registry.Registry, resultCache *cache.ResultCache, defaultMaxResults int) *Executor {
	if defaultMaxResults <= 0 {
		defaultMaxResults = DefaultMaxResults
	}
	return &Executor{registry: reg, cache: resultCache, defaultMaxResults: defaultMaxResults}
}

// Execute dispatches by statement variant (spec §4.6 "Dispatch").
func (e *Executor) Execute(ctx context.Context, stmt lang.Statement) (interface{}, error) {
	switch s := stmt.(type) {
	case *lang.SelectStatement:
		return e.executeSelect(ctx, s)
	case *lang.TraceStatement:
		return e.executeTrace(ctx, s)
	case *lang.DescribeStatement:
		return e.executeDescribe(ctx, s)
	case *lang.ShowStatement:
		return e.executeShow(ctx, s)
	case *lang.CacheStatement:
		return e.executeCache(ctx, s)
	default:
		return nil, errs.ExecutionWrap("unsupported statement", nil)
	}
}

func (e *Executor) catalog(ctx context.Context) (map[string]model.TableInfo, error) {
	tables := e.registry.TablesAll(ctx)
	byName := make(map[string]model.TableInfo, len(tables))
	for _, t := range tables {
		if _, dup := byName[t.Name]; dup {
			return nil, errs.Execution("ambiguous table name across sources", t.Name)
		}
		byName[t.Name] = t
	}
	return byName, nil
}

func declaredColumns(t model.TableInfo) map[string]model.ColumnInfo {
	out := make(map[string]model.ColumnInfo, len(t.Columns))
	for _, c := range t.Columns {
		out[c.Name] = c
	}
	return out
}

// estimatedRows consults a source's optional RowEstimator hook (SPEC_FULL's
// BestIndex-style diagnostic supplement); it is never used for planning, only
// to annotate QueryResult/DescribeResult for observability.
func (e *Executor) estimatedRows(ctx context.Context, source, table string) (int64, bool) {
	src, ok := e.registry.Get(source)
	if !ok {
		return 0, false
	}
	estimator, ok := src.(plugin.RowEstimator)
	if !ok {
		return 0, false
	}
	return estimator.EstimatedRows(ctx, table)
}

func (e *Executor) executeSelect(ctx context.Context, sel *lang.SelectStatement) (model.QueryResult, error) {
	start := time.Now()

	cat, err := e.catalog(ctx)
	if err != nil {
		return model.QueryResult{}, err
	}
	base, ok := cat[sel.From]
	if !ok {
		return model.QueryResult{}, errs.Execution("unknown table", sel.From)
	}

	filters := lowerFilters(sel.Where)
	cacheable := len(sel.Joins) == 0 && !sel.HasAggregate() && sel.Having.IsEmpty()

	options := model.QueryOptions{}
	if sel.Limit != nil {
		options.HasLimit = true
		options.Limit = *sel.Limit
	} else {
		options.MaxResults = e.defaultMaxResults
	}
	if sel.Offset != nil {
		options.Offset = *sel.Offset
	}
	for _, o := range sel.OrderBy {
		options.OrderBy = append(options.OrderBy, model.OrderTerm{Field: o.Field, Direction: string(o.Direction)})
	}
	fingerprintColumns := simpleProjectedColumns(sel)
	if cacheable {
		options.Columns = fingerprintColumns
	}

	var fingerprint string
	if cacheable {
		fingerprint = cache.Fingerprint(sel.From, filters, options, fingerprintColumns)
		if cached, hit := e.cache.Get(fingerprint, sel.From); hit {
			cached.ExecutionTimeMs = elapsedMillis(start)
			return cached, nil
		}
	}

	// A source treats filters as a conjunction, so conditions joined by OR
	// are not pushed down; the full predicate is re-applied below either way.
	pushed := filters
	if sel.Where != nil && sel.Where.Combinator == lang.CombOr && len(sel.Where.Conditions) > 1 {
		pushed = nil
	}
	fetched, err := e.registry.Query(ctx, base.Source, sel.From, pushed, options)
	if err != nil {
		return model.QueryResult{}, err
	}

	rows := filterRows(fetched.Rows, sel.Where)
	currentColumns := columnNames(fetched.Columns)
	if len(currentColumns) == 0 {
		currentColumns = rowKeys(rows)
	}

	for _, join := range sel.Joins {
		joinTable, ok := cat[join.Table]
		if !ok {
			return model.QueryResult{}, errs.Execution("unknown table in join", join.Table)
		}
		rightResult, err := e.registry.Query(ctx, joinTable.Source, join.Table, nil, model.QueryOptions{})
		if err != nil {
			return model.QueryResult{}, err
		}
		rightColumns := columnNames(rightResult.Columns)
		if len(rightColumns) == 0 {
			rightColumns = rowKeys(rightResult.Rows)
		}
		rows = applyJoin(rows, sel.From, join, rightResult.Rows, currentColumns, rightColumns)
		currentColumns = mergedColumnNames(sel.From, currentColumns, join.Table, rightColumns)
	}

	preTruncateTotal := len(rows)
	declared := declaredColumns(base)

	if sel.HasAggregate() {
		rows = applyAggregation(rows, sel)
		preTruncateTotal = len(rows)
	}

	var columns []model.ColumnInfo
	rows, columns = applyProjection(rows, sel.Columns, declared)

	rows = applyOrdering(rows, sel.OrderBy)
	rows = applyPagination(rows, sel.Offset, sel.Limit)

	truncated := false
	warning := ""
	if !sel.HasAggregate() {
		rows, truncated, warning = applyTruncation(rows, sel.Limit != nil, e.defaultMaxResults)
	}

	result := model.QueryResult{
		Columns:         columns,
		Rows:            rows,
		RowCount:        len(rows),
		TotalCount:      preTruncateTotal,
		ExecutionTimeMs: elapsedMillis(start),
		Source:          base.Source,
		Truncated:       truncated,
		Warning:         warning,
	}
	if est, ok := e.estimatedRows(ctx, base.Source, sel.From); ok {
		result.EstimatedRows = est
		result.HasEstimatedRows = true
	}

	if cacheable && e.cache.Enabled() {
		e.cache.Set(fingerprint, sel.From, result)
	}
	return result, nil
}

func filterRows(rows []model.Row, pred *lang.Predicate) []model.Row {
	if pred.IsEmpty() {
		return rows
	}
	out := make([]model.Row, 0, len(rows))
	for _, row := range rows {
		if matchesPredicate(row, pred) {
			out = append(out, row)
		}
	}
	return out
}

// simpleProjectedColumns returns the explicit, non-aggregate projection
// field names when the query is a plain single-table SELECT eligible for
// column pushdown; nil otherwise (spec §4.6 step 3's fingerprint columns).
func simpleProjectedColumns(sel *lang.SelectStatement) []string {
	if sel.HasAggregate() || len(sel.Columns) == 1 && sel.Columns[0].IsStar() {
		return nil
	}
	names := make([]string, 0, len(sel.Columns))
	for _, c := range sel.Columns {
		names = append(names, c.Name)
	}
	return names
}

func rowKeys(rows []model.Row) []string {
	if len(rows) == 0 {
		return nil
	}
	names := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func mergedColumnNames(leftTable string, leftColumns []string, rightTable string, rightColumns []string) []string {
	seen := make(map[string]bool, len(leftColumns)+len(rightColumns))
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, c := range leftColumns {
		add(c)
		add(leftTable + "." + c)
	}
	for _, c := range rightColumns {
		add(c)
		add(rightTable + "." + c)
	}
	return out
}

func elapsedMillis(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

func (e *Executor) executeTrace(ctx context.Context, stmt *lang.TraceStatement) (model.TraceResult, error) {
	hops := e.registry.Trace(ctx, stmt.Identifier, stmt.Value, stmt.Through)
	return model.TraceResult{
		Identifier: stmt.Identifier,
		Value:      stmt.Value,
		Hops:       hops,
		TotalHops:  len(hops),
	}, nil
}

func (e *Executor) executeDescribe(ctx context.Context, stmt *lang.DescribeStatement) (model.DescribeResult, error) {
	cat, err := e.catalog(ctx)
	if err != nil {
		return model.DescribeResult{}, err
	}
	table, ok := cat[stmt.Target]
	if !ok {
		return model.DescribeResult{}, errs.Execution("unknown table", stmt.Target)
	}
	result := model.DescribeResult{Table: table.Name, Source: table.Source, Columns: table.Columns}
	if est, ok := e.estimatedRows(ctx, table.Source, table.Name); ok {
		result.EstimatedRows = est
		result.HasEstimatedRows = true
	}
	return result, nil
}

func (e *Executor) executeShow(ctx context.Context, stmt *lang.ShowStatement) (model.ShowResult, error) {
	switch stmt.What {
	case lang.ShowTables:
		tables := e.registry.TablesAll(ctx)
		items := make([]interface{}, len(tables))
		for i, t := range tables {
			items[i] = t
		}
		return model.ShowResult{What: string(stmt.What), Items: items}, nil
	case lang.ShowPlugins, lang.ShowSources:
		names := e.registry.Names()
		items := make([]interface{}, len(names))
		for i, n := range names {
			items[i] = n
		}
		return model.ShowResult{What: string(stmt.What), Items: items}, nil
	default:
		return model.ShowResult{}, errs.Execution("unsupported SHOW target", string(stmt.What))
	}
}

func (e *Executor) executeCache(ctx context.Context, stmt *lang.CacheStatement) (model.CacheResult, error) {
	switch stmt.Action {
	case lang.CacheShow:
		return model.CacheResult{Action: string(stmt.Action), Stats: e.cache.Stats()}, nil
	case lang.CacheClear:
		if stmt.HasTable {
			e.cache.ClearTable(stmt.Table)
			return model.CacheResult{Action: string(stmt.Action), Message: "cache cleared for table " + stmt.Table}, nil
		}
		e.cache.Clear()
		return model.CacheResult{Action: string(stmt.Action), Message: "cache cleared"}, nil
	case lang.CacheSetTTL:
		ttl := time.Duration(stmt.TTLMillis) * time.Millisecond
		if stmt.HasTable {
			e.cache.SetTableTTL(stmt.Table, ttl)
			return model.CacheResult{Action: string(stmt.Action), Message: "TTL updated for table " + stmt.Table}, nil
		}
		e.cache.SetDefaultTTL(ttl)
		return model.CacheResult{Action: string(stmt.Action), Message: "default TTL updated"}, nil
	default:
		return model.CacheResult{}, errs.Execution("invalid cache command", string(stmt.Action))
	}
}
