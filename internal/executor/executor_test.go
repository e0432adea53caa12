package executor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cyw0ng95/infraql/internal/cache"
	"github.com/cyw0ng95/infraql/internal/lang"
	"github.com/cyw0ng95/infraql/internal/model"
	"github.com/cyw0ng95/infraql/internal/registry"
)

// fakeSource is a minimal in-memory plugin.Source fixture mirroring the
// mock reference source's services/deployments tables from spec §8's
// end-to-end scenarios.
type fakeSource struct {
	tables map[string][]model.Row
	cols   map[string][]model.ColumnInfo
	fail   map[string]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		tables: map[string][]model.Row{
			"services": {
				{"id": "svc-1", "name": "api-gateway", "environment": "production", "version": "1.2.0", "status": "active", "cpu_usage": 45.0, "memory_usage": 60.0},
				{"id": "svc-2", "name": "auth-service", "environment": "production", "version": "2.0.1", "status": "active", "cpu_usage": 30.0, "memory_usage": 40.0},
				{"id": "svc-3", "name": "data-processor", "environment": "staging", "version": "0.9.0", "status": "degraded", "cpu_usage": 80.0, "memory_usage": 90.0},
			},
			"deployments": {
				{"id": "dep-1", "service_id": "svc-1", "replicas": int64(2)},
				{"id": "dep-2", "service_id": "svc-2", "replicas": int64(3)},
				{"id": "dep-3", "service_id": "svc-3", "replicas": int64(1)},
			},
		},
		cols: map[string][]model.ColumnInfo{
			"services": {
				{Name: "id", Type: model.ColString}, {Name: "name", Type: model.ColString},
				{Name: "environment", Type: model.ColString}, {Name: "version", Type: model.ColString},
				{Name: "status", Type: model.ColString}, {Name: "cpu_usage", Type: model.ColNumber},
				{Name: "memory_usage", Type: model.ColNumber},
			},
			"deployments": {
				{Name: "id", Type: model.ColString}, {Name: "service_id", Type: model.ColString},
				{Name: "replicas", Type: model.ColNumber},
			},
		},
		fail: map[string]error{},
	}
}

func (f *fakeSource) Initialise(ctx context.Context, config map[string]interface{}) error { return nil }

func (f *fakeSource) Tables(ctx context.Context) ([]model.TableInfo, error) {
	out := make([]model.TableInfo, 0, len(f.tables))
	for name, cols := range f.cols {
		out = append(out, model.TableInfo{Name: name, Columns: cols})
	}
	return out, nil
}

func (f *fakeSource) Query(ctx context.Context, table string, filters []model.Filter, options model.QueryOptions) (model.QueryResult, error) {
	if err, ok := f.fail[table]; ok {
		return model.QueryResult{}, err
	}
	rows, ok := f.tables[table]
	if !ok {
		return model.QueryResult{}, fmt.Errorf("unknown table %q", table)
	}
	cp := make([]model.Row, len(rows))
	for i, r := range rows {
		cp[i] = r.Clone()
	}
	return model.QueryResult{Columns: f.cols[table], Rows: cp, RowCount: len(cp)}, nil
}

// EstimatedRows makes fakeSource satisfy plugin.RowEstimator so the executor's
// diagnostic wiring can be exercised without pulling in the mock plugin.
func (f *fakeSource) EstimatedRows(ctx context.Context, table string) (int64, bool) {
	rows, ok := f.tables[table]
	if !ok {
		return 0, false
	}
	return int64(len(rows)), true
}

func setup(t *testing.T) (*Executor, *fakeSource) {
	t.Helper()
	reg := registry.New(8)
	src := newFakeSource()
	require.NoError(t, reg.Register(context.Background(), "mock", src, nil))
	c := cache.New(cache.Config{Enabled: true, MaxSize: 100, DefaultTTLMillis: int64(time.Minute / time.Millisecond)})
	return New(reg, c, 10000), src
}

func exec(t *testing.T, e *Executor, sql string) model.QueryResult {
	t.Helper()
	stmt, err := lang.Parse(sql)
	require.NoError(t, err)
	res, err := e.Execute(context.Background(), stmt)
	require.NoError(t, err)
	qr, ok := res.(model.QueryResult)
	require.True(t, ok)
	return qr
}

func TestExecutor_SelectStar(t *testing.T) {
	e, _ := setup(t)
	qr := exec(t, e, "SELECT * FROM services")
	require.Equal(t, 3, qr.RowCount)
}

func TestExecutor_SelectAnnotatesEstimatedRows(t *testing.T) {
	e, _ := setup(t)
	qr := exec(t, e, "SELECT * FROM services")
	require.True(t, qr.HasEstimatedRows)
	require.Equal(t, int64(3), qr.EstimatedRows)
}

func TestExecutor_Describe_AnnotatesEstimatedRows(t *testing.T) {
	e, _ := setup(t)
	stmt, err := lang.Parse("DESCRIBE services")
	require.NoError(t, err)
	res, err := e.Execute(context.Background(), stmt)
	require.NoError(t, err)
	dr, ok := res.(model.DescribeResult)
	require.True(t, ok)
	require.True(t, dr.HasEstimatedRows)
	require.Equal(t, int64(3), dr.EstimatedRows)
}

func TestExecutor_ProjectionAndWhere(t *testing.T) {
	e, _ := setup(t)
	qr := exec(t, e, "SELECT name, status FROM services WHERE environment = 'production'")
	require.Equal(t, 2, qr.RowCount)
	for _, row := range qr.Rows {
		require.Len(t, row, 2)
		require.Contains(t, []interface{}{"api-gateway", "auth-service"}, row["name"])
	}
}

func TestExecutor_OrderBy(t *testing.T) {
	e, _ := setup(t)
	qr := exec(t, e, "SELECT name FROM services ORDER BY name ASC")
	names := make([]interface{}, len(qr.Rows))
	for i, r := range qr.Rows {
		names[i] = r["name"]
	}
	require.Equal(t, []interface{}{"api-gateway", "auth-service", "data-processor"}, names)
}

func TestExecutor_CountStar(t *testing.T) {
	e, _ := setup(t)
	qr := exec(t, e, "SELECT COUNT(*) AS total FROM services")
	require.Equal(t, 1, qr.RowCount)
	require.Equal(t, int64(3), qr.Rows[0]["total"])
}

func TestExecutor_GroupByCount(t *testing.T) {
	e, _ := setup(t)
	qr := exec(t, e, "SELECT status, COUNT(*) AS count FROM services GROUP BY status")
	require.Equal(t, 2, qr.RowCount)
	byStatus := map[string]interface{}{}
	for _, row := range qr.Rows {
		byStatus[row["status"].(string)] = row["count"]
	}
	require.Equal(t, int64(2), byStatus["active"])
	require.Equal(t, int64(1), byStatus["degraded"])
}

func TestExecutor_SumOverDeployments(t *testing.T) {
	e, _ := setup(t)
	qr := exec(t, e, "SELECT SUM(replicas) AS s FROM deployments")
	require.Equal(t, float64(6), qr.Rows[0]["s"])
}

func TestExecutor_InnerJoin(t *testing.T) {
	e, _ := setup(t)
	qr := exec(t, e, "SELECT * FROM services INNER JOIN deployments ON services.id = deployments.service_id")
	require.Equal(t, 3, qr.RowCount)
	for _, row := range qr.Rows {
		require.Equal(t, row["services.id"], row["deployments.service_id"])
	}
}

func TestExecutor_LeftJoinRowCountAtLeastLeft(t *testing.T) {
	e, _ := setup(t)
	qr := exec(t, e, "SELECT * FROM services LEFT JOIN deployments ON services.id = deployments.service_id")
	require.GreaterOrEqual(t, qr.RowCount, 3)
}

func TestExecutor_UnknownTableIsExecutionError(t *testing.T) {
	e, _ := setup(t)
	stmt, err := lang.Parse("SELECT * FROM nope")
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), stmt)
	require.Error(t, err)
}

func TestExecutor_CacheHitOnRepeat(t *testing.T) {
	e, _ := setup(t)
	first := exec(t, e, "SELECT * FROM services WHERE environment = 'production'")
	second := exec(t, e, "SELECT * FROM services WHERE environment = 'production'")
	require.Equal(t, first.RowCount, second.RowCount)
	require.Equal(t, int64(1), e.cache.Stats().Hits)
}

func TestExecutor_CacheIneligibleForJoinsAndAggregates(t *testing.T) {
	e, _ := setup(t)

	exec(t, e, "SELECT COUNT(*) AS total FROM services")
	require.Equal(t, 0, e.cache.Stats().Size, "aggregate plans must never populate the cache")

	exec(t, e, "SELECT * FROM services INNER JOIN deployments ON services.id = deployments.service_id")
	require.Equal(t, 0, e.cache.Stats().Size, "join plans must never populate the cache")

	exec(t, e, "SELECT * FROM services WHERE environment = 'production'")
	require.Equal(t, 1, e.cache.Stats().Size, "a plain single-table select is cache-eligible")
}

func TestExecutor_RightJoinUnmatchedLeftCarriesNullColumns(t *testing.T) {
	e, src := setup(t)
	src.tables["deployments"] = append(src.tables["deployments"],
		model.Row{"id": "dep-9", "service_id": "svc-orphan", "replicas": int64(4)})

	qr := exec(t, e, "SELECT * FROM services RIGHT JOIN deployments ON services.id = deployments.service_id")
	require.Equal(t, 4, qr.RowCount)

	var found bool
	for _, row := range qr.Rows {
		if row["deployments.service_id"] == "svc-orphan" {
			found = true
			require.Nil(t, row["services.id"])
			require.Nil(t, row["services.name"])
		}
	}
	require.True(t, found, "expected the unmatched deployment row to appear with null left-side columns")
}

func TestExecutor_PredicateLikeBetweenIn(t *testing.T) {
	e, _ := setup(t)

	qr := exec(t, e, "SELECT name FROM services WHERE name LIKE 'gateway'")
	require.Equal(t, 1, qr.RowCount)
	require.Equal(t, "api-gateway", qr.Rows[0]["name"])

	qr = exec(t, e, "SELECT name FROM services WHERE cpu_usage BETWEEN 40 AND 50")
	require.Equal(t, 1, qr.RowCount)
	require.Equal(t, "api-gateway", qr.Rows[0]["name"])

	qr = exec(t, e, "SELECT name FROM services WHERE status IN ('active', 'degraded')")
	require.Equal(t, 3, qr.RowCount)
}

func TestExecutor_AvgAggregate(t *testing.T) {
	e, _ := setup(t)
	qr := exec(t, e, "SELECT AVG(replicas) AS avg_replicas FROM deployments")
	require.Equal(t, 1, qr.RowCount)
	require.Equal(t, float64(2), qr.Rows[0]["avg_replicas"])
}

func TestExecutor_SumOverPartitionsEqualsSumOverWhole(t *testing.T) {
	e, _ := setup(t)
	whole := exec(t, e, "SELECT SUM(replicas) AS s FROM deployments")

	byService := exec(t, e, "SELECT service_id, SUM(replicas) AS s FROM deployments GROUP BY service_id")
	var partitioned float64
	for _, row := range byService.Rows {
		partitioned += row["s"].(float64)
	}
	require.Equal(t, whole.Rows[0]["s"].(float64), partitioned)
}

func TestExecutor_OrderByStableForEqualKeys(t *testing.T) {
	e, _ := setup(t)
	qr := exec(t, e, "SELECT name FROM services ORDER BY environment ASC")
	names := make([]interface{}, len(qr.Rows))
	for i, r := range qr.Rows {
		names[i] = r["name"]
	}
	// svc-1 and svc-2 share environment="production"; their relative order
	// (insertion order) must survive the sort untouched.
	require.Equal(t, []interface{}{"api-gateway", "auth-service", "data-processor"}, names)
}

func TestExecutor_ProjectionIsOrderInvariant(t *testing.T) {
	e, _ := setup(t)
	forward := exec(t, e, "SELECT name, status FROM services WHERE id = 'svc-1'")
	reversed := exec(t, e, "SELECT status, name FROM services WHERE id = 'svc-1'")

	require.Equal(t, 1, forward.RowCount)
	require.Equal(t, 1, reversed.RowCount)
	require.Equal(t, forward.Rows[0]["name"], reversed.Rows[0]["name"])
	require.Equal(t, forward.Rows[0]["status"], reversed.Rows[0]["status"])
}

// pushdownFakeSource actually applies an "=" filter server-side, simulating a
// plugin that honors pushdown; fakeSource itself ignores filters entirely.
// Testable Property 3 requires both to produce identical final results, since
// the executor always re-applies the full predicate after fetch regardless
// of what a plugin chose to push down.
type pushdownFakeSource struct {
	*fakeSource
}

func (f *pushdownFakeSource) Query(ctx context.Context, table string, filters []model.Filter, options model.QueryOptions) (model.QueryResult, error) {
	result, err := f.fakeSource.Query(ctx, table, filters, options)
	if err != nil {
		return result, err
	}
	var kept []model.Row
	for _, row := range result.Rows {
		match := true
		for _, f := range filters {
			if f.Op == "=" && row[f.Field] != f.Value {
				match = false
				break
			}
		}
		if match {
			kept = append(kept, row)
		}
	}
	result.Rows = kept
	result.RowCount = len(kept)
	return result, nil
}

func TestExecutor_FilterPushdownDoesNotChangeResults(t *testing.T) {
	reg := registry.New(8)
	src := &pushdownFakeSource{fakeSource: newFakeSource()}
	require.NoError(t, reg.Register(context.Background(), "mock", src, nil))
	c := cache.New(cache.Config{Enabled: true, MaxSize: 100})
	pushed := New(reg, c, 10000)

	noPushdown, _ := setup(t)

	const sql = "SELECT name FROM services WHERE environment = 'production'"
	withPushdown := exec(t, pushed, sql)
	without := exec(t, noPushdown, sql)

	require.Equal(t, without.RowCount, withPushdown.RowCount)
	requireSameNames(t, without.Rows, withPushdown.Rows)
}

func requireSameNames(t *testing.T, a, b []model.Row) {
	t.Helper()
	names := func(rows []model.Row) []interface{} {
		out := make([]interface{}, len(rows))
		for i, r := range rows {
			out[i] = r["name"]
		}
		return out
	}
	require.ElementsMatch(t, names(a), names(b))
}

func TestExecutor_Describe(t *testing.T) {
	e, _ := setup(t)
	stmt, err := lang.Parse("DESCRIBE services")
	require.NoError(t, err)
	res, err := e.Execute(context.Background(), stmt)
	require.NoError(t, err)
	desc, ok := res.(model.DescribeResult)
	require.True(t, ok)
	require.Equal(t, "services", desc.Table)
	require.NotEmpty(t, desc.Columns)
}

func TestExecutor_ShowTables(t *testing.T) {
	e, _ := setup(t)
	stmt, err := lang.Parse("SHOW TABLES")
	require.NoError(t, err)
	res, err := e.Execute(context.Background(), stmt)
	require.NoError(t, err)
	show, ok := res.(model.ShowResult)
	require.True(t, ok)
	require.Len(t, show.Items, 2)
}

func TestExecutor_CacheClearCommand(t *testing.T) {
	e, _ := setup(t)
	exec(t, e, "SELECT * FROM services")
	stmt, err := lang.Parse("CACHE CLEAR")
	require.NoError(t, err)
	res, err := e.Execute(context.Background(), stmt)
	require.NoError(t, err)
	cr, ok := res.(model.CacheResult)
	require.True(t, ok)
	require.Equal(t, "CLEAR", cr.Action)
}

func TestExecutor_Truncation(t *testing.T) {
	reg := registry.New(8)
	src := newFakeSource()
	big := make([]model.Row, 5)
	for i := range big {
		big[i] = model.Row{"id": i}
	}
	src.tables["big"] = big
	src.cols["big"] = []model.ColumnInfo{{Name: "id", Type: model.ColNumber}}
	require.NoError(t, reg.Register(context.Background(), "mock", src, nil))
	c := cache.New(cache.Config{Enabled: true, MaxSize: 100})
	e := New(reg, c, 2)

	qr := exec(t, e, "SELECT * FROM big")
	require.Equal(t, 2, qr.RowCount)
	require.True(t, qr.Truncated)
	require.Equal(t, 5, qr.TotalCount)
	require.NotEmpty(t, qr.Warning)
}
