// Package mock is the synthetic reference data source named in the
// glossary: three tables (services, deployments, incidents) used as the
// fixture for the end-to-end scenarios. It is grounded on sqlvibe's
// in-memory vtab fixtures (internal/DS test doubles) generalized from
// SQLite rows to infraql's dynamically-typed Row maps, with a bounded
// worker pool standing in for the per-request latency a live cloud/
// orchestrator adapter would actually incur.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/cyw0ng95/infraql/internal/model"
	"github.com/cyw0ng95/infraql/internal/plugin"
)

// Config tunes the synthetic latency injected per fetched row, mimicking
// the shape a real adapter's config map would carry.
type Config struct {
	PerRowLatency time.Duration
	WorkerPoolSize int
}

// Source is the mock plugin.Source implementation.
type Source struct {
	mu     sync.RWMutex
	tables map[string][]model.Row
	cols   map[string][]model.ColumnInfo
	pool   *ants.Pool
	config Config
}

func New() *Source {
	return &Source{}
}

func (s *Source) Initialise(ctx context.Context, config map[string]interface{}) error {
	cfg := Config{PerRowLatency: 0, WorkerPoolSize: 8}
	if config != nil {
		if v, ok := config["perRowLatencyMillis"].(int); ok {
			cfg.PerRowLatency = time.Duration(v) * time.Millisecond
		}
		if v, ok := config["workerPoolSize"].(int); ok && v > 0 {
			cfg.WorkerPoolSize = v
		}
	}
	pool, err := ants.NewPool(cfg.WorkerPoolSize)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool = pool
	s.config = cfg
	s.tables, s.cols = seedFixture()
	return nil
}

func (s *Source) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		s.pool.Release()
	}
	return nil
}

func (s *Source) Tables(ctx context.Context) ([]model.TableInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]model.TableInfo, len(names))
	for i, name := range names {
		out[i] = model.TableInfo{
			Name:        name,
			Columns:     s.cols[name],
			RowCount:    int64(len(s.tables[name])),
			HasRowCount: true,
		}
	}
	return out, nil
}

// Query simulates per-row fetch latency by fanning row copies out across a
// bounded worker pool, then re-collecting them — a stand-in for the
// concurrent per-item network calls a real adapter would make.
func (s *Source) Query(ctx context.Context, table string, filters []model.Filter, options model.QueryOptions) (model.QueryResult, error) {
	s.mu.RLock()
	rows, ok := s.tables[table]
	cols := s.cols[table]
	pool := s.pool
	latency := s.config.PerRowLatency
	s.mu.RUnlock()
	if !ok {
		return model.QueryResult{}, unknownTableError(table)
	}

	out := make([]model.Row, len(rows))
	var wg sync.WaitGroup
	var submitErr error
	var errOnce sync.Once
	for i, row := range rows {
		i, row := i, row
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if latency > 0 {
				select {
				case <-time.After(latency):
				case <-ctx.Done():
				}
			}
			out[i] = row.Clone()
		}
		if err := pool.Submit(task); err != nil {
			errOnce.Do(func() { submitErr = err })
			wg.Done()
		}
	}
	wg.Wait()
	if submitErr != nil {
		return model.QueryResult{}, submitErr
	}
	if err := ctx.Err(); err != nil {
		return model.QueryResult{}, err
	}

	return model.QueryResult{Columns: cols, Rows: out, RowCount: len(out)}, nil
}

// traceKeyAliases maps a trace identifier to the field name a given table
// actually keys its rows by, so tracing by a foreign-key name like
// "service_id" still finds the owning table's own primary key column
// ("id" in services). Every table other than the one named here is still
// scanned for a literal "identifier" field match.
var traceKeyAliases = map[string]map[string]string{
	"services": {"service_id": "id"},
}

// Trace follows an identifier by scanning every table for a matching field,
// synthesizing hop timestamps a fixed interval apart so ordering is
// deterministic across runs.
func (s *Source) Trace(ctx context.Context, identifier string, value interface{}) ([]model.Hop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hops []model.Hop
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)

	base := time.Now().UTC()
	step := 0
	for _, table := range names {
		field := identifier
		if alias, ok := traceKeyAliases[table][identifier]; ok {
			field = alias
		}
		for _, row := range s.tables[table] {
			if v, ok := row[field]; ok && v == value {
				hops = append(hops, model.Hop{
					Source:    "mock",
					Table:     table,
					Timestamp: base.Add(time.Duration(step) * time.Millisecond),
					Data:      row.Clone(),
				})
				step++
			}
		}
	}
	return hops, nil
}

func (s *Source) HealthCheck(ctx context.Context) (plugin.HealthResult, error) {
	return plugin.HealthResult{Healthy: true, Message: "mock source operating normally"}, nil
}

func (s *Source) EstimatedRows(ctx context.Context, table string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.tables[table]
	if !ok {
		return 0, false
	}
	return int64(len(rows)), true
}

type unknownTableError string

func (e unknownTableError) Error() string { return "unknown table: " + string(e) }

func seedFixture() (map[string][]model.Row, map[string][]model.ColumnInfo) {
	tables := map[string][]model.Row{
		"services": {
			{"id": "svc-1", "name": "api-gateway", "environment": "production", "version": "1.2.0", "status": "active", "cpu_usage": 45.0, "memory_usage": 60.0},
			{"id": "svc-2", "name": "auth-service", "environment": "production", "version": "2.0.1", "status": "active", "cpu_usage": 30.0, "memory_usage": 40.0},
			{"id": "svc-3", "name": "data-processor", "environment": "staging", "version": "0.9.0", "status": "degraded", "cpu_usage": 80.0, "memory_usage": 90.0},
		},
		"deployments": {
			{"id": "dep-1", "service_id": "svc-1", "replicas": int64(2), "strategy": "rolling"},
			{"id": "dep-2", "service_id": "svc-2", "replicas": int64(3), "strategy": "blue-green"},
			{"id": "dep-3", "service_id": "svc-3", "replicas": int64(1), "strategy": "recreate"},
		},
		"incidents": {
			{"id": "inc-1", "service_id": "svc-3", "severity": "high", "opened_at": "2026-08-01T10:00:00Z", "status": "open"},
			{"id": "inc-2", "service_id": "svc-1", "severity": "low", "opened_at": "2026-07-28T09:00:00Z", "status": "resolved"},
		},
	}
	cols := map[string][]model.ColumnInfo{
		"services": {
			{Name: "id", Type: model.ColString}, {Name: "name", Type: model.ColString},
			{Name: "environment", Type: model.ColString}, {Name: "version", Type: model.ColString},
			{Name: "status", Type: model.ColString}, {Name: "cpu_usage", Type: model.ColNumber},
			{Name: "memory_usage", Type: model.ColNumber},
		},
		"deployments": {
			{Name: "id", Type: model.ColString}, {Name: "service_id", Type: model.ColString},
			{Name: "replicas", Type: model.ColNumber}, {Name: "strategy", Type: model.ColString},
		},
		"incidents": {
			{Name: "id", Type: model.ColString}, {Name: "service_id", Type: model.ColString},
			{Name: "severity", Type: model.ColString}, {Name: "opened_at", Type: model.ColDate},
			{Name: "status", Type: model.ColString},
		},
	}
	return tables, cols
}
