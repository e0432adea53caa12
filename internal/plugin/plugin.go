// Package plugin defines the narrow capability surface every data source
// must implement (spec §4.3). It is modeled on sqlvibe's internal/DS.VTab
// virtual-table contract — Connect/BestIndex/Open/Column becomes
// Initialise/Tables/Query/Trace/HealthCheck/Cleanup — generalized from
// SQLite's column-indexed rows to the dynamically-typed Row map a live API
// naturally returns.
package plugin

import (
	"context"

	"github.com/cyw0ng95/infraql/internal/model"
)

// HealthResult is the shape named in spec §4.3's healthCheck() prose:
// {healthy, message, latency}.
type HealthResult struct {
	Healthy       bool
	Message       string
	LatencyMillis float64
}

// Source is the plugin contract. Trace, HealthCheck, Cleanup and
// EstimatedRows are optional; a plugin signals it does not implement one by
// simply not asserting the corresponding interface (Tracer/HealthChecker/
// Cleaner/RowEstimator below), matching sqlvibe's pattern of small
// composable interfaces rather than one fat interface with no-op methods.
type Source interface {
	// Initialise is called once by the registry at Register time.
	Initialise(ctx context.Context, config map[string]interface{}) error
	// Tables returns the tables this source exposes.
	Tables(ctx context.Context) ([]model.TableInfo, error)
	// Query fetches rows for table, honoring as much of filters/options as
	// the source supports. The executor always re-applies the full
	// predicate, so partial or absent pushdown support is always correct.
	Query(ctx context.Context, table string, filters []model.Filter, options model.QueryOptions) (model.QueryResult, error)
}

// Tracer is implemented by sources that can follow an identifier across
// their own data (spec §4.3/§4.4).
type Tracer interface {
	Trace(ctx context.Context, identifier string, value interface{}) ([]model.Hop, error)
}

// HealthChecker is implemented by sources that can report their own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (HealthResult, error)
}

// Cleaner is implemented by sources holding resources that must be released
// on unregister.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// RowEstimator is the SPEC_FULL supplement grounded on sqlvibe's
// VTab.BestIndex EstimatedRows field: a source may advertise an approximate
// row count for a table purely for SELECT/DESCRIBE diagnostics. The executor
// never uses it for planning (spec §1: no optimizer cost model).
type RowEstimator interface {
	EstimatedRows(ctx context.Context, table string) (int64, bool)
}
