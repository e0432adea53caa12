// Package registry is the plugin lifecycle, lookup and catalogue-aggregation
// component of spec §4.4. State and locking follow sqlvibe's
// internal/IS.vtabModules pattern (a single RWMutex-guarded map plus a
// sorted-name listing helper); fan-out to multiple plugins uses
// golang.org/x/sync/errgroup so a per-plugin failure never blocks the others
// and every fan-out joins at one point, as spec §5 requires.
package registry

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cyw0ng95/infraql/internal/errs"
	"github.com/cyw0ng95/infraql/internal/log"
	"github.com/cyw0ng95/infraql/internal/model"
	"github.com/cyw0ng95/infraql/internal/plugin"
)

// Retry discipline for plugin-side I/O (spec §5): exponential backoff,
// jittered ±25%, 3 attempts, 1s initial delay, 10s cap, 2x multiplier.
// Retries fire only for errs.IsTransient signals and stop the moment ctx is
// cancelled.
const (
	retryMaxAttempts  = 3
	retryInitialDelay = time.Second
	retryMaxDelay     = 10 * time.Second
	retryMultiplier   = 2.0
	retryJitter       = 0.25
)

// withRetry runs op, retrying it when it returns a transient error, for at
// most retryMaxAttempts attempts in all. Non-transient errors and the final attempt's error are
// returned as-is. A cancelled ctx aborts the wait between attempts
// immediately.
func withRetry(ctx context.Context, op func() error) error {
	delay := retryInitialDelay
	var err error
	for attempt := 1; attempt <= retryMaxAttempts; attempt++ {
		err = op()
		if err == nil || !errs.IsTransient(err) {
			return err
		}
		if attempt == retryMaxAttempts {
			return err
		}
		select {
		case <-time.After(jittered(delay)):
		case <-ctx.Done():
			return err
		}
		delay = time.Duration(float64(delay) * retryMultiplier)
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
	return err
}

// jittered returns d adjusted by a uniform random offset within ±retryJitter.
func jittered(d time.Duration) time.Duration {
	offset := (rand.Float64()*2 - 1) * retryJitter
	return time.Duration(float64(d) * (1 + offset))
}

// cancelOrTimeout classifies a context error as PLUGIN_TIMEOUT (deadline
// exceeded) or PLUGIN_CANCELLED (explicit cancellation), per spec §7's
// distinct codes for the two cases.
func cancelOrTimeout(source, operation string, ctxErr error) *errs.Error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return errs.TimedOut(source, operation, ctxErr)
	}
	return errs.Cancelled(source, operation, ctxErr)
}

type entry struct {
	name    string
	source  plugin.Source
	initOK  bool
}

// Registry holds the process-wide set of registered plugins.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]*entry

	// schemaCache memoizes Tables() lookups per source for the lifetime of
	// process uptime bounded by an LRU, since schema shape churns far less
	// than row data (spec's per-table result cache handles the latter).
	schemaCache *lru.Cache[string, []model.TableInfo]
}

// New builds an empty Registry. schemaCacheSize bounds how many sources'
// Tables() results are memoized at once; 0 disables the schema cache.
func New(schemaCacheSize int) *Registry {
	r := &Registry{plugins: make(map[string]*entry)}
	if schemaCacheSize > 0 {
		c, err := lru.New[string, []model.TableInfo](schemaCacheSize)
		if err == nil {
			r.schemaCache = c
		}
	}
	return r
}

// Register adds a plugin under name and initialises it. Duplicate names and
// initialisation failures are plugin-kind errors; on initialisation failure
// the entry is removed (spec §4.4).
func (r *Registry) Register(ctx context.Context, name string, src plugin.Source, config map[string]interface{}) error {
	r.mu.Lock()
	if _, exists := r.plugins[name]; exists {
		r.mu.Unlock()
		return errs.Plugin(name, "register", errAlreadyRegistered(name))
	}
	e := &entry{name: name, source: src}
	r.plugins[name] = e
	r.mu.Unlock()

	reqID := uuid.NewString()
	if err := src.Initialise(ctx, config); err != nil {
		r.mu.Lock()
		delete(r.plugins, name)
		r.mu.Unlock()
		log.With("request_id", reqID, "source", name).Error("plugin initialise failed: %v", err)
		return errs.Plugin(name, "initialise", err)
	}

	r.mu.Lock()
	e.initOK = true
	r.mu.Unlock()
	log.With("request_id", reqID, "source", name).Info("plugin registered")
	return nil
}

// Unregister removes a plugin, invoking Cleanup best-effort.
func (r *Registry) Unregister(ctx context.Context, name string) {
	r.mu.Lock()
	e, ok := r.plugins[name]
	delete(r.plugins, name)
	r.mu.Unlock()
	if !ok {
		return
	}
	if cleaner, ok := e.source.(plugin.Cleaner); ok {
		if err := cleaner.Cleanup(ctx); err != nil {
			log.Warn("cleanup failed for plugin %q: %v", name, err)
		}
	}
	if r.schemaCache != nil {
		r.schemaCache.Remove(name)
	}
}

// Get returns the named initialised plugin.
func (r *Registry) Get(name string) (plugin.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.plugins[name]
	if !ok || !e.initOK {
		return nil, false
	}
	return e.source, true
}

// Names returns the registered plugin names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.plugins))
	for n, e := range r.plugins {
		if e.initOK {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// TablesAll fans out Tables() to every initialised plugin concurrently.
// A per-plugin failure is logged and that plugin's contribution is omitted
// (spec §4.4/§7); the flat result is stable-sorted by (source, name).
func (r *Registry) TablesAll(ctx context.Context) []model.TableInfo {
	names := r.Names()
	results := make([][]model.TableInfo, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			src, ok := r.Get(name)
			if !ok {
				return nil
			}
			if cached, ok := r.cachedTables(name); ok {
				results[i] = annotate(cached, name)
				return nil
			}
			var tables []model.TableInfo
			err := withRetry(gctx, func() error {
				var terr error
				tables, terr = src.Tables(gctx)
				return terr
			})
			if err != nil {
				log.Warn("tablesAll: plugin %q failed: %v", name, err)
				return nil
			}
			r.storeTables(name, tables)
			results[i] = annotate(tables, name)
			return nil
		})
	}
	_ = g.Wait() // per-plugin errors are already swallowed above

	var out []model.TableInfo
	for _, r := range results {
		out = append(out, r...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func annotate(tables []model.TableInfo, source string) []model.TableInfo {
	out := make([]model.TableInfo, len(tables))
	for i, t := range tables {
		t.Source = source
		out[i] = t
	}
	return out
}

func (r *Registry) cachedTables(name string) ([]model.TableInfo, bool) {
	if r.schemaCache == nil {
		return nil, false
	}
	return r.schemaCache.Get(name)
}

func (r *Registry) storeTables(name string, tables []model.TableInfo) {
	if r.schemaCache == nil {
		return
	}
	r.schemaCache.Add(name, tables)
}

// InvalidateSchema drops any memoized Tables() result for name.
func (r *Registry) InvalidateSchema(name string) {
	if r.schemaCache != nil {
		r.schemaCache.Remove(name)
	}
}

// Query dispatches a fetch to the named plugin, retrying transient failures
// with backoff (spec §5) and wrapping any surviving error as a plugin-kind
// error with cause preserved.
func (r *Registry) Query(ctx context.Context, source, table string, filters []model.Filter, options model.QueryOptions) (model.QueryResult, error) {
	src, ok := r.Get(source)
	if !ok {
		return model.QueryResult{}, errs.Execution("unknown source", source)
	}
	if err := ctx.Err(); err != nil {
		return model.QueryResult{}, cancelOrTimeout(source, "query", err)
	}
	var result model.QueryResult
	err := withRetry(ctx, func() error {
		var qerr error
		result, qerr = src.Query(ctx, table, filters, options)
		return qerr
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.QueryResult{}, cancelOrTimeout(source, "query", ctxErr)
		}
		return model.QueryResult{}, errs.Plugin(source, "query", err)
	}
	return result, nil
}

// Trace fans out to every named source implementing Tracer, merging and
// time-ordering the hops. Per-source failure is logged and that source is
// omitted (spec §4.4).
func (r *Registry) Trace(ctx context.Context, identifier string, value interface{}, sources []string) []model.Hop {
	if len(sources) == 0 {
		sources = r.Names()
	}
	perSource := make([][]model.Hop, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range sources {
		i, name := i, name
		g.Go(func() error {
			src, ok := r.Get(name)
			if !ok {
				return nil
			}
			tracer, ok := src.(plugin.Tracer)
			if !ok {
				return nil
			}
			hops, err := tracer.Trace(gctx, identifier, value)
			if err != nil {
				log.Warn("trace: plugin %q failed: %v", name, err)
				return nil
			}
			perSource[i] = hops
			return nil
		})
	}
	_ = g.Wait()

	var all []model.Hop
	for _, hops := range perSource {
		all = append(all, hops...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	return all
}

// HealthAll fans out HealthCheck to every plugin implementing HealthChecker.
// Failures and timeouts produce a Healthy=false result carrying the error,
// never an aborted call (spec §4.4).
func (r *Registry) HealthAll(ctx context.Context, timeout time.Duration) map[string]plugin.HealthResult {
	names := r.Names()
	out := make(map[string]plugin.HealthResult, len(names))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			src, ok := r.Get(name)
			if !ok {
				return nil
			}
			checker, ok := src.(plugin.HealthChecker)
			if !ok {
				mu.Lock()
				out[name] = plugin.HealthResult{Healthy: true, Message: "no health check implemented"}
				mu.Unlock()
				return nil
			}
			callCtx := gctx
			var cancel context.CancelFunc
			if timeout > 0 {
				callCtx, cancel = context.WithTimeout(gctx, timeout)
				defer cancel()
			}
			start := time.Now()
			var res plugin.HealthResult
			err := withRetry(callCtx, func() error {
				var herr error
				res, herr = checker.HealthCheck(callCtx)
				return herr
			})
			res.LatencyMillis = float64(time.Since(start).Microseconds()) / 1000.0
			if err != nil {
				res = plugin.HealthResult{Healthy: false, Message: err.Error(), LatencyMillis: res.LatencyMillis}
			}
			mu.Lock()
			out[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

type registrationError string

func (e registrationError) Error() string { return string(e) }

func errAlreadyRegistered(name string) error {
	return registrationError("plugin " + name + " is already registered")
}
