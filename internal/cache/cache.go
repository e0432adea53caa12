// Package cache is the TTL-bounded, size-bounded result cache of spec §4.5.
// The map-plus-mutex shape and insertion-order eviction are a direct
// generalization of sqlvibe's internal/CG.StmtCache; unlike that cache this
// one overlays a per-table TTL on a default and tracks hit/miss stats.
//
// hashicorp/golang-lru is deliberately not used here: Testable Property 11
// pins eviction to the lowest insertion timestamp, and golang-lru's LRU
// reorders entries on access, which would silently change which entry gets
// evicted under read load. This is the one component where the corpus's
// generic caching library does not fit the pinned algorithm.
package cache

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/cyw0ng95/infraql/internal/model"
)

const DefaultTTL = 5 * time.Minute

type entry struct {
	result    model.QueryResult
	table     string
	createdAt time.Time
	ttl       time.Duration
	hits      int
	sizeBytes int
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// ResultCache is safe for concurrent use.
type ResultCache struct {
	mu          sync.Mutex
	entries     map[string]*entry
	maxSize     int
	defaultTTL  time.Duration
	perTableTTL map[string]time.Duration
	enabled     bool

	hits        int64
	misses      int64
	tableMisses map[string]int
}

// Config mirrors the {cache:{enabled, defaultTTLMillis, maxSize, perTableTTL}}
// surface named in spec §6.
type Config struct {
	Enabled          bool
	DefaultTTLMillis int64
	MaxSize          int
	PerTableTTL      map[string]int64
}

func New(cfg Config) *ResultCache {
	perTable := make(map[string]time.Duration, len(cfg.PerTableTTL))
	for table, ms := range cfg.PerTableTTL {
		perTable[table] = time.Duration(ms) * time.Millisecond
	}
	defaultTTL := DefaultTTL
	if cfg.DefaultTTLMillis > 0 {
		defaultTTL = time.Duration(cfg.DefaultTTLMillis) * time.Millisecond
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &ResultCache{
		entries:     make(map[string]*entry),
		maxSize:     maxSize,
		defaultTTL:  defaultTTL,
		perTableTTL: perTable,
		enabled:     cfg.Enabled,
		tableMisses: make(map[string]int),
	}
}

// Fingerprint builds a canonical, order-insensitive cache key over
// (table, columns, filters, options). Maps and slices are sorted before
// serialization so value-equal inputs always fingerprint identically
// regardless of field insertion order (spec §4.5).
func Fingerprint(table string, filters []model.Filter, options model.QueryOptions, columns []string) string {
	sortedFilters := make([]model.Filter, len(filters))
	copy(sortedFilters, filters)
	sort.Slice(sortedFilters, func(i, j int) bool {
		if sortedFilters[i].Field != sortedFilters[j].Field {
			return sortedFilters[i].Field < sortedFilters[j].Field
		}
		return sortedFilters[i].Op < sortedFilters[j].Op
	})

	sortedColumns := make([]string, len(columns))
	copy(sortedColumns, columns)
	sort.Strings(sortedColumns)

	sortedOrderBy := make([]model.OrderTerm, len(options.OrderBy))
	copy(sortedOrderBy, options.OrderBy)
	// ORDER BY is positional, not a set, so its relative order is preserved
	// as-is: only the containing struct's field order is normalized by
	// marshaling into a fixed shape below.

	canonical := struct {
		Table   string             `json:"table"`
		Columns []string           `json:"columns"`
		Filters []model.Filter     `json:"filters"`
		Limit   int                `json:"limit"`
		HasLim  bool               `json:"has_limit"`
		Offset  int                `json:"offset"`
		OrderBy []model.OrderTerm  `json:"order_by"`
	}{
		Table:   table,
		Columns: sortedColumns,
		Filters: sortedFilters,
		Limit:   options.Limit,
		HasLim:  options.HasLimit,
		Offset:  options.Offset,
		OrderBy: sortedOrderBy,
	}
	b, err := json.Marshal(canonical)
	if err != nil {
		// Marshaling a struct of primitives/slices never fails in practice;
		// fall back to a degenerate but still-deterministic key.
		return table
	}
	return string(b)
}

// Get returns the cached result for fingerprint under table if present and
// unexpired. Reading past-TTL entries counts as a miss and frees the slot
// (lazy expiration, spec §4.5). table drives the per-table miss breakdown in
// Stats; the caller always knows which table it queried.
func (c *ResultCache) Get(fingerprint, table string) (model.QueryResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return model.QueryResult{}, false
	}
	e, ok := c.entries[fingerprint]
	if !ok {
		c.misses++
		c.tableMisses[table]++
		return model.QueryResult{}, false
	}
	if e.expired(time.Now()) {
		delete(c.entries, fingerprint)
		c.misses++
		c.tableMisses[table]++
		return model.QueryResult{}, false
	}
	e.hits++
	c.hits++
	return e.result, true
}

// Set stores result under fingerprint for table, evicting the oldest entry
// by insertion timestamp if the cache is at capacity (spec §4.5).
func (c *ResultCache) Set(fingerprint, table string, result model.QueryResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return
	}
	if _, exists := c.entries[fingerprint]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	size := 0
	if b, err := json.Marshal(result); err == nil {
		size = len(b)
	}
	c.entries[fingerprint] = &entry{
		result:    result,
		table:     table,
		createdAt: time.Now(),
		ttl:       c.ttlForLocked(table),
		sizeBytes: size,
	}
}

func (c *ResultCache) ttlForLocked(table string) time.Duration {
	if ttl, ok := c.perTableTTL[table]; ok {
		return ttl
	}
	return c.defaultTTL
}

func (c *ResultCache) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, e := range c.entries {
		if first || e.createdAt.Before(oldestTime) {
			oldestKey, oldestTime = k, e.createdAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// Clear drops every cached entry.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// ClearTable drops every cached entry belonging to table.
func (c *ResultCache) ClearTable(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.table == table {
			delete(c.entries, k)
		}
	}
}

// SetDefaultTTL updates the TTL applied to tables without an override.
func (c *ResultCache) SetDefaultTTL(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultTTL = d
}

// SetTableTTL overrides the TTL for one table.
func (c *ResultCache) SetTableTTL(table string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perTableTTL[table] = d
}

// SetEnabled toggles caching. Disabling atomically clears all entries
// (spec §4.5); Get/Set are no-ops while disabled.
func (c *ResultCache) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
	if !enabled {
		c.entries = make(map[string]*entry)
	}
}

func (c *ResultCache) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Cleanup evicts every already-expired entry eagerly, independent of reads.
func (c *ResultCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Stats is the CacheStats shape of spec §4.5. ApproxBytes and OldestAge feed
// the CLI's humanize.Bytes/humanize.Time presentation of "CACHE SHOW".
type Stats struct {
	Hits        int64
	Misses      int64
	HitRate     float64
	Size        int
	MaxSize     int
	ApproxBytes int64
	OldestAge   time.Duration
	PerTable    []TableStats
}

type TableStats struct {
	Table       string
	Entries     int
	Hits        int
	Misses      int
	ApproxBytes int64
	OldestAge   time.Duration
	TTL         time.Duration
}

func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}

	byTable := map[string]*TableStats{}
	now := time.Now()
	var totalBytes int64
	var oldestOverall time.Duration
	for _, e := range c.entries {
		ts, ok := byTable[e.table]
		if !ok {
			ts = &TableStats{Table: e.table, TTL: c.ttlForLocked(e.table)}
			byTable[e.table] = ts
		}
		ts.Entries++
		ts.Hits += e.hits
		ts.ApproxBytes += int64(e.sizeBytes)
		totalBytes += int64(e.sizeBytes)
		age := now.Sub(e.createdAt)
		if age > ts.OldestAge {
			ts.OldestAge = age
		}
		if age > oldestOverall {
			oldestOverall = age
		}
	}
	for table, misses := range c.tableMisses {
		ts, ok := byTable[table]
		if !ok {
			ts = &TableStats{Table: table, TTL: c.ttlForLocked(table)}
			byTable[table] = ts
		}
		ts.Misses = misses
	}
	tables := make([]TableStats, 0, len(byTable))
	for _, ts := range byTable {
		tables = append(tables, *ts)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Table < tables[j].Table })

	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		HitRate:     rate,
		Size:        len(c.entries),
		MaxSize:     c.maxSize,
		ApproxBytes: totalBytes,
		OldestAge:   oldestOverall,
		PerTable:    tables,
	}
}
