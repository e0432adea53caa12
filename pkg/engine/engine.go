// Package engine is the public facade wiring the registry, cache and
// executor into a single entry point (spec §9's documented convenience
// accessor over an otherwise explicitly-passed dependency set).
package engine

import (
	"context"
	"sync"

	"github.com/cyw0ng95/infraql/internal/cache"
	"github.com/cyw0ng95/infraql/internal/config"
	"github.com/cyw0ng95/infraql/internal/executor"
	"github.com/cyw0ng95/infraql/internal/lang"
	"github.com/cyw0ng95/infraql/internal/plugin"
	"github.com/cyw0ng95/infraql/internal/registry"
)

// Engine is the whole query pipeline: parse, then execute against a
// registry and cache owned by this instance.
type Engine struct {
	Registry *registry.Registry
	Cache    *cache.ResultCache
	executor *executor.Executor
}

// New builds an Engine from a decoded configuration. Tests should build
// their own Engine rather than reach for Default(), so each test gets an
// isolated cache and registry (spec §9).
func New(cfg config.Config) *Engine {
	reg := registry.New(64)
	resultCache := cache.New(cfg.CacheConfigFor())
	return &Engine{
		Registry: reg,
		Cache:    resultCache,
		executor: executor.New(reg, resultCache, cfg.Executor.DefaultMaxResults),
	}
}

// Register adds a data source under name, per the plugin lifecycle of
// spec §4.4.
func (e *Engine) Register(ctx context.Context, name string, src plugin.Source, srcConfig map[string]interface{}) error {
	return e.Registry.Register(ctx, name, src, srcConfig)
}

// Query parses and executes a single statement, splitting on ';' boundaries
// is the caller's responsibility (spec §6).
func (e *Engine) Query(ctx context.Context, sql string) (interface{}, error) {
	stmt, err := lang.Parse(sql)
	if err != nil {
		return nil, err
	}
	return e.executor.Execute(ctx, stmt)
}

var (
	defaultEngine     *Engine
	defaultEngineOnce sync.Once
)

// Default returns a process-global Engine built from config.Default(),
// lazily initialised on first use. Production wiring may use this for
// convenience; tests should always call New directly so cache state never
// leaks between them (spec §9 "global cache instance").
func Default() *Engine {
	defaultEngineOnce.Do(func() {
		defaultEngine = New(config.Default())
	})
	return defaultEngine
}
