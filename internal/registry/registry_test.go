package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cyw0ng95/infraql/internal/model"
)

// stubSource is a minimal plugin.Source whose Tables() call can be made to
// fail on demand, for exercising the registry's per-plugin fault isolation.
type stubSource struct {
	tables    []model.TableInfo
	tablesErr error
}

func (s *stubSource) Initialise(ctx context.Context, config map[string]interface{}) error {
	return nil
}

func (s *stubSource) Tables(ctx context.Context) ([]model.TableInfo, error) {
	if s.tablesErr != nil {
		return nil, s.tablesErr
	}
	return s.tables, nil
}

func (s *stubSource) Query(ctx context.Context, table string, filters []model.Filter, options model.QueryOptions) (model.QueryResult, error) {
	return model.QueryResult{}, nil
}

func TestTablesAll_TolerantOfOnePluginFailing(t *testing.T) {
	r := New(0)
	ctx := context.Background()

	healthy := &stubSource{tables: []model.TableInfo{{Name: "services"}, {Name: "deployments"}}}
	broken := &stubSource{tablesErr: errors.New("boom")}

	require.NoError(t, r.Register(ctx, "good", healthy, nil))
	require.NoError(t, r.Register(ctx, "bad", broken, nil))

	tables := r.TablesAll(ctx)

	names := make([]string, len(tables))
	for i, tb := range tables {
		names[i] = tb.Name
	}
	require.ElementsMatch(t, []string{"services", "deployments"}, names)

	for _, tb := range tables {
		require.Equal(t, "good", tb.Source)
	}
}

func TestTablesAll_AllHealthyReturnsEverySource(t *testing.T) {
	r := New(0)
	ctx := context.Background()

	a := &stubSource{tables: []model.TableInfo{{Name: "a1"}}}
	b := &stubSource{tables: []model.TableInfo{{Name: "b1"}}}

	require.NoError(t, r.Register(ctx, "a", a, nil))
	require.NoError(t, r.Register(ctx, "b", b, nil))

	tables := r.TablesAll(ctx)
	require.Len(t, tables, 2)
}

func TestTablesAll_EmptyRegistryReturnsNoTables(t *testing.T) {
	r := New(0)
	require.Empty(t, r.TablesAll(context.Background()))
}

func TestRegister_DuplicateNameFails(t *testing.T) {
	r := New(0)
	ctx := context.Background()
	src := &stubSource{}
	require.NoError(t, r.Register(ctx, "mock", src, nil))
	require.Error(t, r.Register(ctx, "mock", src, nil))
}

func TestGet_UnknownNameNotFound(t *testing.T) {
	r := New(0)
	_, ok := r.Get("nope")
	require.False(t, ok)
}

// flakySource fails its first failCount Query calls with err, then succeeds,
// for exercising withRetry's retry-then-succeed path.
type flakySource struct {
	stubSource
	mu        sync.Mutex
	failCount int
	err       error
	calls     int
}

func (s *flakySource) Query(ctx context.Context, table string, filters []model.Filter, options model.QueryOptions) (model.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failCount {
		return model.QueryResult{}, s.err
	}
	return model.QueryResult{RowCount: 1}, nil
}

func TestRegistryQuery_RetriesTransientFailureThenSucceeds(t *testing.T) {
	r := New(0)
	ctx := context.Background()
	src := &flakySource{failCount: 1, err: errors.New("connection reset by peer")}
	require.NoError(t, r.Register(ctx, "flaky", src, nil))

	result, err := r.Query(ctx, "flaky", "services", nil, model.QueryOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, result.RowCount)
	require.Equal(t, 2, src.calls)
}

func TestRegistryQuery_NonTransientFailureIsNotRetried(t *testing.T) {
	r := New(0)
	ctx := context.Background()
	src := &flakySource{failCount: 100, err: errors.New("malformed query")}
	require.NoError(t, r.Register(ctx, "broken", src, nil))

	_, err := r.Query(ctx, "broken", "services", nil, model.QueryOptions{})
	require.Error(t, err)
	require.Equal(t, 1, src.calls)
}

func TestRegistryQuery_ExhaustsRetriesAndReturnsLastError(t *testing.T) {
	r := New(0)
	ctx := context.Background()
	src := &flakySource{failCount: 100, err: errors.New("service unavailable")}
	require.NoError(t, r.Register(ctx, "alwaysdown", src, nil))

	_, err := r.Query(ctx, "alwaysdown", "services", nil, model.QueryOptions{})
	require.Error(t, err)
	require.Equal(t, retryMaxAttempts, src.calls)
}
