package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cyw0ng95/infraql/internal/model"
)

func newInitialised(t *testing.T) *Source {
	t.Helper()
	s := New()
	require.NoError(t, s.Initialise(context.Background(), nil))
	t.Cleanup(func() { _ = s.Cleanup(context.Background()) })
	return s
}

func TestSource_TablesListsAllThree(t *testing.T) {
	s := newInitialised(t)
	tables, err := s.Tables(context.Background())
	require.NoError(t, err)
	names := make([]string, len(tables))
	for i, tb := range tables {
		names[i] = tb.Name
	}
	require.ElementsMatch(t, []string{"services", "deployments", "incidents"}, names)
}

func TestSource_QueryServicesHasThreeRows(t *testing.T) {
	s := newInitialised(t)
	res, err := s.Query(context.Background(), "services", nil, model.QueryOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, res.RowCount)
}

func TestSource_QueryUnknownTable(t *testing.T) {
	s := newInitialised(t)
	_, err := s.Query(context.Background(), "nope", nil, model.QueryOptions{})
	require.Error(t, err)
}

func TestSource_QueryReturnsIndependentCopies(t *testing.T) {
	s := newInitialised(t)
	res, err := s.Query(context.Background(), "services", nil, model.QueryOptions{})
	require.NoError(t, err)
	res.Rows[0]["name"] = "mutated"

	res2, err := s.Query(context.Background(), "services", nil, model.QueryOptions{})
	require.NoError(t, err)
	require.NotEqual(t, "mutated", res2.Rows[0]["name"])
}

func TestSource_TraceFindsHopsAcrossTables(t *testing.T) {
	s := newInitialised(t)
	hops, err := s.Trace(context.Background(), "service_id", "svc-1")
	require.NoError(t, err)

	tables := map[string]bool{}
	for _, h := range hops {
		tables[h.Table] = true
	}
	require.True(t, tables["services"], "expected a services hop via the service_id->id key alias")
	require.True(t, tables["deployments"])
	require.True(t, tables["incidents"])
}

func TestSource_HealthCheck(t *testing.T) {
	s := newInitialised(t)
	res, err := s.HealthCheck(context.Background())
	require.NoError(t, err)
	require.True(t, res.Healthy)
}

func TestSource_EstimatedRows(t *testing.T) {
	s := newInitialised(t)
	n, ok := s.EstimatedRows(context.Background(), "services")
	require.True(t, ok)
	require.Equal(t, int64(3), n)

	_, ok = s.EstimatedRows(context.Background(), "nope")
	require.False(t, ok)
}
