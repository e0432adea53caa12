package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cyw0ng95/infraql/internal/config"
	"github.com/cyw0ng95/infraql/internal/model"
	"github.com/cyw0ng95/infraql/plugins/mock"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(config.Default())
	require.NoError(t, e.Register(context.Background(), "mock", mock.New(), nil))
	return e
}

func TestEngine_QuerySelect(t *testing.T) {
	e := newTestEngine(t)
	res, err := e.Query(context.Background(), "SELECT * FROM services")
	require.NoError(t, err)
	qr, ok := res.(model.QueryResult)
	require.True(t, ok)
	require.Equal(t, 3, qr.RowCount)
}

func TestEngine_QueryParseError(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Query(context.Background(), "SELECT FROM")
	require.Error(t, err)
}

func TestEngine_IsolatedAcrossInstances(t *testing.T) {
	e1 := newTestEngine(t)
	e2 := New(config.Default())

	_, err := e1.Query(context.Background(), "SELECT * FROM services")
	require.NoError(t, err)

	_, err = e2.Query(context.Background(), "SELECT * FROM services")
	require.Error(t, err) // no source registered on e2
}
