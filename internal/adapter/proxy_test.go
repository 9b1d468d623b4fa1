package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProxyReturnsPositionalTuples(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, _ := openTestAdapter(t, "proxy")
	seedBackupFixture(t, a)

	conn := a.GetConnection()
	res, err := conn.Query(ctx, `SELECT id, name, email FROM contacts ORDER BY id`, nil, QueryModeAll)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	require.Equal(t, int64(1), res.Rows[0][0])
	require.Equal(t, "ada", res.Rows[0][1])
	require.Equal(t, "ada@example.com", res.Rows[0][2])
	require.Nil(t, res.Rows[1][2])
}

func TestProxyNonAllModeReturnsMetadataOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, _ := openTestAdapter(t, "proxyrun")

	conn := a.GetConnection()
	_, err := conn.Query(ctx, `CREATE TABLE t(v TEXT)`, nil, "run")
	require.NoError(t, err)

	res, err := conn.Query(ctx, `INSERT INTO t(v) VALUES (?)`, []any{"x"}, "run")
	require.NoError(t, err)
	require.Empty(t, res.Rows)
	require.Equal(t, int64(1), res.Changes)
}

func TestProxySurfacesExecutorErrors(t *testing.T) {
	t.Parallel()

	a := New(newTestSession(t))
	_, err := a.GetConnection().Query(context.Background(), `SELECT 1`, nil, QueryModeAll)
	require.ErrorIs(t, err, ErrNotInitialized)
}
