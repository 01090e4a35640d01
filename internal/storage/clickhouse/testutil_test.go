package clickhouse

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB creates a ClickHouse container and returns a connection.
// Returns a cleanup function that must be called when done.
func setupTestDB(t *testing.T) (*Conn, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "clickhouse/clickhouse-server:24.1-alpine",
		ExposedPorts: []string{"9000/tcp", "8123/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Application: Ready for connections").
				WithStartupTimeout(60 * time.Second),
			wait.ForListeningPort("9000/tcp"),
		),
		Env: map[string]string{
			"CLICKHOUSE_DB":       "test",
			"CLICKHOUSE_USER":     "default",
			"CLICKHOUSE_PASSWORD": "",
		},
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://%s:%s/test", host, port.Port())

	conn, err := NewConn(ctx, dsn)
	require.NoError(t, err)

	// Apply the schema inline. The migrations package imports this one, so
	// test files here cannot reach the embedded FS without a cycle.
	runTestMigrations(t, conn)

	cleanup := func() {
		conn.Close()
		_ = container.Terminate(ctx)
	}

	return conn, cleanup
}

// runTestMigrations applies the pool_stats schema, mirroring
// migrations/clickhouse/001_pool_stats.sql.
func runTestMigrations(t *testing.T, conn *Conn) {
	t.Helper()
	ctx := context.Background()

	err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pool_stats (
			epoch UInt64,
			address String,
			manager String,
			management_fee Float64,
			provider LowCardinality(String),
			is_valid Bool,
			mint String,
			lst_price Float64,
			lst_supply UInt64,
			staked_validator_count UInt64,
			undelegated_lamports UInt64,
			total_lamports_locked UInt64,
			active_lamports UInt64,
			activating_lamports UInt64,
			deactivating_lamports UInt64,
			inflation_rewards UInt64,
			jito_rewards UInt64,
			apr_baseline Float64,
			apy_baseline Float64,
			apr_effective Float64,
			apy_effective Float64,
			liquidity_delta Int64
		) ENGINE = MergeTree()
		ORDER BY (address, epoch)
	`)
	require.NoError(t, err)
}
