package clickhouse_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"nft-tracker/internal/domain"
	"nft-tracker/internal/storage/clickhouse"
	"nft-tracker/internal/storage/migrations"
)

// setupTestDB starts a ClickHouse container, applies the embedded
// migrations and returns a connection with its cleanup.
func setupTestDB(t *testing.T) (*clickhouse.Conn, func()) {
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
				WithStartupTimeout(60*time.Second),
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

	conn, err := clickhouse.NewConn(ctx, fmt.Sprintf("clickhouse://%s:%s/test", host, port.Port()))
	require.NoError(t, err)

	require.NoError(t, migrations.RunClickhouseMigrations(ctx, conn))

	cleanup := func() {
		conn.Close()
		_ = container.Terminate(ctx)
	}
	return conn, cleanup
}

func testTransaction(id string, contract string) domain.Transaction {
	return domain.Transaction{
		InternalID:           id,
		ExternalID:           "tx-" + id,
		AssetID:              "asset-" + id,
		ContractID:           contract,
		Buyer:                "0xbuyer",
		Seller:               "0xseller",
		Timestamp:            1700000000000,
		PriceEth:             1.25,
		NetworkFeeEth:        0.01,
		MarketplaceFeeEth:    0.028125,
		RoyaltyEth:           0.034375,
		IsPrimaryMarketplace: true,
	}
}

func TestTransactionSink_InsertBulk(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	sink := clickhouse.NewTransactionSink(conn)

	txs := []domain.Transaction{
		testTransaction("100", "0xcoll"),
		testTransaction("99", "0xcoll"),
		testTransaction("98", "0xother"),
	}
	require.NoError(t, sink.InsertBulk(ctx, txs))

	count, err := sink.CountByContract(ctx, "0xcoll")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	count, err = sink.CountByContract(ctx, "0xother")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestTransactionSink_InsertBulkEmpty(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	sink := clickhouse.NewTransactionSink(conn)
	require.NoError(t, sink.InsertBulk(context.Background(), nil))
}

func TestTransactionSink_ReinsertCollapses(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	sink := clickhouse.NewTransactionSink(conn)

	tx := testTransaction("55", "0xcoll")
	require.NoError(t, sink.InsertBulk(ctx, []domain.Transaction{tx}))
	require.NoError(t, sink.InsertBulk(ctx, []domain.Transaction{tx}))

	// The ReplacingMergeTree engine collapses duplicates on merge.
	var count uint64
	err := conn.QueryRow(ctx,
		`SELECT count() FROM (SELECT internal_id FROM transactions FINAL WHERE internal_id = '55')`,
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}
