package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pattern-trader/internal/domain"
	"pattern-trader/internal/storage"
	"pattern-trader/internal/storage/postgres"
)

func createTestTrade(orderID string, pnl float64, closedAt int64) *domain.TradeRecord {
	return &domain.TradeRecord{
		OrderID:    orderID,
		Symbol:     "BTCUSDT",
		Side:       domain.SideLong,
		EntryPrice: 102.5,
		ExitPrice:  117.69,
		Size:       100,
		PnL:        pnl,
		Commission: 0.1,
		Reason:     domain.CloseReasonAutoClose,
		OpenedAt:   closedAt - 60000,
		ClosedAt:   closedAt,
	}
}

func TestTradeStore_InsertAndGetBySymbol(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewTradeStore(pool)

	trade := createTestTrade("order_1", 1519.0, 1700000000000)
	require.NoError(t, store.Insert(ctx, trade))

	trades, err := store.GetBySymbol(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, trades, 1)

	retrieved := trades[0]
	assert.Equal(t, trade.OrderID, retrieved.OrderID)
	assert.Equal(t, trade.Side, retrieved.Side)
	assert.InDelta(t, trade.EntryPrice, retrieved.EntryPrice, 0.0001)
	assert.InDelta(t, trade.ExitPrice, retrieved.ExitPrice, 0.0001)
	assert.InDelta(t, trade.PnL, retrieved.PnL, 0.0001)
	assert.InDelta(t, trade.Commission, retrieved.Commission, 0.0001)
	assert.Equal(t, trade.Reason, retrieved.Reason)
	assert.Equal(t, trade.OpenedAt, retrieved.OpenedAt)
	assert.Equal(t, trade.ClosedAt, retrieved.ClosedAt)
}

func TestTradeStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewTradeStore(pool)

	trade := createTestTrade("order_dup", 10, 1000)
	require.NoError(t, store.Insert(ctx, trade))

	err := store.Insert(ctx, trade)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestTradeStore_GetByTimeRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewTradeStore(pool)

	for i := int64(1); i <= 4; i++ {
		trade := createTestTrade("order_"+string(rune('0'+i)), 10, i*1000)
		require.NoError(t, store.Insert(ctx, trade))
	}

	// Bounds are inclusive on both ends.
	trades, err := store.GetByTimeRange(ctx, "BTCUSDT", 2000, 3000)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(2000), trades[0].ClosedAt)
	assert.Equal(t, int64(3000), trades[1].ClosedAt)
}

func TestTradeStore_TotalPnL(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewTradeStore(pool)

	require.NoError(t, store.Insert(ctx, createTestTrade("order_1", 100, 1000)))
	require.NoError(t, store.Insert(ctx, createTestTrade("order_2", -40, 2000)))
	require.NoError(t, store.Insert(ctx, createTestTrade("order_3", 25.5, 3000)))

	total, err := store.TotalPnL(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 85.5, total, 0.0001)
}

func TestTradeStore_TotalPnLNoTrades(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewTradeStore(pool)

	total, err := store.TotalPnL(context.Background(), "NOSUCH")
	require.NoError(t, err)
	assert.Zero(t, total)
}
