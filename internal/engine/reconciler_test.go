package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinlock/tally/internal/match"
	"github.com/calvinlock/tally/internal/model"
	"github.com/calvinlock/tally/internal/storage"
)

func setupReconciler(t *testing.T) *Reconciler {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	r, err := NewReconciler(store)
	require.NoError(t, err)
	return r
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var orderFixtures = []model.Order{
	{
		OrderID:    "114-0000001-0000001",
		Date:       day(2024, 12, 10),
		TotalCents: 4299,
		Items:      []model.OrderItem{{Name: "USB-C Cable", Quantity: 1}},
	},
	{
		OrderID:    "114-0000002-0000002",
		Date:       day(2024, 12, 12),
		TotalCents: 15000,
	},
}

var transactionFixtures = []model.Transaction{
	{ID: "t-coffee", Date: day(2024, 12, 10), PayeeName: "Blue Bottle Coffee", Amount: -42990},
	{ID: "t-amazon", Date: day(2024, 12, 11), PayeeName: "AMAZON.COM*RT4Y7HG2", Amount: -42990},
}

func TestSyncOrdersMatchesAndLinks(t *testing.T) {
	r := setupReconciler(t)
	ctx := context.Background()

	result, err := r.SyncOrders(ctx, orderFixtures, transactionFixtures, false)
	require.NoError(t, err)

	assert.Equal(t, 2, result.NewRecords)
	// The coffee transaction never enters the candidate pool.
	assert.Equal(t, 1, result.Candidates)

	require.Len(t, result.Pairs, 1)
	pair := result.Pairs[0]
	assert.Equal(t, "114-0000001-0000001", pair.Record.ID)
	assert.Equal(t, "t-amazon", pair.Transaction.ID)
	assert.Equal(t, match.TierExact, pair.Tier)

	require.Len(t, result.UnmatchedRecords, 1)
	assert.Equal(t, "114-0000002-0000002", result.UnmatchedRecords[0].ID)
	assert.Equal(t, 1, result.Linked)

	assert.Equal(t, "USB-C Cable", r.PurchaseContext(ctx, "t-amazon"))
}

func TestSyncOrdersDryRun(t *testing.T) {
	r := setupReconciler(t)
	ctx := context.Background()

	result, err := r.SyncOrders(ctx, orderFixtures, transactionFixtures, true)
	require.NoError(t, err)

	require.Len(t, result.Pairs, 1)
	assert.Equal(t, 0, result.Linked)
	assert.Empty(t, r.PurchaseContext(ctx, "t-amazon"))
}

func TestSyncOrdersRerunIsIdempotent(t *testing.T) {
	r := setupReconciler(t)
	ctx := context.Background()

	first, err := r.SyncOrders(ctx, orderFixtures, transactionFixtures, false)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Linked)

	// Same fetch again: nothing new saved, the existing link survives, and the
	// already-linked pair is not counted again.
	second, err := r.SyncOrders(ctx, orderFixtures, transactionFixtures, false)
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewRecords)
	assert.Equal(t, 0, second.Linked)
	assert.Equal(t, "USB-C Cable", r.PurchaseContext(ctx, "t-amazon"))
}

func TestSyncReceiptsCloseMatch(t *testing.T) {
	r := setupReconciler(t)
	ctx := context.Background()

	receipts := []model.Receipt{
		{
			MessageID:   "msg-1",
			Date:        day(2025, 4, 2),
			AmountCents: 299,
			ItemName:    "iCloud Storage",
			ItemType:    model.ReceiptTypeICloud,
		},
	}
	txns := []model.Transaction{
		// 0.3% off the expected -2990, inside the 1% digital tolerance.
		{ID: "t-apple", Date: day(2025, 4, 3), PayeeName: "APPLE.COM/BILL", Amount: -2999},
	}

	result, err := r.SyncReceipts(ctx, receipts, txns, false)
	require.NoError(t, err)

	require.Len(t, result.Pairs, 1)
	assert.Equal(t, match.TierClose, result.Pairs[0].Tier)
	assert.Equal(t, 1, result.Linked)
	assert.Equal(t, "iCloud Storage", r.PurchaseContext(ctx, "t-apple"))
}

func TestPurchaseContextUnknownTransaction(t *testing.T) {
	r := setupReconciler(t)
	assert.Empty(t, r.PurchaseContext(context.Background(), "t-nope"))
}

func TestNewReconcilerRequiresStorage(t *testing.T) {
	_, err := NewReconciler(nil)
	assert.Error(t, err)
}
