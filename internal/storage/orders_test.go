package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinlock/tally/internal/common"
	"github.com/calvinlock/tally/internal/model"
)

func TestSaveOrdersDeduplicates(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	orders := []model.Order{
		{
			OrderID:    "111-222",
			Date:       time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			TotalCents: 2999,
			Items:      []model.OrderItem{{Name: "Widget", PriceCents: 2999, Quantity: 1}},
		},
	}

	n, err := s.SaveOrders(ctx, orders)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Same scrape again: nothing new.
	n, err = s.SaveOrders(ctx, orders)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	unmatched, err := s.GetUnmatchedOrders(ctx)
	require.NoError(t, err)
	require.Len(t, unmatched, 1)
	require.Len(t, unmatched[0].Items, 1)
	assert.Equal(t, "Widget", unmatched[0].Items[0].Name)
}

func TestSetOrderMatchIsSetOnce(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	_, err := s.SaveOrders(ctx, []model.Order{
		{OrderID: "111-222", Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), TotalCents: 2999},
	})
	require.NoError(t, err)

	require.NoError(t, s.SetOrderMatch(ctx, "111-222", "txn-1"))

	order, err := s.GetOrderByMatchedTransaction(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, "111-222", order.OrderID)

	// Second assignment is rejected.
	assert.Error(t, s.SetOrderMatch(ctx, "111-222", "txn-2"))

	unmatched, err := s.GetUnmatchedOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, unmatched)
}

func TestGetOrderByMatchedTransactionNotFound(t *testing.T) {
	s := setupStorage(t)

	_, err := s.GetOrderByMatchedTransaction(context.Background(), "txn-missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSaveAndMatchReceipts(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	receipts := []model.Receipt{
		{
			MessageID:   "msg-1",
			Date:        time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC),
			AmountCents: 999,
			ItemName:    "iCloud Storage",
			ItemType:    model.ReceiptTypeICloud,
			RawSubject:  "Your receipt from Apple",
		},
	}

	n, err := s.SaveReceipts(ctx, receipts)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.SaveReceipts(ctx, receipts)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, s.SetReceiptMatch(ctx, "msg-1", "txn-9"))

	r, err := s.GetReceiptByMatchedTransaction(ctx, "txn-9")
	require.NoError(t, err)
	assert.Equal(t, "iCloud Storage", r.ItemName)
	assert.Equal(t, model.ReceiptTypeICloud, r.ItemType)

	assert.Error(t, s.SetReceiptMatch(ctx, "msg-1", "txn-10"))
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := setupStorage(t)
	require.NoError(t, s.Migrate(context.Background()))
}
