// Package engine orchestrates sync runs: persist freshly fetched purchase
// records, match them against budget transactions, and store the resulting
// links.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/calvinlock/tally/internal/common"
	"github.com/calvinlock/tally/internal/match"
	"github.com/calvinlock/tally/internal/model"
	"github.com/calvinlock/tally/internal/service"
)

// Payee keywords that pick each source's candidate transactions.
var (
	orderKeywords   = []string{"amazon", "amzn"}
	receiptKeywords = []string{"apple", "itunes"}
)

// Reconciler links purchase records to budget transactions.
type Reconciler struct {
	storage service.Storage
}

// NewReconciler creates a reconciler over the given storage.
func NewReconciler(storage service.Storage) (*Reconciler, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	return &Reconciler{storage: storage}, nil
}

// SyncResult summarizes one sync run.
type SyncResult struct {
	// NewRecords is how many fetched records were not already stored.
	NewRecords int
	// Pairs are the matches found this run.
	Pairs []match.Pair
	// UnmatchedRecords are records with no matching transaction.
	UnmatchedRecords []match.Record
	// Linked is how many match links were persisted. Zero on dry runs and for
	// pairs whose record already carried a link.
	Linked int
	// Candidates is how many transactions survived the payee filter.
	Candidates int
}

// SyncOrders stores fetched orders, matches them against transactions whose
// payee looks like the retailer, and persists the links. With dryRun set the
// matching still runs but nothing is linked.
func (r *Reconciler) SyncOrders(ctx context.Context, orders []model.Order, txns []model.Transaction, dryRun bool) (*SyncResult, error) {
	saved, err := r.storage.SaveOrders(ctx, orders)
	if err != nil {
		return nil, fmt.Errorf("failed to save orders: %w", err)
	}

	candidates := filterByPayee(txns, orderKeywords)

	records := make([]match.Record, 0, len(orders))
	for _, o := range orders {
		records = append(records, match.Record{ID: o.OrderID, Date: o.Date, AmountCents: o.TotalCents})
	}

	matched, err := match.Records(records, candidates, match.RetailConfig())
	if err != nil {
		return nil, err
	}

	result := &SyncResult{
		NewRecords:       saved,
		Pairs:            matched.Pairs,
		UnmatchedRecords: matched.UnmatchedRecords,
		Candidates:       len(candidates),
	}
	if dryRun {
		return result, nil
	}

	for _, pair := range matched.Pairs {
		if err := r.storage.SetOrderMatch(ctx, pair.Record.ID, pair.Transaction.ID); err != nil {
			// Usually a link persisted by an earlier run.
			common.LogInfo("Skipping order link", common.Fields{
				"order_id": pair.Record.ID, "transaction_id": pair.Transaction.ID, "reason": err.Error(),
			})
			continue
		}
		result.Linked++
	}
	return result, nil
}

// SyncReceipts is the receipt counterpart of SyncOrders, with the tighter
// digital tolerance.
func (r *Reconciler) SyncReceipts(ctx context.Context, receipts []model.Receipt, txns []model.Transaction, dryRun bool) (*SyncResult, error) {
	saved, err := r.storage.SaveReceipts(ctx, receipts)
	if err != nil {
		return nil, fmt.Errorf("failed to save receipts: %w", err)
	}

	candidates := filterByPayee(txns, receiptKeywords)

	records := make([]match.Record, 0, len(receipts))
	for _, rec := range receipts {
		records = append(records, match.Record{ID: rec.MessageID, Date: rec.Date, AmountCents: rec.AmountCents})
	}

	matched, err := match.Records(records, candidates, match.DigitalConfig())
	if err != nil {
		return nil, err
	}

	result := &SyncResult{
		NewRecords:       saved,
		Pairs:            matched.Pairs,
		UnmatchedRecords: matched.UnmatchedRecords,
		Candidates:       len(candidates),
	}
	if dryRun {
		return result, nil
	}

	for _, pair := range matched.Pairs {
		if err := r.storage.SetReceiptMatch(ctx, pair.Record.ID, pair.Transaction.ID); err != nil {
			common.LogInfo("Skipping receipt link", common.Fields{
				"message_id": pair.Record.ID, "transaction_id": pair.Transaction.ID, "reason": err.Error(),
			})
			continue
		}
		result.Linked++
	}
	return result, nil
}

// PurchaseContext returns a human-readable description of what a transaction
// paid for, built from a previously linked order or receipt. Empty when
// nothing is linked.
func (r *Reconciler) PurchaseContext(ctx context.Context, transactionID string) string {
	if order, err := r.storage.GetOrderByMatchedTransaction(ctx, transactionID); err == nil {
		if len(order.Items) == 0 {
			return fmt.Sprintf("Order %s", order.OrderID)
		}
		names := make([]string, 0, len(order.Items))
		for _, item := range order.Items {
			names = append(names, item.Name)
		}
		if len(names) > 3 {
			return fmt.Sprintf("%s, and %d more", strings.Join(names[:3], ", "), len(names)-3)
		}
		return strings.Join(names, ", ")
	}

	if receipt, err := r.storage.GetReceiptByMatchedTransaction(ctx, transactionID); err == nil {
		return receipt.ItemName
	}
	return ""
}

func filterByPayee(txns []model.Transaction, keywords []string) []model.Transaction {
	var out []model.Transaction
	for _, t := range txns {
		if t.PayeeContains(keywords...) {
			out = append(out, t)
		}
	}
	return out
}
