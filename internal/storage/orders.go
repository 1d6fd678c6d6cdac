package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/calvinlock/tally/internal/common"
	"github.com/calvinlock/tally/internal/model"
)

// SaveOrders inserts scraped orders, deduplicating by order id. Returns the
// number of rows that were actually new. Orders are immutable once stored;
// re-scraping an existing order is a no-op.
func (s *SQLiteStorage) SaveOrders(ctx context.Context, orders []model.Order) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for _, order := range orders {
		if err := validateString(order.OrderID, "orderID"); err != nil {
			return inserted, err
		}

		items, err := json.Marshal(order.Items)
		if err != nil {
			return inserted, fmt.Errorf("failed to encode items for order %s: %w", order.OrderID, err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO amazon_orders (order_id, order_date, total_cents, items)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(order_id) DO NOTHING
		`, order.OrderID, order.Date, order.TotalCents, string(items))
		if err != nil {
			return inserted, fmt.Errorf("failed to save order %s: %w", order.OrderID, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("failed to commit orders: %w", err)
	}
	return inserted, nil
}

// GetOrderByMatchedTransaction returns the order previously matched to the
// given budget transaction, or common.ErrNotFound.
func (s *SQLiteStorage) GetOrderByMatchedTransaction(ctx context.Context, transactionID string) (*model.Order, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT order_id, order_date, total_cents, items, matched_transaction_id
		FROM amazon_orders
		WHERE matched_transaction_id = ?
		LIMIT 1
	`, transactionID)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get matched order: %w", err)
	}
	return order, nil
}

// SetOrderMatch records the accepted pairing. The matched transaction id is
// set exactly once; a second call for an already-matched order is rejected.
func (s *SQLiteStorage) SetOrderMatch(ctx context.Context, orderID, transactionID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(orderID, "orderID"); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE amazon_orders
		SET matched_transaction_id = ?
		WHERE order_id = ? AND matched_transaction_id IS NULL
	`, transactionID, orderID)
	if err != nil {
		return fmt.Errorf("failed to set order match: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("order %s: %w or already matched", orderID, common.ErrNotFound)
	}
	return nil
}

// GetUnmatchedOrders returns stored orders without a matched transaction.
func (s *SQLiteStorage) GetUnmatchedOrders(ctx context.Context) ([]model.Order, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, order_date, total_cents, items, matched_transaction_id
		FROM amazon_orders
		WHERE matched_transaction_id IS NULL
		ORDER BY order_date DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unmatched orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		order   model.Order
		items   sql.NullString
		matched sql.NullString
	)
	if err := row.Scan(&order.OrderID, &order.Date, &order.TotalCents, &items, &matched); err != nil {
		return nil, err
	}
	if items.Valid && items.String != "" {
		if err := json.Unmarshal([]byte(items.String), &order.Items); err != nil {
			return nil, fmt.Errorf("failed to decode items for order %s: %w", order.OrderID, err)
		}
	}
	order.MatchedTransactionID = matched.String
	return &order, nil
}
