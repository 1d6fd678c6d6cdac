package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/calvinlock/tally/internal/common"
	"github.com/calvinlock/tally/internal/model"
)

// SaveReceipts inserts parsed receipts, deduplicating by Gmail message id.
// Returns the number of rows that were actually new.
func (s *SQLiteStorage) SaveReceipts(ctx context.Context, receipts []model.Receipt) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for _, r := range receipts {
		if err := validateString(r.MessageID, "messageID"); err != nil {
			return inserted, err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO apple_receipts (gmail_message_id, receipt_date, amount_cents, item_name, item_type, raw_subject)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(gmail_message_id) DO NOTHING
		`, r.MessageID, r.Date, r.AmountCents, r.ItemName, string(r.ItemType), r.RawSubject)
		if err != nil {
			return inserted, fmt.Errorf("failed to save receipt %s: %w", r.MessageID, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("failed to commit receipts: %w", err)
	}
	return inserted, nil
}

// GetReceiptByMatchedTransaction returns the receipt previously matched to
// the given budget transaction, or common.ErrNotFound.
func (s *SQLiteStorage) GetReceiptByMatchedTransaction(ctx context.Context, transactionID string) (*model.Receipt, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT gmail_message_id, receipt_date, amount_cents, item_name, item_type, raw_subject, matched_transaction_id
		FROM apple_receipts
		WHERE matched_transaction_id = ?
		LIMIT 1
	`, transactionID)

	receipt, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get matched receipt: %w", err)
	}
	return receipt, nil
}

// SetReceiptMatch records the accepted pairing; set exactly once.
func (s *SQLiteStorage) SetReceiptMatch(ctx context.Context, messageID, transactionID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(messageID, "messageID"); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE apple_receipts
		SET matched_transaction_id = ?
		WHERE gmail_message_id = ? AND matched_transaction_id IS NULL
	`, transactionID, messageID)
	if err != nil {
		return fmt.Errorf("failed to set receipt match: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("receipt %s: %w or already matched", messageID, common.ErrNotFound)
	}
	return nil
}

func scanReceipt(row rowScanner) (*model.Receipt, error) {
	var (
		r        model.Receipt
		itemType string
		subject  sql.NullString
		matched  sql.NullString
	)
	if err := row.Scan(&r.MessageID, &r.Date, &r.AmountCents, &r.ItemName, &itemType, &subject, &matched); err != nil {
		return nil, err
	}
	r.ItemType = model.ReceiptType(itemType)
	r.RawSubject = subject.String
	r.MatchedTransactionID = matched.String
	return &r, nil
}
