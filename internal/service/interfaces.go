// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/calvinlock/tally/internal/model"
)

// PatternStore is the persistence collaborator behind the suggestion learner.
// It only needs point lookup, substring search, and upsert-with-increment
// semantics; any storage technology that provides those is conformant.
type PatternStore interface {
	// GetPattern returns the pattern stored under the exact normalized name,
	// or common.ErrNotFound.
	GetPattern(ctx context.Context, payeeName string) (*model.PayeePattern, error)
	// SearchPatterns returns patterns whose stored name equals the input or is
	// a substring of it (case-insensitive), ordered by correct count descending.
	SearchPatterns(ctx context.Context, payeeName string) ([]model.PayeePattern, error)
	// RecordCorrect upserts the pattern, reinforcing the chosen category and
	// incrementing its correct count by one.
	RecordCorrect(ctx context.Context, payeeName, categoryID, categoryName string) error
	// RecordIncorrect increments the incorrect count on an existing pattern.
	// Missing patterns are a no-op, not an error.
	RecordIncorrect(ctx context.Context, payeeName string) error
	// GetAllPatterns returns every learned pattern.
	GetAllPatterns(ctx context.Context) ([]model.PayeePattern, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	PatternStore

	// Order snapshot operations. SaveOrders deduplicates by order id and
	// reports how many rows were actually new.
	SaveOrders(ctx context.Context, orders []model.Order) (int, error)
	GetOrderByMatchedTransaction(ctx context.Context, transactionID string) (*model.Order, error)
	SetOrderMatch(ctx context.Context, orderID, transactionID string) error
	GetUnmatchedOrders(ctx context.Context) ([]model.Order, error)

	// Receipt snapshot operations, same shape as orders.
	SaveReceipts(ctx context.Context, receipts []model.Receipt) (int, error)
	GetReceiptByMatchedTransaction(ctx context.Context, transactionID string) (*model.Receipt, error)
	SetReceiptMatch(ctx context.Context, messageID, transactionID string) error

	// Database management.
	Migrate(ctx context.Context) error
	Close() error
}

// TransactionSource supplies budget transactions and accepts category
// reassignments. The engine treats reassignment as fire-and-forget: it does
// not retry or confirm.
type TransactionSource interface {
	GetTransactions(ctx context.Context, budgetID string, since *time.Time) ([]model.Transaction, error)
	GetCategories(ctx context.Context, budgetID string) ([]model.Category, error)
	UpdateCategories(ctx context.Context, budgetID string, updates []model.CategoryUpdate) error
}

// FetchOptions bounds a purchase-record fetch.
type FetchOptions struct {
	After time.Time
	Max   int
}

// OrderSource supplies scraped retail orders.
type OrderSource interface {
	FetchOrders(ctx context.Context, opts FetchOptions) ([]model.Order, error)
}

// ReceiptSource supplies parsed email receipts.
type ReceiptSource interface {
	FetchReceipts(ctx context.Context, opts FetchOptions) ([]model.Receipt, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
