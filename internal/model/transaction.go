// Package model defines the core domain models used throughout the application.
package model

import (
	"strings"
	"time"
)

// UncategorizedName is the sentinel category name the budget service assigns
// to transactions that have not been categorized yet. It is a real category
// name on the wire, not a null.
const UncategorizedName = "Uncategorized"

// Transaction represents a single transaction known to the budget service.
// Amounts are in milliunits (1000 = one major currency unit); expenses are
// negative.
type Transaction struct {
	Date         time.Time
	ID           string
	PayeeName    string
	Memo         string
	CategoryID   string
	CategoryName string
	AccountID    string
	Amount       int64
}

// IsUncategorized reports whether the transaction still needs a category.
func (t *Transaction) IsUncategorized() bool {
	return t.CategoryName == "" || t.CategoryName == UncategorizedName
}

// PayeeContains reports whether the payee name contains the given keyword,
// case-insensitively. Used to pre-filter candidates for record matching.
func (t *Transaction) PayeeContains(keywords ...string) bool {
	payee := strings.ToLower(t.PayeeName)
	for _, kw := range keywords {
		if strings.Contains(payee, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// CategoryUpdate is a pending category reassignment for one transaction.
type CategoryUpdate struct {
	TransactionID string
	PayeeName     string
	CategoryID    string
	CategoryName  string
	Amount        int64
}
