// Package match pairs external purchase records (orders, receipts) with
// budget transactions by amount and date proximity.
//
// The algorithm is greedy first-fit, not an optimal assignment: for each
// record, candidate transactions are scanned in the order given, and the
// first candidate inside the date window that matches on amount wins. The
// caller's candidate ordering is therefore the tie-break source of truth.
// A record matches at most once; nothing stops two records from claiming the
// same transaction — that is a known precision limitation of the scheme, kept
// on purpose.
package match

import (
	"fmt"
	"math"
	"time"

	"github.com/calvinlock/tally/internal/model"
)

// Tier is the confidence bucket for a matched pair.
type Tier string

// Match confidence tiers.
const (
	// TierExact means the transaction amount equals the expected amount to
	// the milliunit.
	TierExact Tier = "exact"
	// TierClose means the amounts differ, but by less than the configured
	// relative tolerance. Taxes and posting-time drift land here.
	TierClose Tier = "close"
)

// Record is the matcher's view of an external purchase: a stable id, a
// calendar date, and a charge amount in cents (non-negative).
type Record struct {
	Date        time.Time
	ID          string
	AmountCents int64
}

// Config tunes the matcher for a record source.
type Config struct {
	// Tolerance is the maximum relative amount deviation for a close-tier
	// match. Retail orders use a looser 3% (tax and timing drift); digital
	// receipts a tighter 1%.
	Tolerance float64
	// DateWindow is the maximum calendar-day gap between record and
	// transaction.
	DateWindow int
	// UnitFactor converts record cents into transaction amount units
	// (milliunits use 10).
	UnitFactor int64
}

// RetailConfig returns the matcher configuration for scraped retail orders.
func RetailConfig() Config {
	return Config{Tolerance: 0.03, DateWindow: 3, UnitFactor: 10}
}

// DigitalConfig returns the matcher configuration for email receipts.
func DigitalConfig() Config {
	return Config{Tolerance: 0.01, DateWindow: 3, UnitFactor: 10}
}

func (c Config) validate() error {
	if c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %v", c.Tolerance)
	}
	if c.DateWindow < 0 {
		return fmt.Errorf("date window must be non-negative, got %d", c.DateWindow)
	}
	if c.UnitFactor <= 0 {
		return fmt.Errorf("unit factor must be positive, got %d", c.UnitFactor)
	}
	return nil
}

// Pair is one matched record/transaction pairing.
type Pair struct {
	Record      Record
	Transaction model.Transaction
	Tier        Tier
}

// Result holds the pairs plus the leftovers on both sides.
type Result struct {
	Pairs                 []Pair
	UnmatchedRecords      []Record
	UnmatchedTransactions []model.Transaction
}

// Records pairs each record with at most one transaction. Candidates are
// expected to be pre-filtered by payee keyword; that responsibility stays
// with the caller. Records with a zero date never match (fail-closed) and
// surface in UnmatchedRecords. An invalid config is a contract violation and
// returns an error.
func Records(records []Record, txns []model.Transaction, cfg Config) (Result, error) {
	if err := cfg.validate(); err != nil {
		return Result{}, fmt.Errorf("invalid match config: %w", err)
	}

	var result Result
	claimed := make(map[string]bool, len(txns))

	for _, rec := range records {
		pair, ok := matchOne(rec, txns, cfg)
		if !ok {
			result.UnmatchedRecords = append(result.UnmatchedRecords, rec)
			continue
		}
		claimed[pair.Transaction.ID] = true
		result.Pairs = append(result.Pairs, pair)
	}

	for _, txn := range txns {
		if !claimed[txn.ID] {
			result.UnmatchedTransactions = append(result.UnmatchedTransactions, txn)
		}
	}

	return result, nil
}

func matchOne(rec Record, txns []model.Transaction, cfg Config) (Pair, bool) {
	if rec.Date.IsZero() {
		return Pair{}, false
	}

	// Purchases are expenses, so the expected transaction amount is the
	// negated, unit-converted record amount.
	expected := -rec.AmountCents * cfg.UnitFactor

	for _, txn := range txns {
		if dateDiffDays(txn.Date, rec.Date) > cfg.DateWindow {
			continue
		}

		if txn.Amount == expected {
			return Pair{Record: rec, Transaction: txn, Tier: TierExact}, true
		}

		deviation := math.Abs(float64(txn.Amount-expected)) / math.Abs(float64(expected))
		if deviation < cfg.Tolerance {
			return Pair{Record: rec, Transaction: txn, Tier: TierClose}, true
		}
	}

	return Pair{}, false
}

// dateDiffDays returns the absolute gap in calendar days, ignoring
// time-of-day. Purchase records carry no reliable time component.
func dateDiffDays(a, b time.Time) int {
	au := truncateToDay(a)
	bu := truncateToDay(b)
	diff := au.Sub(bu) / (24 * time.Hour)
	if diff < 0 {
		diff = -diff
	}
	return int(diff)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
