package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/calvinlock/tally/internal/common"
	"github.com/calvinlock/tally/internal/model"
)

const patternColumns = `payee_name, category_id, category_name, correct_count, incorrect_count, last_used`

// GetPattern retrieves a pattern by its exact normalized payee name.
func (s *SQLiteStorage) GetPattern(ctx context.Context, payeeName string) (*model.PayeePattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(payeeName, "payeeName"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+patternColumns+`
		FROM payee_patterns
		WHERE LOWER(payee_name) = LOWER(?)
	`, payeeName)

	pattern, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}
	return pattern, nil
}

// SearchPatterns returns patterns whose stored name equals the input, or is a
// substring of it (case-insensitive). That loose second arm lets a previously
// seen shorter merchant token match a longer new payee string. Results are
// ordered by correct count descending.
func (s *SQLiteStorage) SearchPatterns(ctx context.Context, payeeName string) ([]model.PayeePattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(payeeName, "payeeName"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+patternColumns+`
		FROM payee_patterns
		WHERE LOWER(payee_name) = LOWER(?)
		   OR instr(LOWER(?), LOWER(payee_name)) > 0
		ORDER BY correct_count DESC, payee_name
	`, payeeName, payeeName)
	if err != nil {
		return nil, fmt.Errorf("failed to search patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectPatterns(rows)
}

// RecordCorrect upserts the pattern for a payee, reinforcing the chosen
// category and incrementing the correct count by one. A missing pattern is
// created with a correct count of one. The increment happens in the database
// so concurrent writers can't lose updates.
func (s *SQLiteStorage) RecordCorrect(ctx context.Context, payeeName, categoryID, categoryName string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(payeeName, "payeeName"); err != nil {
		return err
	}
	if err := validateString(categoryID, "categoryID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payee_patterns (payee_name, category_id, category_name, correct_count, last_used)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(payee_name) DO UPDATE SET
			category_id = excluded.category_id,
			category_name = excluded.category_name,
			correct_count = payee_patterns.correct_count + 1,
			last_used = excluded.last_used
	`, payeeName, categoryID, categoryName, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record correct choice: %w", err)
	}
	return nil
}

// RecordIncorrect increments the incorrect count on an existing pattern.
// Payees with no stored pattern are left alone.
func (s *SQLiteStorage) RecordIncorrect(ctx context.Context, payeeName string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(payeeName, "payeeName"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE payee_patterns
		SET incorrect_count = incorrect_count + 1,
		    last_used = ?
		WHERE LOWER(payee_name) = LOWER(?)
	`, time.Now().UTC(), payeeName)
	if err != nil {
		return fmt.Errorf("failed to record incorrect choice: %w", err)
	}
	return nil
}

// GetAllPatterns returns every learned pattern, most reinforced first.
func (s *SQLiteStorage) GetAllPatterns(ctx context.Context) ([]model.PayeePattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+patternColumns+`
		FROM payee_patterns
		ORDER BY correct_count DESC, payee_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectPatterns(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (*model.PayeePattern, error) {
	var p model.PayeePattern
	err := row.Scan(
		&p.PayeeName,
		&p.CategoryID,
		&p.CategoryName,
		&p.CorrectCount,
		&p.IncorrectCount,
		&p.LastUsed,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPatterns(rows *sql.Rows) ([]model.PayeePattern, error) {
	var patterns []model.PayeePattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		patterns = append(patterns, *p)
	}
	return patterns, rows.Err()
}
