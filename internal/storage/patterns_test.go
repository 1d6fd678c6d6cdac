package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinlock/tally/internal/common"
)

func setupStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	s, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)

	require.NoError(t, s.Migrate(context.Background()))

	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestRecordCorrectCreatesAndIncrements(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, s.RecordCorrect(ctx, "Acme Co", "cat-1", "Shopping"))

	p, err := s.GetPattern(ctx, "Acme Co")
	require.NoError(t, err)
	assert.Equal(t, 1, p.CorrectCount)
	assert.Equal(t, 0, p.IncorrectCount)
	assert.Equal(t, "Shopping", p.CategoryName)

	// Reinforcing with a different category moves the mapping and bumps the
	// counter without resetting it.
	require.NoError(t, s.RecordCorrect(ctx, "Acme Co", "cat-2", "Household"))

	p, err = s.GetPattern(ctx, "Acme Co")
	require.NoError(t, err)
	assert.Equal(t, 2, p.CorrectCount)
	assert.Equal(t, "cat-2", p.CategoryID)
	assert.Equal(t, "Household", p.CategoryName)
}

func TestRecordIncorrect(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	// Missing pattern is a no-op, not an error.
	require.NoError(t, s.RecordIncorrect(ctx, "Nobody"))

	require.NoError(t, s.RecordCorrect(ctx, "Acme Co", "cat-1", "Shopping"))
	require.NoError(t, s.RecordIncorrect(ctx, "acme co"))

	p, err := s.GetPattern(ctx, "ACME CO")
	require.NoError(t, err)
	assert.Equal(t, 1, p.CorrectCount)
	assert.Equal(t, 1, p.IncorrectCount)
}

func TestGetPatternNotFound(t *testing.T) {
	s := setupStorage(t)

	_, err := s.GetPattern(context.Background(), "Unknown")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSearchPatternsSubstring(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, s.RecordCorrect(ctx, "Blue Bottle", "cat-1", "Coffee"))
	require.NoError(t, s.RecordCorrect(ctx, "Blue Bottle", "cat-1", "Coffee"))
	require.NoError(t, s.RecordCorrect(ctx, "Bottle Depot", "cat-2", "Household"))

	// The stored shorter token matches as a substring of the longer input.
	patterns, err := s.SearchPatterns(ctx, "Blue Bottle Coffee 512")
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "Blue Bottle", patterns[0].PayeeName)

	// Ordering puts the most reinforced pattern first.
	require.NoError(t, s.RecordCorrect(ctx, "Blue", "cat-3", "Misc"))
	patterns, err = s.SearchPatterns(ctx, "blue bottle")
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	assert.Equal(t, "Blue Bottle", patterns[0].PayeeName)
	assert.Equal(t, "Blue", patterns[1].PayeeName)
}

func TestGetAllPatterns(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	require.NoError(t, s.RecordCorrect(ctx, "One", "cat-1", "A"))
	require.NoError(t, s.RecordCorrect(ctx, "Two", "cat-2", "B"))
	require.NoError(t, s.RecordCorrect(ctx, "Two", "cat-2", "B"))

	patterns, err := s.GetAllPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	assert.Equal(t, "Two", patterns[0].PayeeName)
}
