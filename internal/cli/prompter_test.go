package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinlock/tally/internal/model"
	"github.com/calvinlock/tally/internal/suggest"
)

var testCategories = []model.Category{
	{ID: "c1", Name: "Groceries", GroupName: "Everyday"},
	{ID: "c2", Name: "Dining Out", GroupName: "Everyday"},
	{ID: "c3", Name: "Software", GroupName: "Subscriptions"},
}

var testTxn = model.Transaction{
	ID:        "t1",
	Date:      time.Date(2024, 12, 10, 0, 0, 0, 0, time.UTC),
	PayeeName: "AMAZON.COM",
	Amount:    -42990,
}

func decideWith(t *testing.T, input string, suggestion *suggest.Suggestion) (Decision, string, error) {
	t.Helper()

	var out bytes.Buffer
	p := NewPrompter(strings.NewReader(input), &out, testCategories)
	d, err := p.Decide(context.Background(), testTxn, "USB-C Cable", suggestion)
	return d, out.String(), err
}

func TestDecideAcceptsSuggestion(t *testing.T) {
	suggestion := &suggest.Suggestion{CategoryID: "c1", CategoryName: "Groceries", Confidence: suggest.ConfidenceHigh, MatchCount: 4}

	d, out, err := decideWith(t, "a\n", suggestion)
	require.NoError(t, err)

	assert.True(t, d.Accepted)
	assert.Equal(t, "c1", d.CategoryID)
	assert.Contains(t, out, "Groceries")
	assert.Contains(t, out, "USB-C Cable")
}

func TestDecideOverrideViaSearch(t *testing.T) {
	suggestion := &suggest.Suggestion{CategoryID: "c1", CategoryName: "Groceries", Confidence: suggest.ConfidenceLow}

	// c → search "software" → pick the first hit.
	d, _, err := decideWith(t, "c\nsoftware\n1\n", suggestion)
	require.NoError(t, err)

	assert.False(t, d.Accepted)
	assert.Equal(t, "c3", d.CategoryID)
	assert.Equal(t, "Software", d.CategoryName)
}

func TestDecideFreePickWithoutSuggestion(t *testing.T) {
	d, _, err := decideWith(t, "c\ndining\n1\n", nil)
	require.NoError(t, err)

	// No suggestion was shown, so nothing was overridden.
	assert.True(t, d.Accepted)
	assert.Equal(t, "c2", d.CategoryID)
}

func TestDecideSkipAndQuit(t *testing.T) {
	d, _, err := decideWith(t, "s\n", nil)
	require.NoError(t, err)
	assert.True(t, d.Skipped)

	_, _, err = decideWith(t, "q\n", nil)
	assert.ErrorIs(t, err, ErrQuit)
}

func TestDecideRejectsInvalidChoiceThenRecovers(t *testing.T) {
	d, out, err := decideWith(t, "x\ns\n", nil)
	require.NoError(t, err)
	assert.True(t, d.Skipped)
	assert.Contains(t, out, "Invalid choice")
}

func TestDecideSuggestionKeyUnavailableWithoutSuggestion(t *testing.T) {
	// "a" is not a valid key when no suggestion is shown.
	d, out, err := decideWith(t, "a\ns\n", nil)
	require.NoError(t, err)
	assert.True(t, d.Skipped)
	assert.Contains(t, out, "Invalid choice")
}

func TestPickCategoryEmptySearchCancels(t *testing.T) {
	d, _, err := decideWith(t, "c\n\n", nil)
	require.NoError(t, err)
	assert.True(t, d.Skipped)
}

func TestSearchCategoriesFuzzy(t *testing.T) {
	p := NewPrompter(strings.NewReader(""), &bytes.Buffer{}, testCategories)

	matches := p.searchCategories("groc")
	require.NotEmpty(t, matches)
	assert.Equal(t, "Groceries", matches[0].Name)

	assert.Empty(t, p.searchCategories("zzzz"))
}
