package suggest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinlock/tally/internal/model"
)

// fakeStore is an in-memory pattern store keyed by lowercased payee name.
type fakeStore struct {
	patterns  map[string]*model.PayeePattern
	failWith  error
	failNames map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		patterns:  make(map[string]*model.PayeePattern),
		failNames: make(map[string]bool),
	}
}

func (f *fakeStore) GetPattern(_ context.Context, payeeName string) (*model.PayeePattern, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	p, ok := f.patterns[strings.ToLower(payeeName)]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) SearchPatterns(_ context.Context, payeeName string) ([]model.PayeePattern, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	input := strings.ToLower(payeeName)
	var out []model.PayeePattern
	for key, p := range f.patterns {
		if key == input || strings.Contains(input, key) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CorrectCount != out[j].CorrectCount {
			return out[i].CorrectCount > out[j].CorrectCount
		}
		return out[i].PayeeName < out[j].PayeeName
	})
	return out, nil
}

func (f *fakeStore) RecordCorrect(_ context.Context, payeeName, categoryID, categoryName string) error {
	if f.failWith != nil || f.failNames[strings.ToLower(payeeName)] {
		if f.failWith != nil {
			return f.failWith
		}
		return errors.New("write failed")
	}
	key := strings.ToLower(payeeName)
	p, ok := f.patterns[key]
	if !ok {
		p = &model.PayeePattern{PayeeName: payeeName}
		f.patterns[key] = p
	}
	p.CategoryID = categoryID
	p.CategoryName = categoryName
	p.CorrectCount++
	p.LastUsed = time.Now()
	return nil
}

func (f *fakeStore) RecordIncorrect(_ context.Context, payeeName string) error {
	if f.failWith != nil {
		return f.failWith
	}
	if p, ok := f.patterns[strings.ToLower(payeeName)]; ok {
		p.IncorrectCount++
		p.LastUsed = time.Now()
	}
	return nil
}

func (f *fakeStore) GetAllPatterns(_ context.Context) ([]model.PayeePattern, error) {
	var out []model.PayeePattern
	for _, p := range f.patterns {
		out = append(out, *p)
	}
	return out, nil
}

func TestDeriveConfidence(t *testing.T) {
	tests := []struct {
		name      string
		correct   int
		incorrect int
		want      Confidence
	}{
		{name: "perfect with enough observations", correct: 3, incorrect: 0, want: ConfidenceHigh},
		{name: "two thirds accuracy stays low", correct: 2, incorrect: 1, want: ConfidenceLow},
		{name: "perfect but only two observations", correct: 2, incorrect: 0, want: ConfidenceMedium},
		{name: "single observation", correct: 1, incorrect: 0, want: ConfidenceLow},
		{name: "no observations", correct: 0, incorrect: 0, want: ConfidenceLow},
		{name: "nine of ten", correct: 9, incorrect: 1, want: ConfidenceHigh},
		{name: "seven of ten", correct: 7, incorrect: 3, want: ConfidenceMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &model.PayeePattern{CorrectCount: tt.correct, IncorrectCount: tt.incorrect}
			assert.Equal(t, tt.want, DeriveConfidence(p))
		})
	}
}

func TestSuggestExactAndLoose(t *testing.T) {
	store := newFakeStore()
	s := NewSuggester(store)
	ctx := context.Background()

	require.NoError(t, s.RecordChoice(ctx, "Acme Co", "cat-1", "Shopping", true))

	t.Run("exact", func(t *testing.T) {
		got, err := s.Suggest(ctx, "Acme Co")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Shopping", got.CategoryName)
		assert.Equal(t, ConfidenceLow, got.Confidence)
		assert.Equal(t, 1, got.MatchCount)
	})

	t.Run("loose substring", func(t *testing.T) {
		// Normalization strips the trailing id, then the stored shorter
		// token matches inside the longer payee.
		got, err := s.Suggest(ctx, "Acme Co Storefront #12")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "cat-1", got.CategoryID)
	})

	t.Run("no match", func(t *testing.T) {
		got, err := s.Suggest(ctx, "Completely Different")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("empty payee", func(t *testing.T) {
		got, err := s.Suggest(ctx, "   ")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestSuggestPrefersMostReinforced(t *testing.T) {
	store := newFakeStore()
	s := NewSuggester(store)
	ctx := context.Background()

	require.NoError(t, s.RecordChoice(ctx, "Blue", "cat-a", "Misc", true))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordChoice(ctx, "Blue Bottle", "cat-b", "Coffee", true))
	}

	got, err := s.Suggest(ctx, "Blue Bottle")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Coffee", got.CategoryName)
	assert.Equal(t, ConfidenceHigh, got.Confidence)
	assert.Equal(t, 3, got.MatchCount)
}

func TestSuggestDegradesOnStorageFailure(t *testing.T) {
	store := newFakeStore()
	store.failWith = errors.New("database is down")
	s := NewSuggester(store)

	got, err := s.Suggest(context.Background(), "Acme Co")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRecordChoiceOverride(t *testing.T) {
	store := newFakeStore()
	s := NewSuggester(store)
	ctx := context.Background()

	require.NoError(t, s.RecordChoice(ctx, "Acme Co", "cat-1", "Shopping", true))

	// Human rejected the suggestion and picked a different category: the old
	// pattern is penalized AND the new choice reinforced.
	require.NoError(t, s.RecordChoice(ctx, "Acme Co", "cat-2", "Household", false))

	p, err := store.GetPattern(ctx, "Acme Co")
	require.NoError(t, err)
	assert.Equal(t, 2, p.CorrectCount)
	assert.Equal(t, 1, p.IncorrectCount)
	assert.Equal(t, "cat-2", p.CategoryID)
}

func TestCountsNeverShrink(t *testing.T) {
	store := newFakeStore()
	s := NewSuggester(store)
	ctx := context.Background()

	var lastCorrect, lastIncorrect int
	steps := []bool{true, false, true, true, false}
	for _, accepted := range steps {
		require.NoError(t, s.RecordChoice(ctx, "Acme Co", "cat-1", "Shopping", accepted))

		p, err := store.GetPattern(ctx, "Acme Co")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p.CorrectCount, lastCorrect)
		assert.GreaterOrEqual(t, p.IncorrectCount, lastIncorrect)
		lastCorrect = p.CorrectCount
		lastIncorrect = p.IncorrectCount
	}
}

func TestRecordChoicesContinuesPastFailures(t *testing.T) {
	store := newFakeStore()
	store.failNames["bad payee"] = true
	s := NewSuggester(store)
	ctx := context.Background()

	s.RecordChoices(ctx, []Choice{
		{PayeeName: "Good One", CategoryID: "cat-1", CategoryName: "A"},
		{PayeeName: "Bad Payee", CategoryID: "cat-2", CategoryName: "B"},
		{PayeeName: "Good Two", CategoryID: "cat-3", CategoryName: "C"},
	})

	_, err := store.GetPattern(ctx, "Good One")
	assert.NoError(t, err)
	_, err = store.GetPattern(ctx, "Good Two")
	assert.NoError(t, err)
	_, err = store.GetPattern(ctx, "Bad Payee")
	assert.Error(t, err)
}

func TestSuggestAfterRecordEndToEnd(t *testing.T) {
	store := newFakeStore()
	s := NewSuggester(store)
	ctx := context.Background()

	require.NoError(t, s.RecordChoice(ctx, "Acme Co", "cat-1", "Shopping", true))

	got, err := s.Suggest(ctx, "Acme Co")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Shopping", got.CategoryName)
	assert.Equal(t, ConfidenceLow, got.Confidence)
}
