package ynab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinlock/tally/internal/common"
	"github.com/calvinlock/tally/internal/model"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient("test-token", WithBaseURL(server.URL))
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestGetBudgets(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/budgets", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(`{"data":{"budgets":[
			{"id":"b1","name":"Household","last_modified_on":"2025-06-01T12:00:00Z"},
			{"id":"b2","name":"Business","last_modified_on":"2025-05-15T08:30:00Z"}
		]}}`))
	}))

	budgets, err := client.GetBudgets(context.Background())
	require.NoError(t, err)
	require.Len(t, budgets, 2)
	assert.Equal(t, "Household", budgets[0].Name)
	assert.Equal(t, 2025, budgets[0].LastModified.Year())
}

func TestGetCategoriesSkipsHidden(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/budgets/b1/categories", r.URL.Path)

		_, _ = w.Write([]byte(`{"data":{"category_groups":[
			{"id":"g1","name":"Everyday","hidden":false,"categories":[
				{"id":"c1","name":"Groceries","hidden":false},
				{"id":"c2","name":"Old Thing","hidden":true}
			]},
			{"id":"g2","name":"Retired","hidden":true,"categories":[
				{"id":"c3","name":"Gone","hidden":false}
			]}
		]}}`))
	}))

	categories, err := client.GetCategories(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "Groceries", categories[0].Name)
	assert.Equal(t, "Everyday", categories[0].GroupName)
	assert.Equal(t, "Everyday: Groceries", categories[0].FullName())
}

func TestGetCategoriesRequiresBudget(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	_, err := client.GetCategories(context.Background(), "")
	assert.ErrorIs(t, err, common.ErrInvalidBudget)
}

func TestGetTransactions(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/budgets/b1/transactions", r.URL.Path)
		assert.Equal(t, "2025-03-01", r.URL.Query().Get("since_date"))

		_, _ = w.Write([]byte(`{"data":{"transactions":[
			{"id":"t1","date":"2025-03-14","amount":-42990,"payee_name":"AMAZON.COM","memo":"",
			 "category_name":"Uncategorized","account_id":"a1","deleted":false},
			{"id":"t2","date":"2025-03-15","amount":-9990,"payee_name":"Gone","deleted":true},
			{"id":"t3","date":"not-a-date","amount":-1000,"payee_name":"Broken","deleted":false}
		]}}`))
	}))

	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	transactions, err := client.GetTransactions(context.Background(), "b1", &since)
	require.NoError(t, err)

	// Deleted and unparseable rows are dropped.
	require.Len(t, transactions, 1)
	assert.Equal(t, "t1", transactions[0].ID)
	assert.Equal(t, int64(-42990), transactions[0].Amount)
	assert.True(t, transactions[0].IsUncategorized())
}

func TestGetUncategorizedTransactions(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"transactions":[
			{"id":"t1","date":"2025-03-14","amount":-5000,"payee_name":"A","category_name":"Uncategorized"},
			{"id":"t2","date":"2025-03-14","amount":-6000,"payee_name":"B","category_name":"Groceries"}
		]}}`))
	}))

	transactions, err := client.GetUncategorizedTransactions(context.Background(), "b1", nil)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, "t1", transactions[0].ID)
}

func TestUpdateCategories(t *testing.T) {
	var got updateTransactionsRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/budgets/b1/transactions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))

	updates := []model.CategoryUpdate{
		{TransactionID: "t1", CategoryID: "c1"},
		{TransactionID: "t2", CategoryID: "c2"},
	}
	require.NoError(t, client.UpdateCategories(context.Background(), "b1", updates))

	require.Len(t, got.Transactions, 2)
	assert.Equal(t, "t1", got.Transactions[0].ID)
	assert.Equal(t, "c2", got.Transactions[1].CategoryID)
}

func TestUpdateCategoriesEmptyIsNoop(t *testing.T) {
	called := false
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, client.UpdateCategories(context.Background(), "b1", nil))
	assert.False(t, called)
}

func TestRateLimitSurfacesSentinel(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	err := client.UpdateCategories(context.Background(), "b1", []model.CategoryUpdate{
		{TransactionID: "t1", CategoryID: "c1"},
	})
	assert.ErrorIs(t, err, common.ErrBudgetRateLimit)
}

func TestServerErrorSurfacesBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"detail":"bad token"}}`))
	}))

	err := client.UpdateCategories(context.Background(), "b1", []model.CategoryUpdate{
		{TransactionID: "t1", CategoryID: "c1"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrBudgetAPI)
	assert.Contains(t, err.Error(), "bad token")
}
