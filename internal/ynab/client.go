// Package ynab is a thin client for the YNAB REST API, covering only the
// endpoints the toolkit needs: budgets, categories, transactions, and bulk
// category updates.
package ynab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/calvinlock/tally/internal/common"
	"github.com/calvinlock/tally/internal/model"
	"github.com/calvinlock/tally/internal/service"
)

const defaultBaseURL = "https://api.ynab.com/v1"

// Client talks to the YNAB API with a personal access token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used in tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a YNAB API client.
func NewClient(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: YNAB token", common.ErrMissingConfig)
	}

	c := &Client{
		token:   token,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// API response envelopes.
type budgetsResponse struct {
	Data struct {
		Budgets []budget `json:"budgets"`
	} `json:"data"`
}

type budget struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	LastModified string `json:"last_modified_on"`
}

type categoriesResponse struct {
	Data struct {
		CategoryGroups []categoryGroup `json:"category_groups"`
	} `json:"data"`
}

type categoryGroup struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Hidden     bool       `json:"hidden"`
	Categories []category `json:"categories"`
}

type category struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Hidden bool   `json:"hidden"`
}

type transactionsResponse struct {
	Data struct {
		Transactions []transaction `json:"transactions"`
	} `json:"data"`
}

type transaction struct {
	ID           string `json:"id"`
	Date         string `json:"date"`
	Amount       int64  `json:"amount"`
	PayeeName    string `json:"payee_name"`
	Memo         string `json:"memo"`
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
	AccountID    string `json:"account_id"`
	Deleted      bool   `json:"deleted"`
}

type updateTransactionsRequest struct {
	Transactions []transactionPatch `json:"transactions"`
}

type transactionPatch struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id"`
}

// GetBudgets lists the budgets available to the token.
func (c *Client) GetBudgets(ctx context.Context) ([]model.Budget, error) {
	var resp budgetsResponse
	if err := c.get(ctx, "/budgets", &resp); err != nil {
		return nil, err
	}

	budgets := make([]model.Budget, 0, len(resp.Data.Budgets))
	for _, b := range resp.Data.Budgets {
		modified, _ := time.Parse(time.RFC3339, b.LastModified)
		budgets = append(budgets, model.Budget{
			ID:           b.ID,
			Name:         b.Name,
			LastModified: modified,
		})
	}
	return budgets, nil
}

// GetCategories returns the budget's categories flattened out of their
// groups, with hidden groups and categories skipped.
func (c *Client) GetCategories(ctx context.Context, budgetID string) ([]model.Category, error) {
	if budgetID == "" {
		return nil, fmt.Errorf("%w: budget id", common.ErrInvalidBudget)
	}

	var resp categoriesResponse
	if err := c.get(ctx, "/budgets/"+budgetID+"/categories", &resp); err != nil {
		return nil, err
	}

	var categories []model.Category
	for _, group := range resp.Data.CategoryGroups {
		if group.Hidden {
			continue
		}
		for _, cat := range group.Categories {
			if cat.Hidden {
				continue
			}
			categories = append(categories, model.Category{
				ID:        cat.ID,
				Name:      cat.Name,
				GroupName: group.Name,
			})
		}
	}
	return categories, nil
}

// GetTransactions fetches transactions for a budget, optionally limited to
// those on or after the given date.
func (c *Client) GetTransactions(ctx context.Context, budgetID string, since *time.Time) ([]model.Transaction, error) {
	if budgetID == "" {
		return nil, fmt.Errorf("%w: budget id", common.ErrInvalidBudget)
	}

	path := "/budgets/" + budgetID + "/transactions"
	if since != nil {
		path += "?since_date=" + since.Format("2006-01-02")
	}

	var resp transactionsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	transactions := make([]model.Transaction, 0, len(resp.Data.Transactions))
	for _, t := range resp.Data.Transactions {
		if t.Deleted {
			continue
		}

		date, err := time.Parse("2006-01-02", t.Date)
		if err != nil {
			slog.Warn("Skipping transaction with unparseable date",
				"transaction_id", t.ID, "date", t.Date)
			continue
		}

		transactions = append(transactions, model.Transaction{
			ID:           t.ID,
			Date:         date,
			Amount:       t.Amount,
			PayeeName:    t.PayeeName,
			Memo:         t.Memo,
			CategoryID:   t.CategoryID,
			CategoryName: t.CategoryName,
			AccountID:    t.AccountID,
		})
	}
	return transactions, nil
}

// GetUncategorizedTransactions returns transactions still carrying the
// service's "Uncategorized" sentinel category.
func (c *Client) GetUncategorizedTransactions(ctx context.Context, budgetID string, since *time.Time) ([]model.Transaction, error) {
	transactions, err := c.GetTransactions(ctx, budgetID, since)
	if err != nil {
		return nil, err
	}

	var uncategorized []model.Transaction
	for _, t := range transactions {
		if t.CategoryName == model.UncategorizedName {
			uncategorized = append(uncategorized, t)
		}
	}
	return uncategorized, nil
}

// UpdateCategories applies category reassignments in one bulk PATCH. The
// caller treats this as fire-and-forget: no per-transaction confirmation is
// surfaced.
func (c *Client) UpdateCategories(ctx context.Context, budgetID string, updates []model.CategoryUpdate) error {
	if budgetID == "" {
		return fmt.Errorf("%w: budget id", common.ErrInvalidBudget)
	}
	if len(updates) == 0 {
		return nil
	}

	req := updateTransactionsRequest{
		Transactions: make([]transactionPatch, 0, len(updates)),
	}
	for _, u := range updates {
		req.Transactions = append(req.Transactions, transactionPatch{
			ID:         u.TransactionID,
			CategoryID: u.CategoryID,
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode update request: %w", err)
	}

	return c.do(ctx, http.MethodPatch, "/budgets/"+budgetID+"/transactions", body, nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	operation := func() error {
		return c.do(ctx, http.MethodGet, path, nil, out)
	}
	return common.WithRetry(ctx, operation, service.RetryOptions{MaxAttempts: 3})
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s %s", common.ErrBudgetRateLimit, method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: %s %s: %d - %s",
			common.ErrBudgetAPI, method, path, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
