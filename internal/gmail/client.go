// Package gmail fetches purchase receipt emails from a Gmail mailbox and
// parses them into receipt records.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/calvinlock/tally/internal/common"
	"github.com/calvinlock/tally/internal/model"
	"github.com/calvinlock/tally/internal/service"
)

const (
	receiptQuery      = "from:apple.com subject:receipt"
	defaultMaxResults = 100
)

// Client reads receipt emails via the Gmail API.
type Client struct {
	svc *gmailapi.Service
}

// NewClient builds a Gmail client from OAuth credentials, running the
// interactive flow when no cached token exists.
func NewClient(ctx context.Context, config OAuthConfig) (*Client, error) {
	token, err := GetOrCreateToken(ctx, config)
	if err != nil {
		return nil, err
	}

	source := config.oauth2Config().TokenSource(ctx, token)
	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// NewClientWithTokenSource builds a client from an existing token source.
func NewClientWithTokenSource(ctx context.Context, source oauth2.TokenSource) (*Client, error) {
	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// FetchReceipts searches the mailbox for receipt emails and parses each one.
// Messages that fail to parse are logged and skipped.
func (c *Client) FetchReceipts(ctx context.Context, opts service.FetchOptions) ([]model.Receipt, error) {
	query := receiptQuery
	if !opts.After.IsZero() {
		query += " after:" + opts.After.Format("2006/01/02")
	}

	maxResults := int64(opts.Max)
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	common.LogInfo("Searching mailbox for receipts", common.Fields{"query": query, "max": maxResults})

	list, err := c.svc.Users.Messages.List("me").Q(query).MaxResults(maxResults).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to search mailbox: %w", err)
	}

	bar := receiptProgressBar(len(list.Messages))

	receipts := make([]model.Receipt, 0, len(list.Messages))
	for _, ref := range list.Messages {
		receipt, err := c.fetchReceipt(ctx, ref.Id)
		_ = bar.Add(1)
		if err != nil {
			common.LogError(err, "Failed to parse receipt email", common.Fields{"message_id": ref.Id})
			continue
		}
		if receipt != nil {
			receipts = append(receipts, *receipt)
		}
	}
	_ = bar.Finish()

	common.LogInfo("Parsed receipt emails", common.Fields{
		"found":  len(list.Messages),
		"parsed": len(receipts),
	})
	return receipts, nil
}

// receiptProgressBar shows fetch progress on stderr so stdout stays clean for
// results.
func receiptProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Fetching receipts..."),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
}

func (c *Client) fetchReceipt(ctx context.Context, messageID string) (*model.Receipt, error) {
	msg, err := c.svc.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}

	var subject, dateHeader string
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "subject":
				subject = h.Value
			case "date":
				dateHeader = h.Value
			}
		}
	}

	return parseReceipt(messageID, subject, dateHeader, messageBody(msg.Payload)), nil
}

// messageBody extracts the message body, preferring the HTML part since the
// sender's receipts carry their structure there.
func messageBody(payload *gmailapi.MessagePart) string {
	if payload == nil {
		return ""
	}

	if payload.Body != nil && payload.Body.Data != "" {
		return decodeBody(payload.Body.Data)
	}

	var plain string
	for _, part := range payload.Parts {
		if part.Body == nil || part.Body.Data == "" {
			continue
		}
		switch part.MimeType {
		case "text/html":
			return decodeBody(part.Body.Data)
		case "text/plain":
			if plain == "" {
				plain = decodeBody(part.Body.Data)
			}
		}
	}
	return plain
}

func decodeBody(data string) string {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}
