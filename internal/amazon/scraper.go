// Package amazon scrapes the retailer's order history page through a real
// browser session and parses the result into order records.
package amazon

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/calvinlock/tally/internal/common"
	"github.com/calvinlock/tally/internal/model"
	"github.com/calvinlock/tally/internal/service"
)

const (
	orderHistoryURL = "https://www.amazon.com/gp/css/order-history"
	signinURL       = "https://www.amazon.com/ap/signin?openid.pape.max_auth_age=0&openid.return_to=https%3A%2F%2Fwww.amazon.com%2Fgp%2Fcss%2Forder-history&openid.identity=http%3A%2F%2Fspecs.openid.net%2Fauth%2F2.0%2Fidentifier_select&openid.assoc_handle=usflex&openid.mode=checkid_setup&openid.claimed_id=http%3A%2F%2Fspecs.openid.net%2Fauth%2F2.0%2Fidentifier_select&openid.ns=http%3A%2F%2Fspecs.openid.net%2Fauth%2F2.0"

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	defaultMaxOrders = 50
	maxPages         = 20
	loginTimeout     = 5 * time.Minute
	loginPollEvery   = 2 * time.Second
)

// Scraper drives a browser with a persistent profile so the login session
// survives between runs.
type Scraper struct {
	profileDir string
}

// NewScraper creates a scraper whose browser profile lives in profileDir.
func NewScraper(profileDir string) *Scraper {
	return &Scraper{profileDir: profileDir}
}

// FetchOrders opens the order history page, waiting for a manual login when
// the session has expired, and walks result pages until it has enough orders.
func (s *Scraper) FetchOrders(ctx context.Context, opts service.FetchOptions) ([]model.Order, error) {
	if err := os.MkdirAll(s.profileDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create browser profile directory: %w", err)
	}

	maxOrders := opts.Max
	if maxOrders <= 0 {
		maxOrders = defaultMaxOrders
	}

	// The login flow needs a visible window.
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		chromedp.UserDataDir(s.profileDir),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1280, 800),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	common.LogInfo("Opening order history", common.Fields{"url": orderHistoryURL})
	pageHTML, err := navigate(browserCtx, orderHistoryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open order history: %w", err)
	}

	if !isLoggedIn(pageHTML) {
		if err := s.waitForLogin(browserCtx); err != nil {
			return nil, err
		}
		pageHTML, err = navigate(browserCtx, orderHistoryURL)
		if err != nil {
			return nil, fmt.Errorf("failed to reopen order history after login: %w", err)
		}
	}

	var all []model.Order
	for page := 1; page <= maxPages; page++ {
		orders, err := ParseOrders(pageHTML)
		if err != nil {
			return nil, fmt.Errorf("failed to parse order history page %d: %w", page, err)
		}

		kept := orders
		if !opts.After.IsZero() {
			kept = kept[:0:0]
			for _, o := range orders {
				if !o.Date.Before(opts.After) {
					kept = append(kept, o)
				}
			}
		}
		all = append(all, kept...)

		common.LogInfo("Scraped order history page", common.Fields{
			"page": page, "orders": len(orders), "total": len(all),
		})

		if len(all) >= maxOrders {
			break
		}
		// Orders are newest first; once filtering starts dropping rows the
		// remaining pages are all older than the cutoff.
		if !opts.After.IsZero() && len(kept) < len(orders) {
			break
		}

		pageHTML, err = nextPage(browserCtx)
		if err != nil {
			break
		}
	}

	if len(all) > maxOrders {
		all = all[:maxOrders]
	}
	return all, nil
}

// TestConnection opens the order history page and reports whether the stored
// session is still logged in.
func (s *Scraper) TestConnection(ctx context.Context) (bool, error) {
	if err := os.MkdirAll(s.profileDir, 0o700); err != nil {
		return false, fmt.Errorf("failed to create browser profile directory: %w", err)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		chromedp.UserDataDir(s.profileDir),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1280, 800),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	pageHTML, err := navigate(browserCtx, orderHistoryURL)
	if err != nil {
		return false, fmt.Errorf("failed to open order history: %w", err)
	}
	return isLoggedIn(pageHTML), nil
}

// waitForLogin sends the browser to the sign-in page and polls until the
// session looks authenticated or the timeout passes.
func (s *Scraper) waitForLogin(ctx context.Context) error {
	common.LogInfo("Login required, complete it in the browser window", nil)

	if _, err := navigate(ctx, signinURL); err != nil {
		return fmt.Errorf("failed to open sign-in page: %w", err)
	}

	deadline := time.Now().Add(loginTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(loginPollEvery):
		}

		var location string
		var pageHTML string
		err := chromedp.Run(ctx,
			chromedp.Location(&location),
			chromedp.OuterHTML("html", &pageHTML, chromedp.ByQuery),
		)
		if err != nil {
			continue
		}

		if strings.Contains(location, "order-history") || strings.Contains(location, "your-orders") || isLoggedIn(pageHTML) {
			common.LogInfo("Login detected", nil)
			return nil
		}
	}

	return fmt.Errorf("%w: no login within %s", common.ErrLoginRequired, loginTimeout)
}

// isLoggedIn checks the account greeting in the nav bar.
func isLoggedIn(pageHTML string) bool {
	idx := strings.Index(pageHTML, "nav-link-accountList-nav-line-1")
	if idx < 0 {
		return false
	}
	// The greeting text follows shortly after the id attribute.
	window := pageHTML[idx:min(idx+500, len(pageHTML))]
	return !strings.Contains(strings.ToLower(window), "sign in")
}

func navigate(ctx context.Context, url string) (string, error) {
	var pageHTML string
	err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &pageHTML, chromedp.ByQuery),
	)
	return pageHTML, err
}

// nextPage clicks the pagination control; an error means the last page.
func nextPage(ctx context.Context) (string, error) {
	clickCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var pageHTML string
	err := chromedp.Run(clickCtx,
		chromedp.Click(".a-pagination .a-last a", chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &pageHTML, chromedp.ByQuery),
	)
	return pageHTML, err
}
