package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/calvinlock/tally/internal/common"
)

// OAuthConfig holds the Google OAuth2 client credentials and where to cache
// the resulting token.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenFile    string
}

func (c OAuthConfig) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  "http://localhost:8080/callback",
		Scopes:       []string{gmailapi.GmailReadonlyScope},
	}
}

// GetOrCreateToken loads a cached token, refreshing it when expired, and
// falls back to the interactive browser flow when no usable token exists.
func GetOrCreateToken(ctx context.Context, config OAuthConfig) (*oauth2.Token, error) {
	if config.ClientID == "" || config.ClientSecret == "" {
		return nil, fmt.Errorf("%w: Google OAuth client credentials", common.ErrMissingConfig)
	}

	if config.TokenFile != "" {
		token, err := loadToken(config.TokenFile)
		if err == nil {
			return refreshIfNeeded(ctx, config, token)
		}
		common.LogInfo("No cached Gmail token, starting OAuth flow", common.Fields{"token_file": config.TokenFile})
	}

	return authenticateInteractive(ctx, config)
}

// authenticateInteractive runs the installed-app OAuth flow: print a URL,
// catch the redirect on a local listener, exchange the code.
func authenticateInteractive(ctx context.Context, config OAuthConfig) (*oauth2.Token, error) {
	oauthConfig := config.oauth2Config()

	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	mux := http.NewServeMux()
	server := &http.Server{Addr: ":8080", Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errorChan <- fmt.Errorf("no authorization code received")
			_, _ = fmt.Fprint(w, "<html><body><h1>Authentication failed</h1><p>No authorization code received.</p></body></html>")
			return
		}
		codeChan <- code
		_, _ = fmt.Fprint(w, "<html><body><h1>Authentication successful</h1><p>You can close this window and return to the terminal.</p></body></html>")
	})

	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errorChan <- fmt.Errorf("failed to start callback server: %w", err)
		}
	}()

	authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	common.LogInfo("Gmail authentication required, visit URL to continue", common.Fields{"url": authURL})

	var authCode string
	select {
	case authCode = <-codeChan:
	case err := <-errorChan:
		_ = server.Shutdown(ctx)
		return nil, err
	case <-ctx.Done():
		_ = server.Shutdown(ctx)
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		_ = server.Shutdown(ctx)
		return nil, fmt.Errorf("authentication timeout, no response within 5 minutes")
	}

	_ = server.Shutdown(ctx)

	token, err := oauthConfig.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if config.TokenFile != "" {
		if err := saveToken(config.TokenFile, token); err != nil {
			common.LogError(err, "Failed to cache Gmail token", common.Fields{"file": config.TokenFile})
		}
	}
	return token, nil
}

func refreshIfNeeded(ctx context.Context, config OAuthConfig, token *oauth2.Token) (*oauth2.Token, error) {
	if token.Valid() {
		return token, nil
	}

	newToken, err := config.oauth2Config().TokenSource(ctx, token).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to refresh Gmail token: %v", common.ErrLoginRequired, err)
	}

	if config.TokenFile != "" {
		if err := saveToken(config.TokenFile, newToken); err != nil {
			common.LogError(err, "Failed to cache refreshed Gmail token", common.Fields{"file": config.TokenFile})
		}
	}
	return newToken, nil
}

func loadToken(tokenFile string) (*oauth2.Token, error) {
	f, err := os.Open(tokenFile) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	token := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(token)
	return token, err
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return nil
}
