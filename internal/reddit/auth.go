package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reddwatch/reddwatch/pkg/config"
	"github.com/reddwatch/reddwatch/pkg/logging"
)

// tokenLifetime is how long a bearer token is trusted before the background
// loop exchanges credentials again
const tokenLifetime = 30 * time.Minute

// TokenProvider supplies the current bearer token for outbound requests
type TokenProvider interface {
	Token() string
}

// TokenSource maintains a bearer token via the password-grant OAuth flow.
// The initial exchange happens synchronously in NewTokenSource; afterwards a
// background loop refreshes the token without ever blocking request issuance,
// so readers see the stale token until the refresh lands.
type TokenSource struct {
	authURL    string
	clientID   string
	secret     string
	username   string
	password   string
	userAgent  string
	httpClient *http.Client
	logger     *zap.Logger

	mu       sync.Mutex
	token    string
	deadline time.Time
}

// NewTokenSource performs the initial credential exchange and returns a ready
// token source. Call Start to keep the token fresh.
func NewTokenSource(cfg *config.RedditConfig) (*TokenSource, error) {
	ts := &TokenSource{
		authURL:   strings.TrimRight(cfg.AuthEndpoint, "/") + "/api/v1/access_token",
		clientID:  cfg.ClientID,
		secret:    cfg.ClientSecret,
		username:  cfg.Username,
		password:  cfg.Password,
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Timeout: cfg.ReadTimeout,
		},
		logger: logging.GetLogger().With(zap.String("component", "reddit-auth")),
	}

	ts.logger.Info("Performing initial authentication request")
	if err := ts.refresh(context.Background()); err != nil {
		return nil, fmt.Errorf("initial authentication failed: %w", err)
	}

	return ts, nil
}

// Token returns the current bearer token
func (ts *TokenSource) Token() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.token
}

// Start runs the refresh loop until ctx is cancelled, waking every second and
// re-authenticating once the deadline has passed. Refresh failures are logged
// and retried on the next wake; the previous token stays in use.
func (ts *TokenSource) Start(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !ts.expired() {
				continue
			}
			ts.logger.Info("Reauthenticating with reddit")
			if err := ts.refresh(ctx); err != nil {
				ts.logger.Error("Reauthentication failed", zap.Error(err))
			}
		}
	}
}

func (ts *TokenSource) expired() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.token == "" || !time.Now().Before(ts.deadline)
}

// refresh performs one synchronous password-grant exchange
func (ts *TokenSource) refresh(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", ts.username)
	form.Set("password", ts.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(ts.clientID, ts.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", ts.userAgent)

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return &ClientError{Op: "access_token", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ClientError{Op: "access_token", Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &ClientError{Op: "access_token", Err: err}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return &ClientError{Op: "access_token", Err: err}
	}
	if payload.AccessToken == "" {
		return &ClientError{Op: "access_token", Err: fmt.Errorf("response carried no access_token")}
	}

	ts.mu.Lock()
	ts.token = payload.AccessToken
	ts.deadline = time.Now().Add(tokenLifetime)
	ts.mu.Unlock()

	ts.logger.Info("Acquired new bearer token")
	return nil
}
