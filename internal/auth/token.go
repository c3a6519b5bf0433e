// Package auth manages the short-lived IAM bearer token for the model
// service: fetched on first use, cached until a refresh margin before
// expiry, refreshed behind a single in-flight exchange, and invalidated
// when a downstream call rejects a token believed valid.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"secondbrain/internal/domain"
	"secondbrain/internal/log"
)

const grantType = "urn:ibm:params:oauth:grant-type:apikey"

// Config carries the long-lived credentials used for the token exchange.
type Config struct {
	APIKey   string
	TokenURL string
	// RefreshMargin is how long before expiry a token counts as expiring.
	RefreshMargin time.Duration
	Timeout       time.Duration
	MaxAttempts   int
}

// Manager is the process-wide token cache. One instance per credential
// source, injected by handle into the model client.
type Manager struct {
	cfg    Config
	client *http.Client
	logger log.Logger

	group singleflight.Group
	now   func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewManager(cfg Config, logger log.Logger) *Manager {
	if cfg.RefreshMargin == 0 {
		cfg.RefreshMargin = 5 * time.Minute
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	return &Manager{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		now:    time.Now,
	}
}

// Token returns a valid bearer token, refreshing synchronously when the
// cached one is missing, expiring soon, or was invalidated. Concurrent
// callers share a single in-flight exchange.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if tok, ok := m.cached(); ok {
		return tok, nil
	}
	v, err, _ := m.group.Do("token", func() (any, error) {
		// another caller may have refreshed while we queued
		if tok, ok := m.cached(); ok {
			return tok, nil
		}
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate discards the cached token so the next Token call performs a
// fresh exchange. Covers clock skew and early revocation the expiry timer
// alone would miss.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.token = ""
	m.expiresAt = time.Time{}
	m.mu.Unlock()
	m.logger.Info("bearer token invalidated")
}

func (m *Manager) cached() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return "", false
	}
	if m.now().After(m.expiresAt.Add(-m.cfg.RefreshMargin)) {
		return "", false
	}
	return m.token, true
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type": {grantType},
		"apikey":     {m.cfg.APIKey},
	}

	var token string
	var expiresIn int
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL, strings.NewReader(form.Encode()))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")

		resp, err := m.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrTimeout, err))
			}
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode >= 500:
			return fmt.Errorf("token endpoint: %s", resp.Status)
		default:
			// 4xx means the credentials themselves are bad; retrying
			// the same exchange cannot help
			return backoff.Permanent(&domain.UpstreamError{
				Kind: domain.ErrAuthFailed, Status: resp.StatusCode, Body: string(body),
			})
		}
		var out struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int    `json:"expires_in"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return fmt.Errorf("decode token response: %w", err)
		}
		if out.AccessToken == "" {
			return fmt.Errorf("token response without access_token")
		}
		token = out.AccessToken
		expiresIn = out.ExpiresIn
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 200 * time.Millisecond
	exp.MaxInterval = 2 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(m.cfg.MaxAttempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, domain.ErrAuthFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrAuthFailed, err)
	}

	if expiresIn <= 0 {
		expiresIn = 3600
	}
	m.mu.Lock()
	m.token = token
	m.expiresAt = m.now().Add(time.Duration(expiresIn) * time.Second)
	m.mu.Unlock()
	m.logger.Info("bearer token refreshed", "expires_in", expiresIn)
	return token, nil
}
