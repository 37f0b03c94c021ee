// Package auth manages the two independent gateway secrets: the REST bearer
// token and the ephemeral WebSocket approval key.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrAuthUnavailable is returned when a credential exchange fails and no
// cached value exists to fall back on.
var ErrAuthUnavailable = errors.New("auth unavailable")

// Manager owns the cached credentials. A request for either value returns
// the cached one or synchronously fetches it; concurrent requesters of an
// absent value coalesce onto a single exchange call. No lock is ever held
// across a network call.
type Manager struct {
	client *Client
	logger *slog.Logger

	// rotateDelay lets an upstream revoke propagate before re-fetching.
	rotateDelay time.Duration

	mu          sync.RWMutex
	accessToken string
	approvalKey string

	group singleflight.Group
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRotateDelay overrides the propagation wait used by ForceRotate and
// FullReset.
func WithRotateDelay(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.rotateDelay = d
	}
}

// NewManager creates a credential manager backed by the given exchange
// client.
func NewManager(client *Client, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		client:      client,
		logger:      logger,
		rotateDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AccessToken returns the cached bearer token, fetching one synchronously if
// absent. Fails with ErrAuthUnavailable when the exchange errors and no
// cached value exists.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	token := m.accessToken
	m.mu.RUnlock()
	if token != "" {
		return token, nil
	}

	v, err, _ := m.group.Do("access_token", func() (any, error) {
		token, err := m.client.FetchAccessToken(ctx)
		if err != nil {
			return "", err
		}
		m.mu.Lock()
		m.accessToken = token
		m.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}
	return v.(string), nil
}

// ApprovalKey returns the cached WebSocket approval key, fetching one
// synchronously if absent.
func (m *Manager) ApprovalKey(ctx context.Context) (string, error) {
	m.mu.RLock()
	key := m.approvalKey
	m.mu.RUnlock()
	if key != "" {
		return key, nil
	}

	v, err, _ := m.group.Do("approval_key", func() (any, error) {
		key, err := m.client.FetchApprovalKey(ctx)
		if err != nil {
			return "", err
		}
		m.mu.Lock()
		m.approvalKey = key
		m.mu.Unlock()
		return key, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}
	return v.(string), nil
}

// RefreshAccessToken unconditionally fetches a new bearer token. The server
// side expiry is not observable from here, so the caller refreshes on a
// fixed daily schedule instead of waiting for opaque REST failures.
func (m *Manager) RefreshAccessToken(ctx context.Context) error {
	token, err := m.client.FetchAccessToken(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.accessToken = token
	m.mu.Unlock()
	return nil
}

// ForceRotate invalidates the cached approval key, waits for the upstream
// revoke to propagate, then fetches a fresh one. Used when the gateway
// rejects the current key as stale and before every new connect attempt.
func (m *Manager) ForceRotate(ctx context.Context) (string, error) {
	m.logger.Info("forcing approval key rotation")

	m.mu.Lock()
	m.approvalKey = ""
	m.mu.Unlock()

	if err := m.wait(ctx, m.rotateDelay); err != nil {
		return "", err
	}

	key, err := m.client.FetchApprovalKey(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}

	m.mu.Lock()
	m.approvalKey = key
	m.mu.Unlock()
	return key, nil
}

// FullReset revokes the current bearer token, clears all cached values and
// re-fetches both credentials. This is the recovery path for a fully wedged
// session.
func (m *Manager) FullReset(ctx context.Context) (string, error) {
	m.logger.Warn("full auth reset initiated")

	m.mu.Lock()
	tokenToRevoke := m.accessToken
	m.accessToken = ""
	m.approvalKey = ""
	m.mu.Unlock()

	if tokenToRevoke != "" {
		if err := m.client.RevokeToken(ctx, tokenToRevoke); err != nil {
			// The token may already be invalid upstream.
			m.logger.Warn("token revoke failed", "error", err)
		}
	}

	if err := m.wait(ctx, m.rotateDelay); err != nil {
		return "", err
	}
	if err := m.RefreshAccessToken(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}

	if err := m.wait(ctx, m.rotateDelay/2); err != nil {
		return "", err
	}
	key, err := m.client.FetchApprovalKey(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}

	m.mu.Lock()
	m.approvalKey = key
	m.mu.Unlock()

	m.logger.Info("full auth reset complete")
	return key, nil
}

func (m *Manager) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
