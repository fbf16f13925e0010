package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
)

// CookieBrowser is a visible browser the user logs in with by hand
type CookieBrowser interface {
	Navigate(ctx context.Context, url string) error
	Cookies(ctx context.Context) ([]*network.Cookie, error)
}

// Capture opens the login page in b, waits for the user to finish logging
// in and saves the resulting session cookies.
func (m *Manager) Capture(ctx context.Context, b CookieBrowser, timeout, poll time.Duration) error {
	if m.cookieStore == nil {
		return fmt.Errorf("no cookie store configured")
	}

	if err := b.Navigate(ctx, m.cfg.BaseURL); err != nil {
		return fmt.Errorf("failed to navigate to login page: %w", err)
	}

	cookies, err := m.waitForLogin(ctx, b, timeout, poll)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := m.cookieStore.Save(cookies); err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}

	m.log.WithField("path", m.cookieStore.Path()).Info("session cookies saved")
	return nil
}

// waitForLogin polls until the browser holds a logged-in session
func (m *Manager) waitForLogin(ctx context.Context, b CookieBrowser, timeout, poll time.Duration) ([]*network.Cookie, error) {
	deadline := time.After(timeout)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			return nil, fmt.Errorf("login timeout exceeded")
		case <-ticker.C:
			cookies, err := b.Cookies(ctx)
			if err != nil {
				m.log.WithError(err).Debug("failed to read cookies, retrying")
				continue
			}
			if hasSession(cookies) {
				return cookies, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
