package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/threadsense/internal/config"
)

var (
	// ErrAuthentication means the site rejected the login or asked for a
	// checkpoint. It is never retried.
	ErrAuthentication = errors.New("authentication failed")

	// ErrMissingCredentials means no credentials or cookies are available
	// while login is required
	ErrMissingCredentials = errors.New("no credentials configured")
)

// Login page selectors
const (
	LoginEmail         = `#email`
	LoginPassword      = `#pass`
	LoginButton        = `button[name="login"]`
	CookieBannerAccept = `button[data-cookiebanner="accept_button"]`
)

// Browser is the part of a browser session needed to sign in
type Browser interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	SendKeys(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	ClickIfPresent(ctx context.Context, selector string) (bool, error)
	SetCookies(ctx context.Context, cookies []*network.Cookie) error
}

// Credentials for a form login
type Credentials struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

// Complete reports whether both fields are set
func (c Credentials) Complete() bool {
	return c.Email != "" && c.Password != ""
}

// Manager signs browser sessions in to Facebook
type Manager struct {
	cfg         config.FacebookConfig
	cookieStore *CookieStore
	settle      time.Duration
	log         logrus.FieldLogger
}

// NewManager creates a new auth manager. cookieStore may be nil.
func NewManager(cfg config.FacebookConfig, cookieStore *CookieStore, settle time.Duration, log logrus.FieldLogger) *Manager {
	return &Manager{
		cfg:         cfg,
		cookieStore: cookieStore,
		settle:      settle,
		log:         log.WithField("component", "auth"),
	}
}

// Method is how a session was signed in
type Method string

const (
	MethodRequest   Method = "request"
	MethodConfig    Method = "config"
	MethodCookies   Method = "cookies"
	MethodAnonymous Method = "anonymous"
)

// Resolve picks the credential source: explicit credentials first, then
// configured ones, then a valid cookie file.
func (m *Manager) Resolve(override Credentials) (Method, Credentials, error) {
	if override.Complete() {
		return MethodRequest, override, nil
	}
	configured := Credentials{Email: m.cfg.Email, Password: m.cfg.Password}
	if configured.Complete() {
		return MethodConfig, configured, nil
	}
	if m.cookieStore != nil && m.cookieStore.IsValid() {
		return MethodCookies, Credentials{}, nil
	}
	if m.cfg.RequireLogin {
		return "", Credentials{}, ErrMissingCredentials
	}
	return MethodAnonymous, Credentials{}, nil
}

// IsAuthenticated checks if we have valid stored cookies
func (m *Manager) IsAuthenticated() bool {
	return m.cookieStore != nil && m.cookieStore.IsValid()
}

// Authenticate signs b in using the first available credential source
func (m *Manager) Authenticate(ctx context.Context, b Browser, override Credentials) error {
	method, creds, err := m.Resolve(override)
	if err != nil {
		return err
	}
	m.log.WithField("method", method).Info("authenticating browser session")

	switch method {
	case MethodRequest, MethodConfig:
		return m.Login(ctx, b, creds)
	case MethodCookies:
		return m.restore(ctx, b)
	default:
		return nil
	}
}

// Login performs the form login
func (m *Manager) Login(ctx context.Context, b Browser, creds Credentials) error {
	if err := b.Navigate(ctx, m.cfg.BaseURL); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}

	if clicked, err := b.ClickIfPresent(ctx, CookieBannerAccept); err != nil {
		m.log.WithError(err).Debug("cookie banner check failed")
	} else if clicked {
		m.log.Debug("accepted cookie banner")
	}

	if err := b.SendKeys(ctx, LoginEmail, creds.Email); err != nil {
		return fmt.Errorf("%w: login form not found: %v", ErrAuthentication, err)
	}
	if err := b.SendKeys(ctx, LoginPassword, creds.Password); err != nil {
		return fmt.Errorf("%w: password field not found: %v", ErrAuthentication, err)
	}
	if err := b.Click(ctx, LoginButton); err != nil {
		return fmt.Errorf("%w: failed to submit login: %v", ErrAuthentication, err)
	}

	if err := sleep(ctx, m.settle); err != nil {
		return err
	}

	return m.checkLocation(ctx, b)
}

// restore injects stored cookies and confirms the session still works
func (m *Manager) restore(ctx context.Context, b Browser) error {
	cookies, err := m.cookieStore.SessionCookies()
	if err != nil {
		return fmt.Errorf("failed to load cookies: %w", err)
	}
	if err := b.SetCookies(ctx, cookies); err != nil {
		return fmt.Errorf("failed to inject cookies: %w", err)
	}
	if err := b.Navigate(ctx, m.cfg.BaseURL); err != nil {
		return fmt.Errorf("failed to open %s: %w", m.cfg.BaseURL, err)
	}
	return m.checkLocation(ctx, b)
}

// checkLocation fails when the browser landed on a login or checkpoint page
func (m *Manager) checkLocation(ctx context.Context, b Browser) error {
	url, err := b.Location(ctx)
	if err != nil {
		return fmt.Errorf("failed to read location after login: %w", err)
	}
	lower := strings.ToLower(url)
	if strings.Contains(lower, "checkpoint") || strings.Contains(lower, "/login") {
		return fmt.Errorf("%w: landed on %s", ErrAuthentication, url)
	}
	m.log.WithField("url", url).Debug("login succeeded")
	return nil
}

// Logout clears stored cookies
func (m *Manager) Logout() error {
	if m.cookieStore == nil {
		return nil
	}
	if err := m.cookieStore.Clear(); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
