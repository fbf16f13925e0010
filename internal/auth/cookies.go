package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/threadsense/internal/config"
)

// Cookies that make up a logged-in Facebook session
const (
	cookieUserID  = "c_user"
	cookieSession = "xs"
)

// CookieStore handles storage of Facebook session cookies
type CookieStore struct {
	path string
	now  func() time.Time
	log  logrus.FieldLogger
}

// StoredCookies represents the persisted cookie data
type StoredCookies struct {
	Cookies    []Cookie  `json:"cookies"`
	CapturedAt time.Time `json:"captured_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Cookie is the on-disk form of a browser cookie. It keeps only the fields
// needed to restore a session, as plain strings, so files exported by other
// tools load even when they leave out browser-specific enums.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

func fromNetwork(c *network.Cookie) Cookie {
	return Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  c.Expires,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: string(c.SameSite),
	}
}

// Network converts the cookie for injection into the browser
func (c Cookie) Network() *network.Cookie {
	return &network.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  c.Expires,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: network.CookieSameSite(c.SameSite),
	}
}

// NetworkCookies converts every stored cookie
func (s *StoredCookies) NetworkCookies() []*network.Cookie {
	out := make([]*network.Cookie, len(s.Cookies))
	for i, c := range s.Cookies {
		out[i] = c.Network()
	}
	return out
}

// NewCookieStore creates a cookie store at the given path
func NewCookieStore(path string) *CookieStore {
	return &CookieStore{path: path, now: time.Now, log: logrus.StandardLogger()}
}

// WithLogger sets where unreadable cookie files are reported
func (cs *CookieStore) WithLogger(log logrus.FieldLogger) *CookieStore {
	cs.log = log
	return cs
}

// DefaultCookieStorePath returns the default path for cookie storage
func DefaultCookieStorePath() (string, error) {
	configDir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "cookies.json"), nil
}

// Path returns where the cookies live on disk
func (cs *CookieStore) Path() string {
	return cs.path
}

// Save persists cookies to disk
func (cs *CookieStore) Save(cookies []*network.Cookie) error {
	if err := os.MkdirAll(filepath.Dir(cs.path), 0700); err != nil {
		return err
	}

	// Session cookies without an expiry count as valid for a day
	var earliestExpiry time.Time
	for _, c := range cookies {
		if c.Name != cookieUserID && c.Name != cookieSession {
			continue
		}
		exp := cs.now().Add(24 * time.Hour)
		if c.Expires > 0 {
			exp = time.Unix(int64(c.Expires), 0)
		}
		if earliestExpiry.IsZero() || exp.Before(earliestExpiry) {
			earliestExpiry = exp
		}
	}

	saved := make([]Cookie, len(cookies))
	for i, c := range cookies {
		saved[i] = fromNetwork(c)
	}

	stored := StoredCookies{
		Cookies:    saved,
		CapturedAt: cs.now(),
		ExpiresAt:  earliestExpiry,
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(cs.path, data, 0600)
}

// Load retrieves cookies from disk
func (cs *CookieStore) Load() (*StoredCookies, error) {
	data, err := os.ReadFile(cs.path)
	if err != nil {
		return nil, err
	}

	var stored StoredCookies
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse cookie file %s: %w", cs.path, err)
	}

	return &stored, nil
}

// IsValid checks if stored cookies are present and not expired
func (cs *CookieStore) IsValid() bool {
	stored, err := cs.Load()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			cs.log.WithError(err).Warn("ignoring unreadable cookie file")
		}
		return false
	}
	return hasSession(stored.NetworkCookies()) && cs.now().Before(stored.ExpiresAt)
}

// Clear removes stored cookies
func (cs *CookieStore) Clear() error {
	return os.Remove(cs.path)
}

// SessionCookies returns only the facebook.com cookies
func (cs *CookieStore) SessionCookies() ([]*network.Cookie, error) {
	stored, err := cs.Load()
	if err != nil {
		return nil, err
	}

	var fbCookies []*network.Cookie
	for _, c := range stored.NetworkCookies() {
		if isFacebookDomain(c.Domain) {
			fbCookies = append(fbCookies, c)
		}
	}

	return fbCookies, nil
}

func isFacebookDomain(domain string) bool {
	d := strings.TrimPrefix(domain, ".")
	return d == "facebook.com" || strings.HasSuffix(d, ".facebook.com")
}

// hasSession reports whether cookies include a non-empty login session
func hasSession(cookies []*network.Cookie) bool {
	hasUser := false
	hasXS := false
	for _, c := range cookies {
		if c.Value == "" {
			continue
		}
		switch c.Name {
		case cookieUserID:
			hasUser = true
		case cookieSession:
			hasXS = true
		}
	}
	return hasUser && hasXS
}
