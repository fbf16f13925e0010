package app

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/threadsense/internal/analyzer"
	"github.com/ibeckermayer/threadsense/internal/auth"
	"github.com/ibeckermayer/threadsense/internal/browser"
	"github.com/ibeckermayer/threadsense/internal/config"
	"github.com/ibeckermayer/threadsense/internal/insights"
	"github.com/ibeckermayer/threadsense/internal/scraper"
)

// OpenCookieStore returns the cookie store named in cfg, or the default one
func OpenCookieStore(cfg config.FacebookConfig) (*auth.CookieStore, error) {
	path := cfg.CookiesPath
	if path == "" {
		var err error
		if path, err = auth.DefaultCookieStorePath(); err != nil {
			return nil, err
		}
	}
	return auth.NewCookieStore(path), nil
}

// NewAuthManager builds the Facebook sign-in manager for cfg
func NewAuthManager(cfg *config.Config, log logrus.FieldLogger) (*auth.Manager, error) {
	cookies, err := OpenCookieStore(cfg.Facebook)
	if err != nil {
		return nil, err
	}
	return auth.NewManager(cfg.Facebook, cookies.WithLogger(log), cfg.Scraping.SettleDelay(), log), nil
}

// SessionFactory opens headless browser sessions configured by cfg
func SessionFactory(cfg config.ScrapingConfig, log logrus.FieldLogger) scraper.SessionFactory {
	opts := browser.SessionOptions{
		Headless:  cfg.Headless,
		UserAgent: cfg.UserAgent,
	}
	return func(ctx context.Context) (scraper.Session, error) {
		s, err := browser.NewSession(ctx, opts, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// NewFactory returns the Factory used in production: a chromedp scraper,
// the configured sentiment provider and, when enabled, Claude insights.
func NewFactory(log logrus.FieldLogger) Factory {
	return func(cfg *config.Config) (*Components, error) {
		authManager, err := NewAuthManager(cfg, log)
		if err != nil {
			return nil, err
		}

		an, err := analyzer.New(cfg.Sentiment, cfg.Debug.DumpSteps, log)
		if err != nil {
			return nil, err
		}

		c := &Components{
			Scraper:  scraper.New(cfg.Scraping, SessionFactory(cfg.Scraping, log), authManager, cfg.Debug.DumpSteps, log),
			Analyzer: an,
			Sessions: authManager,
		}

		if cfg.Insights.Enabled {
			s, err := insights.New(cfg.Insights, cfg.Debug.DumpSteps, log)
			if err != nil {
				return nil, err
			}
			c.Summarizer = s
		}
		return c, nil
	}
}
