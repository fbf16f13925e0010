package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/ibeckermayer/threadsense/internal/auth"
	"github.com/ibeckermayer/threadsense/internal/config"
	"github.com/ibeckermayer/threadsense/internal/store"
	"github.com/ibeckermayer/threadsense/internal/types"
)

// ErrInvalidURL means the post URL cannot be scraped
var ErrInvalidURL = errors.New("invalid post url")

// Session is a browser tab owned by one scrape request
type Session interface {
	Page
	auth.Browser
	Close() error
}

// Screenshotter is implemented by sessions that can capture the page
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// SessionFactory opens a fresh browser session
type SessionFactory func(ctx context.Context) (Session, error)

// Authenticator signs a session in before the post is opened
type Authenticator interface {
	Authenticate(ctx context.Context, b auth.Browser, override auth.Credentials) error
}

// Request is one scrape job
type Request struct {
	PostURL     string
	Credentials auth.Credentials
}

// Scraper extracts a post and its comment thread
type Scraper struct {
	cfg        config.ScrapingConfig
	newSession SessionFactory
	auth       Authenticator
	slots      *semaphore.Weighted
	dumpSteps  bool
	log        logrus.FieldLogger
	now        func() time.Time
}

// New creates a new scraper
func New(cfg config.ScrapingConfig, newSession SessionFactory, authenticator Authenticator, dumpSteps bool, log logrus.FieldLogger) *Scraper {
	return &Scraper{
		cfg:        cfg,
		newSession: newSession,
		auth:       authenticator,
		slots:      semaphore.NewWeighted(int64(max(cfg.MaxSessions, 1))),
		dumpSteps:  dumpSteps,
		log:        log.WithField("component", "scraper"),
		now:        time.Now,
	}
}

// ValidatePostURL checks that raw is an absolute http(s) URL
func ValidatePostURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}

// Scrape opens a browser session, signs in, loads the post and expands
// its comment thread. The session is closed on every return path.
//
// When the request deadline passes during expansion the result holds what
// was collected so far. A fatal failure during expansion is returned as a
// *ScrapeError carrying the partial result.
func (s *Scraper) Scrape(ctx context.Context, req Request) (*types.ScrapeResult, error) {
	if err := ValidatePostURL(req.PostURL); err != nil {
		return nil, err
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: waiting for a browser slot: %v", ErrSessionFatal, err)
	}
	defer s.slots.Release(1)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout())
	defer cancel()

	log := s.log.WithField("post_url", req.PostURL)
	start := s.now()

	sess, err := s.newSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionFatal, err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.WithError(err).Warn("failed to close browser session")
		}
	}()

	if err := s.auth.Authenticate(ctx, sess, req.Credentials); err != nil {
		return nil, err
	}

	if err := s.navigate(ctx, sess, req.PostURL, log); err != nil {
		return nil, err
	}

	post, err := s.capturePost(ctx, sess, req.PostURL)
	if err != nil {
		return nil, err
	}
	log.WithField("content_len", len(post.Content)).Info("captured post")

	expander := NewExpander(sess, ExpandOptions{
		MaxComments:    s.cfg.MaxComments,
		StallTolerance: s.cfg.StallTolerance,
		MaxIterations:  s.cfg.MaxIterations,
		SettleDelay:    s.cfg.SettleDelay(),
		Labels:         s.cfg.LoadMoreLabels,
	}, log)

	out, loopErr := expander.Run(ctx)
	result := Assemble(post, out, s.cfg.MaxComments, s.now())

	if s.dumpSteps {
		s.dump(sess, result, log)
	}

	if loopErr != nil {
		return nil, &ScrapeError{Err: loopErr, Partial: result}
	}

	log.WithFields(logrus.Fields{
		"comments":    result.Metadata.TotalComments,
		"stop_reason": result.Metadata.StopReason,
		"iterations":  result.Metadata.Iterations,
		"actions":     result.Metadata.ExpansionActionsTaken,
		"elapsed":     s.now().Sub(start).Round(time.Millisecond),
	}).Info("scrape complete")

	return result, nil
}

// navigate loads the post, retrying per configuration
func (s *Scraper) navigate(ctx context.Context, sess Session, postURL string, log logrus.FieldLogger) error {
	var err error
	for attempt := 0; attempt <= s.cfg.NavigationRetries; attempt++ {
		navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout())
		err = sess.Navigate(navCtx, postURL)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		log.WithError(err).WithField("attempt", attempt+1).Warn("navigation failed")
	}
	return fmt.Errorf("%w: %s: %v", ErrNavigation, postURL, err)
}

// capturePost reads the post once, before any expansion
func (s *Scraper) capturePost(ctx context.Context, sess Session, requested string) (types.Post, error) {
	html, err := sess.HTML(ctx)
	if err != nil {
		return types.Post{}, fmt.Errorf("%w: failed to read post page: %v", ErrSessionFatal, err)
	}
	snap, err := ParseSnapshot(html)
	if err != nil {
		return types.Post{}, fmt.Errorf("%w: %v", ErrSessionFatal, err)
	}

	location, err := sess.Location(ctx)
	if err != nil || location == "" {
		s.log.WithError(err).Debug("falling back to requested url")
		location = requested
	}
	return snap.Post(location), nil
}

// dump writes the final page and result to the cache dir. The request
// context may be spent, so it runs on a short detached one.
func (s *Scraper) dump(sess Session, result *types.ScrapeResult, log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if path, err := store.SaveStepOutput(store.StepResult, result); err != nil {
		log.WithError(err).Warn("failed to dump result")
	} else {
		log.WithField("path", path).Debug("dumped result")
	}

	if html, err := sess.HTML(ctx); err == nil {
		if path, err := store.SaveRawOutput(store.StepSnapshot, []byte(html), ".html"); err != nil {
			log.WithError(err).Warn("failed to dump page html")
		} else {
			log.WithField("path", path).Debug("dumped page html")
		}
	}

	if shooter, ok := sess.(Screenshotter); ok {
		if buf, err := shooter.Screenshot(ctx); err == nil {
			if path, err := store.SaveRawOutput(store.StepScreenshot, buf, ".jpg"); err != nil {
				log.WithError(err).Warn("failed to dump screenshot")
			} else {
				log.WithField("path", path).Debug("dumped screenshot")
			}
		}
	}
}
