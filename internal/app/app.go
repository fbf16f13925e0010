package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/threadsense/internal/config"
	"github.com/ibeckermayer/threadsense/internal/report"
	"github.com/ibeckermayer/threadsense/internal/scraper"
	"github.com/ibeckermayer/threadsense/internal/store"
	"github.com/ibeckermayer/threadsense/internal/types"
)

var (
	// ErrInsightsDisabled means no summarizer is configured
	ErrInsightsDisabled = errors.New("insights are disabled")
	// ErrArchiveDisabled means no archive is configured
	ErrArchiveDisabled = errors.New("archive is disabled")
)

// Scraper extracts a post and its comments
type Scraper interface {
	Scrape(ctx context.Context, req scraper.Request) (*types.ScrapeResult, error)
}

// Analyzer classifies sentiment
type Analyzer interface {
	Classify(ctx context.Context, text string) (types.Sentiment, error)
	AnalyzeComments(ctx context.Context, comments []types.Comment) ([]types.CommentSentiment, error)
	Ping(ctx context.Context) error
	Name() string
}

// Summarizer writes insights for a classified thread
type Summarizer interface {
	Summarize(ctx context.Context, dist types.Distribution, comments []types.CommentSentiment) (string, error)
}

// Archive keeps past scrapes
type Archive interface {
	Save(r *types.ScrapeResult) (string, error)
	SaveAnalysis(scrapeID string, results []types.CommentSentiment) error
	List(limit int) ([]store.Scrape, error)
	Get(id string) (*store.Scrape, error)
}

// SessionStatus reports whether stored browser cookies are usable
type SessionStatus interface {
	IsAuthenticated() bool
}

// Components are the parts rebuilt when the configuration changes
type Components struct {
	Scraper    Scraper
	Analyzer   Analyzer
	Summarizer Summarizer // nil when insights are disabled
	Sessions   SessionStatus
}

// Factory builds Components from a configuration
type Factory func(cfg *config.Config) (*Components, error)

// App holds the application state.
type App struct {
	mu sync.RWMutex

	// Immutable after creation. archive may be nil.
	archive Archive
	reports *report.Builder
	factory Factory
	load    func() (*config.Config, error)
	log     logrus.FieldLogger

	// Mutable fields - use getSnapshot() for concurrent access.
	config     *config.Config
	scraper    Scraper
	analyzer   Analyzer
	summarizer Summarizer
	sessions   SessionStatus
}

// snapshot holds fields that may be replaced by ReloadConfig.
// Use getSnapshot() to obtain a consistent, point-in-time copy.
type snapshot struct {
	config     *config.Config
	scraper    Scraper
	analyzer   Analyzer
	summarizer Summarizer
	sessions   SessionStatus
}

// getSnapshot returns a snapshot of mutable fields under read lock.
func (a *App) getSnapshot() snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return snapshot{
		config:     a.config,
		scraper:    a.scraper,
		analyzer:   a.analyzer,
		summarizer: a.summarizer,
		sessions:   a.sessions,
	}
}

// New creates a new App instance. archive may be nil.
func New(cfg *config.Config, factory Factory, archive Archive, log logrus.FieldLogger) (*App, error) {
	c, err := factory(cfg)
	if err != nil {
		return nil, err
	}

	reports, err := report.New(280)
	if err != nil {
		return nil, err
	}

	return &App{
		archive:    archive,
		reports:    reports,
		factory:    factory,
		load:       config.Load,
		log:        log.WithField("component", "app"),
		config:     cfg,
		scraper:    c.Scraper,
		analyzer:   c.Analyzer,
		summarizer: c.Summarizer,
		sessions:   c.Sessions,
	}, nil
}

// Config returns the current configuration
func (a *App) Config() *config.Config {
	return a.getSnapshot().config
}

// ScrapePost scrapes a post and archives the result when the archive is on
func (a *App) ScrapePost(ctx context.Context, req scraper.Request) (*types.ScrapeResult, error) {
	result, _, err := a.scrape(ctx, req)
	return result, err
}

func (a *App) scrape(ctx context.Context, req scraper.Request) (*types.ScrapeResult, string, error) {
	s := a.getSnapshot()

	result, err := s.scraper.Scrape(ctx, req)
	if err != nil {
		return nil, "", err
	}

	id := ""
	if a.archive != nil {
		if id, err = a.archive.Save(result); err != nil {
			a.log.WithError(err).Warn("failed to archive scrape")
			id = ""
		} else {
			a.log.WithField("scrape_id", id).Debug("archived scrape")
		}
	}
	return result, id, nil
}

// Classify labels one text
func (a *App) Classify(ctx context.Context, text string) (types.Sentiment, error) {
	return a.getSnapshot().analyzer.Classify(ctx, text)
}

// Analysis is a scraped post with classified comments
type Analysis struct {
	ScrapeID string
	Result   *types.ScrapeResult
	Comments []types.CommentSentiment
}

// AnalyzePost scrapes a post and classifies every comment in discovery order
func (a *App) AnalyzePost(ctx context.Context, req scraper.Request) (*Analysis, error) {
	result, id, err := a.scrape(ctx, req)
	if err != nil {
		return nil, err
	}

	an, err := a.AnalyzeResult(ctx, result)
	if err != nil {
		return nil, err
	}
	an.ScrapeID = id
	comments := an.Comments

	if id != "" {
		if err := a.archive.SaveAnalysis(id, comments); err != nil {
			a.log.WithError(err).WithField("scrape_id", id).Warn("failed to archive analysis")
		}
	}

	a.log.WithFields(logrus.Fields{
		"post_url":     req.PostURL,
		"comments":     len(comments),
		"distribution": types.Tally(comments),
	}).Info("analysis complete")

	return an, nil
}

// AnalyzeResult classifies the comments of an already scraped post, such as
// a result replayed from the step cache. Nothing is archived.
func (a *App) AnalyzeResult(ctx context.Context, result *types.ScrapeResult) (*Analysis, error) {
	comments, err := a.getSnapshot().analyzer.AnalyzeComments(ctx, result.Comments)
	if err != nil {
		return nil, err
	}
	return &Analysis{Result: result, Comments: comments}, nil
}

// Summarize writes insights for a classified thread
func (a *App) Summarize(ctx context.Context, dist types.Distribution, comments []types.CommentSentiment) (string, error) {
	s := a.getSnapshot()
	if s.summarizer == nil {
		return "", ErrInsightsDisabled
	}
	return s.summarizer.Summarize(ctx, dist, comments)
}

// Report renders an analysis as HTML and plain text
func (a *App) Report(an *Analysis, summary string) (*report.Report, error) {
	return a.reports.Build(an.Result.Post, an.Comments, summary)
}

// ListScrapes returns recent archived scrapes
func (a *App) ListScrapes(limit int) ([]store.Scrape, error) {
	if a.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return a.archive.List(limit)
}

// GetScrape returns one archived scrape
func (a *App) GetScrape(id string) (*store.Scrape, error) {
	if a.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return a.archive.Get(id)
}

// Status describes the running service
type Status struct {
	Service       string `json:"service"`
	Provider      string `json:"sentiment_provider"`
	ModelHealthy  bool   `json:"model_healthy"`
	ModelError    string `json:"model_error,omitempty"`
	Authenticated bool   `json:"cookies_valid"`
	Insights      bool   `json:"insights_enabled"`
	Archive       bool   `json:"archive_enabled"`
	MaxComments   int    `json:"max_comments"`
}

// Status checks the sentiment provider and reports what is enabled
func (a *App) Status(ctx context.Context) Status {
	s := a.getSnapshot()

	st := Status{
		Service:       "threadsense",
		Provider:      s.analyzer.Name(),
		ModelHealthy:  true,
		Authenticated: s.sessions != nil && s.sessions.IsAuthenticated(),
		Insights:      s.summarizer != nil,
		Archive:       a.archive != nil,
		MaxComments:   s.config.Scraping.MaxComments,
	}
	if err := s.analyzer.Ping(ctx); err != nil {
		st.ModelHealthy = false
		st.ModelError = err.Error()
	}
	return st
}

// ReloadConfig reloads the configuration from disk and rebuilds the
// scraper, analyzer and summarizer. In-flight requests finish with the
// components they started with.
func (a *App) ReloadConfig() error {
	cfg, err := a.load()
	if err != nil {
		return err
	}

	c, err := a.factory(cfg)
	if err != nil {
		return fmt.Errorf("failed to rebuild components: %w", err)
	}

	a.mu.Lock()
	a.config = cfg
	a.scraper = c.Scraper
	a.analyzer = c.Analyzer
	a.summarizer = c.Summarizer
	a.sessions = c.Sessions
	a.mu.Unlock()

	a.log.Info("configuration reloaded")
	return nil
}
