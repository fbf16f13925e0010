package app

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/threadsense/internal/config"
	"github.com/ibeckermayer/threadsense/internal/scraper"
	"github.com/ibeckermayer/threadsense/internal/store"
	"github.com/ibeckermayer/threadsense/internal/types"
)

type fakeScraper struct {
	result *types.ScrapeResult
	err    error
	reqs   []scraper.Request
}

func (f *fakeScraper) Scrape(ctx context.Context, req scraper.Request) (*types.ScrapeResult, error) {
	f.reqs = append(f.reqs, req)
	return f.result, f.err
}

type fakeAnalyzer struct {
	name    string
	pingErr error
	err     error
}

func (f *fakeAnalyzer) Classify(ctx context.Context, text string) (types.Sentiment, error) {
	return types.Sentiment{Label: types.Neutral, Confidence: 1}, f.err
}

func (f *fakeAnalyzer) AnalyzeComments(ctx context.Context, comments []types.Comment) ([]types.CommentSentiment, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.CommentSentiment, len(comments))
	for i, c := range comments {
		out[i] = types.CommentSentiment{Comment: c.Text, Author: c.Author, Sentiment: types.Positive, Confidence: 0.9}
	}
	return out, nil
}

func (f *fakeAnalyzer) Ping(ctx context.Context) error { return f.pingErr }
func (f *fakeAnalyzer) Name() string                   { return f.name }

type fakeArchive struct {
	saved    []*types.ScrapeResult
	analyses map[string][]types.CommentSentiment
	saveErr  error
}

func (f *fakeArchive) Save(r *types.ScrapeResult) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.saved = append(f.saved, r)
	return "scrape-1", nil
}

func (f *fakeArchive) SaveAnalysis(id string, results []types.CommentSentiment) error {
	if f.analyses == nil {
		f.analyses = make(map[string][]types.CommentSentiment)
	}
	f.analyses[id] = results
	return nil
}

func (f *fakeArchive) List(limit int) ([]store.Scrape, error) {
	return []store.Scrape{{ID: "scrape-1"}}, nil
}

func (f *fakeArchive) Get(id string) (*store.Scrape, error) {
	return nil, store.ErrNotFound
}

type staticStatus bool

func (s staticStatus) IsAuthenticated() bool { return bool(s) }

func sampleResult() *types.ScrapeResult {
	return &types.ScrapeResult{
		Post: types.Post{Content: "Hi", URL: "https://x/1"},
		Comments: []types.Comment{
			{Text: "A", Author: "u1"},
			{Text: "B", Author: "u2"},
		},
		Metadata: types.Metadata{TotalComments: 2, StopReason: types.StopExhausted},
	}
}

func newTestApp(t *testing.T, c *Components, archive Archive) *App {
	t.Helper()
	log, _ := test.NewNullLogger()
	factory := func(cfg *config.Config) (*Components, error) { return c, nil }
	if c.Sessions == nil {
		c.Sessions = staticStatus(true)
	}
	a, err := New(config.Default(), factory, archive, log)
	require.NoError(t, err)
	return a
}

func TestAnalyzePost(t *testing.T) {
	sc := &fakeScraper{result: sampleResult()}
	archive := &fakeArchive{}
	a := newTestApp(t, &Components{Scraper: sc, Analyzer: &fakeAnalyzer{}}, archive)

	req := scraper.Request{PostURL: "https://x/1"}
	an, err := a.AnalyzePost(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "scrape-1", an.ScrapeID)
	require.Len(t, an.Comments, 2)
	assert.Equal(t, "u1", an.Comments[0].Author)
	assert.Equal(t, "u2", an.Comments[1].Author)
	assert.Equal(t, []scraper.Request{req}, sc.reqs)

	require.Len(t, archive.saved, 1)
	assert.Equal(t, an.Comments, archive.analyses["scrape-1"])

	r, err := a.Report(an, "")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Distribution[types.Positive])
}

func TestAnalyzePost_ScrapeError(t *testing.T) {
	archive := &fakeArchive{}
	a := newTestApp(t, &Components{Scraper: &fakeScraper{err: scraper.ErrNavigation}, Analyzer: &fakeAnalyzer{}}, archive)

	_, err := a.AnalyzePost(context.Background(), scraper.Request{PostURL: "https://x/1"})
	assert.ErrorIs(t, err, scraper.ErrNavigation)
	assert.Empty(t, archive.saved)
}

func TestScrapePost_ArchiveFailureIsNotFatal(t *testing.T) {
	archive := &fakeArchive{saveErr: errors.New("disk full")}
	a := newTestApp(t, &Components{Scraper: &fakeScraper{result: sampleResult()}, Analyzer: &fakeAnalyzer{}}, archive)

	res, err := a.ScrapePost(context.Background(), scraper.Request{PostURL: "https://x/1"})
	require.NoError(t, err)
	assert.Equal(t, "Hi", res.Post.Content)
}

func TestDisabledFeatures(t *testing.T) {
	a := newTestApp(t, &Components{Scraper: &fakeScraper{}, Analyzer: &fakeAnalyzer{}}, nil)

	_, err := a.Summarize(context.Background(), nil, []types.CommentSentiment{{Comment: "x"}})
	assert.ErrorIs(t, err, ErrInsightsDisabled)

	_, err = a.ListScrapes(10)
	assert.ErrorIs(t, err, ErrArchiveDisabled)

	_, err = a.GetScrape("x")
	assert.ErrorIs(t, err, ErrArchiveDisabled)
}

func TestStatus(t *testing.T) {
	an := &fakeAnalyzer{name: "remote", pingErr: errors.New("connection refused")}
	a := newTestApp(t, &Components{Scraper: &fakeScraper{}, Analyzer: an}, &fakeArchive{})

	st := a.Status(context.Background())
	assert.Equal(t, "remote", st.Provider)
	assert.False(t, st.ModelHealthy)
	assert.Contains(t, st.ModelError, "connection refused")
	assert.True(t, st.Authenticated)
	assert.True(t, st.Archive)
	assert.False(t, st.Insights)
	assert.Equal(t, 50, st.MaxComments)
}

func TestReloadConfig(t *testing.T) {
	log, _ := test.NewNullLogger()
	builds := 0
	factory := func(cfg *config.Config) (*Components, error) {
		builds++
		return &Components{
			Scraper:  &fakeScraper{},
			Analyzer: &fakeAnalyzer{name: cfg.Sentiment.Provider},
			Sessions: staticStatus(cfg.Facebook.CookiesPath != ""),
		}, nil
	}
	a, err := New(config.Default(), factory, nil, log)
	require.NoError(t, err)
	assert.False(t, a.Status(context.Background()).Authenticated)
	require.NoError(t, err)

	next := config.Default()
	next.Sentiment.Provider = config.ProviderAnthropic
	next.Scraping.MaxComments = 10
	next.Facebook.CookiesPath = "/tmp/other-cookies.json"
	a.load = func() (*config.Config, error) { return next, nil }

	require.NoError(t, a.ReloadConfig())
	assert.Equal(t, 2, builds)
	assert.Equal(t, 10, a.Config().Scraping.MaxComments)
	st := a.Status(context.Background())
	assert.Equal(t, config.ProviderAnthropic, st.Provider)
	assert.True(t, st.Authenticated, "cookie status follows the reloaded config")

	a.load = func() (*config.Config, error) { return nil, errors.New("bad toml") }
	assert.Error(t, a.ReloadConfig())
	assert.Equal(t, 10, a.Config().Scraping.MaxComments, "failed reload keeps the old config")
}

func TestAnalyzeResult(t *testing.T) {
	archive := &fakeArchive{}
	sc := &fakeScraper{}
	a := newTestApp(t, &Components{Scraper: sc, Analyzer: &fakeAnalyzer{}}, archive)

	an, err := a.AnalyzeResult(context.Background(), sampleResult())
	require.NoError(t, err)

	assert.Empty(t, an.ScrapeID)
	require.Len(t, an.Comments, 2)
	assert.Equal(t, "A", an.Comments[0].Comment)
	assert.Empty(t, sc.reqs, "replaying never scrapes")
	assert.Empty(t, archive.saved)
	assert.Empty(t, archive.analyses)
}
