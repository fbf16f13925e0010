package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/threadsense/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nested", "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(url string, scrapedAt time.Time, comments ...string) *types.ScrapeResult {
	r := &types.ScrapeResult{
		Post: types.Post{Content: "Hi", URL: url, Author: "Daily News"},
		Metadata: types.Metadata{
			ScrapedAt:  scrapedAt,
			StopReason: types.StopExhausted,
		},
	}
	for _, c := range comments {
		r.Comments = append(r.Comments, types.Comment{Text: c, Author: "u-" + c})
	}
	r.Metadata.TotalComments = len(r.Comments)
	return r
}

func TestStore_SaveGet(t *testing.T) {
	s := newTestStore(t)
	in := sampleResult("https://x/1", time.Now().UTC().Truncate(time.Second), "A", "B")

	id, err := s.Save(in)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "https://x/1", got.PostURL)
	assert.Equal(t, "Daily News", got.Author)
	assert.Equal(t, 2, got.Comments)
	assert.Equal(t, types.StopExhausted, got.StopReason)
	require.NotNil(t, got.Result)
	assert.Equal(t, in.Comments, got.Result.Comments)
	assert.Nil(t, got.Analysis)
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Analysis(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Save(sampleResult("https://x/1", time.Now(), "A", "B"))
	require.NoError(t, err)

	results := []types.CommentSentiment{
		{Comment: "A", Author: "u-A", Sentiment: types.Positive, Confidence: 0.9},
		{Comment: "B", Author: "u-B", Sentiment: types.Negative, Confidence: 0.7},
	}
	require.NoError(t, s.SaveAnalysis(id, results))
	// replacing is allowed
	require.NoError(t, s.SaveAnalysis(id, results[:1]))

	got, err := s.Get(id)
	require.NoError(t, err)
	require.NotNil(t, got.Analysis)
	assert.Equal(t, results[:1], got.Analysis.Results)
	assert.Equal(t, 1, got.Analysis.Distribution[types.Positive])
	assert.Equal(t, 0, got.Analysis.Distribution[types.Negative])
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, url := range []string{"https://x/1", "https://x/2", "https://x/3"} {
		_, err := s.Save(sampleResult(url, base.Add(time.Duration(i)*time.Hour), "A"))
		require.NoError(t, err)
	}

	list, err := s.List(2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "https://x/3", list[0].PostURL)
	assert.Equal(t, "https://x/2", list[1].PostURL)
	assert.Nil(t, list[0].Result)
}

func TestStore_Prune(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	oldID, err := s.Save(sampleResult("https://x/old", now.AddDate(0, 0, -40), "A"))
	require.NoError(t, err)
	require.NoError(t, s.SaveAnalysis(oldID, nil))
	newID, err := s.Save(sampleResult("https://x/new", now.AddDate(0, 0, -1), "A"))
	require.NoError(t, err)

	n, err := s.Prune(now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(oldID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(newID)
	assert.NoError(t, err)
}

func TestStepOutput(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	_, err := LatestStepFile(StepResult, ".json")
	assert.Error(t, err)

	path, err := SaveStepOutput(StepResult, sampleResult("https://x/1", time.Now(), "A"))
	require.NoError(t, err)
	assert.Equal(t, ".json", filepath.Ext(path))

	_, err = SaveRawOutput(StepResult, []byte("<html></html>"), ".html")
	require.NoError(t, err)

	got, latest, err := LoadLatestStepOutput[types.ScrapeResult](StepResult)
	require.NoError(t, err)
	assert.Equal(t, path, latest)
	assert.Equal(t, "https://x/1", got.Post.URL)

	llmPath, err := SaveLLMExchange(LLMExchange{Provider: "anthropic", Prompt: "p", Response: "r"})
	require.NoError(t, err)
	ex, err := LoadStepOutput[LLMExchange](llmPath)
	require.NoError(t, err)
	assert.Equal(t, "r", ex.Response)
	assert.False(t, ex.Timestamp.IsZero())
}
