package insights

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/threadsense/internal/config"
	"github.com/ibeckermayer/threadsense/internal/types"
)

var thread = []types.CommentSentiment{
	{Comment: "छान काम", Author: "u1", Sentiment: types.Positive, Confidence: 0.9},
	{Comment: "वाईट", Author: "u2", Sentiment: types.Negative, Confidence: 0.8},
}

func testConfig() config.InsightsConfig {
	cfg := config.Default().Insights
	cfg.Enabled = true
	cfg.APIKey = "sk-test"
	cfg.Model = "test-model"
	return cfg
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := BuildPrompt(types.Tally(thread), thread)
	require.NoError(t, err)

	assert.Contains(t, prompt, `Post Sentiments: {"Negative":1,"Neutral":0,"Positive":1}`)
	assert.Contains(t, prompt, `"comment":"छान काम"`)
	assert.NotContains(t, prompt, "confidence")
}

func TestSystemPrompt_Language(t *testing.T) {
	log, _ := test.NewNullLogger()
	s, err := New(testConfig(), false, log)
	require.NoError(t, err)

	assert.Contains(t, s.SystemPrompt(), "Write only in Marathi.")
	assert.Contains(t, s.SystemPrompt(), "General summary -> What most of the comments are about -> Conclusion.")
}

func TestNew_NeedsKey(t *testing.T) {
	log, _ := test.NewNullLogger()
	cfg := testConfig()
	cfg.APIKey = ""
	_, err := New(cfg, false, log)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "test-model",
			"content": [{"type": "text", "text": "  ## सारांश\nमिश्र प्रतिक्रिया  "}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 20}
		}`)
	}))
	defer srv.Close()

	log, _ := test.NewNullLogger()
	s, err := New(testConfig(), true, log, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	require.NoError(t, err)

	text, err := s.Summarize(context.Background(), nil, thread)
	require.NoError(t, err)
	assert.Equal(t, "## सारांश\nमिश्र प्रतिक्रिया", text)

	assert.Equal(t, "test-model", gotBody["model"])
	assert.EqualValues(t, 2048, gotBody["max_tokens"])

	cacheDir, err := config.CacheDir()
	require.NoError(t, err)
	dumps, err := os.ReadDir(filepath.Join(cacheDir, "llm"))
	require.NoError(t, err)
	assert.Len(t, dumps, 1)
}

func TestSummarize_NoComments(t *testing.T) {
	log, _ := test.NewNullLogger()
	s, err := New(testConfig(), false, log)
	require.NoError(t, err)

	_, err = s.Summarize(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoComments)
}
