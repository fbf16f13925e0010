//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/threadsense/internal/browser"
	"github.com/ibeckermayer/threadsense/internal/scraper"
	"github.com/ibeckermayer/threadsense/internal/types"
)

// threadHTML renders two comments and reveals three more, one per click
const threadHTML = `<html><body>
<div role="article" id="post">
  <div data-ad-rendering-role="story_message"><div dir="auto">Hello from the post</div></div>
  <div id="thread">
    <div role="article"><strong class="html-strong">u0</strong><div dir="auto">comment 0</div></div>
    <div role="article"><strong class="html-strong">u1</strong><div dir="auto">comment 1</div></div>
  </div>
  <div role="button" id="more">View more comments</div>
</div>
<script>
  let next = 2;
  document.getElementById('more').addEventListener('click', () => {
    const el = document.createElement('div');
    el.setAttribute('role', 'article');
    el.innerHTML = '<strong class="html-strong">u' + next + '</strong><div dir="auto">comment ' + next + '</div>';
    document.getElementById('thread').appendChild(el);
    next++;
    if (next === 5) document.getElementById('more').remove();
  });
</script>
</body></html>`

func TestSession_ExpandsThread(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, threadHTML)
	}))
	defer srv.Close()

	log, _ := test.NewNullLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sess, err := browser.NewSession(ctx, browser.SessionOptions{Headless: true}, log)
	if err != nil {
		t.Skipf("skipping: chrome unavailable: %v", err)
	}
	defer sess.Close()

	require.NoError(t, sess.Navigate(ctx, srv.URL), "browser must still be running after NewSession")

	location, err := sess.Location(ctx)
	require.NoError(t, err)
	assert.Contains(t, location, srv.URL)

	exp := scraper.NewExpander(sess, scraper.ExpandOptions{
		MaxComments:    50,
		StallTolerance: 3,
		MaxIterations:  20,
		SettleDelay:    100 * time.Millisecond,
		Labels:         []string{"view more comments"},
	}, log)

	out, err := exp.Run(ctx)
	require.NoError(t, err)

	require.Len(t, out.Comments, 5)
	for i, c := range out.Comments {
		assert.Equal(t, fmt.Sprintf("comment %d", i), c.Text)
		assert.Equal(t, fmt.Sprintf("u%d", i), c.Author)
	}
	assert.Equal(t, scraper.Converged, out.State)
	assert.Contains(t, []types.StopReason{types.StopExhausted, types.StopStalled}, out.StopReason)
	assert.GreaterOrEqual(t, out.Actions, 3)

	html, err := sess.HTML(ctx)
	require.NoError(t, err)
	snap, err := scraper.ParseSnapshot(html)
	require.NoError(t, err)
	assert.Equal(t, "Hello from the post", snap.Post(location).Content)

	require.NoError(t, sess.Close())
	assert.NoError(t, sess.Close(), "close is idempotent")
}

// TestSession_OutlivesStartContext verifies the browser keeps running after
// the context passed to NewSession ends
func TestSession_OutlivesStartContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>alive</p></body></html>`)
	}))
	defer srv.Close()

	log, _ := test.NewNullLogger()
	startCtx, cancelStart := context.WithTimeout(context.Background(), 60*time.Second)
	sess, err := browser.NewSession(startCtx, browser.SessionOptions{Headless: true}, log)
	cancelStart()
	if err != nil {
		t.Skipf("skipping: chrome unavailable: %v", err)
	}
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, sess.Navigate(ctx, srv.URL))
	html, err := sess.HTML(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, "alive")
}
