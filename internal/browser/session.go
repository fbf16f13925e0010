package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// Session is one browser process with a single tab. It is owned by
// exactly one request and must be closed by it.
type Session struct {
	ctx         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	closeOnce   sync.Once
}

// SessionOptions configure a new browser session
type SessionOptions struct {
	Headless  bool
	UserAgent string
}

// NewSession starts a browser. The browser outlives ctx so that callers
// can still read it after their deadline; Close shuts it down.
func NewSession(ctx context.Context, opts SessionOptions, log logrus.FieldLogger) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), Options(opts.Headless, opts.UserAgent)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(log.Debugf),
		chromedp.WithErrorf(log.Debugf),
	)

	s := &Session{
		ctx:         tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}

	if err := s.start(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return s, nil
}

// start launches the browser. chromedp binds the process to the context of
// the first Run, so it runs on the tab context itself and ctx only bounds
// how long we wait for it.
func (s *Session) start(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(s.ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// Close cancels the tab context, which unblocks the Run above
		s.Close()
		<-done
		return ctx.Err()
	}
}

// run executes actions on a started tab, aborting when ctx is done. The
// derived context never carries the browser process.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads url and waits for the document body
func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Location returns the current page URL
func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	err := s.run(ctx, chromedp.Location(&url))
	return url, err
}

// SendKeys types text into the element matching selector
func (s *Session) SendKeys(ctx context.Context, selector, text string) error {
	return s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

// Click waits for selector to be visible and clicks it
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

// ClickIfPresent clicks selector only if it is already in the page
func (s *Session) ClickIfPresent(ctx context.Context, selector string) (bool, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return false, err
	}
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.click();
		return true;
	})()`, sel)

	var clicked bool
	err = s.run(ctx, chromedp.Evaluate(js, &clicked))
	return clicked, err
}

// SetCookies injects cookies into the browser before navigation
func (s *Session) SetCookies(ctx context.Context, cookies []*network.Cookie) error {
	return s.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range cookies {
				p := network.SetCookie(c.Name, c.Value).
					WithDomain(c.Domain).
					WithPath(c.Path).
					WithSecure(c.Secure).
					WithHTTPOnly(c.HTTPOnly)
				if c.SameSite != "" {
					p = p.WithSameSite(c.SameSite)
				}
				if err := p.Do(ctx); err != nil {
					return fmt.Errorf("failed to set cookie %s: %w", c.Name, err)
				}
			}
			return nil
		}),
	)
}

// Cookies returns every cookie the browser holds
func (s *Session) Cookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := s.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)
	return cookies, err
}

const scrollJS = `(() => {
	const before = window.scrollY;
	window.scrollTo(0, document.body.scrollHeight);
	return window.scrollY !== before;
})()`

// ScrollToBottom scrolls the page and reports whether it moved
func (s *Session) ScrollToBottom(ctx context.Context) (bool, error) {
	var moved bool
	err := s.run(ctx, chromedp.Evaluate(scrollJS, &moved))
	return moved, err
}

// loadMoreControls are the elements searched for load-more labels
const loadMoreControls = `div[role="button"], a[role="button"], span[role="button"], button`

const clickLoadMoreJS = `((controls, labels) => {
	let clicked = 0;
	document.querySelectorAll(controls).forEach(el => {
		if (el.offsetParent === null) return;
		if (el.querySelector(controls)) return;
		const text = (el.innerText || el.textContent || '').toLowerCase();
		if (!labels.some(l => text.includes(l))) return;
		try {
			el.click();
			clicked++;
		} catch (e) {}
	});
	return clicked;
})(%s, %s)`

// ClickLoadMore clicks every visible control whose text contains one of
// labels, case-insensitively, and returns the number of clicks
func (s *Session) ClickLoadMore(ctx context.Context, labels []string) (int, error) {
	if len(labels) == 0 {
		return 0, nil
	}
	lower := make([]string, len(labels))
	for i, l := range labels {
		lower[i] = strings.ToLower(l)
	}
	labelsJSON, err := json.Marshal(lower)
	if err != nil {
		return 0, err
	}
	controlsJSON, err := json.Marshal(loadMoreControls)
	if err != nil {
		return 0, err
	}

	var clicked int
	err = s.run(ctx, chromedp.Evaluate(fmt.Sprintf(clickLoadMoreJS, controlsJSON, labelsJSON), &clicked))
	return clicked, err
}

// HTML returns the outer HTML of the document
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Screenshot captures the full page as a JPEG
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.FullScreenshot(&buf, 90))
	return buf, err
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(s.ctx) }()
		select {
		case err = <-done:
		case <-time.After(10 * time.Second):
			err = fmt.Errorf("timed out closing browser")
		}
		s.tabCancel()
		s.allocCancel()
	})
	return err
}
