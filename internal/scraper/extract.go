package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ibeckermayer/threadsense/internal/types"
)

// Snapshot is a parsed copy of the rendered page. Extraction never
// touches the live browser.
type Snapshot struct {
	doc *goquery.Document
}

// ParseSnapshot parses the outer HTML of a page
func ParseSnapshot(html string) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page html: %w", err)
	}
	return &Snapshot{doc: doc}, nil
}

// postMarker returns the element that holds the post body, or an empty
// selection when the page has no recognizable post.
func (s *Snapshot) postMarker() *goquery.Selection {
	if story := s.doc.Find(PostStoryMessage).First(); story.Length() > 0 {
		return story
	}
	return s.doc.Find(PostWrapper).First()
}

// postRegion is the container the post's author, images and time live in
func (s *Snapshot) postRegion() *goquery.Selection {
	marker := s.postMarker()
	if marker.Length() == 0 {
		return s.doc.Find(CommentArticle).First()
	}
	if art := marker.Closest(CommentArticle); art.Length() > 0 {
		return art
	}
	return marker
}

// isPostContainer reports whether a candidate is the post itself: it sits
// inside the post marker or wraps it.
func isPostContainer(candidate, marker *goquery.Selection) bool {
	if marker.Length() == 0 {
		return false
	}
	if candidate.IsSelection(marker) {
		return true
	}
	if candidate.Find(PostStoryMessage+", "+PostWrapper).FilterFunction(func(_ int, m *goquery.Selection) bool {
		return m.IsSelection(marker)
	}).Length() > 0 {
		return true
	}
	return marker.Find(CommentArticle).FilterFunction(func(_ int, a *goquery.Selection) bool {
		return a.IsSelection(candidate)
	}).Length() > 0
}

// Post extracts the post record. url is the page's final location.
func (s *Snapshot) Post(url string) types.Post {
	root := s.doc.Selection
	post := types.Post{URL: url}

	post.Content, _, _ = PostContentChain.Apply(root)

	region := s.postRegion()
	if region.Length() == 0 {
		return post
	}

	post.Author, _, _ = PostAuthorChain.Apply(region)
	post.Timestamp, _, _ = PostTimestampChain.Apply(region)

	var alts []string
	owned(region, region.Find(PostImage)).Each(func(_ int, img *goquery.Selection) {
		if alt := cleanText(img.AttrOr("alt", "")); alt != "" {
			alts = append(alts, alt)
		}
	})
	post.ImageAlt = strings.Join(alts, ", ")

	return post
}

// Comments returns every comment currently rendered, in DOM order.
// Candidates whose text comes out empty are dropped.
func (s *Snapshot) Comments() []types.Comment {
	marker := s.postMarker()
	fallbackPost := marker.Length() == 0

	var out []types.Comment
	s.doc.Find(CommentArticle).Each(func(i int, art *goquery.Selection) {
		// without a post marker the first article is the post
		if fallbackPost && i == 0 {
			return
		}
		if isPostContainer(art, marker) {
			return
		}

		text, _, ok := CommentTextChain.Apply(art)
		if !ok {
			return
		}
		c := types.Comment{Text: strings.TrimSpace(text)}
		c.Author, _, _ = CommentAuthorChain.Apply(art)
		c.Timestamp, _, _ = CommentTimestampChain.Apply(art)

		// the author's name is often rendered in a dir=auto block too
		if c.Text == c.Author {
			return
		}
		out = append(out, c)
	})
	return out
}
