package scraper

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Strategy is one named way of pulling a value out of a DOM region
type Strategy struct {
	Name    string
	Extract func(region *goquery.Selection) (string, bool)
}

// Chain is an ordered list of strategies, strongest first
type Chain []Strategy

// Apply runs the strategies in order and returns the first hit along
// with the name of the strategy that produced it.
func (c Chain) Apply(region *goquery.Selection) (string, string, bool) {
	for _, s := range c {
		if v, ok := s.Extract(region); ok {
			return v, s.Name, true
		}
	}
	return "", "", false
}

// Names lists the strategy names in order
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, s := range c {
		names[i] = s.Name
	}
	return names
}

// cleanText collapses runs of whitespace and trims the result
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// isNoise reports UI labels that are never content
func isNoise(s string) bool {
	return s == "" || uiNoise[s]
}

// owned keeps the nodes in sel whose nearest comment container is region.
// Nodes belonging to a nested reply are dropped.
func owned(region, sel *goquery.Selection) *goquery.Selection {
	if !region.Is(CommentArticle) {
		return sel
	}
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Closest(CommentArticle).IsSelection(region)
	})
}

// firstText returns the first owned, non-noise text matching selector
func firstText(region *goquery.Selection, selector string) (string, bool) {
	var out string
	owned(region, region.Find(selector)).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := cleanText(s.Text()); !isNoise(t) {
			out = t
			return false
		}
		return true
	})
	return out, out != ""
}

// longestText returns the longest owned, non-noise text matching selector
// that is longer than minLen.
func longestText(region *goquery.Selection, selector string, minLen int, skip func(*goquery.Selection) bool) (string, bool) {
	var best string
	owned(region, region.Find(selector)).Each(func(_ int, s *goquery.Selection) {
		if skip != nil && skip(s) {
			return
		}
		t := cleanText(s.Text())
		if isNoise(t) || utf8.RuneCountInString(t) <= minLen {
			return
		}
		if utf8.RuneCountInString(t) > utf8.RuneCountInString(best) {
			best = t
		}
	})
	return best, best != ""
}

// joinTexts joins owned, non-noise texts longer than minLen
func joinTexts(region *goquery.Selection, selector, sep string, minLen int) (string, bool) {
	var parts []string
	seen := make(map[string]bool)
	owned(region, region.Find(selector)).Each(func(_ int, s *goquery.Selection) {
		// nested matches repeat their parent's text
		if s.ParentsFilteredUntilSelection(selector, region).Length() > 0 {
			return
		}
		t := cleanText(s.Text())
		if isNoise(t) || utf8.RuneCountInString(t) <= minLen || seen[t] {
			return
		}
		seen[t] = true
		parts = append(parts, t)
	})
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, sep), true
}

// validName accepts plausible display names
func validName(s string) bool {
	n := utf8.RuneCountInString(s)
	return n > 0 && n < maxAuthorLen && !isNoise(s)
}

// nameFrom returns a strategy reading the first valid name for selector
func nameFrom(name, selector string) Strategy {
	return Strategy{
		Name: name,
		Extract: func(region *goquery.Selection) (string, bool) {
			var out string
			owned(region, region.Find(selector)).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				if t := cleanText(s.Text()); validName(t) {
					out = t
					return false
				}
				return true
			})
			return out, out != ""
		},
	}
}

// insideLabel reports nodes that sit in a link, heading or name element
func insideLabel(s *goquery.Selection) bool {
	return s.ParentsFiltered("a, h2, h3, h4, strong").Length() > 0
}

// CommentTextChain extracts the body of a comment
var CommentTextChain = Chain{
	{
		Name: "styled-text-block",
		Extract: func(region *goquery.Selection) (string, bool) {
			return joinTexts(region, CommentStyledText, "\n", 0)
		},
	},
	{
		Name: "visible-auto-dir",
		Extract: func(region *goquery.Selection) (string, bool) {
			return longestText(region, AutoDirText, 0, insideLabel)
		},
	},
	{
		Name: "longest-auto-dir",
		Extract: func(region *goquery.Selection) (string, bool) {
			return longestText(region, `[dir="auto"]`, 0, nil)
		},
	},
}

// CommentAuthorChain extracts the commenter's display name
var CommentAuthorChain = Chain{
	nameFrom("strong-name", AuthorStrong),
	nameFrom("profile-link", AuthorProfileLink),
	nameFrom("heading-link", AuthorHeadingLink),
	nameFrom("first-link", AuthorAnyLink),
}

// CommentTimestampChain extracts the relative or absolute comment time
var CommentTimestampChain = Chain{
	{
		Name: "time-element",
		Extract: func(region *goquery.Selection) (string, bool) {
			t := owned(region, region.Find(CommentTime)).First()
			if dt, ok := t.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
				return strings.TrimSpace(dt), true
			}
			v := cleanText(t.Text())
			return v, v != ""
		},
	},
	{
		Name: "abbr-title",
		Extract: func(region *goquery.Selection) (string, bool) {
			title, ok := owned(region, region.Find(CommentAbbr)).First().Attr("title")
			title = strings.TrimSpace(title)
			return title, ok && title != ""
		},
	},
	{
		Name: "comment-permalink",
		Extract: func(region *goquery.Selection) (string, bool) {
			return firstText(region, CommentPermalink)
		},
	},
}

// PostContentChain extracts the post body from the whole document
var PostContentChain = Chain{
	{
		Name: "story-message",
		Extract: func(doc *goquery.Selection) (string, bool) {
			story := doc.Find(PostStoryMessage).First()
			if story.Length() == 0 {
				return "", false
			}
			if v, ok := joinTexts(story, AutoDirText, "\n", 0); ok {
				return v, true
			}
			v := cleanText(story.Text())
			return v, !isNoise(v)
		},
	},
	{
		Name: "post-wrapper",
		Extract: func(doc *goquery.Selection) (string, bool) {
			wrapper := doc.Find(PostWrapper).First()
			if wrapper.Length() == 0 {
				return "", false
			}
			return joinTexts(wrapper, AutoDirText, " ", 10)
		},
	},
	{
		Name: "first-article",
		Extract: func(doc *goquery.Selection) (string, bool) {
			first := doc.Find(CommentArticle).First()
			if first.Length() == 0 {
				return "", false
			}
			return longestText(first, AutoDirText, 40, nil)
		},
	},
	{
		Name: "longest-text",
		Extract: func(doc *goquery.Selection) (string, bool) {
			return longestText(doc, AutoDirText, 50, nil)
		},
	},
}

// PostTimestampChain extracts the post time from the post region
var PostTimestampChain = Chain{
	CommentTimestampChain[0],
	CommentTimestampChain[1],
	{
		Name: "post-permalink",
		Extract: func(region *goquery.Selection) (string, bool) {
			return firstText(region, PostPermalink)
		},
	},
}

// PostAuthorChain extracts the poster's display name from the post region
var PostAuthorChain = Chain{
	nameFrom("heading-link", `h2 a, h3 a, h4 a`),
	nameFrom("strong-link", `strong a, a strong`),
}
