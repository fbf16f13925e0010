package scraper

// Facebook DOM selectors
// These are isolated here because Facebook changes its DOM frequently
// Update these when scraping breaks

const (
	// Post selectors
	PostStoryMessage = `div[data-ad-rendering-role="story_message"]`
	PostWrapper      = `.xjkvuk6, .xuyqlj2`
	PostImage        = `img[alt]`
	PostPermalink    = `a[href*="/posts/"] span`

	// Comment container (comments and replies both use it)
	CommentArticle = `div[role="article"]`

	// Comment text selectors, strongest first
	CommentStyledText = `div[dir="auto"][style*="text-align: start"]`
	AutoDirText       = `div[dir="auto"]`

	// Comment author selectors
	AuthorStrong      = `strong.x1heor9g, strong.html-strong`
	AuthorProfileLink = `a[aria-label*="profile"] span, a[role="link"] span.xt0psk2`
	AuthorHeadingLink = `h3 a, h4 a`
	AuthorAnyLink     = `a[role="link"]:not([href*="reaction"])`

	// Comment timestamp selectors
	CommentTime      = `time`
	CommentAbbr      = `abbr[title]`
	CommentPermalink = `a[href*="comment_id"] span[dir="auto"], a[role="link"] span[dir="auto"]`
)

// UI noise that is never comment or post content
var uiNoise = map[string]bool{
	"See more":  true,
	"See less":  true,
	"Like":      true,
	"Reply":     true,
	"Share":     true,
	"Edited":    true,
	"Top fan":   true,
	"Author":    true,
	"Follow":    true,
	"Translate": true,
}

// maxAuthorLen bounds plausible display names
const maxAuthorLen = 50
