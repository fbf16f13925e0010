package store

import (
	"time"

	"github.com/ibeckermayer/threadsense/internal/types"
)

// Scrape is an archived scrape result
type Scrape struct {
	ID         string              `json:"id"`
	PostURL    string              `json:"post_url"`
	Author     string              `json:"author"`
	Comments   int                 `json:"comment_count"`
	StopReason types.StopReason    `json:"stop_reason"`
	ScrapedAt  time.Time           `json:"scraped_at"`
	Result     *types.ScrapeResult `json:"result,omitempty"` // nil in listings
	Analysis   *Analysis           `json:"analysis,omitempty"`
}

// Analysis is the sentiment classification of an archived scrape
type Analysis struct {
	ScrapeID     string                   `json:"scrape_id"`
	Results      []types.CommentSentiment `json:"results"`
	Distribution types.Distribution       `json:"distribution"`
	AnalyzedAt   time.Time                `json:"analyzed_at"`
}
