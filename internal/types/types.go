package types

import "time"

// Post is the primary content item a comment thread hangs off.
// It is captured once, before comment expansion starts.
type Post struct {
	Content   string `json:"content"`
	URL       string `json:"url"`
	ImageAlt  string `json:"image_alt,omitempty"`
	Author    string `json:"author,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Comment represents one extracted comment
type Comment struct {
	Text      string `json:"text"`
	Author    string `json:"author,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Identity is the dedup key of a comment: trimmed text plus author.
// Comparison is exact and case-sensitive.
type Identity struct {
	Text   string
	Author string
}

// Identity returns the dedup key for c
func (c Comment) Identity() Identity {
	return Identity{Text: c.Text, Author: c.Author}
}

// StopReason records why the expansion loop terminated
type StopReason string

const (
	StopLimit        StopReason = "limit"
	StopExhausted    StopReason = "exhausted"
	StopStalled      StopReason = "stalled"
	StopIterationCap StopReason = "iteration_cap"
	StopTimeout      StopReason = "timeout"
	StopCanceled     StopReason = "canceled"
)

// Metadata describes how a scrape went
type Metadata struct {
	TotalComments         int        `json:"total_comments"`
	ScrapedAt             time.Time  `json:"scraped_at"`
	CommentLimitReached   bool       `json:"comment_limit_reached"`
	ExpansionActionsTaken int        `json:"expansion_actions_taken"`
	StopReason            StopReason `json:"stop_reason"`
	Iterations            int        `json:"iterations"`
}

// ScrapeResult is the complete output of one scrape request
type ScrapeResult struct {
	Post     Post      `json:"post"`
	Comments []Comment `json:"comments"`
	Metadata Metadata  `json:"metadata"`
}

// Label is a sentiment class
type Label string

const (
	Negative Label = "Negative"
	Neutral  Label = "Neutral"
	Positive Label = "Positive"
)

// Labels lists every known label in model index order
var Labels = []Label{Negative, Neutral, Positive}

// Valid reports whether l is one of the known labels
func (l Label) Valid() bool {
	for _, known := range Labels {
		if l == known {
			return true
		}
	}
	return false
}

// Sentiment is the classifier output for a single text
type Sentiment struct {
	Label         Label             `json:"sentiment"`
	Confidence    float64           `json:"confidence"`
	Probabilities map[Label]float64 `json:"probabilities"`
}

// CommentSentiment pairs a comment with its classification
type CommentSentiment struct {
	Comment    string  `json:"comment"`
	Author     string  `json:"author"`
	Sentiment  Label   `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}

// Distribution counts comments per label
type Distribution map[Label]int

// Tally builds a Distribution from classified comments
func Tally(items []CommentSentiment) Distribution {
	d := make(Distribution, len(Labels))
	for _, l := range Labels {
		d[l] = 0
	}
	for _, it := range items {
		d[it.Sentiment]++
	}
	return d
}
