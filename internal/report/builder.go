package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/ibeckermayer/threadsense/internal/types"
)

// Builder renders sentiment reports for a comment thread
type Builder struct {
	maxContent int
	template   *template.Template
}

// New creates a new report builder. Post content longer than maxContent
// runes is truncated.
func New(maxContent int) (*Builder, error) {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"lower": func(l types.Label) string { return strings.ToLower(string(l)) },
	}).Parse(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return &Builder{
		maxContent: maxContent,
		template:   tmpl,
	}, nil
}

// Report is a rendered sentiment report
type Report struct {
	Title        string
	HTMLBody     string
	PlainBody    string
	Distribution types.Distribution
	CreatedAt    time.Time
}

// ReportData is the template data structure
type ReportData struct {
	Title    string
	Date     string
	Post     PostData
	Comments []CommentData
	Stats    []StatData
	Summary  string
	Total    int
}

// PostData is the post shown at the top of the report
type PostData struct {
	Author    string
	Content   string
	URL       string
	Timestamp string
}

// CommentData is one classified comment
type CommentData struct {
	Author     string
	Text       string
	Sentiment  types.Label
	Confidence string
}

// StatData is the share of one label
type StatData struct {
	Label   types.Label
	Count   int
	Percent float64
}

// Build renders a report for post from classified comments. summary is
// optional markdown from the insights step and is shown verbatim.
func (b *Builder) Build(post types.Post, results []types.CommentSentiment, summary string) (*Report, error) {
	now := time.Now()
	dist := types.Tally(results)

	title := "Comment sentiment"
	if post.Author != "" {
		title = fmt.Sprintf("Comment sentiment: %s", post.Author)
	}

	data := ReportData{
		Title: title,
		Date:  now.Format("Monday, January 2 2006"),
		Post: PostData{
			Author:    post.Author,
			Content:   truncate(post.Content, b.maxContent),
			URL:       post.URL,
			Timestamp: post.Timestamp,
		},
		Comments: make([]CommentData, len(results)),
		Summary:  summary,
		Total:    len(results),
	}

	for _, l := range types.Labels {
		data.Stats = append(data.Stats, StatData{
			Label:   l,
			Count:   dist[l],
			Percent: percent(dist[l], len(results)),
		})
	}

	for i, r := range results {
		data.Comments[i] = CommentData{
			Author:     r.Author,
			Text:       r.Comment,
			Sentiment:  r.Sentiment,
			Confidence: fmt.Sprintf("%.0f%%", r.Confidence*100),
		}
	}

	var htmlBuf bytes.Buffer
	if err := b.template.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	return &Report{
		Title:        title,
		HTMLBody:     htmlBuf.String(),
		PlainBody:    buildPlainText(data),
		Distribution: dist,
		CreatedAt:    now,
	}, nil
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 3 || len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func buildPlainText(data ReportData) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n%s\n", data.Title, data.Date)
	if data.Post.URL != "" {
		fmt.Fprintf(&buf, "%s\n", data.Post.URL)
	}
	buf.WriteString("\n")

	for _, s := range data.Stats {
		fmt.Fprintf(&buf, "%-8s %3d  (%.1f%%)\n", s.Label, s.Count, s.Percent)
	}
	buf.WriteString("\n")

	for i, c := range data.Comments {
		fmt.Fprintf(&buf, "%d. [%s %s] %s: %s\n", i+1, c.Sentiment, c.Confidence, c.Author, c.Text)
	}

	if data.Summary != "" {
		fmt.Fprintf(&buf, "\n%s\n", data.Summary)
	}

	return buf.String()
}

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Noto Sans Devanagari', sans-serif; max-width: 720px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        .container { background: white; border-radius: 8px; padding: 20px; }
        h1 { color: #1877f2; margin-bottom: 5px; }
        .date { color: #666; margin-bottom: 20px; }
        .post { background: #f0f2f5; border-radius: 8px; padding: 12px; margin-bottom: 20px; line-height: 1.4; }
        .stats { display: flex; gap: 10px; margin-bottom: 20px; }
        .stat { flex: 1; border-radius: 8px; padding: 10px; text-align: center; }
        .stat .count { font-size: 24px; font-weight: bold; }
        .negative { background: #fdecea; color: #b3261e; }
        .neutral { background: #eef0f3; color: #444; }
        .positive { background: #e7f6ec; color: #1e7b34; }
        .comment { border-bottom: 1px solid #eee; padding: 10px 0; }
        .comment:last-child { border-bottom: none; }
        .author { font-weight: bold; color: #333; }
        .badge { padding: 2px 8px; border-radius: 12px; font-size: 12px; margin-left: 5px; }
        .text { margin-top: 5px; }
        .summary { white-space: pre-wrap; border-left: 3px solid #1877f2; padding-left: 10px; margin: 20px 0; }
        .footer { margin-top: 20px; padding-top: 15px; border-top: 1px solid #eee; color: #999; font-size: 12px; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <div class="date">{{.Date}}</div>

        <div class="post">
            {{if .Post.Author}}<div class="author">{{.Post.Author}}</div>{{end}}
            <div>{{.Post.Content}}</div>
            {{if .Post.URL}}<a href="{{.Post.URL}}">View on Facebook →</a>{{end}}
        </div>

        <div class="stats">
            {{range .Stats}}
            <div class="stat {{lower .Label}}">
                <div class="count">{{.Count}}</div>
                <div>{{.Label}} · {{printf "%.0f" .Percent}}%</div>
            </div>
            {{end}}
        </div>

        {{if .Summary}}<div class="summary">{{.Summary}}</div>{{end}}

        {{range .Comments}}
        <div class="comment">
            <span class="author">{{.Author}}</span>
            <span class="badge {{lower .Sentiment}}">{{.Sentiment}} {{.Confidence}}</span>
            <div class="text">{{.Text}}</div>
        </div>
        {{end}}

        <div class="footer">
            {{.Total}} comments · Generated by threadsense
        </div>
    </div>
</body>
</html>`
