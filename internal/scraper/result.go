package scraper

import (
	"time"

	"github.com/ibeckermayer/threadsense/internal/types"
)

// Assemble packages the post and the loop outcome into a result.
// Comments beyond maxComments are dropped, keeping discovery order.
func Assemble(post types.Post, out *Outcome, maxComments int, now time.Time) *types.ScrapeResult {
	comments := []types.Comment{}
	var o Outcome
	if out != nil {
		o = *out
		comments = append(comments, o.Comments...)
	}

	limitReached := o.State == LimitReached
	if maxComments > 0 && len(comments) >= maxComments {
		limitReached = true
		comments = comments[:maxComments]
	}

	return &types.ScrapeResult{
		Post:     post,
		Comments: comments,
		Metadata: types.Metadata{
			TotalComments:         len(comments),
			ScrapedAt:             now,
			CommentLimitReached:   limitReached,
			ExpansionActionsTaken: o.Actions,
			StopReason:            o.StopReason,
			Iterations:            o.Iterations,
		},
	}
}
