package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/threadsense/internal/types"
)

// Page is the part of a browser session the expansion loop drives
type Page interface {
	// ScrollToBottom reports whether the scroll position changed
	ScrollToBottom(ctx context.Context) (bool, error)
	// ClickLoadMore clicks every visible control whose text contains one
	// of labels and returns how many clicks were dispatched
	ClickLoadMore(ctx context.Context, labels []string) (int, error)
	// HTML returns the outer HTML of the rendered document
	HTML(ctx context.Context) (string, error)
}

// State of the expansion loop
type State int

const (
	Expanding State = iota
	Converged
	LimitReached
)

func (s State) String() string {
	switch s {
	case Expanding:
		return "EXPANDING"
	case Converged:
		return "CONVERGED"
	case LimitReached:
		return "LIMIT_REACHED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ExpandOptions bound the expansion loop
type ExpandOptions struct {
	MaxComments    int
	StallTolerance int
	MaxIterations  int
	SettleDelay    time.Duration
	Labels         []string
}

// Progress is reported after every iteration
type Progress struct {
	Iteration int
	New       int
	Total     int
	Effect    bool
	State     State
}

// Outcome is what the loop collected and why it stopped
type Outcome struct {
	Comments   []types.Comment
	State      State
	StopReason types.StopReason
	Iterations int
	Actions    int
}

// Expander repeatedly triggers lazy loading on a page and merges newly
// rendered comments until the thread converges or a bound is hit.
type Expander struct {
	page Page
	opts ExpandOptions
	log  logrus.FieldLogger
	wait func(ctx context.Context, d time.Duration) error

	// OnProgress, if set, is called after each iteration's decision
	OnProgress func(Progress)
}

// NewExpander creates an expander for one page
func NewExpander(page Page, opts ExpandOptions, log logrus.FieldLogger) *Expander {
	return &Expander{
		page: page,
		opts: opts,
		log:  log,
		wait: sleepCtx,
	}
}

// Run drives the loop to completion. A context that ends mid-loop is not
// an error: the outcome holds what was collected so far. A failure to read
// the page is fatal and returned together with the partial outcome.
func (e *Expander) Run(ctx context.Context) (*Outcome, error) {
	seen := NewSeen()
	out := &Outcome{State: Expanding}
	stall := 0

	for out.State == Expanding {
		if ctx.Err() != nil {
			e.interrupted(ctx, out)
			break
		}
		out.Iterations++

		effect, actions := e.trigger(ctx)
		out.Actions += actions

		if err := e.wait(ctx, e.opts.SettleDelay); err != nil {
			e.interrupted(ctx, out)
			break
		}

		html, err := e.page.HTML(ctx)
		if err != nil {
			if ctx.Err() != nil {
				e.interrupted(ctx, out)
				break
			}
			return out, fmt.Errorf("%w: failed to read page: %v", ErrSessionFatal, err)
		}
		snap, err := ParseSnapshot(html)
		if err != nil {
			return out, fmt.Errorf("%w: %v", ErrSessionFatal, err)
		}

		found := 0
		for _, c := range snap.Comments() {
			if seen.Add(c) {
				out.Comments = append(out.Comments, c)
				found++
			}
		}
		if found == 0 {
			stall++
		} else {
			stall = 0
		}

		e.decide(out, effect, found, stall)

		e.log.WithFields(logrus.Fields{
			"iteration": out.Iterations,
			"new":       found,
			"total":     len(out.Comments),
			"effect":    effect,
			"state":     out.State,
		}).Debug("expansion iteration")

		if e.OnProgress != nil {
			e.OnProgress(Progress{
				Iteration: out.Iterations,
				New:       found,
				Total:     len(out.Comments),
				Effect:    effect,
				State:     out.State,
			})
		}
	}

	return out, nil
}

// decide applies the transition rules in priority order
func (e *Expander) decide(out *Outcome, effect bool, found, stall int) {
	switch {
	case len(out.Comments) >= e.opts.MaxComments:
		out.State, out.StopReason = LimitReached, types.StopLimit
	case !effect && found == 0:
		out.State, out.StopReason = Converged, types.StopExhausted
	case stall >= e.opts.StallTolerance:
		out.State, out.StopReason = Converged, types.StopStalled
	case out.Iterations >= e.opts.MaxIterations:
		out.State, out.StopReason = Converged, types.StopIterationCap
	}
}

// interrupted ends the loop because ctx is done
func (e *Expander) interrupted(ctx context.Context, out *Outcome) {
	out.State = Converged
	out.StopReason = types.StopTimeout
	if errors.Is(ctx.Err(), context.Canceled) {
		out.StopReason = types.StopCanceled
	}
	e.log.WithField("collected", len(out.Comments)).Warnf("expansion interrupted: %v", ctx.Err())
}

// trigger scrolls and clicks load-more controls. Failures only mean the
// action had no effect this round.
func (e *Expander) trigger(ctx context.Context) (bool, int) {
	effect := false
	actions := 0

	moved, err := e.page.ScrollToBottom(ctx)
	if err != nil {
		e.log.WithError(fmt.Errorf("%w: scroll: %v", ErrExtractionTransient, err)).Debug("trigger failed")
	} else if moved {
		effect = true
		actions++
	}

	clicks, err := e.page.ClickLoadMore(ctx, e.opts.Labels)
	if err != nil {
		e.log.WithError(fmt.Errorf("%w: click: %v", ErrExtractionTransient, err)).Debug("trigger failed")
	} else if clicks > 0 {
		effect = true
		actions += clicks
	}

	return effect, actions
}

// sleepCtx waits for d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
