package scraper

import (
	"errors"
	"fmt"

	"github.com/ibeckermayer/threadsense/internal/types"
)

var (
	// ErrNavigation means the post page could not be loaded
	ErrNavigation = errors.New("navigation failed")

	// ErrExtractionTransient marks a single trigger or element read that
	// failed. It is logged and never returned from Scrape.
	ErrExtractionTransient = errors.New("transient extraction failure")

	// ErrSessionFatal means the browser session became unusable
	ErrSessionFatal = errors.New("browser session failed")
)

// ScrapeError is returned when a scrape aborts after the session was
// opened. Partial holds whatever was collected before the failure.
type ScrapeError struct {
	Err     error
	Partial *types.ScrapeResult
}

func (e *ScrapeError) Error() string {
	if e.Partial != nil {
		return fmt.Sprintf("scrape aborted after %d comments: %v", len(e.Partial.Comments), e.Err)
	}
	return fmt.Sprintf("scrape aborted: %v", e.Err)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}
