package scraper

import (
	"strings"

	"github.com/ibeckermayer/threadsense/internal/types"
)

// Seen remembers comment identities for the lifetime of one scrape.
// It only grows.
type Seen struct {
	ids map[types.Identity]struct{}
}

// NewSeen creates an empty dedup store
func NewSeen() *Seen {
	return &Seen{ids: make(map[types.Identity]struct{})}
}

// normalize trims the text part of an identity
func normalize(id types.Identity) types.Identity {
	return types.Identity{Text: strings.TrimSpace(id.Text), Author: id.Author}
}

// Contains reports whether id was added before
func (s *Seen) Contains(id types.Identity) bool {
	_, ok := s.ids[normalize(id)]
	return ok
}

// Add records c and reports whether it was new
func (s *Seen) Add(c types.Comment) bool {
	id := normalize(c.Identity())
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Len returns the number of distinct identities seen
func (s *Seen) Len() int {
	return len(s.ids)
}
