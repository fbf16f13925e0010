package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/threadsense/internal/analyzer/providers"
	"github.com/ibeckermayer/threadsense/internal/config"
	"github.com/ibeckermayer/threadsense/internal/types"
)

var (
	// ErrClassification means a provider failed or returned an invalid result
	ErrClassification = errors.New("classification failed")
	// ErrEmptyText means there was nothing to classify
	ErrEmptyText = errors.New("text is empty")
)

// Provider classifies a single text
type Provider interface {
	Classify(ctx context.Context, text string) (types.Sentiment, error)
}

// Pinger is implemented by providers that can report their own health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Analyzer classifies comment sentiment through a Provider. It holds no
// per-request state and is safe for concurrent use.
type Analyzer struct {
	provider    Provider
	name        string
	concurrency int
}

// New creates an analyzer with the provider named in config
func New(cfg config.SentimentConfig, dumpSteps bool, log logrus.FieldLogger) (*Analyzer, error) {
	var provider Provider

	switch cfg.Provider {
	case config.ProviderRemote:
		provider = providers.NewRemoteProvider(cfg.Endpoint, cfg.Timeout())
	case config.ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("sentiment provider %s needs an api key", cfg.Provider)
		}
		provider = providers.NewAnthropicProvider(cfg.APIKey, cfg.Model, log).WithDumps(dumpSteps)
	default:
		return nil, fmt.Errorf("unknown sentiment provider: %s", cfg.Provider)
	}

	a := NewWithProvider(provider, cfg.Concurrency)
	a.name = cfg.Provider
	return a, nil
}

// NewWithProvider wraps an already built provider
func NewWithProvider(provider Provider, concurrency int) *Analyzer {
	return &Analyzer{
		provider:    provider,
		name:        "custom",
		concurrency: max(concurrency, 1),
	}
}

// Name returns the configured provider name
func (a *Analyzer) Name() string {
	return a.name
}

// Ping checks the provider, when it supports health checks
func (a *Analyzer) Ping(ctx context.Context) error {
	if p, ok := a.provider.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Classify labels one text
func (a *Analyzer) Classify(ctx context.Context, text string) (types.Sentiment, error) {
	if strings.TrimSpace(text) == "" {
		return types.Sentiment{}, ErrEmptyText
	}

	s, err := a.provider.Classify(ctx, text)
	if err != nil {
		return types.Sentiment{}, fmt.Errorf("%w: %v", ErrClassification, err)
	}
	if err := providers.Validate(s); err != nil {
		return types.Sentiment{}, fmt.Errorf("%w: %v", ErrClassification, err)
	}
	return s, nil
}

// AnalyzeComments classifies each comment independently and returns the
// results in input order. Comments with empty text are skipped. Any single
// failure fails the whole batch.
func (a *Analyzer) AnalyzeComments(ctx context.Context, comments []types.Comment) ([]types.CommentSentiment, error) {
	if len(comments) == 0 {
		return []types.CommentSentiment{}, nil
	}

	results := make([]*types.CommentSentiment, len(comments))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, c := range comments {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		g.Go(func() error {
			s, err := a.Classify(ctx, c.Text)
			if err != nil {
				return fmt.Errorf("comment %d: %w", i, err)
			}
			results[i] = &types.CommentSentiment{
				Comment:    c.Text,
				Author:     c.Author,
				Sentiment:  s.Label,
				Confidence: s.Confidence,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]types.CommentSentiment, 0, len(comments))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}
