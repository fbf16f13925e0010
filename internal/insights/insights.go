package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/threadsense/internal/config"
	"github.com/ibeckermayer/threadsense/internal/store"
	"github.com/ibeckermayer/threadsense/internal/types"
)

// ErrNoComments means there was nothing to summarize
var ErrNoComments = errors.New("no comments to summarize")

// Summarizer writes a markdown summary of a classified comment thread
type Summarizer struct {
	client    *anthropic.Client
	model     string
	language  string
	maxTokens int64
	dumpSteps bool
	log       logrus.FieldLogger
}

// New creates a summarizer backed by Claude
func New(cfg config.InsightsConfig, dumpSteps bool, log logrus.FieldLogger, opts ...option.RequestOption) (*Summarizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("insights need an api key")
	}
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)...)

	language := cfg.Language
	if language == "" {
		language = "English"
	}

	return &Summarizer{
		client:    &client,
		model:     cfg.Model,
		language:  language,
		maxTokens: int64(max(cfg.MaxTokens, 256)),
		dumpSteps: dumpSteps,
		log:       log.WithField("component", "insights"),
	}, nil
}

// SystemPrompt returns the instructions sent with every request
func (s *Summarizer) SystemPrompt() string {
	return buildSystemPrompt(s.language)
}

func buildSystemPrompt(language string) string {
	var sb strings.Builder
	sb.WriteString("You are a Facebook post analysis assistant.\n")
	sb.WriteString("You will be given the comments of a post and the overall sentiment distribution of those comments.\n")
	sb.WriteString("Analyze the comments and write a summary of them. Be detailed and to the point.\n")
	sb.WriteString("Do not include any text other than the summary and do not add a preamble such as \"Here is the summary\".\n")
	fmt.Fprintf(&sb, "Write only in %s.\n", language)
	sb.WriteString("Format the response as markdown in this order:\n")
	sb.WriteString("General summary -> What most of the comments are about -> Conclusion.\n")
	return sb.String()
}

type promptComment struct {
	Comment   string      `json:"comment"`
	Sentiment types.Label `json:"sentiment"`
	Author    string      `json:"author"`
}

// BuildPrompt renders the user message for a thread
func BuildPrompt(dist types.Distribution, comments []types.CommentSentiment) (string, error) {
	distJSON, err := json.Marshal(dist)
	if err != nil {
		return "", err
	}

	pc := make([]promptComment, len(comments))
	for i, c := range comments {
		pc[i] = promptComment{Comment: c.Comment, Sentiment: c.Sentiment, Author: c.Author}
	}
	commentsJSON, err := json.Marshal(pc)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Post Sentiments: %s\nComments: %s\n", distJSON, commentsJSON), nil
}

// Summarize asks Claude for the thread summary. A nil distribution is
// tallied from comments.
func (s *Summarizer) Summarize(ctx context.Context, dist types.Distribution, comments []types.CommentSentiment) (string, error) {
	if len(comments) == 0 {
		return "", ErrNoComments
	}
	if dist == nil {
		dist = types.Tally(comments)
	}

	prompt, err := BuildPrompt(dist, comments)
	if err != nil {
		return "", fmt.Errorf("failed to build prompt: %w", err)
	}
	system := s.SystemPrompt()

	message, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: s.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})

	var text strings.Builder
	if err == nil {
		for _, block := range message.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
	}

	if s.dumpSteps {
		exchange := store.LLMExchange{
			Timestamp: time.Now(),
			Provider:  "anthropic",
			Purpose:   "insights",
			Model:     s.model,
			System:    system,
			Prompt:    prompt,
			Response:  text.String(),
		}
		if err != nil {
			exchange.Error = err.Error()
		}
		if path, dumpErr := store.SaveLLMExchange(exchange); dumpErr != nil {
			s.log.WithError(dumpErr).Warn("failed to cache LLM exchange")
		} else {
			s.log.WithField("path", path).Debug("cached LLM exchange")
		}
	}

	if err != nil {
		return "", fmt.Errorf("failed to call Claude API: %w", err)
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("Claude returned empty response")
	}

	return strings.TrimSpace(text.String()), nil
}
