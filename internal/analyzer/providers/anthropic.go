package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/threadsense/internal/store"
	"github.com/ibeckermayer/threadsense/internal/types"
)

const sentimentSystem = `You classify the sentiment of social media comments, which are often written in Marathi.
Answer with a single JSON object and nothing else:
{"sentiment": "Negative" | "Neutral" | "Positive", "confidence": <0..1>, "probabilities": {"Negative": p, "Neutral": p, "Positive": p}}
The probabilities must sum to 1 and confidence must equal the probability of the chosen sentiment.`

// AnthropicProvider classifies sentiment with Claude
type AnthropicProvider struct {
	client    *anthropic.Client
	model     string
	dumpSteps bool
	log       logrus.FieldLogger
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey, model string, log logrus.FieldLogger, opts ...option.RequestOption) *AnthropicProvider {
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &AnthropicProvider{
		client: &client,
		model:  model,
		log:    log.WithField("component", "sentiment"),
	}
}

// WithDumps makes the provider save every exchange to the cache dir
func (c *AnthropicProvider) WithDumps(enabled bool) *AnthropicProvider {
	c.dumpSteps = enabled
	return c
}

// Classify asks Claude for a sentiment object
func (c *AnthropicProvider) Classify(ctx context.Context, text string) (types.Sentiment, error) {
	// Prefill "{" so the reply continues a JSON object
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 256,
		System:    []anthropic.TextBlockParam{{Text: sentimentSystem}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
			anthropic.NewAssistantMessage(anthropic.NewTextBlock("{")),
		},
	})
	if err != nil {
		return types.Sentiment{}, fmt.Errorf("failed to call Claude API: %w", err)
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}

	if c.dumpSteps {
		if path, err := store.SaveLLMExchange(store.LLMExchange{
			Timestamp: time.Now(),
			Provider:  "anthropic",
			Purpose:   "sentiment",
			Model:     c.model,
			System:    sentimentSystem,
			Prompt:    text,
			Response:  responseText,
		}); err != nil {
			c.log.WithError(err).Warn("failed to cache LLM exchange")
		} else {
			c.log.WithField("path", path).Debug("cached LLM exchange")
		}
	}

	if responseText == "" {
		return types.Sentiment{}, fmt.Errorf("Claude returned empty response")
	}

	return ParseSentiment([]byte("{" + responseText))
}
