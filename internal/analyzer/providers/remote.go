package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ibeckermayer/threadsense/internal/types"
)

// RemoteProvider calls a sentiment model server over HTTP
type RemoteProvider struct {
	endpoint string
	client   *http.Client
}

// NewRemoteProvider creates a client for the model server at endpoint
func NewRemoteProvider(endpoint string, timeout time.Duration) *RemoteProvider {
	return &RemoteProvider{
		endpoint: strings.TrimRight(endpoint, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type predictRequest struct {
	Text string `json:"text"`
}

// Classify posts text to /predict
func (r *RemoteProvider) Classify(ctx context.Context, text string) (types.Sentiment, error) {
	jsonBody, err := json.Marshal(predictRequest{Text: text})
	if err != nil {
		return types.Sentiment{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/predict", bytes.NewReader(jsonBody))
	if err != nil {
		return types.Sentiment{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return types.Sentiment{}, fmt.Errorf("failed to call model server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Sentiment{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return types.Sentiment{}, fmt.Errorf("model server returned status %d: %.200s", resp.StatusCode, string(body))
	}

	return ParseSentiment(body)
}

// Ping checks /health
func (r *RemoteProvider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("model server unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
