package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/threadsense/internal/types"
)

func TestRemoteProvider_Classify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/predict", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "खूप छान", req.Text)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"sentiment":"Positive","confidence":0.91,"probabilities":{"Negative":0.03,"Neutral":0.06,"Positive":0.91}}`)
	}))
	defer srv.Close()

	p := NewRemoteProvider(srv.URL+"/", time.Second)
	s, err := p.Classify(context.Background(), "खूप छान")
	require.NoError(t, err)

	assert.Equal(t, types.Positive, s.Label)
	assert.InDelta(t, 0.91, s.Confidence, 1e-9)
	assert.InDelta(t, 0.03, s.Probabilities[types.Negative], 1e-9)
	assert.NoError(t, Validate(s))
}

func TestRemoteProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"model not loaded"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewRemoteProvider(srv.URL, time.Second).Classify(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestRemoteProvider_Ping(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"status":"healthy"}`)
	}))
	defer srv.Close()

	p := NewRemoteProvider(srv.URL, time.Second)
	assert.NoError(t, p.Ping(context.Background()))

	healthy.Store(false)
	assert.Error(t, p.Ping(context.Background()))
}

func TestParseSentiment_NormalizesLabels(t *testing.T) {
	s, err := ParseSentiment([]byte(`{"sentiment":"negative","confidence":0.7,"probabilities":{"negative":0.7,"NEUTRAL":0.2,"Positive":0.1}}`))
	require.NoError(t, err)
	assert.Equal(t, types.Negative, s.Label)
	assert.Contains(t, s.Probabilities, types.Neutral)
	assert.NoError(t, Validate(s))

	_, err = ParseSentiment([]byte(`not json`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	ok := types.Sentiment{
		Label:         types.Neutral,
		Confidence:    0.5,
		Probabilities: map[types.Label]float64{types.Negative: 0.25, types.Neutral: 0.5, types.Positive: 0.255},
	}
	assert.NoError(t, Validate(ok), "within tolerance")

	off := ok
	off.Probabilities = map[types.Label]float64{types.Negative: 0.25, types.Neutral: 0.5, types.Positive: 0.3}
	assert.Error(t, Validate(off))

	assert.NoError(t, Validate(types.Sentiment{Label: types.Positive, Confidence: 1}))
	assert.Error(t, Validate(types.Sentiment{Label: types.Positive, Confidence: -0.1}))
}

func TestAnthropicProvider_Classify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("X-Api-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "test-model",
			"content": [{"type": "text", "text": "\"sentiment\": \"Negative\", \"confidence\": 0.8, \"probabilities\": {\"Negative\": 0.8, \"Neutral\": 0.15, \"Positive\": 0.05}}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 20}
		}`)
	}))
	defer srv.Close()

	log, _ := test.NewNullLogger()
	p := NewAnthropicProvider("sk-test", "test-model", log, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	s, err := p.Classify(context.Background(), "वाईट")
	require.NoError(t, err)
	assert.Equal(t, types.Negative, s.Label)
	assert.InDelta(t, 0.8, s.Confidence, 1e-9)
	assert.NoError(t, Validate(s))
}
