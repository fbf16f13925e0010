package analyzer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/threadsense/internal/config"
	"github.com/ibeckermayer/threadsense/internal/types"
)

// fakeProvider labels by lookup and tracks concurrency
type fakeProvider struct {
	labels map[string]types.Label
	fail   map[string]error
	delay  time.Duration

	mu       sync.Mutex
	inflight int
	peak     int
	calls    atomic.Int32
}

func (f *fakeProvider) Classify(ctx context.Context, text string) (types.Sentiment, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.inflight++
	f.peak = max(f.peak, f.inflight)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err, ok := f.fail[text]; ok {
		return types.Sentiment{}, err
	}
	label, ok := f.labels[text]
	if !ok {
		label = types.Neutral
	}
	return types.Sentiment{
		Label:      label,
		Confidence: 0.8,
		Probabilities: map[types.Label]float64{
			label: 0.8,
			otherLabel(label): 0.2,
		},
	}, nil
}

func otherLabel(l types.Label) types.Label {
	if l == types.Neutral {
		return types.Positive
	}
	return types.Neutral
}

func TestClassify(t *testing.T) {
	a := NewWithProvider(&fakeProvider{labels: map[string]types.Label{"छान": types.Positive}}, 2)

	s, err := a.Classify(context.Background(), "छान")
	require.NoError(t, err)
	assert.Equal(t, types.Positive, s.Label)
	assert.Equal(t, 0.8, s.Confidence)
}

func TestClassify_EmptyText(t *testing.T) {
	p := &fakeProvider{}
	a := NewWithProvider(p, 2)

	_, err := a.Classify(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Zero(t, p.calls.Load())
}

func TestClassify_ProviderFailure(t *testing.T) {
	a := NewWithProvider(&fakeProvider{fail: map[string]error{"x": errors.New("model down")}}, 1)

	_, err := a.Classify(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClassification)
	assert.Contains(t, err.Error(), "model down")
}

type badProvider struct{ s types.Sentiment }

func (b badProvider) Classify(ctx context.Context, text string) (types.Sentiment, error) {
	return b.s, nil
}

func TestClassify_InvalidResult(t *testing.T) {
	tests := []struct {
		name string
		s    types.Sentiment
	}{
		{"unknown label", types.Sentiment{Label: "Angry", Confidence: 0.5}},
		{"confidence above one", types.Sentiment{Label: types.Positive, Confidence: 1.5}},
		{"probabilities do not sum", types.Sentiment{
			Label:         types.Positive,
			Confidence:    0.5,
			Probabilities: map[types.Label]float64{types.Positive: 0.5, types.Negative: 0.2},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWithProvider(badProvider{tt.s}, 1).Classify(context.Background(), "x")
			assert.ErrorIs(t, err, ErrClassification)
		})
	}
}

func TestAnalyzeComments_PreservesOrder(t *testing.T) {
	p := &fakeProvider{
		labels: map[string]types.Label{"good": types.Positive, "bad": types.Negative},
		delay:  5 * time.Millisecond,
	}
	a := NewWithProvider(p, 3)

	comments := []types.Comment{
		{Text: "good", Author: "u1"},
		{Text: "meh", Author: "u2"},
		{Text: "  ", Author: "u3"},
		{Text: "bad", Author: "u4"},
		{Text: "good", Author: "u5"},
	}
	got, err := a.AnalyzeComments(context.Background(), comments)
	require.NoError(t, err)

	require.Len(t, got, 4)
	assert.Equal(t, []string{"u1", "u2", "u4", "u5"}, []string{got[0].Author, got[1].Author, got[2].Author, got[3].Author})
	assert.Equal(t, types.Positive, got[0].Sentiment)
	assert.Equal(t, types.Neutral, got[1].Sentiment)
	assert.Equal(t, types.Negative, got[2].Sentiment)
	assert.LessOrEqual(t, p.peak, 3)
}

func TestAnalyzeComments_Empty(t *testing.T) {
	got, err := NewWithProvider(&fakeProvider{}, 1).AnalyzeComments(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAnalyzeComments_BatchFailure(t *testing.T) {
	p := &fakeProvider{fail: map[string]error{"boom": errors.New("503")}}
	a := NewWithProvider(p, 2)

	_, err := a.AnalyzeComments(context.Background(), []types.Comment{
		{Text: "fine", Author: "u1"},
		{Text: "boom", Author: "u2"},
	})
	assert.ErrorIs(t, err, ErrClassification)
}

func TestNew(t *testing.T) {
	log, _ := test.NewNullLogger()

	a, err := New(config.Default().Sentiment, false, log)
	require.NoError(t, err)
	assert.Equal(t, config.ProviderRemote, a.Name())

	cfg := config.Default().Sentiment
	cfg.Provider = config.ProviderAnthropic
	_, err = New(cfg, false, log)
	assert.Error(t, err, "anthropic needs a key")

	cfg.APIKey = "sk-test"
	a, err = New(cfg, false, log)
	require.NoError(t, err)
	assert.Equal(t, config.ProviderAnthropic, a.Name())

	cfg.Provider = "bogus"
	_, err = New(cfg, false, log)
	assert.Error(t, err)
}
