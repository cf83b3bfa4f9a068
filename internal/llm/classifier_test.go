package llm

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/trifetch/internal/common"
	"github.com/Veraticus/trifetch/internal/model"
	"github.com/Veraticus/trifetch/internal/waveform"
)

// mockVisionClient returns scripted replies and errors in order.
type mockVisionClient struct {
	block   bool
	replies []string
	errs    []error
	lastReq VisionRequest
	calls   int
	mu      sync.Mutex
}

func (m *mockVisionClient) Complete(ctx context.Context, req VisionRequest) (string, error) {
	m.mu.Lock()
	i := m.calls
	m.calls++
	m.lastReq = req
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return "", &common.InferenceServiceError{Provider: "mock", Err: ctx.Err()}
	}
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.replies) {
		return m.replies[i], nil
	}
	return m.replies[len(m.replies)-1], nil
}

func (m *mockVisionClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestClassifier(t *testing.T, client VisionClient) *Classifier {
	t.Helper()
	c := NewClassifierWithClient(client, Config{
		Provider:   "mock",
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		Timeout:    time.Second,
		RateLimit:  600,
	}, nil)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testWaveform() model.Waveform {
	w := model.NewWaveform(model.TotalSamples, model.NumChannels)
	for i := range w.Data {
		w.Data[i] = float32(i%400 - 200)
	}
	return w
}

func transient(msg string) error {
	return &common.InferenceServiceError{
		Provider: "mock",
		Err:      &common.RetryableError{Err: errors.New(msg), Retryable: true},
	}
}

func permanent(msg string) error {
	return &common.InferenceServiceError{
		Provider: "mock",
		Err:      &common.RetryableError{Err: errors.New(msg), Retryable: false},
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		reply       string
		groundTruth string
		want        model.ClassificationResult
	}{
		{
			name:        "agrees with ground truth",
			reply:       "AFIB",
			groundTruth: "AFIB",
			want:        model.ClassificationResult{Label: "AFIB", Confidence: ConfidenceAgree, Outcome: model.OutcomeAccepted},
		},
		{
			name:        "disagrees with ground truth",
			reply:       "AFIB",
			groundTruth: "NORMAL",
			want:        model.ClassificationResult{Label: "AFIB", Confidence: ConfidenceDisagree, Outcome: model.OutcomeAccepted},
		},
		{
			name:        "normalizes whitespace and case",
			reply:       "  vtach\n",
			groundTruth: "VTACH",
			want:        model.ClassificationResult{Label: "VTACH", Confidence: ConfidenceAgree, Outcome: model.OutcomeAccepted},
		},
		{
			name:        "unknown is a valid label",
			reply:       "unknown",
			groundTruth: "PVC",
			want:        model.ClassificationResult{Label: "UNKNOWN", Confidence: ConfidenceDisagree, Outcome: model.OutcomeAccepted},
		},
		{
			name:        "reply outside label set",
			reply:       "MAYBE",
			groundTruth: "AFIB",
			want:        model.ClassificationResult{Label: "AFIB", Confidence: ConfidenceAgree, Outcome: model.OutcomeInvalidResponse},
		},
		{
			name:        "trailing punctuation is not accepted",
			reply:       "AFIB.",
			groundTruth: "SVT",
			want:        model.ClassificationResult{Label: "SVT", Confidence: ConfidenceAgree, Outcome: model.OutcomeInvalidResponse},
		},
		{
			name:        "sentence reply",
			reply:       "This looks like AFIB",
			groundTruth: "PAUSE",
			want:        model.ClassificationResult{Label: "PAUSE", Confidence: ConfidenceAgree, Outcome: model.OutcomeInvalidResponse},
		},
		{
			name:        "empty reply",
			reply:       "",
			groundTruth: "NORMAL",
			want:        model.ClassificationResult{Label: "NORMAL", Confidence: ConfidenceAgree, Outcome: model.OutcomeInvalidResponse},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.reply, tt.groundTruth))
		})
	}
}

func TestPrompt(t *testing.T) {
	assert.Equal(t,
		"You are a world-class cardiologist. This is a 90-second dual-lead ECG (Lead I top, Lead II bottom). "+
			"The red vertical line marks where the monitor flagged an event. What arrhythmia is this? "+
			"Answer with exactly one word: AFIB, VTACH, PAUSE, SVT, NORMAL, PVC, or UNKNOWN.",
		Prompt())
}

func TestClassify_Accepted(t *testing.T) {
	client := &mockVisionClient{replies: []string{"AFIB"}}
	c := newTestClassifier(t, client)

	got := c.Classify(context.Background(), testWaveform(), 9000, "NORMAL")
	assert.Equal(t, model.ClassificationResult{Label: "AFIB", Confidence: 0.99, Outcome: model.OutcomeAccepted}, got)

	req := client.lastReq
	assert.Equal(t, Prompt(), req.Prompt)
	assert.Equal(t, "image/png", req.MIMEType)
	assert.Zero(t, req.Temperature)
	assert.Equal(t, 10, req.MaxTokens)
	assert.True(t, bytes.HasPrefix(req.Image, []byte("\x89PNG\r\n\x1a\n")))
}

func TestClassify_InvalidReply(t *testing.T) {
	c := newTestClassifier(t, &mockVisionClient{replies: []string{"MAYBE"}})

	got := c.Classify(context.Background(), testWaveform(), 9000, "AFIB")
	assert.Equal(t, model.ClassificationResult{Label: "AFIB", Confidence: 0.85, Outcome: model.OutcomeInvalidResponse}, got)
}

func TestClassify_RetriesTransientErrors(t *testing.T) {
	client := &mockVisionClient{
		errs:    []error{transient("502 bad gateway"), transient("connection reset")},
		replies: []string{"", "", "PVC"},
	}
	c := newTestClassifier(t, client)

	got := c.Classify(context.Background(), testWaveform(), 100, "PVC")
	assert.Equal(t, model.ClassificationResult{Label: "PVC", Confidence: 0.85, Outcome: model.OutcomeAccepted}, got)
	assert.Equal(t, 3, client.callCount())
}

func TestClassify_ServiceFailure(t *testing.T) {
	tests := []struct {
		client    *mockVisionClient
		name      string
		wantCalls int
	}{
		{
			name:      "permanent error is not retried",
			client:    &mockVisionClient{errs: []error{permanent("401 unauthorized")}, replies: []string{"AFIB"}},
			wantCalls: 1,
		},
		{
			name:      "unclassified error is not retried",
			client:    &mockVisionClient{errs: []error{errors.New("tls: bad certificate")}, replies: []string{"AFIB"}},
			wantCalls: 1,
		},
		{
			name: "retries exhausted",
			client: &mockVisionClient{
				errs:    []error{transient("a"), transient("b"), transient("c")},
				replies: []string{"AFIB"},
			},
			wantCalls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClassifier(t, tt.client)
			got := c.Classify(context.Background(), testWaveform(), 9000, "SVT")
			assert.Equal(t, model.ClassificationResult{Label: "SVT", Confidence: 0.70, Outcome: model.OutcomeServiceUnavailable}, got)
			assert.Equal(t, tt.wantCalls, tt.client.callCount())
		})
	}
}

func TestClassify_Timeout(t *testing.T) {
	client := &mockVisionClient{block: true}
	c := NewClassifierWithClient(client, Config{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		Timeout:    20 * time.Millisecond,
	}, nil)
	defer func() { _ = c.Close() }()

	start := time.Now()
	got := c.Classify(context.Background(), testWaveform(), 9000, "AFIB")
	assert.Equal(t, model.ClassificationResult{Label: "AFIB", Confidence: 0.70, Outcome: model.OutcomeServiceUnavailable}, got)
	assert.Equal(t, 2, client.callCount())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClassify_CanceledContext(t *testing.T) {
	client := &mockVisionClient{replies: []string{"AFIB"}}
	c := newTestClassifier(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := c.Classify(ctx, testWaveform(), 9000, "NORMAL")
	assert.Equal(t, model.OutcomeServiceUnavailable, got.Outcome)
	assert.Equal(t, "NORMAL", got.Label)
	assert.Equal(t, 0, client.callCount())
}

func TestClassify_RenderFailure(t *testing.T) {
	client := &mockVisionClient{replies: []string{"AFIB"}}
	c := newTestClassifier(t, client)

	w := testWaveform()
	w.Data[42] = float32(math.NaN())

	got := c.Classify(context.Background(), w, 9000, "VTACH")
	assert.Equal(t, model.ClassificationResult{Label: "VTACH", Confidence: 0.70, Outcome: model.OutcomeRenderFailed}, got)
	assert.Zero(t, client.callCount(), "nothing is sent when rendering fails")
}

func TestClassify_FallbackIsLoggedWithKind(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	client := &mockVisionClient{errs: []error{permanent("401 unauthorized")}, replies: []string{"AFIB"}}
	c := NewClassifierWithClient(client, Config{Provider: "mock", MaxRetries: 1, RateLimit: 600}, logger)
	defer func() { _ = c.Close() }()

	got := c.Classify(context.Background(), testWaveform(), 9000, "SVT")
	require.Equal(t, model.OutcomeServiceUnavailable, got.Outcome)

	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"kind":"`+common.KindInference+`"`)
	assert.Contains(t, out, `"outcome":"service_unavailable"`)
	assert.Contains(t, out, `"ground_truth":"SVT"`)
	assert.Contains(t, out, "401 unauthorized")
}

func TestClassifyEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evt-1.npy")
	require.NoError(t, waveform.WriteArtifact(path, testWaveform()))

	client := &mockVisionClient{replies: []string{"pause"}}
	c := newTestClassifier(t, client)

	event := model.CanonicalEvent{
		EventID:     "evt-1",
		EventName:   "PAUSE",
		StartSample: 720000,
		ECGPath:     path,
	}
	got := c.ClassifyEvent(context.Background(), event, waveform.Loader{})
	assert.Equal(t, model.ClassificationResult{Label: "PAUSE", Confidence: 0.85, Outcome: model.OutcomeAccepted}, got)

	event.ECGPath = filepath.Join(dir, "missing.npy")
	got = c.ClassifyEvent(context.Background(), event, waveform.Loader{})
	assert.Equal(t, model.ClassificationResult{Label: "PAUSE", Confidence: 0.70, Outcome: model.OutcomeRenderFailed}, got)
	assert.Equal(t, 1, client.callCount())
}

func TestNewClassifier(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "openai", cfg: Config{Provider: "openai", APIKey: "k"}},
		{name: "groq alias", cfg: Config{Provider: "groq", APIKey: "k"}},
		{name: "default provider", cfg: Config{APIKey: "k"}},
		{name: "missing key", cfg: Config{Provider: "openai"}, wantErr: true},
		{name: "gemini missing key", cfg: Config{Provider: "gemini"}, wantErr: true},
		{name: "unsupported provider", cfg: Config{Provider: "anthropic", APIKey: "k"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClassifier(tt.cfg, nil)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, c.Close())
		})
	}
}
