package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/trifetch/internal/common"
	"github.com/Veraticus/trifetch/internal/metrics"
	"github.com/Veraticus/trifetch/internal/model"
	"github.com/Veraticus/trifetch/internal/render"
	"github.com/Veraticus/trifetch/internal/service"
)

// Confidence values reported with each result. The agree/disagree polarity is
// inverted: a prediction that matches the ground truth reports the lower value.
// This is likely a defect and should be swapped once downstream consumers stop
// relying on it.
const (
	ConfidenceAgree    = 0.85
	ConfidenceDisagree = 0.99
	ConfidenceFallback = 0.70
)

// Sampling parameters are fixed so replies stay a single deterministic token.
const (
	temperature = 0
	maxTokens   = 10
)

// Classifier labels ECG events by rendering them and asking a vision model.
type Classifier struct {
	client      VisionClient
	renderer    *render.Renderer
	logger      *slog.Logger
	rateLimiter *rateLimiter
	provider    string
	retryOpts   service.RetryOptions
	timeout     time.Duration
}

// Config holds configuration for the vision classifier.
type Config struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	RetryDelay time.Duration
	MaxRetries int
	RateLimit  int
}

// NewClassifier creates a classifier backed by the configured provider.
func NewClassifier(cfg Config, logger *slog.Logger) (*Classifier, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return NewClassifierWithClient(client, cfg, logger), nil
}

// NewClassifierWithClient creates a classifier around an existing client.
func NewClassifierWithClient(client VisionClient, cfg Config, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = ProviderOpenAI
	}

	return &Classifier{
		client:      client,
		renderer:    render.NewDefaultRenderer(),
		logger:      logger,
		rateLimiter: newRateLimiter(cfg.RateLimit),
		provider:    provider,
		retryOpts:   retryOpts,
		timeout:     timeout,
	}
}

// Prompt returns the fixed instruction sent with every strip-chart.
func Prompt() string {
	labels := make([]string, len(model.Labels))
	for i, l := range model.Labels {
		labels[i] = string(l)
	}
	last := len(labels) - 1
	return fmt.Sprintf("You are a world-class cardiologist. This is a 90-second dual-lead ECG "+
		"(Lead I top, Lead II bottom). The red vertical line marks where the monitor flagged an event. "+
		"What arrhythmia is this? Answer with exactly one word: %s, or %s.",
		strings.Join(labels[:last], ", "), labels[last])
}

// ClassifyEvent loads the event's artifact and classifies it against its recorded label.
func (c *Classifier) ClassifyEvent(ctx context.Context, event model.CanonicalEvent, loader service.WaveformLoader) model.ClassificationResult {
	w, err := loader.Load(event.ECGPath)
	if err != nil {
		return c.fallback(model.OutcomeRenderFailed, event.EventName,
			fmt.Errorf("failed to load waveform for %s: %w", event.EventID, err))
	}

	result := c.Classify(ctx, w, event.StartSample, event.EventName)
	c.logger.Info("Event classified",
		"event_id", event.EventID,
		"label", result.Label,
		"ground_truth", event.EventName,
		"confidence", result.Confidence,
		"outcome", result.Outcome)
	return result
}

// Classify renders w with its onset marker and asks the model for a label.
// It never fails: render and service errors fall back to groundTruth with
// ConfidenceFallback.
func (c *Classifier) Classify(ctx context.Context, w model.Waveform, onset int, groundTruth string) model.ClassificationResult {
	img, err := c.renderer.Render(w, onset)
	if err != nil {
		return c.fallback(model.OutcomeRenderFailed, groundTruth, err)
	}

	reply, err := c.infer(ctx, img)
	if err != nil {
		return c.fallback(model.OutcomeServiceUnavailable, groundTruth, err)
	}

	result := Resolve(reply, groundTruth)
	if result.Outcome == model.OutcomeInvalidResponse {
		c.logger.Warn("Model reply outside label set",
			"reply", reply,
			"ground_truth", groundTruth)
	}
	metrics.Classifications.WithLabelValues(string(result.Outcome)).Inc()
	return result
}

// Resolve maps a raw model reply onto the closed label set. A reply outside the set
// falls back to groundTruth.
func Resolve(reply, groundTruth string) model.ClassificationResult {
	label, ok := model.ParseLabel(reply)

	result := model.ClassificationResult{
		Label:   string(label),
		Outcome: model.OutcomeAccepted,
	}
	if !ok {
		result.Label = groundTruth
		result.Outcome = model.OutcomeInvalidResponse
	}

	result.Confidence = ConfidenceAgree
	if result.Label != groundTruth {
		result.Confidence = ConfidenceDisagree
	}
	return result
}

func (c *Classifier) infer(ctx context.Context, img *render.Image) (string, error) {
	start := time.Now()
	defer func() {
		metrics.InferenceDuration.WithLabelValues(c.provider).Observe(time.Since(start).Seconds())
	}()

	req := VisionRequest{
		Prompt:      Prompt(),
		Image:       img.PNG,
		MIMEType:    "image/png",
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	var reply string
	err := common.WithRetry(ctx, func() error {
		if err := ctx.Err(); err != nil {
			return &common.RetryableError{Err: err, Retryable: false}
		}
		if err := c.rateLimiter.wait(ctx); err != nil {
			return &common.RetryableError{Err: err, Retryable: false}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		r, err := c.client.Complete(attemptCtx, req)
		if err != nil {
			metrics.InferenceErrors.WithLabelValues(c.provider).Inc()
			if ctx.Err() != nil || !common.IsRetryable(err) {
				return &common.RetryableError{Err: err, Retryable: false}
			}
			return err
		}
		reply = r
		return nil
	}, c.retryOpts)

	return reply, err
}

func (c *Classifier) fallback(outcome model.Outcome, groundTruth string, err error) model.ClassificationResult {
	common.LogError(c.logger, err, "Classification fell back to ground truth", common.Fields{
		"outcome":      string(outcome),
		"ground_truth": groundTruth,
		"provider":     c.provider,
	})
	metrics.Classifications.WithLabelValues(string(outcome)).Inc()

	return model.ClassificationResult{
		Label:      groundTruth,
		Outcome:    outcome,
		Confidence: ConfidenceFallback,
	}
}

// Close releases idle connections held by the underlying client.
func (c *Classifier) Close() error {
	if closer, ok := c.client.(interface{ closeIdle() }); ok {
		closer.closeIdle()
	}
	return nil
}
