package llm

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/Veraticus/trifetch/internal/common"
)

// DefaultGeminiModel is used when the gemini provider is selected without a model.
const DefaultGeminiModel = "gemini-2.5-flash"

// geminiClient implements VisionClient using Google's Gemini API.
type geminiClient struct {
	client *genai.Client
	model  string
}

// newGeminiClient creates a new Gemini client.
func newGeminiClient(cfg Config) (VisionClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required for the %s provider", common.ErrMissingConfig, ProviderGemini)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	client, err := genai.NewClient(context.Background(), clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &geminiClient{
		client: client,
		model:  model,
	}, nil
}

// Complete sends the prompt and image as one user turn.
func (c *geminiClient) Complete(ctx context.Context, vr VisionRequest) (string, error) {
	mime := vr.MIMEType
	if mime == "" {
		mime = "image/png"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(vr.Prompt),
			genai.NewPartFromBytes(vr.Image, mime),
		}, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(vr.Temperature)),
		MaxOutputTokens: int32(vr.MaxTokens),
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", &common.InferenceServiceError{
			Provider: ProviderGemini,
			Err:      &common.RetryableError{Err: fmt.Errorf("generate content failed: %w", err), Retryable: true},
		}
	}

	text := result.Text()
	if text == "" {
		return "", &common.InferenceServiceError{
			Provider: ProviderGemini,
			Err:      &common.RetryableError{Err: common.ErrEmptyCompletion, Retryable: false},
		}
	}
	return text, nil
}
