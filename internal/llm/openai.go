package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Veraticus/trifetch/internal/common"
)

// Defaults for the OpenAI-compatible provider. Groq serves the OpenAI chat
// completions API under its own base URL.
const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "meta-llama/llama-4-maverick-17b-128e-instruct"
)

// openAIClient implements VisionClient for OpenAI-compatible chat completion APIs.
type openAIClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// newOpenAIClient creates a new OpenAI-compatible API client.
func newOpenAIClient(cfg Config) (VisionClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required for the %s provider", common.ErrMissingConfig, ProviderOpenAI)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &openAIClient{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string              `json:"role"`
	Content []openAIContentPart `json:"content"`
}

type openAIContentPart struct {
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

// openAIResponse represents the chat completion response structure.
type openAIResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
		Index        int    `json:"index"`
	} `json:"choices"`
}

// Complete sends the prompt and image as a single user message.
func (c *openAIClient) Complete(ctx context.Context, vr VisionRequest) (string, error) {
	mime := vr.MIMEType
	if mime == "" {
		mime = "image/png"
	}

	requestBody := openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{
				Role: "user",
				Content: []openAIContentPart{
					{Type: "text", Text: vr.Prompt},
					{
						Type: "image_url",
						ImageURL: &openAIImageURL{
							URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(vr.Image),
						},
					},
				},
			},
		},
		Temperature: vr.Temperature,
		MaxTokens:   vr.MaxTokens,
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", c.fail(0, fmt.Errorf("failed to marshal request: %w", err), false)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", c.fail(0, fmt.Errorf("failed to create request: %w", err), false)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.fail(0, fmt.Errorf("request failed: %w", err), true)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", c.fail(resp.StatusCode, fmt.Errorf("failed to read response: %w", err), true)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", c.fail(resp.StatusCode, fmt.Errorf("%w: %s", common.ErrRateLimit, string(body)), true)
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", c.fail(resp.StatusCode, fmt.Errorf("server error: %s", string(body)), true)
	case resp.StatusCode != http.StatusOK:
		return "", c.fail(resp.StatusCode, fmt.Errorf("request rejected: %s", string(body)), false)
	}

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", c.fail(resp.StatusCode, fmt.Errorf("failed to parse response: %w", err), false)
	}

	if len(response.Choices) == 0 {
		return "", c.fail(resp.StatusCode, common.ErrEmptyCompletion, false)
	}

	return response.Choices[0].Message.Content, nil
}

func (c *openAIClient) closeIdle() {
	c.httpClient.CloseIdleConnections()
}

func (c *openAIClient) fail(status int, err error, retryable bool) error {
	return &common.InferenceServiceError{
		Provider:   ProviderOpenAI,
		StatusCode: status,
		Err:        &common.RetryableError{Err: err, Retryable: retryable},
	}
}
