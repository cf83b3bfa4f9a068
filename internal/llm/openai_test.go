package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/trifetch/internal/common"
)

func TestNewOpenAIClient(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantModel string
		wantURL   string
		wantErr   bool
	}{
		{
			name:      "defaults to groq",
			config:    Config{APIKey: "test-key"},
			wantModel: DefaultModel,
			wantURL:   DefaultBaseURL,
		},
		{
			name:    "missing API key",
			config:  Config{},
			wantErr: true,
		},
		{
			name: "custom model and base url",
			config: Config{
				APIKey:  "test-key",
				Model:   "gpt-4o",
				BaseURL: "https://api.openai.com/v1/",
			},
			wantModel: "gpt-4o",
			wantURL:   "https://api.openai.com/v1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := newOpenAIClient(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrMissingConfig)
				return
			}
			require.NoError(t, err)
			oc, ok := client.(*openAIClient)
			require.True(t, ok)
			assert.Equal(t, tt.wantModel, oc.model)
			assert.Equal(t, tt.wantURL, oc.baseURL)
		})
	}
}

func completionBody(content string) string {
	resp := map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestOpenAIClient_Complete(t *testing.T) {
	var captured openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/openai/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &captured))

		// temperature must be sent even when zero
		var raw map[string]any
		assert.NoError(t, json.Unmarshal(body, &raw))
		assert.Contains(t, raw, "temperature")

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody(" AFIB\n"))
	}))
	defer server.Close()

	client, err := newOpenAIClient(Config{APIKey: "test-key", BaseURL: server.URL + "/openai/v1"})
	require.NoError(t, err)

	reply, err := client.Complete(context.Background(), VisionRequest{
		Prompt:    "what is this?",
		Image:     []byte{1, 2, 3},
		MIMEType:  "image/png",
		MaxTokens: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, " AFIB\n", reply)

	assert.Equal(t, DefaultModel, captured.Model)
	assert.Equal(t, 10, captured.MaxTokens)
	assert.Zero(t, captured.Temperature)
	require.Len(t, captured.Messages, 1)
	parts := captured.Messages[0].Content
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "what is this?", parts[0].Text)
	assert.Equal(t, "image_url", parts[1].Type)
	require.NotNil(t, parts[1].ImageURL)
	assert.Equal(t, "data:image/png;base64,AQID", parts[1].ImageURL.URL)
}

func TestOpenAIClient_Errors(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		statusCode    int
		wantRetryable bool
		wantRateLimit bool
	}{
		{
			name:          "rate limited",
			statusCode:    http.StatusTooManyRequests,
			body:          `{"error":"slow down"}`,
			wantRetryable: true,
			wantRateLimit: true,
		},
		{
			name:          "server error",
			statusCode:    http.StatusBadGateway,
			body:          "bad gateway",
			wantRetryable: true,
		},
		{
			name:       "unauthorized",
			statusCode: http.StatusUnauthorized,
			body:       `{"error":"invalid key"}`,
		},
		{
			name:       "malformed body",
			statusCode: http.StatusOK,
			body:       "not json",
		},
		{
			name:       "no choices",
			statusCode: http.StatusOK,
			body:       `{"choices":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			client, err := newOpenAIClient(Config{APIKey: "k", BaseURL: server.URL})
			require.NoError(t, err)

			_, err = client.Complete(context.Background(), VisionRequest{Prompt: "p", Image: []byte{0}})
			require.Error(t, err)

			var svcErr *common.InferenceServiceError
			require.True(t, errors.As(err, &svcErr))
			assert.Equal(t, ProviderOpenAI, svcErr.Provider)
			assert.Equal(t, tt.statusCode, svcErr.StatusCode)
			assert.Equal(t, common.KindInference, common.ErrorKind(err))

			var retryErr *common.RetryableError
			require.True(t, errors.As(err, &retryErr))
			assert.Equal(t, tt.wantRetryable, retryErr.Retryable)
			assert.Equal(t, tt.wantRateLimit, errors.Is(err, common.ErrRateLimit))
		})
	}
}

func TestOpenAIClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, err := newOpenAIClient(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.Complete(ctx, VisionRequest{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, common.IsRetryable(err))
}
