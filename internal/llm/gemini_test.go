package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/trifetch/internal/common"
)

func TestGeminiClient_Complete(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent"), r.URL.Path)

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"NORMAL"}]}}]}`)
	}))
	defer server.Close()

	client, err := newGeminiClient(Config{APIKey: "k", Model: "gemini-test", BaseURL: server.URL})
	require.NoError(t, err)

	reply, err := client.Complete(context.Background(), VisionRequest{
		Prompt:    "what is this?",
		Image:     []byte{1, 2, 3},
		MaxTokens: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "NORMAL", reply)

	require.Contains(t, captured, "contents")
	require.Contains(t, captured, "generationConfig")
	genCfg, ok := captured["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 10, genCfg["maxOutputTokens"])
}

func TestGeminiClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`)
	}))
	defer server.Close()

	client, err := newGeminiClient(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), VisionRequest{Prompt: "p", Image: []byte{0}})
	require.Error(t, err)

	var svcErr *common.InferenceServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, ProviderGemini, svcErr.Provider)
}

func TestNewGeminiClient_DefaultModel(t *testing.T) {
	client, err := newGeminiClient(Config{APIKey: "k"})
	require.NoError(t, err)

	gc, ok := client.(*geminiClient)
	require.True(t, ok)
	assert.Equal(t, DefaultGeminiModel, gc.model)
}
