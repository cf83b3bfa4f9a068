package llm

import (
	"fmt"
	"strings"
)

// Supported providers.
const (
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
	ProviderGemini = "gemini"
)

// NewClient creates a vision client based on the provided configuration.
func NewClient(cfg Config) (VisionClient, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, ProviderGroq, "":
		return newOpenAIClient(cfg)
	case ProviderGemini:
		return newGeminiClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
