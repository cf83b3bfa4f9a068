package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/trifetch/internal/config"
	"github.com/Veraticus/trifetch/internal/llm"
)

// addLLMFlags registers the inference flags shared by classify and report.
func addLLMFlags(cmd *cobra.Command) {
	cmd.Flags().String("provider", "", "inference provider (groq, openai, gemini)")
	cmd.Flags().String("model", "", "model name (default depends on the provider)")
	cmd.Flags().String("base-url", "", "override the provider endpoint")
	cmd.Flags().Duration("timeout", 0, "per-request timeout")
	cmd.Flags().Int("rate-limit", 0, "maximum requests per minute")
}

// bindLLMFlags binds the inference flags of the running command. Binding happens at run
// time because classify and report share the viper keys.
func bindLLMFlags(cmd *cobra.Command) {
	for key, flag := range map[string]string{
		"llm.provider":   "provider",
		"llm.model":      "model",
		"llm.base_url":   "base-url",
		"llm.timeout":    "timeout",
		"llm.rate_limit": "rate-limit",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			_ = viper.BindPFlag(key, f)
		}
	}
}

// createClassifier builds the vision classifier from configuration.
func createClassifier(cfg *config.Config) (*llm.Classifier, error) {
	classifier, err := llm.NewClassifier(cfg.LLM, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier for provider %s: %w", cfg.LLM.Provider, err)
	}
	return classifier, nil
}
