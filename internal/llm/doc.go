// Package llm classifies rendered ECG strip-charts with a multimodal model.
// It supports OpenAI-compatible chat completion endpoints (Groq by default) and
// Gemini, with per-request timeouts, retry on transient failures and rate limiting.
// A classification never fails: every error path degrades to the ground-truth label
// with reduced confidence.
package llm
