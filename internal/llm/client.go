package llm

import (
	"context"
)

// VisionClient defines the interface for multimodal inference providers.
type VisionClient interface {
	// Complete submits one text prompt plus one image and returns the raw reply text.
	Complete(ctx context.Context, req VisionRequest) (string, error)
}

// VisionRequest is a single prompt-plus-image request.
type VisionRequest struct {
	Prompt      string
	MIMEType    string
	Image       []byte
	Temperature float64
	MaxTokens   int
}
