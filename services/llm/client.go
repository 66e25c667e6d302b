package llm

import (
	"context"

	"github.com/AleutianAI/AleutianVitals/services/orchestrator/datatypes"
)

// LLMClient defines the standard interface for any chat/embedding backend.
type LLMClient interface {
	// Complete sends a multi-message exchange and returns the single
	// completion text.
	Complete(ctx context.Context, messages []datatypes.Message) (string, error)

	// Embed converts text into a fixed-dimension vector.
	Embed(ctx context.Context, text string) ([]float32, error)
}
