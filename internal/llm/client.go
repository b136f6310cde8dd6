package llm

import (
	"context"
)

// LLMClient is the transport seam to a language model. The
// disambiguation tier is the only caller; it owns prompts, parsing and
// timeouts.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
