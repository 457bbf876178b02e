// Package llm provides backends for the reasoning step of risk
// assessments. Every backend implements LLMClient; the daemon picks one
// at boot from configuration and the reasoning gateway never knows which.
package llm

import "context"

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`

	// JSONOutput asks the backend to constrain decoding to valid JSON
	// (Ollama format=json, OpenAI response_format=json_object). Backends
	// without such a mode ignore it; the caller validates regardless.
	JSONOutput bool `json:"json_output"`
}

// LLMClient defines the standard interface for any LLM backend
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}
