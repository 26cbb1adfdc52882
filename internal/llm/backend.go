// Package llm talks to the text generation service.
package llm

import "context"

// Request is a single generation call. Temperature and MaxOutputTokens come
// from configuration and are the same for every call.
type Request struct {
	Model           string
	Prompt          string
	Temperature     float64
	MaxOutputTokens int
}

// Backend produces text for a prompt using the given credential.
type Backend interface {
	Generate(ctx context.Context, apiKey string, req Request) (string, error)
}
