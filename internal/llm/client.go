package llm

import "context"

// Client is the minimal surface the note-synthesis glue needs. The
// provider behind it is a black box; prompts in, text out.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
