package llms

import "context"

// Prompt is a single-shot request to a language model.
type Prompt struct {
	// System carries the agent persona.
	System string
	// User carries the conversation so far and what is asked of the agent.
	User string
}

// Provider is one language model backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// ProviderFunc adapts a function to a [Provider].
type ProviderFunc struct {
	ProviderName string
	Fn           func(ctx context.Context, prompt Prompt) (string, error)
}

func (p ProviderFunc) Name() string { return p.ProviderName }

func (p ProviderFunc) Complete(ctx context.Context, prompt Prompt) (string, error) {
	return p.Fn(ctx, prompt)
}
