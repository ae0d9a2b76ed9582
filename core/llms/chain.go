package llms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNoProviders   = errors.New("no language model providers configured")
	ErrEmptyResponse = errors.New("language model returned an empty response")
)

// Chain tries its providers in order and returns the first non-empty
// response. It is the single generator the orchestrator sees, however many
// backends are configured behind it.
type Chain struct {
	providers []Provider
	fallbacks metric.Int64Counter
}

func NewChain(providers ...Provider) *Chain {
	fallbacks, err := meter.Int64Counter("ema_panel.llm.fallbacks",
		metric.WithDescription("Number of times a language model provider failed and the next one was tried"))
	if err != nil {
		logger.Warn("failed to create fallback counter", "error", err)
	}

	return &Chain{
		providers: append([]Provider(nil), providers...),
		fallbacks: fallbacks,
	}
}

func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, provider := range c.providers {
		names[i] = provider.Name()
	}
	return names
}

// Generate produces agentID's response to prompt. Errors of every failed
// provider are joined when none succeeds.
func (c *Chain) Generate(ctx context.Context, agentID string, prompt Prompt) (string, error) {
	ctx, span := tracer.Start(ctx, "generate response", trace.WithAttributes(
		attribute.String("agent.id", agentID),
		attribute.Int("providers", len(c.providers)),
	))
	defer span.End()

	if len(c.providers) == 0 {
		span.RecordError(ErrNoProviders)
		span.SetStatus(codes.Error, ErrNoProviders.Error())
		return "", ErrNoProviders
	}

	var errs []error
	for i, provider := range c.providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		response, err := provider.Complete(ctx, prompt)
		if err == nil && strings.TrimSpace(response) == "" {
			err = ErrEmptyResponse
		}
		if err == nil {
			span.SetAttributes(attribute.String("provider", provider.Name()))
			return strings.TrimSpace(response), nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
		if i < len(c.providers)-1 {
			logger.Warn("language model provider failed, falling back",
				"provider", provider.Name(), "agent_id", agentID, "error", err)
			if c.fallbacks != nil {
				c.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider.Name())))
			}
		}
	}

	err := fmt.Errorf("all language model providers failed: %w", errors.Join(errs...))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return "", err
}
