// Package openai talks to OpenAI compatible chat completion APIs: OpenAI
// itself, OpenRouter, Groq, Mistral and a local Ollama server.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/koscakluka/ema-panel/core/llms"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	GroqBaseURL       = "https://api.groq.com/openai/v1"
	MistralBaseURL    = "https://api.mistral.ai/v1"
	OllamaBaseURL     = "http://localhost:11434/v1"

	defaultMaxTokens = 1000
)

var ErrNoChoices = errors.New("chat completion returned no choices")

type Client struct {
	name   string
	model  string
	client *openai.Client

	maxTokens   int
	temperature *float32
}

var _ llms.Provider = (*Client)(nil)

type config struct {
	name        string
	baseURL     string
	headers     http.Header
	maxTokens   int
	temperature *float32
	transport   http.RoundTripper
}

type ClientOption func(*config)

// WithName sets the provider name reported in logs and errors.
func WithName(name string) ClientOption {
	return func(c *config) { c.name = name }
}

func WithBaseURL(baseURL string) ClientOption {
	return func(c *config) { c.baseURL = baseURL }
}

// WithHeader adds a header to every request, e.g. OpenRouter's HTTP-Referer
// and X-Title.
func WithHeader(key, value string) ClientOption {
	return func(c *config) {
		if value == "" {
			return
		}
		if c.headers == nil {
			c.headers = http.Header{}
		}
		c.headers.Set(key, value)
	}
}

func WithMaxTokens(maxTokens int) ClientOption {
	return func(c *config) { c.maxTokens = maxTokens }
}

func WithTemperature(temperature float32) ClientOption {
	return func(c *config) { c.temperature = &temperature }
}

// WithTransport replaces the base HTTP transport. Requests are still traced.
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *config) { c.transport = transport }
}

func NewClient(apiKey, model string, opts ...ClientOption) *Client {
	cfg := config{name: "openai", maxTokens: defaultMaxTokens, transport: http.DefaultTransport}
	for _, opt := range opts {
		opt(&cfg)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.baseURL != "" {
		clientConfig.BaseURL = cfg.baseURL
	}

	var transport http.RoundTripper = cfg.transport
	if len(cfg.headers) > 0 {
		transport = headerTransport{rt: transport, headers: cfg.headers}
	}
	clientConfig.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(transport)}

	return &Client{
		name:        cfg.name,
		model:       model,
		client:      openai.NewClientWithConfig(clientConfig),
		maxTokens:   cfg.maxTokens,
		temperature: cfg.temperature,
	}
}

// NewOpenRouter creates a client for OpenRouter. referrer and title identify
// the app in OpenRouter rankings and may be empty.
func NewOpenRouter(apiKey, model, referrer, title string, opts ...ClientOption) *Client {
	opts = append([]ClientOption{
		WithName("openrouter"),
		WithBaseURL(OpenRouterBaseURL),
		WithHeader("HTTP-Referer", referrer),
		WithHeader("X-Title", title),
	}, opts...)
	return NewClient(apiKey, model, opts...)
}

func NewGroq(apiKey, model string, opts ...ClientOption) *Client {
	opts = append([]ClientOption{WithName("groq"), WithBaseURL(GroqBaseURL)}, opts...)
	return NewClient(apiKey, model, opts...)
}

func NewMistral(apiKey, model string, opts ...ClientOption) *Client {
	opts = append([]ClientOption{WithName("mistral"), WithBaseURL(MistralBaseURL)}, opts...)
	return NewClient(apiKey, model, opts...)
}

// NewOllama creates a client for a local Ollama server. baseURL defaults to
// [OllamaBaseURL].
func NewOllama(baseURL, model string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = OllamaBaseURL
	}
	opts = append([]ClientOption{WithName("ollama"), WithBaseURL(baseURL)}, opts...)
	return NewClient("ollama", model, opts...)
}

func (c *Client) Name() string { return c.name }

func (c *Client) Complete(ctx context.Context, prompt llms.Prompt) (string, error) {
	ctx, span := tracer.Start(ctx, "chat completion")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider", c.name),
		attribute.String("request.model", c.model),
	)

	var messages []openai.ChatCompletionMessage
	if prompt.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: prompt.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt.User})

	req := openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	}
	if c.temperature != nil {
		req.Temperature = *c.temperature
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		err = fmt.Errorf("failed to create chat completion: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if len(resp.Choices) == 0 {
		span.RecordError(ErrNoChoices)
		span.SetStatus(codes.Error, ErrNoChoices.Error())
		return "", ErrNoChoices
	}

	span.SetAttributes(
		attribute.Int("response.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("response.completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}
