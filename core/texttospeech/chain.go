package texttospeech

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/koscakluka/ema-panel/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNoSynthesizers = errors.New("no speech synthesizers configured")
	ErrEmptyAudio     = errors.New("speech synthesizer returned no audio")
)

// Synthesizer is a single text-to-speech engine. An empty voice selects the
// engine's default voice.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, voice, text string) (audio.Clip, error)
}

type ChainOption func(*Chain)

func WithProfiles(profiles map[string]VoiceProfile) ChainOption {
	return func(c *Chain) {
		c.profiles = maps.Clone(profiles)
	}
}

func WithRandomizer(rnd Randomizer) ChainOption {
	return func(c *Chain) {
		if rnd != nil {
			c.rnd = rnd
		}
	}
}

// Chain speaks text in an agent's voice on the first engine that succeeds.
// An agent's preferred engine is tried before the others.
type Chain struct {
	synthesizers []Synthesizer
	profiles     map[string]VoiceProfile

	rnd   Randomizer
	rndMu sync.Mutex

	fallbacks metric.Int64Counter
}

func NewChain(synthesizers []Synthesizer, opts ...ChainOption) *Chain {
	fallbacks, err := meter.Int64Counter("ema_panel.tts.fallbacks",
		metric.WithDescription("Number of times a speech synthesizer failed and the next one was tried"))
	if err != nil {
		logger.Warn("failed to create fallback counter", "error", err)
	}

	c := &Chain{
		synthesizers: append([]Synthesizer(nil), synthesizers...),
		profiles:     map[string]VoiceProfile{},
		rnd:          newDefaultRandomizer(),
		fallbacks:    fallbacks,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chain) Profile(agentID string) (VoiceProfile, bool) {
	profile, ok := c.profiles[agentID]
	return profile, ok
}

// Engines returns the engine order used for agentID.
func (c *Chain) Engines(agentID string) []string {
	ordered := c.ordered(c.profiles[agentID].PreferredEngine)
	names := make([]string, len(ordered))
	for i, synthesizer := range ordered {
		names[i] = synthesizer.Name()
	}
	return names
}

func (c *Chain) ordered(preferred string) []Synthesizer {
	if preferred == "" {
		return c.synthesizers
	}
	ordered := make([]Synthesizer, 0, len(c.synthesizers))
	for _, synthesizer := range c.synthesizers {
		if synthesizer.Name() == preferred {
			ordered = append(ordered, synthesizer)
		}
	}
	for _, synthesizer := range c.synthesizers {
		if synthesizer.Name() != preferred {
			ordered = append(ordered, synthesizer)
		}
	}
	return ordered
}

func (c *Chain) decorate(profile VoiceProfile, text string) string {
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return profile.Decorate(text, c.rnd)
}

// Synthesize renders text in agentID's voice. Agents without a profile are
// spoken with each engine's default voice and undecorated text.
func (c *Chain) Synthesize(ctx context.Context, agentID, text string) (audio.Clip, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech", trace.WithAttributes(
		attribute.String("agent.id", agentID),
		attribute.Int("synthesizers", len(c.synthesizers)),
	))
	defer span.End()

	if len(c.synthesizers) == 0 {
		span.RecordError(ErrNoSynthesizers)
		span.SetStatus(codes.Error, ErrNoSynthesizers.Error())
		return audio.Clip{}, ErrNoSynthesizers
	}

	profile, hasProfile := c.profiles[agentID]
	if hasProfile {
		text = c.decorate(profile, text)
	}

	ordered := c.ordered(profile.PreferredEngine)
	var errs []error
	for i, synthesizer := range ordered {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		clip, err := synthesizer.Synthesize(ctx, profile.Voice(synthesizer.Name()), text)
		if err == nil && clip.Empty() {
			err = ErrEmptyAudio
		}
		if err == nil {
			span.SetAttributes(
				attribute.String("synthesizer", synthesizer.Name()),
				attribute.Int64("audio.duration_ms", clip.Duration().Milliseconds()),
			)
			return clip, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", synthesizer.Name(), err))
		if i < len(ordered)-1 {
			logger.Warn("speech synthesizer failed, falling back",
				"synthesizer", synthesizer.Name(), "agent_id", agentID, "error", err)
			if c.fallbacks != nil {
				c.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("synthesizer", synthesizer.Name())))
			}
		}
	}

	err := fmt.Errorf("all speech synthesizers failed: %w", errors.Join(errs...))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return audio.Clip{}, err
}
