package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-panel/core/audio"
)

type playbackClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	leftoverAudio []byte
	marks         []playbackMark

	mu      sync.Mutex
	audioMu sync.Mutex
}

type playbackMark struct {
	position int
	done     chan struct{}
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sampleRate := uint32(audio.DefaultSampleRate)
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = sampleRate
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	c.config.Periods = 4

	c.audioContext = audioContext

	var err error
	if c.device, err = malgo.InitDevice(
		c.audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}

	c.ClearBuffer()
	return nil
}

// Play queues clip and blocks until the device has consumed it. Cancelling
// ctx drops whatever has not been played yet.
func (c *playbackClient) Play(ctx context.Context, clip audio.Clip) error {
	if !clip.Encoding.IsZero() && clip.Encoding != audio.GetDefaultEncodingInfo() {
		return fmt.Errorf("%w: playback expects %s, got %s", audio.ErrUnsupportedEncoding, audio.GetDefaultEncodingInfo(), clip.Encoding)
	}

	c.mu.Lock()
	ready := c.device != nil && c.device.IsStarted()
	c.mu.Unlock()
	if !ready {
		return fmt.Errorf("playback device not started")
	}

	done := c.enqueue(clip.Data)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.ClearBuffer()
		return ctx.Err()
	}
}

// enqueue appends data to the playback buffer and returns a channel closed
// once the device has consumed it.
func (c *playbackClient) enqueue(data []byte) <-chan struct{} {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()

	c.leftoverAudio = append(c.leftoverAudio, data...)
	mark := playbackMark{position: len(c.leftoverAudio), done: make(chan struct{})}
	c.marks = append(c.marks, mark)
	return mark.done
}

// ClearBuffer drops queued audio and releases everyone waiting on it.
func (c *playbackClient) ClearBuffer() {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()

	c.leftoverAudio = nil
	for _, mark := range c.marks {
		close(mark.done)
	}
	c.marks = nil
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	c.device.Uninit()
	c.device = nil

	return nil
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		c.audioMu.Lock()
		defer c.audioMu.Unlock()

		out := pOutput[:min(need, len(pOutput))]
		played := copy(out, c.leftoverAudio)
		clear(out[played:])
		c.leftoverAudio = c.leftoverAudio[played:]
		if len(c.leftoverAudio) == 0 {
			c.leftoverAudio = nil
		}

		c.processMarks(played)
	}
}

// processMarks must be called with audioMu held.
func (c *playbackClient) processMarks(played int) {
	passed := 0
	for i := range c.marks {
		c.marks[i].position -= played
		if c.marks[i].position <= 0 {
			close(c.marks[i].done)
			passed++
		}
	}
	c.marks = c.marks[passed:]
}
