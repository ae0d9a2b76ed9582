package miniaudio

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-panel/core/audio"
)

// Client plays and captures 16kHz mono linear16 audio on the default devices.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	playbackClient
	microphone microphone
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	client := Client{audioContext: audioCtx}

	if err := client.playbackClient.Init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}

	if err := client.playbackClient.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	if err := client.microphone.open(audioCtx, audio.GetDefaultEncodingInfo()); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

func (c *Client) StartCapture(_ context.Context, onAudio func(audio []byte)) error {
	return c.microphone.start(onAudio)
}

func (c *Client) StopCapture() error {
	return c.microphone.stop()
}

func (c *Client) Close() {
	c.microphone.close()
	_ = c.playbackClient.Uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

type Device struct {
	Name      string
	IsDefault bool
}

// ListDevices lists the playback and capture devices miniaudio can see.
func ListDevices() (playback, capture []Device, err error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	defer func() {
		_ = audioCtx.Uninit()
		audioCtx.Free()
	}()

	if playback, err = devices(audioCtx, malgo.Playback); err != nil {
		return nil, nil, err
	}
	if capture, err = devices(audioCtx, malgo.Capture); err != nil {
		return nil, nil, err
	}
	return playback, capture, nil
}

func devices(audioCtx *malgo.AllocatedContext, kind malgo.DeviceType) ([]Device, error) {
	infos, err := audioCtx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Device{Name: info.Name(), IsDefault: info.IsDefault != 0})
	}
	return devices, nil
}
