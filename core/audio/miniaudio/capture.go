package miniaudio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-panel/core/audio"
)

var errCaptureNotOpen = errors.New("capture device not open")

// microphone captures mono linear16 frames and hands each period to the
// current sink. The sink is swapped atomically so the device callback never
// waits on a lock held by Stop.
type microphone struct {
	mu     sync.Mutex
	device *malgo.Device

	sink atomic.Pointer[func([]byte)]
}

func (m *microphone) open(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	if encoding.Format != audio.EncodingLinear16 {
		return fmt.Errorf("capture supports linear16 only, got %s", encoding)
	}

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(encoding.SampleRate)
	config.Capture.Format = malgo.FormatS16
	config.Capture.Channels = 1
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = uint32(encoding.SampleRate / 1000 * 30)
	config.Periods = 3

	frameSize := malgo.SampleSizeInBytes(config.Capture.Format)
	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			size := int(frameCount) * frameSize
			if size == 0 || len(input) < size {
				return
			}
			if sink := m.sink.Load(); sink != nil {
				// input is reused by the device after we return
				(*sink)(append([]byte(nil), input[:size]...))
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	m.mu.Lock()
	m.device = device
	m.mu.Unlock()
	return nil
}

func (m *microphone) start(onAudio func([]byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return errCaptureNotOpen
	}

	m.sink.Store(&onAudio)
	if m.device.IsStarted() {
		return nil
	}
	if err := m.device.Start(); err != nil {
		m.sink.Store(nil)
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

func (m *microphone) stop() error {
	m.sink.Store(nil)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return errCaptureNotOpen
	}
	if !m.device.IsStarted() {
		return nil
	}
	if err := m.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (m *microphone) close() {
	m.sink.Store(nil)

	m.mu.Lock()
	device := m.device
	m.device = nil
	m.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
}
