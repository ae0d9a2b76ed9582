package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-panel/core/audio"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-panel/core/audio/portaudio"

var logger = otelslog.NewLogger(scopeName)

// DefaultBufferSize is the number of frames read or written per call, 20ms
// at the default sample rate.
const DefaultBufferSize = audio.DefaultSampleRate / 50

// Client is a full duplex 16kHz mono linear16 stream on the default devices.
type Client struct {
	bufferSize int
	stream     *portaudio.Stream

	in  []int16
	out []int16

	writeMu sync.Mutex

	captureMu     sync.Mutex
	stopCapture   context.CancelFunc
	captureDone   chan struct{}
	streamStarted bool
}

func NewClient(bufferSize int) (*Client, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, audio.DefaultSampleRate, bufferSize, in, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio stream: %w", err)
	}

	client := &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
		out:        out,
	}
	if err := client.startStream(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (c *Client) startStream() error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()

	if c.streamStarted {
		return nil
	}
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start PortAudio stream: %w", err)
	}
	c.streamStarted = true
	return nil
}

// StartCapture reads the microphone on its own goroutine until StopCapture
// is called or ctx is done.
func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()

	if c.stopCapture != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.stopCapture = cancel
	c.captureDone = done

	go func() {
		defer close(done)
		for ctx.Err() == nil {
			if err := c.stream.Read(); err != nil {
				logger.Warn("failed to read from PortAudio stream", "error", err)
				continue
			}

			audioBuffer := bytes.Buffer{}
			_ = binary.Write(&audioBuffer, binary.LittleEndian, c.in)
			onAudio(audioBuffer.Bytes())
		}
	}()
	return nil
}

func (c *Client) StopCapture() error {
	c.captureMu.Lock()
	cancel, done := c.stopCapture, c.captureDone
	c.stopCapture, c.captureDone = nil, nil
	c.captureMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Play writes clip to the output stream. Writes block, so Play returns once
// the last buffer has been handed to the device.
func (c *Client) Play(ctx context.Context, clip audio.Clip) error {
	if !clip.Encoding.IsZero() && clip.Encoding != c.EncodingInfo() {
		return fmt.Errorf("%w: playback expects %s, got %s", audio.ErrUnsupportedEncoding, c.EncodingInfo(), clip.Encoding)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	bufferSize := c.bufferSize * 2
	for start := 0; start < len(clip.Data); start += bufferSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk := clip.Data[start:min(start+bufferSize, len(clip.Data))]
		clear(c.out)
		if err := binary.Read(bytes.NewReader(padToFrames(chunk, bufferSize)), binary.LittleEndian, c.out); err != nil {
			return fmt.Errorf("failed to decode audio: %w", err)
		}
		if err := c.stream.Write(); err != nil {
			return fmt.Errorf("failed to write to PortAudio stream: %w", err)
		}
	}
	return nil
}

func padToFrames(chunk []byte, size int) []byte {
	if len(chunk) == size {
		return chunk
	}
	padded := make([]byte, size)
	copy(padded, chunk)
	return padded
}

func (c *Client) Close() {
	_ = c.StopCapture()
	_ = c.stream.Close()
	_ = portaudio.Terminate()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}
