package audio

import (
	"errors"
	"time"
)

var ErrUnsupportedEncoding = errors.New("unsupported audio encoding")

// Clip is a complete piece of synthesized speech ready for playback.
type Clip struct {
	Data     []byte
	Encoding EncodingInfo
}

func (c Clip) Empty() bool {
	return len(c.Data) == 0
}

func (c Clip) Duration() time.Duration {
	return c.Encoding.Duration(len(c.Data))
}

// Concat joins clips of the same encoding. Clips with a different encoding
// than the first non-empty clip make it fail.
func Concat(clips ...Clip) (Clip, error) {
	var joined Clip
	for _, clip := range clips {
		if clip.Empty() {
			continue
		}
		if joined.Encoding.IsZero() {
			joined.Encoding = clip.Encoding
		} else if clip.Encoding != joined.Encoding {
			return Clip{}, ErrUnsupportedEncoding
		}
		joined.Data = append(joined.Data, clip.Data...)
	}
	return joined, nil
}

// Silence returns d worth of silence in encoding.
func Silence(encoding EncodingInfo, d time.Duration) Clip {
	frameSize := max(encoding.Format.ByteSize(), 1)
	n := int(d * time.Duration(encoding.BytesPerSecond()) / time.Second)
	n -= n % frameSize

	data := make([]byte, n)
	if value := encoding.SilenceValue(); value != 0 {
		for i := range data {
			data[i] = value
		}
	}
	return Clip{Data: data, Encoding: encoding}
}
