package deepgram

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"

	"github.com/koscakluka/ema-panel/core/audio"
)

// streamEncoding is the encoding and sample rate advertised on the listen URL.
type streamEncoding struct {
	name       string
	sampleRate int
}

// supportedSampleRates lists the rates Deepgram accepts per encoding. The
// companded telephony formats only come at 8kHz.
var supportedSampleRates = map[string][]int{
	audio.EncodingLinear16.Name(): {8000, 16000, 24000, 32000, 48000},
	audio.EncodingALaw.Name():     {8000},
	audio.EncodingMulaw.Name():    {8000},
}

func convertEncoding(encoding audio.EncodingInfo) (streamEncoding, error) {
	name := encoding.Format.Name()
	rates, ok := supportedSampleRates[name]
	if !ok {
		return streamEncoding{}, fmt.Errorf("unsupported encoding %q", name)
	}
	if !slices.Contains(rates, encoding.SampleRate) {
		return streamEncoding{}, fmt.Errorf("unsupported sample rate %d for %s encoding", encoding.SampleRate, name)
	}

	return streamEncoding{name: name, sampleRate: encoding.SampleRate}, nil
}

func (e streamEncoding) setQuery(query url.Values) {
	query.Set("encoding", e.name)
	query.Set("sample_rate", strconv.Itoa(e.sampleRate))
	query.Set("channels", "1")
}
