package texttospeech

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const DefaultPauseDuration = 500 * time.Millisecond

// Randomizer is the source of chance behind interjections and pauses.
// *rand.Rand satisfies it.
type Randomizer interface {
	Float64() float64
	IntN(n int) int
}

// VoiceProfile describes how a single agent sounds.
type VoiceProfile struct {
	// Voices maps an engine name to the voice used on that engine. Engines
	// without an entry use their default voice.
	Voices          map[string]string
	PreferredEngine string

	InterjectionFrequency float64
	Interjections         []string

	PauseFrequency float64
	PauseDuration  time.Duration
}

func (p VoiceProfile) Voice(engine string) string {
	return p.Voices[engine]
}

// Decorate prepends an interjection and inserts a pause marker between two
// sentences, each with the probability configured on the profile.
func (p VoiceProfile) Decorate(text string, rnd Randomizer) string {
	if rnd == nil || strings.TrimSpace(text) == "" {
		return text
	}

	if p.InterjectionFrequency > 0 && rnd.Float64() < p.InterjectionFrequency {
		interjections := p.Interjections
		if len(interjections) == 0 {
			interjections = []string{"um"}
		}
		text = interjections[rnd.IntN(len(interjections))] + ", " + text
	}

	sentences := strings.Split(text, ". ")
	if len(sentences) < 2 || p.PauseFrequency <= 0 || rnd.Float64() >= p.PauseFrequency {
		return text
	}

	pauseAt := rnd.IntN(len(sentences) - 1)
	var b strings.Builder
	for i, sentence := range sentences {
		b.WriteString(sentence)
		if i == len(sentences)-1 {
			break
		}
		b.WriteString(". ")
		if i == pauseAt {
			b.WriteString(BreakMarker(p.pauseDuration()))
			b.WriteString(" ")
		}
	}
	return b.String()
}

func (p VoiceProfile) pauseDuration() time.Duration {
	if p.PauseDuration <= 0 {
		return DefaultPauseDuration
	}
	return p.PauseDuration
}

// BreakMarker is the SSML-style pause understood by engines that support it.
func BreakMarker(d time.Duration) string {
	return fmt.Sprintf("<break time='%dms'/>", d.Milliseconds())
}

var breakMarkerPattern = regexp.MustCompile(`\s*<break time='(\d+)ms'/>\s*`)

// ReplaceBreaks swaps pause markers for replacement, for engines that would
// otherwise read them out loud.
func ReplaceBreaks(text, replacement string) string {
	return breakMarkerPattern.ReplaceAllLiteralString(text, replacement)
}

// ReplaceBreaksFunc rewrites every pause marker with the result of fn.
func ReplaceBreaksFunc(text string, fn func(time.Duration) string) string {
	return breakMarkerPattern.ReplaceAllStringFunc(text, func(marker string) string {
		ms, err := strconv.Atoi(breakMarkerPattern.FindStringSubmatch(marker)[1])
		if err != nil {
			return " "
		}
		return fn(time.Duration(ms) * time.Millisecond)
	})
}

func newDefaultRandomizer() Randomizer {
	return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x656d61))
}
