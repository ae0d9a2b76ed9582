package deepgram

import "slices"

type deepgramVoice string

const (
	VoiceAsteria deepgramVoice = "aura-asteria-en"
	VoiceLuna    deepgramVoice = "aura-luna-en"
	VoiceStella  deepgramVoice = "aura-stella-en"
	VoiceAthena  deepgramVoice = "aura-athena-en"
	VoiceHera    deepgramVoice = "aura-hera-en"
	VoiceOrion   deepgramVoice = "aura-orion-en"
	VoiceArcas   deepgramVoice = "aura-arcas-en"
	VoicePerseus deepgramVoice = "aura-perseus-en"
	VoiceAngus   deepgramVoice = "aura-angus-en"
	VoiceOrpheus deepgramVoice = "aura-orpheus-en"
	VoiceHelios  deepgramVoice = "aura-helios-en"
	VoiceZeus    deepgramVoice = "aura-zeus-en"

	VoiceThalia2    deepgramVoice = "aura-2-thalia-en"
	VoiceApollo2    deepgramVoice = "aura-2-apollo-en"
	VoiceAndromeda2 deepgramVoice = "aura-2-andromeda-en"
	VoiceArcas2     deepgramVoice = "aura-2-arcas-en"
)

const defaultVoice = VoiceAsteria

func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{
		VoiceAsteria, VoiceLuna, VoiceStella, VoiceAthena, VoiceHera, VoiceOrion,
		VoiceArcas, VoicePerseus, VoiceAngus, VoiceOrpheus, VoiceHelios, VoiceZeus,
		VoiceThalia2, VoiceApollo2, VoiceAndromeda2, VoiceArcas2,
	}
}

func IsAvailableVoice(voice string) bool {
	return slices.Contains(GetAvailableVoices(), deepgramVoice(voice))
}
