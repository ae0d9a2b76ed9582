package agents

import (
	"github.com/invopop/jsonschema"
)

// AgentConfig is the configured form of an [Agent]. Keywords are plain
// strings where a leading "!" marks an urgent keyword.
type AgentConfig struct {
	ID            string   `json:"id" mapstructure:"id" jsonschema:"title=ID,description=Unique agent identifier"`
	Name          string   `json:"name" mapstructure:"name" jsonschema:"title=Name,description=Name the audience uses to address the agent"`
	Keywords      []string `json:"keywords,omitempty" mapstructure:"keywords" jsonschema:"title=Keywords,description=Topic keywords; prefix with ! to allow interrupting the audience"`
	Role          string   `json:"role,omitempty" mapstructure:"role"`
	Background    string   `json:"background,omitempty" mapstructure:"background"`
	Personality   string   `json:"personality,omitempty" mapstructure:"personality"`
	Expertise     string   `json:"expertise,omitempty" mapstructure:"expertise"`
	SpeakingStyle string   `json:"speakingStyle,omitempty" mapstructure:"speakingStyle"`
}

func (c AgentConfig) Agent() Agent {
	return Agent{
		ID:            c.ID,
		Name:          c.Name,
		Keywords:      ParseKeywords(c.Keywords...),
		Role:          c.Role,
		Background:    c.Background,
		Personality:   c.Personality,
		Expertise:     c.Expertise,
		SpeakingStyle: c.SpeakingStyle,
	}
}

type RosterConfig struct {
	Agents       []AgentConfig `json:"agents" mapstructure:"agents" jsonschema:"title=Agents,description=Agents in registration order"`
	ActiveAgents []string      `json:"activeAgents,omitempty" mapstructure:"activeAgents" jsonschema:"title=Active agents,description=Agent ids taking part; empty selects all"`
}

// RosterSchema returns the JSON schema of the roster section of a panel
// configuration file.
func RosterSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}
	return reflector.Reflect(&RosterConfig{})
}
