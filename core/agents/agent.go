package agents

import "strings"

// UrgentPrefix marks a keyword that allows an agent to interrupt the audience.
const UrgentPrefix = "!"

// Agent is a single panel member. Agents are immutable once they are part of
// a [Registry].
type Agent struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Keywords []Keyword `json:"keywords,omitempty"`

	Role          string `json:"role,omitempty"`
	Background    string `json:"background,omitempty"`
	Personality   string `json:"personality,omitempty"`
	Expertise     string `json:"expertise,omitempty"`
	SpeakingStyle string `json:"speakingStyle,omitempty"`
}

type Keyword struct {
	Text   string `json:"text"`
	Urgent bool   `json:"urgent,omitempty"`
}

// ParseKeyword converts a configured keyword into a [Keyword]. A leading "!"
// marks the keyword as urgent and is not part of the matched text.
func ParseKeyword(raw string) Keyword {
	raw = strings.TrimSpace(raw)
	if text, ok := strings.CutPrefix(raw, UrgentPrefix); ok {
		return Keyword{Text: strings.TrimSpace(text), Urgent: true}
	}
	return Keyword{Text: raw}
}

// ParseKeywords parses raw keywords in order, dropping the blank ones.
func ParseKeywords(raw ...string) []Keyword {
	keywords := make([]Keyword, 0, len(raw))
	for _, r := range raw {
		keyword := ParseKeyword(r)
		if keyword.Text == "" {
			continue
		}
		keywords = append(keywords, keyword)
	}
	return keywords
}

func (k Keyword) String() string {
	if k.Urgent {
		return UrgentPrefix + k.Text
	}
	return k.Text
}

// UrgentKeywords returns only the keywords flagged as urgent.
func (a Agent) UrgentKeywords() []Keyword {
	var urgent []Keyword
	for _, keyword := range a.Keywords {
		if keyword.Urgent {
			urgent = append(urgent, keyword)
		}
	}
	return urgent
}

func (a Agent) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}
