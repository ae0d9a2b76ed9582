package agents

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/jinzhu/copier"
)

var (
	ErrEmptyAgentID     = errors.New("agent id is empty")
	ErrDuplicateAgentID = errors.New("duplicate agent id")
)

// Registry is the ordered, immutable set of agents taking part in a session.
//
// Registration order is significant: it decides which agent wins when the
// speaker selection rules tie, so it must not change within a session. To
// change the roster build a new Registry and swap it in wholesale.
type Registry struct {
	agents []Agent
	index  map[string]int
}

// NewRegistry validates the agents and freezes them in the given order.
func NewRegistry(agents ...Agent) (*Registry, error) {
	r := &Registry{
		agents: make([]Agent, 0, len(agents)),
		index:  make(map[string]int, len(agents)),
	}

	for _, agent := range agents {
		agent.ID = strings.TrimSpace(agent.ID)
		if agent.ID == "" {
			return nil, fmt.Errorf("failed to register agent %q: %w", agent.Name, ErrEmptyAgentID)
		}
		if _, ok := r.index[agent.ID]; ok {
			return nil, fmt.Errorf("failed to register agent %q: %w", agent.ID, ErrDuplicateAgentID)
		}

		agent.Keywords = append([]Keyword(nil), agent.Keywords...)
		r.index[agent.ID] = len(r.agents)
		r.agents = append(r.agents, agent)
	}

	return r, nil
}

// MustNewRegistry is like [NewRegistry] but panics on invalid input. It is
// meant for static rosters and tests.
func MustNewRegistry(agents ...Agent) *Registry {
	r, err := NewRegistry(agents...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.agents)
}

// Agent returns the agent registered under id.
func (r *Registry) Agent(id string) (Agent, bool) {
	if r == nil {
		return Agent{}, false
	}

	i, ok := r.index[id]
	if !ok {
		return Agent{}, false
	}
	return r.agents[i], true
}

func (r *Registry) Contains(id string) bool {
	_, ok := r.Agent(id)
	return ok
}

// All iterates over the agents in registration order. The yielded agents
// share keyword slices with the registry and must not be modified.
func (r *Registry) All() iter.Seq2[int, Agent] {
	return func(yield func(int, Agent) bool) {
		if r == nil {
			return
		}
		for i, agent := range r.agents {
			if !yield(i, agent) {
				return
			}
		}
	}
}

var deepCopy = func(to, from any) error {
	return copier.CopyWithOption(to, from, copier.Option{DeepCopy: true})
}

// Agents returns a deep copy of the registered agents in registration order.
func (r *Registry) Agents() []Agent {
	if r == nil {
		return nil
	}

	agents := make([]Agent, 0, len(r.agents))
	if err := deepCopy(&agents, r.agents); err != nil {
		// copier may have filled part of the slice before failing
		agents = agents[:0]
		for _, agent := range r.agents {
			agent.Keywords = append([]Keyword(nil), agent.Keywords...)
			agents = append(agents, agent)
		}
	}
	return agents
}

func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}

	ids := make([]string, len(r.agents))
	for i, agent := range r.agents {
		ids[i] = agent.ID
	}
	return ids
}

// Filter builds a registry from the agents whose ids are listed in active,
// keeping the registration order of all. A nil active list selects every
// agent. When active is non-nil but matches nothing, every agent is kept and
// matched is false so the caller can warn about it.
func Filter(all []Agent, active []string) (filtered []Agent, matched bool) {
	if active == nil {
		return all, true
	}

	wanted := make(map[string]struct{}, len(active))
	for _, id := range active {
		if id = strings.TrimSpace(id); id != "" {
			wanted[id] = struct{}{}
		}
	}

	for _, agent := range all {
		if _, ok := wanted[agent.ID]; ok {
			filtered = append(filtered, agent)
		}
	}

	if len(filtered) == 0 {
		return all, false
	}
	return filtered, true
}
