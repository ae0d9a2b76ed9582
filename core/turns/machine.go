package turns

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/koscakluka/ema-panel/core/agents"
)

var (
	ErrSlotOccupied    = errors.New("turn start failed: slot is occupied")
	ErrSlotIdle        = errors.New("turn stop failed: slot is idle")
	ErrSpeakerMismatch = errors.New("turn stop failed: speaker does not hold the floor")
	ErrUnknownSpeaker  = errors.New("turn start failed: speaker is not a registered agent")
	ErrTurnMismatch    = errors.New("turn stop failed: turn is no longer current")
)

type State int

const (
	Idle State = iota
	Occupied
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Occupied:
		return "occupied"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// SpeakingSlot describes who holds the floor. The zero value is an empty
// slot.
type SpeakingSlot struct {
	TurnID     string
	Speaker    string
	IsAudience bool
	StartedAt  time.Time
}

func (s SpeakingSlot) Empty() bool {
	return s.Speaker == ""
}

func (s SpeakingSlot) HeldByAgent() bool {
	return !s.Empty() && !s.IsAudience
}

func (s SpeakingSlot) HeldByAudience() bool {
	return !s.Empty() && s.IsAudience
}

// StateMachine owns the speaking slot, the turn ledger and the last spoken
// index. Every mutation and every read happens under mu.
//
// Public methods take the lock, unexported helpers expect it to be held.
// sync.Mutex is not reentrant so public methods never call each other while
// locked.
type StateMachine struct {
	mu sync.Mutex

	registry   *agents.Registry
	slot       SpeakingSlot
	ledger     Ledger
	lastSpoken LastSpokenIndex

	now func() time.Time
}

type StateMachineOption func(*StateMachine)

// WithClock replaces the time source used to stamp turns.
func WithClock(now func() time.Time) StateMachineOption {
	return func(m *StateMachine) {
		if now != nil {
			m.now = now
		}
	}
}

func NewStateMachine(registry *agents.Registry, opts ...StateMachineOption) *StateMachine {
	m := &StateMachine{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	m.reset(registry)
	return m
}

// Begin opens a turn for speakerID. An empty speakerID with isAudience set
// stands for [AudienceSpeaker].
func (m *StateMachine) Begin(speakerID string, isAudience bool) (TurnRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isAudience && speakerID == "" {
		speakerID = AudienceSpeaker
	}
	if !isAudience && !m.registry.Contains(speakerID) {
		return TurnRecord{}, fmt.Errorf("%w: %q", ErrUnknownSpeaker, speakerID)
	}
	if !m.slot.Empty() {
		return TurnRecord{}, fmt.Errorf("%w by %q", ErrSlotOccupied, m.slot.Speaker)
	}

	now := m.now()
	record := m.ledger.open(speakerID, isAudience, now)
	m.slot = SpeakingSlot{TurnID: record.ID, Speaker: speakerID, IsAudience: isAudience, StartedAt: now}
	return record, nil
}

// End closes the current turn. An empty speakerID ends whoever holds the
// floor; a speakerID that does not hold the floor changes nothing.
func (m *StateMachine) End(speakerID string) (TurnRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.slot.Empty() {
		return TurnRecord{}, ErrSlotIdle
	}
	if speakerID != "" && speakerID != m.slot.Speaker {
		return TurnRecord{}, fmt.Errorf("%w: %q holds it, not %q", ErrSpeakerMismatch, m.slot.Speaker, speakerID)
	}

	return m.end(), nil
}

// EndTurn closes the turn identified by turnID if it still holds the floor.
// It lets a speaker release its own turn without ending a later one.
func (m *StateMachine) EndTurn(turnID string) (TurnRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.slot.Empty() {
		return TurnRecord{}, ErrSlotIdle
	}
	if turnID != m.slot.TurnID {
		return TurnRecord{}, fmt.Errorf("%w: %q", ErrTurnMismatch, turnID)
	}

	return m.end(), nil
}

func (m *StateMachine) end() TurnRecord {
	now := m.now()
	record, _ := m.ledger.seal(m.slot.Speaker, now)
	if !m.slot.IsAudience {
		m.lastSpoken[m.slot.Speaker] = now
	}
	m.slot = SpeakingSlot{}
	return record
}

// StartSpeaking is [StateMachine.Begin] reporting only success.
func (m *StateMachine) StartSpeaking(speakerID string, isAudience bool) bool {
	_, err := m.Begin(speakerID, isAudience)
	return err == nil
}

// StopSpeaking is [StateMachine.End] reporting only success.
func (m *StateMachine) StopSpeaking(speakerID string) bool {
	_, err := m.End(speakerID)
	return err == nil
}

func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.slot.Empty() {
		return Idle
	}
	return Occupied
}

func (m *StateMachine) Slot() SpeakingSlot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.slot
}

func (m *StateMachine) LastSpoken() LastSpokenIndex {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastSpoken.Clone()
}

func (m *StateMachine) Records() []TurnRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.ledger.Records()
}

func (m *StateMachine) Registry() *agents.Registry {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.registry
}

// Snapshot is a consistent view of the state needed for a speaker decision.
type Snapshot struct {
	Registry   *agents.Registry
	Slot       SpeakingSlot
	LastSpoken LastSpokenIndex
}

func (m *StateMachine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		Registry:   m.registry,
		Slot:       m.slot,
		LastSpoken: m.lastSpoken.Clone(),
	}
}

// Reset discards the ledger, the index and the slot and starts a new session
// with registry.
func (m *StateMachine) Reset(registry *agents.Registry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reset(registry)
}

// SetRegistry swaps the roster while keeping the session history. Agents new
// to the session start as never having spoken.
func (m *StateMachine) SetRegistry(registry *agents.Registry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.registry = registry
	for _, agent := range registry.All() {
		if _, ok := m.lastSpoken[agent.ID]; !ok {
			m.lastSpoken[agent.ID] = time.Time{}
		}
	}
}

func (m *StateMachine) reset(registry *agents.Registry) {
	m.registry = registry
	m.slot = SpeakingSlot{}
	m.ledger = Ledger{}
	m.lastSpoken = make(LastSpokenIndex, registry.Len())
	for _, agent := range registry.All() {
		m.lastSpoken[agent.ID] = time.Time{}
	}
}
