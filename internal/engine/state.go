package engine

import (
	"github.com/ClareAI/astra-sales-engine/internal/domain"
)

// historyWindow bounds how much conversation history is kept in memory for
// prompt construction. Persistence keeps the full transcript elsewhere.
const historyWindow = 12

// ConversationState is the per-contact mutable state. It is owned by exactly
// one turn-processing operation at a time; the caller enforces per-contact
// serialization.
type ConversationState struct {
	ContactID string
	TurnCount int
	History   []domain.Message
	Spin      *StageMachine
	Bant      *Ledger
	Archetype *Detector
	Lead      domain.LeadProfile
	Cadence   *domain.CadenceContext
}

// NewConversationState creates the state for a contact's first inbound
// message.
func NewConversationState(contactID string) *ConversationState {
	return &ConversationState{
		ContactID: contactID,
		Spin:      NewStageMachine(),
		Bant:      NewLedger(),
		Archetype: NewDetector(),
	}
}

// AppendMessage adds one history entry and trims the in-memory window.
func (s *ConversationState) AppendMessage(role, text string) {
	s.History = append(s.History, domain.Message{Role: role, Text: text})
	if len(s.History) > historyWindow {
		s.History = s.History[len(s.History)-historyWindow:]
	}
}

// Snapshot is the durable form of a conversation state. Restore tolerates
// any sub-object being absent, so snapshots written by older versions still
// rehydrate.
type Snapshot struct {
	ContactID   string                 `json:"contactId"`
	Turn        int                    `json:"turn"`
	Spin        *StageMachine          `json:"spin,omitempty"`
	BantData    map[string]string      `json:"bantData,omitempty"`
	Lead        *domain.LeadProfile    `json:"lead,omitempty"`
	Archetype   *Detector              `json:"archetype,omitempty"`
	ToneProfile string                 `json:"toneProfile,omitempty"`
	HistoryTail []domain.Message       `json:"historyTail,omitempty"`
	Cadence     *domain.CadenceContext `json:"cadence,omitempty"`
}

// Serialize produces the snapshot for persistence.
func (s *ConversationState) Serialize() *Snapshot {
	lead := s.Lead
	return &Snapshot{
		ContactID:   s.ContactID,
		Turn:        s.TurnCount,
		Spin:        s.Spin,
		BantData:    s.Bant.Values(),
		Lead:        &lead,
		Archetype:   s.Archetype,
		ToneProfile: ToneProfile(s.Archetype.Detected),
		HistoryTail: append([]domain.Message(nil), s.History...),
		Cadence:     s.Cadence,
	}
}

// Restore rehydrates a conversation state from a snapshot. Each sub-object
// defaults independently when absent.
func Restore(saved *Snapshot) *ConversationState {
	if saved == nil {
		return NewConversationState("")
	}

	state := NewConversationState(saved.ContactID)
	state.TurnCount = saved.Turn

	if saved.Spin != nil {
		state.Spin = saved.Spin
		if !domain.IsValidStage(state.Spin.Current) {
			state.Spin.Current = domain.StageSituation
		}
		if state.Spin.QuestionsAsked == nil {
			state.Spin.QuestionsAsked = make(map[domain.SPINStage]map[string]bool)
		}
		if state.Spin.SignalsDetected == nil {
			state.Spin.SignalsDetected = make(map[domain.SPINStage][]string)
		}
	}
	if saved.BantData != nil {
		state.Bant.SetAll(saved.BantData)
	}
	if saved.Archetype != nil {
		state.Archetype = saved.Archetype
		if !domain.IsValidArchetype(state.Archetype.Detected) {
			state.Archetype.Detected = domain.ArchetypeDefault
		}
	}
	if saved.Lead != nil {
		state.Lead = *saved.Lead
	}
	if len(saved.HistoryTail) > 0 {
		state.History = append([]domain.Message(nil), saved.HistoryTail...)
	}
	state.Cadence = saved.Cadence

	return state
}
