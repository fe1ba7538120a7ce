// Package domain contains core domain types for the vitabot application.
package domain

import (
	"time"
)

// StateTag identifies where a conversation currently is in the guided dialogue.
type StateTag string

const (
	StateWelcome         StateTag = "welcome"
	StateSymptomQuestion StateTag = "symptom_question"
	StateAnalyze         StateTag = "analyze"
	StatePlanSelect      StateTag = "plan_select"
	StatePayment         StateTag = "payment"
	StateExam            StateTag = "exam"
	StateResult          StateTag = "result"
	StateTerminal        StateTag = "terminal"
)

// Valid reports whether t is one of the known states.
func (t StateTag) Valid() bool {
	switch t {
	case StateWelcome, StateSymptomQuestion, StateAnalyze, StatePlanSelect,
		StatePayment, StateExam, StateResult, StateTerminal:
		return true
	}
	return false
}

// PlanTag identifies a service plan.
type PlanTag string

const (
	PlanFree  PlanTag = "free"
	PlanTier2 PlanTag = "tier2"
	PlanTier3 PlanTag = "tier3"
)

// Paid returns true if selecting the plan requires a payment.
func (p PlanTag) Paid() bool {
	return p == PlanTier2 || p == PlanTier3
}

// Valid reports whether p is one of the known plans.
func (p PlanTag) Valid() bool {
	return p == PlanFree || p.Paid()
}

// Symptom is a read-only catalog entry asked during intake.
type Symptom struct {
	ID             string `json:"id" yaml:"id"`
	Prompt         string `json:"prompt" yaml:"prompt"`
	DeficiencyHint string `json:"deficiency_hint" yaml:"deficiency_hint"`
}

// Session holds the dialogue state for one conversation.
type Session struct {
	ConversationID    int64     `json:"conversation_id"`
	State             StateTag  `json:"state"`
	CollectedSymptoms []Symptom `json:"collected_symptoms"`
	SymptomCursor     int       `json:"symptom_cursor"`
	// Pass counts questionnaire restarts. Symptom buttons carry it so that
	// presses on a keyboard from an earlier pass are recognized as stale.
	Pass              int       `json:"pass"`
	SelectedPlan      *PlanTag  `json:"selected_plan,omitempty"`
	ExamNotes         string    `json:"exam_notes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewSession returns a session in the welcome state.
func NewSession(conversationID int64, now time.Time) Session {
	return Session{
		ConversationID: conversationID,
		State:          StateWelcome,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy that shares no mutable memory with s.
func (s Session) Clone() Session {
	out := s
	if s.CollectedSymptoms != nil {
		out.CollectedSymptoms = make([]Symptom, len(s.CollectedSymptoms))
		copy(out.CollectedSymptoms, s.CollectedSymptoms)
	}
	if s.SelectedPlan != nil {
		plan := *s.SelectedPlan
		out.SelectedPlan = &plan
	}
	return out
}

// Plan returns the selected plan, or "" when none is selected.
func (s Session) Plan() PlanTag {
	if s.SelectedPlan == nil {
		return ""
	}
	return *s.SelectedPlan
}
