package domain

import (
	"time"
)

// MessageRole identifies who produced a history entry.
const (
	MessageRoleUser  = "user"
	MessageRoleAgent = "agent"
)

// Message is one entry of the per-contact conversation history.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// LeadProfile holds opportunistically captured facts about the lead. Fields
// are never overwritten once set.
type LeadProfile struct {
	Name    string `json:"name,omitempty"`
	Company string `json:"company,omitempty"`
	Sector  string `json:"sector,omitempty"`
	Title   string `json:"title,omitempty"`
}

// CadenceContext carries campaign metadata for contacts reached through an
// outbound cadence.
type CadenceContext struct {
	IsFromCadence        bool   `json:"isFromCadence"`
	CadenceDay           int    `json:"cadenceDay,omitempty"`
	ExternalInstructions string `json:"externalInstructions,omitempty"`
	Company              string `json:"company,omitempty"`
}

// SalesConversation is the durable row for one contact's qualification
// conversation. The engine snapshot is stored as a JSON document; the funnel
// columns are denormalized for querying.
type SalesConversation struct {
	ID                 string    `json:"id" gorm:"column:id;primaryKey"`
	ContactID          string    `json:"contact_id" gorm:"column:contact_id;uniqueIndex"`
	Snapshot           string    `json:"snapshot" gorm:"column:snapshot;type:jsonb"`
	Turn               int       `json:"turn" gorm:"column:turn"`
	SpinStage          string    `json:"spin_stage" gorm:"column:spin_stage"`
	Progress           int       `json:"progress" gorm:"column:progress"`
	ReadyForScheduling bool      `json:"ready_for_scheduling" gorm:"column:ready_for_scheduling"`
	CreatedAt          time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt          time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (SalesConversation) TableName() string {
	return "sales_conversations"
}

// SalesMessage is one persisted turn transcript entry.
type SalesMessage struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey"`
	ContactID string    `json:"contact_id" gorm:"column:contact_id;index"`
	Turn      int       `json:"turn" gorm:"column:turn"`
	Role      string    `json:"role" gorm:"column:role"` // user, agent
	Content   string    `json:"content" gorm:"column:content"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

func (SalesMessage) TableName() string {
	return "sales_messages"
}
