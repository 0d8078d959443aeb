package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventType classifies timeline entries.
type EventType string

const (
	EventTypeFieldUpdated       EventType = "field_updated"
	EventTypeAssessmentUpdated  EventType = "assessment_updated"
	EventTypeParticipantUpdated EventType = "participant_updated"
	EventTypeImportedMessage    EventType = "imported_message"
	EventTypeCustom             EventType = "custom_event"
	EventTypeOther              EventType = "other"
)

// EventSourceCore is the source recorded on events the engine itself emits.
// Plugin-sourced events carry the plugin's own slug; the set of legal
// sources is runtime-determined, so the column is free-form.
const EventSourceCore = "Dispatch Core App"

// Event is one append-only timeline entry on a subject.
type Event struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       string    `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	IncidentID *uint     `gorm:"index" json:"incident_id,omitempty"`
	CaseID     *uint     `gorm:"index" json:"case_id,omitempty"`
	Source     string    `gorm:"size:128;not null" json:"source"`
	Type       EventType `gorm:"type:varchar(64);default:'other'" json:"type"`
	Description string   `gorm:"type:text;not null" json:"description"`
	Author      string   `gorm:"size:255" json:"author,omitempty"`
	Details     JSONB    `gorm:"type:jsonb" json:"details,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Event) TableName() string {
	return "events"
}

// BeforeCreate assigns the event UUID and timestamps.
func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.UUID == "" {
		e.UUID = uuid.New().String()
	}
	now := time.Now()
	if e.StartedAt.IsZero() {
		e.StartedAt = now
	}
	if e.EndedAt.IsZero() {
		e.EndedAt = e.StartedAt
	}
	return nil
}
