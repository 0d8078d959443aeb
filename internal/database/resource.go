package database

import "time"

// ResourceKind names the resource slots a subject owns.
type ResourceKind string

const (
	ResourceTicket             ResourceKind = "ticket"
	ResourceConversation       ResourceKind = "conversation"
	ResourceStorage            ResourceKind = "storage"
	ResourceIncidentDocument   ResourceKind = "incident_document"
	ResourceReviewDocument     ResourceKind = "review_document"
	ResourceConference         ResourceKind = "conference"
	ResourceTacticalGroup      ResourceKind = "tactical_group"
	ResourceNotificationsGroup ResourceKind = "notifications_group"
)

// ResourceMixin is embedded by every external-resource record. ResourceID
// is the identifier the active plugin recognizes; Weblink is what humans
// click.
type ResourceMixin struct {
	ResourceType string    `gorm:"size:128" json:"resource_type"` // plugin slug, e.g. "slack"
	ResourceID   string    `gorm:"size:255" json:"resource_id"`
	Weblink      string    `gorm:"size:1024" json:"weblink"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Resource is the persisted record of one external artifact owned by one
// subject. Kind distinguishes the slot (ticket, conversation, ...).
type Resource struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	ProjectID  uint         `gorm:"not null;index" json:"project_id"`
	IncidentID *uint        `gorm:"index" json:"incident_id,omitempty"`
	CaseID     *uint        `gorm:"index" json:"case_id,omitempty"`
	Kind       ResourceKind `gorm:"type:varchar(64);not null;index" json:"kind"`
	// Archived marks soft-deleted resources (compensating teardown only
	// ever archives, never destroys).
	Archived bool `gorm:"default:false" json:"archived"`

	ResourceMixin `gorm:"embedded" json:"resource"`
}

func (Resource) TableName() string {
	return "resources"
}

// TaskStatus tracks follow-up work raised during an incident.
type TaskStatus string

const (
	TaskStatusOpen     TaskStatus = "open"
	TaskStatusResolved TaskStatus = "resolved"
)

// Task is an action item attached to a subject.
type Task struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	ProjectID   uint       `gorm:"not null;index" json:"project_id"`
	IncidentID  *uint      `gorm:"index" json:"incident_id,omitempty"`
	CaseID      *uint      `gorm:"index" json:"case_id,omitempty"`
	Description string     `gorm:"type:text" json:"description"`
	Status      TaskStatus `gorm:"type:varchar(32);default:'open'" json:"status"`
	AssigneeID  *uint      `gorm:"index" json:"assignee_id,omitempty"` // participant
	ResolveBy   *time.Time `json:"resolve_by,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`

	ResourceMixin `gorm:"embedded" json:"resource"`
}

func (Task) TableName() string {
	return "tasks"
}

// Monitor is an external detection the subject watches; the monitor-sync
// job polls its status through the monitor port.
type Monitor struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ProjectID  uint   `gorm:"not null;index" json:"project_id"`
	IncidentID *uint  `gorm:"index" json:"incident_id,omitempty"`
	CaseID     *uint  `gorm:"index" json:"case_id,omitempty"`
	Status     string `gorm:"size:64" json:"status"`
	Enabled    bool   `json:"enabled"`

	ResourceMixin `gorm:"embedded" json:"resource"`
}

func (Monitor) TableName() string {
	return "monitors"
}
