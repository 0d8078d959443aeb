package database

import (
	"time"

	"gorm.io/gorm"
)

// IncidentStatus represents the status of an incident
type IncidentStatus string

const (
	IncidentStatusReported IncidentStatus = "reported"
	IncidentStatusActive   IncidentStatus = "active"
	IncidentStatusStable   IncidentStatus = "stable"
	IncidentStatusClosed   IncidentStatus = "closed"
)

// IncidentVisibility controls who may view the incident.
type IncidentVisibility string

const (
	VisibilityOpen       IncidentVisibility = "open"
	VisibilityRestricted IncidentVisibility = "restricted"
)

// IncidentType classifies incidents within a project.
type IncidentType struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProjectID   uint      `gorm:"not null;index" json:"project_id"`
	Name        string    `gorm:"size:128;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Default     bool      `gorm:"default:false" json:"default"`
	Enabled     bool      `json:"enabled"`
	// Template used when provisioning the incident document.
	DocumentTemplateID *uint     `json:"document_template_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (IncidentType) TableName() string {
	return "incident_types"
}

// IncidentPriority drives paging and reminder behavior.
type IncidentPriority struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ProjectID     uint      `gorm:"not null;index" json:"project_id"`
	Name          string    `gorm:"size:128;not null" json:"name"`
	Description   string    `gorm:"type:text" json:"description"`
	Rank          int       `gorm:"default:0" json:"rank"`
	Default       bool      `gorm:"default:false" json:"default"`
	Enabled       bool      `json:"enabled"`
	PageCommander bool      `gorm:"default:false" json:"page_commander"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (IncidentPriority) TableName() string {
	return "incident_priorities"
}

// IncidentSeverity captures business impact, frozen when the incident goes
// stable so reporting stays consistent.
type IncidentSeverity struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProjectID   uint      `gorm:"not null;index" json:"project_id"`
	Name        string    `gorm:"size:128;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Rank        int       `gorm:"default:0" json:"rank"`
	Default     bool      `gorm:"default:false" json:"default"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (IncidentSeverity) TableName() string {
	return "incident_severities"
}

// Incident is the primary lifecycle subject.
type Incident struct {
	ID          uint               `gorm:"primaryKey" json:"id"`
	ProjectID   uint               `gorm:"not null;index" json:"project_id"`
	Name        string             `gorm:"size:64;index" json:"name"` // short handle, e.g. "dispatch-42"
	Title       string             `gorm:"size:255;not null" json:"title"`
	Description string             `gorm:"type:text" json:"description"`
	Status      IncidentStatus     `gorm:"type:varchar(32);not null;default:'reported';index" json:"status"`
	Visibility  IncidentVisibility `gorm:"type:varchar(32);not null;default:'open'" json:"visibility"`

	TypeID     *uint `gorm:"index" json:"incident_type_id,omitempty"`
	PriorityID *uint `gorm:"index" json:"incident_priority_id,omitempty"`
	SeverityID *uint `gorm:"index" json:"incident_severity_id,omitempty"`

	ReporterID  *uint `gorm:"index" json:"reporter_id,omitempty"`  // participant
	CommanderID *uint `gorm:"index" json:"commander_id,omitempty"` // participant

	// Originating case when this incident was escalated from one.
	CaseID *uint `gorm:"index" json:"case_id,omitempty"`

	TotalCost float64 `gorm:"default:0" json:"total_cost"`

	ReportedAt time.Time  `json:"reported_at"`
	StableAt   *time.Time `json:"stable_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Type     *IncidentType     `gorm:"foreignKey:TypeID" json:"incident_type,omitempty"`
	Priority *IncidentPriority `gorm:"foreignKey:PriorityID" json:"incident_priority,omitempty"`
	Severity *IncidentSeverity `gorm:"foreignKey:SeverityID" json:"incident_severity,omitempty"`

	Participants []Participant `gorm:"foreignKey:IncidentID" json:"participants,omitempty"`
	Events       []Event       `gorm:"foreignKey:IncidentID" json:"events,omitempty"`
	Tags         []Tag         `gorm:"many2many:incident_tags;" json:"tags,omitempty"`
}

func (Incident) TableName() string {
	return "incidents"
}

// BeforeCreate stamps ReportedAt on first insert.
func (i *Incident) BeforeCreate(tx *gorm.DB) error {
	if i.ReportedAt.IsZero() {
		i.ReportedAt = time.Now()
	}
	if i.Status == "" {
		i.Status = IncidentStatusReported
	}
	return nil
}

// incidentTransitions enumerates the legal status edges.
var incidentTransitions = map[IncidentStatus][]IncidentStatus{
	IncidentStatusReported: {IncidentStatusActive},
	IncidentStatusActive:   {IncidentStatusStable, IncidentStatusClosed},
	IncidentStatusStable:   {IncidentStatusActive, IncidentStatusClosed},
	IncidentStatusClosed:   {IncidentStatusActive},
}

// CanTransition reports whether status may move from one state to another.
func (i *Incident) CanTransition(to IncidentStatus) bool {
	if i.Status == to {
		return false
	}
	for _, allowed := range incidentTransitions[i.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}
