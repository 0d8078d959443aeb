package database

import (
	"time"

	"gorm.io/gorm"
)

// CaseStatus represents the status of a case
type CaseStatus string

const (
	CaseStatusNew       CaseStatus = "new"
	CaseStatusTriage    CaseStatus = "triage"
	CaseStatusEscalated CaseStatus = "escalated"
	CaseStatusClosed    CaseStatus = "closed"
)

// CaseResolution is the bounded set of reasons a case may be closed with.
type CaseResolution string

const (
	ResolutionFalsePositive    CaseResolution = "false_positive"
	ResolutionUserAcknowledged CaseResolution = "user_acknowledged"
	ResolutionMitigated        CaseResolution = "mitigated"
	ResolutionEscalated        CaseResolution = "escalated"
)

// ValidResolutions lists the accepted case resolutions.
func ValidResolutions() []CaseResolution {
	return []CaseResolution{
		ResolutionFalsePositive,
		ResolutionUserAcknowledged,
		ResolutionMitigated,
		ResolutionEscalated,
	}
}

// IsValidResolution reports whether r is an accepted resolution reason.
func IsValidResolution(r CaseResolution) bool {
	for _, v := range ValidResolutions() {
		if v == r {
			return true
		}
	}
	return false
}

// CaseType classifies cases within a project.
type CaseType struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProjectID   uint      `gorm:"not null;index" json:"project_id"`
	Name        string    `gorm:"size:128;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Default     bool      `gorm:"default:false" json:"default"`
	Enabled     bool      `json:"enabled"`
	// Dedicated channel per case, or a thread in the shared channel.
	ConversationTarget string    `gorm:"size:255" json:"conversation_target"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (CaseType) TableName() string {
	return "case_types"
}

// CasePriority ranks cases.
type CasePriority struct {
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

func (CasePriority) TableName() string {
	return "case_priorities"
}

// CaseSeverity captures case impact.
type CaseSeverity struct {
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

func (CaseSeverity) TableName() string {
	return "case_severities"
}

// Case is the lighter-weight lifecycle subject. A case may escalate into an
// incident; both records remain and are cross-linked.
type Case struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	ProjectID   uint       `gorm:"not null;index" json:"project_id"`
	Name        string     `gorm:"size:64;index" json:"name"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Status      CaseStatus `gorm:"type:varchar(32);not null;default:'new';index" json:"status"`

	Resolution       CaseResolution `gorm:"type:varchar(64)" json:"resolution,omitempty"`
	ResolutionReason string         `gorm:"type:text" json:"resolution_reason,omitempty"`

	TypeID     *uint `gorm:"index" json:"case_type_id,omitempty"`
	PriorityID *uint `gorm:"index" json:"case_priority_id,omitempty"`
	SeverityID *uint `gorm:"index" json:"case_severity_id,omitempty"`

	ReporterID *uint `gorm:"index" json:"reporter_id,omitempty"` // participant
	AssigneeID *uint `gorm:"index" json:"assignee_id,omitempty"` // participant

	// Signal-derived cases may override assignee resolution with a
	// specific oncall service.
	OncallServiceID *uint `gorm:"index" json:"oncall_service_id,omitempty"`

	EscalatedAt *time.Time `json:"escalated_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Type     *CaseType     `gorm:"foreignKey:TypeID" json:"case_type,omitempty"`
	Priority *CasePriority `gorm:"foreignKey:PriorityID" json:"case_priority,omitempty"`
	Severity *CaseSeverity `gorm:"foreignKey:SeverityID" json:"case_severity,omitempty"`

	Incidents    []Incident    `gorm:"foreignKey:CaseID" json:"incidents,omitempty"`
	Participants []Participant `gorm:"foreignKey:CaseID" json:"participants,omitempty"`
	Events       []Event       `gorm:"foreignKey:CaseID" json:"events,omitempty"`
	Tags         []Tag         `gorm:"many2many:case_tags;" json:"tags,omitempty"`
}

func (Case) TableName() string {
	return "cases"
}

// BeforeCreate defaults status on first insert.
func (c *Case) BeforeCreate(tx *gorm.DB) error {
	if c.Status == "" {
		c.Status = CaseStatusNew
	}
	return nil
}

var caseTransitions = map[CaseStatus][]CaseStatus{
	CaseStatusNew:       {CaseStatusTriage, CaseStatusEscalated, CaseStatusClosed},
	CaseStatusTriage:    {CaseStatusEscalated, CaseStatusClosed},
	CaseStatusEscalated: {CaseStatusClosed},
	CaseStatusClosed:    {},
}

// CanTransition reports whether status may move from one state to another.
func (c *Case) CanTransition(to CaseStatus) bool {
	if c.Status == to {
		return false
	}
	for _, allowed := range caseTransitions[c.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}
