package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			return json.Unmarshal([]byte(s), j)
		}
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Organization is the top-level tenant. Every project, and transitively
// every subject, belongs to exactly one organization.
type Organization struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:128;not null" json:"name"`
	Slug        string    `gorm:"uniqueIndex;size:128;not null" json:"slug"`
	Description string    `gorm:"type:text" json:"description"`
	Default     bool      `gorm:"default:false" json:"default"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Projects []Project `gorm:"foreignKey:OrganizationID" json:"projects,omitempty"`
}

func (Organization) TableName() string {
	return "organizations"
}

// Project is the configuration scope: priorities, severities, types, cost
// model, plugin instances and feature flags all hang off a project.
type Project struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	OrganizationID uint   `gorm:"not null;index" json:"organization_id"`
	Name           string `gorm:"size:128;not null;index" json:"name"`
	Description    string `gorm:"type:text" json:"description"`
	Default        bool   `gorm:"default:false" json:"default"`
	Enabled        bool   `json:"enabled"`

	// Cost parameters, see cost aggregation.
	AnnualEmployeeCost int `gorm:"default:50000" json:"annual_employee_cost"`
	BusinessYearHours  int `gorm:"default:2080" json:"business_year_hours"`

	// Default service used for assignee resolution when no rule matches.
	OncallServiceID *uint `json:"oncall_service_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Organization Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
}

func (Project) TableName() string {
	return "projects"
}

// HourlyRate returns the project's hourly participant rate.
func (p *Project) HourlyRate() float64 {
	if p.BusinessYearHours <= 0 {
		return 0
	}
	return float64(p.AnnualEmployeeCost) / float64(p.BusinessYearHours)
}

// DispatchUser is a principal known to the service. The JWT email claim is
// resolved against this table; unknown principals are created on first use.
type DispatchUser struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Email          string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash   string    `gorm:"size:255" json:"-"`
	Role           string    `gorm:"size:32;default:'member'" json:"role"`
	OrganizationID *uint     `gorm:"index" json:"organization_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (DispatchUser) TableName() string {
	return "dispatch_users"
}

// PluginInstance is one configured plugin for a project. At most one
// enabled instance per (project, capability) is honored by the registry.
type PluginInstance struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ProjectID     uint      `gorm:"not null;index" json:"project_id"`
	Capability    string    `gorm:"size:64;not null;index" json:"capability"` // chat, ticket, storage, ...
	Slug          string    `gorm:"size:64;not null" json:"slug"`             // vendor slug, e.g. "slack"
	Enabled       bool      `json:"enabled"`
	Configuration JSONB     `gorm:"type:jsonb" json:"configuration"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (PluginInstance) TableName() string {
	return "plugin_instances"
}

// TagType groups tags, optionally requiring periodic review (evergreen).
type TagType struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProjectID   uint      `gorm:"not null;index" json:"project_id"`
	Name        string    `gorm:"size:128;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Exclusive   bool      `gorm:"default:false" json:"exclusive"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (TagType) TableName() string {
	return "tag_types"
}

// Tag is a discoverable label attachable to incidents and cases.
type Tag struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProjectID   uint      `gorm:"not null;index" json:"project_id"`
	TagTypeID   *uint     `gorm:"index" json:"tag_type_id,omitempty"`
	Name        string    `gorm:"size:128;not null;index" json:"name"`
	Source      string    `gorm:"size:64" json:"source"`
	URI         string    `gorm:"size:512" json:"uri"`
	Discoverable bool     `json:"discoverable"`
	External    bool      `gorm:"default:false" json:"external"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Evergreen Evergreen `gorm:"embedded" json:"evergreen"`
}

func (Tag) TableName() string {
	return "tags"
}

// Evergreen marks a record as needing periodic human review. The evergreen
// reminder job emails the owner once the reset interval has elapsed.
type Evergreen struct {
	Evergreen              bool       `gorm:"default:false" json:"evergreen"`
	EvergreenOwner         string     `gorm:"size:255" json:"evergreen_owner"`
	EvergreenReminderDays  int        `gorm:"default:90" json:"evergreen_reminder_interval"`
	EvergreenLastRemindedAt *time.Time `json:"evergreen_last_reminded_at,omitempty"`
}

// Due reports whether an evergreen reminder should be sent at now.
func (e *Evergreen) Due(now time.Time) bool {
	if !e.Evergreen || e.EvergreenOwner == "" {
		return false
	}
	if e.EvergreenLastRemindedAt == nil {
		return true
	}
	return now.Sub(*e.EvergreenLastRemindedAt) >= time.Duration(e.EvergreenReminderDays)*24*time.Hour
}

// SearchFilter is a persisted filter expression shared by participant
// rules, notification routing and signal matching.
type SearchFilter struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProjectID   uint      `gorm:"not null;index" json:"project_id"`
	Name        string    `gorm:"size:128;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Expression  JSONB     `gorm:"type:jsonb" json:"expression"`
	Subject     string    `gorm:"size:32;default:'incident'" json:"subject"` // incident or case
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (SearchFilter) TableName() string {
	return "search_filters"
}

// Feedback is a post-engagement rating left by a participant.
type Feedback struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ProjectID     uint      `gorm:"not null;index" json:"project_id"`
	IncidentID    *uint     `gorm:"index" json:"incident_id,omitempty"`
	CaseID        *uint     `gorm:"index" json:"case_id,omitempty"`
	ParticipantID *uint     `gorm:"index" json:"participant_id,omitempty"`
	Rating        string    `gorm:"size:64" json:"rating"`
	Feedback      string    `gorm:"type:text" json:"feedback"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Feedback) TableName() string {
	return "feedback"
}
