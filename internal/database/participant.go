package database

import "time"

// ParticipantRoleType enumerates the roles a participant can hold.
type ParticipantRoleType string

const (
	RoleCommander   ParticipantRoleType = "commander"
	RoleLiaison     ParticipantRoleType = "liaison"
	RoleScribe      ParticipantRoleType = "scribe"
	RoleReporter    ParticipantRoleType = "reporter"
	RoleObserver    ParticipantRoleType = "observer"
	RoleParticipant ParticipantRoleType = "participant"
	RoleAssignee    ParticipantRoleType = "assignee"
)

// IndividualContact is a person the resolver can engage.
type IndividualContact struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"not null;index" json:"project_id"`
	Name      string    `gorm:"size:255" json:"name"`
	Email     string    `gorm:"size:255;not null;index" json:"email"`
	Title     string    `gorm:"size:255" json:"title"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Filters   []SearchFilter `gorm:"many2many:individual_contact_filters;" json:"filters,omitempty"`
	Evergreen Evergreen      `gorm:"embedded" json:"evergreen"`
}

func (IndividualContact) TableName() string {
	return "individual_contacts"
}

// TeamContact is a group address engaged as a whole.
type TeamContact struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"not null;index" json:"project_id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;not null" json:"email"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Filters   []SearchFilter `gorm:"many2many:team_contact_filters;" json:"filters,omitempty"`
	Evergreen Evergreen      `gorm:"embedded" json:"evergreen"`
}

func (TeamContact) TableName() string {
	return "team_contacts"
}

// Service is an oncall rotation resolvable to an individual via the oncall
// plugin (external_id → current oncall email).
type Service struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProjectID   uint      `gorm:"not null;index" json:"project_id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Type        string    `gorm:"size:64" json:"type"` // oncall plugin slug
	ExternalID  string    `gorm:"size:255;not null" json:"external_id"`
	Enabled     bool      `json:"enabled"`
	// Order breaks ties when several services match a role rule.
	Order     int       `gorm:"default:0" json:"order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Filters   []SearchFilter `gorm:"many2many:service_filters;" json:"filters,omitempty"`
	Evergreen Evergreen      `gorm:"embedded" json:"evergreen"`
}

func (Service) TableName() string {
	return "services"
}

// Participant joins an individual to exactly one subject for its lifetime
// and carries the ordered history of roles the individual has held there.
type Participant struct {
	ID                  uint  `gorm:"primaryKey" json:"id"`
	ProjectID           uint  `gorm:"not null;index" json:"project_id"`
	IncidentID          *uint `gorm:"index" json:"incident_id,omitempty"`
	CaseID              *uint `gorm:"index" json:"case_id,omitempty"`
	IndividualContactID uint  `gorm:"not null;index" json:"individual_contact_id"`

	// ServiceID records the oncall service this participant was resolved
	// through, when applicable.
	ServiceID *uint `gorm:"index" json:"service_id,omitempty"`

	AddedAt   time.Time `json:"added_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Individual IndividualContact `gorm:"foreignKey:IndividualContactID" json:"individual,omitempty"`
	Roles      []ParticipantRole `gorm:"foreignKey:ParticipantID" json:"roles,omitempty"`
}

func (Participant) TableName() string {
	return "participants"
}

// ActiveRole returns the participant's open role row of the given type, or
// nil when none is active.
func (p *Participant) ActiveRole(role ParticipantRoleType) *ParticipantRole {
	for i := range p.Roles {
		if p.Roles[i].Role == role && p.Roles[i].RenouncedAt == nil {
			return &p.Roles[i]
		}
	}
	return nil
}

// ParticipantRole is one assumed role. Rows are never deleted; superseding
// a role closes the previous row by stamping RenouncedAt.
type ParticipantRole struct {
	ID            uint                `gorm:"primaryKey" json:"id"`
	ParticipantID uint                `gorm:"not null;index" json:"participant_id"`
	Role          ParticipantRoleType `gorm:"type:varchar(32);not null;index" json:"role"`
	AssumedAt     time.Time           `json:"assumed_at"`
	RenouncedAt   *time.Time          `json:"renounced_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func (ParticipantRole) TableName() string {
	return "participant_roles"
}

// ParticipantActivity records one window of engagement used by the cost
// aggregator.
type ParticipantActivity struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ParticipantID uint       `gorm:"not null;index" json:"participant_id"`
	IncidentID    *uint      `gorm:"index" json:"incident_id,omitempty"`
	CaseID        *uint      `gorm:"index" json:"case_id,omitempty"`
	PluginEvent   string     `gorm:"size:128" json:"plugin_event"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (ParticipantActivity) TableName() string {
	return "participant_activities"
}
