package database

import "time"

// CostType classifies incident costs (response time, tooling, ...).
type CostType struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProjectID   uint      `gorm:"not null;index" json:"project_id"`
	Name        string    `gorm:"size:128;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Category    string    `gorm:"size:64" json:"category"`
	Default     bool      `gorm:"default:false" json:"default"`
	Editable    bool      `json:"editable"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (CostType) TableName() string {
	return "cost_types"
}

// CostModel maps plugin events onto billable response-time ceilings.
type CostModel struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProjectID   uint      `gorm:"not null;index" json:"project_id"`
	Name        string    `gorm:"size:128;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Activities []CostModelActivity `gorm:"foreignKey:CostModelID" json:"activities,omitempty"`
}

func (CostModel) TableName() string {
	return "cost_models"
}

// CostModelActivity caps how much of one plugin event counts as engaged
// response time.
type CostModelActivity struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	CostModelID         uint      `gorm:"not null;index" json:"cost_model_id"`
	PluginEvent         string    `gorm:"size:128;not null" json:"plugin_event"`
	ResponseTimeSeconds int       `gorm:"default:300" json:"response_time_seconds"`
	Enabled             bool      `json:"enabled"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (CostModelActivity) TableName() string {
	return "cost_model_activities"
}

// Cost is one monetary line item on a subject.
type Cost struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ProjectID  uint      `gorm:"not null;index" json:"project_id"`
	IncidentID *uint     `gorm:"index" json:"incident_id,omitempty"`
	CaseID     *uint     `gorm:"index" json:"case_id,omitempty"`
	CostTypeID *uint     `gorm:"index" json:"cost_type_id,omitempty"`
	Amount     float64   `gorm:"default:0" json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Cost) TableName() string {
	return "costs"
}
