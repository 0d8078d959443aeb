package database

import "time"

// Signal declares a detection kind within a project. Incoming raw events
// are matched to a signal by variant (or external id) and flow through the
// signal pipeline.
type Signal struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	ProjectID   uint   `gorm:"not null;index" json:"project_id"`
	Name        string `gorm:"size:255;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Variant     string `gorm:"size:255;index" json:"variant"`
	ExternalID  string `gorm:"size:255;index" json:"external_id"`
	Owner       string `gorm:"size:255" json:"owner"`
	Enabled     bool   `json:"enabled"`

	// Dedupe window for (signal, fingerprint) uniqueness, in seconds.
	DedupeWindowSeconds int `gorm:"default:3600" json:"dedupe_window_seconds"`

	// Defaults applied to cases created from this signal.
	CaseTypeID     *uint `gorm:"index" json:"case_type_id,omitempty"`
	CasePriorityID *uint `gorm:"index" json:"case_priority_id,omitempty"`
	CaseSeverityID *uint `gorm:"index" json:"case_severity_id,omitempty"`

	// OncallServiceID overrides assignee resolution for derived cases.
	OncallServiceID *uint `gorm:"index" json:"oncall_service_id,omitempty"`

	// ConversationTarget, when set, threads derived-case chatter into a
	// shared channel instead of creating a dedicated one.
	ConversationTarget string `gorm:"size:255" json:"conversation_target"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Filters []SignalFilter `gorm:"many2many:assoc_signal_filters;" json:"filters,omitempty"`
	Tags    []Tag          `gorm:"many2many:assoc_signal_tags;" json:"tags,omitempty"`
}

func (Signal) TableName() string {
	return "signals"
}

// SignalFilterAction is what a matching filter does to an instance.
type SignalFilterAction string

const (
	FilterActionNone        SignalFilterAction = "none"
	FilterActionSnooze      SignalFilterAction = "snooze"
	FilterActionDeduplicate SignalFilterAction = "deduplicate"
)

// SignalFilter suppresses case creation for matching instances. Snooze
// filters carry an expiration; deduplicate filters a grouping window.
type SignalFilter struct {
	ID            uint               `gorm:"primaryKey" json:"id"`
	ProjectID     uint               `gorm:"not null;index" json:"project_id"`
	Name          string             `gorm:"size:255;not null" json:"name"`
	Description   string             `gorm:"type:text" json:"description"`
	Action        SignalFilterAction `gorm:"type:varchar(32);not null" json:"action"`
	Expression    JSONB              `gorm:"type:jsonb" json:"expression"`
	Expiration    *time.Time         `json:"expiration,omitempty"`
	WindowSeconds int                `gorm:"default:600" json:"window_seconds"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func (SignalFilter) TableName() string {
	return "signal_filters"
}

// Expired reports whether a snooze filter has lapsed at now.
func (f *SignalFilter) Expired(now time.Time) bool {
	return f.Expiration != nil && !f.Expiration.After(now)
}

// SignalInstance is one occurrence of a signal. It is either linked to
// exactly one case or carries a non-none filter action.
type SignalInstance struct {
	ID          uint               `gorm:"primaryKey" json:"id"`
	ProjectID   uint               `gorm:"not null;index" json:"project_id"`
	SignalID    uint               `gorm:"not null;index:idx_signal_fingerprint" json:"signal_id"`
	CaseID      *uint              `gorm:"index" json:"case_id,omitempty"`
	Fingerprint string             `gorm:"size:128;index:idx_signal_fingerprint" json:"fingerprint"`
	Raw         JSONB              `gorm:"type:jsonb" json:"raw"`
	FilterAction SignalFilterAction `gorm:"type:varchar(32);default:'none'" json:"filter_action"`

	// OncallServiceID, when set (or inherited from the signal), overrides
	// assignee resolution for the derived case.
	OncallServiceID *uint `gorm:"index" json:"oncall_service_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Signal   Signal   `gorm:"foreignKey:SignalID" json:"signal,omitempty"`
	Entities []Entity `gorm:"many2many:assoc_signal_instance_entities;" json:"entities,omitempty"`
}

func (SignalInstance) TableName() string {
	return "signal_instances"
}

// EntityType declares a JSON-path extractor plus an optional regex applied
// to each extracted value.
type EntityType struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProjectID   uint      `gorm:"not null;index" json:"project_id"`
	Name        string    `gorm:"size:128;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	JSONPath    string    `gorm:"size:512;not null" json:"json_path"` // dotted path, e.g. "details.source.ip"
	RegularExpression string `gorm:"size:512" json:"regular_expression"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (EntityType) TableName() string {
	return "entity_types"
}

// Entity is a discovered (type, value) pair, shared across the signal
// instances it was extracted from. Entities are the join key for snooze
// and deduplication filters.
type Entity struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ProjectID    uint      `gorm:"not null;index" json:"project_id"`
	EntityTypeID uint      `gorm:"not null;index:idx_entity_type_value" json:"entity_type_id"`
	Value        string    `gorm:"size:512;not null;index:idx_entity_type_value" json:"value"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	EntityType EntityType `gorm:"foreignKey:EntityTypeID" json:"entity_type,omitempty"`
}

func (Entity) TableName() string {
	return "entities"
}
