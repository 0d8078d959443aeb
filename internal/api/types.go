package api

import (
	"time"

	"github.com/Netflix/dispatch-sub003/internal/database"
)

// ========== Incident Types ==========

// CreateIncidentRequest is the request body for POST /incidents.
type CreateIncidentRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"omitempty,max=8192"`
	Visibility  string `json:"visibility" validate:"omitempty,oneof=open restricted"`

	IncidentTypeID     *uint `json:"incident_type_id"`
	IncidentPriorityID *uint `json:"incident_priority_id"`
	IncidentSeverityID *uint `json:"incident_severity_id"`

	CommanderEmail string `json:"commander_email" validate:"omitempty,email"`
	TagIDs         []uint `json:"tag_ids"`
}

// UpdateIncidentRequest is the request body for PATCH /incidents/:id.
// Nil fields are left untouched.
type UpdateIncidentRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description"`
	Visibility  *string `json:"visibility" validate:"omitempty,oneof=open restricted"`
	Status      *string `json:"status" validate:"omitempty,oneof=reported active stable closed"`

	IncidentTypeID     *uint `json:"incident_type_id"`
	IncidentPriorityID *uint `json:"incident_priority_id"`
	IncidentSeverityID *uint `json:"incident_severity_id"`

	CommanderEmail *string `json:"commander_email" validate:"omitempty,email"`
	TagIDs         *[]uint `json:"tag_ids"`
}

// IncidentListItem is a compact representation of an incident for list
// views.
type IncidentListItem struct {
	ID         uint                       `json:"id"`
	Name       string                     `json:"name"`
	Title      string                     `json:"title"`
	Status     database.IncidentStatus    `json:"status"`
	Visibility database.IncidentVisibility `json:"visibility"`
	Commander  string                     `json:"commander,omitempty"`
	TotalCost  float64                    `json:"total_cost"`
	ReportedAt time.Time                  `json:"reported_at"`
	StableAt   *time.Time                 `json:"stable_at,omitempty"`
	ClosedAt   *time.Time                 `json:"closed_at,omitempty"`
	CreatedAt  time.Time                  `json:"created_at"`
	UpdatedAt  time.Time                  `json:"updated_at"`
}

// ========== Case Types ==========

// CreateCaseRequest is the request body for POST /cases.
type CreateCaseRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"omitempty,max=8192"`

	CaseTypeID     *uint `json:"case_type_id"`
	CasePriorityID *uint `json:"case_priority_id"`
	CaseSeverityID *uint `json:"case_severity_id"`

	AssigneeEmail string `json:"assignee_email" validate:"omitempty,email"`
	TagIDs        []uint `json:"tag_ids"`
}

// UpdateCaseRequest is the request body for PATCH /cases/:id.
type UpdateCaseRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description"`
	Status      *string `json:"status" validate:"omitempty,oneof=new triage"`

	CaseTypeID     *uint `json:"case_type_id"`
	CasePriorityID *uint `json:"case_priority_id"`
	CaseSeverityID *uint `json:"case_severity_id"`

	AssigneeEmail *string `json:"assignee_email" validate:"omitempty,email"`
	TagIDs        *[]uint `json:"tag_ids"`
}

// CloseCaseRequest is the request body for POST /cases/:id/close.
type CloseCaseRequest struct {
	Resolution string `json:"resolution" validate:"required,oneof=false_positive user_acknowledged mitigated escalated"`
	Reason     string `json:"reason" validate:"omitempty,max=8192"`
}

// CaseListItem is a compact representation of a case for list views.
type CaseListItem struct {
	ID          uint                    `json:"id"`
	Name        string                  `json:"name"`
	Title       string                  `json:"title"`
	Status      database.CaseStatus     `json:"status"`
	Resolution  database.CaseResolution `json:"resolution,omitempty"`
	Assignee    string                  `json:"assignee,omitempty"`
	EscalatedAt *time.Time              `json:"escalated_at,omitempty"`
	ClosedAt    *time.Time              `json:"closed_at,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// ========== Signal Types ==========

// IngestSignalRequest is the request body for POST /signals/ingest: the
// raw detection payload, passed through as-is.
type IngestSignalRequest map[string]interface{}

// SignalInstanceListItem is a compact signal instance for list views.
type SignalInstanceListItem struct {
	ID           uint                        `json:"id"`
	SignalID     uint                        `json:"signal_id"`
	CaseID       *uint                       `json:"case_id,omitempty"`
	Fingerprint  string                      `json:"fingerprint"`
	FilterAction database.SignalFilterAction `json:"filter_action"`
	CreatedAt    time.Time                   `json:"created_at"`
}

// ========== Auth Types ==========

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// LoginResponse carries the signed token.
type LoginResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

// ========== MFA Types ==========

// IssueMfaRequest is the request body for POST /mfa/challenges. The
// challenge is issued to the authenticated principal.
type IssueMfaRequest struct {
	Action string `json:"action" validate:"required,min=1,max=128"`
}

// ResolveMfaRequest is the request body for POST /mfa/challenges/{uuid}/resolve.
type ResolveMfaRequest struct {
	Action   string `json:"action" validate:"required,min=1,max=128"`
	Approved *bool  `json:"approved" validate:"required"`
}

// ========== Pagination Types ==========

// PaginationMeta contains pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"itemsPerPage"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// PaginatedResponse wraps a list response with pagination metadata.
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}
