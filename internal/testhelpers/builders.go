package testhelpers

import (
	"time"

	"github.com/Netflix/dispatch-sub003/internal/database"
)

// ========================================
// Incident Builder
// ========================================

// IncidentBuilder builds Incident instances for testing
type IncidentBuilder struct {
	incident database.Incident
}

// NewIncidentBuilder creates a new incident builder with defaults
func NewIncidentBuilder(projectID uint) *IncidentBuilder {
	return &IncidentBuilder{
		incident: database.Incident{
			ProjectID:   projectID,
			Title:       "Test Incident",
			Description: "Test incident description",
			Status:      database.IncidentStatusReported,
			Visibility:  database.VisibilityOpen,
			ReportedAt:  time.Now(),
		},
	}
}

// WithTitle sets the title
func (b *IncidentBuilder) WithTitle(title string) *IncidentBuilder {
	b.incident.Title = title
	return b
}

// WithStatus sets the status
func (b *IncidentBuilder) WithStatus(status database.IncidentStatus) *IncidentBuilder {
	b.incident.Status = status
	return b
}

// WithVisibility sets the visibility
func (b *IncidentBuilder) WithVisibility(v database.IncidentVisibility) *IncidentBuilder {
	b.incident.Visibility = v
	return b
}

// WithType sets the incident type
func (b *IncidentBuilder) WithType(id uint) *IncidentBuilder {
	b.incident.TypeID = &id
	return b
}

// WithPriority sets the incident priority
func (b *IncidentBuilder) WithPriority(id uint) *IncidentBuilder {
	b.incident.PriorityID = &id
	return b
}

// WithSeverity sets the incident severity
func (b *IncidentBuilder) WithSeverity(id uint) *IncidentBuilder {
	b.incident.SeverityID = &id
	return b
}

// Build returns the constructed incident
func (b *IncidentBuilder) Build() database.Incident {
	return b.incident
}

// ========================================
// Case Builder
// ========================================

// CaseBuilder builds Case instances for testing
type CaseBuilder struct {
	kase database.Case
}

// NewCaseBuilder creates a new case builder with defaults
func NewCaseBuilder(projectID uint) *CaseBuilder {
	return &CaseBuilder{
		kase: database.Case{
			ProjectID:   projectID,
			Title:       "Test Case",
			Description: "Test case description",
			Status:      database.CaseStatusNew,
		},
	}
}

// WithTitle sets the title
func (b *CaseBuilder) WithTitle(title string) *CaseBuilder {
	b.kase.Title = title
	return b
}

// WithStatus sets the status
func (b *CaseBuilder) WithStatus(status database.CaseStatus) *CaseBuilder {
	b.kase.Status = status
	return b
}

// WithType sets the case type
func (b *CaseBuilder) WithType(id uint) *CaseBuilder {
	b.kase.TypeID = &id
	return b
}

// WithResolution sets resolution fields as if the case were closed
func (b *CaseBuilder) WithResolution(r database.CaseResolution, reason string) *CaseBuilder {
	now := time.Now()
	b.kase.Resolution = r
	b.kase.ResolutionReason = reason
	b.kase.Status = database.CaseStatusClosed
	b.kase.ClosedAt = &now
	return b
}

// Build returns the constructed case
func (b *CaseBuilder) Build() database.Case {
	return b.kase
}

// ========================================
// Signal Builder
// ========================================

// SignalBuilder builds Signal definitions for testing
type SignalBuilder struct {
	signal database.Signal
}

// NewSignalBuilder creates a new signal builder with defaults
func NewSignalBuilder(projectID uint) *SignalBuilder {
	return &SignalBuilder{
		signal: database.Signal{
			ProjectID:           projectID,
			Name:                "test-signal",
			Variant:             "test-variant",
			Owner:               "owner@example.com",
			Enabled:             true,
			DedupeWindowSeconds: 3600,
		},
	}
}

// WithName sets the signal name
func (b *SignalBuilder) WithName(name string) *SignalBuilder {
	b.signal.Name = name
	return b
}

// WithVariant sets the matching variant
func (b *SignalBuilder) WithVariant(variant string) *SignalBuilder {
	b.signal.Variant = variant
	return b
}

// WithDedupeWindow sets the fingerprint dedupe window in seconds
func (b *SignalBuilder) WithDedupeWindow(seconds int) *SignalBuilder {
	b.signal.DedupeWindowSeconds = seconds
	return b
}

// WithCaseDefaults sets the classification defaults for derived cases
func (b *SignalBuilder) WithCaseDefaults(typeID, priorityID, severityID *uint) *SignalBuilder {
	b.signal.CaseTypeID = typeID
	b.signal.CasePriorityID = priorityID
	b.signal.CaseSeverityID = severityID
	return b
}

// WithConversationTarget threads derived cases into a shared channel
func (b *SignalBuilder) WithConversationTarget(target string) *SignalBuilder {
	b.signal.ConversationTarget = target
	return b
}

// Disabled marks the signal disabled
func (b *SignalBuilder) Disabled() *SignalBuilder {
	b.signal.Enabled = false
	return b
}

// WithFilters attaches suppression filters
func (b *SignalBuilder) WithFilters(filters ...database.SignalFilter) *SignalBuilder {
	b.signal.Filters = append(b.signal.Filters, filters...)
	return b
}

// Build returns the constructed signal
func (b *SignalBuilder) Build() database.Signal {
	return b.signal
}

// ========================================
// Signal Filter Builder
// ========================================

// SignalFilterBuilder builds SignalFilter instances for testing
type SignalFilterBuilder struct {
	filter database.SignalFilter
}

// NewSignalFilterBuilder creates a new filter builder with defaults
func NewSignalFilterBuilder(projectID uint) *SignalFilterBuilder {
	return &SignalFilterBuilder{
		filter: database.SignalFilter{
			ProjectID:     projectID,
			Name:          "test-filter",
			Action:        database.FilterActionSnooze,
			WindowSeconds: 600,
		},
	}
}

// WithAction sets the filter action
func (b *SignalFilterBuilder) WithAction(action database.SignalFilterAction) *SignalFilterBuilder {
	b.filter.Action = action
	return b
}

// WithExpression sets the filter expression
func (b *SignalFilterBuilder) WithExpression(expr database.JSONB) *SignalFilterBuilder {
	b.filter.Expression = expr
	return b
}

// WithExpiration sets the snooze expiration
func (b *SignalFilterBuilder) WithExpiration(at time.Time) *SignalFilterBuilder {
	b.filter.Expiration = &at
	return b
}

// WithWindow sets the deduplication window in seconds
func (b *SignalFilterBuilder) WithWindow(seconds int) *SignalFilterBuilder {
	b.filter.WindowSeconds = seconds
	return b
}

// Build returns the constructed filter
func (b *SignalFilterBuilder) Build() database.SignalFilter {
	return b.filter
}
