package api

import "github.com/Netflix/dispatch-sub003/internal/database"

// IncidentToListItem converts an incident to its compact list shape.
// Commander is passed in because the participant row needs a join.
func IncidentToListItem(i database.Incident, commander string) IncidentListItem {
	return IncidentListItem{
		ID:         i.ID,
		Name:       i.Name,
		Title:      i.Title,
		Status:     i.Status,
		Visibility: i.Visibility,
		Commander:  commander,
		TotalCost:  i.TotalCost,
		ReportedAt: i.ReportedAt,
		StableAt:   i.StableAt,
		ClosedAt:   i.ClosedAt,
		CreatedAt:  i.CreatedAt,
		UpdatedAt:  i.UpdatedAt,
	}
}

// CaseToListItem converts a case to its compact list shape.
func CaseToListItem(c database.Case, assignee string) CaseListItem {
	return CaseListItem{
		ID:          c.ID,
		Name:        c.Name,
		Title:       c.Title,
		Status:      c.Status,
		Resolution:  c.Resolution,
		Assignee:    assignee,
		EscalatedAt: c.EscalatedAt,
		ClosedAt:    c.ClosedAt,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// SignalInstanceToListItem converts a signal instance to its list shape.
func SignalInstanceToListItem(si database.SignalInstance) SignalInstanceListItem {
	return SignalInstanceListItem{
		ID:           si.ID,
		SignalID:     si.SignalID,
		CaseID:       si.CaseID,
		Fingerprint:  si.Fingerprint,
		FilterAction: si.FilterAction,
		CreatedAt:    si.CreatedAt,
	}
}
