package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/Netflix/dispatch-sub003/internal/api"
	"github.com/Netflix/dispatch-sub003/internal/database"
)

func TestCreateCase(t *testing.T) {
	f := newFixture(t)

	cs := f.createCase(t, "Suspicious login")

	if cs.Title != "Suspicious login" {
		t.Errorf("title = %q", cs.Title)
	}
	if cs.Status != database.CaseStatusNew {
		t.Errorf("status = %s, want new", cs.Status)
	}
	if cs.Name == "" {
		t.Error("expected a generated name")
	}
}

func TestCreateCase_RequiresTitle(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/default/cases", map[string]string{"description": "no title"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestListCases(t *testing.T) {
	f := newFixture(t)
	f.createCase(t, "First alert")
	f.createCase(t, "Second alert")

	w := f.do(t, http.MethodGet, "/api/default/cases", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var envelope listEnvelope
	decode(t, w, &envelope)
	if envelope.Pagination.Total != 2 {
		t.Errorf("total = %d, want 2", envelope.Pagination.Total)
	}
	var items []api.CaseListItem
	if err := json.Unmarshal(envelope.Data, &items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].Assignee == "" {
		t.Error("list items should carry the assignee email")
	}
}

func TestUpdateCase_StatusTransition(t *testing.T) {
	f := newFixture(t)
	created := f.createCase(t, "Suspicious login")

	w := f.do(t, http.MethodPatch, "/api/default/cases/"+itoa(created.ID),
		map[string]string{"status": "triage"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var cs database.Case
	decode(t, w, &cs)
	if cs.Status != database.CaseStatusTriage {
		t.Errorf("status = %s, want triage", cs.Status)
	}
}

func TestUpdateCase_GuardedStatusRejected(t *testing.T) {
	f := newFixture(t)
	created := f.createCase(t, "Suspicious login")

	// closed and escalated have dedicated endpoints; the generic PATCH
	// only accepts the plain statuses.
	w := f.do(t, http.MethodPatch, "/api/default/cases/"+itoa(created.ID),
		map[string]string{"status": "closed"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestCloseCase(t *testing.T) {
	f := newFixture(t)
	created := f.createCase(t, "Suspicious login")

	w := f.do(t, http.MethodPost, "/api/default/cases/"+itoa(created.ID)+"/close",
		map[string]string{"resolution": "false_positive", "reason": "scanner noise"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var cs database.Case
	decode(t, w, &cs)
	if cs.Status != database.CaseStatusClosed {
		t.Errorf("status = %s, want closed", cs.Status)
	}
	if cs.Resolution != database.ResolutionFalsePositive {
		t.Errorf("resolution = %s", cs.Resolution)
	}
	if cs.ResolutionReason != "scanner noise" {
		t.Errorf("reason = %q", cs.ResolutionReason)
	}
}

func TestCloseCase_InvalidResolution(t *testing.T) {
	f := newFixture(t)
	created := f.createCase(t, "Suspicious login")

	w := f.do(t, http.MethodPost, "/api/default/cases/"+itoa(created.ID)+"/close",
		map[string]string{"resolution": "shrug"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestEscalateCase(t *testing.T) {
	f := newFixture(t)
	created := f.createCase(t, "Suspicious login")

	w := f.do(t, http.MethodPost, "/api/default/cases/"+itoa(created.ID)+"/escalate", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var inc database.Incident
	decode(t, w, &inc)
	if inc.CaseID == nil || *inc.CaseID != created.ID {
		t.Errorf("incident case link = %v", inc.CaseID)
	}
	if inc.Status != database.IncidentStatusActive {
		t.Errorf("incident status = %s, want active", inc.Status)
	}

	var reloaded database.Case
	if err := f.db.First(&reloaded, created.ID).Error; err != nil {
		t.Fatalf("load case: %v", err)
	}
	if reloaded.Status != database.CaseStatusEscalated {
		t.Errorf("case status = %s, want escalated", reloaded.Status)
	}
}

func TestEscalateCase_Twice(t *testing.T) {
	f := newFixture(t)
	created := f.createCase(t, "Suspicious login")

	w := f.do(t, http.MethodPost, "/api/default/cases/"+itoa(created.ID)+"/escalate", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("first escalation: status = %d", w.Code)
	}
	w = f.do(t, http.MethodPost, "/api/default/cases/"+itoa(created.ID)+"/escalate", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("second escalation: status = %d, want 400", w.Code)
	}
}

func TestCaseTimeline(t *testing.T) {
	f := newFixture(t)
	created := f.createCase(t, "Suspicious login")

	w := f.do(t, http.MethodGet, "/api/default/cases/"+itoa(created.ID)+"/timeline", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var timeline []database.Event
	decode(t, w, &timeline)
	if len(timeline) == 0 {
		t.Error("expected timeline entries for a new case")
	}
}

func TestGetCase_OtherOrganization(t *testing.T) {
	f := newFixture(t)
	f.seedOrganization(t, "other")
	created := f.createCase(t, "Suspicious login")

	w := f.do(t, http.MethodGet, "/api/other/cases/"+itoa(created.ID), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 across organizations", w.Code)
	}
}
