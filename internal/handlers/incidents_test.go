package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/Netflix/dispatch-sub003/internal/api"
	"github.com/Netflix/dispatch-sub003/internal/database"
)

func TestCreateIncident(t *testing.T) {
	f := newFixture(t)

	inc := f.createIncident(t, "Database outage")

	if inc.Title != "Database outage" {
		t.Errorf("title = %q", inc.Title)
	}
	if inc.Status != database.IncidentStatusActive {
		t.Errorf("status = %s, want active after provisioning", inc.Status)
	}
	if inc.Name == "" {
		t.Error("expected a generated name")
	}
	if len(f.seed.Chat.Channels) != 1 {
		t.Errorf("chat channels = %d, want 1", len(f.seed.Chat.Channels))
	}
}

func TestCreateIncident_RequiresTitle(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/default/incidents", map[string]string{"description": "no title"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
	var resp api.ErrorResponse
	decode(t, w, &resp)
	if resp.Details["title"] == "" {
		t.Errorf("expected a field error for title, got %+v", resp.Details)
	}
}

func TestCreateIncident_MalformedBody(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/default/incidents", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for empty body", w.Code)
	}
}

func TestGetIncident(t *testing.T) {
	f := newFixture(t)
	created := f.createIncident(t, "Database outage")

	w := f.do(t, http.MethodGet, "/api/default/incidents/"+itoa(created.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var inc database.Incident
	decode(t, w, &inc)
	if inc.ID != created.ID || inc.Title != "Database outage" {
		t.Errorf("got %+v", inc)
	}
}

func TestGetIncident_NotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/default/incidents/999", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetIncident_BadID(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/default/incidents/abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetIncident_UnknownOrganization(t *testing.T) {
	f := newFixture(t)
	created := f.createIncident(t, "Database outage")

	w := f.do(t, http.MethodGet, "/api/ghost/incidents/"+itoa(created.ID), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown organization", w.Code)
	}
}

func TestGetIncident_OtherOrganization(t *testing.T) {
	f := newFixture(t)
	f.seedOrganization(t, "other")
	created := f.createIncident(t, "Database outage")

	// The incident belongs to the default organization; fetching it
	// through another tenant must 404, not leak.
	w := f.do(t, http.MethodGet, "/api/other/incidents/"+itoa(created.ID), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 across organizations", w.Code)
	}
}

func TestListIncidents(t *testing.T) {
	f := newFixture(t)
	f.createIncident(t, "First outage")
	f.createIncident(t, "Second outage")

	w := f.do(t, http.MethodGet, "/api/default/incidents", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var envelope listEnvelope
	decode(t, w, &envelope)
	if envelope.Pagination.Total != 2 {
		t.Errorf("total = %d, want 2", envelope.Pagination.Total)
	}
	var items []api.IncidentListItem
	if err := json.Unmarshal(envelope.Data, &items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].Commander == "" {
		t.Error("list items should carry the commander email")
	}
}

func TestListIncidents_StatusFilter(t *testing.T) {
	f := newFixture(t)
	f.createIncident(t, "Active outage")

	w := f.do(t, http.MethodGet, "/api/default/incidents?status=closed", nil)
	var envelope listEnvelope
	decode(t, w, &envelope)
	if envelope.Pagination.Total != 0 {
		t.Errorf("closed total = %d, want 0", envelope.Pagination.Total)
	}

	w = f.do(t, http.MethodGet, "/api/default/incidents?status=active", nil)
	decode(t, w, &envelope)
	if envelope.Pagination.Total != 1 {
		t.Errorf("active total = %d, want 1", envelope.Pagination.Total)
	}
}

func TestListIncidents_FilterExpression(t *testing.T) {
	f := newFixture(t)
	f.createIncident(t, "Database outage")
	f.createIncident(t, "Stale cache")

	expr := url.QueryEscape(`{"and": [{"model": "Incident", "field": "title", "op": "ilike", "value": "%outage%"}]}`)
	w := f.do(t, http.MethodGet, "/api/default/incidents?filter="+expr, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var envelope listEnvelope
	decode(t, w, &envelope)
	if envelope.Pagination.Total != 1 {
		t.Errorf("filtered total = %d, want 1", envelope.Pagination.Total)
	}
	var items []api.IncidentListItem
	if err := json.Unmarshal(envelope.Data, &items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Database outage" {
		t.Errorf("items = %v", items)
	}
}

func TestListIncidents_FilterRejectsUnsafeField(t *testing.T) {
	f := newFixture(t)
	f.createIncident(t, "Database outage")

	expr := url.QueryEscape(`{"and": [{"model": "Incident", "field": "title = '' OR 1=1 --", "op": "==", "value": "x"}]}`)
	w := f.do(t, http.MethodGet, "/api/default/incidents?filter="+expr, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a non-identifier field", w.Code)
	}
}

func TestCloseIncident(t *testing.T) {
	f := newFixture(t)
	created := f.createIncident(t, "Database outage")

	w := f.do(t, http.MethodPost, "/api/default/incidents/"+itoa(created.ID)+"/close", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var inc database.Incident
	decode(t, w, &inc)
	if inc.Status != database.IncidentStatusClosed {
		t.Errorf("status = %s, want closed", inc.Status)
	}
	if inc.ClosedAt == nil {
		t.Error("closed_at not stamped")
	}
}

func TestCloseIncident_CrossOrganization(t *testing.T) {
	f := newFixture(t)
	f.seedOrganization(t, "other")
	created := f.createIncident(t, "Database outage")

	w := f.do(t, http.MethodPost, "/api/other/incidents/"+itoa(created.ID)+"/close", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 across organizations", w.Code)
	}
}

func TestUpdateIncident(t *testing.T) {
	f := newFixture(t)
	created := f.createIncident(t, "Database outage")

	w := f.do(t, http.MethodPatch, "/api/default/incidents/"+itoa(created.ID),
		map[string]string{"title": "Database outage, replica promoted"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var inc database.Incident
	decode(t, w, &inc)
	if inc.Title != "Database outage, replica promoted" {
		t.Errorf("title = %q", inc.Title)
	}
}

func TestUpdateIncident_StatusTransition(t *testing.T) {
	f := newFixture(t)
	created := f.createIncident(t, "Database outage")

	w := f.do(t, http.MethodPatch, "/api/default/incidents/"+itoa(created.ID),
		map[string]string{"status": "stable"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var inc database.Incident
	decode(t, w, &inc)
	if inc.Status != database.IncidentStatusStable {
		t.Errorf("status = %s, want stable", inc.Status)
	}
	if inc.StableAt == nil {
		t.Error("stable_at not stamped")
	}
}

func TestUpdateIncident_InvalidStatus(t *testing.T) {
	f := newFixture(t)
	created := f.createIncident(t, "Database outage")

	w := f.do(t, http.MethodPatch, "/api/default/incidents/"+itoa(created.ID),
		map[string]string{"status": "resolved"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422 for unknown status", w.Code)
	}
}

func TestIncidentTimeline(t *testing.T) {
	f := newFixture(t)
	created := f.createIncident(t, "Database outage")

	w := f.do(t, http.MethodGet, "/api/default/incidents/"+itoa(created.ID)+"/timeline", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var timeline []database.Event
	decode(t, w, &timeline)
	if len(timeline) == 0 {
		t.Error("expected timeline entries for a provisioned incident")
	}
}

func TestIncidentParticipants(t *testing.T) {
	f := newFixture(t)
	created := f.createIncident(t, "Database outage")

	w := f.do(t, http.MethodGet, "/api/default/incidents/"+itoa(created.ID)+"/participants", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var participants []database.Participant
	decode(t, w, &participants)
	if len(participants) == 0 {
		t.Error("expected at least the reporter")
	}
}

func itoa(id uint) string {
	return strconv.Itoa(int(id))
}
