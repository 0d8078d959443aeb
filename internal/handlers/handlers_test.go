package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gorm.io/gorm"

	"github.com/Netflix/dispatch-sub003/internal/cost"
	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/events"
	"github.com/Netflix/dispatch-sub003/internal/handlers"
	"github.com/Netflix/dispatch-sub003/internal/lifecycle"
	"github.com/Netflix/dispatch-sub003/internal/middleware"
	"github.com/Netflix/dispatch-sub003/internal/notifications"
	"github.com/Netflix/dispatch-sub003/internal/orchestrator"
	"github.com/Netflix/dispatch-sub003/internal/plugins"
	"github.com/Netflix/dispatch-sub003/internal/plugins/plugintest"
	"github.com/Netflix/dispatch-sub003/internal/resolver"
	"github.com/Netflix/dispatch-sub003/internal/signals"
	"github.com/Netflix/dispatch-sub003/internal/testhelpers"
)

// fixture wires the full handler stack against an in-memory database,
// with fake plugins and authentication disabled.
type fixture struct {
	db      *gorm.DB
	seed    *plugintest.Seed
	project *database.Project
	queue   *signals.Queue
	jwt     *middleware.JWTAuthMiddleware
	mux     *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testhelpers.SetupDB(t)
	project := testhelpers.SeedProject(t, db)
	reg := plugins.NewRegistry(db)
	seed := plugintest.NewSeed()
	if err := seed.Install(reg, db, project.ID); err != nil {
		t.Fatalf("install fakes: %v", err)
	}

	ev := events.NewService(db)
	res := resolver.NewService(db, reg)
	orch := orchestrator.New(db, ev)
	notifier := notifications.NewDispatcher(reg)
	costSvc := cost.NewService(db, reg)
	participants := lifecycle.NewParticipants(db, ev)
	incidents := lifecycle.NewIncidentService(db, reg, res, orch, ev, notifier, costSvc, participants)
	cases := lifecycle.NewCaseService(db, reg, res, orch, ev, notifier, costSvc, participants, incidents)
	processor := signals.NewProcessor(db, cases, ev)
	queue := signals.NewQueue(processor, 16)

	jwtAuth := middleware.NewJWTAuthMiddleware(db, &middleware.JWTAuthConfig{
		Enabled:        false,
		JWTSecret:      "test-secret",
		JWTExpiryHours: 1,
	})

	mfa := lifecycle.NewMfaService(db, reg)
	apiHandler := handlers.NewAPIHandler(db, incidents, cases, participants, ev, costSvc, queue, mfa, handlers.NewTimelineHub())
	mux := http.NewServeMux()
	handlers.NewHTTPHandler().SetupRoutes(mux)
	handlers.NewAuthHandler(jwtAuth).SetupRoutes(mux)
	apiHandler.SetupRoutes(mux)

	return &fixture{
		db:      db,
		seed:    seed,
		project: project,
		queue:   queue,
		jwt:     jwtAuth,
		mux:     mux,
	}
}

// do sends a request through the mux, encoding body as JSON when set.
func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

// decode unmarshals a recorded JSON response.
func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("decode response (%d: %s): %v", w.Code, w.Body.String(), err)
	}
}

// listEnvelope is the paginated list response shape.
type listEnvelope struct {
	Data       json.RawMessage `json:"data"`
	Pagination struct {
		Page       int   `json:"page"`
		PerPage    int   `json:"itemsPerPage"`
		Total      int64 `json:"total"`
		TotalPages int   `json:"total_pages"`
	} `json:"pagination"`
}

// createIncident posts a minimal incident and returns the created row.
func (f *fixture) createIncident(t *testing.T, title string) database.Incident {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/default/incidents", map[string]string{"title": title})
	if w.Code != http.StatusCreated {
		t.Fatalf("create incident: status %d: %s", w.Code, w.Body.String())
	}
	var inc database.Incident
	decode(t, w, &inc)
	return inc
}

// createCase posts a minimal case and returns the created row.
func (f *fixture) createCase(t *testing.T, title string) database.Case {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/default/cases", map[string]string{"title": title})
	if w.Code != http.StatusCreated {
		t.Fatalf("create case: status %d: %s", w.Code, w.Body.String())
	}
	var cs database.Case
	decode(t, w, &cs)
	return cs
}

// seedOrganization creates a second organization with its own default
// project, for cross-tenant scoping tests.
func (f *fixture) seedOrganization(t *testing.T, slug string) {
	t.Helper()
	org := database.Organization{Name: slug, Slug: slug}
	if err := f.db.Create(&org).Error; err != nil {
		t.Fatalf("create organization: %v", err)
	}
	project := database.Project{OrganizationID: org.ID, Name: slug, Default: true, Enabled: true}
	if err := f.db.Create(&project).Error; err != nil {
		t.Fatalf("create project: %v", err)
	}
}
