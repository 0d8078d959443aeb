package lifecycle_test

import (
	"testing"

	"gorm.io/gorm"

	"github.com/Netflix/dispatch-sub003/internal/cost"
	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/events"
	"github.com/Netflix/dispatch-sub003/internal/lifecycle"
	"github.com/Netflix/dispatch-sub003/internal/notifications"
	"github.com/Netflix/dispatch-sub003/internal/orchestrator"
	"github.com/Netflix/dispatch-sub003/internal/plugins"
	"github.com/Netflix/dispatch-sub003/internal/plugins/plugintest"
	"github.com/Netflix/dispatch-sub003/internal/resolver"
	"github.com/Netflix/dispatch-sub003/internal/testhelpers"
)

// fixture wires the full lifecycle graph against an in-memory database and
// fake plugin ports.
type fixture struct {
	db           *gorm.DB
	seed         *plugintest.Seed
	project      *database.Project
	events       *events.Service
	participants *lifecycle.Participants
	incidents    *lifecycle.IncidentService
	cases        *lifecycle.CaseService
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

	return &fixture{
		db:           db,
		seed:         seed,
		project:      project,
		events:       ev,
		participants: participants,
		incidents:    incidents,
		cases:        cases,
	}
}

func (f *fixture) resource(t *testing.T, incidentID *uint, caseID *uint, kind database.ResourceKind) *database.Resource {
	t.Helper()
	var res database.Resource
	q := f.db.Where("kind = ?", kind)
	if incidentID != nil {
		q = q.Where("incident_id = ?", *incidentID)
	}
	if caseID != nil {
		q = q.Where("case_id = ?", *caseID)
	}
	if err := q.Order("id DESC").First(&res).Error; err != nil {
		return nil
	}
	return &res
}
