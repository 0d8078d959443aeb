package signals

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/Netflix/dispatch-sub003/internal/cost"
	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/errs"
	"github.com/Netflix/dispatch-sub003/internal/events"
	"github.com/Netflix/dispatch-sub003/internal/lifecycle"
	"github.com/Netflix/dispatch-sub003/internal/notifications"
	"github.com/Netflix/dispatch-sub003/internal/orchestrator"
	"github.com/Netflix/dispatch-sub003/internal/plugins"
	"github.com/Netflix/dispatch-sub003/internal/plugins/plugintest"
	"github.com/Netflix/dispatch-sub003/internal/resolver"
	"github.com/Netflix/dispatch-sub003/internal/testhelpers"
)

// matchAll is a filter expression every instance satisfies.
var matchAll = database.JSONB{"model": "Project", "field": "id", "op": ">", "value": 0}

type pipeline struct {
	db      *gorm.DB
	proc    *Processor
	reg     *plugins.Registry
	seed    *plugintest.Seed
	project *database.Project
}

func newPipeline(t *testing.T) *pipeline {
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

	return &pipeline{db: db, proc: NewProcessor(db, cases, ev), reg: reg, seed: seed, project: project}
}

func (p *pipeline) createSignal(t *testing.T, sig database.Signal) database.Signal {
	t.Helper()
	if err := p.db.Create(&sig).Error; err != nil {
		t.Fatalf("create signal: %v", err)
	}
	return sig
}

func (p *pipeline) caseCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	p.db.Model(&database.Case{}).Count(&count)
	return count
}

func TestProcess_NoVariantNoID(t *testing.T) {
	p := newPipeline(t)
	_, err := p.proc.Process(context.Background(), p.project.ID, database.JSONB{"noise": true})
	if !errs.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestProcess_UnknownSignal(t *testing.T) {
	p := newPipeline(t)
	_, err := p.proc.Process(context.Background(), p.project.ID, database.JSONB{"variant": "ghost"})
	if !errs.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestProcess_DisabledSignal(t *testing.T) {
	p := newPipeline(t)
	p.createSignal(t, testhelpers.NewSignalBuilder(p.project.ID).Disabled().Build())

	_, err := p.proc.Process(context.Background(), p.project.ID, database.JSONB{"variant": "test-variant"})
	if !errs.IsValidation(err) {
		t.Fatalf("expected ValidationError for disabled signal, got %v", err)
	}
}

func TestProcess_MatchesByExternalID(t *testing.T) {
	p := newPipeline(t)
	sig := testhelpers.NewSignalBuilder(p.project.ID).WithVariant("").Build()
	sig.ExternalID = "det-42"
	p.createSignal(t, sig)

	instance, err := p.proc.Process(context.Background(), p.project.ID, database.JSONB{"id": "det-42"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if instance.CaseID == nil {
		t.Error("expected a case for the matched signal")
	}
}

func TestProcess_OpensCaseWithSignalDefaults(t *testing.T) {
	p := newPipeline(t)

	caseType := database.CaseType{ProjectID: p.project.ID, Name: "phishing", Enabled: true}
	if err := p.db.Create(&caseType).Error; err != nil {
		t.Fatalf("create case type: %v", err)
	}
	tag := database.Tag{ProjectID: p.project.ID, Name: "credential-theft"}
	if err := p.db.Create(&tag).Error; err != nil {
		t.Fatalf("create tag: %v", err)
	}

	sig := testhelpers.NewSignalBuilder(p.project.ID).
		WithName("suspicious-login").
		WithCaseDefaults(&caseType.ID, nil, nil).
		Build()
	sig.Tags = []database.Tag{tag}
	sig = p.createSignal(t, sig)

	instance, err := p.proc.Process(context.Background(), p.project.ID, database.JSONB{"variant": "test-variant", "user": "alice"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if instance.CaseID == nil {
		t.Fatal("instance should be linked to a case")
	}
	if instance.FilterAction != database.FilterActionNone {
		t.Errorf("filter action = %s, want none", instance.FilterAction)
	}

	var cs database.Case
	if err := p.db.Preload("Tags").First(&cs, *instance.CaseID).Error; err != nil {
		t.Fatalf("load case: %v", err)
	}
	if cs.Title != "suspicious-login" {
		t.Errorf("case title = %q", cs.Title)
	}
	if cs.TypeID == nil || *cs.TypeID != caseType.ID {
		t.Errorf("case type = %v, want %d", cs.TypeID, caseType.ID)
	}
	if len(cs.Tags) != 1 || cs.Tags[0].Name != "credential-theft" {
		t.Errorf("signal tags not carried onto the case: %v", cs.Tags)
	}
	if cs.AssigneeID == nil {
		t.Error("assignee should fall back to the signal owner")
	}
	if len(p.seed.Chat.Channels) != 1 {
		t.Errorf("expected a case conversation, got %d channels", len(p.seed.Chat.Channels))
	}
}

func TestProcess_FingerprintDedupeWithinWindow(t *testing.T) {
	p := newPipeline(t)
	p.createSignal(t, testhelpers.NewSignalBuilder(p.project.ID).WithDedupeWindow(3600).Build())

	payload := database.JSONB{"variant": "test-variant", "host": "web-1"}

	first, err := p.proc.Process(context.Background(), p.project.ID, payload)
	if err != nil {
		t.Fatalf("first Process failed: %v", err)
	}
	second, err := p.proc.Process(context.Background(), p.project.ID, payload)
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}

	if second.FilterAction != database.FilterActionDeduplicate {
		t.Errorf("filter action = %s, want deduplicate", second.FilterAction)
	}
	if second.CaseID == nil || *second.CaseID != *first.CaseID {
		t.Errorf("duplicate should ride along on case %v, got %v", first.CaseID, second.CaseID)
	}
	if got := p.caseCount(t); got != 1 {
		t.Fatalf("expected 1 case, got %d", got)
	}

	// Past the window the same payload opens a fresh case.
	p.proc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	third, err := p.proc.Process(context.Background(), p.project.ID, payload)
	if err != nil {
		t.Fatalf("third Process failed: %v", err)
	}
	if third.CaseID == nil || *third.CaseID == *first.CaseID {
		t.Errorf("expired window should open a new case, got %v", third.CaseID)
	}
	if got := p.caseCount(t); got != 2 {
		t.Errorf("expected 2 cases, got %d", got)
	}
}

func TestProcess_SnoozeWinsOverDedupe(t *testing.T) {
	p := newPipeline(t)
	p.createSignal(t, testhelpers.NewSignalBuilder(p.project.ID).WithFilters(
		testhelpers.NewSignalFilterBuilder(p.project.ID).
			WithAction(database.FilterActionDeduplicate).
			WithExpression(matchAll).
			Build(),
		testhelpers.NewSignalFilterBuilder(p.project.ID).
			WithAction(database.FilterActionSnooze).
			WithExpression(matchAll).
			Build(),
	).Build())

	instance, err := p.proc.Process(context.Background(), p.project.ID, database.JSONB{"variant": "test-variant"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if instance.FilterAction != database.FilterActionSnooze {
		t.Errorf("filter action = %s, want snooze", instance.FilterAction)
	}
	if instance.CaseID != nil {
		t.Error("snoozed instance must not open a case")
	}
	if got := p.caseCount(t); got != 0 {
		t.Errorf("expected no cases, got %d", got)
	}
}

func TestProcess_ExpiredSnoozeSkipped(t *testing.T) {
	p := newPipeline(t)
	p.createSignal(t, testhelpers.NewSignalBuilder(p.project.ID).WithFilters(
		testhelpers.NewSignalFilterBuilder(p.project.ID).
			WithAction(database.FilterActionSnooze).
			WithExpression(matchAll).
			WithExpiration(time.Now().Add(-time.Minute)).
			Build(),
	).Build())

	instance, err := p.proc.Process(context.Background(), p.project.ID, database.JSONB{"variant": "test-variant"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if instance.CaseID == nil {
		t.Error("expired snooze must not suppress the instance")
	}
	if instance.FilterAction != database.FilterActionNone {
		t.Errorf("filter action = %s, want none", instance.FilterAction)
	}
}

func TestProcess_SnoozeLinksLastCase(t *testing.T) {
	p := newPipeline(t)
	sig := p.createSignal(t, testhelpers.NewSignalBuilder(p.project.ID).WithDedupeWindow(0).Build())

	first, err := p.proc.Process(context.Background(), p.project.ID, database.JSONB{"variant": "test-variant", "host": "web-1"})
	if err != nil {
		t.Fatalf("first Process failed: %v", err)
	}

	snooze := testhelpers.NewSignalFilterBuilder(p.project.ID).
		WithAction(database.FilterActionSnooze).
		WithExpression(matchAll).
		Build()
	if err := p.db.Model(&sig).Association("Filters").Append(&snooze); err != nil {
		t.Fatalf("attach filter: %v", err)
	}

	second, err := p.proc.Process(context.Background(), p.project.ID, database.JSONB{"variant": "test-variant", "host": "web-2"})
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}
	if second.FilterAction != database.FilterActionSnooze {
		t.Errorf("filter action = %s, want snooze", second.FilterAction)
	}
	if second.CaseID == nil || *second.CaseID != *first.CaseID {
		t.Errorf("snoozed instance should link to case %v, got %v", first.CaseID, second.CaseID)
	}
	if got := p.caseCount(t); got != 1 {
		t.Errorf("expected 1 case, got %d", got)
	}
}

func TestProcess_SharedConversationTarget(t *testing.T) {
	p := newPipeline(t)
	p.createSignal(t, testhelpers.NewSignalBuilder(p.project.ID).
		WithConversationTarget("C-SHARED").
		Build())

	instance, err := p.proc.Process(context.Background(), p.project.ID, database.JSONB{"variant": "test-variant"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if instance.CaseID == nil {
		t.Fatal("instance should be linked to a case")
	}
	if len(p.seed.Chat.Channels) != 0 {
		t.Errorf("shared-target signal must not get a dedicated channel, got %d", len(p.seed.Chat.Channels))
	}
	if len(p.seed.Chat.Messages) == 0 {
		t.Error("welcome should still land in the shared channel")
	}
}

func TestProcess_DedupeFilterGroupsToPriorCase(t *testing.T) {
	p := newPipeline(t)
	sig := p.createSignal(t, testhelpers.NewSignalBuilder(p.project.ID).WithDedupeWindow(0).Build())

	first, err := p.proc.Process(context.Background(), p.project.ID, database.JSONB{"variant": "test-variant", "host": "web-1"})
	if err != nil {
		t.Fatalf("first Process failed: %v", err)
	}

	// Filter attached after the first instance already opened a case.
	group := testhelpers.NewSignalFilterBuilder(p.project.ID).
		WithAction(database.FilterActionDeduplicate).
		WithExpression(matchAll).
		WithWindow(600).
		Build()
	if err := p.db.Model(&sig).Association("Filters").Append(&group); err != nil {
		t.Fatalf("attach filter: %v", err)
	}

	second, err := p.proc.Process(context.Background(), p.project.ID, database.JSONB{"variant": "test-variant", "host": "web-2"})
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}
	if second.FilterAction != database.FilterActionDeduplicate {
		t.Errorf("filter action = %s, want deduplicate", second.FilterAction)
	}
	if second.CaseID == nil || *second.CaseID != *first.CaseID {
		t.Errorf("grouped instance should attach to case %v, got %v", first.CaseID, second.CaseID)
	}
	if got := p.caseCount(t); got != 1 {
		t.Errorf("expected 1 case, got %d", got)
	}
}

func TestProcess_SnoozeOnExtractedEntity(t *testing.T) {
	p := newPipeline(t)

	et := database.EntityType{ProjectID: p.project.ID, Name: "source-ip", JSONPath: "source.ip", Enabled: true}
	if err := p.db.Create(&et).Error; err != nil {
		t.Fatalf("create entity type: %v", err)
	}
	p.createSignal(t, testhelpers.NewSignalBuilder(p.project.ID).WithFilters(
		testhelpers.NewSignalFilterBuilder(p.project.ID).
			WithAction(database.FilterActionSnooze).
			WithExpression(database.JSONB{
				"model": "Entity", "field": "value", "op": "in",
				"value": []interface{}{"10.0.0.1"},
			}).
			Build(),
	).Build())

	snoozed, err := p.proc.Process(context.Background(), p.project.ID,
		database.JSONB{"variant": "test-variant", "source": map[string]interface{}{"ip": "10.0.0.1"}})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if snoozed.FilterAction != database.FilterActionSnooze {
		t.Errorf("known-noisy source should be snoozed, got %s", snoozed.FilterAction)
	}

	open, err := p.proc.Process(context.Background(), p.project.ID,
		database.JSONB{"variant": "test-variant", "source": map[string]interface{}{"ip": "10.0.0.9"}})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if open.CaseID == nil {
		t.Error("other sources should still open a case")
	}
}
