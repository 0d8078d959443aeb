// Package orchestrator provisions the set of external collaboration
// resources for a subject in dependency order.
//
// Each step names the resource slot it fills, the slots it needs first,
// and create/update/teardown functions bound to a capability port. Created
// resources are persisted immediately, so a crash mid-plan leaves durable
// partial state a retry can reuse. When a required step fails, previously
// created steps without retain_on_failure are torn down best-effort (soft
// archive, never destruction).
package orchestrator

import (
	"context"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/errs"
	"github.com/Netflix/dispatch-sub003/internal/events"
	"github.com/Netflix/dispatch-sub003/internal/plugins"
)

// Created maps resource kinds to their persisted rows, passed to dependent
// steps.
type Created map[database.ResourceKind]*database.Resource

// Step is one resource in the plan.
type Step struct {
	Kind            database.ResourceKind
	DependsOn       []database.ResourceKind
	Required        bool
	RetainOnFailure bool

	Create   func(ctx context.Context, deps Created) (*plugins.Result, error)
	Update   func(ctx context.Context, res *database.Resource, deps Created) error
	Teardown func(ctx context.Context, res *database.Resource) error
}

// Subject identifies the owner of the plan's resources.
type Subject struct {
	ProjectID  uint
	IncidentID *uint
	CaseID     *uint
}

// Orchestrator executes resource plans.
type Orchestrator struct {
	db     *gorm.DB
	events *events.Service
}

// New creates an orchestrator.
func New(db *gorm.DB, ev *events.Service) *Orchestrator {
	return &Orchestrator{db: db, events: ev}
}

// Provision runs the plan. Existing live resource rows are reused through
// the step's idempotent Update instead of re-created, which makes the
// whole plan safe to retry. The returned map holds every live resource
// after the run; the error is non-nil only when a required step failed.
func (o *Orchestrator) Provision(ctx context.Context, subject Subject, steps []Step) (Created, error) {
	ordered, err := sortSteps(steps)
	if err != nil {
		return nil, err
	}

	created := Created{}
	var done []Step

	for _, step := range ordered {
		existing, err := o.find(subject, step.Kind)
		if err != nil {
			return created, err
		}
		if existing != nil {
			created[step.Kind] = existing
			if step.Update != nil {
				if err := step.Update(ctx, existing, created); err != nil {
					o.logFailure(subject, step.Kind, err)
				}
			}
			done = append(done, step)
			continue
		}

		if step.Create == nil {
			continue
		}
		result, err := step.Create(ctx, created)
		if err != nil {
			o.logFailure(subject, step.Kind, err)
			if errs.IsNotFound(err) {
				// No active plugin for the capability.
				if step.Required {
					return created, fmt.Errorf("no plugin for required resource %s: %w", step.Kind, err)
				}
				continue
			}
			if !step.Required {
				continue
			}
			o.compensate(ctx, subject, created, done)
			return created, fmt.Errorf("provision %s: %w", step.Kind, err)
		}

		res := &database.Resource{
			ProjectID:  subject.ProjectID,
			IncidentID: subject.IncidentID,
			CaseID:     subject.CaseID,
			Kind:       step.Kind,
			ResourceMixin: database.ResourceMixin{
				ResourceType: result.ResourceType,
				ResourceID:   result.ResourceID,
				Weblink:      result.Weblink,
			},
		}
		if err := o.db.Create(res).Error; err != nil {
			return created, fmt.Errorf("persist resource %s: %w", step.Kind, err)
		}
		created[step.Kind] = res
		done = append(done, step)
	}

	return created, nil
}

// Teardown archives the subject's live resources through each step's
// teardown function. Failures are logged and skipped.
func (o *Orchestrator) Teardown(ctx context.Context, subject Subject, steps []Step) {
	for _, step := range steps {
		res, err := o.find(subject, step.Kind)
		if err != nil || res == nil {
			continue
		}
		o.archive(ctx, subject, step, res)
	}
}

func (o *Orchestrator) compensate(ctx context.Context, subject Subject, created Created, done []Step) {
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.RetainOnFailure {
			continue
		}
		res := created[step.Kind]
		if res == nil {
			continue
		}
		o.archive(ctx, subject, step, res)
	}
}

func (o *Orchestrator) archive(ctx context.Context, subject Subject, step Step, res *database.Resource) {
	if step.Teardown != nil {
		if err := step.Teardown(ctx, res); err != nil {
			log.Printf("Teardown of %s %s failed: %v", step.Kind, res.ResourceID, err)
			return
		}
	}
	if err := o.db.Model(res).Update("archived", true).Error; err != nil {
		log.Printf("Failed to mark %s %s archived: %v", step.Kind, res.ResourceID, err)
	}
}

// Find returns the subject's live resource of the given kind, or nil.
func (o *Orchestrator) Find(subject Subject, kind database.ResourceKind) (*database.Resource, error) {
	return o.find(subject, kind)
}

func (o *Orchestrator) find(subject Subject, kind database.ResourceKind) (*database.Resource, error) {
	q := o.db.Where("kind = ? AND archived = ?", kind, false)
	if subject.IncidentID != nil {
		q = q.Where("incident_id = ?", *subject.IncidentID)
	} else if subject.CaseID != nil {
		q = q.Where("case_id = ?", *subject.CaseID)
	} else {
		return nil, fmt.Errorf("subject has no owner")
	}
	var res database.Resource
	err := q.First(&res).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (o *Orchestrator) logFailure(subject Subject, kind database.ResourceKind, err error) {
	entry := events.Entry{
		Type:        database.EventTypeOther,
		Description: fmt.Sprintf("Failed to provision %s: %v", kind, err),
	}
	if subject.IncidentID != nil {
		o.events.AppendIncident(*subject.IncidentID, entry)
	} else if subject.CaseID != nil {
		o.events.AppendCase(*subject.CaseID, entry)
	}
	log.Printf("Resource %s failed for project %d: %v", kind, subject.ProjectID, err)
}

// sortSteps orders the plan by declared dependency, preserving declaration
// order among independent steps.
func sortSteps(steps []Step) ([]Step, error) {
	placed := make(map[database.ResourceKind]bool)
	var ordered []Step
	remaining := append([]Step(nil), steps...)

	for len(remaining) > 0 {
		progressed := false
		var next []Step
		for _, step := range remaining {
			ready := true
			for _, dep := range step.DependsOn {
				if !placed[dep] && declared(steps, dep) {
					ready = false
					break
				}
			}
			if ready {
				ordered = append(ordered, step)
				placed[step.Kind] = true
				progressed = true
			} else {
				next = append(next, step)
			}
		}
		if !progressed {
			return nil, fmt.Errorf("resource plan has a dependency cycle")
		}
		remaining = next
	}
	return ordered, nil
}

func declared(steps []Step, kind database.ResourceKind) bool {
	for _, s := range steps {
		if s.Kind == kind {
			return true
		}
	}
	return false
}
