// Package signals turns raw detection events into cases: fingerprinting,
// deduplication, entity extraction and suppression filters all run before
// a case is opened.
package signals

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/errs"
	"github.com/Netflix/dispatch-sub003/internal/events"
	"github.com/Netflix/dispatch-sub003/internal/filter"
	"github.com/Netflix/dispatch-sub003/internal/lifecycle"
)

// Processor runs the signal pipeline.
type Processor struct {
	db     *gorm.DB
	cases  *lifecycle.CaseService
	events *events.Service
	now    func() time.Time
}

// NewProcessor creates a processor.
func NewProcessor(db *gorm.DB, cases *lifecycle.CaseService, ev *events.Service) *Processor {
	return &Processor{db: db, cases: cases, events: ev, now: time.Now}
}

// Process ingests one raw payload for a project. The signal definition is
// matched by the payload's variant (falling back to its external id); an
// unmatched or disabled signal is an error the consumer can surface.
func (p *Processor) Process(ctx context.Context, projectID uint, raw database.JSONB) (*database.SignalInstance, error) {
	variant := payloadString(raw, "variant")
	externalID := payloadString(raw, "id")

	signal, err := p.matchSignal(projectID, variant, externalID)
	if err != nil {
		return nil, err
	}

	instance := &database.SignalInstance{
		ProjectID:       projectID,
		SignalID:        signal.ID,
		Fingerprint:     Fingerprint(raw),
		Raw:             raw,
		FilterAction:    database.FilterActionNone,
		OncallServiceID: signal.OncallServiceID,
	}
	if err := p.db.Create(instance).Error; err != nil {
		return nil, err
	}

	// Window dedupe on (signal, fingerprint): an identical payload seen
	// recently rides along on the earlier instance's case.
	if prior := p.priorWithCase(signal, instance); prior != nil {
		instance.CaseID = prior.CaseID
		instance.FilterAction = database.FilterActionDeduplicate
		p.save(instance)
		p.events.AppendCase(*prior.CaseID, events.Entry{
			Description: fmt.Sprintf("Duplicate signal %s attached (fingerprint %.12s)", signal.Name, instance.Fingerprint),
		})
		return instance, nil
	}

	entities := extractEntities(p.db, projectID, raw)
	if len(entities) > 0 {
		if err := p.db.Model(instance).Association("Entities").Replace(&entities); err != nil {
			log.Printf("Failed to link entities for instance %d: %v", instance.ID, err)
		}
		instance.Entities = entities
	}

	if done, err := p.applyFilters(signal, instance); err != nil {
		return instance, err
	} else if done {
		return instance, nil
	}

	if err := p.openCase(ctx, signal, instance); err != nil {
		return instance, err
	}
	return instance, nil
}

func (p *Processor) matchSignal(projectID uint, variant, externalID string) (*database.Signal, error) {
	var signal database.Signal
	q := p.db.Preload("Filters").Preload("Tags").Where("project_id = ?", projectID)
	var err error
	switch {
	case variant != "":
		err = q.Where("variant = ?", variant).First(&signal).Error
	case externalID != "":
		err = q.Where("external_id = ?", externalID).First(&signal).Error
	default:
		return nil, &errs.ValidationError{Msg: "payload carries neither variant nor id"}
	}
	if err == gorm.ErrRecordNotFound {
		return nil, &errs.NotFoundError{Resource: "signal", ID: variant + externalID}
	}
	if err != nil {
		return nil, err
	}
	if !signal.Enabled {
		return nil, &errs.ValidationError{Msg: fmt.Sprintf("signal %s is disabled", signal.Name)}
	}
	return &signal, nil
}

// priorWithCase finds an earlier instance of the same fingerprint inside
// the signal's dedupe window that made it to a case.
func (p *Processor) priorWithCase(signal *database.Signal, instance *database.SignalInstance) *database.SignalInstance {
	window := time.Duration(signal.DedupeWindowSeconds) * time.Second
	if window <= 0 {
		return nil
	}
	cutoff := p.now().Add(-window)
	var prior database.SignalInstance
	err := p.db.Where(
		"signal_id = ? AND fingerprint = ? AND id <> ? AND case_id IS NOT NULL AND created_at >= ?",
		signal.ID, instance.Fingerprint, instance.ID, cutoff,
	).Order("id DESC").First(&prior).Error
	if err != nil {
		return nil
	}
	return &prior
}

// applyFilters runs the signal's suppression filters. Snooze wins over
// deduplicate; within each action the first matching filter applies.
// Returns true when the instance was suppressed and no case should open.
func (p *Processor) applyFilters(signal *database.Signal, instance *database.SignalInstance) (bool, error) {
	candidate := instanceCandidate(instance)
	now := p.now()

	for _, action := range []database.SignalFilterAction{database.FilterActionSnooze, database.FilterActionDeduplicate} {
		for i := range signal.Filters {
			f := &signal.Filters[i]
			if f.Action != action {
				continue
			}
			if action == database.FilterActionSnooze && f.Expired(now) {
				continue
			}
			node, err := filter.ParseMap(f.Expression)
			if err != nil {
				log.Printf("Skipping malformed signal filter %q: %v", f.Name, err)
				continue
			}
			if !node.Eval(candidate) {
				continue
			}
			instance.FilterAction = action
			switch action {
			case database.FilterActionDeduplicate:
				if caseID := p.groupTarget(signal, f, instance); caseID != nil {
					instance.CaseID = caseID
					p.events.AppendCase(*caseID, events.Entry{
						Description: fmt.Sprintf("Signal %s grouped by filter %s", signal.Name, f.Name),
					})
				}
			case database.FilterActionSnooze:
				// Snoozed chatter still belongs with the last case this
				// signal opened, it just never opens a new one.
				instance.CaseID = p.lastCaseID(signal, instance)
			}
			p.save(instance)
			return true, nil
		}
	}
	return false, nil
}

// groupTarget finds the case to ride along on: the newest case-linked
// instance of this signal inside the filter's grouping window.
func (p *Processor) groupTarget(signal *database.Signal, f *database.SignalFilter, instance *database.SignalInstance) *uint {
	window := time.Duration(f.WindowSeconds) * time.Second
	if window <= 0 {
		return nil
	}
	cutoff := p.now().Add(-window)
	var prior database.SignalInstance
	err := p.db.Where(
		"signal_id = ? AND id <> ? AND case_id IS NOT NULL AND created_at >= ?",
		signal.ID, instance.ID, cutoff,
	).Order("id DESC").First(&prior).Error
	if err != nil {
		return nil
	}
	return prior.CaseID
}

// lastCaseID finds the newest case any instance of this signal reached.
func (p *Processor) lastCaseID(signal *database.Signal, instance *database.SignalInstance) *uint {
	var prior database.SignalInstance
	err := p.db.Where(
		"signal_id = ? AND id <> ? AND case_id IS NOT NULL",
		signal.ID, instance.ID,
	).Order("id DESC").First(&prior).Error
	if err != nil {
		return nil
	}
	return prior.CaseID
}

func (p *Processor) openCase(ctx context.Context, signal *database.Signal, instance *database.SignalInstance) error {
	var tagIDs []uint
	for _, tag := range signal.Tags {
		tagIDs = append(tagIDs, tag.ID)
	}
	oncall := instance.OncallServiceID
	if oncall == nil {
		oncall = signal.OncallServiceID
	}
	cs, err := p.cases.Create(ctx, lifecycle.CaseCreate{
		ProjectID:          signal.ProjectID,
		Title:              signal.Name,
		Description:        signal.Description,
		TypeID:             signal.CaseTypeID,
		PriorityID:         signal.CasePriorityID,
		SeverityID:         signal.CaseSeverityID,
		ReporterEmail:      signal.Owner,
		OncallServiceID:    oncall,
		ConversationTarget: signal.ConversationTarget,
		TagIDs:             tagIDs,
	})
	if err != nil {
		return fmt.Errorf("open case for signal %s: %w", signal.Name, err)
	}
	instance.CaseID = &cs.ID
	p.save(instance)
	p.events.AppendCase(cs.ID, events.Entry{
		Description: fmt.Sprintf("Case opened from signal %s (instance %d)", signal.Name, instance.ID),
	})
	return nil
}

func (p *Processor) save(instance *database.SignalInstance) {
	if err := p.db.Model(instance).Updates(map[string]interface{}{
		"case_id":       instance.CaseID,
		"filter_action": instance.FilterAction,
	}).Error; err != nil {
		log.Printf("Failed to update signal instance %d: %v", instance.ID, err)
	}
}

// instanceCandidate flattens the instance for filter evaluation. Entities
// contribute multi-valued fields so expressions like
// {"model":"Entity","field":"value","op":"in","value":[...]} work.
func instanceCandidate(instance *database.SignalInstance) filter.Candidate {
	c := filter.Candidate{}
	c.Set("SignalInstance", "id", instance.ID)
	c.Set("SignalInstance", "fingerprint", instance.Fingerprint)
	c.Set("Signal", "id", instance.SignalID)
	c.Set("Project", "id", instance.ProjectID)
	for _, e := range instance.Entities {
		c.Add("Entity", "id", e.ID)
		c.Add("Entity", "value", e.Value)
		c.Add("EntityType", "id", e.EntityTypeID)
	}
	return c
}

func payloadString(raw database.JSONB, key string) string {
	if v, ok := raw[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
