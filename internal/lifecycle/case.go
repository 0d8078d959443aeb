package lifecycle

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Netflix/dispatch-sub003/internal/cost"
	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/errs"
	"github.com/Netflix/dispatch-sub003/internal/events"
	"github.com/Netflix/dispatch-sub003/internal/notifications"
	"github.com/Netflix/dispatch-sub003/internal/orchestrator"
	"github.com/Netflix/dispatch-sub003/internal/plugins"
	"github.com/Netflix/dispatch-sub003/internal/resolver"
)

// CaseService owns the case lifecycle.
type CaseService struct {
	db           *gorm.DB
	registry     *plugins.Registry
	resolver     *resolver.Service
	orch         *orchestrator.Orchestrator
	events       *events.Service
	notifier     *notifications.Dispatcher
	cost         *cost.Service
	participants *Participants
	incidents    *IncidentService
	locks        *subjectLocks
}

// NewCaseService wires the case engine. The incident service handles
// escalation targets.
func NewCaseService(db *gorm.DB, registry *plugins.Registry, res *resolver.Service, orch *orchestrator.Orchestrator, ev *events.Service, notifier *notifications.Dispatcher, costSvc *cost.Service, participants *Participants, incidents *IncidentService) *CaseService {
	return &CaseService{
		db:           db,
		registry:     registry,
		resolver:     res,
		orch:         orch,
		events:       ev,
		notifier:     notifier,
		cost:         costSvc,
		participants: participants,
		incidents:    incidents,
		locks:        newSubjectLocks(),
	}
}

// CaseCreate is the input for opening a case.
type CaseCreate struct {
	ProjectID   uint
	Title       string
	Description string

	TypeID     *uint
	PriorityID *uint
	SeverityID *uint

	ReporterEmail string
	AssigneeEmail string // explicit assignment, skips resolution
	// OncallServiceID overrides assignee resolution, typically set by the
	// originating signal.
	OncallServiceID *uint
	// ConversationTarget threads the case into a shared channel instead of
	// a dedicated one, overriding the case type's target.
	ConversationTarget string
	TagIDs             []uint
}

// Create opens a case, resolves the assignee and stands up the case
// conversation. Cases are deliberately lighter than incidents: no ticket,
// no storage, just a place to talk.
func (s *CaseService) Create(ctx context.Context, in CaseCreate) (*database.Case, error) {
	if in.Title == "" {
		return nil, &errs.ValidationError{Msg: "title is required"}
	}
	var project database.Project
	if err := s.db.First(&project, in.ProjectID).Error; err != nil {
		return nil, &errs.NotFoundError{Resource: "project", ID: fmt.Sprint(in.ProjectID)}
	}

	cs := &database.Case{
		ProjectID:       in.ProjectID,
		Title:           in.Title,
		Description:     in.Description,
		TypeID:          in.TypeID,
		PriorityID:      in.PriorityID,
		SeverityID:      in.SeverityID,
		OncallServiceID: in.OncallServiceID,
	}
	s.applyDefaults(cs)
	if err := s.db.Create(cs).Error; err != nil {
		return nil, err
	}
	cs.Name = fmt.Sprintf("%s-case-%d", slugify(project.Name), cs.ID)
	if err := s.db.Model(cs).Update("name", cs.Name).Error; err != nil {
		return nil, err
	}
	if len(in.TagIDs) > 0 {
		if err := s.attachTags(cs, in.TagIDs); err != nil {
			log.Printf("Failed to attach tags to %s: %v", cs.Name, err)
		}
	}

	s.events.AppendCase(cs.ID, events.Entry{
		Description: fmt.Sprintf("Case %s opened", cs.Name),
		Author:      in.ReporterEmail,
	})

	if in.ReporterEmail != "" {
		if reporter, err := s.participants.Add(in.ProjectID, nil, &cs.ID, in.ReporterEmail, database.RoleReporter, nil); err == nil {
			s.db.Model(cs).Update("reporter_id", reporter.ID)
			cs.ReporterID = &reporter.ID
		}
	}

	candidate := resolver.CaseCandidate(s.db, cs)
	assigneeEmail := in.AssigneeEmail
	var assigneeService *uint
	if assigneeEmail == "" {
		assigneeEmail, assigneeService = s.resolver.ResolveAssignee(ctx, in.ProjectID, in.OncallServiceID, candidate, in.ReporterEmail)
	}
	if assigneeEmail == "" {
		return nil, &errs.ValidationError{Msg: "no assignee could be resolved"}
	}
	assignee, err := s.participants.Add(in.ProjectID, nil, &cs.ID, assigneeEmail, database.RoleAssignee, assigneeService)
	if err != nil {
		return nil, err
	}
	s.db.Model(cs).Update("assignee_id", assignee.ID)
	cs.AssigneeID = &assignee.ID

	s.engage(ctx, cs, assigneeEmail, in.ConversationTarget)
	return cs, nil
}

// engage stands up or reuses the case conversation and sends the welcome.
// Signals and case types may direct their cases into one shared channel
// instead of a dedicated one; the signal's target wins.
func (s *CaseService) engage(ctx context.Context, cs *database.Case, assigneeEmail, target string) {
	if target == "" && cs.TypeID != nil {
		var t database.CaseType
		if err := s.db.First(&t, *cs.TypeID).Error; err == nil {
			target = t.ConversationTarget
		}
	}

	vars := map[string]string{
		"title":    cs.Title,
		"status":   string(cs.Status),
		"assignee": assigneeEmail,
		"priority": s.priorityName(cs),
	}
	msg := notifications.Message{
		Type:       notifications.MessageCaseWelcome,
		Template:   notifications.TemplateFor(notifications.MessageCaseWelcome, ""),
		Vars:       vars,
		Recipients: []string{assigneeEmail},
		Subject:    fmt.Sprintf("Case %s assigned to you", cs.Name),
	}

	if target != "" {
		// Shared channel, no dedicated resources.
		msg.Conversation = target
	} else {
		subject := orchestrator.Subject{ProjectID: cs.ProjectID, CaseID: &cs.ID}
		created, err := s.orch.Provision(ctx, subject, s.casePlan(cs, assigneeEmail))
		if err != nil {
			log.Printf("Case conversation for %s failed: %v", cs.Name, err)
		}
		if conv := created[database.ResourceConversation]; conv != nil {
			msg.Conversation = conv.ResourceID
			msg.Persist = true
		}
	}
	if err := s.notifier.Send(ctx, cs.ProjectID, msg); err != nil {
		log.Printf("Case welcome for %s failed: %v", cs.Name, err)
	}
}

func (s *CaseService) casePlan(cs *database.Case, assigneeEmail string) []orchestrator.Step {
	reg := s.registry
	return []orchestrator.Step{
		{
			Kind: database.ResourceConversation,
			Create: func(ctx context.Context, deps orchestrator.Created) (*plugins.Result, error) {
				chat, err := reg.Chat(cs.ProjectID)
				if err != nil {
					return nil, err
				}
				var res *plugins.Result
				err = plugins.Call(ctx, "chat.create_channel", 0, func(ctx context.Context) error {
					var callErr error
					res, callErr = chat.CreateChannel(ctx, cs.Name, []string{assigneeEmail})
					return callErr
				})
				return res, err
			},
			Teardown: func(ctx context.Context, res *database.Resource) error {
				chat, err := reg.Chat(cs.ProjectID)
				if err != nil {
					return err
				}
				return plugins.Call(ctx, "chat.archive", 0, func(ctx context.Context) error {
					return chat.Archive(ctx, res.ResourceID)
				})
			},
		},
	}
}

// Get loads a case.
func (s *CaseService) Get(id uint) (*database.Case, error) {
	var cs database.Case
	err := s.db.Preload("Tags").First(&cs, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, &errs.NotFoundError{Resource: "case", ID: fmt.Sprint(id)}
	}
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

// Transition moves the case between statuses. Escalation and closing have
// dedicated entry points; this handles the plain moves.
func (s *CaseService) Transition(ctx context.Context, caseID uint, to database.CaseStatus, actor string) (*database.Case, error) {
	unlock := s.locks.lock(fmt.Sprintf("case:%d", caseID))
	defer unlock()

	cs, err := s.Get(caseID)
	if err != nil {
		return nil, err
	}
	if to == database.CaseStatusClosed {
		return nil, &errs.ValidationError{Msg: "closing a case requires a resolution"}
	}
	if to == database.CaseStatusEscalated {
		return nil, &errs.ValidationError{Msg: "use escalate to move a case to escalated"}
	}
	if !cs.CanTransition(to) {
		return nil, &errs.ValidationError{Msg: fmt.Sprintf("cannot move case from %s to %s", cs.Status, to)}
	}
	from := cs.Status
	if err := s.db.Model(cs).Update("status", to).Error; err != nil {
		return nil, err
	}
	cs.Status = to
	s.events.AppendCase(cs.ID, events.Entry{
		Type:        database.EventTypeFieldUpdated,
		Description: fmt.Sprintf("Status changed from %s to %s", from, to),
		Author:      actor,
	})
	return cs, nil
}

// Escalate promotes the case into a full incident. The case is stamped
// escalated, the incident carries the case's assessment and both records
// stay cross-linked.
func (s *CaseService) Escalate(ctx context.Context, caseID uint, actor string) (*database.Incident, error) {
	unlock := s.locks.lock(fmt.Sprintf("case:%d", caseID))
	defer unlock()

	cs, err := s.Get(caseID)
	if err != nil {
		return nil, err
	}
	if !cs.CanTransition(database.CaseStatusEscalated) {
		return nil, &errs.ValidationError{Msg: fmt.Sprintf("cannot escalate a %s case", cs.Status)}
	}

	reporterEmail := actor
	if cs.ReporterID != nil {
		var p database.Participant
		if err := s.db.Preload("Individual").First(&p, *cs.ReporterID).Error; err == nil {
			reporterEmail = p.Individual.Email
		}
	}
	var tagIDs []uint
	for _, tag := range cs.Tags {
		tagIDs = append(tagIDs, tag.ID)
	}

	inc, err := s.incidents.Create(ctx, IncidentCreate{
		ProjectID:     cs.ProjectID,
		Title:         cs.Title,
		Description:   cs.Description,
		ReporterEmail: reporterEmail,
		TagIDs:        tagIDs,
		CaseID:        &cs.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("escalate %s: %w", cs.Name, err)
	}

	now := time.Now()
	if err := s.db.Model(cs).Updates(map[string]interface{}{
		"status":       database.CaseStatusEscalated,
		"escalated_at": &now,
	}).Error; err != nil {
		return inc, err
	}
	cs.Status = database.CaseStatusEscalated
	cs.EscalatedAt = &now

	s.events.AppendCase(cs.ID, events.Entry{
		Description: fmt.Sprintf("Case escalated to incident %s", inc.Name),
		Author:      actor,
	})
	s.events.AppendIncident(inc.ID, events.Entry{
		Description: fmt.Sprintf("Escalated from case %s", cs.Name),
		Author:      actor,
	})

	s.notifyCase(ctx, cs, notifications.MessageCaseEscalated, map[string]string{
		"title":         cs.Title,
		"incident_name": inc.Name,
	})
	return inc, nil
}

// Close closes the case with a resolution. Closing an already closed case
// with the same resolution is a no-op.
func (s *CaseService) Close(ctx context.Context, caseID uint, resolution database.CaseResolution, reason, actor string) (*database.Case, error) {
	unlock := s.locks.lock(fmt.Sprintf("case:%d", caseID))
	defer unlock()

	cs, err := s.Get(caseID)
	if err != nil {
		return nil, err
	}
	if !database.IsValidResolution(resolution) {
		return nil, &errs.ValidationError{Msg: fmt.Sprintf("invalid resolution %q", resolution)}
	}
	if cs.Status == database.CaseStatusClosed {
		if cs.Resolution == resolution {
			return cs, nil
		}
		return nil, &errs.ValidationError{Msg: "case is already closed"}
	}
	if !cs.CanTransition(database.CaseStatusClosed) {
		return nil, &errs.ValidationError{Msg: fmt.Sprintf("cannot close a %s case", cs.Status)}
	}

	now := time.Now()
	if err := s.db.Model(cs).Updates(map[string]interface{}{
		"status":            database.CaseStatusClosed,
		"resolution":        resolution,
		"resolution_reason": reason,
		"closed_at":         &now,
	}).Error; err != nil {
		return nil, err
	}
	cs.Status = database.CaseStatusClosed
	cs.Resolution = resolution
	cs.ResolutionReason = reason
	cs.ClosedAt = &now

	subject := orchestrator.Subject{ProjectID: cs.ProjectID, CaseID: &cs.ID}
	if conv, err := s.orch.Find(subject, database.ResourceConversation); err == nil && conv != nil {
		if chat, err := s.registry.Chat(cs.ProjectID); err == nil {
			if err := plugins.Call(ctx, "chat.archive", 0, func(ctx context.Context) error {
				return chat.Archive(ctx, conv.ResourceID)
			}); err != nil {
				log.Printf("Failed to archive conversation for %s: %v", cs.Name, err)
			}
		}
		s.db.Model(conv).Update("archived", true)
	}

	if _, err := s.cost.CalculateCase(cs.ID); err != nil {
		log.Printf("Final cost for %s failed: %v", cs.Name, err)
	}

	s.events.AppendCase(cs.ID, events.Entry{
		Type:        database.EventTypeFieldUpdated,
		Description: fmt.Sprintf("Case closed as %s", resolution),
		Author:      actor,
	})
	return cs, nil
}

// CasePatch is a partial update; nil fields are untouched.
type CasePatch struct {
	Title         *string
	Description   *string
	TypeID        *uint
	PriorityID    *uint
	SeverityID    *uint
	AssigneeEmail *string
	TagIDs        *[]uint
}

// Update applies a patch and records the diff.
func (s *CaseService) Update(ctx context.Context, caseID uint, patch CasePatch, actor string) (*database.Case, error) {
	unlock := s.locks.lock(fmt.Sprintf("case:%d", caseID))
	defer unlock()

	cs, err := s.Get(caseID)
	if err != nil {
		return nil, err
	}

	var changes []string
	updates := map[string]interface{}{}
	if patch.Title != nil && *patch.Title != cs.Title {
		changes = append(changes, fmt.Sprintf("title: %q -> %q", cs.Title, *patch.Title))
		updates["title"] = *patch.Title
		cs.Title = *patch.Title
	}
	if patch.Description != nil && *patch.Description != cs.Description {
		changes = append(changes, "description updated")
		updates["description"] = *patch.Description
		cs.Description = *patch.Description
	}
	if patch.TypeID != nil && !equalID(patch.TypeID, cs.TypeID) {
		changes = append(changes, "type")
		updates["type_id"] = *patch.TypeID
		cs.TypeID = patch.TypeID
	}
	if patch.PriorityID != nil && !equalID(patch.PriorityID, cs.PriorityID) {
		changes = append(changes, "priority")
		updates["priority_id"] = *patch.PriorityID
		cs.PriorityID = patch.PriorityID
	}
	if patch.SeverityID != nil && !equalID(patch.SeverityID, cs.SeverityID) {
		changes = append(changes, "severity")
		updates["severity_id"] = *patch.SeverityID
		cs.SeverityID = patch.SeverityID
	}
	if len(updates) > 0 {
		if err := s.db.Model(cs).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	if patch.TagIDs != nil {
		if err := s.attachTags(cs, *patch.TagIDs); err != nil {
			return nil, err
		}
		changes = append(changes, "tags")
	}

	if patch.AssigneeEmail != nil {
		previous, participant, err := s.participants.AssignRole(cs.ProjectID, nil, &cs.ID, *patch.AssigneeEmail, database.RoleAssignee)
		if err != nil {
			return nil, err
		}
		if err := s.db.Model(cs).Update("assignee_id", participant.ID).Error; err != nil {
			return nil, err
		}
		cs.AssigneeID = &participant.ID
		if previous != "" {
			changes = append(changes, fmt.Sprintf("assignee: %s -> %s", previous, *patch.AssigneeEmail))
		} else {
			changes = append(changes, fmt.Sprintf("assignee: %s", *patch.AssigneeEmail))
		}
	}

	if len(changes) > 0 {
		s.events.AppendCase(cs.ID, events.Entry{
			Type:        database.EventTypeFieldUpdated,
			Description: strings.Join(changes, "; "),
			Author:      actor,
		})
		s.notifyCase(ctx, cs, notifications.MessageCaseUpdate, map[string]string{
			"title":   cs.Title,
			"changes": strings.Join(changes, "; "),
		})
	}
	return cs, nil
}

func (s *CaseService) notifyCase(ctx context.Context, cs *database.Case, mt notifications.MessageType, vars map[string]string) {
	subject := orchestrator.Subject{ProjectID: cs.ProjectID, CaseID: &cs.ID}
	conv, _ := s.orch.Find(subject, database.ResourceConversation)
	msg := notifications.Message{
		Type:     mt,
		Template: notifications.TemplateFor(mt, ""),
		Vars:     vars,
	}
	if conv != nil {
		msg.Conversation = conv.ResourceID
	} else if cs.TypeID != nil {
		var t database.CaseType
		if err := s.db.First(&t, *cs.TypeID).Error; err == nil && t.ConversationTarget != "" {
			msg.Conversation = t.ConversationTarget
		}
	}
	if msg.Conversation == "" {
		return
	}
	if err := s.notifier.Send(ctx, cs.ProjectID, msg); err != nil {
		log.Printf("Case notification for %s failed: %v", cs.Name, err)
	}
}

func (s *CaseService) applyDefaults(cs *database.Case) {
	if cs.TypeID == nil {
		if t, err := database.DefaultCaseType(s.db, cs.ProjectID); err == nil {
			cs.TypeID = &t.ID
		}
	}
	if cs.PriorityID == nil {
		if p, err := database.DefaultCasePriority(s.db, cs.ProjectID); err == nil {
			cs.PriorityID = &p.ID
		}
	}
	if cs.SeverityID == nil {
		if sev, err := database.DefaultCaseSeverity(s.db, cs.ProjectID); err == nil {
			cs.SeverityID = &sev.ID
		}
	}
}

func (s *CaseService) attachTags(cs *database.Case, tagIDs []uint) error {
	var tags []database.Tag
	if err := s.db.Find(&tags, tagIDs).Error; err != nil {
		return err
	}
	return s.db.Model(cs).Association("Tags").Replace(&tags)
}

func (s *CaseService) priorityName(cs *database.Case) string {
	if cs.PriorityID == nil {
		return ""
	}
	var p database.CasePriority
	if err := s.db.First(&p, *cs.PriorityID).Error; err != nil {
		return ""
	}
	return p.Name
}
