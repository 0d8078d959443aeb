// Package lifecycle drives incidents and cases through their state
// machines: creation, resource provisioning, participant engagement,
// status transitions and their side effects.
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
	"github.com/Netflix/dispatch-sub003/internal/utils"
)

// IncidentService owns the incident lifecycle.
type IncidentService struct {
	db           *gorm.DB
	registry     *plugins.Registry
	resolver     *resolver.Service
	orch         *orchestrator.Orchestrator
	events       *events.Service
	notifier     *notifications.Dispatcher
	cost         *cost.Service
	participants *Participants
	locks        *subjectLocks
}

// NewIncidentService wires the incident engine.
func NewIncidentService(db *gorm.DB, registry *plugins.Registry, res *resolver.Service, orch *orchestrator.Orchestrator, ev *events.Service, notifier *notifications.Dispatcher, costSvc *cost.Service, participants *Participants) *IncidentService {
	return &IncidentService{
		db:           db,
		registry:     registry,
		resolver:     res,
		orch:         orch,
		events:       ev,
		notifier:     notifier,
		cost:         costSvc,
		participants: participants,
		locks:        newSubjectLocks(),
	}
}

// IncidentCreate is the input for reporting a new incident.
type IncidentCreate struct {
	ProjectID   uint
	Title       string
	Description string
	Visibility  database.IncidentVisibility

	TypeID     *uint
	PriorityID *uint
	SeverityID *uint

	ReporterEmail  string
	CommanderEmail string // explicit assignment, skips rule resolution
	TagIDs         []uint

	// CaseID links the incident back to the case it was escalated from.
	CaseID *uint
}

// Create reports a new incident: persists the row, resolves and engages
// participants, provisions the resource plan and activates the incident.
// The incident row survives resource failures in reported status so a
// retry can finish the job.
func (s *IncidentService) Create(ctx context.Context, in IncidentCreate) (*database.Incident, error) {
	if in.Title == "" || in.ReporterEmail == "" {
		return nil, &errs.ValidationError{Msg: "title and reporter are required"}
	}
	var project database.Project
	if err := s.db.First(&project, in.ProjectID).Error; err != nil {
		return nil, &errs.NotFoundError{Resource: "project", ID: fmt.Sprint(in.ProjectID)}
	}

	inc := &database.Incident{
		ProjectID:   in.ProjectID,
		Title:       in.Title,
		Description: in.Description,
		Visibility:  in.Visibility,
		TypeID:      in.TypeID,
		PriorityID:  in.PriorityID,
		SeverityID:  in.SeverityID,
		CaseID:      in.CaseID,
	}
	if inc.Visibility == "" {
		inc.Visibility = database.VisibilityOpen
	}
	if err := s.applyDefaults(inc); err != nil {
		return nil, err
	}
	if err := s.db.Create(inc).Error; err != nil {
		return nil, err
	}
	inc.Name = fmt.Sprintf("%s-%d", slugify(project.Name), inc.ID)
	if err := s.db.Model(inc).Update("name", inc.Name).Error; err != nil {
		return nil, err
	}
	if len(in.TagIDs) > 0 {
		if err := s.attachTags(inc, in.TagIDs); err != nil {
			log.Printf("Failed to attach tags to %s: %v", inc.Name, err)
		}
	}

	s.events.AppendIncident(inc.ID, events.Entry{
		Description: fmt.Sprintf("Incident %s reported by %s", inc.Name, in.ReporterEmail),
		Author:      in.ReporterEmail,
	})

	reporter, err := s.participants.Add(in.ProjectID, &inc.ID, nil, in.ReporterEmail, database.RoleReporter, nil)
	if err != nil {
		return nil, err
	}
	s.db.Model(inc).Update("reporter_id", reporter.ID)
	inc.ReporterID = &reporter.ID

	candidate := resolver.IncidentCandidate(s.db, inc)
	commanderEmail := in.CommanderEmail
	var commanderService *uint
	if commanderEmail == "" {
		commanderEmail, commanderService = s.resolver.ResolveCommander(ctx, in.ProjectID, candidate, in.ReporterEmail)
	}
	commander, err := s.participants.Add(in.ProjectID, &inc.ID, nil, commanderEmail, database.RoleCommander, commanderService)
	if err != nil {
		return nil, err
	}
	s.db.Model(inc).Update("commander_id", commander.ID)
	inc.CommanderID = &commander.ID

	rec, err := s.resolver.Recommend(ctx, in.ProjectID, candidate)
	if err != nil {
		log.Printf("Participant recommendation failed for %s: %v", inc.Name, err)
		rec = &resolver.Recommendation{}
	}
	for _, email := range rec.Individuals {
		if _, err := s.participants.Add(in.ProjectID, &inc.ID, nil, email, database.RoleParticipant, nil); err != nil {
			log.Printf("Failed to add participant %s: %v", email, err)
		}
	}

	if err := s.provision(ctx, inc, &project, rec.Teams); err != nil {
		// Leave the incident in reported status; the row and any durable
		// resources are kept for retry.
		return inc, err
	}

	if _, err := s.transitionLocked(ctx, inc, database.IncidentStatusActive, commanderEmail); err != nil {
		return inc, err
	}

	s.welcome(ctx, inc, commanderEmail)
	s.pageCommanderIfNeeded(ctx, inc, commanderService)
	return inc, nil
}

// Reprovision re-runs the incident's resource plan. Safe to call at any
// time: existing live resources are updated in place.
func (s *IncidentService) Reprovision(ctx context.Context, incidentID uint) error {
	inc, err := s.Get(incidentID)
	if err != nil {
		return err
	}
	var project database.Project
	if err := s.db.First(&project, inc.ProjectID).Error; err != nil {
		return err
	}
	return s.provision(ctx, inc, &project, nil)
}

func (s *IncidentService) provision(ctx context.Context, inc *database.Incident, project *database.Project, teamEmails []string) error {
	in, err := s.planInput(ctx, inc, teamEmails)
	if err != nil {
		return err
	}
	subject := orchestrator.Subject{ProjectID: inc.ProjectID, IncidentID: &inc.ID}
	created, err := s.orch.Provision(ctx, subject, s.incidentPlan(inc.ProjectID, in))
	if err != nil {
		return err
	}
	s.decorateConversation(ctx, inc, created)
	return nil
}

func (s *IncidentService) planInput(ctx context.Context, inc *database.Incident, teamEmails []string) (planInput, error) {
	members, err := s.participants.Emails(&inc.ID, nil)
	if err != nil {
		return planInput{}, err
	}
	in := planInput{
		Name:           inc.Name,
		Title:          inc.Title,
		Description:    inc.Description,
		Status:         string(inc.Status),
		CommanderEmail: s.commanderEmail(inc),
		Members:        members,
		TeamEmails:     teamEmails,
	}
	if inc.PriorityID != nil {
		var p database.IncidentPriority
		if err := s.db.First(&p, *inc.PriorityID).Error; err == nil {
			in.PriorityName = p.Name
		}
	}
	if inc.TypeID != nil {
		var t database.IncidentType
		if err := s.db.First(&t, *inc.TypeID).Error; err == nil && t.DocumentTemplateID != nil {
			in.DocumentTemplate = fmt.Sprint(*t.DocumentTemplateID)
		}
	}
	return in, nil
}

// decorateConversation sets the topic and bookmarks the ticket and the
// working document in the incident channel.
func (s *IncidentService) decorateConversation(ctx context.Context, inc *database.Incident, created orchestrator.Created) {
	conv := created[database.ResourceConversation]
	if conv == nil {
		return
	}
	chat, err := s.registry.Chat(inc.ProjectID)
	if err != nil {
		return
	}
	topic := fmt.Sprintf("%s | status: %s | commander: %s", utils.TruncateText(inc.Title, 200), inc.Status, s.commanderEmail(inc))
	if err := plugins.Call(ctx, "chat.set_topic", 0, func(ctx context.Context) error {
		return chat.SetTopic(ctx, conv.ResourceID, topic)
	}); err != nil {
		log.Printf("Failed to set topic for %s: %v", inc.Name, err)
	}
	for title, kind := range map[string]database.ResourceKind{
		"Ticket":   database.ResourceTicket,
		"Document": database.ResourceIncidentDocument,
	} {
		res := created[kind]
		if res == nil || res.Weblink == "" {
			continue
		}
		bTitle, link := title, res.Weblink
		if err := plugins.Call(ctx, "chat.bookmark", 0, func(ctx context.Context) error {
			return chat.AddBookmark(ctx, conv.ResourceID, bTitle, link)
		}); err != nil {
			log.Printf("Failed to bookmark %s for %s: %v", title, inc.Name, err)
		}
	}
}

// welcome sends the onboarding message to every engaged participant.
func (s *IncidentService) welcome(ctx context.Context, inc *database.Incident, commanderEmail string) {
	subject := orchestrator.Subject{ProjectID: inc.ProjectID, IncidentID: &inc.ID}
	conv, _ := s.orch.Find(subject, database.ResourceConversation)
	ticket, _ := s.orch.Find(subject, database.ResourceTicket)

	vars := map[string]string{
		"title":     inc.Title,
		"status":    string(inc.Status),
		"commander": commanderEmail,
		"priority":  s.classificationName(inc.PriorityID, &database.IncidentPriority{}),
		"severity":  s.classificationName(inc.SeverityID, &database.IncidentSeverity{}),
	}
	if ticket != nil {
		vars["ticket_weblink"] = ticket.Weblink
	}

	emails, err := s.participants.Emails(&inc.ID, nil)
	if err != nil {
		return
	}
	msg := notifications.Message{
		Type:       notifications.MessageIncidentWelcome,
		Template:   notifications.TemplateFor(notifications.MessageIncidentWelcome, ""),
		Vars:       vars,
		Recipients: emails,
		Subject:    fmt.Sprintf("You have been engaged on %s", inc.Name),
	}
	if conv != nil {
		msg.Conversation = conv.ResourceID
		msg.Persist = true
	}
	if err := s.notifier.Send(ctx, inc.ProjectID, msg); err != nil {
		log.Printf("Welcome notification for %s failed: %v", inc.Name, err)
	}
}

func (s *IncidentService) pageCommanderIfNeeded(ctx context.Context, inc *database.Incident, serviceID *uint) {
	if inc.PriorityID == nil {
		return
	}
	var priority database.IncidentPriority
	if err := s.db.First(&priority, *inc.PriorityID).Error; err != nil || !priority.PageCommander {
		return
	}
	if serviceID == nil {
		var project database.Project
		if err := s.db.First(&project, inc.ProjectID).Error; err != nil || project.OncallServiceID == nil {
			return
		}
		serviceID = project.OncallServiceID
	}
	var svc database.Service
	if err := s.db.First(&svc, *serviceID).Error; err != nil {
		return
	}
	oncall, err := s.registry.Oncall(inc.ProjectID)
	if err != nil {
		log.Printf("No oncall plugin to page commander for %s: %v", inc.Name, err)
		return
	}
	err = plugins.Call(ctx, "oncall.page", 0, func(ctx context.Context) error {
		return oncall.Page(ctx, svc.ExternalID, inc.Title, inc.Description)
	})
	if err != nil {
		log.Printf("Failed to page commander for %s: %v", inc.Name, err)
		return
	}
	s.events.AppendIncident(inc.ID, events.Entry{
		Description: fmt.Sprintf("Commander paged via %s", svc.Name),
	})
}

// Get loads an incident.
func (s *IncidentService) Get(id uint) (*database.Incident, error) {
	var inc database.Incident
	err := s.db.Preload("Tags").First(&inc, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, &errs.NotFoundError{Resource: "incident", ID: fmt.Sprint(id)}
	}
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// Transition moves the incident to a new status, applying the target
// state's side effects. Closing an already closed incident is a no-op.
func (s *IncidentService) Transition(ctx context.Context, incidentID uint, to database.IncidentStatus, actor string) (*database.Incident, error) {
	unlock := s.locks.lock(fmt.Sprintf("incident:%d", incidentID))
	defer unlock()

	inc, err := s.Get(incidentID)
	if err != nil {
		return nil, err
	}
	return s.transitionLocked(ctx, inc, to, actor)
}

func (s *IncidentService) transitionLocked(ctx context.Context, inc *database.Incident, to database.IncidentStatus, actor string) (*database.Incident, error) {
	if inc.Status == to {
		if to == database.IncidentStatusClosed {
			return inc, nil
		}
		return nil, &errs.ValidationError{Msg: fmt.Sprintf("incident is already %s", to)}
	}
	if !inc.CanTransition(to) {
		return nil, &errs.ValidationError{
			Msg: fmt.Sprintf("cannot move incident from %s to %s", inc.Status, to),
		}
	}
	subject := orchestrator.Subject{ProjectID: inc.ProjectID, IncidentID: &inc.ID}
	if inc.Status == database.IncidentStatusReported {
		// Advancing requires the tracking resources to exist.
		for _, kind := range []database.ResourceKind{database.ResourceTicket, database.ResourceConversation} {
			res, err := s.orch.Find(subject, kind)
			if err != nil {
				return nil, err
			}
			if res == nil {
				return nil, &errs.ValidationError{
					Msg: fmt.Sprintf("incident has no %s resource; reprovision before activating", kind),
				}
			}
		}
	}

	from := inc.Status
	now := time.Now()
	updates := map[string]interface{}{"status": to}

	switch to {
	case database.IncidentStatusActive:
		if from == database.IncidentStatusStable {
			updates["stable_at"] = nil
		}
		if from == database.IncidentStatusClosed {
			updates["closed_at"] = nil
			s.reopen(ctx, inc, subject)
		}
	case database.IncidentStatusStable:
		updates["stable_at"] = &now
	case database.IncidentStatusClosed:
		updates["closed_at"] = &now
	}

	if err := s.db.Model(inc).Updates(updates).Error; err != nil {
		return nil, err
	}
	inc.Status = to
	switch to {
	case database.IncidentStatusStable:
		inc.StableAt = &now
		s.ensureReviewDocument(ctx, inc, subject)
	case database.IncidentStatusClosed:
		inc.ClosedAt = &now
		s.close(ctx, inc, subject)
	case database.IncidentStatusActive:
		if from == database.IncidentStatusStable {
			inc.StableAt = nil
		}
		if from == database.IncidentStatusClosed {
			inc.ClosedAt = nil
		}
	}

	description := fmt.Sprintf("Status changed from %s to %s", from, to)
	if to == database.IncidentStatusClosed {
		description += fmt.Sprintf(" after %s", utils.FormatDuration(now.Sub(inc.ReportedAt)))
	}
	s.events.AppendIncident(inc.ID, events.Entry{
		Type:        database.EventTypeFieldUpdated,
		Description: description,
		Author:      actor,
	})
	s.notifyUpdate(ctx, inc, fmt.Sprintf("status %s -> %s", from, to))
	return inc, nil
}

// ensureReviewDocument provisions the review document. It runs when the
// incident calms down to stable, and again on close for incidents that
// never went stable.
func (s *IncidentService) ensureReviewDocument(ctx context.Context, inc *database.Incident, subject orchestrator.Subject) {
	folder, err := s.orch.Find(subject, database.ResourceStorage)
	if err != nil || folder == nil {
		log.Printf("No storage folder for %s, skipping review document", inc.Name)
		return
	}
	in, err := s.planInput(ctx, inc, nil)
	if err != nil {
		return
	}
	step := s.reviewDocumentStep(inc.ProjectID, in, folder)
	if _, err := s.orch.Provision(ctx, subject, []orchestrator.Step{step}); err != nil {
		log.Printf("Review document for %s failed: %v", inc.Name, err)
	}
}

// close archives the ephemeral resources, syncs the ticket and settles the
// final cost. Documents and storage are retained for the review.
func (s *IncidentService) close(ctx context.Context, inc *database.Incident, subject orchestrator.Subject) {
	if doc, err := s.orch.Find(subject, database.ResourceReviewDocument); err == nil && doc == nil {
		s.ensureReviewDocument(ctx, inc, subject)
	}

	if conv, err := s.orch.Find(subject, database.ResourceConversation); err == nil && conv != nil {
		if chat, err := s.registry.Chat(inc.ProjectID); err == nil {
			if err := plugins.Call(ctx, "chat.archive", 0, func(ctx context.Context) error {
				return chat.Archive(ctx, conv.ResourceID)
			}); err != nil {
				log.Printf("Failed to archive conversation for %s: %v", inc.Name, err)
			}
		}
		s.db.Model(conv).Update("archived", true)
	}
	for _, kind := range []database.ResourceKind{database.ResourceTacticalGroup, database.ResourceNotificationsGroup, database.ResourceConference} {
		if res, err := s.orch.Find(subject, kind); err == nil && res != nil {
			s.db.Model(res).Update("archived", true)
		}
	}

	if ticket, err := s.orch.Find(subject, database.ResourceTicket); err == nil && ticket != nil {
		if tp, err := s.registry.Ticket(inc.ProjectID); err == nil {
			if err := plugins.Call(ctx, "ticket.update", 0, func(ctx context.Context) error {
				return tp.Update(ctx, ticket.ResourceID, plugins.TicketFields{
					Title:       inc.Title,
					Description: inc.Description,
					Status:      string(database.IncidentStatusClosed),
					Commander:   s.commanderEmail(inc),
				})
			}); err != nil {
				log.Printf("Failed to close ticket for %s: %v", inc.Name, err)
			}
		}
	}

	amount, err := s.cost.CalculateIncident(inc.ID)
	if err != nil {
		log.Printf("Final cost for %s failed: %v", inc.Name, err)
	} else {
		s.db.Model(inc).Update("total_cost", amount)
		inc.TotalCost = amount
	}
}

// reopen undoes the archival side of closing.
func (s *IncidentService) reopen(ctx context.Context, inc *database.Incident, subject orchestrator.Subject) {
	var conv database.Resource
	err := s.db.Where("incident_id = ? AND kind = ?", inc.ID, database.ResourceConversation).
		Order("id DESC").First(&conv).Error
	if err != nil {
		return
	}
	if chat, err := s.registry.Chat(inc.ProjectID); err == nil {
		if err := plugins.Call(ctx, "chat.unarchive", 0, func(ctx context.Context) error {
			return chat.Unarchive(ctx, conv.ResourceID)
		}); err != nil {
			log.Printf("Failed to unarchive conversation for %s: %v", inc.Name, err)
		}
	}
	s.db.Model(&conv).Update("archived", false)
	s.events.AppendIncident(inc.ID, events.Entry{
		Description: "Incident reopened",
	})
}

// IncidentPatch is a partial update; nil fields are untouched.
type IncidentPatch struct {
	Title          *string
	Description    *string
	Visibility     *database.IncidentVisibility
	TypeID         *uint
	PriorityID     *uint
	SeverityID     *uint
	Status         *database.IncidentStatus
	TagIDs         *[]uint
	CommanderEmail *string
}

// Update applies a patch, records the diff on the timeline and propagates
// the visible fields to the external ticket and conversation.
func (s *IncidentService) Update(ctx context.Context, incidentID uint, patch IncidentPatch, actor string) (*database.Incident, error) {
	unlock := s.locks.lock(fmt.Sprintf("incident:%d", incidentID))
	defer unlock()

	inc, err := s.Get(incidentID)
	if err != nil {
		return nil, err
	}

	var fieldChanges, assessmentChanges []string
	updates := map[string]interface{}{}

	if patch.Title != nil && *patch.Title != inc.Title {
		fieldChanges = append(fieldChanges, fmt.Sprintf("title: %q -> %q", inc.Title, *patch.Title))
		updates["title"] = *patch.Title
		inc.Title = *patch.Title
	}
	if patch.Description != nil && *patch.Description != inc.Description {
		fieldChanges = append(fieldChanges, "description updated")
		updates["description"] = *patch.Description
		inc.Description = *patch.Description
	}
	if patch.Visibility != nil && *patch.Visibility != inc.Visibility {
		fieldChanges = append(fieldChanges, fmt.Sprintf("visibility: %s -> %s", inc.Visibility, *patch.Visibility))
		updates["visibility"] = *patch.Visibility
		inc.Visibility = *patch.Visibility
	}
	if patch.TypeID != nil && !equalID(patch.TypeID, inc.TypeID) {
		assessmentChanges = append(assessmentChanges, "type")
		updates["type_id"] = *patch.TypeID
		inc.TypeID = patch.TypeID
	}
	pagedPriority := false
	if patch.PriorityID != nil && !equalID(patch.PriorityID, inc.PriorityID) {
		if inc.Status == database.IncidentStatusStable || inc.Status == database.IncidentStatusClosed {
			return nil, &errs.ValidationError{Msg: "priority is frozen once the incident is stable"}
		}
		assessmentChanges = append(assessmentChanges, "priority")
		updates["priority_id"] = *patch.PriorityID
		inc.PriorityID = patch.PriorityID
		pagedPriority = true
	}
	if patch.SeverityID != nil && !equalID(patch.SeverityID, inc.SeverityID) {
		if inc.Status == database.IncidentStatusStable || inc.Status == database.IncidentStatusClosed {
			return nil, &errs.ValidationError{Msg: "severity is frozen once the incident is stable"}
		}
		assessmentChanges = append(assessmentChanges, "severity")
		updates["severity_id"] = *patch.SeverityID
		inc.SeverityID = patch.SeverityID
	}

	if len(updates) > 0 {
		if err := s.db.Model(inc).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	if patch.TagIDs != nil {
		if err := s.attachTags(inc, *patch.TagIDs); err != nil {
			return nil, err
		}
		assessmentChanges = append(assessmentChanges, "tags")
	}

	if len(fieldChanges) > 0 {
		s.events.AppendIncident(inc.ID, events.Entry{
			Type:        database.EventTypeFieldUpdated,
			Description: strings.Join(fieldChanges, "; "),
			Author:      actor,
		})
	}
	if len(assessmentChanges) > 0 {
		s.events.AppendIncident(inc.ID, events.Entry{
			Type:        database.EventTypeAssessmentUpdated,
			Description: "Assessment updated: " + strings.Join(assessmentChanges, ", "),
			Author:      actor,
		})
	}

	if patch.CommanderEmail != nil && *patch.CommanderEmail != s.commanderEmail(inc) {
		if err := s.reassignCommander(ctx, inc, *patch.CommanderEmail); err != nil {
			return nil, err
		}
	}

	if len(fieldChanges) > 0 || len(assessmentChanges) > 0 {
		s.propagate(ctx, inc)
		s.notifyUpdate(ctx, inc, strings.Join(append(fieldChanges, assessmentChanges...), "; "))
	}
	if pagedPriority {
		s.pageCommanderIfNeeded(ctx, inc, nil)
	}

	if patch.Status != nil && *patch.Status != inc.Status {
		return s.transitionLocked(ctx, inc, *patch.Status, actor)
	}
	return inc, nil
}

// reassignCommander moves the commander role and announces the change.
func (s *IncidentService) reassignCommander(ctx context.Context, inc *database.Incident, email string) error {
	previous, participant, err := s.participants.AssignRole(inc.ProjectID, &inc.ID, nil, email, database.RoleCommander)
	if err != nil {
		return err
	}
	if err := s.db.Model(inc).Update("commander_id", participant.ID).Error; err != nil {
		return err
	}
	inc.CommanderID = &participant.ID

	subject := orchestrator.Subject{ProjectID: inc.ProjectID, IncidentID: &inc.ID}
	conv, _ := s.orch.Find(subject, database.ResourceConversation)
	msg := notifications.Message{
		Type:     notifications.MessageIncidentRoleChange,
		Template: notifications.TemplateFor(notifications.MessageIncidentRoleChange, ""),
		Vars: map[string]string{
			"title":      inc.Title,
			"individual": email,
			"role":       string(database.RoleCommander),
			"previous":   previous,
		},
	}
	if conv != nil {
		msg.Conversation = conv.ResourceID
	}
	if err := s.notifier.Send(ctx, inc.ProjectID, msg); err != nil {
		log.Printf("Role change notification for %s failed: %v", inc.Name, err)
	}
	return nil
}

// propagate syncs title, description, status and commander to the ticket
// and refreshes the conversation topic.
func (s *IncidentService) propagate(ctx context.Context, inc *database.Incident) {
	subject := orchestrator.Subject{ProjectID: inc.ProjectID, IncidentID: &inc.ID}
	if ticket, err := s.orch.Find(subject, database.ResourceTicket); err == nil && ticket != nil {
		if tp, err := s.registry.Ticket(inc.ProjectID); err == nil {
			fields := plugins.TicketFields{
				Title:       inc.Title,
				Description: inc.Description,
				Status:      string(inc.Status),
				Priority:    s.classificationName(inc.PriorityID, &database.IncidentPriority{}),
				Commander:   s.commanderEmail(inc),
			}
			if err := plugins.Call(ctx, "ticket.update", 0, func(ctx context.Context) error {
				return tp.Update(ctx, ticket.ResourceID, fields)
			}); err != nil {
				log.Printf("Ticket sync for %s failed: %v", inc.Name, err)
			}
		}
	}
	if conv, err := s.orch.Find(subject, database.ResourceConversation); err == nil && conv != nil {
		if chat, err := s.registry.Chat(inc.ProjectID); err == nil {
			topic := fmt.Sprintf("%s | status: %s | commander: %s", utils.TruncateText(inc.Title, 200), inc.Status, s.commanderEmail(inc))
			if err := plugins.Call(ctx, "chat.set_topic", 0, func(ctx context.Context) error {
				return chat.SetTopic(ctx, conv.ResourceID, topic)
			}); err != nil {
				log.Printf("Topic sync for %s failed: %v", inc.Name, err)
			}
		}
	}
}

func (s *IncidentService) notifyUpdate(ctx context.Context, inc *database.Incident, changes string) {
	subject := orchestrator.Subject{ProjectID: inc.ProjectID, IncidentID: &inc.ID}
	conv, _ := s.orch.Find(subject, database.ResourceConversation)
	if conv == nil {
		return
	}
	msg := notifications.Message{
		Type:         notifications.MessageIncidentUpdate,
		Template:     notifications.TemplateFor(notifications.MessageIncidentUpdate, ""),
		Vars:         map[string]string{"title": inc.Title, "changes": changes},
		Conversation: conv.ResourceID,
	}
	if err := s.notifier.Send(ctx, inc.ProjectID, msg); err != nil {
		log.Printf("Update notification for %s failed: %v", inc.Name, err)
	}
}

func (s *IncidentService) applyDefaults(inc *database.Incident) error {
	if inc.TypeID == nil {
		if t, err := database.DefaultIncidentType(s.db, inc.ProjectID); err == nil {
			inc.TypeID = &t.ID
		}
	}
	if inc.PriorityID == nil {
		if p, err := database.DefaultIncidentPriority(s.db, inc.ProjectID); err == nil {
			inc.PriorityID = &p.ID
		}
	}
	if inc.SeverityID == nil {
		if sev, err := database.DefaultIncidentSeverity(s.db, inc.ProjectID); err == nil {
			inc.SeverityID = &sev.ID
		}
	}
	return nil
}

func (s *IncidentService) attachTags(inc *database.Incident, tagIDs []uint) error {
	var tags []database.Tag
	if err := s.db.Find(&tags, tagIDs).Error; err != nil {
		return err
	}
	return s.db.Model(inc).Association("Tags").Replace(&tags)
}

func (s *IncidentService) commanderEmail(inc *database.Incident) string {
	if inc.CommanderID == nil {
		return ""
	}
	var p database.Participant
	if err := s.db.Preload("Individual").First(&p, *inc.CommanderID).Error; err != nil {
		return ""
	}
	return p.Individual.Email
}

// classificationName resolves an ID against one of the classification
// tables, returning its name or empty.
func (s *IncidentService) classificationName(id *uint, model interface{}) string {
	if id == nil {
		return ""
	}
	switch m := model.(type) {
	case *database.IncidentPriority:
		if err := s.db.First(m, *id).Error; err == nil {
			return m.Name
		}
	case *database.IncidentSeverity:
		if err := s.db.First(m, *id).Error; err == nil {
			return m.Name
		}
	case *database.IncidentType:
		if err := s.db.First(m, *id).Error; err == nil {
			return m.Name
		}
	}
	return ""
}

func equalID(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func slugify(name string) string {
	out := strings.ToLower(strings.TrimSpace(name))
	out = strings.ReplaceAll(out, " ", "-")
	return out
}
