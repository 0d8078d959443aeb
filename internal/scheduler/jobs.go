package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/Netflix/dispatch-sub003/internal/cost"
	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/events"
	"github.com/Netflix/dispatch-sub003/internal/notifications"
	"github.com/Netflix/dispatch-sub003/internal/plugins"
	"github.com/Netflix/dispatch-sub003/internal/signals"
)

// SignalConsumeJob pulls raw signals from each project's consumer plugin.
type SignalConsumeJob struct {
	Consumer *signals.Consumer
}

func (j *SignalConsumeJob) Name() string     { return "signal-consume" }
func (j *SignalConsumeJob) Schedule() string { return "@every 1m" }

func (j *SignalConsumeJob) Run(ctx context.Context, project *database.Project) error {
	n, err := j.Consumer.ConsumeProject(ctx, project.ID, 0)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("Consumed %d signals for project %s", n, project.Name)
	}
	return nil
}

// MonitorSyncJob polls external detections watched by open subjects and
// records status changes on the timeline.
type MonitorSyncJob struct {
	DB       *gorm.DB
	Registry *plugins.Registry
	Events   *events.Service
}

func (j *MonitorSyncJob) Name() string     { return "monitor-sync" }
func (j *MonitorSyncJob) Schedule() string { return "@every 30s" }

func (j *MonitorSyncJob) Run(ctx context.Context, project *database.Project) error {
	monitor, err := j.Registry.Monitor(project.ID)
	if err != nil {
		return nil // no monitor plugin, nothing to poll
	}
	var monitors []database.Monitor
	if err := j.DB.Where("project_id = ? AND enabled = ?", project.ID, true).Find(&monitors).Error; err != nil {
		return err
	}
	for i := range monitors {
		m := &monitors[i]
		var status string
		err := plugins.Call(ctx, "monitor.status", 0, func(ctx context.Context) error {
			var callErr error
			status, callErr = monitor.Status(ctx, m.ResourceID)
			return callErr
		})
		if err != nil {
			log.Printf("Monitor %s poll failed: %v", m.ResourceID, err)
			continue
		}
		if status == m.Status {
			continue
		}
		previous := m.Status
		if err := j.DB.Model(m).Update("status", status).Error; err != nil {
			continue
		}
		entry := events.Entry{
			Description: fmt.Sprintf("Monitor %s changed from %s to %s", m.ResourceID, previous, status),
		}
		if m.IncidentID != nil {
			j.Events.AppendIncident(*m.IncidentID, entry)
		} else if m.CaseID != nil {
			j.Events.AppendCase(*m.CaseID, entry)
		}
	}
	return nil
}

// EvergreenJob reminds owners to re-verify resources marked evergreen.
type EvergreenJob struct {
	DB       *gorm.DB
	Notifier *notifications.Dispatcher
	Now      func() time.Time
}

func (j *EvergreenJob) Name() string     { return "evergreen-reminder" }
func (j *EvergreenJob) Schedule() string { return "0 18 * * *" }

func (j *EvergreenJob) Run(ctx context.Context, project *database.Project) error {
	now := time.Now()
	if j.Now != nil {
		now = j.Now()
	}
	due := map[string][]string{} // owner -> item descriptions

	var tags []database.Tag
	if err := j.DB.Where("project_id = ?", project.ID).Find(&tags).Error; err != nil {
		return err
	}
	for i := range tags {
		if tags[i].Evergreen.Due(now) {
			owner := tags[i].Evergreen.EvergreenOwner
			due[owner] = append(due[owner], "tag "+tags[i].Name)
			j.stamp(&database.Tag{}, tags[i].ID, now)
		}
	}

	var services []database.Service
	if err := j.DB.Where("project_id = ?", project.ID).Find(&services).Error; err != nil {
		return err
	}
	for i := range services {
		if services[i].Evergreen.Due(now) {
			owner := services[i].Evergreen.EvergreenOwner
			due[owner] = append(due[owner], "service "+services[i].Name)
			j.stamp(&database.Service{}, services[i].ID, now)
		}
	}

	var individuals []database.IndividualContact
	if err := j.DB.Where("project_id = ?", project.ID).Find(&individuals).Error; err != nil {
		return err
	}
	for i := range individuals {
		if individuals[i].Evergreen.Due(now) {
			owner := individuals[i].Evergreen.EvergreenOwner
			due[owner] = append(due[owner], "contact "+individuals[i].Email)
			j.stamp(&database.IndividualContact{}, individuals[i].ID, now)
		}
	}

	for owner, items := range due {
		msg := notifications.Message{
			Type:     notifications.MessageEvergreenReminder,
			Template: notifications.TemplateFor(notifications.MessageEvergreenReminder, ""),
			Vars: map[string]string{
				"items": notifications.SortedVars(indexItems(items)),
			},
			Recipients: []string{owner},
			Subject:    "Evergreen review due",
		}
		if err := j.Notifier.Send(ctx, project.ID, msg); err != nil {
			log.Printf("Evergreen reminder to %s failed: %v", owner, err)
		}
	}
	return nil
}

func (j *EvergreenJob) stamp(model interface{}, id uint, now time.Time) {
	if err := j.DB.Model(model).Where("id = ?", id).
		Update("evergreen_last_reminded_at", &now).Error; err != nil {
		log.Printf("Failed to stamp evergreen reminder: %v", err)
	}
}

func indexItems(items []string) map[string]string {
	out := make(map[string]string, len(items))
	for i, item := range items {
		out[fmt.Sprintf("%02d", i+1)] = item
	}
	return out
}

// ShiftFeedbackJob asks recently released assignees how their shift went.
type ShiftFeedbackJob struct {
	DB       *gorm.DB
	Notifier *notifications.Dispatcher
}

func (j *ShiftFeedbackJob) Name() string     { return "oncall-shift-feedback" }
func (j *ShiftFeedbackJob) Schedule() string { return "0 18 * * *" }

func (j *ShiftFeedbackJob) Run(ctx context.Context, project *database.Project) error {
	cutoff := time.Now().Add(-24 * time.Hour)
	var roles []database.ParticipantRole
	err := j.DB.Joins("JOIN participants ON participants.id = participant_roles.participant_id").
		Where("participants.project_id = ? AND participant_roles.role = ? AND participant_roles.renounced_at >= ?",
			project.ID, database.RoleAssignee, cutoff).
		Find(&roles).Error
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, role := range roles {
		var p database.Participant
		if err := j.DB.Preload("Individual").First(&p, role.ParticipantID).Error; err != nil {
			continue
		}
		email := p.Individual.Email
		if seen[email] {
			continue
		}
		seen[email] = true
		var svcName string
		if p.ServiceID != nil {
			var svc database.Service
			if err := j.DB.First(&svc, *p.ServiceID).Error; err == nil {
				svcName = svc.Name
			}
		}
		msg := notifications.Message{
			Type:       notifications.MessageOncallShiftFeedback,
			Template:   notifications.TemplateFor(notifications.MessageOncallShiftFeedback, ""),
			Vars:       map[string]string{"service": svcName},
			Recipients: []string{email},
			Subject:    "How was your shift?",
		}
		if err := j.Notifier.Send(ctx, project.ID, msg); err != nil {
			log.Printf("Shift feedback to %s failed: %v", email, err)
		}
	}
	return nil
}

// TagSyncJob re-applies upstream tags to open subjects: a tag added to a
// signal after its cases opened, or to a case after escalation, still
// reaches them on the next sweep.
type TagSyncJob struct {
	DB *gorm.DB
}

func (j *TagSyncJob) Name() string     { return "tag-sync" }
func (j *TagSyncJob) Schedule() string { return "@hourly" }

func (j *TagSyncJob) Run(ctx context.Context, project *database.Project) error {
	var cases []database.Case
	err := j.DB.Preload("Tags").
		Where("project_id = ? AND status <> ?", project.ID, database.CaseStatusClosed).
		Find(&cases).Error
	if err != nil {
		return err
	}
	for i := range cases {
		cs := &cases[i]
		var instances []database.SignalInstance
		if err := j.DB.Where("case_id = ?", cs.ID).Find(&instances).Error; err != nil {
			continue
		}
		signalIDs := map[uint]bool{}
		for _, si := range instances {
			signalIDs[si.SignalID] = true
		}
		for id := range signalIDs {
			var sig database.Signal
			if err := j.DB.Preload("Tags").First(&sig, id).Error; err != nil {
				continue
			}
			j.appendMissing(cs, cs.Tags, sig.Tags)
		}
	}

	var incidents []database.Incident
	err = j.DB.Preload("Tags").
		Where("project_id = ? AND status <> ? AND case_id IS NOT NULL", project.ID, database.IncidentStatusClosed).
		Find(&incidents).Error
	if err != nil {
		return err
	}
	for i := range incidents {
		inc := &incidents[i]
		var cs database.Case
		if err := j.DB.Preload("Tags").First(&cs, *inc.CaseID).Error; err != nil {
			continue
		}
		j.appendMissing(inc, inc.Tags, cs.Tags)
	}
	return nil
}

// appendMissing adds the upstream tags the subject does not carry yet.
func (j *TagSyncJob) appendMissing(model interface{}, have, upstream []database.Tag) {
	held := map[uint]bool{}
	for _, tag := range have {
		held[tag.ID] = true
	}
	var missing []database.Tag
	for _, tag := range upstream {
		if !held[tag.ID] {
			missing = append(missing, tag)
		}
	}
	if len(missing) == 0 {
		return
	}
	if err := j.DB.Model(model).Association("Tags").Append(&missing); err != nil {
		log.Printf("Tag sync append failed: %v", err)
	}
}

// SourceSyncJob refreshes the current rotation of every oncall service so
// the resolver's contact pool stays current between shifts.
type SourceSyncJob struct {
	DB       *gorm.DB
	Registry *plugins.Registry
}

func (j *SourceSyncJob) Name() string     { return "source-sync" }
func (j *SourceSyncJob) Schedule() string { return "@hourly" }

func (j *SourceSyncJob) Run(ctx context.Context, project *database.Project) error {
	oncall, err := j.Registry.Oncall(project.ID)
	if err != nil {
		return nil // no oncall plugin, nothing to sync
	}
	var services []database.Service
	if err := j.DB.Where("project_id = ? AND enabled = ?", project.ID, true).Find(&services).Error; err != nil {
		return err
	}
	for i := range services {
		svc := &services[i]
		var email string
		err := plugins.Call(ctx, "oncall.get_oncall", 0, func(ctx context.Context) error {
			var callErr error
			email, callErr = oncall.GetOncall(ctx, svc.ExternalID)
			return callErr
		})
		if err != nil {
			log.Printf("Oncall sync for service %s failed: %v", svc.Name, err)
			continue
		}
		if email == "" {
			continue
		}
		var contact database.IndividualContact
		err = j.DB.Where("project_id = ? AND email = ?", project.ID, email).First(&contact).Error
		if err == gorm.ErrRecordNotFound {
			contact = database.IndividualContact{ProjectID: project.ID, Email: email, Enabled: true}
			if err := j.DB.Create(&contact).Error; err != nil {
				log.Printf("Oncall sync could not create contact %s: %v", email, err)
			}
			continue
		}
		if err == nil && !contact.Enabled {
			// The rotation brought a disabled contact back on shift.
			j.DB.Model(&contact).Update("enabled", true)
		}
	}
	return nil
}

// CostRollupJob refreshes the response cost of open subjects so the
// figure stays current without waiting for close.
type CostRollupJob struct {
	DB   *gorm.DB
	Cost *cost.Service
}

func (j *CostRollupJob) Name() string     { return "cost-rollup" }
func (j *CostRollupJob) Schedule() string { return "@daily" }

func (j *CostRollupJob) Run(ctx context.Context, project *database.Project) error {
	var incidents []database.Incident
	err := j.DB.Where("project_id = ? AND status <> ?", project.ID, database.IncidentStatusClosed).
		Find(&incidents).Error
	if err != nil {
		return err
	}
	for i := range incidents {
		amount, err := j.Cost.CalculateIncident(incidents[i].ID)
		if err != nil {
			log.Printf("Cost rollup for %s failed: %v", incidents[i].Name, err)
			continue
		}
		j.DB.Model(&incidents[i]).Update("total_cost", amount)
	}

	var cases []database.Case
	err = j.DB.Where("project_id = ? AND status <> ?", project.ID, database.CaseStatusClosed).
		Find(&cases).Error
	if err != nil {
		return err
	}
	for i := range cases {
		if _, err := j.Cost.CalculateCase(cases[i].ID); err != nil {
			log.Printf("Cost rollup for %s failed: %v", cases[i].Name, err)
		}
	}
	return nil
}
