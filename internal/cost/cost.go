// Package cost turns recorded participant activity into a response-cost
// figure per subject.
package cost

import (
	"context"
	"log"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/plugins"
)

// ResponseCostType is the name of the cost type the aggregator writes to.
const ResponseCostType = "Response Cost"

// Service aggregates participant activity into costs.
type Service struct {
	db       *gorm.DB
	registry *plugins.Registry
}

// NewService creates a cost service.
func NewService(db *gorm.DB, registry *plugins.Registry) *Service {
	return &Service{db: db, registry: registry}
}

// CalculateIncident recomputes the incident's response cost and upserts
// the line item. Returns the new amount.
func (s *Service) CalculateIncident(incidentID uint) (float64, error) {
	var inc database.Incident
	if err := s.db.First(&inc, incidentID).Error; err != nil {
		return 0, err
	}
	var activities []database.ParticipantActivity
	if err := s.db.Where("incident_id = ?", incidentID).Find(&activities).Error; err != nil {
		return 0, err
	}
	return s.upsert(inc.ProjectID, &incidentID, nil, activities)
}

// CalculateCase recomputes the case's response cost.
func (s *Service) CalculateCase(caseID uint) (float64, error) {
	var cs database.Case
	if err := s.db.First(&cs, caseID).Error; err != nil {
		return 0, err
	}
	var activities []database.ParticipantActivity
	if err := s.db.Where("case_id = ?", caseID).Find(&activities).Error; err != nil {
		return 0, err
	}
	return s.upsert(cs.ProjectID, nil, &caseID, activities)
}

func (s *Service) upsert(projectID uint, incidentID, caseID *uint, activities []database.ParticipantActivity) (float64, error) {
	var project database.Project
	if err := s.db.First(&project, projectID).Error; err != nil {
		return 0, err
	}
	ceilings := s.activityCeilings(projectID)

	engaged := time.Duration(0)
	now := time.Now()
	for _, a := range activities {
		end := now
		if a.EndedAt != nil {
			end = *a.EndedAt
		}
		span := end.Sub(a.StartedAt)
		if span < 0 {
			continue
		}
		if cap, ok := ceilings[a.PluginEvent]; ok && span > cap {
			span = cap
		}
		engaged += span
	}

	amount := math.Round(engaged.Hours()*project.HourlyRate()*100) / 100

	costType, err := s.responseCostType(projectID)
	if err != nil {
		return 0, err
	}

	var existing database.Cost
	q := s.db.Where("cost_type_id = ?", costType.ID)
	if incidentID != nil {
		q = q.Where("incident_id = ?", *incidentID)
	} else {
		q = q.Where("case_id = ?", *caseID)
	}
	err = q.First(&existing).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		cost := database.Cost{
			ProjectID:  projectID,
			IncidentID: incidentID,
			CaseID:     caseID,
			CostTypeID: &costType.ID,
			Amount:     amount,
		}
		if err := s.db.Create(&cost).Error; err != nil {
			return 0, err
		}
	case err != nil:
		return 0, err
	default:
		if err := s.db.Model(&existing).Update("amount", amount).Error; err != nil {
			return 0, err
		}
	}
	return amount, nil
}

// activityCeilings flattens enabled cost models into a per-event cap.
// When several models cap the same event the largest ceiling wins.
func (s *Service) activityCeilings(projectID uint) map[string]time.Duration {
	ceilings := make(map[string]time.Duration)
	var models []database.CostModel
	if err := s.db.Preload("Activities").
		Where("project_id = ? AND enabled = ?", projectID, true).
		Find(&models).Error; err != nil {
		log.Printf("Failed to load cost models for project %d: %v", projectID, err)
		return ceilings
	}
	for _, m := range models {
		for _, a := range m.Activities {
			if !a.Enabled {
				continue
			}
			cap := time.Duration(a.ResponseTimeSeconds) * time.Second
			if existing, ok := ceilings[a.PluginEvent]; !ok || cap > existing {
				ceilings[a.PluginEvent] = cap
			}
		}
	}
	return ceilings
}

func (s *Service) responseCostType(projectID uint) (*database.CostType, error) {
	var ct database.CostType
	err := s.db.Where("project_id = ? AND name = ?", projectID, ResponseCostType).First(&ct).Error
	if err == gorm.ErrRecordNotFound {
		ct = database.CostType{
			ProjectID: projectID,
			Name:      ResponseCostType,
			Category:  "response",
			Default:   true,
			Editable:  false,
		}
		if err := s.db.Create(&ct).Error; err != nil {
			return nil, err
		}
		return &ct, nil
	}
	if err != nil {
		return nil, err
	}
	return &ct, nil
}

// RecordConversationActivity pulls the conversation history through the
// chat plugin and materializes engagement windows for known participants.
// Consecutive messages from one person inside the ceiling collapse into a
// single window.
func (s *Service) RecordConversationActivity(ctx context.Context, projectID uint, incidentID *uint, caseID *uint, conversationID string) error {
	chat, err := s.registry.Chat(projectID)
	if err != nil {
		return err
	}
	var records []plugins.ActivityRecord
	err = plugins.Call(ctx, "chat.fetch_activity", 0, func(ctx context.Context) error {
		var callErr error
		records, callErr = chat.FetchActivity(ctx, conversationID)
		return callErr
	})
	if err != nil {
		return err
	}

	participants, err := s.participantsByEmail(incidentID, caseID)
	if err != nil {
		return err
	}

	for _, rec := range records {
		p, ok := participants[rec.UserEmail]
		if !ok {
			continue
		}
		var last database.ParticipantActivity
		err := s.db.Where("participant_id = ? AND plugin_event = ?", p.ID, "chat-message").
			Order("started_at DESC").First(&last).Error
		if err == nil && last.EndedAt != nil && rec.At.Sub(*last.EndedAt) < 5*time.Minute {
			if err := s.db.Model(&last).Update("ended_at", rec.At).Error; err != nil {
				log.Printf("Failed to extend activity window: %v", err)
			}
			continue
		}
		end := rec.At
		activity := database.ParticipantActivity{
			ParticipantID: p.ID,
			IncidentID:    incidentID,
			CaseID:        caseID,
			PluginEvent:   "chat-message",
			StartedAt:     rec.At,
			EndedAt:       &end,
		}
		if err := s.db.Create(&activity).Error; err != nil {
			log.Printf("Failed to record activity: %v", err)
		}
	}
	return nil
}

func (s *Service) participantsByEmail(incidentID, caseID *uint) (map[string]database.Participant, error) {
	var participants []database.Participant
	q := s.db.Preload("Individual")
	if incidentID != nil {
		q = q.Where("incident_id = ?", *incidentID)
	} else if caseID != nil {
		q = q.Where("case_id = ?", *caseID)
	}
	if err := q.Find(&participants).Error; err != nil {
		return nil, err
	}
	out := make(map[string]database.Participant, len(participants))
	for _, p := range participants {
		out[p.Individual.Email] = p
	}
	return out, nil
}
