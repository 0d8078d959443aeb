// Package events maintains the append-only timeline per subject.
package events

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/Netflix/dispatch-sub003/internal/database"
)

// Service appends and lists timeline events.
type Service struct {
	db *gorm.DB
}

// NewService creates an event service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Entry is the write-side shape of one event.
type Entry struct {
	Source      string
	Type        database.EventType
	Description string
	Author      string
	Details     database.JSONB
}

// AppendIncident records an event on an incident's timeline. Failures are
// logged, never fatal: a lost timeline entry must not abort a transition.
func (s *Service) AppendIncident(incidentID uint, e Entry) {
	s.append(&incidentID, nil, e)
}

// AppendCase records an event on a case's timeline.
func (s *Service) AppendCase(caseID uint, e Entry) {
	s.append(nil, &caseID, e)
}

func (s *Service) append(incidentID, caseID *uint, e Entry) {
	if e.Source == "" {
		e.Source = database.EventSourceCore
	}
	if e.Type == "" {
		e.Type = database.EventTypeOther
	}
	now := time.Now()
	event := database.Event{
		IncidentID:  incidentID,
		CaseID:      caseID,
		Source:      e.Source,
		Type:        e.Type,
		Description: e.Description,
		Author:      e.Author,
		Details:     e.Details,
		StartedAt:   now,
		EndedAt:     now,
	}
	if err := s.db.Create(&event).Error; err != nil {
		log.Printf("Failed to append timeline event: %v", err)
	}
}

// ListIncident returns the incident's timeline, oldest first.
func (s *Service) ListIncident(incidentID uint) ([]database.Event, error) {
	var out []database.Event
	err := s.db.Where("incident_id = ?", incidentID).Order("started_at ASC, id ASC").Find(&out).Error
	return out, err
}

// ListCase returns the case's timeline, oldest first.
func (s *Service) ListCase(caseID uint) ([]database.Event, error) {
	var out []database.Event
	err := s.db.Where("case_id = ?", caseID).Order("started_at ASC, id ASC").Find(&out).Error
	return out, err
}
