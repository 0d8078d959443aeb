// Package resolver maps a subject and the project's engagement rules onto
// the services, teams and individuals to involve.
package resolver

import (
	"context"
	"log"
	"sort"

	"gorm.io/gorm"

	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/filter"
	"github.com/Netflix/dispatch-sub003/internal/plugins"
)

// Service evaluates engagement rules.
type Service struct {
	db       *gorm.DB
	registry *plugins.Registry
}

// NewService creates a resolver.
func NewService(db *gorm.DB, registry *plugins.Registry) *Service {
	return &Service{db: db, registry: registry}
}

// Recommendation is the resolver output: individuals and teams to engage,
// deduplicated by email, plus the ranked services that matched.
type Recommendation struct {
	Individuals []string // emails
	Teams       []string // emails
	Services    []database.Service
}

// Recommend evaluates every enabled candidate's attached filters against
// the subject and returns those with at least one match. Services are
// additionally resolved to their current oncall individual.
func (s *Service) Recommend(ctx context.Context, projectID uint, candidate filter.Candidate) (*Recommendation, error) {
	rec := &Recommendation{}
	seen := make(map[string]bool)

	var individuals []database.IndividualContact
	if err := s.db.Preload("Filters").
		Where("project_id = ? AND enabled = ?", projectID, true).
		Find(&individuals).Error; err != nil {
		return nil, err
	}
	for _, ind := range individuals {
		if matchesAny(ind.Filters, candidate) && !seen[ind.Email] {
			seen[ind.Email] = true
			rec.Individuals = append(rec.Individuals, ind.Email)
		}
	}

	var teams []database.TeamContact
	if err := s.db.Preload("Filters").
		Where("project_id = ? AND enabled = ?", projectID, true).
		Find(&teams).Error; err != nil {
		return nil, err
	}
	for _, team := range teams {
		if matchesAny(team.Filters, candidate) && !seen[team.Email] {
			seen[team.Email] = true
			rec.Teams = append(rec.Teams, team.Email)
		}
	}

	services, err := s.matchingServices(projectID, candidate)
	if err != nil {
		return nil, err
	}
	rec.Services = services

	for _, svc := range services {
		email, err := s.oncallEmail(ctx, projectID, &svc)
		if err != nil {
			log.Printf("Failed to resolve oncall for service %s: %v", svc.Name, err)
			continue
		}
		if email != "" && !seen[email] {
			seen[email] = true
			rec.Individuals = append(rec.Individuals, email)
		}
	}

	return rec, nil
}

// ResolveCommander picks the incident commander email.
//
// Tie-break order: explicit assignment (handled by the caller) > rule
// match with the lowest service order > project default service > the
// reporter.
func (s *Service) ResolveCommander(ctx context.Context, projectID uint, candidate filter.Candidate, reporterEmail string) (string, *uint) {
	services, err := s.matchingServices(projectID, candidate)
	if err != nil {
		log.Printf("Commander rule evaluation failed: %v", err)
	}
	for i := range services {
		email, err := s.oncallEmail(ctx, projectID, &services[i])
		if err != nil {
			log.Printf("Failed to resolve oncall for service %s: %v", services[i].Name, err)
			continue
		}
		if email != "" {
			return email, &services[i].ID
		}
	}

	if email, serviceID := s.projectDefault(ctx, projectID); email != "" {
		return email, serviceID
	}

	return reporterEmail, nil
}

// ResolveAssignee picks the case assignee. An oncall service override (on
// the signal instance or signal) wins over rule matching; the project
// default is the final fallback before the reporter.
func (s *Service) ResolveAssignee(ctx context.Context, projectID uint, overrideServiceID *uint, candidate filter.Candidate, reporterEmail string) (string, *uint) {
	if overrideServiceID != nil {
		var svc database.Service
		if err := s.db.First(&svc, *overrideServiceID).Error; err == nil {
			if email, err := s.oncallEmail(ctx, projectID, &svc); err == nil && email != "" {
				return email, &svc.ID
			}
		}
	}
	return s.ResolveCommander(ctx, projectID, candidate, reporterEmail)
}

func (s *Service) projectDefault(ctx context.Context, projectID uint) (string, *uint) {
	var project database.Project
	if err := s.db.First(&project, projectID).Error; err != nil || project.OncallServiceID == nil {
		return "", nil
	}
	var svc database.Service
	if err := s.db.First(&svc, *project.OncallServiceID).Error; err != nil {
		return "", nil
	}
	email, err := s.oncallEmail(ctx, projectID, &svc)
	if err != nil {
		log.Printf("Failed to resolve project default oncall: %v", err)
		return "", nil
	}
	return email, &svc.ID
}

func (s *Service) matchingServices(projectID uint, candidate filter.Candidate) ([]database.Service, error) {
	var services []database.Service
	if err := s.db.Preload("Filters").
		Where("project_id = ? AND enabled = ?", projectID, true).
		Find(&services).Error; err != nil {
		return nil, err
	}
	var matched []database.Service
	for _, svc := range services {
		if matchesAny(svc.Filters, candidate) {
			matched = append(matched, svc)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Order < matched[j].Order
	})
	return matched, nil
}

func (s *Service) oncallEmail(ctx context.Context, projectID uint, svc *database.Service) (string, error) {
	oncall, err := s.registry.Oncall(projectID)
	if err != nil {
		return "", err
	}
	var email string
	err = plugins.Call(ctx, "oncall.get", 0, func(ctx context.Context) error {
		var callErr error
		email, callErr = oncall.GetOncall(ctx, svc.ExternalID)
		return callErr
	})
	return email, err
}

// matchesAny reports whether any attached filter expression matches the
// candidate. A candidate with no filters never matches by rule.
func matchesAny(filters []database.SearchFilter, candidate filter.Candidate) bool {
	for _, sf := range filters {
		node, err := filter.ParseMap(sf.Expression)
		if err != nil {
			log.Printf("Skipping malformed filter %q: %v", sf.Name, err)
			continue
		}
		if node.Eval(candidate) {
			return true
		}
	}
	return false
}
