package resolver

import (
	"gorm.io/gorm"

	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/filter"
)

// IncidentCandidate flattens an incident and its classifications into the
// shape the filter engine evaluates.
func IncidentCandidate(db *gorm.DB, inc *database.Incident) filter.Candidate {
	c := filter.Candidate{}
	c.Set("Incident", "id", inc.ID)
	c.Set("Incident", "title", inc.Title)
	c.Set("Incident", "description", inc.Description)
	c.Set("Incident", "status", string(inc.Status))
	c.Set("Incident", "visibility", string(inc.Visibility))
	c.Set("Project", "id", inc.ProjectID)

	if inc.TypeID != nil {
		var t database.IncidentType
		if err := db.First(&t, *inc.TypeID).Error; err == nil {
			c.Set("IncidentType", "name", t.Name)
			c.Set("IncidentType", "id", t.ID)
		}
	}
	if inc.PriorityID != nil {
		var p database.IncidentPriority
		if err := db.First(&p, *inc.PriorityID).Error; err == nil {
			c.Set("IncidentPriority", "name", p.Name)
			c.Set("IncidentPriority", "id", p.ID)
		}
	}
	if inc.SeverityID != nil {
		var s database.IncidentSeverity
		if err := db.First(&s, *inc.SeverityID).Error; err == nil {
			c.Set("IncidentSeverity", "name", s.Name)
			c.Set("IncidentSeverity", "id", s.ID)
		}
	}

	var tags []database.Tag
	if err := db.Model(inc).Association("Tags").Find(&tags); err == nil {
		for _, tag := range tags {
			c.Add("Tag", "name", tag.Name)
			c.Add("Tag", "id", tag.ID)
		}
	}
	return c
}

// CaseCandidate flattens a case the same way.
func CaseCandidate(db *gorm.DB, cs *database.Case) filter.Candidate {
	c := filter.Candidate{}
	c.Set("Case", "id", cs.ID)
	c.Set("Case", "title", cs.Title)
	c.Set("Case", "description", cs.Description)
	c.Set("Case", "status", string(cs.Status))
	c.Set("Project", "id", cs.ProjectID)

	if cs.TypeID != nil {
		var t database.CaseType
		if err := db.First(&t, *cs.TypeID).Error; err == nil {
			c.Set("CaseType", "name", t.Name)
			c.Set("CaseType", "id", t.ID)
		}
	}
	if cs.PriorityID != nil {
		var p database.CasePriority
		if err := db.First(&p, *cs.PriorityID).Error; err == nil {
			c.Set("CasePriority", "name", p.Name)
			c.Set("CasePriority", "id", p.ID)
		}
	}
	if cs.SeverityID != nil {
		var s database.CaseSeverity
		if err := db.First(&s, *cs.SeverityID).Error; err == nil {
			c.Set("CaseSeverity", "name", s.Name)
			c.Set("CaseSeverity", "id", s.ID)
		}
	}

	var tags []database.Tag
	if err := db.Model(cs).Association("Tags").Find(&tags); err == nil {
		for _, tag := range tags {
			c.Add("Tag", "name", tag.Name)
			c.Add("Tag", "id", tag.ID)
		}
	}
	return c
}
