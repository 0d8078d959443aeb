package database

import (
	"fmt"

	"gorm.io/gorm"
)

// SetDefault marks one classification row as the project default and
// clears the prior default in the same transaction, so at most one row per
// (project, kind) carries default=true at any commit point.
//
// model must be a pointer to one of the classification types
// (IncidentType, IncidentPriority, IncidentSeverity, CaseType,
// CasePriority, CaseSeverity, CostType).
func SetDefault(db *gorm.DB, model interface{}, projectID, id uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(model).
			Where("project_id = ? AND id <> ?", projectID, id).
			Update("default", false)
		if res.Error != nil {
			return res.Error
		}
		res = tx.Model(model).
			Where("project_id = ? AND id = ?", projectID, id).
			Update("default", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("no row %d in project %d", id, projectID)
		}
		return nil
	})
}

// DefaultIncidentType returns the project's default incident type.
func DefaultIncidentType(db *gorm.DB, projectID uint) (*IncidentType, error) {
	var t IncidentType
	err := db.Where("project_id = ? AND \"default\" = ?", projectID, true).First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DefaultIncidentPriority returns the project's default incident priority.
func DefaultIncidentPriority(db *gorm.DB, projectID uint) (*IncidentPriority, error) {
	var p IncidentPriority
	err := db.Where("project_id = ? AND \"default\" = ?", projectID, true).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DefaultIncidentSeverity returns the project's default incident severity.
func DefaultIncidentSeverity(db *gorm.DB, projectID uint) (*IncidentSeverity, error) {
	var s IncidentSeverity
	err := db.Where("project_id = ? AND \"default\" = ?", projectID, true).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DefaultCaseType returns the project's default case type.
func DefaultCaseType(db *gorm.DB, projectID uint) (*CaseType, error) {
	var t CaseType
	err := db.Where("project_id = ? AND \"default\" = ?", projectID, true).First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DefaultCasePriority returns the project's default case priority.
func DefaultCasePriority(db *gorm.DB, projectID uint) (*CasePriority, error) {
	var p CasePriority
	err := db.Where("project_id = ? AND \"default\" = ?", projectID, true).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DefaultCaseSeverity returns the project's default case severity.
func DefaultCaseSeverity(db *gorm.DB, projectID uint) (*CaseSeverity, error) {
	var s CaseSeverity
	err := db.Where("project_id = ? AND \"default\" = ?", projectID, true).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}
