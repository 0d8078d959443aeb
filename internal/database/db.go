package database

import (
	"fmt"
	"log"
	"sync/atomic"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// Session open/close counters for leak diagnostics. Every request and
// scheduler job opens one session and must close it; a growing gap between
// the two counters means a leak.
var (
	sessionsOpened int64
	sessionsClosed int64
)

// Connect establishes a connection to the PostgreSQL database
func Connect(dsn string, logLevel logger.LogLevel) error {
	var err error

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connection established")
	return nil
}

// OpenSession returns a fresh short-lived session bound to one task.
// Callers must pair it with CloseSession.
func OpenSession() *gorm.DB {
	atomic.AddInt64(&sessionsOpened, 1)
	return DB.Session(&gorm.Session{NewDB: true})
}

// CloseSession releases a session acquired with OpenSession.
func CloseSession(_ *gorm.DB) {
	atomic.AddInt64(&sessionsClosed, 1)
}

// SessionCounts returns the opened/closed counters.
func SessionCounts() (opened, closed int64) {
	return atomic.LoadInt64(&sessionsOpened), atomic.LoadInt64(&sessionsClosed)
}

// AllModels lists every persisted model, migration order respecting
// foreign keys.
func AllModels() []interface{} {
	return []interface{}{
		&Organization{},
		&Project{},
		&DispatchUser{},
		&PluginInstance{},
		&TagType{},
		&Tag{},
		&SearchFilter{},
		&IncidentType{},
		&IncidentPriority{},
		&IncidentSeverity{},
		&CaseType{},
		&CasePriority{},
		&CaseSeverity{},
		&Incident{},
		&Case{},
		&IndividualContact{},
		&TeamContact{},
		&Service{},
		&Participant{},
		&ParticipantRole{},
		&ParticipantActivity{},
		&Signal{},
		&SignalFilter{},
		&SignalInstance{},
		&EntityType{},
		&Entity{},
		&Resource{},
		&Task{},
		&Monitor{},
		&Event{},
		&CostType{},
		&CostModel{},
		&CostModelActivity{},
		&Cost{},
		&Feedback{},
		&MfaChallenge{},
	}
}

// AutoMigrate runs database migrations
func AutoMigrate() error {
	log.Println("Running database migrations...")

	if err := DB.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// InitializeDefaults creates the default organization and project if none
// exist, plus a baseline type/priority/severity per kind so the lifecycle
// engine always has defaults to fall back on.
func InitializeDefaults() error {
	log.Println("Initializing default database records...")

	var org Organization
	err := DB.Where("slug = ?", "default").First(&org).Error
	if err == gorm.ErrRecordNotFound {
		org = Organization{Name: "Default", Slug: "default", Default: true}
		if err := DB.Create(&org).Error; err != nil {
			return fmt.Errorf("failed to create default organization: %w", err)
		}
		log.Println("Created default organization")
	} else if err != nil {
		return err
	}

	var project Project
	err = DB.Where("organization_id = ? AND name = ?", org.ID, "default").First(&project).Error
	if err == gorm.ErrRecordNotFound {
		project = Project{OrganizationID: org.ID, Name: "default", Default: true, Enabled: true}
		if err := DB.Create(&project).Error; err != nil {
			return fmt.Errorf("failed to create default project: %w", err)
		}
		log.Println("Created default project")
	} else if err != nil {
		return err
	}

	return SeedProjectDefaults(DB, project.ID)
}

// SeedProjectDefaults creates the baseline classification rows for a
// project when it has none.
func SeedProjectDefaults(db *gorm.DB, projectID uint) error {
	var count int64

	db.Model(&IncidentType{}).Where("project_id = ?", projectID).Count(&count)
	if count == 0 {
		if err := db.Create(&IncidentType{ProjectID: projectID, Name: "Default", Default: true, Enabled: true}).Error; err != nil {
			return err
		}
	}

	db.Model(&IncidentPriority{}).Where("project_id = ?", projectID).Count(&count)
	if count == 0 {
		priorities := []IncidentPriority{
			{ProjectID: projectID, Name: "Low", Rank: 1, Default: true, Enabled: true},
			{ProjectID: projectID, Name: "Medium", Rank: 2, Enabled: true},
			{ProjectID: projectID, Name: "High", Rank: 3, Enabled: true},
			{ProjectID: projectID, Name: "Critical", Rank: 4, Enabled: true, PageCommander: true},
		}
		if err := db.Create(&priorities).Error; err != nil {
			return err
		}
	}

	db.Model(&IncidentSeverity{}).Where("project_id = ?", projectID).Count(&count)
	if count == 0 {
		severities := []IncidentSeverity{
			{ProjectID: projectID, Name: "Minor", Rank: 1, Default: true, Enabled: true},
			{ProjectID: projectID, Name: "Major", Rank: 2, Enabled: true},
		}
		if err := db.Create(&severities).Error; err != nil {
			return err
		}
	}

	db.Model(&CaseType{}).Where("project_id = ?", projectID).Count(&count)
	if count == 0 {
		if err := db.Create(&CaseType{ProjectID: projectID, Name: "Default", Default: true, Enabled: true}).Error; err != nil {
			return err
		}
	}

	db.Model(&CasePriority{}).Where("project_id = ?", projectID).Count(&count)
	if count == 0 {
		priorities := []CasePriority{
			{ProjectID: projectID, Name: "Low", Rank: 1, Default: true, Enabled: true},
			{ProjectID: projectID, Name: "High", Rank: 2, Enabled: true},
		}
		if err := db.Create(&priorities).Error; err != nil {
			return err
		}
	}

	db.Model(&CaseSeverity{}).Where("project_id = ?", projectID).Count(&count)
	if count == 0 {
		if err := db.Create(&CaseSeverity{ProjectID: projectID, Name: "Default", Default: true, Enabled: true}).Error; err != nil {
			return err
		}
	}

	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
