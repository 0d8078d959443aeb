package lifecycle

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/events"
)

// Participants manages subject membership and role history.
type Participants struct {
	db     *gorm.DB
	events *events.Service
}

// NewParticipants creates a participant manager.
func NewParticipants(db *gorm.DB, ev *events.Service) *Participants {
	return &Participants{db: db, events: ev}
}

// singletonRoles may be held by at most one active participant per subject.
var singletonRoles = map[database.ParticipantRoleType]bool{
	database.RoleCommander: true,
	database.RoleAssignee:  true,
	database.RoleReporter:  true,
	database.RoleScribe:    true,
	database.RoleLiaison:   true,
}

// Add joins the individual to the subject with the given role. Both the
// contact and the participant row are created on first sight; adding an
// existing participant only appends the role. ServiceID, when set, records
// the oncall service the individual was resolved through.
func (p *Participants) Add(projectID uint, incidentID, caseID *uint, email string, role database.ParticipantRoleType, serviceID *uint) (*database.Participant, error) {
	if email == "" {
		return nil, fmt.Errorf("participant email is empty")
	}
	contact, err := p.contactByEmail(projectID, email)
	if err != nil {
		return nil, err
	}

	participant, created, err := p.findOrCreate(projectID, incidentID, caseID, contact.ID, serviceID)
	if err != nil {
		return nil, err
	}

	if err := p.assume(participant, incidentID, caseID, role); err != nil {
		return nil, err
	}

	if created {
		p.logEvent(incidentID, caseID, fmt.Sprintf("%s added with role %s", email, role))
	}
	return participant, nil
}

// AssignRole moves a singleton role to the given participant, renouncing
// it for the previous holder. Returns the previous holder's email, empty
// when the role was unheld.
func (p *Participants) AssignRole(projectID uint, incidentID, caseID *uint, email string, role database.ParticipantRoleType) (string, *database.Participant, error) {
	previous := ""
	if singletonRoles[role] {
		holders, err := p.list(incidentID, caseID)
		if err != nil {
			return "", nil, err
		}
		now := time.Now()
		for i := range holders {
			active := holders[i].ActiveRole(role)
			if active == nil {
				continue
			}
			if holders[i].Individual.Email == email {
				// Already holds it.
				return "", &holders[i], nil
			}
			previous = holders[i].Individual.Email
			if err := p.db.Model(active).Update("renounced_at", &now).Error; err != nil {
				return "", nil, err
			}
		}
	}

	participant, err := p.Add(projectID, incidentID, caseID, email, role, nil)
	if err != nil {
		return "", nil, err
	}
	if previous != "" {
		p.logEvent(incidentID, caseID, fmt.Sprintf("%s assumed role %s from %s", email, role, previous))
	} else {
		p.logEvent(incidentID, caseID, fmt.Sprintf("%s assumed role %s", email, role))
	}
	return previous, participant, nil
}

// Remove renounces every active role the individual holds on the subject.
// The participant row is kept for history.
func (p *Participants) Remove(incidentID, caseID *uint, email string) error {
	holders, err := p.list(incidentID, caseID)
	if err != nil {
		return err
	}
	now := time.Now()
	for i := range holders {
		if holders[i].Individual.Email != email {
			continue
		}
		for j := range holders[i].Roles {
			if holders[i].Roles[j].RenouncedAt == nil {
				if err := p.db.Model(&holders[i].Roles[j]).Update("renounced_at", &now).Error; err != nil {
					return err
				}
			}
		}
		p.logEvent(incidentID, caseID, fmt.Sprintf("%s left", email))
	}
	return nil
}

// List returns the subject's participants with contacts and roles loaded.
func (p *Participants) List(incidentID, caseID *uint) ([]database.Participant, error) {
	return p.list(incidentID, caseID)
}

// Emails returns the emails of every participant with at least one active
// role.
func (p *Participants) Emails(incidentID, caseID *uint) ([]string, error) {
	participants, err := p.list(incidentID, caseID)
	if err != nil {
		return nil, err
	}
	var out []string
	for i := range participants {
		for j := range participants[i].Roles {
			if participants[i].Roles[j].RenouncedAt == nil {
				out = append(out, participants[i].Individual.Email)
				break
			}
		}
	}
	return out, nil
}

func (p *Participants) list(incidentID, caseID *uint) ([]database.Participant, error) {
	q := p.db.Preload("Individual").Preload("Roles")
	if incidentID != nil {
		q = q.Where("incident_id = ?", *incidentID)
	} else if caseID != nil {
		q = q.Where("case_id = ?", *caseID)
	} else {
		return nil, fmt.Errorf("subject has no owner")
	}
	var out []database.Participant
	err := q.Find(&out).Error
	return out, err
}

func (p *Participants) contactByEmail(projectID uint, email string) (*database.IndividualContact, error) {
	var contact database.IndividualContact
	err := p.db.Where("project_id = ? AND email = ?", projectID, email).First(&contact).Error
	if err == gorm.ErrRecordNotFound {
		contact = database.IndividualContact{ProjectID: projectID, Email: email, Enabled: true}
		if err := p.db.Create(&contact).Error; err != nil {
			return nil, err
		}
		return &contact, nil
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

func (p *Participants) findOrCreate(projectID uint, incidentID, caseID *uint, contactID uint, serviceID *uint) (*database.Participant, bool, error) {
	q := p.db.Where("individual_contact_id = ?", contactID)
	if incidentID != nil {
		q = q.Where("incident_id = ?", *incidentID)
	} else if caseID != nil {
		q = q.Where("case_id = ?", *caseID)
	} else {
		return nil, false, fmt.Errorf("subject has no owner")
	}
	var participant database.Participant
	err := q.First(&participant).Error
	if err == gorm.ErrRecordNotFound {
		participant = database.Participant{
			ProjectID:           projectID,
			IncidentID:          incidentID,
			CaseID:              caseID,
			IndividualContactID: contactID,
			ServiceID:           serviceID,
			AddedAt:             time.Now(),
		}
		if err := p.db.Create(&participant).Error; err != nil {
			return nil, false, err
		}
		return &participant, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &participant, false, nil
}

func (p *Participants) assume(participant *database.Participant, incidentID, caseID *uint, role database.ParticipantRoleType) error {
	var roles []database.ParticipantRole
	if err := p.db.Where("participant_id = ?", participant.ID).Find(&roles).Error; err != nil {
		return err
	}
	for i := range roles {
		if roles[i].Role == role && roles[i].RenouncedAt == nil {
			return nil
		}
	}
	row := database.ParticipantRole{
		ParticipantID: participant.ID,
		Role:          role,
		AssumedAt:     time.Now(),
	}
	return p.db.Create(&row).Error
}

func (p *Participants) logEvent(incidentID, caseID *uint, description string) {
	entry := events.Entry{
		Type:        database.EventTypeParticipantUpdated,
		Description: description,
	}
	if incidentID != nil {
		p.events.AppendIncident(*incidentID, entry)
	} else if caseID != nil {
		p.events.AppendCase(*caseID, entry)
	}
}
