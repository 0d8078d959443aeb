package lifecycle_test

import (
	"testing"

	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/testhelpers"
)

func seedIncidentRow(t *testing.T, f *fixture) *database.Incident {
	t.Helper()
	inc := testhelpers.NewIncidentBuilder(f.project.ID).Build()
	if err := f.db.Create(&inc).Error; err != nil {
		t.Fatalf("create incident: %v", err)
	}
	return &inc
}

func TestParticipantsAdd_CreatesContactAndRole(t *testing.T) {
	f := newFixture(t)
	inc := seedIncidentRow(t, f)

	p, err := f.participants.Add(f.project.ID, &inc.ID, nil, "new@example.com", database.RoleParticipant, nil)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	var contact database.IndividualContact
	if err := f.db.Where("email = ?", "new@example.com").First(&contact).Error; err != nil {
		t.Fatalf("contact not created on first sight: %v", err)
	}
	if p.IndividualContactID != contact.ID {
		t.Errorf("participant linked to contact %d, want %d", p.IndividualContactID, contact.ID)
	}

	var roles []database.ParticipantRole
	f.db.Where("participant_id = ?", p.ID).Find(&roles)
	if len(roles) != 1 || roles[0].Role != database.RoleParticipant {
		t.Errorf("unexpected roles: %+v", roles)
	}
}

func TestParticipantsAdd_ExistingParticipantAppendsRole(t *testing.T) {
	f := newFixture(t)
	inc := seedIncidentRow(t, f)

	first, err := f.participants.Add(f.project.ID, &inc.ID, nil, "dual@example.com", database.RoleParticipant, nil)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	second, err := f.participants.Add(f.project.ID, &inc.ID, nil, "dual@example.com", database.RoleScribe, nil)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("same individual should reuse the participant row: %d vs %d", first.ID, second.ID)
	}

	// Re-assuming an active role is a no-op.
	if _, err := f.participants.Add(f.project.ID, &inc.ID, nil, "dual@example.com", database.RoleScribe, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	var roles []database.ParticipantRole
	f.db.Where("participant_id = ?", first.ID).Find(&roles)
	if len(roles) != 2 {
		t.Errorf("expected 2 roles, got %d: %+v", len(roles), roles)
	}
}

func TestParticipantsAssignRole_MovesSingleton(t *testing.T) {
	f := newFixture(t)
	inc := seedIncidentRow(t, f)

	if _, err := f.participants.Add(f.project.ID, &inc.ID, nil, "alpha@example.com", database.RoleCommander, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	previous, p, err := f.participants.AssignRole(f.project.ID, &inc.ID, nil, "bravo@example.com", database.RoleCommander)
	if err != nil {
		t.Fatalf("AssignRole failed: %v", err)
	}
	if previous != "alpha@example.com" {
		t.Errorf("previous holder = %q, want alpha@example.com", previous)
	}
	if p == nil {
		t.Fatal("no participant returned")
	}

	participants, err := f.participants.List(&inc.ID, nil)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for i := range participants {
		active := participants[i].ActiveRole(database.RoleCommander)
		email := participants[i].Individual.Email
		if email == "alpha@example.com" && active != nil {
			t.Error("previous commander should have renounced the role")
		}
		if email == "bravo@example.com" && active == nil {
			t.Error("new commander should hold the role")
		}
	}
}

func TestParticipantsAssignRole_AlreadyHeld(t *testing.T) {
	f := newFixture(t)
	inc := seedIncidentRow(t, f)

	if _, err := f.participants.Add(f.project.ID, &inc.ID, nil, "alpha@example.com", database.RoleCommander, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	previous, _, err := f.participants.AssignRole(f.project.ID, &inc.ID, nil, "alpha@example.com", database.RoleCommander)
	if err != nil {
		t.Fatalf("AssignRole failed: %v", err)
	}
	if previous != "" {
		t.Errorf("reassigning to the current holder should report no previous, got %q", previous)
	}
}

func TestParticipantsRemove_RenouncesButKeepsHistory(t *testing.T) {
	f := newFixture(t)
	inc := seedIncidentRow(t, f)

	if _, err := f.participants.Add(f.project.ID, &inc.ID, nil, "leaver@example.com", database.RoleParticipant, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := f.participants.Add(f.project.ID, &inc.ID, nil, "stays@example.com", database.RoleParticipant, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := f.participants.Remove(&inc.ID, nil, "leaver@example.com"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	emails, err := f.participants.Emails(&inc.ID, nil)
	if err != nil {
		t.Fatalf("Emails failed: %v", err)
	}
	if len(emails) != 1 || emails[0] != "stays@example.com" {
		t.Errorf("active emails = %v", emails)
	}

	// Row survives for history.
	participants, _ := f.participants.List(&inc.ID, nil)
	if len(participants) != 2 {
		t.Errorf("expected both participant rows kept, got %d", len(participants))
	}
}
