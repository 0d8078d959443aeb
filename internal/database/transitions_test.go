package database

import (
	"testing"
	"time"
)

func TestIncidentCanTransition(t *testing.T) {
	tests := []struct {
		from IncidentStatus
		to   IncidentStatus
		want bool
	}{
		{IncidentStatusReported, IncidentStatusActive, true},
		{IncidentStatusReported, IncidentStatusStable, false},
		{IncidentStatusReported, IncidentStatusClosed, false},
		{IncidentStatusActive, IncidentStatusStable, true},
		{IncidentStatusActive, IncidentStatusClosed, true},
		{IncidentStatusActive, IncidentStatusReported, false},
		{IncidentStatusStable, IncidentStatusActive, true},
		{IncidentStatusStable, IncidentStatusClosed, true},
		{IncidentStatusClosed, IncidentStatusActive, true}, // reopen
		{IncidentStatusClosed, IncidentStatusStable, false},
		{IncidentStatusActive, IncidentStatusActive, false}, // self edge
	}
	for _, tt := range tests {
		i := Incident{Status: tt.from}
		if got := i.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCaseCanTransition(t *testing.T) {
	tests := []struct {
		from CaseStatus
		to   CaseStatus
		want bool
	}{
		{CaseStatusNew, CaseStatusTriage, true},
		{CaseStatusNew, CaseStatusEscalated, true},
		{CaseStatusNew, CaseStatusClosed, true},
		{CaseStatusTriage, CaseStatusNew, false},
		{CaseStatusTriage, CaseStatusEscalated, true},
		{CaseStatusTriage, CaseStatusClosed, true},
		{CaseStatusEscalated, CaseStatusClosed, true},
		{CaseStatusEscalated, CaseStatusTriage, false},
		{CaseStatusClosed, CaseStatusNew, false}, // cases never reopen
		{CaseStatusClosed, CaseStatusTriage, false},
	}
	for _, tt := range tests {
		c := Case{Status: tt.from}
		if got := c.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsValidResolution(t *testing.T) {
	for _, r := range ValidResolutions() {
		if !IsValidResolution(r) {
			t.Errorf("expected %s to be valid", r)
		}
	}
	if IsValidResolution("wontfix") {
		t.Error("expected wontfix to be rejected")
	}
}

func TestEvergreenDue(t *testing.T) {
	now := time.Now()
	past := now.Add(-100 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	tests := []struct {
		name string
		e    Evergreen
		want bool
	}{
		{"disabled", Evergreen{Evergreen: false, EvergreenOwner: "a@b.c"}, false},
		{"no owner", Evergreen{Evergreen: true}, false},
		{"never reminded", Evergreen{Evergreen: true, EvergreenOwner: "a@b.c", EvergreenReminderDays: 90}, true},
		{"interval elapsed", Evergreen{Evergreen: true, EvergreenOwner: "a@b.c", EvergreenReminderDays: 90, EvergreenLastRemindedAt: &past}, true},
		{"recently reminded", Evergreen{Evergreen: true, EvergreenOwner: "a@b.c", EvergreenReminderDays: 90, EvergreenLastRemindedAt: &recent}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.Due(now); got != tt.want {
				t.Errorf("Due = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMfaChallengeResolve(t *testing.T) {
	now := time.Now()
	fresh := func() MfaChallenge {
		return MfaChallenge{
			UserEmail: "user@example.com",
			Action:    "close-incident",
			Status:    MfaStatusIssued,
			ExpiresAt: now.Add(5 * time.Minute),
		}
	}

	t.Run("approve", func(t *testing.T) {
		c := fresh()
		if err := c.Resolve("user@example.com", "close-incident", true, now); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if c.Status != MfaStatusVerified {
			t.Errorf("status = %s, want verified", c.Status)
		}
	})

	t.Run("deny", func(t *testing.T) {
		c := fresh()
		if err := c.Resolve("user@example.com", "close-incident", false, now); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if c.Status != MfaStatusDenied {
			t.Errorf("status = %s, want denied", c.Status)
		}
	})

	t.Run("wrong user", func(t *testing.T) {
		c := fresh()
		if err := c.Resolve("other@example.com", "close-incident", true, now); err != ErrUserMismatch {
			t.Errorf("err = %v, want ErrUserMismatch", err)
		}
	})

	t.Run("wrong action", func(t *testing.T) {
		c := fresh()
		if err := c.Resolve("user@example.com", "delete-project", true, now); err != ErrActionMismatch {
			t.Errorf("err = %v, want ErrActionMismatch", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		c := fresh()
		if err := c.Resolve("user@example.com", "close-incident", true, now.Add(10*time.Minute)); err != ErrChallengeExpired {
			t.Errorf("err = %v, want ErrChallengeExpired", err)
		}
		if c.Status != MfaStatusExpired {
			t.Errorf("status = %s, want expired", c.Status)
		}
	})

	t.Run("already resolved", func(t *testing.T) {
		c := fresh()
		c.Status = MfaStatusVerified
		if err := c.Resolve("user@example.com", "close-incident", true, now); err != ErrInvalidChallenge {
			t.Errorf("err = %v, want ErrInvalidChallenge", err)
		}
	})
}
