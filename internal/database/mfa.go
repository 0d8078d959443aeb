package database

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MfaChallengeStatus is the state of a push challenge.
type MfaChallengeStatus string

const (
	MfaStatusIssued   MfaChallengeStatus = "issued"
	MfaStatusVerified MfaChallengeStatus = "verified"
	MfaStatusDenied   MfaChallengeStatus = "denied"
	MfaStatusExpired  MfaChallengeStatus = "expired"
)

// Challenge resolution errors. Each invalid transition surfaces as a
// distinct kind so callers can tell a stale challenge from a hijacked one.
var (
	ErrInvalidChallenge = errors.New("invalid challenge")
	ErrUserMismatch     = errors.New("challenge user mismatch")
	ErrActionMismatch   = errors.New("challenge action mismatch")
	ErrChallengeExpired = errors.New("challenge expired")
)

// MfaChallenge is one issued push challenge. Status only ever moves
// issued → verified | denied | expired.
type MfaChallenge struct {
	ID        uint               `gorm:"primaryKey" json:"id"`
	UUID      string             `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	UserEmail string             `gorm:"size:255;not null;index" json:"user_email"`
	Action    string             `gorm:"size:128;not null" json:"action"`
	Status    MfaChallengeStatus `gorm:"type:varchar(32);default:'issued'" json:"status"`
	ExpiresAt time.Time          `json:"expires_at"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func (MfaChallenge) TableName() string {
	return "mfa_challenges"
}

// BeforeCreate assigns the challenge UUID and expiry.
func (c *MfaChallenge) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == "" {
		c.UUID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = MfaStatusIssued
	}
	if c.ExpiresAt.IsZero() {
		c.ExpiresAt = time.Now().Add(5 * time.Minute)
	}
	return nil
}

// Resolve moves an issued challenge to verified or denied after checking
// the caller matches the challenge's user and action.
func (c *MfaChallenge) Resolve(userEmail, action string, approved bool, now time.Time) error {
	if c.Status != MfaStatusIssued {
		return ErrInvalidChallenge
	}
	if now.After(c.ExpiresAt) {
		c.Status = MfaStatusExpired
		return ErrChallengeExpired
	}
	if c.UserEmail != userEmail {
		return ErrUserMismatch
	}
	if c.Action != action {
		return ErrActionMismatch
	}
	if approved {
		c.Status = MfaStatusVerified
	} else {
		c.Status = MfaStatusDenied
	}
	return nil
}
