package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/errs"
	"github.com/Netflix/dispatch-sub003/internal/plugins"
)

// MfaService issues and resolves push challenges for actions that need
// a second confirmation, such as reopening a closed incident from chat.
type MfaService struct {
	db       *gorm.DB
	registry *plugins.Registry
}

// NewMfaService creates an MFA challenge service.
func NewMfaService(db *gorm.DB, registry *plugins.Registry) *MfaService {
	return &MfaService{db: db, registry: registry}
}

// Issue creates a challenge for the user and action and sends it through
// the project's mfa port. The challenge row is removed again when the
// push cannot be delivered, so a stale issued row never blocks a retry.
func (s *MfaService) Issue(ctx context.Context, projectID uint, userEmail, action string) (*database.MfaChallenge, error) {
	if userEmail == "" || action == "" {
		return nil, errs.NewValidation("user email and action are required", nil)
	}
	port, err := s.registry.Mfa(projectID)
	if err != nil {
		return nil, err
	}

	challenge := database.MfaChallenge{
		UserEmail: userEmail,
		Action:    action,
	}
	if err := s.db.Create(&challenge).Error; err != nil {
		return nil, fmt.Errorf("create mfa challenge: %w", err)
	}

	if _, err := port.SendPush(ctx, userEmail, action); err != nil {
		if delErr := s.db.Delete(&challenge).Error; delErr != nil {
			log.Printf("Failed to remove undelivered challenge %s: %v", challenge.UUID, delErr)
		}
		return nil, errs.NewPluginError(port.Slug(), "send push challenge", true, err)
	}
	return &challenge, nil
}

// Resolve settles the challenge identified by UUID. The caller's email
// and action must match what the challenge was issued for; mismatches
// and expiry surface as forbidden, a challenge that was already settled
// as a conflict.
func (s *MfaService) Resolve(challengeUUID, userEmail, action string, approved bool) (*database.MfaChallenge, error) {
	var challenge database.MfaChallenge
	err := s.db.Where("uuid = ?", challengeUUID).First(&challenge).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errs.NewNotFound("mfa challenge", challengeUUID)
	}
	if err != nil {
		return nil, err
	}

	resolveErr := challenge.Resolve(userEmail, action, approved, time.Now())
	// Expiry mutates the status, persist it even though the call failed.
	if resolveErr == nil || errors.Is(resolveErr, database.ErrChallengeExpired) {
		if err := s.db.Save(&challenge).Error; err != nil {
			return nil, fmt.Errorf("save mfa challenge: %w", err)
		}
	}
	switch {
	case resolveErr == nil:
		return &challenge, nil
	case errors.Is(resolveErr, database.ErrInvalidChallenge):
		return nil, errs.NewConflict("challenge %s is already %s", challenge.UUID, challenge.Status)
	default:
		return nil, &errs.ForbiddenError{Msg: resolveErr.Error()}
	}
}
