package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/learnhub/server/internal/models"
	"github.com/learnhub/server/internal/store"
	"github.com/learnhub/server/pkg/logger"
)

var (
	ErrMissingSubject  = errors.New("identity has no subject")
	ErrMissingEmail    = errors.New("identity has no email")
	ErrAccountInactive = errors.New("account is deactivated")
)

type SyncInput struct {
	Subject string
	Email   string
	// EmailVerified must be true for a new subject to claim a row created by
	// simple-signup.
	EmailVerified bool
	DisplayName *string
	PhotoURL    *string
	IPAddress   string
	RequestID   string
}

// SyncService keeps the local users table in step with identity-provider
// accounts.
type SyncService struct {
	Users *store.UserStore
	Audit *AuditService
	Now   func() time.Time
}

func NewSyncService(users *store.UserStore, audit *AuditService) *SyncService {
	return &SyncService{Users: users, Audit: audit, Now: time.Now}
}

// SyncIdentity creates the local row for a provider account on first login
// and refreshes email, profile and lastLoginAt on later logins. Role and
// active flag are never touched. created reports whether a row was inserted.
func (s *SyncService) SyncIdentity(ctx context.Context, in SyncInput) (*models.User, bool, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Subject == "" {
		return nil, false, ErrMissingSubject
	}
	if in.Email == "" {
		return nil, false, ErrMissingEmail
	}

	existing, err := s.Users.FindByProviderUID(ctx, in.Subject)
	switch {
	case err == nil:
		if !existing.IsActive {
			return nil, false, ErrAccountInactive
		}
	case errors.Is(err, store.ErrUserNotFound) && !in.EmailVerified:
		// An unverified email never claims an existing row; the upsert below
		// fails with ErrDuplicateEmail if one is present.
	case errors.Is(err, store.ErrUserNotFound):
		claimed, claimErr := s.Users.ClaimByEmail(ctx, in.Email, in.Subject)
		switch {
		case claimErr == nil:
			logger.Info("user_claimed_by_provider", map[string]interface{}{
				"user_id": claimed.ID.String(),
				"email":   claimed.Email,
			})
			if !claimed.IsActive {
				return nil, false, ErrAccountInactive
			}
		case errors.Is(claimErr, store.ErrUserNotFound), errors.Is(claimErr, store.ErrDuplicateSubject):
			// nothing to claim, or a concurrent login already owns the uid
		default:
			return nil, false, fmt.Errorf("claim user by email: %w", claimErr)
		}
	default:
		return nil, false, fmt.Errorf("find user: %w", err)
	}

	now := s.Now().UTC()
	create := &models.User{
		BaseModel:   models.BaseModel{ID: uuid.New()},
		FirebaseUID: &in.Subject,
		Email:       in.Email,
		Name:        nonEmpty(in.DisplayName),
		Avatar:      nonEmpty(in.PhotoURL),
		Role:        models.UserRoleStudent,
		IsActive:    true,
		LastLoginAt: &now,
	}
	updates := map[string]interface{}{
		"email":         in.Email,
		"last_login_at": now,
	}
	if name := nonEmpty(in.DisplayName); name != nil {
		updates["name"] = *name
	}
	if avatar := nonEmpty(in.PhotoURL); avatar != nil {
		updates["avatar"] = *avatar
	}

	candidateID := create.ID
	user, err := s.Users.Upsert(ctx, create, updates)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			logger.Warn("user_sync_email_conflict", map[string]interface{}{
				"subject": in.Subject,
				"email":   in.Email,
			})
		}
		return nil, false, fmt.Errorf("upsert user: %w", err)
	}
	if !user.IsActive {
		return nil, false, ErrAccountInactive
	}

	created := user.ID == candidateID
	action := AuditActionUserLogin
	if created {
		action = AuditActionUserCreate
		logger.InfoWithUser(user.ID.String(), "user_created", map[string]interface{}{
			"email": user.Email,
		})
	}
	s.Audit.LogAsync(AuditEntry{
		UserID:       &user.ID,
		Action:       action,
		ResourceType: "user",
		ResourceID:   &user.ID,
		Details:      map[string]interface{}{"email": user.Email},
		IPAddress:    in.IPAddress,
		RequestID:    in.RequestID,
	})

	return user, created, nil
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
