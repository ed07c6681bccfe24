package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/learnhub/server/internal/models"
	"github.com/learnhub/server/internal/store"
)

func strPtr(s string) *string { return &s }

func TestSyncIdentity_FirstLoginCreatesStudent(t *testing.T) {
	svc, clock := setupSyncService(t)

	user, created, err := svc.SyncIdentity(context.Background(), SyncInput{
		Subject:     "uid-1",
		Email:       "Ada@Example.com",
		DisplayName: strPtr("Ada"),
		PhotoURL:    strPtr("https://example.com/ada.png"),
	})
	if err != nil {
		t.Fatalf("SyncIdentity: %v", err)
	}
	if !created {
		t.Fatal("expected created=true on first login")
	}
	if user.Role != models.UserRoleStudent || !user.IsActive {
		t.Fatalf("expected active STUDENT, got %s active=%v", user.Role, user.IsActive)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("expected lowercased email, got %s", user.Email)
	}
	if user.Name == nil || *user.Name != "Ada" || user.Avatar == nil {
		t.Fatalf("expected profile fields, got %+v", user)
	}
	if user.LastLoginAt == nil || !user.LastLoginAt.Equal(clock.now) {
		t.Fatalf("expected lastLoginAt %v, got %v", clock.now, user.LastLoginAt)
	}

	var count int64
	svc.Users.DB.Model(&models.User{}).Where("firebase_uid = ?", "uid-1").Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one row, got %d", count)
	}
}

func TestSyncIdentity_RepeatLoginKeepsRoleAndActive(t *testing.T) {
	svc, clock := setupSyncService(t)
	ctx := context.Background()

	first, _, err := svc.SyncIdentity(ctx, SyncInput{Subject: "uid-1", Email: "ada@example.com", DisplayName: strPtr("Ada")})
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if _, err := svc.Users.SetRole(ctx, first.ID, models.UserRoleInstructor); err != nil {
		t.Fatalf("SetRole: %v", err)
	}

	clock.Advance(2 * time.Hour)
	second, created, err := svc.SyncIdentity(ctx, SyncInput{Subject: "uid-1", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if created {
		t.Fatal("expected created=false on repeat login")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same row")
	}
	if second.Role != models.UserRoleInstructor || !second.IsActive {
		t.Fatalf("role/active changed by sync: %s %v", second.Role, second.IsActive)
	}
	if !second.LastLoginAt.After(*first.LastLoginAt) {
		t.Fatalf("expected lastLoginAt to advance: %v -> %v", first.LastLoginAt, second.LastLoginAt)
	}
	if second.Name == nil || *second.Name != "Ada" {
		t.Fatalf("name must survive a sync without a display name, got %v", second.Name)
	}
}

func TestSyncIdentity_ConcurrentFirstLogins(t *testing.T) {
	svc, _ := setupSyncService(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	ids := map[string]bool{}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, created, err := svc.SyncIdentity(ctx, SyncInput{Subject: "uid-race", Email: "race@example.com"})
			if err != nil {
				t.Errorf("SyncIdentity: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[user.ID.String()] = true
			if created {
				createdCount++
			}
		}()
	}
	wg.Wait()

	if len(ids) != 1 {
		t.Fatalf("expected one user id, got %d", len(ids))
	}
	if createdCount != 1 {
		t.Fatalf("expected exactly one creation, got %d", createdCount)
	}
}

func TestSyncIdentity_InactiveAccount(t *testing.T) {
	svc, clock := setupSyncService(t)
	ctx := context.Background()

	user, _, err := svc.SyncIdentity(ctx, SyncInput{Subject: "uid-1", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, err := svc.Users.SetActive(ctx, user.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	before, _ := svc.Users.FindByID(ctx, user.ID)

	clock.Advance(time.Hour)
	if _, _, err := svc.SyncIdentity(ctx, SyncInput{Subject: "uid-1", Email: "ada@example.com"}); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}

	after, _ := svc.Users.FindByID(ctx, user.ID)
	if !after.LastLoginAt.Equal(*before.LastLoginAt) {
		t.Fatalf("inactive sync must not write: %v -> %v", before.LastLoginAt, after.LastLoginAt)
	}
}

func TestSyncIdentity_ClaimsSimpleSignupRow(t *testing.T) {
	svc, _ := setupSyncService(t)
	ctx := context.Background()

	pending := &models.User{Email: "new@example.com", Name: strPtr("New Person"), IsActive: true}
	if err := svc.Users.Create(ctx, pending); err != nil {
		t.Fatalf("Create: %v", err)
	}

	user, created, err := svc.SyncIdentity(ctx, SyncInput{Subject: "uid-new", Email: "new@example.com", EmailVerified: true})
	if err != nil {
		t.Fatalf("SyncIdentity: %v", err)
	}
	if created {
		t.Fatal("claiming an existing row is not a creation")
	}
	if user.ID != pending.ID {
		t.Fatalf("expected the signup row to be claimed")
	}
	if user.FirebaseUID == nil || *user.FirebaseUID != "uid-new" {
		t.Fatalf("expected uid to be attached, got %v", user.FirebaseUID)
	}
}

func TestSyncIdentity_UnverifiedEmailCannotClaimSignupRow(t *testing.T) {
	svc, _ := setupSyncService(t)
	ctx := context.Background()

	pending := &models.User{Email: "boss@example.com", IsActive: true}
	if err := svc.Users.Create(ctx, pending); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Users.SetRole(ctx, pending.ID, models.UserRoleAdmin); err != nil {
		t.Fatalf("SetRole: %v", err)
	}

	_, _, err := svc.SyncIdentity(ctx, SyncInput{Subject: "uid-intruder", Email: "boss@example.com", EmailVerified: false})
	if !errors.Is(err, store.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	after, err := svc.Users.FindByID(ctx, pending.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if after.FirebaseUID != nil {
		t.Fatalf("signup row must stay unclaimed, got uid %s", *after.FirebaseUID)
	}
	if _, err := svc.Users.FindByProviderUID(ctx, "uid-intruder"); !errors.Is(err, store.ErrUserNotFound) {
		t.Fatalf("expected no row for the unverified subject, got %v", err)
	}
}

func TestSyncIdentity_EmailCollision(t *testing.T) {
	svc, _ := setupSyncService(t)
	ctx := context.Background()

	if _, _, err := svc.SyncIdentity(ctx, SyncInput{Subject: "uid-1", Email: "shared@example.com"}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	_, _, err := svc.SyncIdentity(ctx, SyncInput{Subject: "uid-2", Email: "shared@example.com"})
	if !errors.Is(err, store.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestSyncIdentity_Validation(t *testing.T) {
	svc, _ := setupSyncService(t)
	ctx := context.Background()

	if _, _, err := svc.SyncIdentity(ctx, SyncInput{Email: "a@example.com"}); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
	if _, _, err := svc.SyncIdentity(ctx, SyncInput{Subject: "uid-1", Email: "  "}); !errors.Is(err, ErrMissingEmail) {
		t.Fatalf("expected ErrMissingEmail, got %v", err)
	}
}
