// Package store persists users through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/learnhub/server/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrDuplicateEmail   = errors.New("email already belongs to another user")
	ErrDuplicateSubject = errors.New("provider uid already belongs to another user")
	ErrDuplicateLine    = errors.New("line account already linked to another user")
)

type UserStore struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{DB: db, Now: time.Now}
}

type ListFilter struct {
	Search string
	Role   models.UserRole
	Offset int
	Limit  int
}

func (s *UserStore) FindByProviderUID(ctx context.Context, uid string) (*models.User, error) {
	return s.first(ctx, "firebase_uid = ?", uid)
}

func (s *UserStore) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.first(ctx, "email = ?", normalizeEmail(email))
}

func (s *UserStore) first(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where(query, args...).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	user.Email = normalizeEmail(user.Email)
	if user.Role == "" {
		user.Role = models.UserRoleStudent
	}

	if err := s.DB.WithContext(ctx).Create(user).Error; err != nil {
		return s.translateConflict(ctx, err, user.Email)
	}
	return nil
}

// Update applies fields to the row owned by uid.
func (s *UserStore) Update(ctx context.Context, uid string, fields map[string]interface{}) (*models.User, error) {
	if err := s.updateWhere(ctx, fields, "firebase_uid = ?", uid); err != nil {
		email, _ := fields["email"].(string)
		return nil, s.translateConflict(ctx, err, normalizeEmail(email))
	}
	return s.FindByProviderUID(ctx, uid)
}

// Upsert inserts create or, when a row with the same firebase_uid already
// exists, applies updates to it. Both happen in one statement so concurrent
// first logins for the same uid converge on a single row.
func (s *UserStore) Upsert(ctx context.Context, create *models.User, updates map[string]interface{}) (*models.User, error) {
	if create.FirebaseUID == nil || *create.FirebaseUID == "" {
		return nil, errors.New("upsert requires a provider uid")
	}
	create.Email = normalizeEmail(create.Email)
	if create.Role == "" {
		create.Role = models.UserRoleStudent
	}

	assignments := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		assignments[k] = v
	}
	if email, ok := assignments["email"].(string); ok {
		assignments["email"] = normalizeEmail(email)
	}
	assignments["updated_at"] = s.Now().UTC()

	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "firebase_uid"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(create).Error
	if err != nil {
		return nil, s.translateConflict(ctx, err, create.Email)
	}

	return s.FindByProviderUID(ctx, *create.FirebaseUID)
}

// ClaimByEmail attaches uid to the row with email if that row has no
// provider uid yet.
func (s *UserStore) ClaimByEmail(ctx context.Context, email, uid string) (*models.User, error) {
	result := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("email = ? AND firebase_uid IS NULL", normalizeEmail(email)).
		Updates(map[string]interface{}{
			"firebase_uid": uid,
			"updated_at":   s.Now().UTC(),
		})
	if result.Error != nil {
		if isDuplicate(result.Error) {
			return nil, ErrDuplicateSubject
		}
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return s.FindByProviderUID(ctx, uid)
}

func (s *UserStore) List(ctx context.Context, filter ListFilter) ([]models.User, int64, error) {
	query := s.DB.WithContext(ctx).Model(&models.User{})

	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", pattern, pattern)
	}
	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []models.User
	if filter.Limit > 0 {
		query = query.Offset(filter.Offset).Limit(filter.Limit)
	}
	if err := query.Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *UserStore) SetRole(ctx context.Context, id uuid.UUID, role models.UserRole) (*models.User, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	if err := s.updateWhere(ctx, map[string]interface{}{"role": role}, "id = ?", id); err != nil {
		return nil, err
	}
	return s.FindByID(ctx, id)
}

func (s *UserStore) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.User, error) {
	if err := s.updateWhere(ctx, map[string]interface{}{"is_active": active}, "id = ?", id); err != nil {
		return nil, err
	}
	return s.FindByID(ctx, id)
}

func (s *UserStore) LinkLine(ctx context.Context, id uuid.UUID, lineUserID string) (*models.User, error) {
	err := s.updateWhere(ctx, map[string]interface{}{"line_user_id": lineUserID}, "id = ?", id)
	if err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicateLine
		}
		return nil, err
	}
	return s.FindByID(ctx, id)
}

func (s *UserStore) UnlinkLine(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if err := s.updateWhere(ctx, map[string]interface{}{"line_user_id": nil}, "id = ?", id); err != nil {
		return nil, err
	}
	return s.FindByID(ctx, id)
}

func (s *UserStore) updateWhere(ctx context.Context, fields map[string]interface{}, query string, args ...interface{}) error {
	values := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		values[k] = v
	}
	if email, ok := values["email"].(string); ok {
		values["email"] = normalizeEmail(email)
	}
	values["updated_at"] = s.Now().UTC()

	result := s.DB.WithContext(ctx).Model(&models.User{}).Where(query, args...).Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// translateConflict maps a unique violation to the column that caused it.
// The driver error does not say which index fired, so the email is checked
// directly.
func (s *UserStore) translateConflict(ctx context.Context, err error, email string) error {
	if !isDuplicate(err) {
		return err
	}
	if email != "" {
		var count int64
		if countErr := s.DB.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; countErr != nil {
			return fmt.Errorf("classify unique violation: %w", countErr)
		}
		if count > 0 {
			return ErrDuplicateEmail
		}
	}
	return ErrDuplicateSubject
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
