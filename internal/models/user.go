package models

import "time"

type UserRole string

const (
	UserRoleStudent    UserRole = "STUDENT"
	UserRoleInstructor UserRole = "INSTRUCTOR"
	UserRoleAdmin      UserRole = "ADMIN"
)

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleStudent, UserRoleInstructor, UserRoleAdmin:
		return true
	}
	return false
}

// User is the local record mirroring an identity-provider account.
// FirebaseUID is nil only for rows created by simple signup that no provider
// login has claimed yet.
type User struct {
	BaseModel
	FirebaseUID *string    `json:"firebaseUid,omitempty" gorm:"column:firebase_uid;type:varchar(128);uniqueIndex"`
	Email       string     `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Name        *string    `json:"name,omitempty" gorm:"type:varchar(255)"`
	Avatar      *string    `json:"avatar,omitempty" gorm:"type:text"`
	Role        UserRole   `json:"role" gorm:"type:varchar(20);not null;default:'STUDENT'"`
	IsActive    bool       `json:"isActive" gorm:"not null;default:true"`
	LineUserID  *string    `json:"lineUserId,omitempty" gorm:"column:line_user_id;type:varchar(64);uniqueIndex"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

func (u *User) HasRole(roles ...UserRole) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// Profile is the reduced view returned by /api/auth/sync-user.
type Profile struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	Name       *string  `json:"name,omitempty"`
	Avatar     *string  `json:"avatar,omitempty"`
	Role       UserRole `json:"role"`
	LineLinked bool     `json:"lineLinked"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:         u.ID.String(),
		Email:      u.Email,
		Name:       u.Name,
		Avatar:     u.Avatar,
		Role:       u.Role,
		LineLinked: u.LineUserID != nil && *u.LineUserID != "",
	}
}
