package client

import "time"

type User struct {
	ID          string     `json:"id"`
	FirebaseUID *string    `json:"firebaseUid,omitempty"`
	Email       string     `json:"email"`
	Name        *string    `json:"name,omitempty"`
	Avatar      *string    `json:"avatar,omitempty"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"isActive"`
	LineUserID  *string    `json:"lineUserId,omitempty"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (u User) DisplayName() string {
	if u.Name != nil && *u.Name != "" {
		return *u.Name
	}
	return u.Email
}

type Profile struct {
	ID         string  `json:"id"`
	Email      string  `json:"email"`
	Name       *string `json:"name,omitempty"`
	Avatar     *string `json:"avatar,omitempty"`
	Role       string  `json:"role"`
	LineLinked bool    `json:"lineLinked"`
}

type AuditLog struct {
	ID           string                 `json:"id"`
	UserID       *string                `json:"userID,omitempty"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resourceType"`
	ResourceID   *string                `json:"resourceID,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	IPAddress    string                 `json:"ipAddress"`
	RequestID    string                 `json:"requestID,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
}
