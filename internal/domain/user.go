package domain

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

// Role type to distinguish between user roles
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

func (r Role) Value() (driver.Value, error) {
	return enumValue(string(r), "role", func(s string) bool { return Role(s).Valid() })
}

func (r *Role) Scan(src any) error {
	s, err := scanEnum(src, "role", func(s string) bool { return Role(s).Valid() })
	if err != nil {
		return err
	}
	*r = Role(s)
	return nil
}

// User is an account that can upload, view and (for admins) review documents.
type User struct {
	ID                    uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Username              string     `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email                 string     `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash          string     `gorm:"not null" json:"-"` // Never expose this via JSON
	Role                  Role       `gorm:"type:varchar(16);not null" json:"role"`
	FreeViewsUsed         int        `gorm:"not null;default:0" json:"freeViewsUsed"`
	SubscriptionExpiresAt *time.Time `json:"subscriptionExpiresAt,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasActiveSubscription reports whether the subscription covers now.
func (u *User) HasActiveSubscription(now time.Time) bool {
	return u.SubscriptionExpiresAt != nil && u.SubscriptionExpiresAt.After(now)
}

// Identity is the authenticated caller as carried by the access token.
type Identity struct {
	UserID   uuid.UUID
	Username string
	Role     Role
}

// IsElevated reports whether the caller holds the admin role.
func (i Identity) IsElevated() bool {
	return i.Role == RoleAdmin
}

// IsOwnerOrElevated reports whether the caller owns the resource or is an admin.
func (i Identity) IsOwnerOrElevated(ownerID uuid.UUID) bool {
	return i.IsElevated() || (i.UserID != uuid.Nil && i.UserID == ownerID)
}
