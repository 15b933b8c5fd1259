package model

import (
	"time"
)

// Roles carried by users and tokens.
const (
	RoleTenantAdmin   = "TENANT_ADMIN"
	RolePlatformAdmin = "PLATFORM_ADMIN"
)

// ExternalAuthPassword marks users whose credentials live only in the
// identity provider.
const ExternalAuthPassword = "EXTERNAL_AUTH"

// User is a storefront account. Rows synced from the identity provider exist
// before provisioning attaches them, so TenantID is nullable in the schema
// even though the users collection is tenant scoped.
type User struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email          string    `json:"email" gorm:"type:varchar(100);uniqueIndex:idx_users_email;not null"`
	Password       string    `json:"-" gorm:"type:varchar(255)"`
	Role           string    `json:"role" gorm:"type:varchar(50)"`
	TenantID       *string   `json:"tenant_id,omitempty" gorm:"type:varchar(36);index"`
	IdentityUserID string    `json:"identity_user_id" gorm:"type:varchar(100);index"`
	FirstName      string    `json:"first_name" gorm:"type:varchar(100)"`
	LastName       string    `json:"last_name" gorm:"type:varchar(100)"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
