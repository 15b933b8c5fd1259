package model

import (
	"time"
)

// Product represents the product master data of one tenant
type Product struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TenantID    string    `json:"tenant_id" gorm:"type:varchar(36);index;not null"`
	Name        string    `json:"name" gorm:"type:varchar(255);not null"`
	Description string    `json:"description" gorm:"type:text"`
	SKU         string    `json:"sku" gorm:"type:varchar(100);not null"`
	Price       float64   `json:"price" gorm:"not null"`
	Stock       int       `json:"stock" gorm:"default:0"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Order is a storefront order
type Order struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TenantID  string    `json:"tenant_id" gorm:"type:varchar(36);index;not null"`
	UserID    string    `json:"user_id" gorm:"type:varchar(36);index"`
	Status    string    `json:"status" gorm:"type:varchar(30)"`
	Total     float64   `json:"total"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Post is a storefront blog post
type Post struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TenantID  string    `json:"tenant_id" gorm:"type:varchar(36);index;not null"`
	Title     string    `json:"title" gorm:"type:varchar(255)"`
	Body      string    `json:"body" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Webhook is an outbound subscription configured by a tenant
type Webhook struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TenantID  string    `json:"tenant_id" gorm:"type:varchar(36);index;not null"`
	URL       string    `json:"url" gorm:"type:varchar(500)"`
	Event     string    `json:"event" gorm:"type:varchar(100)"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEntry records an administrative action inside one tenant
type AuditEntry struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TenantID  string    `json:"tenant_id" gorm:"type:varchar(36);index;not null"`
	Actor     string    `json:"actor" gorm:"type:varchar(100)"`
	Action    string    `json:"action" gorm:"type:varchar(100)"`
	Detail    string    `json:"detail" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

// EmailTemplate rows with a NULL tenant are platform defaults visible to
// every tenant.
type EmailTemplate struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TenantID  *string   `json:"tenant_id,omitempty" gorm:"type:varchar(36);index"`
	Key       string    `json:"key" gorm:"type:varchar(100);not null"`
	Subject   string    `json:"subject" gorm:"type:varchar(255)"`
	Body      string    `json:"body" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// All lists every model for migrations.
func All() []interface{} {
	return []interface{}{
		&Tenant{},
		&Branding{},
		&Template{},
		&User{},
		&Product{},
		&Order{},
		&Post{},
		&Webhook{},
		&AuditEntry{},
		&EmailTemplate{},
	}
}
